package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/SamoraDC/marketdata/internal/cache"
	"github.com/SamoraDC/marketdata/internal/config"
	"github.com/SamoraDC/marketdata/internal/logging"
	"github.com/SamoraDC/marketdata/internal/observ"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline with the debug API",
	Long: `Starts the market data pipeline, the optional provider health monitor,
the L2 janitor, and a debug HTTP server exposing /metrics, /healthz and
/providers.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	pipe, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pipe.close()

	// L2 janitor: the TTL tier expires lazily on read, the sweep keeps
	// the map from accumulating dead entries between reads.
	if mem, ok := pipe.l2.(*cache.L2Cache); ok {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					mem.Cleanup()
				}
			}
		}()
	}

	router := mux.NewRouter()
	router.Handle("/metrics", observ.Handler()).Methods(http.MethodGet)
	router.Handle("/healthz", observ.HealthHandler()).Methods(http.MethodGet)
	router.HandleFunc("/providers", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pipe.service.ProviderHealth())
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         cfg.Server.DebugAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", cfg.Server.DebugAddr).Info("debug server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithField("error", err.Error()).Error("debug server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
