// Package service composes the pipeline: cache probe -> provider failover ->
// validation -> cache write-back -> quality gate.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SamoraDC/marketdata/internal/adapters"
	"github.com/SamoraDC/marketdata/internal/alerts"
	"github.com/SamoraDC/marketdata/internal/cache"
	"github.com/SamoraDC/marketdata/internal/observ"
	"github.com/SamoraDC/marketdata/internal/validate"
)

// MarketData is the public facade consumed by trading and backtesting
// collaborators. Safe for concurrent use; duplicate concurrent misses for
// the same key may both reach the providers, which is acceptable.
type MarketData struct {
	cache     *cache.Coordinator
	providers *adapters.Manager
	validator *validate.Validator
	notifier  alerts.Notifier
	logger    *logrus.Entry
}

// New wires the facade. notifier may be nil.
func New(coord *cache.Coordinator, manager *adapters.Manager, validator *validate.Validator,
	notifier alerts.Notifier, logger *logrus.Logger) *MarketData {
	if notifier == nil {
		notifier = alerts.NopNotifier{}
	}
	return &MarketData{
		cache:     coord,
		providers: manager,
		validator: validator,
		notifier:  notifier,
		logger:    logger.WithField("component", "marketdata"),
	}
}

// GetBars returns validated bars for [start,end) plus provenance: the
// provider that produced the data, or the cached source on a hit. Callers
// bound the request with a ctx deadline; on expiry in-flight provider calls
// are abandoned and *adapters.TimeoutError is returned.
func (s *MarketData) GetBars(ctx context.Context, symbol string, tf adapters.Timeframe, start, end time.Time) ([]adapters.Bar, string, error) {
	symbol = adapters.NormalizeSymbol(symbol)
	if !adapters.ValidSymbol(symbol) {
		return nil, "", fmt.Errorf("invalid symbol %q", symbol)
	}
	if !tf.Valid() {
		return nil, "", fmt.Errorf("invalid timeframe %q", tf)
	}
	if !end.After(start) {
		return nil, "", fmt.Errorf("invalid range: end %s not after start %s", end, start)
	}

	key := cache.NewKey(symbol, tf, start, end)
	if bars, tier, ok := s.cache.GetBars(ctx, key); ok {
		s.logger.WithFields(logrus.Fields{"symbol": symbol, "tier": tier, "bars": len(bars)}).
			Debug("served from cache")
		return bars, provenanceOf(bars), nil
	}

	raw, provider, err := s.providers.FetchBars(ctx, symbol, tf, start, end)
	if err != nil {
		var te *adapters.TimeoutError
		if errors.As(err, &te) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if !errors.As(err, &te) {
				err = &adapters.TimeoutError{Cause: err}
			}
			observ.IncCounter("request_timeouts_total", nil)
		}
		s.logger.WithFields(logrus.Fields{"symbol": symbol, "error": err.Error()}).
			Error("fetch failed on every provider")
		return nil, "", err
	}

	expected := adapters.ExpectedBarCount(tf, start, end)
	result := s.validator.ValidateBatch(raw, expected)

	if result.AlertRequired {
		q := result.Quality
		s.notifier.NotifyQuality(ctx, alerts.QualityAlert{
			ID:           alerts.NewID(),
			Symbol:       symbol,
			Timeframe:    string(tf),
			Aggregate:    q.Aggregate,
			Completeness: q.Completeness,
			Accuracy:     q.Accuracy,
			Timeliness:   q.Timeliness,
			Consistency:  q.Consistency,
			Rejected:     len(result.Rejections),
			Timestamp:    time.Now().UTC(),
		})
	}

	if len(result.Bars) == 0 {
		reasons := make([]string, 0, len(result.Rejections))
		for _, rej := range result.Rejections {
			reasons = append(reasons, rej.Reasons...)
		}
		if len(raw) == 0 {
			reasons = append(reasons, "provider returned no bars")
		}
		return nil, "", &validate.RejectedError{Reasons: dedupe(reasons)}
	}

	s.cache.Put(ctx, key, result.Bars)
	s.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"provider": provider,
		"bars":     len(result.Bars),
		"rejected": len(result.Rejections),
		"quality":  result.Quality.Aggregate,
	}).Info("fetched and cached")
	return result.Bars, provider, nil
}

// Invalidate drops cached ranges for symbol+timeframe after a data refresh.
func (s *MarketData) Invalidate(ctx context.Context, symbol string, tf adapters.Timeframe) {
	s.cache.Invalidate(ctx, symbol, tf)
}

// ProviderHealth exposes the manager's health snapshot for the debug API.
func (s *MarketData) ProviderHealth() []adapters.ProviderHealthState {
	return s.providers.HealthSnapshot()
}

// provenanceOf reports the provider that originally produced cached bars.
func provenanceOf(bars []adapters.Bar) string {
	if len(bars) == 0 {
		return ""
	}
	return bars[0].Source
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
