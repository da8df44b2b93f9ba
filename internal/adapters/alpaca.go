package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const alpacaName = "alpaca"

// AlpacaAdapter fetches historical bars from the Alpaca Market Data v2 API.
type AlpacaAdapter struct {
	keyID      string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// AlpacaConfig holds the adapter settings.
type AlpacaConfig struct {
	KeyID          string
	SecretKey      string
	BaseURL        string // override for tests; defaults to the data API
	TimeoutSeconds int
}

// NewAlpacaAdapter validates config and builds the adapter.
func NewAlpacaAdapter(cfg AlpacaConfig) (*AlpacaAdapter, error) {
	if cfg.KeyID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("alpaca: key id and secret key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://data.alpaca.markets"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	return &AlpacaAdapter{
		keyID:     cfg.KeyID,
		secretKey: cfg.SecretKey,
		baseURL:   cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}, nil
}

var alpacaTimeframes = map[Timeframe]string{
	Timeframe1Min:  "1Min",
	Timeframe5Min:  "5Min",
	Timeframe15Min: "15Min",
	Timeframe1Hour: "1Hour",
	Timeframe1Day:  "1Day",
}

// FetchRawBars implements BarsAdapter.
func (a *AlpacaAdapter) FetchRawBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error) {
	symbol = NormalizeSymbol(symbol)
	if !ValidSymbol(symbol) {
		return nil, NewBadSymbolError(alpacaName, symbol, "malformed symbol")
	}
	alpacaTF, ok := alpacaTimeframes[tf]
	if !ok {
		return nil, &FetchError{Kind: KindBadRequest, Provider: alpacaName, Symbol: symbol,
			Message: fmt.Sprintf("unsupported timeframe %q", tf)}
	}

	params := url.Values{
		"timeframe":  {alpacaTF},
		"start":      {start.UTC().Format(time.RFC3339)},
		"end":        {end.UTC().Format(time.RFC3339)},
		"limit":      {"10000"},
		"adjustment": {"raw"},
	}
	reqURL := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", a.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, NewNetworkError(alpacaName, symbol, "failed to build request", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &FetchError{Kind: KindTimeout, Provider: alpacaName, Symbol: symbol,
				Message: "request cancelled", Cause: ctx.Err()}
		}
		return nil, NewNetworkError(alpacaName, symbol, "request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(alpacaName, symbol, resp); err != nil {
		return nil, err
	}
	return a.parseBars(resp.Body, symbol, tf)
}

func (a *AlpacaAdapter) parseBars(body io.Reader, symbol string, tf Timeframe) ([]Bar, error) {
	var payload struct {
		Bars []struct {
			T time.Time `json:"t"`
			O float64   `json:"o"`
			H float64   `json:"h"`
			L float64   `json:"l"`
			C float64   `json:"c"`
			V int64     `json:"v"`
		} `json:"bars"`
		Symbol  string `json:"symbol"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, NewProviderError(alpacaName, symbol, "failed to parse response", err)
	}
	if len(payload.Bars) == 0 && payload.Message != "" {
		return nil, NewProviderError(alpacaName, symbol, payload.Message, nil)
	}

	now := time.Now().UTC()
	bars := make([]Bar, 0, len(payload.Bars))
	for _, rb := range payload.Bars {
		bars = append(bars, Bar{
			Symbol:     symbol,
			Timeframe:  tf,
			Open:       decimal.NewFromFloat(rb.O),
			High:       decimal.NewFromFloat(rb.H),
			Low:        decimal.NewFromFloat(rb.L),
			Close:      decimal.NewFromFloat(rb.C),
			Volume:     rb.V,
			Timestamp:  rb.T.UTC(),
			Source:     alpacaName,
			IngestedAt: now,
		})
	}
	return bars, nil
}

// HealthCheck issues a minimal request for a liquid symbol.
func (a *AlpacaAdapter) HealthCheck(ctx context.Context) error {
	end := time.Now().UTC()
	_, err := a.FetchRawBars(ctx, "AAPL", Timeframe1Day, end.Add(-5*24*time.Hour), end)
	return err
}

func (a *AlpacaAdapter) Close() error { return nil }

// classifyHTTPStatus maps a non-200 response to the error taxonomy shared by
// all REST adapters: 429 rate-limit, 401/403 auth, other 4xx bad request,
// 5xx provider.
func classifyHTTPStatus(provider, symbol string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &FetchError{Kind: KindRateLimit, Provider: provider, Symbol: symbol,
			Message: "provider rate limit exceeded"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &FetchError{Kind: KindAuth, Provider: provider, Symbol: symbol,
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &FetchError{Kind: KindProvider, Provider: provider, Symbol: symbol,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &FetchError{Kind: KindBadRequest, Provider: provider, Symbol: symbol,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))}
	}
}
