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

const polygonName = "polygon"

// PolygonAdapter fetches aggregate bars from the Polygon.io v2 aggs API.
type PolygonAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// PolygonConfig holds the adapter settings.
type PolygonConfig struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
}

// NewPolygonAdapter validates config and builds the adapter.
func NewPolygonAdapter(cfg PolygonConfig) (*PolygonAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("polygon: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.polygon.io"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	return &PolygonAdapter{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// polygonRange maps a timeframe to the multiplier/span pair of the aggs URL.
func polygonRange(tf Timeframe) (int, string, bool) {
	switch tf {
	case Timeframe1Min:
		return 1, "minute", true
	case Timeframe5Min:
		return 5, "minute", true
	case Timeframe15Min:
		return 15, "minute", true
	case Timeframe1Hour:
		return 1, "hour", true
	case Timeframe1Day:
		return 1, "day", true
	default:
		return 0, "", false
	}
}

// FetchRawBars implements BarsAdapter.
func (p *PolygonAdapter) FetchRawBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error) {
	symbol = NormalizeSymbol(symbol)
	if !ValidSymbol(symbol) {
		return nil, NewBadSymbolError(polygonName, symbol, "malformed symbol")
	}
	mult, span, ok := polygonRange(tf)
	if !ok {
		return nil, &FetchError{Kind: KindBadRequest, Provider: polygonName, Symbol: symbol,
			Message: fmt.Sprintf("unsupported timeframe %q", tf)}
	}

	params := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {"50000"},
		"apiKey":   {p.apiKey},
	}
	reqURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%d/%d?%s",
		p.baseURL, url.PathEscape(symbol), mult, span,
		start.UTC().UnixMilli(), end.UTC().UnixMilli(), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, NewNetworkError(polygonName, symbol, "failed to build request", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &FetchError{Kind: KindTimeout, Provider: polygonName, Symbol: symbol,
				Message: "request cancelled", Cause: ctx.Err()}
		}
		return nil, NewNetworkError(polygonName, symbol, "request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(polygonName, symbol, resp); err != nil {
		return nil, err
	}
	return p.parseAggs(resp.Body, symbol, tf)
}

func (p *PolygonAdapter) parseAggs(body io.Reader, symbol string, tf Timeframe) ([]Bar, error) {
	var payload struct {
		Status  string `json:"status"`
		Error   string `json:"error"`
		Results []struct {
			T int64   `json:"t"` // epoch millis
			O float64 `json:"o"`
			H float64 `json:"h"`
			L float64 `json:"l"`
			C float64 `json:"c"`
			V float64 `json:"v"`
		} `json:"results"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, NewProviderError(polygonName, symbol, "failed to parse response", err)
	}
	if payload.Status == "ERROR" {
		return nil, NewProviderError(polygonName, symbol, payload.Error, nil)
	}

	now := time.Now().UTC()
	bars := make([]Bar, 0, len(payload.Results))
	for _, rb := range payload.Results {
		bars = append(bars, Bar{
			Symbol:     symbol,
			Timeframe:  tf,
			Open:       decimal.NewFromFloat(rb.O),
			High:       decimal.NewFromFloat(rb.H),
			Low:        decimal.NewFromFloat(rb.L),
			Close:      decimal.NewFromFloat(rb.C),
			Volume:     int64(rb.V),
			Timestamp:  time.UnixMilli(rb.T).UTC(),
			Source:     polygonName,
			IngestedAt: now,
		})
	}
	return bars, nil
}

// HealthCheck issues a minimal request for a liquid symbol.
func (p *PolygonAdapter) HealthCheck(ctx context.Context) error {
	end := time.Now().UTC()
	_, err := p.FetchRawBars(ctx, "AAPL", Timeframe1Day, end.Add(-5*24*time.Hour), end)
	return err
}

func (p *PolygonAdapter) Close() error { return nil }
