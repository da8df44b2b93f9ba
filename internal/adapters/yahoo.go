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

const yahooName = "yahoo"

// YahooAdapter fetches bars from the Yahoo Finance chart API. No API key;
// Yahoo is typically configured as the lowest-priority fallback.
type YahooAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// YahooConfig holds the adapter settings.
type YahooConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// NewYahooAdapter builds the adapter.
func NewYahooAdapter(cfg YahooConfig) *YahooAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	return &YahooAdapter{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

var yahooIntervals = map[Timeframe]string{
	Timeframe1Min:  "1m",
	Timeframe5Min:  "5m",
	Timeframe15Min: "15m",
	Timeframe1Hour: "1h",
	Timeframe1Day:  "1d",
}

// FetchRawBars implements BarsAdapter.
func (y *YahooAdapter) FetchRawBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error) {
	symbol = NormalizeSymbol(symbol)
	if !ValidSymbol(symbol) {
		return nil, NewBadSymbolError(yahooName, symbol, "malformed symbol")
	}
	interval, ok := yahooIntervals[tf]
	if !ok {
		return nil, &FetchError{Kind: KindBadRequest, Provider: yahooName, Symbol: symbol,
			Message: fmt.Sprintf("unsupported timeframe %q", tf)}
	}

	params := url.Values{
		"period1":  {fmt.Sprintf("%d", start.UTC().Unix())},
		"period2":  {fmt.Sprintf("%d", end.UTC().Unix())},
		"interval": {interval},
		"events":   {"history"},
	}
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, NewNetworkError(yahooName, symbol, "failed to build request", err)
	}
	req.Header.Set("User-Agent", "marketdata/1.0")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &FetchError{Kind: KindTimeout, Provider: yahooName, Symbol: symbol,
				Message: "request cancelled", Cause: ctx.Err()}
		}
		return nil, NewNetworkError(yahooName, symbol, "request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(yahooName, symbol, resp); err != nil {
		return nil, err
	}
	return y.parseChart(resp.Body, symbol, tf)
}

func (y *YahooAdapter) parseChart(body io.Reader, symbol string, tf Timeframe) ([]Bar, error) {
	var payload struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Open   []float64 `json:"open"`
						High   []float64 `json:"high"`
						Low    []float64 `json:"low"`
						Close  []float64 `json:"close"`
						Volume []int64   `json:"volume"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, NewProviderError(yahooName, symbol, "failed to parse response", err)
	}
	if payload.Chart.Error != nil {
		return nil, NewProviderError(yahooName, symbol, payload.Chart.Error.Description, nil)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, NewBadSymbolError(yahooName, symbol, "no chart data returned")
	}

	result := payload.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	now := time.Now().UTC()
	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		// Yahoo pads the most recent row with zeros before it settles.
		if quote.Open[i] == 0 && quote.Close[i] == 0 {
			continue
		}
		var volume int64
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}
		bars = append(bars, Bar{
			Symbol:     symbol,
			Timeframe:  tf,
			Open:       decimal.NewFromFloat(quote.Open[i]),
			High:       decimal.NewFromFloat(quote.High[i]),
			Low:        decimal.NewFromFloat(quote.Low[i]),
			Close:      decimal.NewFromFloat(quote.Close[i]),
			Volume:     volume,
			Timestamp:  time.Unix(ts, 0).UTC(),
			Source:     yahooName,
			IngestedAt: now,
		})
	}
	return bars, nil
}

// HealthCheck issues a minimal request for a liquid symbol.
func (y *YahooAdapter) HealthCheck(ctx context.Context) error {
	end := time.Now().UTC()
	_, err := y.FetchRawBars(ctx, "AAPL", Timeframe1Day, end.Add(-5*24*time.Hour), end)
	return err
}

func (y *YahooAdapter) Close() error { return nil }
