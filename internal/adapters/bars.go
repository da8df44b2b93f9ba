package adapters

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies the bar interval requested from a provider.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1m"
	Timeframe5Min  Timeframe = "5m"
	Timeframe15Min Timeframe = "15m"
	Timeframe1Hour Timeframe = "1h"
	Timeframe1Day  Timeframe = "1d"
)

// Duration returns the wall-clock span of a single bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe15Min:
		return 15 * time.Minute
	case Timeframe1Hour:
		return time.Hour
	case Timeframe1Day:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether tf is one of the supported intervals.
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

// Bar is a normalized OHLCV bar from any provider. Prices are decimal so
// provider payloads survive round-trips without float drift. Sanitization
// produces a new Bar; bars are never mutated in place once handed out.
type Bar struct {
	Symbol     string          `json:"symbol"`
	Timeframe  Timeframe       `json:"timeframe"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     int64           `json:"volume"`
	Timestamp  time.Time       `json:"timestamp"`   // bar open time, UTC
	Source     string          `json:"source"`      // provider name
	IngestedAt time.Time       `json:"ingested_at"` // when this process received it
}

// OHLCValid reports whether low <= {open, close} <= high.
func (b Bar) OHLCValid() bool {
	if b.High.Cmp(b.Open) < 0 || b.High.Cmp(b.Close) < 0 || b.High.Cmp(b.Low) < 0 {
		return false
	}
	if b.Low.Cmp(b.Open) > 0 || b.Low.Cmp(b.Close) > 0 {
		return false
	}
	return true
}

var symbolRe = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,11}$`)

// NormalizeSymbol uppercases and trims a symbol the way every adapter expects it.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidSymbol reports whether a normalized symbol matches the expected format.
func ValidSymbol(symbol string) bool {
	return symbolRe.MatchString(symbol)
}

// ExpectedBarCount estimates how many bars a provider should return for the
// range. For daily bars weekends are excluded; intraday ranges are a straight
// interval division. Used for the completeness score, so an estimate is fine.
func ExpectedBarCount(tf Timeframe, start, end time.Time) int {
	if !tf.Valid() || !end.After(start) {
		return 0
	}
	if tf == Timeframe1Day {
		n := 0
		for d := start; d.Before(end); d = d.Add(24 * time.Hour) {
			wd := d.Weekday()
			if wd != time.Saturday && wd != time.Sunday {
				n++
			}
		}
		if n == 0 {
			n = 1
		}
		return n
	}
	n := int(end.Sub(start) / tf.Duration())
	if n == 0 {
		n = 1
	}
	return n
}

func (b Bar) String() string {
	return fmt.Sprintf("%s %s o=%s h=%s l=%s c=%s v=%d @%s",
		b.Symbol, b.Timeframe, b.Open, b.High, b.Low, b.Close, b.Volume,
		b.Timestamp.UTC().Format(time.RFC3339))
}
