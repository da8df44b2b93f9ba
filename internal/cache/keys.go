package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/SamoraDC/marketdata/internal/adapters"
)

// Key identifies one cached bar range: symbol + timeframe + range digest.
// The digest keeps keys short and uniform regardless of range precision.
type Key struct {
	Symbol    string
	Timeframe adapters.Timeframe
	Start     time.Time
	End       time.Time
}

// NewKey normalizes the symbol and truncates the range to UTC seconds so
// equivalent requests hash identically.
func NewKey(symbol string, tf adapters.Timeframe, start, end time.Time) Key {
	return Key{
		Symbol:    adapters.NormalizeSymbol(symbol),
		Timeframe: tf,
		Start:     start.UTC().Truncate(time.Second),
		End:       end.UTC().Truncate(time.Second),
	}
}

// String renders "SYMBOL:tf:digest"; Prefix covers every range for the same
// symbol+timeframe, which is the invalidation unit.
func (k Key) String() string {
	h := sha256.Sum256([]byte(k.Start.Format(time.RFC3339) + "|" + k.End.Format(time.RFC3339)))
	return k.Prefix() + hex.EncodeToString(h[:6])
}

// Prefix is the invalidation prefix for symbol+timeframe.
func (k Key) Prefix() string {
	return KeyPrefix(k.Symbol, k.Timeframe)
}

// KeyPrefix builds the invalidation prefix without a range.
func KeyPrefix(symbol string, tf adapters.Timeframe) string {
	return fmt.Sprintf("%s:%s:", adapters.NormalizeSymbol(symbol), tf)
}
