package validate

import (
	"math"
	"sync"
)

// baseline keeps rolling mean/stddev for one symbol (Welford), for both
// volume and close-to-close returns, plus the previous close for gap checks.
// Each symbol owns its baseline and its lock, so validating different
// symbols never contends.
type baseline struct {
	mu sync.Mutex

	volCount int64
	volMean  float64
	volM2    float64

	retCount int64
	retMean  float64
	retM2    float64

	lastClose float64
}

// volumeStats returns (mean, stddev, samples) without mutating.
func (b *baseline) volumeStats() (float64, float64, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volMean, b.volStddevLocked(), b.volCount
}

func (b *baseline) volStddevLocked() float64 {
	if b.volCount < 2 {
		return 0
	}
	return math.Sqrt(b.volM2 / float64(b.volCount-1))
}

// returnZScore computes the z-score of the close-to-close return against the
// rolling return baseline, plus the absolute gap fraction versus the previous
// close. ok is false when there is no usable history yet.
func (b *baseline) returnZScore(close float64) (z float64, gap float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastClose <= 0 {
		return 0, 0, false
	}
	ret := close/b.lastClose - 1
	gap = math.Abs(ret)
	if b.retCount < 2 {
		return 0, gap, true
	}
	std := math.Sqrt(b.retM2 / float64(b.retCount-1))
	if std == 0 {
		return 0, gap, true
	}
	return (ret - b.retMean) / std, gap, true
}

// update folds an accepted bar into the rolling statistics. Only called from
// the sanitization stage, after the bar passed every preceding stage.
func (b *baseline) update(close float64, volume float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.volCount++
	d := volume - b.volMean
	b.volMean += d / float64(b.volCount)
	b.volM2 += d * (volume - b.volMean)

	if b.lastClose > 0 {
		ret := close/b.lastClose - 1
		b.retCount++
		dr := ret - b.retMean
		b.retMean += dr / float64(b.retCount)
		b.retM2 += dr * (ret - b.retMean)
	}
	b.lastClose = close
}

// baselineSet maps symbols to their baselines. The map lock only guards
// lookup/insert; per-symbol statistics are guarded by the baseline's own
// mutex.
type baselineSet struct {
	mu        sync.RWMutex
	baselines map[string]*baseline
}

func newBaselineSet() *baselineSet {
	return &baselineSet{baselines: make(map[string]*baseline)}
}

func (s *baselineSet) get(symbol string) *baseline {
	s.mu.RLock()
	b, ok := s.baselines[symbol]
	s.mu.RUnlock()
	if ok {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.baselines[symbol]; ok {
		return b
	}
	b = &baseline{}
	s.baselines[symbol] = b
	return b
}
