package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SamoraDC/marketdata/internal/adapters"
	"github.com/SamoraDC/marketdata/internal/observ"
)

// Verdict is the per-bar outcome of the pipeline.
type Verdict string

const (
	VerdictPass     Verdict = "pass"
	VerdictFlagged  Verdict = "flagged"
	VerdictRejected Verdict = "rejected"
)

// Severity grades how bad a flagged/rejected bar is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Stage names, used in rejection records and metrics labels.
const (
	StageBasic    = "basic"
	StageOHLC     = "ohlc"
	StageVolume   = "volume"
	StageAnomaly  = "anomaly"
	StageSanitize = "sanitize"
)

// Result is the per-bar verdict with the ordered list of rules that fired.
type Result struct {
	Bar      adapters.Bar
	Verdict  Verdict
	Severity Severity
	Reasons  []string
}

// Rejection records a dropped bar and the stage that dropped it.
type Rejection struct {
	Bar     adapters.Bar
	Stage   string
	Reasons []string
}

// RejectedError is surfaced to callers only when every bar in a requested
// range was rejected; individual bad bars are dropped silently (logged and
// counted) and the rest of the batch proceeds.
type RejectedError struct {
	Reasons []string
}

func (e *RejectedError) Error() string {
	return "all bars rejected: " + strings.Join(e.Reasons, ", ")
}

// Config holds the validation thresholds.
type Config struct {
	MaxFutureSkew      time.Duration // clock-skew tolerance for timestamps
	Epoch              time.Time     // bars before this are rejected
	VolumeZThreshold   float64       // volume outlier flag threshold
	ZScoreThreshold    float64       // price-change z-score reject threshold
	GapThreshold       float64       // fractional gap vs previous close, e.g. 0.10
	MinBaselineSamples int64         // samples required before outlier checks fire
	PricePrecision     int32         // decimal places kept by sanitization
	SLALatency         time.Duration // 0 disables the timeliness check
	PassThreshold      float64       // aggregate quality below this raises AlertRequired
	Weights            QualityWeights
}

// DefaultConfig matches the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxFutureSkew:      5 * time.Minute,
		Epoch:              time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		VolumeZThreshold:   4.0,
		ZScoreThreshold:    4.0,
		GapThreshold:       0.10,
		MinBaselineSamples: 20,
		PricePrecision:     4,
		SLALatency:         0,
		PassThreshold:      0.95,
		Weights:            DefaultQualityWeights(),
	}
}

// BatchResult is the outcome of validating one fetched batch.
type BatchResult struct {
	Bars          []adapters.Bar // sanitized pass/flagged bars, input order kept
	Results       []Result
	Rejections    []Rejection
	Flagged       int
	Quality       QualityScore
	AlertRequired bool
}

// Validator runs the five-stage pipeline: basic -> OHLC -> volume ->
// anomaly -> sanitize. A rejection short-circuits the remaining stages for
// that bar only; the pipeline continues with the next bar. Rolling baselines
// are keyed and locked per symbol.
type Validator struct {
	cfg       Config
	baselines *baselineSet
	logger    *logrus.Entry
	now       func() time.Time
}

// NewValidator builds a validator; zero-value config fields fall back to
// defaults.
func NewValidator(cfg Config, logger *logrus.Logger) *Validator {
	def := DefaultConfig()
	if cfg.MaxFutureSkew <= 0 {
		cfg.MaxFutureSkew = def.MaxFutureSkew
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = def.Epoch
	}
	if cfg.VolumeZThreshold <= 0 {
		cfg.VolumeZThreshold = def.VolumeZThreshold
	}
	if cfg.ZScoreThreshold <= 0 {
		cfg.ZScoreThreshold = def.ZScoreThreshold
	}
	if cfg.GapThreshold <= 0 {
		cfg.GapThreshold = def.GapThreshold
	}
	if cfg.MinBaselineSamples <= 0 {
		cfg.MinBaselineSamples = def.MinBaselineSamples
	}
	if cfg.PricePrecision <= 0 {
		cfg.PricePrecision = def.PricePrecision
	}
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = def.PassThreshold
	}
	if cfg.Weights == (QualityWeights{}) {
		cfg.Weights = def.Weights
	}
	return &Validator{
		cfg:       cfg,
		baselines: newBaselineSet(),
		logger:    logger.WithField("component", "validator"),
		now:       time.Now,
	}
}

// ValidateBatch runs every bar through the pipeline and scores the batch.
// expected is the bar count the range should have produced (completeness).
func (v *Validator) ValidateBatch(bars []adapters.Bar, expected int) BatchResult {
	out := BatchResult{
		Results: make([]Result, 0, len(bars)),
	}
	var accurate, timely, consistent int

	for _, bar := range bars {
		res, stage := v.validateBar(bar)
		out.Results = append(out.Results, res)

		stagePassed3 := stage != StageBasic && stage != StageOHLC && stage != StageVolume
		if stagePassed3 {
			accurate++
		}
		if v.timely(bar) {
			timely++
		}
		if stage != StageAnomaly && !hasReason(res.Reasons, "zscore_elevated") {
			consistent++
		}

		switch res.Verdict {
		case VerdictRejected:
			out.Rejections = append(out.Rejections, Rejection{Bar: bar, Stage: stage, Reasons: res.Reasons})
			observ.IncCounter("validation_rejected_total", map[string]string{
				"symbol": bar.Symbol, "stage": stage,
			})
			v.logger.WithFields(logrus.Fields{
				"symbol":  bar.Symbol,
				"stage":   stage,
				"reasons": strings.Join(res.Reasons, ","),
				"bar":     bar.String(),
			}).Debug("bar rejected")
		case VerdictFlagged:
			out.Flagged++
			out.Bars = append(out.Bars, res.Bar)
			observ.IncCounter("validation_flagged_total", map[string]string{"symbol": bar.Symbol})
		default:
			out.Bars = append(out.Bars, res.Bar)
		}
	}

	total := len(bars)
	completeness, accuracy, timeliness, consistency := 1.0, 1.0, 1.0, 1.0
	if expected > 0 {
		completeness = float64(total) / float64(expected)
	}
	if total > 0 {
		accuracy = float64(accurate) / float64(total)
		consistency = float64(consistent) / float64(total)
		if v.cfg.SLALatency > 0 {
			timeliness = float64(timely) / float64(total)
		}
	}
	out.Quality = Score(completeness, accuracy, timeliness, consistency, v.cfg.Weights)
	out.AlertRequired = out.Quality.Aggregate < v.cfg.PassThreshold

	observ.SetGauge("quality_score", out.Quality.Aggregate, nil)
	return out
}

// validateBar runs one bar through the stages. The returned stage is the one
// that rejected the bar, or StageSanitize when it survived the pipeline.
func (v *Validator) validateBar(bar adapters.Bar) (Result, string) {
	if reasons := v.stageBasic(bar); len(reasons) > 0 {
		return Result{Bar: bar, Verdict: VerdictRejected, Severity: SeverityHigh, Reasons: reasons}, StageBasic
	}
	if !bar.OHLCValid() {
		return Result{Bar: bar, Verdict: VerdictRejected, Severity: SeverityHigh,
			Reasons: []string{"ohlc_invariant"}}, StageOHLC
	}

	base := v.baselines.get(bar.Symbol)
	verdict, severity := VerdictPass, SeverityLow
	var reasons []string

	if bar.Volume < 0 {
		return Result{Bar: bar, Verdict: VerdictRejected, Severity: SeverityHigh,
			Reasons: []string{"negative_volume"}}, StageVolume
	}
	if mean, std, n := base.volumeStats(); n >= v.cfg.MinBaselineSamples && std > 0 {
		if z := (float64(bar.Volume) - mean) / std; z > v.cfg.VolumeZThreshold || z < -v.cfg.VolumeZThreshold {
			verdict, severity = VerdictFlagged, SeverityMedium
			reasons = append(reasons, "volume_outlier")
		}
	}

	closeF, _ := bar.Close.Float64()
	if z, gap, ok := base.returnZScore(closeF); ok {
		switch {
		case gap > v.cfg.GapThreshold:
			return Result{Bar: bar, Verdict: VerdictRejected, Severity: SeverityHigh,
				Reasons: append(reasons, fmt.Sprintf("price_gap_%.1f%%", gap*100))}, StageAnomaly
		case z > v.cfg.ZScoreThreshold || z < -v.cfg.ZScoreThreshold:
			return Result{Bar: bar, Verdict: VerdictRejected, Severity: SeverityHigh,
				Reasons: append(reasons, "zscore_anomaly")}, StageAnomaly
		case z > 0.75*v.cfg.ZScoreThreshold || z < -0.75*v.cfg.ZScoreThreshold:
			verdict, severity = VerdictFlagged, SeverityMedium
			reasons = append(reasons, "zscore_elevated")
		}
	}

	sanitized := v.sanitize(bar)
	base.update(closeF, float64(bar.Volume))
	return Result{Bar: sanitized, Verdict: verdict, Severity: severity, Reasons: reasons}, StageSanitize
}

func (v *Validator) stageBasic(bar adapters.Bar) []string {
	var reasons []string
	if bar.Symbol == "" || !adapters.ValidSymbol(bar.Symbol) {
		reasons = append(reasons, "bad_symbol")
	}
	if !bar.Timeframe.Valid() {
		reasons = append(reasons, "bad_timeframe")
	}
	if bar.Open.Sign() <= 0 || bar.High.Sign() <= 0 || bar.Low.Sign() <= 0 || bar.Close.Sign() <= 0 {
		reasons = append(reasons, "nonpositive_price")
	}
	if bar.Timestamp.IsZero() {
		reasons = append(reasons, "missing_timestamp")
	} else {
		if bar.Timestamp.After(v.now().Add(v.cfg.MaxFutureSkew)) {
			reasons = append(reasons, "timestamp_in_future")
		}
		if bar.Timestamp.Before(v.cfg.Epoch) {
			reasons = append(reasons, "timestamp_before_epoch")
		}
	}
	return reasons
}

// sanitize returns a new bar with prices rounded to instrument precision.
// The input bar is never mutated.
func (v *Validator) sanitize(bar adapters.Bar) adapters.Bar {
	out := bar
	out.Open = bar.Open.Round(v.cfg.PricePrecision)
	out.High = bar.High.Round(v.cfg.PricePrecision)
	out.Low = bar.Low.Round(v.cfg.PricePrecision)
	out.Close = bar.Close.Round(v.cfg.PricePrecision)
	if out.IngestedAt.IsZero() {
		out.IngestedAt = v.now().UTC()
	}
	return out
}

func hasReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}

func (v *Validator) timely(bar adapters.Bar) bool {
	if v.cfg.SLALatency <= 0 {
		return true
	}
	received := bar.IngestedAt
	if received.IsZero() {
		received = v.now()
	}
	return received.Sub(bar.Timestamp) <= v.cfg.SLALatency+bar.Timeframe.Duration()
}
