package validate

// QualityWeights are the aggregate score weights. They should sum to 1.
type QualityWeights struct {
	Accuracy     float64 `yaml:"accuracy"`
	Completeness float64 `yaml:"completeness"`
	Timeliness   float64 `yaml:"timeliness"`
	Consistency  float64 `yaml:"consistency"`
}

// DefaultQualityWeights returns the production weighting:
// 0.4 accuracy, 0.3 completeness, 0.2 timeliness, 0.1 consistency.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{Accuracy: 0.4, Completeness: 0.3, Timeliness: 0.2, Consistency: 0.1}
}

// QualityScore is the per-batch composite. All components are in [0,1].
//   - completeness: received bars / expected bars
//   - accuracy: pass rate of the basic/OHLC/volume stages
//   - timeliness: fraction of bars received within the SLA latency
//   - consistency: fraction not flagged or rejected by anomaly detection
type QualityScore struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Timeliness   float64 `json:"timeliness"`
	Consistency  float64 `json:"consistency"`
	Aggregate    float64 `json:"aggregate"`
}

// Score computes the weighted aggregate.
func Score(completeness, accuracy, timeliness, consistency float64, w QualityWeights) QualityScore {
	s := QualityScore{
		Completeness: clamp01(completeness),
		Accuracy:     clamp01(accuracy),
		Timeliness:   clamp01(timeliness),
		Consistency:  clamp01(consistency),
	}
	s.Aggregate = w.Accuracy*s.Accuracy +
		w.Completeness*s.Completeness +
		w.Timeliness*s.Timeliness +
		w.Consistency*s.Consistency
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
