package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// In-process metrics registry. The pipeline only emits values; dashboards
// and scraping live with an external collaborator, so the dump format is
// plain JSON rather than Prometheus text on purpose.

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64
	gauges   map[string]map[string]float64
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1)
}

func IncCounterBy(name string, labels map[string]string, value int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)] += value
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	m[canonLabels(labels)] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration observation in milliseconds.
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(duration.Milliseconds()), labels)
}

// CounterValue returns the summed counter across label sets, for tests and
// the health endpoint.
func CounterValue(name string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var total int64
	for _, v := range reg.counters[name] {
		total += v
	}
	return total
}

// GaugeValue returns the gauge for an exact label set.
func GaugeValue(name string, labels map[string]string) (float64, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		return 0, false
	}
	v, ok := m[canonLabels(labels)]
	return v, ok
}

// Handler dumps the registry as JSON for quick checks.
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

var startTime = time.Now()

// HealthStatus is the payload of the healthz endpoint: cache hit rates per
// tier, provider circuit states and the last quality score, which is what an
// operator checks first when a feed looks wrong.
type HealthStatus struct {
	Status      string             `json:"status"`
	Timestamp   string             `json:"timestamp"`
	Uptime      string             `json:"uptime"`
	CacheHits   map[string]int64   `json:"cache_hits"`
	CacheMisses int64              `json:"cache_misses"`
	Breakers    map[string]float64 `json:"circuit_breaker_state"`
	Rejections  int64              `json:"validation_rejections"`
}

// HealthHandler reports degraded when any circuit breaker is open.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reg.mu.Lock()
		status := "healthy"
		breakers := map[string]float64{}
		for labels, v := range reg.gauges["circuit_breaker_state"] {
			breakers[labels] = v
			if v >= 2 { // open
				status = "degraded"
			}
		}
		hits := map[string]int64{}
		for labels, v := range reg.counters["cache_hits_total"] {
			hits[labels] = v
		}
		var misses, rejections int64
		for _, v := range reg.counters["cache_misses_total"] {
			misses += v
		}
		for _, v := range reg.counters["validation_rejected_total"] {
			rejections += v
		}
		reg.mu.Unlock()

		health := HealthStatus{
			Status:      status,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Uptime:      time.Since(startTime).String(),
			CacheHits:   hits,
			CacheMisses: misses,
			Breakers:    breakers,
			Rejections:  rejections,
		}
		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusPartialContent
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(health)
	})
}
