package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// QualityAlert is published when a validated batch scores below the
// configured quality threshold. Delivery (Slack/PagerDuty/email) is owned by
// an external collaborator; this package only defines the payload and a
// log-backed sink.
type QualityAlert struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	Aggregate    float64   `json:"aggregate"`
	Completeness float64   `json:"completeness"`
	Accuracy     float64   `json:"accuracy"`
	Timeliness   float64   `json:"timeliness"`
	Consistency  float64   `json:"consistency"`
	Rejected     int       `json:"rejected"`
	Timestamp    time.Time `json:"timestamp"`
}

// ProviderFailoverEvent is published on every circuit breaker state change.
type ProviderFailoverEvent struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	At        time.Time `json:"at"`
}

// NewID returns a fresh event ID.
func NewID() string { return uuid.NewString() }

// Notifier receives alert payloads. Implementations must be safe for
// concurrent use and must not block the caller for long.
type Notifier interface {
	NotifyQuality(ctx context.Context, alert QualityAlert)
	NotifyFailover(ctx context.Context, event ProviderFailoverEvent)
}

// LogNotifier writes alerts to the structured log. It is the default sink
// when no external delivery collaborator is wired in.
type LogNotifier struct {
	logger *logrus.Entry
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithField("component", "alerts")}
}

func (n *LogNotifier) NotifyQuality(_ context.Context, alert QualityAlert) {
	n.logger.WithFields(logrus.Fields{
		"id":           alert.ID,
		"symbol":       alert.Symbol,
		"timeframe":    alert.Timeframe,
		"aggregate":    alert.Aggregate,
		"completeness": alert.Completeness,
		"accuracy":     alert.Accuracy,
		"timeliness":   alert.Timeliness,
		"consistency":  alert.Consistency,
		"rejected":     alert.Rejected,
	}).Warn("data quality below threshold")
}

func (n *LogNotifier) NotifyFailover(_ context.Context, event ProviderFailoverEvent) {
	n.logger.WithFields(logrus.Fields{
		"id":       event.ID,
		"provider": event.Provider,
		"from":     event.FromState,
		"to":       event.ToState,
	}).Warn("provider circuit state changed")
}

// NopNotifier discards all alerts.
type NopNotifier struct{}

func (NopNotifier) NotifyQuality(context.Context, QualityAlert)           {}
func (NopNotifier) NotifyFailover(context.Context, ProviderFailoverEvent) {}
