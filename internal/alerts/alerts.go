// Package alerts delivers operator notifications for events that need a
// human: ledger inconsistencies, the daily loss breaker, provider outages.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans an alert out to every configured channel
type Manager struct {
	alerters []Alerter
}

// NewManager creates an alert manager. With no alerters every Send is a no-op.
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{alerters: alerters}
}

// Send sends an alert to all configured alerters
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}
	return lastErr
}

// SendCritical is a convenience method for sending critical alerts
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityCritical, Metadata: metadata})
}

// SendWarning is a convenience method for sending warning alerts
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityWarning, Metadata: metadata})
}

// SendInfo is a convenience method for sending info alerts
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityInfo, Metadata: metadata})
}

// LedgerInconsistent reports a cash/position accounting mismatch. The
// monitor halts new entries until an operator reconciles, so this is
// always critical.
func (m *Manager) LedgerInconsistent(ctx context.Context, detail string, expected, actual float64) {
	_ = m.SendCritical(ctx, "Ledger inconsistency", detail, map[string]interface{}{
		"expected": fmt.Sprintf("%.2f", expected),
		"actual":   fmt.Sprintf("%.2f", actual),
	})
}

// DailyLossBreaker reports the daily loss limit tripping
func (m *Manager) DailyLossBreaker(ctx context.Context, lossPct float64, closedPositions int) {
	_ = m.SendCritical(ctx, "Daily loss limit reached",
		fmt.Sprintf("Realized loss of %.2f%% hit the daily limit, all positions closed", lossPct),
		map[string]interface{}{
			"loss_percent":     fmt.Sprintf("%.2f", lossPct),
			"positions_closed": closedPositions,
		})
}

// ProviderDisabled reports a quote provider entering its cool-off window
func (m *Manager) ProviderDisabled(ctx context.Context, provider string, coolOff time.Duration) {
	_ = m.SendWarning(ctx, "Quote provider disabled",
		fmt.Sprintf("%s is rate limited and disabled for %s", provider, coolOff),
		map[string]interface{}{"provider": provider})
}

// LogAlerter logs alerts using zerolog, always present as the fallback channel
type LogAlerter struct{}

// NewLogAlerter creates a log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send implements Alerter
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Log()
	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	case SeverityInfo:
		event = log.Info()
	}

	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(alert.Message)

	return nil
}
