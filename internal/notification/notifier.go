// Package notification delivers trading alerts to external channels
// (Telegram, webhooks). The engine uses it for the states an operator
// must see: unknown order outcomes, drawdown halts, auth failures.
package notification

import (
	"context"
	"log/slog"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Epic, DealID and Leg
// identify the trading context; backends render or forward them so an
// operator can act without consulting the logs.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Epic    string     `json:"epic,omitempty"`
	DealID  string     `json:"deal_id,omitempty"`
	Leg     string     `json:"leg,omitempty"` // open, close or reverse
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them (dev default).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	attrs := []any{
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
		slog.String("message", alert.Message),
	}
	if alert.Epic != "" {
		attrs = append(attrs, slog.String("epic", alert.Epic))
	}
	if alert.DealID != "" {
		attrs = append(attrs, slog.String("deal_id", alert.DealID))
	}
	if alert.Leg != "" {
		attrs = append(attrs, slog.String("leg", alert.Leg))
	}
	slog.Info("alert", attrs...)
	return nil
}

// Multi delivers each alert to every backend, returning the first error.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
