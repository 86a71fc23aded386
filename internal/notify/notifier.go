// Package notify provides a multi-channel notification system. Alerts are
// dispatched to all registered senders (Telegram, Discord) and can be
// filtered by event type so operators receive only the alerts they care
// about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the hub.
const (
	EventArbDetected  = "arb_detected"
	EventSessionError = "session_error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed event types; Notify only forwards messages whose event type
// is in the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
// Only events whose type appears in the events slice will be forwarded by
// Notify. If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders only if the event type is in
// the allowed list. Sender failures are logged, never propagated.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		return
	}
	for _, sender := range n.senders {
		if err := sender.Send(ctx, title, message); err != nil {
			n.logger.Warn("notification failed",
				slog.String("sender", sender.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}

// FormatOpportunity renders an opportunity alert body.
func FormatOpportunity(ticker string, buyVenue string, buyPrice float64, sellVenue string, sellPrice, spread float64) string {
	return fmt.Sprintf("%s: buy %s @ %.6g, sell %s @ %.6g (spread %.2f%%)",
		ticker, buyVenue, buyPrice, sellVenue, sellPrice, spread)
}
