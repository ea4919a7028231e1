// Package events publishes committed ledger mutations to the rest of the factory.
// Publishing is best effort: the ledger is the source of truth, a lost event is never a lost mutation.
package events

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/united-manufacturing-hub/shift-ledger/internal/metrics"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

// Publisher delivers a ledger event to one sink
type Publisher interface {
	Publish(ctx context.Context, event datamodel.LedgerEvent) error
	Name() string
	Close() error
}

// Notifier publishes events without ever failing the caller
type Notifier struct {
	publisher Publisher
}

// NewNotifier wraps p. A nil publisher drops every event.
func NewNotifier(p Publisher) *Notifier {
	return &Notifier{publisher: p}
}

// Notify publishes event, failures are logged and counted
func (n *Notifier) Notify(ctx context.Context, event datamodel.LedgerEvent) {
	if n == nil || n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		metrics.PublishFailures.WithLabelValues(n.publisher.Name()).Inc()
		zap.S().Warnf("Failed to publish %s event for lot %q stop %q to %s: %s", event.Type, event.LotID, event.StopID, n.publisher.Name(), err)
	}
}

// Close closes the underlying publisher
func (n *Notifier) Close() error {
	if n == nil || n.publisher == nil {
		return nil
	}
	return n.publisher.Close()
}

func encode(event datamodel.LedgerEvent) ([]byte, error) {
	return json.Marshal(event)
}

// topicSuffix turns "shift.closed" into []string{"shift", "closed"}
func topicSuffix(t datamodel.LedgerEventType) []string {
	return strings.Split(string(t), ".")
}

// NoopPublisher discards events
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, datamodel.LedgerEvent) error { return nil }
func (NoopPublisher) Name() string                                          { return "none" }
func (NoopPublisher) Close() error                                          { return nil }
