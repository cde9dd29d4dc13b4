// Package notify delivers best-effort lead capture notifications derived
// from finished calls. Delivery failures are logged and swallowed; they
// never affect call handling.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxflow/voxflow/pkg/eventbus"
	"github.com/voxflow/voxflow/pkg/events"
)

const defaultTimeout = 5 * time.Second

// LeadNotifier forwards lead.captured events to an external endpoint, such
// as a CRM intake webhook.
type LeadNotifier struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewLeadNotifier(endpoint string, logger *slog.Logger) *LeadNotifier {
	return &LeadNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger.With("module", "notify"),
	}
}

// Register subscribes the notifier on the event bus. With no endpoint
// configured the events are consumed and dropped.
func (n *LeadNotifier) Register(bus eventbus.EventBus) error {
	return bus.Handle(events.LeadCapturedEvent, n.handle)
}

func (n *LeadNotifier) handle(ctx context.Context, event any) error {
	lead, ok := event.(*events.LeadCaptured)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	if n.endpoint == "" {
		return nil
	}

	if err := n.deliver(ctx, lead); err != nil {
		n.logger.WarnContext(ctx, "lead notification failed",
			"call_id", lead.CallID, "caller", lead.Caller, "error", err)
	}

	// Always ack: lead capture is best effort, redelivery is not wanted.
	return nil
}

func (n *LeadNotifier) deliver(ctx context.Context, lead *events.LeadCaptured) error {
	deliverCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	payload, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}

	req, err := http.NewRequestWithContext(deliverCtx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "lead notification delivered",
		"call_id", lead.CallID, "caller", lead.Caller)

	return nil
}
