package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
)

const notifyEventsPath = "/api/events"

// Notifier receives the events the core emits. Delivery is a collaborator
// concern: implementations may fail without affecting the financial
// mutation that triggered the event.
type Notifier interface {
	CommissionCredited(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) error
	PayoutSettled(ctx context.Context, payout internal.Payout) error
}

type notifyEvent struct {
	Type     string               `json:"type"`
	Referrer internal.ReferrerRef `json:"referrer"`
	OrderID  string               `json:"order_id,omitempty"`
	Amount   internal.Money       `json:"amount,omitempty"`
	PayoutID string               `json:"payout_id,omitempty"`
	Status   string               `json:"status,omitempty"`
}

// HTTPNotifier posts events to the notification collaborator.
type HTTPNotifier struct {
	notifyAddress string
	client        http.Client
}

var _ Notifier = (*HTTPNotifier)(nil)

func NewHTTPNotifier(notifyAddress string) *HTTPNotifier {
	return &HTTPNotifier{notifyAddress: notifyAddress}
}

func (n *HTTPNotifier) CommissionCredited(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) error {
	return n.post(ctx, notifyEvent{
		Type:     "commission_credited",
		Referrer: ref,
		OrderID:  orderID,
		Amount:   amount,
	})
}

func (n *HTTPNotifier) PayoutSettled(ctx context.Context, payout internal.Payout) error {
	return n.post(ctx, notifyEvent{
		Type:     "payout_settled",
		Referrer: payout.Referrer,
		Amount:   payout.Amount,
		PayoutID: payout.ID.String(),
		Status:   string(payout.Status),
	})
}

func (n *HTTPNotifier) post(ctx context.Context, event notifyEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event error: %w", event.Type, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.notifyAddress+notifyEventsPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s event request error: %w", event.Type, err)
	}
	req.Header.Set("Content-Type", "application/json")
	response, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s event error: %w", event.Type, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusAccepted {
		return fmt.Errorf("got status %v from notification API", response.StatusCode)
	}
	return nil
}
