package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-apiversions/core"
)

type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	AccountID  string      `json:"account_id,omitempty"`
	Payload    core.Params `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Subscription is a webhook endpoint pinned to an API version. Target
// overrides the default event.<type> change target.
type Subscription struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	APIVersion string `json:"api_version,omitempty"`
	Target     string `json:"target,omitempty"`
	Secret     string `json:"-"`
}

type Delivery struct {
	ID           string       `json:"id"`
	Event        Event        `json:"event"`
	Subscription Subscription `json:"subscription"`
	Attempt      int          `json:"attempt"`
}

// ShapedDelivery is a delivery whose payload already matches the
// subscriber's API version.
type ShapedDelivery struct {
	DeliveryID     string
	SubscriptionID string
	URL            string
	Secret         string
	EventID        string
	EventType      string
	APIVersion     string
	Attempt        int
	Payload        core.Params
}

type SendResult struct {
	StatusCode int
	Metadata   map[string]any
}

type Sender interface {
	Send(ctx context.Context, delivery ShapedDelivery) (SendResult, error)
}

type SenderFunc func(ctx context.Context, delivery ShapedDelivery) (SendResult, error)

func (fn SenderFunc) Send(ctx context.Context, delivery ShapedDelivery) (SendResult, error) {
	return fn(ctx, delivery)
}

type DeliveryResult struct {
	Delivered  bool
	Coalesced  bool
	StatusCode int
	APIVersion string
	Metadata   map[string]any
}

// DeliveryError classifies a failed delivery. Retryable failures should be
// requeued; the rest should be dead-lettered.
type DeliveryError struct {
	DeliveryID string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("webhooks: delivery %s failed with status %d: %v", e.DeliveryID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("webhooks: delivery %s failed: %v", e.DeliveryID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRetryable reports whether err is worth another attempt. Errors that are
// not DeliveryErrors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Retryable
	}
	return true
}

func retryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}
