package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-apiversions/changes"
	"github.com/goliatone/go-apiversions/core"
	glog "github.com/goliatone/go-logger/glog"
)

// ResponseTransformer is the engine surface the shaper needs.
type ResponseTransformer interface {
	CanonicalVersion() string
	ApplyResponseChanges(ctx context.Context, req core.ApplyChangesRequest) (core.Params, error)
}

type Shaper struct {
	transformer ResponseTransformer
	sender      Sender
	burst       BurstController
	logger      core.Logger
	now         func() time.Time
}

type ShaperOption func(*Shaper)

func WithBurstController(controller BurstController) ShaperOption {
	return func(s *Shaper) {
		s.burst = controller
	}
}

func WithLogger(logger core.Logger) ShaperOption {
	return func(s *Shaper) {
		s.logger = glog.Ensure(logger)
	}
}

func WithClock(now func() time.Time) ShaperOption {
	return func(s *Shaper) {
		if now != nil {
			s.now = now
		}
	}
}

func NewShaper(transformer ResponseTransformer, sender Sender, opts ...ShaperOption) (*Shaper, error) {
	if transformer == nil {
		return nil, fmt.Errorf("webhooks: response transformer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("webhooks: sender is required")
	}
	shaper := &Shaper{
		transformer: transformer,
		sender:      sender,
		logger:      glog.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(shaper)
		}
	}
	return shaper, nil
}

// EventTarget returns the change target used to shape a delivery.
func EventTarget(delivery Delivery) string {
	if target := strings.TrimSpace(delivery.Subscription.Target); target != "" {
		return target
	}
	return changes.EventTarget(strings.TrimSpace(delivery.Event.Type))
}

// Shape converts the canonical event payload to the subscription version.
// Subscriptions without a pinned version receive the canonical payload.
func (s *Shaper) Shape(ctx context.Context, delivery Delivery) (ShapedDelivery, error) {
	if s == nil || s.transformer == nil {
		return ShapedDelivery{}, fmt.Errorf("webhooks: shaper is not configured")
	}
	if strings.TrimSpace(delivery.Event.Type) == "" {
		return ShapedDelivery{}, &DeliveryError{
			DeliveryID: delivery.ID,
			Err:        fmt.Errorf("event type is required"),
		}
	}
	if strings.TrimSpace(delivery.Subscription.URL) == "" {
		return ShapedDelivery{}, &DeliveryError{
			DeliveryID: delivery.ID,
			Err:        fmt.Errorf("subscription url is required"),
		}
	}

	canonical := s.transformer.CanonicalVersion()
	version := strings.TrimSpace(delivery.Subscription.APIVersion)
	if version == "" {
		version = canonical
	}
	payload, err := s.transformer.ApplyResponseChanges(ctx, core.ApplyChangesRequest{
		Target:      EventTarget(delivery),
		FromVersion: canonical,
		ToVersion:   version,
		Params:      delivery.Event.Payload,
	})
	if err != nil {
		return ShapedDelivery{}, &DeliveryError{
			DeliveryID: delivery.ID,
			Retryable:  core.IsTransformationTimeout(err),
			Err:        err,
		}
	}

	return ShapedDelivery{
		DeliveryID:     delivery.ID,
		SubscriptionID: delivery.Subscription.ID,
		URL:            strings.TrimSpace(delivery.Subscription.URL),
		Secret:         delivery.Subscription.Secret,
		EventID:        delivery.Event.ID,
		EventType:      delivery.Event.Type,
		APIVersion:     version,
		Attempt:        delivery.Attempt,
		Payload:        payload,
	}, nil
}

// Deliver shapes and sends one delivery. Deliveries swallowed by the burst
// controller report Coalesced and are not sent.
func (s *Shaper) Deliver(ctx context.Context, delivery Delivery) (DeliveryResult, error) {
	if s == nil || s.sender == nil {
		return DeliveryResult{}, fmt.Errorf("webhooks: shaper is not configured")
	}
	logger := s.logger.WithContext(ctx)

	if s.burst != nil {
		decision, err := s.burst.Allow(ctx, delivery)
		if err != nil {
			return DeliveryResult{}, err
		}
		if !decision.Allow {
			metadata := ensureMetadata(decision.Metadata)
			metadata["delivery_id"] = delivery.ID
			logger.Debug("webhook delivery coalesced", "delivery_id", delivery.ID, "event_type", delivery.Event.Type)
			return DeliveryResult{Coalesced: true, Metadata: metadata}, nil
		}
	}

	shaped, err := s.Shape(ctx, delivery)
	if err != nil {
		logger.Warn("webhook delivery shaping failed",
			"delivery_id", delivery.ID,
			"event_type", delivery.Event.Type,
			"api_version", delivery.Subscription.APIVersion,
			"error", err,
		)
		return DeliveryResult{}, err
	}

	startedAt := s.now()
	sent, err := s.sender.Send(ctx, shaped)
	if err != nil {
		return DeliveryResult{APIVersion: shaped.APIVersion}, &DeliveryError{
			DeliveryID: delivery.ID,
			StatusCode: sent.StatusCode,
			Retryable:  true,
			Err:        err,
		}
	}

	result := DeliveryResult{
		Delivered:  sent.StatusCode >= http.StatusOK && sent.StatusCode < http.StatusMultipleChoices,
		StatusCode: sent.StatusCode,
		APIVersion: shaped.APIVersion,
		Metadata:   ensureMetadata(sent.Metadata),
	}
	result.Metadata["delivery_id"] = delivery.ID
	result.Metadata["duration_ms"] = s.now().Sub(startedAt).Milliseconds()

	if !result.Delivered {
		logger.Warn("webhook delivery rejected",
			"delivery_id", delivery.ID,
			"status", sent.StatusCode,
			"url", shaped.URL,
		)
		return result, &DeliveryError{
			DeliveryID: delivery.ID,
			StatusCode: sent.StatusCode,
			Retryable:  retryableStatus(sent.StatusCode),
			Err:        fmt.Errorf("subscriber returned status %d", sent.StatusCode),
		}
	}
	if s.burst != nil {
		if err := s.burst.Record(ctx, delivery); err != nil {
			logger.Warn("webhook burst record failed", "delivery_id", delivery.ID, "error", err)
		}
	}
	logger.Debug("webhook delivered",
		"delivery_id", delivery.ID,
		"api_version", shaped.APIVersion,
		"status", sent.StatusCode,
	)
	return result, nil
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}
