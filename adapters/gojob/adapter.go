package gojob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-apiversions/core"
	"github.com/goliatone/go-apiversions/webhooks"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDShapeDelivery      = "apiversions.webhooks.deliver"
	ScriptPathShapeDelivery = "apiversions/webhooks/deliver"

	dedupPolicyDrop  = "drop"
	defaultIdleDelay = 500 * time.Millisecond
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. A
// retry past MaxAttempts becomes terminal: dead-lettered when
// DeadLetterOnMax is set, failed otherwise.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

// ToExecutionMessage maps a webhook delivery to a go-job message. The
// subscription secret is never put on the queue.
func ToExecutionMessage(delivery webhooks.Delivery) (*job.ExecutionMessage, error) {
	deliveryID := strings.TrimSpace(delivery.ID)
	if deliveryID == "" {
		return nil, fmt.Errorf("gojob: delivery id is required")
	}
	payload, err := json.Marshal(copyAnyMap(delivery.Event.Payload))
	if err != nil {
		return nil, fmt.Errorf("gojob: encode payload of delivery %q: %w", deliveryID, err)
	}
	params := map[string]any{
		"delivery_id":      deliveryID,
		"attempt":          delivery.Attempt,
		"event_id":         delivery.Event.ID,
		"event_type":       delivery.Event.Type,
		"account_id":       delivery.Event.AccountID,
		"payload":          json.RawMessage(payload),
		"subscription_id":  delivery.Subscription.ID,
		"subscription_url": delivery.Subscription.URL,
		"api_version":      delivery.Subscription.APIVersion,
		"target":           delivery.Subscription.Target,
	}
	if !delivery.Event.OccurredAt.IsZero() {
		params["occurred_at"] = delivery.Event.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return &job.ExecutionMessage{
		JobID:          JobIDShapeDelivery,
		ScriptPath:     ScriptPathShapeDelivery,
		Parameters:     params,
		IdempotencyKey: deliveryID,
		DedupPolicy:    job.DeduplicationPolicy(dedupPolicyDrop),
	}, nil
}

// FromExecutionMessage maps a go-job message back to a webhook delivery.
func FromExecutionMessage(msg *job.ExecutionMessage) (webhooks.Delivery, error) {
	if msg == nil {
		return webhooks.Delivery{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDShapeDelivery {
		return webhooks.Delivery{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	params := msg.Parameters
	payload, err := payloadParam(params)
	if err != nil {
		return webhooks.Delivery{}, err
	}
	delivery := webhooks.Delivery{
		ID:      stringParam(params, "delivery_id"),
		Attempt: intParam(params, "attempt"),
		Event: webhooks.Event{
			ID:        stringParam(params, "event_id"),
			Type:      stringParam(params, "event_type"),
			AccountID: stringParam(params, "account_id"),
			Payload:   payload,
		},
		Subscription: webhooks.Subscription{
			ID:         stringParam(params, "subscription_id"),
			URL:        stringParam(params, "subscription_url"),
			APIVersion: stringParam(params, "api_version"),
			Target:     stringParam(params, "target"),
		},
	}
	if delivery.ID == "" {
		delivery.ID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if delivery.ID == "" {
		return webhooks.Delivery{}, fmt.Errorf("gojob: delivery id is required")
	}
	if raw := stringParam(params, "occurred_at"); raw != "" {
		occurredAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return webhooks.Delivery{}, fmt.Errorf("gojob: parse occurred_at: %w", err)
		}
		delivery.Event.OccurredAt = occurredAt
	}
	return delivery, nil
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, delivery webhooks.Delivery) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := ToExecutionMessage(delivery)
	if err != nil {
		return err
	}
	if _, err := a.enqueuer.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("gojob: enqueue delivery %q: %w", delivery.ID, err)
	}
	return nil
}

// DeliveryShaper is the webhooks.Shaper surface the worker needs.
type DeliveryShaper interface {
	Deliver(ctx context.Context, delivery webhooks.Delivery) (webhooks.DeliveryResult, error)
}

// SecretLookup resolves the signing secret of a subscription.
type SecretLookup func(ctx context.Context, subscriptionID string) (string, error)

type DeliveryWorker struct {
	shaper  DeliveryShaper
	policy  RetryPolicy
	backoff webhooks.RetryPolicy
	secrets SecretLookup
	logger  glog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

type WorkerOption func(*DeliveryWorker)

func WithBackoff(backoff webhooks.RetryPolicy) WorkerOption {
	return func(w *DeliveryWorker) {
		if backoff != nil {
			w.backoff = backoff
		}
	}
}

func WithSecretLookup(lookup SecretLookup) WorkerOption {
	return func(w *DeliveryWorker) {
		w.secrets = lookup
	}
}

func WithLogger(logger glog.Logger) WorkerOption {
	return func(w *DeliveryWorker) {
		w.logger = glog.Ensure(logger)
	}
}

func NewDeliveryWorker(shaper DeliveryShaper, policy RetryPolicy, opts ...WorkerOption) (*DeliveryWorker, error) {
	if shaper == nil {
		return nil, fmt.Errorf("gojob: delivery shaper is required")
	}
	w := &DeliveryWorker{
		shaper:   shaper,
		policy:   policy,
		backoff:  webhooks.ExponentialRetryPolicy{},
		logger:   glog.Nop(),
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Process runs one queue delivery through the shaper. Successful and
// coalesced deliveries are acked, retryable failures are nacked with
// backoff, and permanent failures are dead-lettered.
func (w *DeliveryWorker) Process(ctx context.Context, delivery queue.Delivery) error {
	if w == nil || w.shaper == nil {
		return fmt.Errorf("gojob: delivery worker is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: queue delivery is required")
	}

	item, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		return delivery.Nack(ctx, queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      err.Error(),
		})
	}

	attempt := w.nextAttempt(delivery, item)
	item.Attempt = attempt - 1
	if w.secrets != nil && item.Subscription.ID != "" {
		secret, lookupErr := w.secrets(ctx, item.Subscription.ID)
		if lookupErr != nil {
			return w.nack(ctx, delivery, item, attempt, lookupErr, true)
		}
		item.Subscription.Secret = secret
	}

	result, err := w.shaper.Deliver(ctx, item)
	if err != nil {
		return w.nack(ctx, delivery, item, attempt, err, webhooks.IsRetryable(err))
	}
	w.forget(item.ID)
	w.logger.WithContext(ctx).Debug("webhook delivery acked",
		"delivery_id", item.ID,
		"attempt", attempt,
		"coalesced", result.Coalesced,
	)
	return delivery.Ack(ctx)
}

// RunOnce dequeues and processes a single delivery. It reports false when
// the queue had nothing ready.
func (w *DeliveryWorker) RunOnce(ctx context.Context, dequeuer queue.Dequeuer) (bool, error) {
	if dequeuer == nil {
		return false, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	return true, w.Process(ctx, delivery)
}

// Run polls the dequeuer until ctx is done, sleeping idle between empty
// polls. Processing errors are logged and do not stop the loop.
func (w *DeliveryWorker) Run(ctx context.Context, dequeuer queue.Dequeuer, idle time.Duration) error {
	if idle <= 0 {
		idle = defaultIdleDelay
	}
	for {
		processed, err := w.RunOnce(ctx, dequeuer)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.WithContext(ctx).Warn("webhook worker iteration failed", "error", err)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idle):
		}
	}
}

func (w *DeliveryWorker) nack(
	ctx context.Context,
	delivery queue.Delivery,
	item webhooks.Delivery,
	attempt int,
	cause error,
	retryable bool,
) error {
	opts := queue.NackOptions{
		Disposition: queue.NackDispositionDeadLetter,
		Reason:      cause.Error(),
	}
	if retryable {
		opts.Disposition = queue.NackDispositionRetry
		opts.Delay = w.backoff.NextDelay(attempt)
	}
	normalized := w.policy.NormalizeAttempt(opts, attempt)
	if normalized.Disposition != queue.NackDispositionRetry {
		w.forget(item.ID)
	}
	w.logger.WithContext(ctx).Warn("webhook delivery failed",
		"delivery_id", item.ID,
		"attempt", attempt,
		"disposition", string(normalized.Disposition),
		"delay", normalized.Delay.String(),
		"error", cause,
	)
	return delivery.Nack(ctx, normalized)
}

// attemptCounter is implemented by durable go-job deliveries that track
// how often a message was leased.
type attemptCounter interface {
	Attempts() int
}

// nextAttempt returns the 1-based attempt for this processing. Durable
// deliveries report it themselves. Otherwise attempts are counted per
// delivery id, starting from the attempt recorded on the message.
func (w *DeliveryWorker) nextAttempt(delivery queue.Delivery, item webhooks.Delivery) int {
	if counter, ok := delivery.(attemptCounter); ok && counter.Attempts() > 0 {
		return item.Attempt + counter.Attempts()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	current, ok := w.attempts[item.ID]
	if !ok {
		current = item.Attempt
	}
	current++
	w.attempts[item.ID] = current
	return current
}

func (w *DeliveryWorker) forget(deliveryID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, deliveryID)
}

// LoggingHook reports go-job worker lifecycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx).Debug("webhook job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx).Info("webhook job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx).Error("webhook job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx).Warn("webhook job retry", eventFields(event)...)
}

func (h *LoggingHook) log(ctx context.Context) glog.Logger {
	if h == nil || h.logger == nil {
		return glog.Nop()
	}
	return h.logger.WithContext(ctx)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{
		"attempt", event.Attempt,
		"delay", event.Delay.String(),
		"duration", event.Duration.String(),
	}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "delivery_id", message.IdempotencyKey)
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err)
	}
	return fields
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func intParam(params map[string]any, key string) int {
	switch typed := params[key].(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	default:
		return 0
	}
}

// payloadParam decodes the event payload. go-job's codec keeps the
// "payload" parameter as raw JSON bytes; numbers decode as json.Number.
func payloadParam(params map[string]any) (core.Params, error) {
	var raw []byte
	switch typed := params["payload"].(type) {
	case nil:
		return core.Params{}, nil
	case map[string]any:
		return copyAnyMap(typed), nil
	case json.RawMessage:
		raw = typed
	case []byte:
		raw = typed
	case string:
		raw = []byte(typed)
	default:
		return nil, fmt.Errorf("gojob: unsupported payload type %T", typed)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return core.Params{}, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("gojob: decode payload: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ worker.Hook    = (*LoggingHook)(nil)
	_ DeliveryShaper = (*webhooks.Shaper)(nil)
)
