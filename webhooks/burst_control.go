package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
)

const (
	defaultBurstWindow     = 2 * time.Second
	defaultBurstMaxEntries = 4096
)

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

// BurstController decides whether a first delivery attempt is sent or folded
// into an earlier one for the same resource. Record is called only after the
// subscriber accepted a delivery, so failed sends never suppress later events.
//
// Coalescing is lossy: a folded delivery's payload is not sent. Use it only for
// subscribers that treat events as "resource changed" notifications and fetch
// current state themselves.
type BurstController interface {
	Allow(ctx context.Context, delivery Delivery) (BurstDecision, error)
	Record(ctx context.Context, delivery Delivery) error
}

type BurstKeyExtractor func(delivery Delivery) (string, bool)

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	ExtractKey BurstKeyExtractor
	Now        func() time.Time
}

// CoalescingBurstController keeps the expiry of the last accepted delivery
// per key. Retries (Attempt > 0) are never coalesced.
type CoalescingBurstController struct {
	mode       BurstMode
	window     time.Duration
	maxEntries int
	extractKey BurstKeyExtractor
	now        func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

func NewBurstController(opts BurstOptions) *CoalescingBurstController {
	c := &CoalescingBurstController{
		mode:       BurstModeNone,
		window:     opts.Window,
		maxEntries: opts.MaxEntries,
		extractKey: opts.ExtractKey,
		now:        opts.Now,
		expires:    map[string]time.Time{},
	}
	if strings.EqualFold(strings.TrimSpace(string(opts.Mode)), string(BurstModeCoalesce)) {
		c.mode = BurstModeCoalesce
	}
	if c.window <= 0 {
		c.window = defaultBurstWindow
	}
	if c.maxEntries <= 0 {
		c.maxEntries = defaultBurstMaxEntries
	}
	if c.extractKey == nil {
		c.extractKey = DefaultBurstKeyExtractor
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *CoalescingBurstController) Allow(_ context.Context, delivery Delivery) (BurstDecision, error) {
	allow := BurstDecision{Allow: true}
	if c == nil || c.mode != BurstModeCoalesce || delivery.Attempt > 0 {
		return allow, nil
	}
	key, ok := c.key(delivery)
	if !ok {
		return allow, nil
	}

	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiresAt, seen := c.expires[key]; seen && now.Before(expiresAt) {
		return BurstDecision{
			Allow: false,
			Metadata: map[string]any{
				"burst_mode":      string(c.mode),
				"burst_key":       key,
				"burst_window_ms": c.window.Milliseconds(),
				"coalesced":       true,
				"api_version":     delivery.Subscription.APIVersion,
			},
		}, nil
	}
	return allow, nil
}

// Record opens the coalescing window for the delivery's key.
func (c *CoalescingBurstController) Record(_ context.Context, delivery Delivery) error {
	if c == nil || c.mode != BurstModeCoalesce {
		return nil
	}
	key, ok := c.key(delivery)
	if !ok {
		return nil
	}
	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires[key] = now.Add(c.window)
	c.prune(now)
	return nil
}

func (c *CoalescingBurstController) key(delivery Delivery) (string, bool) {
	key, ok := c.extractKey(delivery)
	key = strings.TrimSpace(key)
	return key, ok && key != ""
}

// prune drops expired keys. Past maxEntries the oldest expiries go first.
func (c *CoalescingBurstController) prune(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, expiresAt := range c.expires {
		if !now.Before(expiresAt) {
			delete(c.expires, key)
			continue
		}
		if oldestKey == "" || expiresAt.Before(oldest) {
			oldestKey, oldest = key, expiresAt
		}
	}
	if len(c.expires) > c.maxEntries && oldestKey != "" {
		delete(c.expires, oldestKey)
	}
}

// DefaultBurstKeyExtractor keys on subscription, pinned version, event type
// and the payload resource id. Subscriptions without a version share the
// canonical bucket.
func DefaultBurstKeyExtractor(delivery Delivery) (string, bool) {
	subscriptionID := strings.ToLower(strings.TrimSpace(delivery.Subscription.ID))
	eventType := strings.ToLower(strings.TrimSpace(delivery.Event.Type))
	if subscriptionID == "" || eventType == "" {
		return "", false
	}
	version := strings.TrimSpace(delivery.Subscription.APIVersion)
	if version == "" {
		version = "canonical"
	}
	for _, field := range []string{"id", "resourceId"} {
		value, ok := delivery.Event.Payload[field]
		if !ok || value == nil {
			continue
		}
		resource := strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
		if resource != "" {
			return subscriptionID + "@" + version + ":" + eventType + ":" + resource, true
		}
	}
	return "", false
}

var _ BurstController = (*CoalescingBurstController)(nil)
