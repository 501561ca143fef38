package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-apiversions/core"
	"github.com/goliatone/go-apiversions/transport"
	"github.com/goliatone/go-apiversions/webhooks"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type eventPublisher func(ctx context.Context, delivery webhooks.Delivery) error

// demoBackend is an in-memory workflow and webhook service speaking the
// canonical API shape.
type demoBackend struct {
	mu        sync.RWMutex
	workflows map[string]core.Params
	hooks     map[string]webhooks.Subscription
	publish   eventPublisher
	now       func() time.Time
}

func newDemoBackend(publish eventPublisher) *demoBackend {
	return &demoBackend{
		workflows: map[string]core.Params{},
		hooks:     map[string]webhooks.Subscription{},
		publish:   publish,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (b *demoBackend) Register(requester *transport.DispatchRequester) error {
	handlers := map[string]transport.RequestHandlerFunc{
		"workflow.create": b.createWorkflow,
		"workflow.read":   b.readWorkflow,
		"workflow.list":   b.listWorkflows,
		"webhook.create":  b.createWebhook,
	}
	for target, handler := range handlers {
		if err := requester.HandleFunc(target, handler); err != nil {
			return err
		}
	}
	return nil
}

func (b *demoBackend) createWorkflow(ctx context.Context, req transport.RouteRequest) (core.Params, error) {
	name, _ := req.Params["name"].(string)
	if strings.TrimSpace(name) == "" {
		return nil, goerrors.NewValidation("workflow name is required",
			goerrors.FieldError{Field: "name", Message: "required"},
		).WithCode(http.StatusBadRequest).WithTextCode("WORKFLOW_INVALID")
	}
	record := core.Params{
		"id":        "wf_" + uuid.NewString(),
		"name":      name,
		"notifyUrl": req.Params["notifyUrl"],
		"accountId": req.AccountID,
		"createdAt": b.now().Format(time.RFC3339),
	}

	b.mu.Lock()
	b.workflows[record["id"].(string)] = record
	b.mu.Unlock()

	b.emit(ctx, "workflow.created", req.AccountID, record)
	return cloneParams(record), nil
}

func (b *demoBackend) readWorkflow(_ context.Context, req transport.RouteRequest) (core.Params, error) {
	id, _ := req.Params["workflowId"].(string)
	b.mu.RLock()
	record, ok := b.workflows[id]
	b.mu.RUnlock()
	if !ok {
		return nil, goerrors.New(fmt.Sprintf("workflow %q not found", id), goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithTextCode("WORKFLOW_NOT_FOUND")
	}
	return cloneParams(record), nil
}

func (b *demoBackend) listWorkflows(_ context.Context, req transport.RouteRequest) (core.Params, error) {
	b.mu.RLock()
	ids := make([]string, 0, len(b.workflows))
	for id := range b.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	results := make([]any, 0, len(ids))
	for _, id := range ids {
		results = append(results, map[string]any(cloneParams(b.workflows[id])))
	}
	b.mu.RUnlock()

	perPage := 20
	if value, ok := req.Params["nbResultsPerPage"].(float64); ok && value > 0 {
		perPage = int(value)
	}
	hasNext := len(results) > perPage
	if hasNext {
		results = results[:perPage]
	}
	return core.Params{
		"results":          results,
		"nbResultsPerPage": perPage,
		"hasNextPage":      hasNext,
	}, nil
}

// createWebhook pins the subscription to the caller's API version so later
// events reach it in the shape it was written against.
func (b *demoBackend) createWebhook(_ context.Context, req transport.RouteRequest) (core.Params, error) {
	target, _ := req.Params["targetUrl"].(string)
	if strings.TrimSpace(target) == "" {
		return nil, goerrors.NewValidation("webhook targetUrl is required",
			goerrors.FieldError{Field: "targetUrl", Message: "required"},
		).WithCode(http.StatusBadRequest).WithTextCode("WEBHOOK_INVALID")
	}
	subscription := webhooks.Subscription{
		ID:         "wh_" + uuid.NewString(),
		URL:        target,
		APIVersion: req.APIVersion,
		Secret:     "whsec_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	b.mu.Lock()
	b.hooks[subscription.ID] = subscription
	b.mu.Unlock()

	return core.Params{
		"id":         subscription.ID,
		"targetUrl":  subscription.URL,
		"apiVersion": subscription.APIVersion,
		"secret":     subscription.Secret,
	}, nil
}

func (b *demoBackend) SubscriptionSecret(_ context.Context, subscriptionID string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subscription, ok := b.hooks[subscriptionID]
	if !ok {
		return "", fmt.Errorf("webhook subscription %q not found", subscriptionID)
	}
	return subscription.Secret, nil
}

func (b *demoBackend) emit(ctx context.Context, eventType string, accountID string, payload core.Params) {
	if b.publish == nil {
		return
	}
	b.mu.RLock()
	subscriptions := make([]webhooks.Subscription, 0, len(b.hooks))
	for _, subscription := range b.hooks {
		subscriptions = append(subscriptions, subscription)
	}
	b.mu.RUnlock()

	event := webhooks.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       eventType,
		AccountID:  accountID,
		Payload:    cloneParams(payload),
		OccurredAt: b.now(),
	}
	for _, subscription := range subscriptions {
		_ = b.publish(ctx, webhooks.Delivery{
			ID:           "dlv_" + uuid.NewString(),
			Event:        event,
			Subscription: subscription,
		})
	}
}

func cloneParams(in core.Params) core.Params {
	out := make(core.Params, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
