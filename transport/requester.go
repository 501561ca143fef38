package transport

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-apiversions/core"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

// RouteRequest is the canonical payload handed to a backing service once
// the request transformer has run.
type RouteRequest struct {
	ID         string
	Target     string
	Type       string
	AccountID  string
	APIVersion string
	Params     core.Params
}

type Requester interface {
	Send(ctx context.Context, req RouteRequest) (core.Params, error)
}

type RequestHandlerFunc func(ctx context.Context, req RouteRequest) (core.Params, error)

// DispatchRequester routes requests to per target queriers. It must be
// started before Send is accepted and rejects traffic again once stopped.
type DispatchRequester struct {
	mu       sync.RWMutex
	handlers map[string]gocmd.Querier[RouteRequest, core.Params]
	started  bool
}

func NewDispatchRequester() *DispatchRequester {
	return &DispatchRequester{
		handlers: map[string]gocmd.Querier[RouteRequest, core.Params]{},
	}
}

func (r *DispatchRequester) Handle(target string, querier gocmd.Querier[RouteRequest, core.Params]) error {
	if r == nil {
		return fmt.Errorf("transport: requester is nil")
	}
	target = normalizeTarget(target)
	if target == "" {
		return fmt.Errorf("transport: handler target is required")
	}
	if querier == nil {
		return fmt.Errorf("transport: handler for %q is nil", target)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[target]; exists {
		return fmt.Errorf("transport: handler for %q already registered", target)
	}
	r.handlers[target] = querier
	return nil
}

func (r *DispatchRequester) HandleFunc(target string, fn RequestHandlerFunc) error {
	if fn == nil {
		return fmt.Errorf("transport: handler func for %q is nil", normalizeTarget(target))
	}
	return r.Handle(target, gocmd.QueryFunc[RouteRequest, core.Params](fn))
}

func (r *DispatchRequester) Start(context.Context) error {
	if r == nil {
		return fmt.Errorf("transport: requester is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("transport: requester already started")
	}
	r.started = true
	return nil
}

func (r *DispatchRequester) Stop(context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	return nil
}

func (r *DispatchRequester) Started() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

func (r *DispatchRequester) Targets() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]string, 0, len(r.handlers))
	for target := range r.handlers {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

func (r *DispatchRequester) Send(ctx context.Context, req RouteRequest) (core.Params, error) {
	if r == nil {
		return nil, transportError("transport: requester is nil", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	target := normalizeTarget(req.Target)

	r.mu.RLock()
	started := r.started
	handler := r.handlers[target]
	r.mu.RUnlock()

	if !started {
		return nil, transportError(
			"transport: requester is not running",
			goerrors.CategoryInternal,
			http.StatusServiceUnavailable,
			map[string]any{"target": target},
		)
	}
	if handler == nil {
		return nil, transportError(
			fmt.Sprintf("transport: no handler for target %q", target),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			map[string]any{"target": target},
		)
	}
	return handler.Query(ctx, req)
}

func normalizeTarget(target string) string {
	return strings.TrimSpace(target)
}

// targetType returns the operation suffix of a target: "create" for
// "workflow.create".
func targetType(target string) string {
	target = normalizeTarget(target)
	if index := strings.LastIndex(target, "."); index >= 0 {
		return target[index+1:]
	}
	return target
}
