package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-apiversions/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-Id"

	defaultBodyLimit int64 = 1 << 20
)

// VersionedService is the engine surface the route adapter needs.
type VersionedService interface {
	ClientVersionResolver
	CanonicalVersion() string
	ApplyChanges(ctx context.Context, channel core.Channel, req core.ApplyChangesRequest) (core.Params, error)
}

// Route declares one versioned endpoint. Name doubles as the change target.
type Route struct {
	Name   string
	Method string
	Path   string
	// Fields lists the canonical payload keys handed to the backend. Input
	// comes from the JSON body (POST, PUT, PATCH) or the query string (GET,
	// DELETE) and is picked after the request upgrade, so legacy clients may
	// still send their own spellings. An empty list keeps every key.
	Fields []string
	// URLParams maps chi URL parameters to payload keys.
	URLParams map[string]string
	Status    int
}

type Adapter struct {
	service   VersionedService
	requester Requester
	resolver  *VersionResolver
	router    chi.Router
	logger    core.Logger
	newID     func() string
	bodyLimit int64
}

type AdapterOption func(*Adapter)

func WithRouter(router chi.Router) AdapterOption {
	return func(a *Adapter) {
		if router != nil {
			a.router = router
		}
	}
}

func WithResolver(resolver *VersionResolver) AdapterOption {
	return func(a *Adapter) {
		if resolver != nil {
			a.resolver = resolver
		}
	}
}

func WithLogger(logger core.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = glog.Ensure(logger)
	}
}

func WithRequestIDGenerator(fn func() string) AdapterOption {
	return func(a *Adapter) {
		if fn != nil {
			a.newID = fn
		}
	}
}

func WithBodyLimit(limit int64) AdapterOption {
	return func(a *Adapter) {
		if limit > 0 {
			a.bodyLimit = limit
		}
	}
}

func NewAdapter(service VersionedService, requester Requester, opts ...AdapterOption) (*Adapter, error) {
	if service == nil {
		return nil, fmt.Errorf("transport: versioned service is required")
	}
	if requester == nil {
		return nil, fmt.Errorf("transport: requester is required")
	}
	adapter := &Adapter{
		service:   service,
		requester: requester,
		logger:    glog.Nop(),
		newID:     uuid.NewString,
		bodyLimit: defaultBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	if adapter.router == nil {
		adapter.router = chi.NewRouter()
		adapter.router.Use(RequestLogger(adapter.logger))
	}
	if adapter.resolver == nil {
		adapter.resolver = NewVersionResolver(service)
	}
	return adapter, nil
}

func (a *Adapter) Router() chi.Router {
	if a == nil {
		return nil
	}
	return a.router
}

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Adapter) Route(route Route) error {
	if a == nil {
		return fmt.Errorf("transport: adapter is nil")
	}
	route.Name = normalizeTarget(route.Name)
	route.Method = strings.ToUpper(strings.TrimSpace(route.Method))
	if route.Name == "" {
		return fmt.Errorf("transport: route name is required")
	}
	if route.Method == "" {
		return fmt.Errorf("transport: route %q method is required", route.Name)
	}
	if strings.TrimSpace(route.Path) == "" {
		return fmt.Errorf("transport: route %q path is required", route.Name)
	}
	if route.Status == 0 {
		route.Status = http.StatusOK
	}
	a.router.Method(route.Method, route.Path, a.handler(route))
	return nil
}

func (a *Adapter) Routes(routes ...Route) error {
	for _, route := range routes {
		if err := a.Route(route); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) handler(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := a.newID()
		w.Header().Set(RequestIDHeader, requestID)

		version, err := a.resolver.Resolve(r)
		if err != nil {
			a.writeError(w, r, route, err)
			return
		}
		w.Header().Set(a.resolver.VersionHeader(), version)

		params, err := a.collectParams(r, route)
		if err != nil {
			a.writeError(w, r, route, err)
			return
		}

		canonical := a.service.CanonicalVersion()
		upgraded, err := a.service.ApplyChanges(ctx, core.ChannelRequest, core.ApplyChangesRequest{
			Target:      route.Name,
			FromVersion: version,
			ToVersion:   canonical,
			Params:      params,
		})
		if err != nil {
			a.writeError(w, r, route, err)
			return
		}
		upgraded = pickCanonical(upgraded, route)

		result, err := a.requester.Send(ctx, RouteRequest{
			ID:         requestID,
			Target:     route.Name,
			Type:       targetType(route.Name),
			AccountID:  a.resolver.AccountID(r),
			APIVersion: version,
			Params:     upgraded,
		})
		if err != nil {
			a.writeError(w, r, route, err)
			return
		}

		shaped, err := a.service.ApplyChanges(ctx, core.ChannelResponse, core.ApplyChangesRequest{
			Target:      route.Name,
			FromVersion: canonical,
			ToVersion:   version,
			Params:      result,
		})
		if err != nil {
			a.writeError(w, r, route, err)
			return
		}
		writeJSON(w, route.Status, shaped)
	}
}

func (a *Adapter) collectParams(r *http.Request, route Route) (core.Params, error) {
	params := core.Params{}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		body, err := decodeBody(r, a.bodyLimit)
		if err != nil {
			return nil, err
		}
		for key, value := range body {
			params[key] = value
		}
	default:
		query := map[string]any{}
		for key, values := range r.URL.Query() {
			if len(values) == 1 {
				query[key] = values[0]
				continue
			}
			items := make([]any, 0, len(values))
			for _, value := range values {
				items = append(items, value)
			}
			query[key] = items
		}
		for key, value := range query {
			params[key] = value
		}
	}
	for param, key := range route.URLParams {
		if value := chi.URLParam(r, param); value != "" {
			params[key] = value
		}
	}
	return params, nil
}

func decodeBody(r *http.Request, limit int64) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, limit))
	decoder.UseNumber()
	body := map[string]any{}
	if err := decoder.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: request body must be a JSON object",
			http.StatusBadRequest,
			nil,
		)
	}
	return body, nil
}

// pickCanonical keeps the route's Fields and its URL parameter keys from an
// upgraded payload.
func pickCanonical(values core.Params, route Route) core.Params {
	if len(route.Fields) == 0 {
		return values
	}
	out := make(core.Params, len(route.Fields)+len(route.URLParams))
	for _, field := range route.Fields {
		if value, ok := values[field]; ok {
			out[field] = value
		}
	}
	for _, key := range route.URLParams {
		if value, ok := values[key]; ok {
			out[key] = value
		}
	}
	return out
}
