package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-apiversions/core"
	goerrors "github.com/goliatone/go-errors"
)

const DefaultAccountHeader = "X-Account-Id"

// AccountVersionSource returns the version an account pinned as its
// default. An empty version with a nil error means no default is stored.
type AccountVersionSource interface {
	AccountVersion(ctx context.Context, accountID string) (string, error)
}

type ClientVersionResolver interface {
	ResolveClientVersion(declared string, fallback string) (string, error)
}

// VersionResolver picks the client version of an inbound request: the
// version header first, then the account default, then the canonical
// version.
type VersionResolver struct {
	service       ClientVersionResolver
	source        AccountVersionSource
	versionHeader string
	accountHeader string
}

type ResolverOption func(*VersionResolver)

func WithAccountVersionSource(source AccountVersionSource) ResolverOption {
	return func(r *VersionResolver) {
		r.source = source
	}
}

func WithVersionHeader(header string) ResolverOption {
	return func(r *VersionResolver) {
		if header = strings.TrimSpace(header); header != "" {
			r.versionHeader = header
		}
	}
}

func WithAccountHeader(header string) ResolverOption {
	return func(r *VersionResolver) {
		if header = strings.TrimSpace(header); header != "" {
			r.accountHeader = header
		}
	}
}

func NewVersionResolver(service ClientVersionResolver, opts ...ResolverOption) *VersionResolver {
	resolver := &VersionResolver{
		service:       service,
		versionHeader: core.DefaultVersionHeader,
		accountHeader: DefaultAccountHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(resolver)
		}
	}
	return resolver
}

func (r *VersionResolver) VersionHeader() string {
	if r == nil {
		return core.DefaultVersionHeader
	}
	return r.versionHeader
}

func (r *VersionResolver) AccountID(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	return strings.TrimSpace(req.Header.Get(r.accountHeader))
}

func (r *VersionResolver) Resolve(req *http.Request) (string, error) {
	if r == nil || r.service == nil {
		return "", transportError("transport: version resolver is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	declared := strings.TrimSpace(req.Header.Get(r.versionHeader))
	fallback := ""
	if declared == "" && r.source != nil {
		if accountID := r.AccountID(req); accountID != "" {
			version, err := r.source.AccountVersion(req.Context(), accountID)
			if err != nil {
				return "", transportWrapError(
					err,
					goerrors.CategoryInternal,
					"transport: load account api version",
					http.StatusInternalServerError,
					map[string]any{"account_id": accountID},
				)
			}
			fallback = version
		}
	}
	return r.service.ResolveClientVersion(declared, fallback)
}
