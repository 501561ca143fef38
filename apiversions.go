package apiversions

import (
	"github.com/goliatone/go-apiversions/changes"
	"github.com/goliatone/go-apiversions/core"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Params = core.Params

type Channel = core.Channel

type ChangeConfig = core.ChangeConfig

type ChangeModule = core.ChangeModule

type ApplyChangesRequest = core.ApplyChangesRequest

type TransformationPlan = core.TransformationPlan

const (
	ChannelRequest  = core.ChannelRequest
	ChannelResponse = core.ChannelResponse
)

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithRequestChanges  = core.WithRequestChanges
	WithResponseChanges = core.WithResponseChanges
	WithClock           = core.WithClock
	WithDefaultVersions = core.WithDefaultVersions
)

// DefaultConfig returns the engine defaults with the built-in version
// catalog filled in.
func DefaultConfig() Config {
	cfg := core.DefaultConfig()
	cfg.Versions = changes.Versions()
	cfg.CanonicalVersion = changes.Canonical
	return cfg
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

// NewBuiltinService builds a service with the built-in request and response
// change modules registered ahead of any caller supplied modules. The
// built-in catalog is only a default: versions from the config provider or
// cfg take precedence.
func NewBuiltinService(cfg Config, opts ...Option) (*Service, error) {
	builtins := []Option{
		core.WithDefaultVersions(changes.Versions()...),
		core.WithRequestChanges(changes.RequestModules()...),
		core.WithResponseChanges(changes.ResponseModules()...),
	}
	return core.NewService(cfg, append(builtins, opts...)...)
}
