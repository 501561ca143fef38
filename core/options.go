package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	defaults        Config
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	requestModules  []ChangeModule
	responseModules []ChangeModule
	clock           func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithRequestChanges registers modules on the request transformer while the
// service is built.
func WithRequestChanges(modules ...ChangeModule) Option {
	return func(b *serviceBuilder) {
		b.requestModules = append(b.requestModules, modules...)
	}
}

func WithResponseChanges(modules ...ChangeModule) Option {
	return func(b *serviceBuilder) {
		b.responseModules = append(b.responseModules, modules...)
	}
}

// WithDefaultVersions seeds the version catalog at the lowest priority. A
// catalog from the config provider or the runtime Config replaces it.
func WithDefaultVersions(versions ...string) Option {
	return func(b *serviceBuilder) {
		b.defaults.Versions = append([]string(nil), versions...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve(DefaultServiceName, nil, nil)
	return serviceBuilder{
		defaults:        DefaultConfig(),
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           time.Now,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return engineErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticRawConfigLoader serves a fixed raw map, mostly for tests and
// embedded configuration.
func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw source over defaults. Validation runs once the layers
// are merged, since a single source rarely carries the whole catalog.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, wrapConfigError(err, "core: load raw config failed")
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, wrapConfigError(err, "core: decode config failed")
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, wrapConfigError(err, "core: options stack build failed")
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, wrapConfigError(err, "core: options merge failed")
	}
	resolved, err := cfgx.Build[Config](merged.Value, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, wrapConfigError(err, "core: decode merged config failed")
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || len(cfg.Versions) > 0 {
		layer["versions"] = append([]string{}, cfg.Versions...)
	}
	if includeZero || strings.TrimSpace(cfg.CanonicalVersion) != "" {
		layer["canonical_version"] = cfg.CanonicalVersion
	}
	if includeZero || strings.TrimSpace(cfg.ConflictPolicy) != "" {
		layer["conflict_policy"] = cfg.ConflictPolicy
	}
	if includeZero || cfg.Transform.TimeoutMS != 0 {
		layer["transform"] = map[string]any{
			"timeout_ms": cfg.Transform.TimeoutMS,
		}
	}
	if includeZero || strings.TrimSpace(cfg.Routing.VersionHeader) != "" {
		layer["routing"] = map[string]any{
			"version_header": cfg.Routing.VersionHeader,
		}
	}
	return layer
}

func wrapConfigError(err error, message string) error {
	if err == nil {
		return nil
	}
	if IsConfigError(err) {
		return err
	}
	return newEngineError(
		fmt.Errorf("%w: %w", ErrConfig, err),
		fmt.Sprintf("%s: %v", message, err),
		goerrors.CategoryValidation,
		http.StatusInternalServerError,
		ErrorConfig,
		nil,
	)
}
