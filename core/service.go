package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	RequestLabel  = "request"
	ResponseLabel = "response"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	catalog         *VersionCatalog
	canonical       string
	request         *VersionTransformer
	response        *VersionTransformer
}

type ServiceDependencies struct {
	Logger              Logger
	LoggerProvider      LoggerProvider
	MetricsRecorder     MetricsRecorder
	ErrorMapper         ErrorMapper
	ConfigProvider      ConfigProvider
	OptionsResolver     OptionsResolver
	Catalog             *VersionCatalog
	RequestTransformer  *VersionTransformer
	ResponseTransformer *VersionTransformer
}

// NewService resolves the configuration, builds the catalog and both
// transformers, then registers the modules given as options. Any failure
// is returned before the service can serve traffic.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(DefaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(DefaultServiceName); named != nil && builder.logger == nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := builder.defaults
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	catalog, err := NewVersionCatalog(finalConfig.Versions...)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	canonical := normalizeVersion(finalConfig.CanonicalVersion)
	if canonical == "" {
		canonical = catalog.Latest()
	}
	if err := catalog.Validate(canonical); err != nil {
		return nil, mapBuildError(builder.errorMapper, newConfigError(
			fmt.Sprintf("core: canonical version %q is not in the catalog", canonical),
			map[string]any{"version": canonical},
		))
	}
	policy, err := ParseConflictPolicy(finalConfig.ConflictPolicy)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	transformerOpts := []TransformerOption{
		WithTransformerLogger(logger),
		WithTransformerMetrics(builder.metricsRecorder),
		WithTransformTimeout(finalConfig.TransformTimeout()),
		WithTransformerClock(builder.clock),
	}
	request, err := newChannelTransformer(RequestLabel, DirectionUp, catalog, policy, transformerOpts)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	response, err := newChannelTransformer(ResponseLabel, DirectionDown, catalog, policy, transformerOpts)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := request.AddChanges(builder.requestModules...); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if err := response.AddChanges(builder.responseModules...); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	logger.Debug("api version service ready",
		"canonical_version", canonical,
		"conflict_policy", string(policy),
		"request_changes", request.Registry().Len(),
		"response_changes", response.Registry().Len(),
		"service_name", finalConfig.ServiceName,
		"versions", catalog.Len(),
	)

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		catalog:         catalog,
		canonical:       canonical,
		request:         request,
		response:        response,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func newChannelTransformer(
	label string,
	direction Direction,
	catalog *VersionCatalog,
	policy ConflictPolicy,
	opts []TransformerOption,
) (*VersionTransformer, error) {
	registry, err := NewChangeRegistry(catalog, WithConflictPolicy(policy))
	if err != nil {
		return nil, err
	}
	return NewVersionTransformer(label, direction, registry, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:              s.logger,
		LoggerProvider:      s.loggerProvider,
		MetricsRecorder:     s.metricsRecorder,
		ErrorMapper:         s.errorMapper,
		ConfigProvider:      s.configProvider,
		OptionsResolver:     s.optionsResolver,
		Catalog:             s.catalog,
		RequestTransformer:  s.request,
		ResponseTransformer: s.response,
	}
}

func (s *Service) Catalog() *VersionCatalog {
	if s == nil {
		return nil
	}
	return s.catalog
}

func (s *Service) CanonicalVersion() string {
	if s == nil {
		return ""
	}
	return s.canonical
}

func (s *Service) DescribeCatalog() CatalogDescription {
	if s == nil || s.catalog == nil {
		return CatalogDescription{Versions: []string{}}
	}
	return CatalogDescription{
		Versions:  s.catalog.Versions(),
		Earliest:  s.catalog.Earliest(),
		Latest:    s.catalog.Latest(),
		Canonical: s.canonical,
	}
}

// Transformer returns the transformer serving channel.
func (s *Service) Transformer(channel Channel) (*VersionTransformer, error) {
	if s == nil {
		return nil, newConfigError("core: service is nil", nil)
	}
	channel = NormalizeChannel(string(channel))
	if err := channel.Validate(); err != nil {
		return nil, err
	}
	if channel == ChannelResponse {
		return s.response, nil
	}
	return s.request, nil
}

func (s *Service) ApplyRequestChanges(ctx context.Context, req ApplyChangesRequest) (Params, error) {
	return s.ApplyChanges(ctx, ChannelRequest, req)
}

func (s *Service) ApplyResponseChanges(ctx context.Context, req ApplyChangesRequest) (Params, error) {
	return s.ApplyChanges(ctx, ChannelResponse, req)
}

func (s *Service) ApplyChanges(ctx context.Context, channel Channel, req ApplyChangesRequest) (Params, error) {
	transformer, err := s.Transformer(channel)
	if err != nil {
		return nil, s.mapError(err)
	}
	out, err := transformer.ApplyChanges(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

func (s *Service) RegisterRequestChanges(modules ...ChangeModule) error {
	return s.RegisterChanges(ChannelRequest, modules...)
}

func (s *Service) RegisterResponseChanges(modules ...ChangeModule) error {
	return s.RegisterChanges(ChannelResponse, modules...)
}

func (s *Service) RegisterChanges(channel Channel, modules ...ChangeModule) error {
	transformer, err := s.Transformer(channel)
	if err != nil {
		return s.mapError(err)
	}
	if err := transformer.AddChanges(modules...); err != nil {
		s.logger.Error("api version change registration failed",
			"channel", string(channel),
			"error", err.Error(),
			"modules", moduleNames(modules),
		)
		return s.mapError(err)
	}
	s.logger.Debug("api version changes registered",
		"channel", string(channel),
		"modules", moduleNames(modules),
		"total", transformer.Registry().Len(),
	)
	return nil
}

func (s *Service) RequestChanges(target string) []ChangeDefinition {
	definitions, _ := s.Changes(ChannelRequest, target)
	return definitions
}

func (s *Service) ResponseChanges(target string) []ChangeDefinition {
	definitions, _ := s.Changes(ChannelResponse, target)
	return definitions
}

func (s *Service) Changes(channel Channel, target string) ([]ChangeDefinition, error) {
	transformer, err := s.Transformer(channel)
	if err != nil {
		return nil, s.mapError(err)
	}
	return transformer.Registry().ChangesFor(target), nil
}

func (s *Service) PlanRequest(target string, fromVersion string, toVersion string) (TransformationPlan, error) {
	return s.Plan(ChannelRequest, target, fromVersion, toVersion)
}

func (s *Service) PlanResponse(target string, fromVersion string, toVersion string) (TransformationPlan, error) {
	return s.Plan(ChannelResponse, target, fromVersion, toVersion)
}

func (s *Service) Plan(channel Channel, target string, fromVersion string, toVersion string) (TransformationPlan, error) {
	transformer, err := s.Transformer(channel)
	if err != nil {
		return TransformationPlan{}, s.mapError(err)
	}
	plan, err := transformer.Plan(target, fromVersion, toVersion)
	if err != nil {
		return plan, s.mapError(err)
	}
	return plan, nil
}

// ResolveClientVersion picks the version a client speaks: the declared one,
// else fallback (an account default), else the canonical version.
func (s *Service) ResolveClientVersion(declared string, fallback string) (string, error) {
	if s == nil {
		return "", newConfigError("core: service is nil", nil)
	}
	version := normalizeVersion(declared)
	source := "declared"
	if version == "" {
		version = normalizeVersion(fallback)
		source = "fallback"
	}
	if version == "" {
		return s.canonical, nil
	}
	if !s.catalog.Contains(version) {
		return "", s.mapError(newUnknownVersionError(version, map[string]any{"source": source}))
	}
	return version, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func moduleNames(modules []ChangeModule) string {
	names := make([]string, 0, len(modules))
	for _, module := range modules {
		if name := strings.TrimSpace(module.Name); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}
