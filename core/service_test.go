package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func workflowModules() (ChangeModule, ChangeModule) {
	request := ChangeModule{Name: "workflow", Changes: []ChangeConfig{
		{
			Target:  "workflow.create",
			Version: "2020-01-01",
			Up:      RenameField("notifyURL", "notifyUrl"),
			Down:    RenameField("notifyUrl", "notifyURL"),
		},
	}}
	response := ChangeModule{Name: "workflow", Changes: []ChangeConfig{
		{
			Target:  "workflow.create",
			Version: "2020-01-01",
			Up:      RenameField("notifyURL", "notifyUrl"),
			Down:    RenameField("notifyUrl", "notifyURL"),
		},
	}}
	return request, response
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(testConfig("2019-01-01", "2020-01-01"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil {
		t.Fatalf("expected default config provider")
	}
	if deps.OptionsResolver == nil {
		t.Fatalf("expected default options resolver")
	}
	if deps.RequestTransformer == nil || deps.ResponseTransformer == nil {
		t.Fatalf("expected both transformers")
	}
	if deps.RequestTransformer.Direction() != DirectionUp || deps.ResponseTransformer.Direction() != DirectionDown {
		t.Fatalf("unexpected transformer directions")
	}
	cfg := svc.Config()
	if cfg.ServiceName != DefaultServiceName {
		t.Fatalf("expected default service_name, got %q", cfg.ServiceName)
	}
	if cfg.Routing.VersionHeader != DefaultVersionHeader {
		t.Fatalf("expected default version header, got %q", cfg.Routing.VersionHeader)
	}
	if svc.CanonicalVersion() != "2020-01-01" {
		t.Fatalf("expected canonical to default to latest, got %q", svc.CanonicalVersion())
	}
}

func TestNewService_WithOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	configProvider := &fixedConfigProvider{cfg: testConfig("v1")}
	resolved := testConfig("v1", "v2")
	resolved.ServiceName = "resolved"
	optionsResolver := &fixedOptionsResolver{cfg: resolved}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("apiversions.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider override")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver override")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}

	_, err = svc.ResolveClientVersion("v9", "")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Message != "mapped" {
		t.Fatalf("expected custom mapper to shape errors, got %v", err)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name":      "from-config",
		"versions":          []any{"v1", "v2", "v3"},
		"canonical_version": "v2",
		"transform": map[string]any{
			"timeout_ms": 250,
		},
	}})

	svc, err := NewService(Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if len(cfg.Versions) != 3 {
		t.Fatalf("expected config layer versions, got %#v", cfg.Versions)
	}
	if cfg.Transform.TimeoutMS != 250 {
		t.Fatalf("expected config layer timeout, got %d", cfg.Transform.TimeoutMS)
	}
	if cfg.ConflictPolicy != string(ConflictPolicyReject) {
		t.Fatalf("expected default conflict policy, got %q", cfg.ConflictPolicy)
	}
	if svc.CanonicalVersion() != "v2" {
		t.Fatalf("expected configured canonical version, got %q", svc.CanonicalVersion())
	}
}

func TestNewService_DefaultVersionsYieldToConfigAndRuntime(t *testing.T) {
	fallback, err := NewService(Config{}, WithDefaultVersions("v1", "v2"))
	if err != nil {
		t.Fatalf("new service with default versions: %v", err)
	}
	if got := fallback.Catalog().Versions(); !reflect.DeepEqual(got, []string{"v1", "v2"}) {
		t.Fatalf("expected default catalog, got %#v", got)
	}
	if fallback.CanonicalVersion() != "v2" {
		t.Fatalf("expected latest default version as canonical, got %q", fallback.CanonicalVersion())
	}

	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"versions": []any{"v1", "v2", "v3"},
	}})
	configured, err := NewService(Config{}, WithDefaultVersions("v1", "v2"), WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service with config catalog: %v", err)
	}
	if got := configured.Catalog().Versions(); !reflect.DeepEqual(got, []string{"v1", "v2", "v3"}) {
		t.Fatalf("expected config catalog to replace defaults, got %#v", got)
	}

	runtime, err := NewService(Config{Versions: []string{"r1"}}, WithDefaultVersions("v1", "v2"), WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service with runtime catalog: %v", err)
	}
	if got := runtime.Catalog().Versions(); !reflect.DeepEqual(got, []string{"r1"}) {
		t.Fatalf("expected runtime catalog to win, got %#v", got)
	}
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	cases := map[string]Config{
		"no versions":       {},
		"unknown canonical": {Versions: []string{"v1"}, CanonicalVersion: "v2"},
		"bad policy":        {Versions: []string{"v1"}, ConflictPolicy: "merge"},
		"negative timeout":  {Versions: []string{"v1"}, Transform: TransformConfig{TimeoutMS: -1}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewService(cfg)
			if !IsConfigError(err) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestNewService_RegistrationFailureStopsBoot(t *testing.T) {
	_, err := NewService(testConfig("v1", "v2"), WithRequestChanges(ChangeModule{
		Name:    "broken",
		Changes: []ChangeConfig{{Target: "workflow.create", Version: "v3", Up: Identity()}},
	}))
	if !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.Metadata["module"] != "broken" {
		t.Fatalf("expected module metadata, got %#v", richErr.Metadata)
	}
}

func TestService_RequestAndResponseChannels(t *testing.T) {
	request, response := workflowModules()
	svc, err := NewService(testConfig("2019-01-01", "2020-01-01", "2020-06-01"),
		WithRequestChanges(request),
		WithResponseChanges(response),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	canonical := svc.CanonicalVersion()

	in, err := svc.ApplyRequestChanges(ctx, ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "2019-01-01",
		ToVersion:   canonical,
		Params:      Params{"notifyURL": "http://x"},
	})
	if err != nil {
		t.Fatalf("apply request: %v", err)
	}
	if !reflect.DeepEqual(in, Params{"notifyUrl": "http://x"}) {
		t.Fatalf("unexpected request payload %#v", in)
	}

	out, err := svc.ApplyResponseChanges(ctx, ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: canonical,
		ToVersion:   "2019-01-01",
		Params:      Params{"id": "wf_1", "notifyUrl": "http://x"},
	})
	if err != nil {
		t.Fatalf("apply response: %v", err)
	}
	if !reflect.DeepEqual(out, Params{"id": "wf_1", "notifyURL": "http://x"}) {
		t.Fatalf("unexpected response payload %#v", out)
	}

	if got := svc.RequestChanges("workflow.create"); len(got) != 1 {
		t.Fatalf("expected one request change, got %d", len(got))
	}
	plan, err := svc.PlanResponse("workflow.create", canonical, "2019-01-01")
	if err != nil {
		t.Fatalf("plan response: %v", err)
	}
	if plan.Direction != DirectionDown || len(plan.Steps) != 1 {
		t.Fatalf("unexpected response plan %#v", plan)
	}
	if _, err := svc.Transformer(Channel("sideways")); err == nil {
		t.Fatalf("expected unknown channel to fail")
	}
}

func TestService_RegisterChangesAfterBoot(t *testing.T) {
	svc, err := NewService(testConfig("v1", "v2"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.RegisterRequestChanges(ChangeModule{Name: "plugin", Changes: []ChangeConfig{
		{Target: "role.create", Version: "v2", Up: SetDefault("permissions", []any{})},
	}}); err != nil {
		t.Fatalf("register request changes: %v", err)
	}
	out, err := svc.ApplyRequestChanges(context.Background(), ApplyChangesRequest{
		Target: "role.create", FromVersion: "v1", ToVersion: "v2", Params: Params{"name": "admin"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := out["permissions"]; !ok {
		t.Fatalf("expected plugin change to apply, got %#v", out)
	}
	if err := svc.RegisterResponseChanges(ChangeModule{Name: "broken", Changes: []ChangeConfig{
		{Target: "role.read", Version: "v9", Up: Identity()},
	}}); !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestService_ResolveClientVersion(t *testing.T) {
	svc, err := NewService(testConfig("v1", "v2", "v3"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cases := []struct {
		declared string
		fallback string
		want     string
	}{
		{declared: "v1", fallback: "v2", want: "v1"},
		{declared: "", fallback: "v2", want: "v2"},
		{declared: " ", fallback: "", want: "v3"},
	}
	for _, tc := range cases {
		got, err := svc.ResolveClientVersion(tc.declared, tc.fallback)
		if err != nil {
			t.Fatalf("resolve %q/%q: %v", tc.declared, tc.fallback, err)
		}
		if got != tc.want {
			t.Fatalf("resolve %q/%q: expected %q, got %q", tc.declared, tc.fallback, tc.want, got)
		}
	}
	if _, err := svc.ResolveClientVersion("v9", ""); !IsUnknownVersion(err) {
		t.Fatalf("expected unknown version error, got %v", err)
	}
}

func TestService_DescribeCatalog(t *testing.T) {
	cfg := testConfig("v1", "v2", "v3")
	cfg.CanonicalVersion = "v2"
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	description := svc.DescribeCatalog()
	want := CatalogDescription{Versions: []string{"v1", "v2", "v3"}, Earliest: "v1", Latest: "v3", Canonical: "v2"}
	if !reflect.DeepEqual(description, want) {
		t.Fatalf("unexpected description %#v", description)
	}
}
