package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func newScenarioTransformer(t *testing.T, label string, direction Direction, opts ...TransformerOption) *VersionTransformer {
	t.Helper()
	registry := mustRegistry(mustCatalog("2019-01-01", "2020-01-01", "2020-06-01"))
	if err := registry.Register(ChangeModule{Name: "workflow", Changes: []ChangeConfig{
		{
			Target:  "workflow.create",
			Version: "2020-01-01",
			Up:      RenameField("notifyURL", "notifyUrl"),
			Down:    RenameField("notifyUrl", "notifyURL"),
		},
	}}); err != nil {
		t.Fatalf("register workflow changes: %v", err)
	}
	transformer, err := NewVersionTransformer(label, direction, registry, opts...)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	return transformer
}

func TestVersionTransformer_WorkflowCreateScenario(t *testing.T) {
	transformer := newScenarioTransformer(t, "request", DirectionUp)
	ctx := context.Background()

	up, err := transformer.ApplyChanges(ctx, ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "2019-01-01",
		ToVersion:   "2020-06-01",
		Params:      Params{"notifyURL": "http://x"},
	})
	if err != nil {
		t.Fatalf("apply up: %v", err)
	}
	if !reflect.DeepEqual(up, Params{"notifyUrl": "http://x"}) {
		t.Fatalf("unexpected up result %#v", up)
	}

	down, err := transformer.ApplyChanges(ctx, ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "2020-06-01",
		ToVersion:   "2019-01-01",
		Params:      Params{"notifyUrl": "http://x"},
	})
	if err != nil {
		t.Fatalf("apply down: %v", err)
	}
	if !reflect.DeepEqual(down, Params{"notifyURL": "http://x"}) {
		t.Fatalf("unexpected down result %#v", down)
	}

	same, err := transformer.ApplyChanges(ctx, ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "2020-01-01",
		ToVersion:   "2020-01-01",
		Params:      Params{"notifyURL": "http://x"},
	})
	if err != nil {
		t.Fatalf("apply identity: %v", err)
	}
	if !reflect.DeepEqual(same, Params{"notifyURL": "http://x"}) {
		t.Fatalf("expected equal versions to leave payload untouched, got %#v", same)
	}
}

func TestVersionTransformer_IdentityInvokesNoChange(t *testing.T) {
	log := &callLog{}
	registry := mustRegistry(mustCatalog("v1", "v2", "v3"))
	for _, version := range []string{"v1", "v2", "v3"} {
		if err := registry.Register(ChangeModule{Name: version, Changes: []ChangeConfig{
			{
				Target:  "workflow.create",
				Version: version,
				Up:      tracedChange(log, version, nil),
				Down:    tracedChange(log, version, nil),
			},
		}}); err != nil {
			t.Fatalf("register %s: %v", version, err)
		}
	}
	transformer, err := NewVersionTransformer("request", DirectionUp, registry)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}

	for _, version := range []string{"v1", "v2", "v3"} {
		params := Params{"name": "flow"}
		out, err := transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
			Target:      "workflow.create",
			FromVersion: version,
			ToVersion:   version,
			Params:      params,
		})
		if err != nil {
			t.Fatalf("apply %s: %v", version, err)
		}
		if !reflect.DeepEqual(out, params) {
			t.Fatalf("expected identity for %s, got %#v", version, out)
		}
	}
	if calls := log.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no change invocation, got %v", calls)
	}
}

func TestVersionTransformer_AppliesHalfOpenRangeInDirectionOrder(t *testing.T) {
	registry := mustRegistry(mustCatalog("v1", "v2", "v3", "v4"))
	for _, version := range []string{"v1", "v2", "v3", "v4"} {
		if err := registry.Register(ChangeModule{Name: version, Changes: []ChangeConfig{
			{Target: "t", Version: version, Up: appendMarker(version), Down: popMarker(version)},
		}}); err != nil {
			t.Fatalf("register %s: %v", version, err)
		}
	}
	transformer, err := NewVersionTransformer("request", DirectionUp, registry)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}

	plan, err := transformer.Plan("t", "v1", "v3")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Direction != DirectionUp || len(plan.Steps) != 2 || plan.Steps[0].Version != "v2" || plan.Steps[1].Version != "v3" {
		t.Fatalf("unexpected forward plan %#v", plan)
	}

	plan, err = transformer.Plan("t", "v4", "v2")
	if err != nil {
		t.Fatalf("plan down: %v", err)
	}
	if plan.Direction != DirectionDown || len(plan.Steps) != 2 || plan.Steps[0].Version != "v4" || plan.Steps[1].Version != "v3" {
		t.Fatalf("unexpected backward plan %#v", plan)
	}

	out, err := transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
		Target: "t", FromVersion: "v1", ToVersion: "v4", Params: Params{},
	})
	if err != nil {
		t.Fatalf("apply up: %v", err)
	}
	if got := trailOf(out); !reflect.DeepEqual(got, []string{"v2", "v3", "v4"}) {
		t.Fatalf("unexpected forward trail %v", got)
	}
}

func TestVersionTransformer_CompositionLaw(t *testing.T) {
	registry := mustRegistry(mustCatalog("v1", "v2", "v3", "v4"))
	if err := registry.Register(ChangeModule{Name: "all", Changes: []ChangeConfig{
		{Target: "t", Version: "v2", Up: RenameField("a", "b"), Down: RenameField("b", "a")},
		{Target: "t", Version: "v3", Up: MoveField("b", "nested.b"), Down: MoveField("nested.b", "b")},
		{Target: "t", Version: "v4", Up: SetDefault("flag", true), Down: DropField("flag")},
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	transformer, err := NewVersionTransformer("request", DirectionUp, registry)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	ctx := context.Background()
	apply := func(from, to string, params Params) Params {
		t.Helper()
		out, applyErr := transformer.ApplyChanges(ctx, ApplyChangesRequest{Target: "t", FromVersion: from, ToVersion: to, Params: params})
		if applyErr != nil {
			t.Fatalf("apply %s->%s: %v", from, to, applyErr)
		}
		return out
	}

	direct := apply("v1", "v4", Params{"a": 1})
	stepped := apply("v3", "v4", apply("v2", "v3", apply("v1", "v2", Params{"a": 1})))
	if !reflect.DeepEqual(direct, stepped) {
		t.Fatalf("composition mismatch: direct=%#v stepped=%#v", direct, stepped)
	}
	want := Params{"nested": map[string]any{"b": 1}, "flag": true}
	if !reflect.DeepEqual(direct, want) {
		t.Fatalf("unexpected result %#v", direct)
	}

	back := apply("v4", "v1", direct)
	if !reflect.DeepEqual(back, Params{"a": 1}) {
		t.Fatalf("expected round trip to restore payload, got %#v", back)
	}
}

func TestVersionTransformer_Deterministic(t *testing.T) {
	transformer := newScenarioTransformer(t, "request", DirectionUp)
	var first Params
	for attempt := 0; attempt < 10; attempt++ {
		out, err := transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
			Target:      "workflow.create",
			FromVersion: "2019-01-01",
			ToVersion:   "2020-06-01",
			Params:      Params{"notifyURL": "http://x", "steps": []any{map[string]any{"id": "s1"}}},
		})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if first == nil {
			first = out
			continue
		}
		if !reflect.DeepEqual(first, out) {
			t.Fatalf("expected deterministic output, got %#v and %#v", first, out)
		}
	}
}

func TestVersionTransformer_UnknownVersion(t *testing.T) {
	transformer := newScenarioTransformer(t, "request", DirectionUp)
	_, err := transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "1999-01-01",
		ToVersion:   "2020-06-01",
		Params:      Params{},
	})
	if !IsUnknownVersion(err) {
		t.Fatalf("expected unknown version error, got %v", err)
	}
}

func TestVersionTransformer_MissingDownFailsBeforeAnyChangeRuns(t *testing.T) {
	log := &callLog{}
	registry := mustRegistry(mustCatalog("v1", "v2", "v3"))
	if err := registry.Register(ChangeModule{Name: "m", Changes: []ChangeConfig{
		{Target: "t", Version: "v2", Up: Identity()},
		{Target: "t", Version: "v3", Up: Identity(), Down: tracedChange(log, "v3", nil)},
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	transformer, err := NewVersionTransformer("response", DirectionDown, registry)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	_, err = transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
		Target: "t", FromVersion: "v3", ToVersion: "v1", Params: Params{},
	})
	if !IsChangeExecutionError(err) {
		t.Fatalf("expected change execution error, got %v", err)
	}
	if calls := log.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no change to run, got %v", calls)
	}
}

func TestVersionTransformer_FailureLeavesCallerPayloadUntouched(t *testing.T) {
	registry := mustRegistry(mustCatalog("v1", "v2", "v3"))
	failing := func(context.Context, Params, ChangeContext) (Params, error) {
		return nil, errors.New("boom")
	}
	if err := registry.Register(ChangeModule{Name: "m", Changes: []ChangeConfig{
		{Target: "t", Version: "v2", Up: Compose(RenameField("a", "b"), SetDefault("nested.x", 1))},
		{Target: "t", Version: "v3", Up: failing},
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	transformer, err := NewVersionTransformer("request", DirectionUp, registry)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	params := Params{"a": "value", "nested": map[string]any{}}
	_, err = transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
		Target: "t", FromVersion: "v1", ToVersion: "v3", Params: params,
	})
	if !IsChangeExecutionError(err) {
		t.Fatalf("expected change execution error, got %v", err)
	}
	if !reflect.DeepEqual(params, Params{"a": "value", "nested": map[string]any{}}) {
		t.Fatalf("expected caller payload untouched, got %#v", params)
	}
}

func TestVersionTransformer_PanicAndNilPayloadAreExecutionErrors(t *testing.T) {
	cases := map[string]ChangeFunc{
		"panic": func(context.Context, Params, ChangeContext) (Params, error) {
			panic("kaboom")
		},
		"nil payload": func(context.Context, Params, ChangeContext) (Params, error) {
			return nil, nil
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			registry := mustRegistry(mustCatalog("v1", "v2"))
			if err := registry.Register(ChangeModule{Name: "m", Changes: []ChangeConfig{
				{Target: "t", Version: "v2", Up: fn},
			}}); err != nil {
				t.Fatalf("register: %v", err)
			}
			transformer, err := NewVersionTransformer("request", DirectionUp, registry)
			if err != nil {
				t.Fatalf("new transformer: %v", err)
			}
			_, err = transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
				Target: "t", FromVersion: "v1", ToVersion: "v2", Params: Params{},
			})
			if !IsChangeExecutionError(err) {
				t.Fatalf("expected change execution error, got %v", err)
			}
		})
	}
}

func TestVersionTransformer_TimeoutAbandonsFold(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	registry := mustRegistry(mustCatalog("v1", "v2"))
	if err := registry.Register(ChangeModule{Name: "slow", Changes: []ChangeConfig{
		{Target: "t", Version: "v2", Up: func(_ context.Context, params Params, _ ChangeContext) (Params, error) {
			<-release
			return params, nil
		}},
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	transformer, err := NewVersionTransformer("request", DirectionUp, registry, WithTransformTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	_, err = transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
		Target: "t", FromVersion: "v1", ToVersion: "v2", Params: Params{},
	})
	if !IsTransformationTimeout(err) {
		t.Fatalf("expected transformation timeout, got %v", err)
	}
}

func TestVersionTransformer_CallerCancellation(t *testing.T) {
	transformer := newScenarioTransformer(t, "request", DirectionUp)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := transformer.ApplyChanges(ctx, ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "2019-01-01",
		ToVersion:   "2020-06-01",
		Params:      Params{"notifyURL": "http://x"},
	})
	if !IsTransformationTimeout(err) {
		t.Fatalf("expected cancelled fold to surface transformation timeout, got %v", err)
	}
}

func TestVersionTransformer_RecordsMetricsAndLogs(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	transformer := newScenarioTransformer(t, "request", DirectionUp,
		WithTransformerMetrics(metrics),
		WithTransformerLogger(logger),
	)
	if _, err := transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "2019-01-01",
		ToVersion:   "2020-06-01",
		Params:      Params{"notifyURL": "http://x"},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := transformer.ApplyChanges(context.Background(), ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "2019-01-01",
		ToVersion:   "1999-01-01",
	}); err == nil {
		t.Fatalf("expected unknown version failure")
	}

	if !metrics.hasCounter("apiversions.request.transform.total", "success") {
		t.Fatalf("expected success counter")
	}
	if !metrics.hasCounter("apiversions.request.transform.total", "failure") {
		t.Fatalf("expected failure counter")
	}
	if !metrics.hasHistogram("apiversions.request.transform.duration_ms") {
		t.Fatalf("expected duration histogram")
	}

	var sawDebug, sawError bool
	for _, record := range logger.snapshot() {
		switch record.level {
		case "debug":
			sawDebug = record.fields["target"] == "workflow.create" && record.fields["status"] == "success"
		case "error":
			sawError = record.fields["status"] == "failure" && record.fields["error"] != nil
		}
	}
	if !sawDebug || !sawError {
		t.Fatalf("expected debug success and error failure logs, got %#v", logger.snapshot())
	}
}

func TestNewVersionTransformer_Validation(t *testing.T) {
	registry := mustRegistry(mustCatalog("v1"))
	if _, err := NewVersionTransformer(" ", DirectionUp, registry); !IsConfigError(err) {
		t.Fatalf("expected config error for blank label, got %v", err)
	}
	if _, err := NewVersionTransformer("request", Direction("sideways"), registry); !IsConfigError(err) {
		t.Fatalf("expected config error for direction, got %v", err)
	}
	if _, err := NewVersionTransformer("request", DirectionUp, nil); !IsConfigError(err) {
		t.Fatalf("expected config error for nil registry, got %v", err)
	}
}
