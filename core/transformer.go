package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type TransformerOption func(*VersionTransformer)

func WithTransformerLogger(logger Logger) TransformerOption {
	return func(t *VersionTransformer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithTransformerMetrics(recorder MetricsRecorder) TransformerOption {
	return func(t *VersionTransformer) {
		if recorder != nil {
			t.metricsRecorder = recorder
		}
	}
}

// WithTransformTimeout bounds every ApplyChanges call. Zero disables the
// transformer level bound; caller deadlines still apply.
func WithTransformTimeout(timeout time.Duration) TransformerOption {
	return func(t *VersionTransformer) {
		if timeout >= 0 {
			t.timeout = timeout
		}
	}
}

func WithTransformerClock(now func() time.Time) TransformerOption {
	return func(t *VersionTransformer) {
		if now != nil {
			t.now = now
		}
	}
}

type VersionTransformer struct {
	label           string
	direction       Direction
	registry        *ChangeRegistry
	catalog         *VersionCatalog
	logger          Logger
	metricsRecorder MetricsRecorder
	timeout         time.Duration
	now             func() time.Time
}

func NewVersionTransformer(
	label string,
	direction Direction,
	registry *ChangeRegistry,
	opts ...TransformerOption,
) (*VersionTransformer, error) {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return nil, newConfigError("core: transformer label is required", nil)
	}
	if err := direction.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || registry.Catalog() == nil {
		return nil, newConfigError("core: transformer requires a change registry", map[string]any{"label": label})
	}
	transformer := &VersionTransformer{
		label:           label,
		direction:       direction,
		registry:        registry,
		catalog:         registry.Catalog(),
		logger:          glog.Nop(),
		metricsRecorder: NopMetricsRecorder{},
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(transformer)
	}
	return transformer, nil
}

func (t *VersionTransformer) Label() string {
	if t == nil {
		return ""
	}
	return t.label
}

func (t *VersionTransformer) Direction() Direction {
	if t == nil {
		return ""
	}
	return t.direction
}

func (t *VersionTransformer) Registry() *ChangeRegistry {
	if t == nil {
		return nil
	}
	return t.registry
}

// AddChanges is the extension point for modules living outside the core.
func (t *VersionTransformer) AddChanges(modules ...ChangeModule) error {
	if t == nil {
		return newConfigError("core: transformer is nil", nil)
	}
	return t.registry.Register(modules...)
}

func (t *VersionTransformer) Plan(target string, fromVersion string, toVersion string) (TransformationPlan, error) {
	if t == nil {
		return TransformationPlan{}, newConfigError("core: transformer is nil", nil)
	}
	plan, _, err := t.plan(t.registry.Snapshot(), target, fromVersion, toVersion)
	return plan, err
}

func (t *VersionTransformer) ApplyChanges(ctx context.Context, req ApplyChangesRequest) (Params, error) {
	if t == nil {
		return nil, newConfigError("core: transformer is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := t.now()

	plan, steps, err := t.plan(t.registry.Snapshot(), req.Target, req.FromVersion, req.ToVersion)
	if err != nil {
		t.observe(ctx, startedAt, plan, err)
		return nil, err
	}
	if plan.Empty() {
		return req.Params, nil
	}

	out, err := t.run(ctx, plan, steps, req.Params)
	t.observe(ctx, startedAt, plan, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type foldStep struct {
	definition ChangeDefinition
	fn         ChangeFunc
}

type foldResult struct {
	params Params
	err    error
}

func (t *VersionTransformer) plan(
	snapshot *RegistrySnapshot,
	target string,
	fromVersion string,
	toVersion string,
) (TransformationPlan, []foldStep, error) {
	target = normalizeTarget(target)
	fromVersion = normalizeVersion(fromVersion)
	toVersion = normalizeVersion(toVersion)
	plan := TransformationPlan{
		Target:      target,
		FromVersion: fromVersion,
		ToVersion:   toVersion,
		Steps:       []PlanStep{},
	}

	metadata := map[string]any{
		"label":        t.label,
		"target":       target,
		"from_version": fromVersion,
		"to_version":   toVersion,
	}
	fromIndex, ok := t.catalog.Index(fromVersion)
	if !ok {
		return plan, nil, newUnknownVersionError(fromVersion, metadata)
	}
	toIndex, ok := t.catalog.Index(toVersion)
	if !ok {
		return plan, nil, newUnknownVersionError(toVersion, metadata)
	}
	if fromIndex == toIndex {
		return plan, nil, nil
	}

	direction := DirectionUp
	lower, upper := fromIndex, toIndex
	if fromIndex > toIndex {
		direction = DirectionDown
		lower, upper = toIndex, fromIndex
	}
	plan.Direction = direction

	selected := []ChangeDefinition{}
	for _, definition := range snapshot.view(target) {
		position, _ := t.catalog.Index(definition.Version)
		if position > lower && position <= upper {
			selected = append(selected, definition)
		}
	}

	steps := make([]foldStep, 0, len(selected))
	if direction == DirectionUp {
		for _, definition := range selected {
			steps = append(steps, foldStep{definition: definition, fn: definition.Up})
		}
	} else {
		for index := len(selected) - 1; index >= 0; index-- {
			definition := selected[index]
			if definition.Down == nil {
				fields := cloneFields(metadata)
				fields["version"] = definition.Version
				fields["module"] = definition.Module
				fields["direction"] = string(DirectionDown)
				return plan, nil, newChangeExecutionError(
					nil,
					fmt.Sprintf(
						"core: change for target %q at version %q (module %q) has no down inverse",
						target,
						definition.Version,
						definition.Module,
					),
					fields,
				)
			}
			steps = append(steps, foldStep{definition: definition, fn: definition.Down})
		}
	}

	for _, step := range steps {
		plan.Steps = append(plan.Steps, PlanStep{
			Target:      step.definition.Target,
			Version:     step.definition.Version,
			Module:      step.definition.Module,
			Direction:   direction,
			Description: step.definition.Description,
		})
	}
	return plan, steps, nil
}

func (t *VersionTransformer) run(ctx context.Context, plan TransformationPlan, steps []foldStep, params Params) (Params, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	working, err := ClonePayload(params)
	if err != nil {
		return nil, newChangeExecutionError(err, "core: payload cannot be copied for transformation", map[string]any{
			"label":  t.label,
			"target": plan.Target,
		})
	}

	if ctx.Done() == nil {
		return t.fold(ctx, plan, steps, working)
	}

	done := make(chan foldResult, 1)
	go func() {
		out, foldErr := t.fold(ctx, plan, steps, working)
		done <- foldResult{params: out, err: foldErr}
	}()

	select {
	case result := <-done:
		return result.params, result.err
	case <-ctx.Done():
		return nil, t.timeoutError(ctx, plan)
	}
}

func (t *VersionTransformer) fold(ctx context.Context, plan TransformationPlan, steps []foldStep, params Params) (Params, error) {
	for _, step := range steps {
		if ctx.Err() != nil {
			return nil, t.timeoutError(ctx, plan)
		}
		cc := ChangeContext{
			Label:     t.label,
			Target:    step.definition.Target,
			Version:   step.definition.Version,
			Direction: plan.Direction,
		}
		next, err := invokeChange(ctx, step.fn, params, cc)
		if err != nil {
			return nil, t.stepError(plan, step.definition, err)
		}
		if next == nil {
			return nil, t.stepError(plan, step.definition, fmt.Errorf("core: change returned a nil payload"))
		}
		params = next
	}
	return params, nil
}

func invokeChange(ctx context.Context, fn ChangeFunc, params Params, cc ChangeContext) (out Params, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out = nil
			err = fmt.Errorf("core: change panicked: %v", recovered)
		}
	}()
	return fn(ctx, params, cc)
}

func (t *VersionTransformer) stepError(plan TransformationPlan, definition ChangeDefinition, cause error) error {
	if IsTransformationTimeout(cause) {
		return cause
	}
	return newChangeExecutionError(
		cause,
		fmt.Sprintf(
			"core: change for target %q at version %q failed going %s: %v",
			definition.Target,
			definition.Version,
			plan.Direction,
			cause,
		),
		map[string]any{
			"label":        t.label,
			"target":       definition.Target,
			"version":      definition.Version,
			"module":       definition.Module,
			"direction":    string(plan.Direction),
			"from_version": plan.FromVersion,
			"to_version":   plan.ToVersion,
		},
	)
}

func (t *VersionTransformer) timeoutError(ctx context.Context, plan TransformationPlan) error {
	return newTransformationTimeoutError(
		ctx.Err(),
		fmt.Sprintf("core: transformation of target %q from %q to %q was abandoned", plan.Target, plan.FromVersion, plan.ToVersion),
		map[string]any{
			"label":        t.label,
			"target":       plan.Target,
			"from_version": plan.FromVersion,
			"to_version":   plan.ToVersion,
			"direction":    string(plan.Direction),
		},
	)
}
