package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

func (t *VersionTransformer) observe(
	ctx context.Context,
	startedAt time.Time,
	plan TransformationPlan,
	err error,
) {
	if t == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	direction := string(plan.Direction)
	if direction == "" {
		direction = "none"
	}
	elapsed := t.now().Sub(startedAt)

	fields := map[string]any{
		"label":        t.label,
		"target":       plan.Target,
		"from_version": plan.FromVersion,
		"to_version":   plan.ToVersion,
		"direction":    direction,
		"steps":        len(plan.Steps),
		"status":       status,
		"duration_ms":  elapsed.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	tags := map[string]string{
		"target":    plan.Target,
		"direction": direction,
		"status":    status,
	}
	prefix := "apiversions." + normalizeOperation(t.label) + ".transform"
	t.recordCounter(ctx, prefix+".total", 1, tags)
	t.recordHistogram(ctx, prefix+".duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		t.logWithLevel(ctx, "error", t.label+" transformation failed", fields)
		return
	}
	t.logWithLevel(ctx, "debug", t.label+" transformation applied", fields)
}

func (t *VersionTransformer) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if t == nil || t.logger == nil {
		return
	}
	logger := t.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (t *VersionTransformer) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if t == nil || t.metricsRecorder == nil {
		return
	}
	t.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (t *VersionTransformer) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if t == nil || t.metricsRecorder == nil {
		return
	}
	t.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
