package core

import (
	"context"
	"fmt"
	"sync"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
	err    error
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.err != nil {
		return nil, l.err
	}
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) hasCounter(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, counter := range m.counters {
		if counter.name == name && counter.tags["status"] == status {
			return true
		}
	}
	return false
}

func (m *captureMetricsRecorder) hasHistogram(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, histogram := range m.histograms {
		if histogram.name == name {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

// callLog records the order in which change functions run.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, entry)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func tracedChange(log *callLog, name string, fn ChangeFunc) ChangeFunc {
	return func(ctx context.Context, params Params, cc ChangeContext) (Params, error) {
		log.add(fmt.Sprintf("%s:%s", name, cc.Direction))
		if fn == nil {
			return params, nil
		}
		return fn(ctx, params, cc)
	}
}

// appendMarker pushes value on the "trail" list so tests can read the fold
// order from the payload itself.
func appendMarker(value string) ChangeFunc {
	return func(_ context.Context, params Params, _ ChangeContext) (Params, error) {
		trail, _ := params["trail"].([]any)
		params["trail"] = append(trail, value)
		return params, nil
	}
}

func popMarker(value string) ChangeFunc {
	return func(_ context.Context, params Params, _ ChangeContext) (Params, error) {
		trail, _ := params["trail"].([]any)
		if len(trail) == 0 || trail[len(trail)-1] != value {
			return nil, fmt.Errorf("expected %q on top of trail %v", value, trail)
		}
		trail = trail[:len(trail)-1]
		if len(trail) == 0 {
			delete(params, "trail")
			return params, nil
		}
		params["trail"] = trail
		return params, nil
	}
}

func trailOf(params Params) []string {
	trail, _ := params["trail"].([]any)
	out := make([]string, 0, len(trail))
	for _, item := range trail {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func mustCatalog(versions ...string) *VersionCatalog {
	catalog, err := NewVersionCatalog(versions...)
	if err != nil {
		panic(err)
	}
	return catalog
}

func mustRegistry(catalog *VersionCatalog, opts ...RegistryOption) *ChangeRegistry {
	registry, err := NewChangeRegistry(catalog, opts...)
	if err != nil {
		panic(err)
	}
	return registry
}

func testConfig(versions ...string) Config {
	cfg := DefaultConfig()
	cfg.Versions = versions
	return cfg
}
