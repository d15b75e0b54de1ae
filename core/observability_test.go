package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

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
	merged := cloneFieldMap(l.defaults)
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
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
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

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestObserverRecordsSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	observer := NewObserver(logger, metrics, "paykit.transport")

	observer.Observe(context.Background(), time.Now(), "request", nil, map[string]any{
		"provider": "acme",
		"method":   "GET",
	})

	if !hasCounter(metrics.counters, "paykit.transport.request.total", "success") {
		t.Fatalf("expected request success counter, got %#v", metrics.counters)
	}
	if !hasHistogram(metrics.histograms, "paykit.transport.request.duration_ms", "success") {
		t.Fatalf("expected request duration histogram, got %#v", metrics.histograms)
	}
	if metrics.counters[0].tags["provider"] != "acme" || metrics.counters[0].tags["method"] != "GET" {
		t.Fatalf("expected provider and method tags, got %#v", metrics.counters[0].tags)
	}
	if !hasLog(logger.snapshot(), "debug", "request succeeded", "request") {
		t.Fatalf("expected debug success log")
	}
}

func TestObserverRecordsFailureWithKindAndRedaction(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	observer := NewObserver(logger, metrics, "paykit.auth")

	err := NewOperationFailed("getAccessToken", "acme", errors.New("boom"))
	observer.Observe(context.Background(), time.Now(), "Credential Refresh", err, map[string]any{
		"provider":     "acme",
		"access_token": "tok_secret",
	})

	if !hasCounter(metrics.counters, "paykit.auth.credential_refresh.total", "failure") {
		t.Fatalf("expected normalized failure counter, got %#v", metrics.counters)
	}
	logs := logger.snapshot()
	if !hasLog(logs, "error", "credential_refresh failed", "credential_refresh") {
		t.Fatalf("expected error log, got %#v", logs)
	}
	for _, entry := range logs {
		if entry.fields["access_token"] == "tok_secret" {
			t.Fatalf("expected token to be redacted in logs")
		}
		if entry.level == "error" && entry.fields["error_kind"] != string(KindOperationFailed) {
			t.Fatalf("expected error kind field, got %#v", entry.fields["error_kind"])
		}
	}
}

func TestObserverZeroValueIsSafe(t *testing.T) {
	var observer Observer
	observer.Observe(context.Background(), time.Now(), "handle", errors.New("x"), nil)
	observer.Count(context.Background(), "x", nil)
	observer.Warn(context.Background(), "x", nil)
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, operation string) bool {
	for _, item := range items {
		if item.level == level && item.msg == message && item.fields["operation"] == operation {
			return true
		}
	}
	return false
}
