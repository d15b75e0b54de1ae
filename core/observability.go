package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Observer logs and records metrics for one component. The zero value is a
// no-op.
type Observer struct {
	Logger  Logger
	Metrics MetricsRecorder
	// Prefix namespaces metric names, e.g. "paykit.transport".
	Prefix string
}

func NewObserver(logger Logger, metrics MetricsRecorder, prefix string) Observer {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return Observer{
		Logger:  glog.Ensure(logger),
		Metrics: metrics,
		Prefix:  strings.Trim(strings.TrimSpace(prefix), "."),
	}
}

// Observe records a counter and duration histogram for an operation and logs
// its outcome.
func (o Observer) Observe(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := time.Since(startedAt)

	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
		if kind := KindOf(err); kind != "" {
			contextFields["error_kind"] = string(kind)
		}
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"provider", "method", "classification", "event_type"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	o.Count(ctx, operation+".total", tags)
	o.Histogram(ctx, operation+".duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		o.Error(ctx, operation+" failed", contextFields)
		return
	}
	o.Debug(ctx, operation+" succeeded", contextFields)
}

func (o Observer) Count(ctx context.Context, name string, tags map[string]string) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.IncCounter(ctx, o.metricName(name), 1, cloneTags(tags))
}

func (o Observer) Histogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.ObserveHistogram(ctx, o.metricName(name), value, cloneTags(tags))
}

func (o Observer) Debug(ctx context.Context, message string, fields map[string]any) {
	o.log(ctx, "debug", message, fields)
}

func (o Observer) Info(ctx context.Context, message string, fields map[string]any) {
	o.log(ctx, "info", message, fields)
}

func (o Observer) Warn(ctx context.Context, message string, fields map[string]any) {
	o.log(ctx, "warn", message, fields)
}

func (o Observer) Error(ctx context.Context, message string, fields map[string]any) {
	o.log(ctx, "error", message, fields)
}

func (o Observer) log(ctx context.Context, level string, message string, fields map[string]any) {
	if o.Logger == nil {
		return
	}
	logger := o.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	redacted := RedactSensitiveMap(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(redacted))
	}
	args := flattenFields(redacted)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o Observer) metricName(name string) string {
	name = strings.TrimSpace(name)
	if o.Prefix == "" {
		return name
	}
	return o.Prefix + "." + name
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
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
