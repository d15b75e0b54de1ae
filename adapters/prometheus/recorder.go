package prometheus

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-paykit/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultBuckets suit millisecond latencies of provider HTTP calls.
var DefaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type Config struct {
	// Namespace is prepended to every metric name.
	Namespace string
	// Registry receives the collectors. A private registry is created when nil.
	Registry *prom.Registry
	Buckets  []float64
}

// Recorder implements core.MetricsRecorder on top of Prometheus vectors.
// Label names of a metric are fixed by its first observation; later tags
// missing a label record it empty and unknown tags are dropped.
type Recorder struct {
	namespace string
	registry  *prom.Registry
	buckets   []float64

	mu         sync.Mutex
	counters   map[string]*counterMetric
	histograms map[string]*histogramMetric
}

type counterMetric struct {
	vec    *prom.CounterVec
	labels []string
}

type histogramMetric struct {
	vec    *prom.HistogramVec
	labels []string
}

var _ core.MetricsRecorder = (*Recorder)(nil)

func NewRecorder(cfg Config) *Recorder {
	registry := cfg.Registry
	if registry == nil {
		registry = prom.NewRegistry()
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	return &Recorder{
		namespace:  sanitizeName(cfg.Namespace),
		registry:   registry,
		buckets:    append([]float64(nil), buckets...),
		counters:   map[string]*counterMetric{},
		histograms: map[string]*histogramMetric{},
	}
}

// Registry exposes the registry so hosts can serve it with promhttp.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	metric := r.counter(name, tags)
	if metric == nil {
		return
	}
	metric.vec.WithLabelValues(labelValues(metric.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	metric := r.histogram(name, tags)
	if metric == nil {
		return
	}
	metric.vec.WithLabelValues(labelValues(metric.labels, tags)...).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) *counterMetric {
	fqName := r.fqName(name)
	if fqName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if metric, ok := r.counters[fqName]; ok {
		return metric
	}
	labels := labelNames(tags)
	vec := prom.NewCounterVec(prom.CounterOpts{
		Name: fqName,
		Help: "paykit counter " + name,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		var existing prom.AlreadyRegisteredError
		if !errors.As(err, &existing) {
			r.counters[fqName] = nil
			return nil
		}
		registered, ok := existing.ExistingCollector.(*prom.CounterVec)
		if !ok {
			r.counters[fqName] = nil
			return nil
		}
		vec = registered
	}
	metric := &counterMetric{vec: vec, labels: labels}
	r.counters[fqName] = metric
	return metric
}

func (r *Recorder) histogram(name string, tags map[string]string) *histogramMetric {
	fqName := r.fqName(name)
	if fqName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if metric, ok := r.histograms[fqName]; ok {
		return metric
	}
	labels := labelNames(tags)
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Name:    fqName,
		Help:    "paykit histogram " + name,
		Buckets: r.buckets,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		var existing prom.AlreadyRegisteredError
		if !errors.As(err, &existing) {
			r.histograms[fqName] = nil
			return nil
		}
		registered, ok := existing.ExistingCollector.(*prom.HistogramVec)
		if !ok {
			r.histograms[fqName] = nil
			return nil
		}
		vec = registered
	}
	metric := &histogramMetric{vec: vec, labels: labels}
	r.histograms[fqName] = metric
	return metric
}

func (r *Recorder) fqName(name string) string {
	name = sanitizeName(name)
	if name == "" {
		return ""
	}
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for key := range tags {
		name := sanitizeName(key)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []string, tags map[string]string) []string {
	values := make([]string, len(labels))
	if len(tags) == 0 {
		return values
	}
	byName := make(map[string]string, len(tags))
	for key, value := range tags {
		byName[sanitizeName(key)] = value
	}
	for i, label := range labels {
		values[i] = byName[label]
	}
	return values
}

// sanitizeName maps dotted paykit names onto the Prometheus charset.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name) + 1)
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "m_" + out
	}
	return out
}
