package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mls_proxy"

// Metrics 汇总代理的 Prometheus 指标。nil *Metrics 的所有方法均为空操作，便于测试。
type Metrics struct {
	registry      *prometheus.Registry
	cacheLookups  *prometheus.CounterVec
	originFetches *prometheus.CounterVec
	originLatency prometheus.Histogram
	storeWrites   *prometheus.CounterVec
	responses     *prometheus.CounterVec
}

// New 在独立 registry 上注册全部指标，并附带 Go/进程采集器。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Object store lookups by result (hit, miss, error).",
		}, []string{"result"}),
		originFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origin_fetch_total",
			Help:      "Origin fetches by result (ok or miss reason).",
		}, []string{"result"}),
		originLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "origin_fetch_duration_seconds",
			Help:      "Latency of origin fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Object store writes by result (ok, error).",
		}, []string{"result"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Image responses by HTTP status code.",
		}, []string{"code"}),
	}
	reg.MustRegister(
		m.cacheLookups,
		m.originFetches,
		m.originLatency,
		m.storeWrites,
		m.responses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler 返回 /-/metrics 使用的 exposition handler。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) OriginFetch(result string, seconds float64) {
	if m == nil {
		return
	}
	m.originFetches.WithLabelValues(result).Inc()
	m.originLatency.Observe(seconds)
}

func (m *Metrics) StoreWrite(result string) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) Response(code string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(code).Inc()
}
