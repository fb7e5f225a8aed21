// Package metrics 采集与深度抽取的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsdigest"

// Metrics 所有方法对 nil 接收者安全，未启用指标时可直接传 nil
type Metrics struct {
	ItemsCrawled    *prometheus.CounterVec
	CrawlFailures   *prometheus.CounterVec
	CrawlDuration   *prometheus.HistogramVec
	DeepExtractions *prometheus.CounterVec
	ActiveStreams   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New 在 reg 上注册指标；reg 为 nil 时使用独立的注册表
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ItemsCrawled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_crawled_total",
			Help:      "Normalized items produced per source",
		}, []string{"source"}),
		CrawlFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_failures_total",
			Help:      "Degraded crawl steps per source and failure kind",
		}, []string{"source", "kind"}),
		CrawlDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Wall time of batch crawls",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"source"}),
		DeepExtractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deep_extractions_total",
			Help:      "Deep extractions per strategy and outcome",
		}, []string{"strategy", "outcome"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open SSE crawl streams",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCrawl(source string, items int, failureKinds []string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ItemsCrawled.WithLabelValues(source).Add(float64(items))
	for _, k := range failureKinds {
		m.CrawlFailures.WithLabelValues(source, k).Inc()
	}
	m.CrawlDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveItem(source string) {
	if m == nil {
		return
	}
	m.ItemsCrawled.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveExtraction(strategy string, ok bool) {
	if m == nil {
		return
	}
	outcome := "empty"
	if ok {
		outcome = "ok"
	}
	m.DeepExtractions.WithLabelValues(strategy, outcome).Inc()
}

// StreamOpened 返回的函数在流结束时调用
func (m *Metrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveStreams.Inc()
	return m.ActiveStreams.Dec
}
