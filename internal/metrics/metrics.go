// Package metrics 提供博客 API 的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 持有全部采集器，nil *Metrics 合法且不记录任何数据
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 文章/标签生命周期指标
	PostsSavedTotal     *prometheus.CounterVec
	SlugCollisionsTotal prometheus.Counter
	TagsCollectedTotal  prometheus.Counter
	TagGCFailuresTotal  prometheus.Counter
}

// New 创建注册表并注册全部采集器
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkwell_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inkwell_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PostsSavedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkwell_posts_saved_total",
				Help: "Total number of post saves by operation",
			},
			[]string{"op"},
		),
		SlugCollisionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inkwell_slug_collisions_total",
				Help: "Total number of slug candidates rejected because they were taken",
			},
		),
		TagsCollectedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inkwell_tags_collected_total",
				Help: "Total number of orphaned tags deleted",
			},
		),
		TagGCFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inkwell_tag_gc_failures_total",
				Help: "Total number of tags that could not be garbage collected",
			},
		),
	}
}

// Handler 以 Prometheus 文本格式暴露指标
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录一次完成的 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// PostSaved 统计已提交的创建或更新
func (m *Metrics) PostSaved(op string) {
	if m == nil {
		return
	}
	m.PostsSavedTotal.WithLabelValues(op).Inc()
}

// SlugCollisions 累加解析单个 slug 时遇到的占用候选数
func (m *Metrics) SlugCollisions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SlugCollisionsTotal.Add(float64(n))
}

// TagsCollected 累加已删除的孤立标签数
func (m *Metrics) TagsCollected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TagsCollectedTotal.Add(float64(n))
}

// TagGCFailed 统计清理失败、留待后续扫描的标签
func (m *Metrics) TagGCFailed() {
	if m == nil {
		return
	}
	m.TagGCFailuresTotal.Inc()
}
