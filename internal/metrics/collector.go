// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 汇集服务的全部 Prometheus 指标
type Collector struct {
	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 上游
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 结构化生成（温度阶梯重试）
	invokeAttemptsTotal  *prometheus.CounterVec
	invokeFallbacksTotal *prometheus.CounterVec
	invokeExhaustedTotal *prometheus.CounterVec

	// 文档抽取
	extractRequestsTotal   *prometheus.CounterVec
	extractRequestDuration *prometheus.HistogramVec
	extractDocumentBytes   prometheus.Histogram

	// 缓存
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 注册全部指标并返回收集器，namespace 作为指标名前缀
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		}, labels)
	}

	sizeBuckets := prometheus.ExponentialBuckets(100, 10, 8)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),

		httpRequestsTotal: counter("http_requests_total",
			"Total number of HTTP requests", "method", "path", "status"),
		httpRequestDuration: histogram("http_request_duration_seconds",
			"HTTP request duration in seconds", prometheus.DefBuckets, "method", "path"),
		httpRequestSize: histogram("http_request_size_bytes",
			"HTTP request size in bytes", sizeBuckets, "method", "path"),
		httpResponseSize: histogram("http_response_size_bytes",
			"HTTP response size in bytes", sizeBuckets, "method", "path"),

		llmRequestsTotal: counter("llm_requests_total",
			"Total number of LLM requests", "provider", "model", "status"),
		llmRequestDuration: histogram("llm_request_duration_seconds",
			"LLM request duration in seconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, "provider", "model"),
		// type 标签区分 prompt / completion
		llmTokensUsed: counter("llm_tokens_used_total",
			"Total number of tokens used", "provider", "model", "type"),

		// outcome 标签区分 success / retry
		invokeAttemptsTotal: counter("invoke_attempts_total",
			"Total number of structured generation attempts", "operation", "outcome"),
		invokeFallbacksTotal: counter("invoke_fallbacks_total",
			"Total number of backup-model fallback attempts", "operation"),
		invokeExhaustedTotal: counter("invoke_exhausted_total",
			"Total number of structured generations that exhausted all attempts", "operation"),

		// status 标签区分 ok / error / cached
		extractRequestsTotal: counter("extract_requests_total",
			"Total number of document extraction requests", "status"),
		extractRequestDuration: histogram("extract_request_duration_seconds",
			"Document extraction duration in seconds",
			[]float64{0.5, 1, 2, 5, 10, 30, 60, 120}, "status"),
		extractDocumentBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_document_bytes",
			Help:      "Uploaded document size in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		cacheHits: counter("cache_hits_total",
			"Total number of cache hits", "cache_type"),
		cacheMisses: counter("cache_misses_total",
			"Total number of cache misses", "cache_type"),

		dbConnectionsOpen: gauge("db_connections_open",
			"Number of open database connections", "database"),
		dbConnectionsIdle: gauge("db_connections_idle",
			"Number of idle database connections", "database"),
		dbQueryDuration: histogram("db_query_duration_seconds",
			"Database query duration in seconds", prometheus.DefBuckets, "database", "operation"),
	}

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordHTTPRequest 记录一次 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordLLMRequest 记录一次 LLM 上游调用及其 token 消耗
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordInvokeAttempt 记录一次生成尝试，success 表示该次是否成功
func (c *Collector) RecordInvokeAttempt(operation string, success bool) {
	outcome := "retry"
	if success {
		outcome = "success"
	}
	c.invokeAttemptsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordInvokeFallback 记录一次备用模型降级
func (c *Collector) RecordInvokeFallback(operation string) {
	c.invokeFallbacksTotal.WithLabelValues(operation).Inc()
}

// RecordInvokeExhausted 记录一次全部尝试耗尽
func (c *Collector) RecordInvokeExhausted(operation string) {
	c.invokeExhaustedTotal.WithLabelValues(operation).Inc()
}

// RecordExtraction 记录一次文档抽取
func (c *Collector) RecordExtraction(status string, duration time.Duration, documentBytes int64) {
	c.extractRequestsTotal.WithLabelValues(status).Inc()
	c.extractRequestDuration.WithLabelValues(status).Observe(duration.Seconds())
	c.extractDocumentBytes.Observe(float64(documentBytes))
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections 记录数据库连接池状态
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录一次数据库查询耗时
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// statusCode 将 HTTP 状态码折叠为等级标签，避免标签基数爆炸
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
