package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// promauto 注册到全局 registry，每个测试用独立命名空间避免冲突
var collectorNamespaceSeq uint64

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return NewCollector(fmt.Sprintf("test_%d", seq), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	require.NotNil(t, collector)
	for name, vec := range map[string]any{
		"http_requests_total":   collector.httpRequestsTotal,
		"http_request_duration": collector.httpRequestDuration,
		"llm_requests_total":    collector.llmRequestsTotal,
		"llm_tokens_used":       collector.llmTokensUsed,
		"invoke_attempts":       collector.invokeAttemptsTotal,
		"extract_requests":      collector.extractRequestsTotal,
	} {
		assert.NotNil(t, vec, name)
	}
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordHTTPRequest("GET", "/plans", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/plans", 200, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/plans", 500, 10*time.Millisecond, 256, 64)

	// 状态码折叠成等级标签，同一 (method, path, 等级) 共享时间序列
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/plans", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/plans", "5xx")))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordLLMRequest("claude", "claude-3-5-sonnet-20241022", "success",
		500*time.Millisecond, 100, 50)

	assert.Greater(t, testutil.CollectAndCount(collector.llmRequestsTotal), 0)
	// prompt 和 completion 各占一个时间序列
	assert.Equal(t, 2, testutil.CollectAndCount(collector.llmTokensUsed))
	assert.Equal(t, float64(100), testutil.ToFloat64(
		collector.llmTokensUsed.WithLabelValues("claude", "claude-3-5-sonnet-20241022", "prompt")))
}

func TestCollector_RecordInvokeMetrics(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordInvokeAttempt("structure", false)
	collector.RecordInvokeAttempt("structure", true)
	collector.RecordInvokeFallback("structure")
	collector.RecordInvokeExhausted("explore")

	// success 和 retry 各占一个时间序列
	assert.Equal(t, 2, testutil.CollectAndCount(collector.invokeAttemptsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.invokeFallbacksTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.invokeExhaustedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.invokeFallbacksTotal.WithLabelValues("structure")))
}

func TestCollector_RecordExtraction(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordExtraction("ok", 2*time.Second, 512*1024)
	collector.RecordExtraction("error", 100*time.Millisecond, 2048)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.extractRequestsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.extractRequestsTotal.WithLabelValues("ok")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordCacheHit("extraction")
	collector.RecordCacheHit("extraction")
	collector.RecordCacheMiss("extraction")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.cacheHits.WithLabelValues("extraction")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("extraction")))
}

func TestCollector_RecordDBMetrics(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordDBConnections("planflow", 5, 2)
	collector.RecordDBQuery("planflow", "select", 10*time.Millisecond)

	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("planflow")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("planflow")))
	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/plans", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordLLMRequest("claude", "claude-3-5-sonnet-20241022", "success", 500*time.Millisecond, 100, 50)
			collector.RecordCacheHit("extraction")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/plans", "2xx")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.cacheHits.WithLabelValues("extraction")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{529, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code), "status %d", tt.code)
	}
}
