package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/planflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		RequestsPerSec: 1000, // 测试里不做限流
		Burst:          1000,
	}, zap.NewNop())
}

func TestClient_ExtractPDF(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/extract", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "sbc.pdf", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "Deductible: $1,500 individual / $3,000 family",
			"pages": [
				{"page_number": 1, "text": "Deductible: $1,500 individual"},
				{"page_number": 2, "text": "/ $3,000 family"}
			]
		}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	result, err := client.ExtractPDF(context.Background(), "sbc.pdf", []byte("%PDF-1.7 fake"))
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Contains(t, result.Text, "Deductible")
	assert.Equal(t, 2, result.PageCount)
	require.Len(t, result.Pages, 2)
	assert.Equal(t, 1, result.Pages[0].Number)
}

func TestClient_ExtractPDF_TooLarge(t *testing.T) {
	client := NewClient(Config{
		BaseURL:          "http://unused",
		MaxDocumentBytes: 8,
	}, zap.NewNop())

	_, err := client.ExtractPDF(context.Background(), "big.pdf", []byte("123456789"))
	require.Error(t, err)
	assert.Equal(t, types.ErrDocumentTooLarge, types.GetErrorCode(err), "超限文档应在本地拒绝")
	assert.False(t, types.IsRetryable(err))
}

func TestClient_ExtractPDF_EmptyDocument(t *testing.T) {
	client := testClient("http://unused")
	_, err := client.ExtractPDF(context.Background(), "empty.pdf", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrDocumentUnreadable, types.GetErrorCode(err))
}

func TestClient_ExtractPDF_NoText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "   ", "pages": []}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.ExtractPDF(context.Background(), "scan.pdf", []byte("%PDF scan"))
	require.Error(t, err)
	// 扫描件没有可抽取文本
	assert.Equal(t, types.ErrDocumentUnreadable, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}

func TestClient_ExtractPDF_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		expectedCode  types.ErrorCode
		expectedRetry bool
	}{
		{
			name:          "429 可重试",
			status:        http.StatusTooManyRequests,
			body:          `{"error":{"code":"rate_limited","message":"slow down"}}`,
			expectedCode:  types.ErrExtractionFailed,
			expectedRetry: true,
		},
		{
			name:          "413 文档过大",
			status:        http.StatusRequestEntityTooLarge,
			body:          `{"error":{"code":"too_large","message":"document too large"}}`,
			expectedCode:  types.ErrDocumentTooLarge,
			expectedRetry: false,
		},
		{
			name:          "422 不可读",
			status:        http.StatusUnprocessableEntity,
			body:          `{"error":{"code":"unreadable","message":"cannot parse document"}}`,
			expectedCode:  types.ErrDocumentUnreadable,
			expectedRetry: false,
		},
		{
			name:          "500 可重试",
			status:        http.StatusInternalServerError,
			body:          `{"error":{"code":"internal","message":"boom"}}`,
			expectedCode:  types.ErrExtractionFailed,
			expectedRetry: true,
		},
		{
			name:          "400 不可重试",
			status:        http.StatusBadRequest,
			body:          `bad request`,
			expectedCode:  types.ErrExtractionFailed,
			expectedRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := testClient(server.URL)
			_, err := client.ExtractPDF(context.Background(), "sbc.pdf", []byte("%PDF"))
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, types.GetErrorCode(err))
			assert.Equal(t, tt.expectedRetry, types.IsRetryable(err))
		})
	}
}

func TestClient_ExtractPDF_ContextCanceled(t *testing.T) {
	client := NewClient(Config{
		BaseURL:        "http://unused",
		RequestsPerSec: 0.0001, // 限流器长时间等待，ctx 先取消
		Burst:          1,
	}, zap.NewNop())
	// 耗尽 burst
	client.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ExtractPDF(ctx, "sbc.pdf", []byte("%PDF"))
	require.Error(t, err)
	assert.Equal(t, types.ErrExtractionFailed, types.GetErrorCode(err))
}
