package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/BaSui01/planflow/llm"
	"github.com/BaSui01/planflow/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClaudeProvider_Name(t *testing.T) {
	provider := NewClaudeProvider(providers.ClaudeConfig{}, zap.NewNop())
	assert.Equal(t, "claude", provider.Name())
}

func TestClaudeProvider_DefaultBaseURL(t *testing.T) {
	cfg := providers.ClaudeConfig{
		APIKey: "test-key",
	}
	provider := NewClaudeProvider(cfg, zap.NewNop())
	assert.NotNil(t, provider)
}

func TestClaudeProvider_DefaultModel(t *testing.T) {
	model := chooseClaudeModel(nil, "")
	assert.Equal(t, "claude-3-5-sonnet-20241022", model, "默认模型应为 claude-3-5-sonnet")

	model = chooseClaudeModel(&llm.ChatRequest{Model: "claude-3-opus"}, "cfg-model")
	assert.Equal(t, "claude-3-opus", model, "请求中的模型优先")

	model = chooseClaudeModel(&llm.ChatRequest{}, "cfg-model")
	assert.Equal(t, "cfg-model", model, "其次使用配置中的模型")
}

func TestClaudeProvider_Completion(t *testing.T) {
	var gotReq claudeRequest
	var gotHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))

		resp := claudeResponse{
			ID:         "msg_01",
			Type:       "message",
			Role:       "assistant",
			Model:      "claude-3-5-sonnet-20241022",
			StopReason: "end_turn",
			Content:    []claudeContent{{Type: "text", Text: "hello"}},
			Usage:      &claudeUsage{InputTokens: 12, OutputTokens: 3},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewClaudeProvider(providers.ClaudeConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())

	resp, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "你是保险文档助手"},
			{Role: llm.RoleUser, Content: "解释免赔额"},
		},
		Temperature: llm.Temperature(0.7),
	})
	require.NoError(t, err)

	// 认证头与版本头
	assert.Equal(t, "test-key", gotHeaders.Get("x-api-key"), "应使用 x-api-key 认证")
	assert.Equal(t, "2023-06-01", gotHeaders.Get("anthropic-version"))

	// system 消息应提取到单独字段
	assert.Equal(t, "你是保险文档助手", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	require.NotNil(t, gotReq.Temperature)
	assert.Equal(t, float32(0.7), *gotReq.Temperature)
	assert.Equal(t, 4096, gotReq.MaxTokens, "未指定时应使用默认 max_tokens")

	assert.Equal(t, "hello", resp.FirstText())
	assert.Equal(t, "claude", resp.Provider)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.Choices[0].FinishReason)
}

func TestClaudeProvider_Completion_ZeroTemperatureOnWire(t *testing.T) {
	var rawBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rawBody = string(body)
		json.NewEncoder(w).Encode(claudeResponse{
			ID:      "msg_02",
			Content: []claudeContent{{Type: "text", Text: "ok"}},
		})
	}))
	defer server.Close()

	provider := NewClaudeProvider(providers.ClaudeConfig{APIKey: "k", BaseURL: server.URL}, zap.NewNop())

	// 温度 0 是阶梯首位的合法取值，必须写入请求体
	_, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: llm.Temperature(0),
	})
	require.NoError(t, err)
	assert.Contains(t, rawBody, `"temperature":0`, "温度 0 不应被 omitempty 吞掉")

	// 未设置温度时不携带该字段，交给上游默认值
	_, err = provider.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.NotContains(t, rawBody, `"temperature"`)
}

func TestClaudeProvider_Completion_ErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		expectedCode  llm.ErrorCode
		expectedRetry bool
	}{
		{
			name:          "401 未授权",
			status:        http.StatusUnauthorized,
			body:          `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			expectedCode:  llm.ErrUnauthorized,
			expectedRetry: false,
		},
		{
			name:          "429 限流",
			status:        http.StatusTooManyRequests,
			body:          `{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`,
			expectedCode:  llm.ErrRateLimited,
			expectedRetry: true,
		},
		{
			name:          "400 额度用尽",
			status:        http.StatusBadRequest,
			body:          `{"type":"error","error":{"type":"invalid_request_error","message":"credit balance is too low"}}`,
			expectedCode:  llm.ErrQuotaExceeded,
			expectedRetry: false,
		},
		{
			name:          "529 模型过载",
			status:        529,
			body:          `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
			expectedCode:  llm.ErrModelOverloaded,
			expectedRetry: true,
		},
		{
			name:          "503 上游不可用",
			status:        http.StatusServiceUnavailable,
			body:          `{"type":"error","error":{"type":"api_error","message":"unavailable"}}`,
			expectedCode:  llm.ErrUpstreamError,
			expectedRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := NewClaudeProvider(providers.ClaudeConfig{
				APIKey:  "test-key",
				BaseURL: server.URL,
			}, zap.NewNop())

			_, err := provider.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)

			llmErr, ok := err.(*llm.Error)
			require.True(t, ok, "应返回 *llm.Error")
			assert.Equal(t, tt.expectedCode, llmErr.Code)
			assert.Equal(t, tt.expectedRetry, llmErr.Retryable)
			assert.Equal(t, "claude", llmErr.Provider)
			assert.Equal(t, tt.status, llmErr.HTTPStatus)
		})
	}
}

func TestClaudeProvider_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`event: message_start`,
			`data: {"type":"message_start","message":{"id":"msg_01","model":"claude-3-5-sonnet-20241022"}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"自付"}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"上限"}}`,
			``,
			`event: message_delta`,
			`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
			``,
			`event: message_stop`,
			`data: {"type":"message_stop","usage":{"input_tokens":10,"output_tokens":4}}`,
			``,
		}
		for _, line := range events {
			w.Write([]byte(line + "\n"))
		}
	}))
	defer server.Close()

	provider := NewClaudeProvider(providers.ClaudeConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())

	stream, err := provider.Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "什么是自付上限"}},
	})
	require.NoError(t, err)

	var text string
	var finishReason string
	var usage *llm.ChatUsage
	for chunk := range stream {
		require.Nil(t, chunk.Err, "流式响应不应包含错误")
		text += chunk.Delta.Content
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	assert.Equal(t, "自付上限", text)
	assert.Equal(t, "end_turn", finishReason)
	require.NotNil(t, usage, "最终 chunk 应携带 usage")
	assert.Equal(t, 14, usage.TotalTokens)
}

func TestClaudeProvider_Stream_AbandonedConsumer(t *testing.T) {
	// 无限事件流：消费方弃读后 pump goroutine 必须随 ctx 取消退出，
	// 表现为通道被关闭
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for {
			if _, err := w.Write([]byte(`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"a"}}` + "\n\n")); err != nil {
				return
			}
			fl.Flush()
			select {
			case <-r.Context().Done():
				return
			default:
			}
		}
	}))
	defer server.Close()

	provider := NewClaudeProvider(providers.ClaudeConfig{APIKey: "k", BaseURL: server.URL}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := provider.Stream(ctx, &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	<-stream
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return // pump 已退出并关闭通道
			}
		case <-deadline:
			t.Fatal("stream channel not closed after context cancellation")
		}
	}
}

func TestClaudeProvider_Stream_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	provider := NewClaudeProvider(providers.ClaudeConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())

	_, err := provider.Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)

	llmErr, ok := err.(*llm.Error)
	require.True(t, ok)
	assert.Equal(t, llm.ErrRateLimited, llmErr.Code)
}

func TestClaudeProvider_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	provider := NewClaudeProvider(providers.ClaudeConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())

	status, err := provider.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Latency, time.Duration(0))
}

func TestClaudeProvider_Integration(t *testing.T) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping integration test")
	}

	provider := NewClaudeProvider(providers.ClaudeConfig{
		APIKey:  apiKey,
		Model:   "claude-3-5-sonnet-20241022",
		Timeout: 60 * time.Second,
	}, zap.NewNop())

	ctx := context.Background()

	t.Run("HealthCheck", func(t *testing.T) {
		status, err := provider.HealthCheck(ctx)
		require.NoError(t, err)
		assert.True(t, status.Healthy)
	})

	t.Run("Completion", func(t *testing.T) {
		req := &llm.ChatRequest{
			Model: "claude-3-5-sonnet-20241022",
			Messages: []llm.Message{
				{Role: llm.RoleUser, Content: "Say 'test' only"},
			},
			MaxTokens:   10,
			Temperature: llm.Temperature(0.1),
		}

		resp, err := provider.Completion(ctx, req)
		require.NoError(t, err)
		assert.NotEmpty(t, resp.FirstText())
	})
}
