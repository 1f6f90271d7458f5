package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/planflow/llm"
	"github.com/BaSui01/planflow/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGeminiProvider_Name(t *testing.T) {
	provider := NewGeminiProvider(providers.GeminiConfig{}, zap.NewNop())
	assert.Equal(t, "gemini", provider.Name())
}

func TestGeminiProvider_DefaultModel(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", chooseGeminiModel(nil, ""))
	assert.Equal(t, "gemini-2.5-pro", chooseGeminiModel(&llm.ChatRequest{Model: "gemini-2.5-pro"}, "cfg"))
	assert.Equal(t, "cfg", chooseGeminiModel(&llm.ChatRequest{}, "cfg"))
}

func TestConvertToGeminiContents(t *testing.T) {
	system, contents := convertToGeminiContents([]llm.Message{
		{Role: llm.RoleSystem, Content: "你是保险计划助手"},
		{Role: llm.RoleUser, Content: "这个计划覆盖急诊吗"},
		{Role: llm.RoleAssistant, Content: "覆盖，自付 250 美元"},
		{Role: llm.RoleUser, Content: ""},
	})

	require.NotNil(t, system, "system 消息应提取到 systemInstruction")
	assert.Equal(t, "你是保险计划助手", system.Parts[0].Text)

	require.Len(t, contents, 2, "空消息应被跳过")
	assert.Equal(t, "user", contents[0].Role)
	// Gemini 的 assistant 角色叫 model
	assert.Equal(t, "model", contents[1].Role)
}

func TestGeminiProvider_Completion(t *testing.T) {
	var gotReq geminiRequest
	var gotPath string
	var gotHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))

		resp := geminiResponse{
			ResponseID: "resp-1",
			Candidates: []geminiCandidate{{
				Content: geminiContent{
					Role:  "model",
					Parts: []geminiPart{{Text: "年免赔额为 1500 美元"}},
				},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{
				PromptTokenCount:     20,
				CandidatesTokenCount: 8,
				TotalTokenCount:      28,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewGeminiProvider(providers.GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gemini-2.5-flash",
	}, zap.NewNop())

	resp, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "只回答计划内容"},
			{Role: llm.RoleUser, Content: "免赔额是多少"},
		},
		Temperature: llm.Temperature(0.5),
		MaxTokens:   256,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotHeaders.Get("x-goog-api-key"), "应使用 x-goog-api-key 认证")

	require.NotNil(t, gotReq.SystemInstruction)
	assert.Equal(t, "只回答计划内容", gotReq.SystemInstruction.Parts[0].Text)
	require.NotNil(t, gotReq.GenerationConfig)
	require.NotNil(t, gotReq.GenerationConfig.Temperature)
	assert.Equal(t, float32(0.5), *gotReq.GenerationConfig.Temperature)
	assert.Equal(t, 256, gotReq.GenerationConfig.MaxOutputTokens)

	assert.Equal(t, "年免赔额为 1500 美元", resp.FirstText())
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, 28, resp.Usage.TotalTokens)
	assert.Equal(t, "STOP", resp.Choices[0].FinishReason)
}

func TestGeminiProvider_Completion_NoGenerationConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		// 未设置采样参数时不应携带 generationConfig
		assert.NotContains(t, string(body), "generationConfig")
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "ok"}}}}},
		})
	}))
	defer server.Close()

	provider := NewGeminiProvider(providers.GeminiConfig{APIKey: "k", BaseURL: server.URL}, zap.NewNop())
	_, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
}

func TestGeminiProvider_Completion_ZeroTemperatureOnWire(t *testing.T) {
	var rawBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rawBody = string(body)
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "ok"}}}}},
		})
	}))
	defer server.Close()

	provider := NewGeminiProvider(providers.GeminiConfig{APIKey: "k", BaseURL: server.URL}, zap.NewNop())

	// 温度 0 是阶梯首位的合法取值，必须触发 generationConfig 并写入请求体
	_, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: llm.Temperature(0),
	})
	require.NoError(t, err)
	assert.Contains(t, rawBody, `"generationConfig"`)
	assert.Contains(t, rawBody, `"temperature":0`, "温度 0 不应被 omitempty 吞掉")
}

func TestGeminiProvider_Completion_ErrorMapping(t *testing.T) {
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
			body:          `{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`,
			expectedCode:  llm.ErrUnauthorized,
			expectedRetry: false,
		},
		{
			name:          "429 限流",
			status:        http.StatusTooManyRequests,
			body:          `{"error":{"code":429,"message":"resource exhausted","status":"RESOURCE_EXHAUSTED"}}`,
			expectedCode:  llm.ErrRateLimited,
			expectedRetry: true,
		},
		{
			name:          "400 配额关键字",
			status:        http.StatusBadRequest,
			body:          `{"error":{"code":400,"message":"quota exceeded for project","status":"FAILED_PRECONDITION"}}`,
			expectedCode:  llm.ErrQuotaExceeded,
			expectedRetry: false,
		},
		{
			name:          "400 普通参数错误",
			status:        http.StatusBadRequest,
			body:          `{"error":{"code":400,"message":"invalid argument","status":"INVALID_ARGUMENT"}}`,
			expectedCode:  llm.ErrInvalidRequest,
			expectedRetry: false,
		},
		{
			name:          "503 上游不可用",
			status:        http.StatusServiceUnavailable,
			body:          `{"error":{"code":503,"message":"service unavailable","status":"UNAVAILABLE"}}`,
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

			provider := NewGeminiProvider(providers.GeminiConfig{
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
			assert.Equal(t, "gemini", llmErr.Provider)
		})
	}
}

func TestGeminiProvider_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":streamGenerateContent"))
		lines := []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"专科"}]},"index":0}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"门诊"}]},"index":0,"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":15,"candidatesTokenCount":6,"totalTokenCount":21}}`,
		}
		for _, line := range lines {
			w.Write([]byte(line + "\n"))
		}
	}))
	defer server.Close()

	provider := NewGeminiProvider(providers.GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())

	stream, err := provider.Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "专科门诊怎么报销"}},
	})
	require.NoError(t, err)

	var text string
	var finishReason string
	var usage *llm.ChatUsage
	for chunk := range stream {
		require.Nil(t, chunk.Err)
		text += chunk.Delta.Content
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	assert.Equal(t, "专科门诊", text)
	assert.Equal(t, "STOP", finishReason)
	require.NotNil(t, usage)
	assert.Equal(t, 21, usage.TotalTokens)
}

func TestGeminiProvider_Stream_AbandonedConsumer(t *testing.T) {
	// 无限行流：消费方弃读后 pump goroutine 必须随 ctx 取消退出，
	// 表现为通道被关闭
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		for {
			if _, err := w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"a"}]},"index":0}]}` + "\n")); err != nil {
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

	provider := NewGeminiProvider(providers.GeminiConfig{APIKey: "k", BaseURL: server.URL}, zap.NewNop())

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

func TestGeminiProvider_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	provider := NewGeminiProvider(providers.GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())

	status, err := provider.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Latency, time.Duration(0))
}
