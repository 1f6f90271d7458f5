// Package gemini 封装 Google Gemini generateContent API 的 Provider 实现。
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/planflow/internal/tlsutil"
	"github.com/BaSui01/planflow/llm"
	"github.com/BaSui01/planflow/providers"
	"go.uber.org/zap"
)

const defaultGeminiModel = "gemini-2.5-flash"

// =============================================================================
// 📨 generateContent 线格式
// =============================================================================

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user / model
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	// 指针承载温度，配置为 0 时也要写入 wire
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            float32  `json:"topP,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content       geminiContent `json:"content"`
	FinishReason  string        `json:"finishReason,omitempty"`
	Index         int           `json:"index"`
	SafetyRatings []any         `json:"safetyRatings,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
	ResponseID    string               `json:"responseId,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// =============================================================================
// 🤖 Provider
// =============================================================================

// GeminiProvider 对接 Google Gemini。
// 与 OpenAI 风格接口的差异：x-goog-api-key 认证、assistant 角色叫
// model、system 提示走 systemInstruction、流式响应为逐行 JSON。
type GeminiProvider struct {
	cfg    providers.GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// NewGeminiProvider 创建 Gemini Provider
func NewGeminiProvider(cfg providers.GeminiConfig, logger *zap.Logger) *GeminiProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}

	return &GeminiProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *GeminiProvider) setHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *GeminiProvider) transportErr(err error) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   p.Name(),
	}
}

func (p *GeminiProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1beta/models"), nil)
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readGeminiErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("gemini health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// convertToGeminiContents 把统一消息格式转成 Gemini 的 contents 数组，
// system 消息单独返回
func convertToGeminiContents(msgs []llm.Message) (*geminiContent, []geminiContent) {
	var system *geminiContent
	var contents []geminiContent

	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			system = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		if m.Content == "" {
			continue
		}

		role := string(m.Role)
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	return system, contents
}

func (p *GeminiProvider) buildRequest(req *llm.ChatRequest, stream bool) geminiRequest {
	system, contents := convertToGeminiContents(req.Messages)
	body := geminiRequest{Contents: contents, SystemInstruction: system}

	if req.Temperature != nil || req.TopP > 0 || req.MaxTokens > 0 || (!stream && len(req.Stop) > 0) {
		gc := &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
		}
		if !stream {
			gc.StopSequences = req.Stop
		}
		body.GenerationConfig = gc
	}
	return body
}

// postGenerate 发送 generateContent / streamGenerateContent 请求，
// 调用方负责关闭响应体
func (p *GeminiProvider) postGenerate(ctx context.Context, model, action string, body geminiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := p.endpoint(fmt.Sprintf("/v1beta/models/%s:%s", model, action))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)
	return p.client.Do(req)
}

func (p *GeminiProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := chooseGeminiModel(req, p.cfg.Model)

	resp, err := p.postGenerate(ctx, model, "generateContent", p.buildRequest(req, false))
	if err != nil {
		return nil, p.transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapGeminiError(resp.StatusCode, readGeminiErrMsg(resp.Body), p.Name())
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, p.transportErr(err)
	}
	return p.toChatResponse(gr, model), nil
}

func (p *GeminiProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	model := chooseGeminiModel(req, p.cfg.Model)

	resp, err := p.postGenerate(ctx, model, "streamGenerateContent", p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapGeminiError(resp.StatusCode, readGeminiErrMsg(resp.Body), p.Name())
	}

	ch := make(chan llm.StreamChunk)
	go p.pumpLines(ctx, resp, model, ch)
	return ch, nil
}

// pumpLines 消费逐行 JSON 的流式响应。
// 每次发送都带 ctx 逃生口：消费方弃读时 goroutine 必须能退出
func (p *GeminiProvider) pumpLines(ctx context.Context, resp *http.Response, model string, ch chan<- llm.StreamChunk) {
	defer resp.Body.Close()
	defer close(ch)

	send := func(chunk llm.StreamChunk) bool {
		select {
		case ch <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				send(llm.StreamChunk{Err: p.transportErr(err)})
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// 每行一个完整的响应对象，解析失败的行直接跳过
		var gr geminiResponse
		if err := json.Unmarshal([]byte(line), &gr); err != nil {
			continue
		}

		for _, candidate := range gr.Candidates {
			chunk := llm.StreamChunk{
				Provider:     p.Name(),
				Model:        model,
				Index:        candidate.Index,
				FinishReason: candidate.FinishReason,
				Delta:        llm.Message{Role: llm.RoleAssistant},
			}
			for _, part := range candidate.Content.Parts {
				chunk.Delta.Content += part.Text
			}
			if !send(chunk) {
				return
			}
		}

		// usage 出现在最后一行
		if gr.UsageMetadata != nil {
			if !send(llm.StreamChunk{
				Provider: p.Name(),
				Model:    model,
				Usage: &llm.ChatUsage{
					PromptTokens:     gr.UsageMetadata.PromptTokenCount,
					CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      gr.UsageMetadata.TotalTokenCount,
				},
			}) {
				return
			}
		}
	}
}

func (p *GeminiProvider) toChatResponse(gr geminiResponse, model string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(gr.Candidates))
	for _, candidate := range gr.Candidates {
		msg := llm.Message{Role: llm.RoleAssistant}
		for _, part := range candidate.Content.Parts {
			msg.Content += part.Text
		}
		choices = append(choices, llm.ChatChoice{
			Index:        candidate.Index,
			FinishReason: candidate.FinishReason,
			Message:      msg,
		})
	}

	resp := &llm.ChatResponse{
		ID:       gr.ResponseID,
		Provider: p.Name(),
		Model:    model,
		Choices:  choices,
	}
	if gr.UsageMetadata != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		}
	}
	return resp
}

func readGeminiErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp geminiErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return string(data)
}

func mapGeminiError(status int, msg string, provider string) *llm.Error {
	e := &llm.Error{Message: msg, HTTPStatus: status, Provider: provider}

	switch status {
	case http.StatusUnauthorized:
		e.Code = llm.ErrUnauthorized
	case http.StatusForbidden:
		e.Code = llm.ErrForbidden
	case http.StatusTooManyRequests:
		e.Code, e.Retryable = llm.ErrRateLimited, true
	case http.StatusBadRequest:
		if strings.Contains(msg, "quota") || strings.Contains(msg, "limit") {
			e.Code = llm.ErrQuotaExceeded
		} else {
			e.Code = llm.ErrInvalidRequest
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		e.Code, e.Retryable = llm.ErrUpstreamError, true
	default:
		e.Code, e.Retryable = llm.ErrUpstreamError, status >= 500
	}
	return e
}

func chooseGeminiModel(req *llm.ChatRequest, defaultModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return defaultGeminiModel
}
