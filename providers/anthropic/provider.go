// Package claude 封装 Anthropic Messages API 的 Provider 实现。
package claude

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

const (
	anthropicVersion   = "2023-06-01"
	defaultClaudeModel = "claude-3-5-sonnet-20241022"
	// Claude 要求请求必须携带 max_tokens
	defaultMaxTokens = 4096
	// Anthropic 专用的过载状态码
	statusOverloaded = 529
)

// =============================================================================
// 📨 Messages API 线格式
// =============================================================================

// content 为数组形式，目前只处理 text 块
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeMessage struct {
	Role    string          `json:"role"` // user / assistant
	Content []claudeContent `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system,omitempty"` // system 提示走独立字段
	MaxTokens int             `json:"max_tokens"`
	// 指针承载温度，配置为 0 时也要写入 wire
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        float32  `json:"top_p,omitempty"`
	StopSeq     []string `json:"stop_sequences,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role"`
	Content      []claudeContent `json:"content"`
	Model        string          `json:"model"`
	StopReason   string          `json:"stop_reason"`
	StopSequence string          `json:"stop_sequence,omitempty"`
	Usage        *claudeUsage    `json:"usage,omitempty"`
}

// SSE 事件：message_start / content_block_delta / message_delta / message_stop
type claudeStreamEvent struct {
	Type    string          `json:"type"`
	Index   int             `json:"index,omitempty"`
	Delta   *claudeDelta    `json:"delta,omitempty"`
	Message *claudeResponse `json:"message,omitempty"`
	Usage   *claudeUsage    `json:"usage,omitempty"`
}

type claudeDelta struct {
	Type       string `json:"type"` // text_delta
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type claudeErrorResp struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// 🤖 Provider
// =============================================================================

// ClaudeProvider 对接 Anthropic Claude。
// 与 OpenAI 风格接口的差异：x-api-key 认证、system 提示独立字段、
// SSE 事件结构不同。
type ClaudeProvider struct {
	cfg    providers.ClaudeConfig
	client *http.Client
	logger *zap.Logger
}

// NewClaudeProvider 创建 Claude Provider
func NewClaudeProvider(cfg providers.ClaudeConfig, logger *zap.Logger) *ClaudeProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		// Claude 长文档结构化可能较慢
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}

	return &ClaudeProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger,
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

func (p *ClaudeProvider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *ClaudeProvider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// transportErr 把传输层失败包装成可重试的上游错误
func (p *ClaudeProvider) transportErr(err error) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   p.Name(),
	}
}

// postMessages 发送 /v1/messages 请求，调用方负责关闭响应体
func (p *ClaudeProvider) postMessages(ctx context.Context, body claudeRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)
	return p.client.Do(req)
}

func (p *ClaudeProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readClaudeErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("claude health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *ClaudeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.postMessages(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, p.transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapClaudeError(resp.StatusCode, readClaudeErrMsg(resp.Body), p.Name())
	}

	var cr claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, p.transportErr(err)
	}
	return p.toChatResponse(cr), nil
}

func (p *ClaudeProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.postMessages(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapClaudeError(resp.StatusCode, readClaudeErrMsg(resp.Body), p.Name())
	}

	ch := make(chan llm.StreamChunk)
	go p.pumpEvents(ctx, resp, ch)
	return ch, nil
}

// buildRequest 组装上游请求；system 消息提取到独立字段
func (p *ClaudeProvider) buildRequest(req *llm.ChatRequest, stream bool) claudeRequest {
	var system string
	var msgs []claudeMessage
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			system = m.Content
			continue
		}
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, claudeMessage{
			Role:    string(m.Role),
			Content: []claudeContent{{Type: "text", Text: m.Content}},
		})
	}

	out := claudeRequest{
		Model:       chooseClaudeModel(req, p.cfg.Model),
		Messages:    msgs,
		System:      system,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if !stream {
		out.TopP = req.TopP
		out.StopSeq = req.Stop
	}
	return out
}

// pumpEvents 消费 SSE 事件流并转成统一的 StreamChunk。
// 每次发送都带 ctx 逃生口：消费方弃读时 goroutine 必须能退出
func (p *ClaudeProvider) pumpEvents(ctx context.Context, resp *http.Response, ch chan<- llm.StreamChunk) {
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

	var id, model string
	reader := bufio.NewReader(resp.Body)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				send(llm.StreamChunk{Err: p.transportErr(err)})
			}
			return
		}

		// 格式：event: <type>\ndata: <json>，只关心 data 行
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}

		var event claudeStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			send(llm.StreamChunk{Err: p.transportErr(err)})
			return
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				id, model = event.Message.ID, event.Message.Model
			}

		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" {
				if !send(llm.StreamChunk{
					ID:       id,
					Provider: p.Name(),
					Model:    model,
					Index:    event.Index,
					Delta:    llm.Message{Role: llm.RoleAssistant, Content: event.Delta.Text},
				}) {
					return
				}
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				if !send(llm.StreamChunk{
					ID:           id,
					Provider:     p.Name(),
					Model:        model,
					FinishReason: event.Delta.StopReason,
				}) {
					return
				}
			}

		case "message_stop":
			if event.Usage != nil {
				send(llm.StreamChunk{
					ID:       id,
					Provider: p.Name(),
					Model:    model,
					Usage: &llm.ChatUsage{
						PromptTokens:     event.Usage.InputTokens,
						CompletionTokens: event.Usage.OutputTokens,
						TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
					},
				})
			}
			return
		}
	}
}

func (p *ClaudeProvider) toChatResponse(cr claudeResponse) *llm.ChatResponse {
	msg := llm.Message{Role: llm.RoleAssistant}
	for _, content := range cr.Content {
		if content.Type == "text" {
			msg.Content += content.Text
		}
	}

	resp := &llm.ChatResponse{
		ID:       cr.ID,
		Provider: p.Name(),
		Model:    cr.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: cr.StopReason,
			Message:      msg,
		}},
	}
	if cr.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     cr.Usage.InputTokens,
			CompletionTokens: cr.Usage.OutputTokens,
			TotalTokens:      cr.Usage.InputTokens + cr.Usage.OutputTokens,
		}
	}
	return resp
}

func readClaudeErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp claudeErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
	}
	return string(data)
}

func mapClaudeError(status int, msg string, provider string) *llm.Error {
	e := &llm.Error{Message: msg, HTTPStatus: status, Provider: provider}

	switch status {
	case http.StatusUnauthorized:
		e.Code = llm.ErrUnauthorized
	case http.StatusForbidden:
		e.Code = llm.ErrForbidden
	case http.StatusTooManyRequests:
		e.Code, e.Retryable = llm.ErrRateLimited, true
	case http.StatusBadRequest:
		// 400 同时覆盖参数错误和额度不足
		if strings.Contains(msg, "credit") || strings.Contains(msg, "quota") {
			e.Code = llm.ErrQuotaExceeded
		} else {
			e.Code = llm.ErrInvalidRequest
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		e.Code, e.Retryable = llm.ErrUpstreamError, true
	case statusOverloaded:
		e.Code, e.Retryable = llm.ErrModelOverloaded, true
	default:
		e.Code, e.Retryable = llm.ErrUpstreamError, status >= 500
	}
	return e
}

func chooseClaudeModel(req *llm.ChatRequest, defaultModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return defaultClaudeModel
}
