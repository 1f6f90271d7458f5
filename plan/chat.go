package plan

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/planflow/llm"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// messageOverheadTokens 每条消息的封装开销估算
const messageOverheadTokens = 4

// ChatConfig 聊天服务配置
type ChatConfig struct {
	Model           string  `json:"model" yaml:"model"`
	Temperature     float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	ContextBudget   int     `json:"context_budget,omitempty" yaml:"context_budget,omitempty"`     // 提示词 token 预算
	HistoryMessages int     `json:"history_messages,omitempty" yaml:"history_messages,omitempty"` // 最多携带的历史条数
}

// Tokenizer 上下文组装使用的计数与截断能力
type Tokenizer interface {
	Count(text string) (int, error)
	Truncate(text string, budget int) (string, error)
}

// tiktokenTokenizer 默认实现，懒加载编码数据（首次使用时可能下载）
type tiktokenTokenizer struct {
	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

func (t *tiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding: %w", err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *tiktokenTokenizer) Count(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *tiktokenTokenizer) Truncate(text string, budget int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	if budget <= 0 {
		return "", nil
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text, nil
	}
	return t.enc.Decode(tokens[:budget]), nil
}

// ChatService 面向单个计划的覆盖问答。
// 上下文按 token 预算组装：问题必留，文档原文截断，历史从最旧开始丢弃。
type ChatService struct {
	provider llm.Provider
	cfg      ChatConfig
	tok      Tokenizer
	logger   *zap.Logger
}

// NewChatService 创建聊天服务
func NewChatService(provider llm.Provider, cfg ChatConfig, logger *zap.Logger) (*ChatService, error) {
	if provider == nil {
		return nil, fmt.Errorf("chat: provider is nil")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("chat: model is required")
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 16000
	}
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = 20
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatService{
		provider: provider,
		cfg:      cfg,
		tok:      &tiktokenTokenizer{},
		logger:   logger.With(zap.String("component", "chat")),
	}, nil
}

// WithTokenizer 替换默认的 tiktoken 计数器，测试时注入轻量实现
func (c *ChatService) WithTokenizer(tok Tokenizer) *ChatService {
	if tok != nil {
		c.tok = tok
	}
	return c
}

const chatSystemPrompt = `You are a health-insurance coverage assistant. Answer questions about the member's plan using only the plan document text below.
If the document does not answer the question, say so and suggest contacting the issuer. Do not guess amounts.

Plan document text:
%s`

// Ask 回答关于计划的一个问题
func (c *ChatService) Ask(ctx context.Context, record *Record, history []ChatMessage, question string) (string, error) {
	req, err := c.buildRequest(record, history, question)
	if err != nil {
		return "", err
	}

	resp, err := c.provider.Completion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion for plan %s: %w", record.PlanID, err)
	}

	answer := resp.FirstText()
	if answer == "" {
		return "", fmt.Errorf("chat completion for plan %s: empty response", record.PlanID)
	}
	return answer, nil
}

// AskStream 流式回答，返回增量 chunk 通道
func (c *ChatService) AskStream(ctx context.Context, record *Record, history []ChatMessage, question string) (<-chan llm.StreamChunk, error) {
	req, err := c.buildRequest(record, history, question)
	if err != nil {
		return nil, err
	}
	return c.provider.Stream(ctx, req)
}

func (c *ChatService) buildRequest(record *Record, history []ChatMessage, question string) (*llm.ChatRequest, error) {
	if record == nil {
		return nil, fmt.Errorf("chat: plan record is nil")
	}
	if question == "" {
		return nil, fmt.Errorf("chat: question is empty")
	}

	messages, err := c.assembleContext(record.Text, history, question)
	if err != nil {
		return nil, err
	}

	return &llm.ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: llm.Temperature(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
	}, nil
}

// assembleContext 在 token 预算内组装消息列表。
// 预算分配顺序：问题 > 系统提示词（文档可截断）> 历史（从最旧丢弃）。
func (c *ChatService) assembleContext(documentText string, history []ChatMessage, question string) ([]llm.Message, error) {
	budget := c.cfg.ContextBudget

	questionTokens, err := c.tok.Count(question)
	if err != nil {
		return nil, err
	}
	budget -= questionTokens + messageOverheadTokens
	if budget <= 0 {
		return nil, fmt.Errorf("chat: question alone exceeds context budget of %d tokens", c.cfg.ContextBudget)
	}

	// 文档最多占剩余预算的七成，给历史留空间
	document, err := c.tok.Truncate(documentText, budget*7/10)
	if err != nil {
		return nil, err
	}
	system := fmt.Sprintf(chatSystemPrompt, document)
	systemTokens, err := c.tok.Count(system)
	if err != nil {
		return nil, err
	}
	budget -= systemTokens + messageOverheadTokens

	// 历史从最新往回装，直到预算用尽
	if len(history) > c.cfg.HistoryMessages {
		history = history[len(history)-c.cfg.HistoryMessages:]
	}
	var kept []ChatMessage
	for i := len(history) - 1; i >= 0; i-- {
		count, err := c.tok.Count(history[i].Content)
		if err != nil {
			return nil, err
		}
		cost := count + messageOverheadTokens
		if cost > budget {
			break
		}
		budget -= cost
		kept = append(kept, history[i])
	}

	messages := make([]llm.Message, 0, len(kept)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, llm.Message{Role: llm.Role(kept[i].Role), Content: kept[i].Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	return messages, nil
}
