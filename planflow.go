// Package planflow provides a top-level convenience entry point for embedding
// the SBC plan services with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/planflow"
//
//	c, err := planflow.New(planflow.WithClaude("claude-sonnet-4-20250514"))
//	c, err := planflow.New(planflow.WithGemini("gemini-2.5-flash"))
//	c, err := planflow.New(planflow.WithProvider(myProvider), planflow.WithModel("custom"))
//
// The returned [Client] bundles the structurer, the category explorer and the
// chat service. Use this package when embedding PlanFlow as a library; the
// cmd/planflow server wires the same components from configuration instead.
package planflow

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/planflow/extract"
	"github.com/BaSui01/planflow/llm"
	"github.com/BaSui01/planflow/llm/invoke"
	"github.com/BaSui01/planflow/plan"
	"github.com/BaSui01/planflow/providers"
	claude "github.com/BaSui01/planflow/providers/anthropic"
	"github.com/BaSui01/planflow/providers/gemini"
)

// Client 汇集面向单个 Provider 的三个计划服务
type Client struct {
	Structurer *plan.Structurer
	Explorer   *plan.Explorer
	Chat       *plan.ChatService

	provider llm.Provider
}

// Provider 返回底层 LLM Provider，便于健康检查或直接调用
func (c *Client) Provider() llm.Provider {
	return c.provider
}

type options struct {
	provider   llm.Provider
	providerFn func(*zap.Logger) llm.Provider
	extractor  plan.Extractor
	extractFn  func(*zap.Logger) plan.Extractor
	model      string
	invokeOpts *invoke.Options
	chatCfg    plan.ChatConfig
	logger     *zap.Logger
}

// Option configures the client created by [New].
type Option func(*options)

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithClaude creates a Claude provider. API key from ANTHROPIC_API_KEY env.
func WithClaude(model string) Option {
	return func(o *options) {
		o.model = model
		o.providerFn = func(logger *zap.Logger) llm.Provider {
			return claude.NewClaudeProvider(providers.ClaudeConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  model,
			}, logger)
		}
	}
}

// WithGemini creates a Gemini provider. API key from GEMINI_API_KEY env.
func WithGemini(model string) Option {
	return func(o *options) {
		o.model = model
		o.providerFn = func(logger *zap.Logger) llm.Provider {
			return gemini.NewGeminiProvider(providers.GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  model,
			}, logger)
		}
	}
}

// WithModel sets the primary model used for structuring, exploration and chat.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithExtractor sets the document extractor used by the structurer.
// Without one, [Client.Structurer] only supports StructureText.
func WithExtractor(e plan.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithExtractService points the structurer at an extraction HTTP service.
func WithExtractService(baseURL, apiKey string) Option {
	return func(o *options) {
		o.extractFn = func(logger *zap.Logger) plan.Extractor {
			return extract.NewClient(extract.Config{
				BaseURL: baseURL,
				APIKey:  apiKey,
			}, logger)
		}
	}
}

// WithInvokeOptions overrides the retry/fallback options for structured calls.
func WithInvokeOptions(opts *invoke.Options) Option {
	return func(o *options) { o.invokeOpts = opts }
}

// WithChatConfig overrides the chat service configuration.
func WithChatConfig(cfg plan.ChatConfig) Option {
	return func(o *options) { o.chatCfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a [Client] with minimal configuration. At minimum, a provider
// must be specified via [WithClaude], [WithGemini] or [WithProvider], and a
// model via the provider shortcut or [WithModel].
func New(opts ...Option) (*Client, error) {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	// Provider 与抽取客户端延迟构造，保证 WithLogger 的顺序无关
	if o.provider == nil && o.providerFn != nil {
		o.provider = o.providerFn(o.logger)
	}
	if o.extractor == nil && o.extractFn != nil {
		o.extractor = o.extractFn(o.logger)
	}

	if o.provider == nil {
		return nil, fmt.Errorf("planflow: a provider is required (use WithClaude, WithGemini or WithProvider)")
	}

	invokeOpts := o.invokeOpts
	if invokeOpts == nil {
		if o.model == "" {
			return nil, fmt.Errorf("planflow: a model is required (use WithModel or a provider shortcut)")
		}
		invokeOpts = invoke.DefaultOptions(o.model)
		invokeOpts.Logger = o.logger
	}

	chatCfg := o.chatCfg
	if chatCfg.Model == "" {
		chatCfg.Model = invokeOpts.Model
	}

	extractor := o.extractor
	if extractor == nil {
		// 没有配置抽取服务时给一个明确报错的占位实现，
		// StructureText 与 Explorer/Chat 不受影响
		extractor = unavailableExtractor{}
	}

	structurer, err := plan.NewStructurer(extractor, o.provider, invokeOpts, o.logger)
	if err != nil {
		return nil, fmt.Errorf("planflow: %w", err)
	}
	explorer, err := plan.NewExplorer(o.provider, invokeOpts, o.logger)
	if err != nil {
		return nil, fmt.Errorf("planflow: %w", err)
	}
	chat, err := plan.NewChatService(o.provider, chatCfg, o.logger)
	if err != nil {
		return nil, fmt.Errorf("planflow: %w", err)
	}

	return &Client{
		Structurer: structurer,
		Explorer:   explorer,
		Chat:       chat,
		provider:   o.provider,
	}, nil
}

// unavailableExtractor 占位：未配置抽取服务时 StructureDocument 直接报错
type unavailableExtractor struct{}

func (unavailableExtractor) ExtractPDF(_ context.Context, _ string, _ []byte) (*extract.Result, error) {
	return nil, fmt.Errorf("planflow: no extractor configured (use WithExtractService or WithExtractor)")
}
