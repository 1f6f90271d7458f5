package plan

import (
	"context"
	"fmt"

	"github.com/BaSui01/planflow/extract"
	"github.com/BaSui01/planflow/llm"
	"github.com/BaSui01/planflow/llm/invoke"
	"github.com/BaSui01/planflow/structured"
	"go.uber.org/zap"
)

// Extractor 文档抽取依赖，便于测试替换
type Extractor interface {
	ExtractPDF(ctx context.Context, filename string, data []byte) (*extract.Result, error)
}

// Structurer 把 SBC 文档文本结构化为 Summary。
// LLM 调用走温度阶梯重试加备用模型兜底。
type Structurer struct {
	extractor Extractor
	output    *structured.Output[Summary]
	opts      *invoke.Options
	logger    *zap.Logger
}

// NewStructurer 创建 Structurer。opts 必须至少指定主模型。
func NewStructurer(extractor Extractor, provider llm.Provider, opts *invoke.Options, logger *zap.Logger) (*Structurer, error) {
	if extractor == nil {
		return nil, fmt.Errorf("structurer: extractor is nil")
	}
	if opts == nil || opts.Model == "" {
		return nil, fmt.Errorf("structurer: invoke options with a primary model are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	output, err := structured.NewOutput[Summary](provider)
	if err != nil {
		return nil, fmt.Errorf("structurer: build output handler: %w", err)
	}

	return &Structurer{
		extractor: extractor,
		output:    output,
		opts:      opts,
		logger:    logger.With(zap.String("component", "structurer")),
	}, nil
}

const structurePrompt = `The following is the extracted text of a health-insurance Summary of Benefits and Coverage (SBC) document.
Extract the plan summary from it. Use only information present in the document.
For dollar amounts, use numbers without currency symbols. If a family amount is not listed, use 0.

Document text:
%s`

// StructureDocument 抽取 PDF 并结构化为计划摘要。
// 返回抽取结果供调用方持久化原文。
func (s *Structurer) StructureDocument(ctx context.Context, filename string, pdf []byte) (*Summary, *extract.Result, error) {
	extracted, err := s.extractor.ExtractPDF(ctx, filename, pdf)
	if err != nil {
		return nil, nil, err
	}

	summary, err := s.StructureText(ctx, extracted.Text)
	if err != nil {
		return nil, extracted, err
	}
	return summary, extracted, nil
}

// StructureText 把已抽取文本结构化为计划摘要
func (s *Structurer) StructureText(ctx context.Context, text string) (*Summary, error) {
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(structurePrompt, text)},
	}

	gen := invoke.GeneratorFunc[*Summary](func(ctx context.Context, model string, temperature float32) (*Summary, error) {
		return s.output.GenerateAt(ctx, messages, model, temperature)
	})

	summary, err := invoke.Do(ctx, gen, s.opts)
	if err != nil {
		return nil, fmt.Errorf("structure plan document: %w", err)
	}
	return summary, nil
}
