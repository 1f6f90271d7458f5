package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/planflow/llm"
	"github.com/BaSui01/planflow/llm/invoke"
	"github.com/BaSui01/planflow/structured"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Explorer 分类浏览器：对固定类别清单逐类生成覆盖判定。
type Explorer struct {
	output      *structured.Output[CoverageCategory]
	opts        *invoke.Options
	concurrency int
	logger      *zap.Logger
}

// NewExplorer 创建分类浏览器
func NewExplorer(provider llm.Provider, opts *invoke.Options, logger *zap.Logger) (*Explorer, error) {
	if opts == nil || opts.Model == "" {
		return nil, fmt.Errorf("explorer: invoke options with a primary model are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	output, err := structured.NewOutput[CoverageCategory](provider)
	if err != nil {
		return nil, fmt.Errorf("explorer: build output handler: %w", err)
	}

	return &Explorer{
		output:      output,
		opts:        opts,
		concurrency: 4,
		logger:      logger.With(zap.String("component", "explorer")),
	}, nil
}

const categoryPrompt = `Based on the following health-insurance plan document text, determine coverage for the category %q (slug %q).
Answer only from the document. If the document does not clearly state coverage for this category, set coverage to "needs_confirmation".
The slug field of your answer must be exactly %q.

Document text:
%s`

// Explore 并发为每个类别生成覆盖判定。
// 单个类别的 LLM 调用彻底失败（重试与备用模型均耗尽）时，
// 该类别降级为待确认的默认条目而不是让整个报告失败。
func (e *Explorer) Explore(ctx context.Context, documentText string) ([]CoverageCategory, error) {
	results := make([]CoverageCategory, len(categoryTopics))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, topic := range categoryTopics {
		g.Go(func() error {
			category, err := e.exploreOne(gctx, topic.Slug, topic.Name, documentText)
			if err != nil {
				var exhausted *invoke.ExhaustedError
				// 调用方取消不算类别级失败，原样上抛
				if errors.As(err, &exhausted) && gctx.Err() == nil {
					// 终态失败：降级，不中断其余类别
					e.logger.Warn("类别判定失败，使用保守默认值",
						zap.String("slug", topic.Slug),
						zap.Int("attempts", exhausted.Attempts),
						zap.Bool("fallback_used", exhausted.FallbackUsed),
						zap.Error(exhausted.Cause))
					results[i] = fallbackCategory(topic.Slug, topic.Name)
					return nil
				}
				return err
			}
			results[i] = *category
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("explore categories: %w", err)
	}
	return results, nil
}

func (e *Explorer) exploreOne(ctx context.Context, slug, name, documentText string) (*CoverageCategory, error) {
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(categoryPrompt, name, slug, slug, documentText)},
	}

	gen := invoke.GeneratorFunc[*CoverageCategory](func(ctx context.Context, model string, temperature float32) (*CoverageCategory, error) {
		category, err := e.output.GenerateAt(ctx, messages, model, temperature)
		if err != nil {
			return nil, err
		}
		// 模型偶尔会改写 slug，强制归位
		category.Slug = slug
		if category.Name == "" {
			category.Name = name
		}
		return category, nil
	})

	return invoke.Do(ctx, gen, e.opts)
}

func fallbackCategory(slug, name string) CoverageCategory {
	return CoverageCategory{
		Slug:        slug,
		Name:        name,
		Coverage:    CoverageNeedsConfirmation,
		Explanation: "Could not be determined automatically; check the plan document or contact the issuer.",
	}
}
