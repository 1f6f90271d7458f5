package planflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/planflow/llm/invoke"
	"github.com/BaSui01/planflow/plan"
	"github.com/BaSui01/planflow/testutil/fixtures"
	"github.com/BaSui01/planflow/testutil/mocks"
)

func TestNew_RequiresProvider(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider is required")
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(WithProvider(mocks.NewMockProvider()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")
}

func TestNew_BuildsAllServices(t *testing.T) {
	provider := mocks.NewMockProvider()

	c, err := New(
		WithProvider(provider),
		WithModel("claude-sonnet"),
		WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)

	assert.NotNil(t, c.Structurer, "结构化服务应该已构建")
	assert.NotNil(t, c.Explorer, "类目探查服务应该已构建")
	assert.NotNil(t, c.Chat, "聊天服务应该已构建")
	assert.Same(t, provider, c.Provider().(*mocks.MockProvider))
}

func TestNew_StructureTextWorksWithoutExtractor(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(fixtures.SummaryJSON)

	c, err := New(
		WithProvider(provider),
		WithInvokeOptions(&invoke.Options{
			Model:        "claude-sonnet",
			Temperatures: []float32{0.0},
			BaseDelay:    time.Millisecond,
		}),
	)
	require.NoError(t, err)

	summary, err := c.Structurer.StructureText(context.Background(), fixtures.SBCDocumentText)
	require.NoError(t, err)
	assert.Equal(t, "Silver Choice PPO 1500", summary.PlanName)
}

func TestNew_StructureDocumentWithoutExtractorFails(t *testing.T) {
	c, err := New(
		WithProvider(mocks.NewMockProvider()),
		WithModel("claude-sonnet"),
	)
	require.NoError(t, err)

	_, _, err = c.Structurer.StructureDocument(context.Background(), "plan.pdf", []byte("%PDF-1.7"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extractor configured")
}

// wordTokenizer 按空白分词计数，避免测试依赖 tiktoken 编码数据
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func (wordTokenizer) Truncate(text string, budget int) (string, error) {
	words := strings.Fields(text)
	if len(words) <= budget {
		return text, nil
	}
	return strings.Join(words[:budget], " "), nil
}

func TestNew_ChatConfigDefaultsToModel(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("The deductible is $1,500.")

	c, err := New(
		WithProvider(provider),
		WithModel("claude-sonnet"),
	)
	require.NoError(t, err)
	c.Chat.WithTokenizer(wordTokenizer{})

	rec := &plan.Record{
		PlanID: "plan-1",
		Text:   fixtures.SBCDocumentText,
	}
	answer, err := c.Chat.Ask(context.Background(), rec, nil, "What is the deductible?")
	require.NoError(t, err)
	assert.Contains(t, answer, "$1,500")

	// 聊天请求应使用 WithModel 指定的模型
	require.NotEmpty(t, provider.Calls())
	assert.Equal(t, "claude-sonnet", provider.Calls()[0].Request.Model)
}

func TestNew_ChatConfigOverride(t *testing.T) {
	c, err := New(
		WithProvider(mocks.NewMockProvider()),
		WithModel("claude-sonnet"),
		WithChatConfig(plan.ChatConfig{
			Model:         "claude-haiku",
			ContextBudget: 2000,
		}),
	)
	require.NoError(t, err)
	assert.NotNil(t, c.Chat)
}
