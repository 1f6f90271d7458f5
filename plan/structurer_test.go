package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/planflow/extract"
	"github.com/BaSui01/planflow/llm/invoke"
	"github.com/BaSui01/planflow/testutil"
	"github.com/BaSui01/planflow/testutil/fixtures"
	"github.com/BaSui01/planflow/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubExtractor struct {
	result *extract.Result
	err    error
	calls  int
}

func (s *stubExtractor) ExtractPDF(ctx context.Context, filename string, data []byte) (*extract.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func fixtureExtractor() *stubExtractor {
	return &stubExtractor{result: &extract.Result{
		Text:      fixtures.SBCDocumentText,
		PageCount: 2,
		Pages:     []extract.Page{{Number: 1, Text: "p1"}, {Number: 2, Text: "p2"}},
	}}
}

func structurerOptions() *invoke.Options {
	return &invoke.Options{
		Model:        "claude-sonnet",
		BackupModel:  "gemini-flash",
		Temperatures: []float32{0.2, 0.4},
		BaseDelay:    time.Millisecond,
	}
}

func TestStructurer_StructureDocument(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(fixtures.SummaryJSON)
	extractor := fixtureExtractor()

	s, err := NewStructurer(extractor, provider, structurerOptions(), zap.NewNop())
	require.NoError(t, err)

	summary, extracted, err := s.StructureDocument(testutil.TestContext(t), "sbc.pdf", []byte("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, 2, extracted.PageCount)
	assert.Equal(t, "Silver Choice PPO 1500", summary.PlanName)
	assert.Equal(t, "PPO", summary.PlanType)

	calls := provider.Calls()
	require.Len(t, calls, 1, "一次成功不应重试")
	assert.Equal(t, "claude-sonnet", calls[0].Request.Model)
	require.NotNil(t, calls[0].Request.Temperature)
	assert.Equal(t, float32(0.2), *calls[0].Request.Temperature, "首次尝试应使用阶梯首位温度")
}

func TestStructurer_RetriesOnInvalidOutput(t *testing.T) {
	// 第一次输出缺必填字段，校验失败后应升温重试
	provider := mocks.NewMockProvider().WithScript(
		mocks.ScriptedResponse{Content: fixtures.InvalidSummaryJSON},
		mocks.ScriptedResponse{Content: fixtures.SummaryJSON},
	)

	s, err := NewStructurer(fixtureExtractor(), provider, structurerOptions(), zap.NewNop())
	require.NoError(t, err)

	summary, err := s.StructureText(testutil.TestContext(t), fixtures.SBCDocumentText)
	require.NoError(t, err)
	assert.Equal(t, "Sample Health Co", summary.Issuer)

	calls := provider.Calls()
	require.Len(t, calls, 2)
	require.NotNil(t, calls[0].Request.Temperature)
	require.NotNil(t, calls[1].Request.Temperature)
	assert.Equal(t, float32(0.2), *calls[0].Request.Temperature)
	assert.Equal(t, float32(0.4), *calls[1].Request.Temperature)
}

func TestStructurer_FallsBackToBackupModel(t *testing.T) {
	// 主模型始终输出非法 JSON，耗尽阶梯后切换备用模型一次
	provider := mocks.NewMockProvider().WithScript(
		mocks.ScriptedResponse{Content: "not json"},
		mocks.ScriptedResponse{Content: "still not json"},
		mocks.ScriptedResponse{Content: fixtures.SummaryJSON},
	)

	s, err := NewStructurer(fixtureExtractor(), provider, structurerOptions(), zap.NewNop())
	require.NoError(t, err)

	summary, err := s.StructureText(testutil.TestContext(t), fixtures.SBCDocumentText)
	require.NoError(t, err)
	assert.Equal(t, "Silver Choice PPO 1500", summary.PlanName)

	calls := provider.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "claude-sonnet", calls[0].Request.Model)
	assert.Equal(t, "claude-sonnet", calls[1].Request.Model)
	assert.Equal(t, "gemini-flash", calls[2].Request.Model, "主模型耗尽后应调用备用模型")
	require.NotNil(t, calls[2].Request.Temperature)
	assert.Equal(t, invoke.FallbackTemperature, *calls[2].Request.Temperature)
}

func TestStructurer_ExhaustedError(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("never valid json")

	s, err := NewStructurer(fixtureExtractor(), provider, structurerOptions(), zap.NewNop())
	require.NoError(t, err)

	_, err = s.StructureText(testutil.TestContext(t), fixtures.SBCDocumentText)
	require.Error(t, err)

	var exhausted *invoke.ExhaustedError
	require.True(t, errors.As(err, &exhausted), "终态错误应可解包为 ExhaustedError")
	assert.Equal(t, 3, exhausted.Attempts, "两次阶梯加一次备用")
	assert.True(t, exhausted.FallbackUsed)
	assert.Error(t, exhausted.Cause)
}

func TestStructurer_ExtractionErrorPassesThrough(t *testing.T) {
	extractErr := errors.New("extraction down")
	extractor := &stubExtractor{err: extractErr}
	provider := mocks.NewMockProvider()

	s, err := NewStructurer(extractor, provider, structurerOptions(), zap.NewNop())
	require.NoError(t, err)

	_, _, err = s.StructureDocument(testutil.TestContext(t), "sbc.pdf", []byte("%PDF"))
	require.ErrorIs(t, err, extractErr)
	assert.Zero(t, provider.CallCount(), "抽取失败不应触发 LLM 调用")
}

func TestNewStructurer_Validation(t *testing.T) {
	provider := mocks.NewMockProvider()

	_, err := NewStructurer(nil, provider, structurerOptions(), zap.NewNop())
	assert.Error(t, err)

	_, err = NewStructurer(fixtureExtractor(), provider, nil, zap.NewNop())
	assert.Error(t, err, "缺少 invoke 配置应拒绝构造")

	_, err = NewStructurer(fixtureExtractor(), provider, &invoke.Options{}, zap.NewNop())
	assert.Error(t, err, "缺少主模型应拒绝构造")
}
