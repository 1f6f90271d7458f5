package structured

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/planflow/llm"
)

type planFixture struct {
	PlanName   string  `json:"plan_name" jsonschema:"required"`
	Deductible float64 `json:"deductible" jsonschema:"required,minimum=0"`
}

// stubProvider 返回固定文本，并记录收到的请求。
type stubProvider struct {
	response string
	err      error
	lastReq  *llm.ChatRequest
}

func (p *stubProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{
		Model: req.Model,
		Choices: []llm.ChatChoice{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: p.response}},
		},
	}, nil
}

func (p *stubProvider) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *stubProvider) Name() string { return "stub" }

func TestOutput_Generate(t *testing.T) {
	provider := &stubProvider{response: `{"plan_name":"Gold PPO","deductible":1500}`}
	out, err := NewOutput[planFixture](provider)
	require.NoError(t, err)

	value, err := out.Generate(context.Background(), "extract the plan")
	require.NoError(t, err)
	assert.Equal(t, "Gold PPO", value.PlanName)
	assert.Equal(t, float64(1500), value.Deductible)

	// schema 指令以系统消息前置
	require.NotEmpty(t, provider.lastReq.Messages)
	assert.Equal(t, llm.RoleSystem, provider.lastReq.Messages[0].Role)
	assert.Contains(t, provider.lastReq.Messages[0].Content, "JSON Schema")
}

func TestOutput_GenerateAt_PassesModelAndTemperature(t *testing.T) {
	provider := &stubProvider{response: `{"plan_name":"Gold PPO","deductible":1500}`}
	out, err := NewOutput[planFixture](provider)
	require.NoError(t, err)

	messages := []llm.Message{{Role: llm.RoleUser, Content: "extract"}}
	_, err = out.GenerateAt(context.Background(), messages, "claude-sonnet", 0.9)
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet", provider.lastReq.Model)
	require.NotNil(t, provider.lastReq.Temperature)
	assert.Equal(t, float32(0.9), *provider.lastReq.Temperature)
}

func TestOutput_GenerateMarkdownFenced(t *testing.T) {
	provider := &stubProvider{
		response: "Here is the plan:\n```json\n{\"plan_name\":\"Gold PPO\",\"deductible\":1500}\n```\nDone.",
	}
	out, err := NewOutput[planFixture](provider)
	require.NoError(t, err)

	value, err := out.Generate(context.Background(), "extract")
	require.NoError(t, err)
	assert.Equal(t, "Gold PPO", value.PlanName)
}

func TestOutput_ValidationFailure(t *testing.T) {
	// deductible 为负数，违反 minimum=0
	provider := &stubProvider{response: `{"plan_name":"Gold PPO","deductible":-5}`}
	out, err := NewOutput[planFixture](provider)
	require.NoError(t, err)

	_, err = out.Generate(context.Background(), "extract")
	require.Error(t, err)

	var ve *ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "deductible", ve.Errors[0].Path)
}

func TestOutput_ProviderError(t *testing.T) {
	provider := &stubProvider{err: errors.New("upstream down")}
	out, err := NewOutput[planFixture](provider)
	require.NoError(t, err)

	_, err = out.Generate(context.Background(), "extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider completion failed")
}

func TestOutput_Parse(t *testing.T) {
	out, err := NewOutput[planFixture](&stubProvider{})
	require.NoError(t, err)

	value, err := out.Parse(`{"plan_name":"Silver HMO","deductible":3000}`)
	require.NoError(t, err)
	assert.Equal(t, "Silver HMO", value.PlanName)

	_, err = out.Parse(`{"deductible":3000}`)
	assert.Error(t, err, "缺少必填字段应校验失败")
}

func TestOutput_ParseWithResult(t *testing.T) {
	out, err := NewOutput[planFixture](&stubProvider{})
	require.NoError(t, err)

	result := out.ParseWithResult(`{"plan_name":"Silver HMO","deductible":-1}`)
	assert.False(t, result.IsValid())
	assert.NotEmpty(t, result.Errors)
	assert.NotNil(t, result.Value, "类型解析成功时保留部分值")
}

func TestOutput_ExtractJSON(t *testing.T) {
	out, err := NewOutput[planFixture](&stubProvider{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", `The result is {"a":1} as requested.`, `{"a":1}`},
		{"array", `here: [1,2,3]`, `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, out.extractJSON(tt.input))
		})
	}
}

func TestNewOutput_NilProvider(t *testing.T) {
	_, err := NewOutput[planFixture](nil)
	assert.Error(t, err)

	_, err = NewOutputWithSchema[planFixture](&stubProvider{}, nil)
	assert.Error(t, err)
}

func TestNewOutputWithSchema(t *testing.T) {
	custom := NewObjectSchema().
		AddProperty("plan_name", NewStringSchema()).
		AddRequired("plan_name")

	out, err := NewOutputWithSchema[planFixture](&stubProvider{}, custom)
	require.NoError(t, err)
	assert.Same(t, custom, out.Schema())
}
