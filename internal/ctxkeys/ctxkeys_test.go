package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok, "空 context 不应有请求 ID")

	ctx = WithRequestID(ctx, "req-123")
	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-123", id)

	// 空字符串视为未设置
	_, ok = RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok)
}

func TestPlanID(t *testing.T) {
	ctx := WithPlanID(context.Background(), "plan-abc")
	id, ok := PlanID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "plan-abc", id)
}

func TestLLMModel(t *testing.T) {
	ctx := WithLLMModel(context.Background(), "claude-3-5-sonnet-20241022")
	model, ok := LLMModel(ctx)
	assert.True(t, ok)
	assert.Equal(t, "claude-3-5-sonnet-20241022", model)
}

func TestUserID(t *testing.T) {
	_, ok := UserID(context.Background())
	assert.False(t, ok, "空 context 不应有用户 ID")

	ctx := WithUserID(context.Background(), "user-42")
	id, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-42", id)
}
