package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestClaudeConfig_YAML(t *testing.T) {
	raw := `
api_key: sk-test
base_url: https://api.anthropic.com
model: claude-3-5-sonnet-20241022
timeout: 30000000000
`
	var cfg ClaudeConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Model)
	assert.Equal(t, 30*time.Second, cfg.Timeout, "timeout 以纳秒整数表示")
}

func TestGeminiConfig_YAML_Defaults(t *testing.T) {
	raw := `api_key: g-test`
	var cfg GeminiConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, "g-test", cfg.APIKey)
	assert.Empty(t, cfg.Model, "未指定模型时留空，由 Provider 选择默认值")
	assert.Zero(t, cfg.Timeout)
}
