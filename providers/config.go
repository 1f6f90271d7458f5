// Package providers 存放各上游模型适配器的连接配置。
// 具体 Provider 实现位于子包 anthropic 与 gemini。
package providers

import "time"

// ClaudeConfig Anthropic Claude 的连接配置。
// BaseURL 留空时使用官方端点，Model 留空时由 Provider 选择默认模型。
type ClaudeConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GeminiConfig Google Gemini 的连接配置，字段语义与 ClaudeConfig 一致
type GeminiConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
