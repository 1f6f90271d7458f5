package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/BaSui01/planflow/llm"
)

// ParseResult 表示一次结构化输出解析的详细结果。
type ParseResult[T any] struct {
	Value  *T           `json:"value,omitempty"`
	Raw    string       `json:"raw"`
	Errors []ParseError `json:"errors,omitempty"`
}

// IsValid 返回解析是否成功且无校验错误。
func (r *ParseResult[T]) IsValid() bool {
	return r.Value != nil && len(r.Errors) == 0
}

// Output 是通用结构化输出处理器：向 LLM 注入 schema 指令，
// 解析响应并做 schema 校验，产出类型安全的结果。
type Output[T any] struct {
	schema    *JSONSchema
	provider  llm.Provider
	validator SchemaValidator
	generator *SchemaGenerator
}

// NewOutput 为类型 T 创建结构化输出处理器，
// schema 通过反射从类型参数自动生成。
func NewOutput[T any](provider llm.Provider) (*Output[T], error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	generator := NewSchemaGenerator()
	var zero T
	schema, err := generator.GenerateSchema(reflect.TypeOf(zero))
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for type %T: %w", zero, err)
	}

	return &Output[T]{
		schema:    schema,
		provider:  provider,
		validator: NewValidator(),
		generator: generator,
	}, nil
}

// NewOutputWithSchema 使用自定义 schema 创建结构化输出处理器。
func NewOutputWithSchema[T any](provider llm.Provider, schema *JSONSchema) (*Output[T], error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if schema == nil {
		return nil, fmt.Errorf("schema cannot be nil")
	}

	return &Output[T]{
		schema:    schema,
		provider:  provider,
		validator: NewValidator(),
		generator: NewSchemaGenerator(),
	}, nil
}

// Schema 返回用于校验的 JSON Schema。
func (s *Output[T]) Schema() *JSONSchema {
	return s.schema
}

// Generate 从单条用户提示生成结构化输出，使用 Provider 的默认模型与温度。
func (s *Output[T]) Generate(ctx context.Context, prompt string) (*T, error) {
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}
	return s.GenerateWithMessages(ctx, messages)
}

// GenerateWithMessages 从消息列表生成结构化输出。
func (s *Output[T]) GenerateWithMessages(ctx context.Context, messages []llm.Message) (*T, error) {
	return s.GenerateAt(ctx, messages, "", 0)
}

// GenerateAt 以指定模型与温度生成结构化输出。
// model 为空时使用 Provider 默认模型；调用器的温度阶梯通过这里下发。
// 返回 nil error 时结果已通过 schema 校验。
func (s *Output[T]) GenerateAt(ctx context.Context, messages []llm.Message, model string, temperature float32) (*T, error) {
	value, _, errs, err := s.generateDetailed(ctx, messages, model, temperature)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, &ValidationErrors{Errors: errs}
	}
	return value, nil
}

// GenerateWithParse 生成结构化输出并返回详细解析结果。
func (s *Output[T]) GenerateWithParse(ctx context.Context, prompt string) (*ParseResult[T], error) {
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}

	value, raw, errs, err := s.generateDetailed(ctx, messages, "", 0)
	if err != nil {
		return nil, err
	}

	return &ParseResult[T]{
		Value:  value,
		Raw:    raw,
		Errors: errs,
	}, nil
}

// generateDetailed 执行一次生成：注入 schema 系统提示、调用 Provider、
// 提取 JSON、解析并校验。
func (s *Output[T]) generateDetailed(ctx context.Context, messages []llm.Message, model string, temperature float32) (*T, string, []ParseError, error) {
	schemaJSON, err := s.schema.ToJSONIndent()
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	systemMsg := llm.Message{
		Role:    llm.RoleSystem,
		Content: s.buildOutputPrompt(string(schemaJSON)),
	}

	// 系统消息前置
	allMessages := append([]llm.Message{systemMsg}, messages...)

	req := &llm.ChatRequest{
		Model:       model,
		Messages:    allMessages,
		Temperature: llm.Temperature(temperature),
	}

	resp, err := s.provider.Completion(ctx, req)
	if err != nil {
		return nil, "", nil, fmt.Errorf("provider completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, "", nil, fmt.Errorf("no response choices returned")
	}

	raw := resp.Choices[0].Message.Content

	// 从响应中提取 JSON（处理 markdown 代码块等）
	jsonStr := s.extractJSON(raw)

	value, parseErrors := s.parseAndValidateDetailed(jsonStr)
	return value, raw, parseErrors, nil
}

// buildOutputPrompt 构建结构化输出的系统提示。
func (s *Output[T]) buildOutputPrompt(schemaJSON string) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful assistant that generates structured JSON output.\n\n")
	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. You MUST respond with valid JSON that conforms to the schema below.\n")
	sb.WriteString("2. Do NOT include any text before or after the JSON.\n")
	sb.WriteString("3. Do NOT wrap the JSON in markdown code blocks.\n")
	sb.WriteString("4. Ensure all required fields are present and have valid values.\n")
	sb.WriteString("5. Follow all constraints specified in the schema (enum values, min/max, patterns, etc.).\n\n")
	sb.WriteString("JSON Schema:\n")
	sb.WriteString("```json\n")
	sb.WriteString(schemaJSON)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Respond with ONLY the JSON object.")

	return sb.String()
}

// extractJSON 从可能带有围栏或附加文字的响应中提取 JSON 字符串。
func (s *Output[T]) extractJSON(response string) string {
	response = strings.TrimSpace(response)

	// 优先从 markdown 代码块提取
	if strings.Contains(response, "```") {
		re := regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
		matches := re.FindStringSubmatch(response)
		if len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	// 回退：JSON 对象边界
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}

	// 回退：JSON 数组边界
	start = strings.Index(response, "[")
	end = strings.LastIndex(response, "]")
	if start >= 0 && end > start {
		return response[start : end+1]
	}

	return response
}

// parseAndValidateDetailed 解析 JSON 并返回详细校验错误。
func (s *Output[T]) parseAndValidateDetailed(jsonStr string) (*T, []ParseError) {
	var errors []ParseError

	// schema 校验在前
	if err := s.validator.Validate([]byte(jsonStr), s.schema); err != nil {
		if ve, ok := err.(*ValidationErrors); ok {
			errors = append(errors, ve.Errors...)
		} else {
			errors = append(errors, ParseError{
				Path:    "",
				Message: err.Error(),
			})
		}
	}

	var value T
	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		errors = append(errors, ParseError{
			Path:    "",
			Message: fmt.Sprintf("JSON parse error: %v", err),
		})
		return nil, errors
	}

	if len(errors) > 0 {
		return &value, errors
	}

	return &value, nil
}

// ValidateValue 对照 schema 校验一个已有的值。
func (s *Output[T]) ValidateValue(value *T) error {
	if value == nil {
		return fmt.Errorf("value cannot be nil")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return s.validator.Validate(data, s.schema)
}

// Parse 将 JSON 字符串解析为目标类型并校验。
func (s *Output[T]) Parse(jsonStr string) (*T, error) {
	value, errs := s.parseAndValidateDetailed(jsonStr)
	if len(errs) > 0 {
		return nil, &ValidationErrors{Errors: errs}
	}
	return value, nil
}

// ParseWithResult 解析 JSON 字符串并返回详细结果。
func (s *Output[T]) ParseWithResult(jsonStr string) *ParseResult[T] {
	value, errors := s.parseAndValidateDetailed(jsonStr)
	return &ParseResult[T]{
		Value:  value,
		Raw:    jsonStr,
		Errors: errors,
	}
}
