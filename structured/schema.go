package structured

import (
	"encoding/json"
	"fmt"
)

// SchemaType JSON Schema 的类型关键字
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
	TypeNull    SchemaType = "null"
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
)

// StringFormat 常用字符串 format 约束
type StringFormat string

const (
	FormatDateTime StringFormat = "date-time"
	FormatDate     StringFormat = "date"
	FormatEmail    StringFormat = "email"
	FormatURI      StringFormat = "uri"
	FormatUUID     StringFormat = "uuid"
)

// JSONSchema 描述计划抽取所需的 JSON Schema 子集：
// 嵌套 object/array、enum，以及字符串、数值和容器的常用约束。
// 字段名与 JSON Schema 规范的关键字一一对应，序列化结果可直接喂给模型。
type JSONSchema struct {
	Schema      string `json:"$schema,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Type SchemaType `json:"type,omitempty"`

	// object
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *AdditionalProperties  `json:"additionalProperties,omitempty"`
	MinProperties        *int                   `json:"minProperties,omitempty"`
	MaxProperties        *int                   `json:"maxProperties,omitempty"`

	// array
	Items       *JSONSchema `json:"items,omitempty"`
	MinItems    *int        `json:"minItems,omitempty"`
	MaxItems    *int        `json:"maxItems,omitempty"`
	UniqueItems *bool       `json:"uniqueItems,omitempty"`

	Enum []any `json:"enum,omitempty"`

	// string
	MinLength *int         `json:"minLength,omitempty"`
	MaxLength *int         `json:"maxLength,omitempty"`
	Pattern   string       `json:"pattern,omitempty"`
	Format    StringFormat `json:"format,omitempty"`

	// number / integer
	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`

	Default  any   `json:"default,omitempty"`
	Examples []any `json:"examples,omitempty"`
}

// AdditionalProperties 对应 additionalProperties 关键字，
// 规范允许布尔或子 schema 两种写法，序列化时保持原样
type AdditionalProperties struct {
	Allowed bool
	Schema  *JSONSchema
}

func (ap *AdditionalProperties) MarshalJSON() ([]byte, error) {
	switch {
	case ap == nil:
		return json.Marshal(nil)
	case ap.Schema != nil:
		return json.Marshal(ap.Schema)
	default:
		return json.Marshal(ap.Allowed)
	}
}

func (ap *AdditionalProperties) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		ap.Allowed = b
		ap.Schema = nil
		return nil
	}

	var schema JSONSchema
	if err := json.Unmarshal(data, &schema); err == nil {
		// 子 schema 形式隐含允许额外字段
		ap.Allowed = true
		ap.Schema = &schema
		return nil
	}

	return fmt.Errorf("additionalProperties must be boolean or schema")
}

// ============================================================
// 🏗️ 构造器与链式 builder
// ============================================================

// NewObjectSchema 创建空的 object schema，Properties 已初始化
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{Type: TypeObject, Properties: make(map[string]*JSONSchema)}
}

// NewArraySchema 创建元素为 items 的 array schema
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: TypeArray, Items: items}
}

func NewStringSchema() *JSONSchema { return &JSONSchema{Type: TypeString} }

func NewNumberSchema() *JSONSchema { return &JSONSchema{Type: TypeNumber} }

func NewIntegerSchema() *JSONSchema { return &JSONSchema{Type: TypeInteger} }

func NewBooleanSchema() *JSONSchema { return &JSONSchema{Type: TypeBoolean} }

// NewEnumSchema 创建只含 enum 约束的 schema，类型由枚举值自身决定
func NewEnumSchema(values ...any) *JSONSchema {
	return &JSONSchema{Enum: values}
}

func (s *JSONSchema) WithTitle(title string) *JSONSchema { s.Title = title; return s }

func (s *JSONSchema) WithDescription(desc string) *JSONSchema { s.Description = desc; return s }

func (s *JSONSchema) WithPattern(pattern string) *JSONSchema { s.Pattern = pattern; return s }

func (s *JSONSchema) WithFormat(format StringFormat) *JSONSchema { s.Format = format; return s }

func (s *JSONSchema) WithEnum(values ...any) *JSONSchema { s.Enum = values; return s }

func (s *JSONSchema) WithMinLength(min int) *JSONSchema { s.MinLength = ptr(min); return s }

func (s *JSONSchema) WithMaxLength(max int) *JSONSchema { s.MaxLength = ptr(max); return s }

func (s *JSONSchema) WithMinimum(min float64) *JSONSchema { s.Minimum = ptr(min); return s }

func (s *JSONSchema) WithMaximum(max float64) *JSONSchema { s.Maximum = ptr(max); return s }

func (s *JSONSchema) WithExclusiveMinimum(min float64) *JSONSchema {
	s.ExclusiveMinimum = ptr(min)
	return s
}

func (s *JSONSchema) WithMinItems(min int) *JSONSchema { s.MinItems = ptr(min); return s }

func (s *JSONSchema) WithMaxItems(max int) *JSONSchema { s.MaxItems = ptr(max); return s }

func (s *JSONSchema) WithUniqueItems(unique bool) *JSONSchema {
	s.UniqueItems = ptr(unique)
	return s
}

// WithAdditionalProperties 以布尔形式设置 additionalProperties
func (s *JSONSchema) WithAdditionalProperties(allowed bool) *JSONSchema {
	s.AdditionalProperties = &AdditionalProperties{Allowed: allowed}
	return s
}

// AddProperty 向 object schema 添加属性，nil map 会被惰性初始化
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired 追加 required 字段名，不去重
func (s *JSONSchema) AddRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

// ============================================================
// 📋 查询与拷贝
// ============================================================

// IsRequired 判断属性是否在 required 列表中
func (s *JSONSchema) IsRequired(name string) bool {
	for _, req := range s.Required {
		if req == name {
			return true
		}
	}
	return false
}

// GetProperty 按名字取属性 schema，不存在返回 nil
func (s *JSONSchema) GetProperty(name string) *JSONSchema {
	return s.Properties[name]
}

// HasProperty 判断属性是否已定义
func (s *JSONSchema) HasProperty(name string) bool {
	_, ok := s.Properties[name]
	return ok
}

// Clone 深拷贝整棵 schema。Default/Enum/Examples 中的值按引用共享，
// 调用方不应修改其内部结构。
func (s *JSONSchema) Clone() *JSONSchema {
	if s == nil {
		return nil
	}

	clone := *s

	clone.MinProperties = cp(s.MinProperties)
	clone.MaxProperties = cp(s.MaxProperties)
	clone.MinItems = cp(s.MinItems)
	clone.MaxItems = cp(s.MaxItems)
	clone.UniqueItems = cp(s.UniqueItems)
	clone.MinLength = cp(s.MinLength)
	clone.MaxLength = cp(s.MaxLength)
	clone.Minimum = cp(s.Minimum)
	clone.Maximum = cp(s.Maximum)
	clone.ExclusiveMinimum = cp(s.ExclusiveMinimum)
	clone.ExclusiveMaximum = cp(s.ExclusiveMaximum)

	if s.Properties != nil {
		clone.Properties = make(map[string]*JSONSchema, len(s.Properties))
		for name, prop := range s.Properties {
			clone.Properties[name] = prop.Clone()
		}
	}
	if s.Required != nil {
		clone.Required = append([]string(nil), s.Required...)
	}
	if s.Enum != nil {
		clone.Enum = append([]any(nil), s.Enum...)
	}
	if s.Examples != nil {
		clone.Examples = append([]any(nil), s.Examples...)
	}

	clone.Items = s.Items.Clone()
	if s.AdditionalProperties != nil {
		clone.AdditionalProperties = &AdditionalProperties{
			Allowed: s.AdditionalProperties.Allowed,
			Schema:  s.AdditionalProperties.Schema.Clone(),
		}
	}

	return &clone
}

// ============================================================
// 💾 序列化
// ============================================================

// ToJSON 序列化为紧凑 JSON
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ToJSONIndent 序列化为缩进 JSON，用于注入系统提示词
func (s *JSONSchema) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON 从 JSON 反序列化 schema
func FromJSON(data []byte) (*JSONSchema, error) {
	var schema JSONSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON schema: %w", err)
	}
	return &schema, nil
}

// ptr 取值的指针，配合链式 builder 使用
func ptr[T any](v T) *T { return &v }

// cp 复制指针指向的值，nil 原样返回
func cp[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
