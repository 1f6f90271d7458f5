package structured

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SchemaGenerator 利用反射从 Go 类型生成 JSON Schema
type SchemaGenerator struct {
	// 正在展开的结构体类型，递归引用时在此打破环
	expanding map[reflect.Type]bool
}

func NewSchemaGenerator() *SchemaGenerator {
	return &SchemaGenerator{expanding: make(map[reflect.Type]bool)}
}

// GenerateSchema 从 Go 类型生成 JSON Schema，
// 支持结构体、切片、map、指针和基本类型。
// 字段名取自 json 标签，校验约束取自 jsonschema 标签：
//
//   - required：必填字段
//   - enum=a,b,c：枚举值
//   - minimum=0 / maximum=100：数值范围
//   - minLength=1 / maxLength=100：字符串长度
//   - pattern=^[a-z]+$：字符串正则
//   - format=email：字符串格式（email、uri、uuid、date-time 等）
//   - minItems=1 / maxItems=10：数组长度
//   - description=...：字段说明
//   - default=...：默认值
func (g *SchemaGenerator) GenerateSchema(t reflect.Type) (*JSONSchema, error) {
	// 顶层调用之间不共享展开状态
	g.expanding = make(map[reflect.Type]bool)
	return g.schemaFor(t)
}

// GenerateSchemaFromValue 从值的动态类型生成 JSON Schema
func (g *SchemaGenerator) GenerateSchemaFromValue(v any) (*JSONSchema, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot generate schema from nil value")
	}
	return g.GenerateSchema(reflect.TypeOf(v))
}

func (g *SchemaGenerator) schemaFor(t reflect.Type) (*JSONSchema, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot generate schema for nil type")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if g.expanding[t] {
		// 递归结构体用空 object 占位
		return &JSONSchema{Type: TypeObject}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return NewStringSchema(), nil

	case reflect.Bool:
		return NewBooleanSchema(), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NewIntegerSchema(), nil

	case reflect.Float32, reflect.Float64:
		return NewNumberSchema(), nil

	case reflect.Slice, reflect.Array:
		elem, err := g.schemaFor(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for array element: %w", err)
		}
		return NewArraySchema(elem), nil

	case reflect.Map:
		// map 建模为允许任意键的 object，值类型进 additionalProperties
		value, err := g.schemaFor(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for map value: %w", err)
		}
		schema := NewObjectSchema()
		schema.AdditionalProperties = &AdditionalProperties{Allowed: true, Schema: value}
		return schema, nil

	case reflect.Struct:
		return g.structSchema(t)

	case reflect.Interface:
		// interface{} 不加类型约束
		return &JSONSchema{}, nil

	default:
		return nil, fmt.Errorf("unsupported type: %s", t.Kind())
	}
}

func (g *SchemaGenerator) structSchema(t reflect.Type) (*JSONSchema, error) {
	g.expanding[t] = true
	defer delete(g.expanding, t)

	schema := NewObjectSchema()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonFieldName(field)
		if name == "-" {
			continue
		}

		fieldSchema, err := g.schemaFor(field.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for field %s: %w", field.Name, err)
		}

		options := parseTagOptions(field.Tag.Get("jsonschema"))
		applyTagOptions(fieldSchema, options, field.Type)
		if _, required := options["required"]; required {
			schema.AddRequired(name)
		}
		schema.AddProperty(name, fieldSchema)
	}
	return schema, nil
}

// jsonFieldName 取 json 标签里的字段名，缺省回退到 Go 字段名
func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" {
		return field.Name
	}
	return name
}

// applyTagOptions 把解析好的标签选项写进字段 schema。
// 解析失败的数值选项静默忽略
func applyTagOptions(schema *JSONSchema, options map[string]string, fieldType reflect.Type) {
	if desc, ok := options["description"]; ok {
		schema.Description = desc
	}
	if def, ok := options["default"]; ok {
		schema.Default = coerceDefault(def, fieldType)
	}
	if raw, ok := options["enum"]; ok {
		items := strings.Split(raw, ",")
		schema.Enum = make([]any, len(items))
		for i, item := range items {
			schema.Enum[i] = strings.TrimSpace(item)
		}
	}
	if pattern, ok := options["pattern"]; ok {
		schema.Pattern = pattern
	}
	if format, ok := options["format"]; ok {
		schema.Format = StringFormat(format)
	}

	setIntOption(options, "minLength", &schema.MinLength)
	setIntOption(options, "maxLength", &schema.MaxLength)
	setIntOption(options, "minItems", &schema.MinItems)
	setIntOption(options, "maxItems", &schema.MaxItems)
	setFloatOption(options, "minimum", &schema.Minimum)
	setFloatOption(options, "maximum", &schema.Maximum)
}

func setIntOption(options map[string]string, key string, dst **int) {
	if raw, ok := options[key]; ok {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = &v
		}
	}
}

func setFloatOption(options map[string]string, key string, dst **float64) {
	if raw, ok := options[key]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = &v
		}
	}
}

// parseTagOptions 把 "opt1,opt2=value2,opt3=value3" 形式的标签解析为选项表，
// 无值的选项（如 "required"）映射到空串
func parseTagOptions(tag string) map[string]string {
	options := make(map[string]string)
	for _, part := range splitTagParts(tag) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx > 0 {
			options[part[:idx]] = part[idx+1:]
		} else {
			options[part] = ""
		}
	}
	return options
}

// splitTagParts 按逗号分割标签，但值内部的逗号要保留：
// "enum=a,b,c" 的 "a,b,c" 是一个整体。进入值状态后，
// 只有后面跟着新选项（key=value 或已知布尔选项）的逗号才作分隔符
func splitTagParts(tag string) []string {
	var parts []string
	var current strings.Builder
	inValue := false

	for i := 0; i < len(tag); i++ {
		ch := tag[i]
		if ch == '=' {
			inValue = true
			current.WriteByte(ch)
			continue
		}
		if ch != ',' {
			current.WriteByte(ch)
			continue
		}
		if !inValue || startsNewOption(tag[i+1:]) {
			parts = append(parts, current.String())
			current.Reset()
			inValue = false
			continue
		}
		// 逗号属于当前值（如枚举项）
		current.WriteByte(ch)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// startsNewOption 判断逗号后的片段是否开启新选项
func startsNewOption(rest string) bool {
	segment := rest
	if idx := strings.Index(rest, ","); idx >= 0 {
		segment = rest[:idx]
	}
	segment = strings.TrimSpace(segment)
	if segment == "required" {
		return true
	}

	eq := strings.Index(segment, "=")
	if eq <= 0 {
		return false
	}
	// 键只允许字母数字，带其他字符的一律当作值内容
	for _, c := range segment[:eq] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// coerceDefault 按字段类型解析默认值字符串，解析失败时原样返回
func coerceDefault(value string, t reflect.Type) any {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return value
	case reflect.Bool:
		return value == "true"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	case reflect.Float32, reflect.Float64:
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return value
}
