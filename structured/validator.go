package structured

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// SchemaValidator 按 JSONSchema 校验一段 JSON 数据
type SchemaValidator interface {
	Validate(data []byte, schema *JSONSchema) error
}

// ParseError 单条校验错误，Path 为字段路径（如 "deductible.individual"）
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors 一次校验产生的全部错误，重试 prompt 会逐条反馈给模型
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, pe := range e.Errors {
		msgs[i] = pe.Error()
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// errList 在一次遍历中累积错误，避免逐层传递 *[]ParseError
type errList struct {
	errs []ParseError
}

func (l *errList) add(path, format string, args ...any) {
	l.errs = append(l.errs, ParseError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ============================================================
// 🔍 DefaultValidator
// ============================================================

// 内置 format 的正则，启动时编译一次
var builtinFormats = map[StringFormat]*regexp.Regexp{
	FormatEmail: regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`),
	FormatURI:   regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`),
	FormatUUID:  regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
	// ISO 8601
	FormatDateTime: regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(.\d+)?(Z|[+-]\d{2}:\d{2})?$`),
	FormatDate:     regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
}

// DefaultValidator 是 SchemaValidator 的默认实现
type DefaultValidator struct {
	formatValidators map[StringFormat]func(string) bool
}

// NewValidator 创建带内置 format 校验的 DefaultValidator
func NewValidator() *DefaultValidator {
	v := &DefaultValidator{
		formatValidators: make(map[StringFormat]func(string) bool, len(builtinFormats)),
	}
	for format, re := range builtinFormats {
		v.formatValidators[format] = re.MatchString
	}
	return v
}

// RegisterFormat 注册自定义 format 校验器，同名覆盖内置实现
func (v *DefaultValidator) RegisterFormat(format StringFormat, validator func(string) bool) {
	v.formatValidators[format] = validator
}

// Validate 校验 JSON 数据；schema 为 nil 时视为无约束
func (v *DefaultValidator) Validate(data []byte, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationErrors{
			Errors: []ParseError{{Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}
	}

	var list errList
	v.walk(value, schema, "", &list)
	if len(list.errs) > 0 {
		return &ValidationErrors{Errors: list.errs}
	}
	return nil
}

// walk 递归校验：先 enum，再按声明的类型分派
func (v *DefaultValidator) walk(value any, schema *JSONSchema, path string, list *errList) {
	if schema == nil {
		return
	}

	if len(schema.Enum) > 0 && !enumContains(schema.Enum, value) {
		list.add(path, "value must be one of: %v", schema.Enum)
	}

	switch schema.Type {
	case TypeString:
		v.checkString(value, schema, path, list)
	case TypeNumber:
		if num, ok := asFloat64(value); ok {
			checkNumericRange(num, schema, path, list)
		} else {
			list.add(path, "expected number, got %T", value)
		}
	case TypeInteger:
		v.checkInteger(value, schema, path, list)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			list.add(path, "expected boolean, got %T", value)
		}
	case TypeNull:
		if value != nil {
			list.add(path, "expected null, got %T", value)
		}
	case TypeObject:
		v.checkObject(value, schema, path, list)
	case TypeArray:
		v.checkArray(value, schema, path, list)
	}
}

func (v *DefaultValidator) checkString(value any, schema *JSONSchema, path string, list *errList) {
	str, ok := value.(string)
	if !ok {
		list.add(path, "expected string, got %T", value)
		return
	}

	if schema.MinLength != nil && len(str) < *schema.MinLength {
		list.add(path, "string length %d is less than minimum %d", len(str), *schema.MinLength)
	}
	if schema.MaxLength != nil && len(str) > *schema.MaxLength {
		list.add(path, "string length %d exceeds maximum %d", len(str), *schema.MaxLength)
	}

	if schema.Pattern != "" {
		// Pattern 来自 schema 定义方，可能本身就不合法
		if matched, err := regexp.MatchString(schema.Pattern, str); err != nil {
			list.add(path, "invalid pattern %q: %v", schema.Pattern, err)
		} else if !matched {
			list.add(path, "string does not match pattern %q", schema.Pattern)
		}
	}

	if schema.Format != "" {
		// 未注册的 format 直接放过，与 JSON Schema 的宽松语义一致
		if check, ok := v.formatValidators[schema.Format]; ok && !check(str) {
			list.add(path, "string does not match format %q", schema.Format)
		}
	}
}

func (v *DefaultValidator) checkInteger(value any, schema *JSONSchema, path string, list *errList) {
	num, ok := asFloat64(value)
	if !ok {
		list.add(path, "expected integer, got %T", value)
		return
	}
	// encoding/json 把所有数字解成 float64，整数性只能事后判断
	if num != math.Trunc(num) {
		list.add(path, "expected integer, got %v", num)
		return
	}
	checkNumericRange(num, schema, path, list)
}

func checkNumericRange(num float64, schema *JSONSchema, path string, list *errList) {
	if schema.Minimum != nil && num < *schema.Minimum {
		list.add(path, "value %v is less than minimum %v", num, *schema.Minimum)
	}
	if schema.Maximum != nil && num > *schema.Maximum {
		list.add(path, "value %v exceeds maximum %v", num, *schema.Maximum)
	}
	if schema.ExclusiveMinimum != nil && num <= *schema.ExclusiveMinimum {
		list.add(path, "value %v must be greater than %v", num, *schema.ExclusiveMinimum)
	}
	if schema.ExclusiveMaximum != nil && num >= *schema.ExclusiveMaximum {
		list.add(path, "value %v must be less than %v", num, *schema.ExclusiveMaximum)
	}
}

func (v *DefaultValidator) checkObject(value any, schema *JSONSchema, path string, list *errList) {
	obj, ok := value.(map[string]any)
	if !ok {
		list.add(path, "expected object, got %T", value)
		return
	}

	// required 字段缺失和显式 null 分开报，便于模型针对性修正
	for _, name := range schema.Required {
		val, exists := obj[name]
		switch {
		case !exists:
			list.add(joinPath(path, name), "required field is missing")
		case val == nil:
			list.add(joinPath(path, name), "required field must not be null")
		}
	}

	if schema.MinProperties != nil && len(obj) < *schema.MinProperties {
		list.add(path, "object has %d properties, minimum is %d", len(obj), *schema.MinProperties)
	}
	if schema.MaxProperties != nil && len(obj) > *schema.MaxProperties {
		list.add(path, "object has %d properties, maximum is %d", len(obj), *schema.MaxProperties)
	}

	for name, propValue := range obj {
		propPath := joinPath(path, name)
		propSchema, declared := schema.Properties[name]
		if declared {
			v.walk(propValue, propSchema, propPath, list)
			continue
		}
		ap := schema.AdditionalProperties
		if ap == nil {
			continue
		}
		if ap.Schema != nil {
			v.walk(propValue, ap.Schema, propPath, list)
		} else if !ap.Allowed {
			list.add(propPath, "additional property not allowed")
		}
	}
}

func (v *DefaultValidator) checkArray(value any, schema *JSONSchema, path string, list *errList) {
	arr, ok := value.([]any)
	if !ok {
		list.add(path, "expected array, got %T", value)
		return
	}

	if schema.MinItems != nil && len(arr) < *schema.MinItems {
		list.add(path, "array has %d items, minimum is %d", len(arr), *schema.MinItems)
	}
	if schema.MaxItems != nil && len(arr) > *schema.MaxItems {
		list.add(path, "array has %d items, maximum is %d", len(arr), *schema.MaxItems)
	}

	if schema.UniqueItems != nil && *schema.UniqueItems {
		seen := make(map[string]struct{}, len(arr))
		for i, item := range arr {
			key := canonicalKey(item)
			if _, dup := seen[key]; dup {
				list.add(fmt.Sprintf("%s[%d]", path, i), "duplicate item in array with uniqueItems constraint")
			}
			seen[key] = struct{}{}
		}
	}

	if schema.Items != nil {
		for i, item := range arr {
			v.walk(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), list)
		}
	}
}

// ============================================================
// 🔧 值比较与路径
// ============================================================

// asFloat64 把 JSON 解码出的数值统一成 float64
func asFloat64(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func enumContains(enum []any, value any) bool {
	for _, candidate := range enum {
		if equalJSONValues(value, candidate) {
			return true
		}
	}
	return false
}

// equalJSONValues 按 JSON 语义比较：数字跨 Go 类型也要相等，3 == 3.0
func equalJSONValues(a, b any) bool {
	if aNum, ok := asFloat64(a); ok {
		bNum, ok := asFloat64(b)
		return ok && aNum == bNum
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	// 复合类型退化为序列化比较
	return canonicalKey(a) == canonicalKey(b)
}

func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

// canonicalKey 用序列化结果做去重键
func canonicalKey(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
