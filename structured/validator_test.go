package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_RequiredFields(t *testing.T) {
	validator := NewValidator()
	schema := NewObjectSchema().
		AddProperty("plan_name", NewStringSchema()).
		AddProperty("deductible", NewNumberSchema()).
		AddRequired("plan_name", "deductible")

	t.Run("all present", func(t *testing.T) {
		err := validator.Validate([]byte(`{"plan_name":"Gold PPO","deductible":1500}`), schema)
		assert.NoError(t, err)
	})

	t.Run("missing field", func(t *testing.T) {
		err := validator.Validate([]byte(`{"plan_name":"Gold PPO"}`), schema)
		require.Error(t, err)

		ve, ok := err.(*ValidationErrors)
		require.True(t, ok)
		require.Len(t, ve.Errors, 1)
		assert.Equal(t, "deductible", ve.Errors[0].Path)
		assert.Contains(t, ve.Errors[0].Message, "required")
	})

	t.Run("null field", func(t *testing.T) {
		err := validator.Validate([]byte(`{"plan_name":null,"deductible":1500}`), schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not be null")
	})
}

func TestValidator_TypeMismatch(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name   string
		schema *JSONSchema
		data   string
	}{
		{"string gets number", NewStringSchema(), `42`},
		{"number gets string", NewNumberSchema(), `"abc"`},
		{"integer gets float", NewIntegerSchema(), `1.5`},
		{"boolean gets string", NewBooleanSchema(), `"true"`},
		{"object gets array", NewObjectSchema(), `[]`},
		{"array gets object", NewArraySchema(NewStringSchema()), `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate([]byte(tt.data), tt.schema)
			assert.Error(t, err)
		})
	}
}

func TestValidator_StringConstraints(t *testing.T) {
	validator := NewValidator()
	schema := NewStringSchema().WithMinLength(2).WithMaxLength(5)

	assert.NoError(t, validator.Validate([]byte(`"abc"`), schema))
	assert.Error(t, validator.Validate([]byte(`"a"`), schema), "低于最小长度")
	assert.Error(t, validator.Validate([]byte(`"abcdef"`), schema), "超过最大长度")

	patterned := NewStringSchema().WithPattern(`^[A-Z]{2}\d{4}$`)
	assert.NoError(t, validator.Validate([]byte(`"CA1234"`), patterned))
	assert.Error(t, validator.Validate([]byte(`"ca1234"`), patterned))
}

func TestValidator_Formats(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		format StringFormat
		valid  string
		bad    string
	}{
		{FormatEmail, `"user@example.com"`, `"not-an-email"`},
		{FormatURI, `"https://example.com/x"`, `"example.com"`},
		{FormatUUID, `"123e4567-e89b-12d3-a456-426614174000"`, `"not-a-uuid"`},
		{FormatDate, `"2026-01-15"`, `"01/15/2026"`},
		{FormatDateTime, `"2026-01-15T10:30:00Z"`, `"2026-01-15 10:30"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			schema := NewStringSchema().WithFormat(tt.format)
			assert.NoError(t, validator.Validate([]byte(tt.valid), schema))
			assert.Error(t, validator.Validate([]byte(tt.bad), schema))
		})
	}
}

func TestValidator_NumericConstraints(t *testing.T) {
	validator := NewValidator()
	schema := NewNumberSchema().WithMinimum(0).WithMaximum(100)

	assert.NoError(t, validator.Validate([]byte(`50`), schema))
	assert.NoError(t, validator.Validate([]byte(`0`), schema))
	assert.Error(t, validator.Validate([]byte(`-1`), schema))
	assert.Error(t, validator.Validate([]byte(`101`), schema))

	exclusive := NewNumberSchema().WithExclusiveMinimum(0)
	assert.Error(t, validator.Validate([]byte(`0`), exclusive), "排他下界不含边界值")
	assert.NoError(t, validator.Validate([]byte(`0.01`), exclusive))
}

func TestValidator_Enum(t *testing.T) {
	validator := NewValidator()
	schema := NewStringSchema().WithEnum("covered", "not_covered", "needs_confirmation")

	assert.NoError(t, validator.Validate([]byte(`"covered"`), schema))

	err := validator.Validate([]byte(`"unknown"`), schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one of")
}

func TestValidator_ArrayConstraints(t *testing.T) {
	validator := NewValidator()
	schema := NewArraySchema(NewStringSchema()).WithMinItems(1).WithMaxItems(3)

	assert.NoError(t, validator.Validate([]byte(`["a","b"]`), schema))
	assert.Error(t, validator.Validate([]byte(`[]`), schema))
	assert.Error(t, validator.Validate([]byte(`["a","b","c","d"]`), schema))

	unique := NewArraySchema(NewStringSchema()).WithUniqueItems(true)
	err := validator.Validate([]byte(`["a","b","a"]`), unique)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidator_NestedObjectPaths(t *testing.T) {
	validator := NewValidator()
	schema := NewObjectSchema().
		AddProperty("plan", NewObjectSchema().
			AddProperty("costs", NewArraySchema(
				NewObjectSchema().
					AddProperty("amount", NewNumberSchema().WithMinimum(0)).
					AddRequired("amount"),
			)).
			AddRequired("costs")).
		AddRequired("plan")

	err := validator.Validate([]byte(`{"plan":{"costs":[{"amount":10},{"amount":-5}]}}`), schema)
	require.Error(t, err)

	ve, ok := err.(*ValidationErrors)
	require.True(t, ok)
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, "plan.costs[1].amount", ve.Errors[0].Path, "错误路径应指向嵌套位置")
}

func TestValidator_AdditionalProperties(t *testing.T) {
	validator := NewValidator()
	schema := NewObjectSchema().
		AddProperty("known", NewStringSchema()).
		WithAdditionalProperties(false)

	assert.NoError(t, validator.Validate([]byte(`{"known":"x"}`), schema))

	err := validator.Validate([]byte(`{"known":"x","extra":1}`), schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "additional property")
}

func TestValidator_InvalidJSON(t *testing.T) {
	validator := NewValidator()
	err := validator.Validate([]byte(`{not json`), NewObjectSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestValidator_NilSchema(t *testing.T) {
	validator := NewValidator()
	assert.NoError(t, validator.Validate([]byte(`anything`), nil))
}

func TestValidator_CustomFormat(t *testing.T) {
	validator := NewValidator()
	validator.RegisterFormat("plan-id", func(s string) bool {
		return len(s) == 5
	})

	schema := NewStringSchema().WithFormat("plan-id")
	assert.NoError(t, validator.Validate([]byte(`"ABC12"`), schema))
	assert.Error(t, validator.Validate([]byte(`"AB"`), schema))
}
