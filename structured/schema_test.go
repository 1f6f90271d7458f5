package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Builders(t *testing.T) {
	schema := NewObjectSchema().
		WithTitle("CoverageCategory").
		WithDescription("一个覆盖类别").
		AddProperty("name", NewStringSchema().WithMinLength(1).WithMaxLength(100)).
		AddProperty("score", NewNumberSchema().WithMinimum(0).WithMaximum(1)).
		AddProperty("status", NewEnumSchema("covered", "not_covered")).
		AddRequired("name", "status").
		WithAdditionalProperties(false)

	assert.Equal(t, TypeObject, schema.Type)
	assert.Equal(t, "CoverageCategory", schema.Title)
	assert.True(t, schema.IsRequired("name"))
	assert.True(t, schema.IsRequired("status"))
	assert.False(t, schema.IsRequired("score"))
	assert.True(t, schema.HasProperty("score"))
	assert.Nil(t, schema.GetProperty("missing"))
}

func TestSchema_JSONRoundTrip(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("items", NewArraySchema(NewStringSchema()).WithMinItems(1)).
		AddRequired("items").
		WithAdditionalProperties(false)

	data, err := schema.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, TypeObject, parsed.Type)
	assert.Equal(t, []string{"items"}, parsed.Required)
	require.NotNil(t, parsed.AdditionalProperties)
	assert.False(t, parsed.AdditionalProperties.Allowed)

	items := parsed.GetProperty("items")
	require.NotNil(t, items)
	require.NotNil(t, items.MinItems)
	assert.Equal(t, 1, *items.MinItems)
}

func TestSchema_AdditionalPropertiesForms(t *testing.T) {
	t.Run("boolean form", func(t *testing.T) {
		var ap AdditionalProperties
		require.NoError(t, json.Unmarshal([]byte(`false`), &ap))
		assert.False(t, ap.Allowed)
		assert.Nil(t, ap.Schema)
	})

	t.Run("schema form", func(t *testing.T) {
		var ap AdditionalProperties
		require.NoError(t, json.Unmarshal([]byte(`{"type":"string"}`), &ap))
		assert.True(t, ap.Allowed)
		require.NotNil(t, ap.Schema)
		assert.Equal(t, TypeString, ap.Schema.Type)
	})
}

func TestSchema_Clone(t *testing.T) {
	original := NewObjectSchema().
		AddProperty("name", NewStringSchema().WithMaxLength(50)).
		AddProperty("tags", NewArraySchema(NewStringSchema())).
		AddRequired("name")

	clone := original.Clone()

	// 修改克隆不影响原件
	clone.AddRequired("tags")
	clone.GetProperty("name").MaxLength = nil

	assert.Equal(t, []string{"name"}, original.Required)
	require.NotNil(t, original.GetProperty("name").MaxLength)
	assert.Equal(t, 50, *original.GetProperty("name").MaxLength)

	var nilSchema *JSONSchema
	assert.Nil(t, nilSchema.Clone())
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte(`{broken`))
	assert.Error(t, err)
}
