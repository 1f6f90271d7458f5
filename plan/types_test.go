package plan

import (
	"reflect"
	"testing"

	"github.com/BaSui01/planflow/structured"
	"github.com/BaSui01/planflow/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCategories(t *testing.T) {
	categories := DefaultCategories()
	require.NotEmpty(t, categories)

	slugs := make(map[string]bool)
	for _, c := range categories {
		assert.Equal(t, CoverageNeedsConfirmation, c.Coverage, "默认类别应全部标记为待确认")
		assert.NotEmpty(t, c.Name)
		assert.False(t, slugs[c.Slug], "slug 不应重复: %s", c.Slug)
		slugs[c.Slug] = true
	}
}

func TestSummarySchema_AcceptsFixture(t *testing.T) {
	gen := structured.NewSchemaGenerator()
	schema, err := gen.GenerateSchema(reflect.TypeOf(Summary{}))
	require.NoError(t, err)

	assert.True(t, schema.IsRequired("plan_name"))
	assert.True(t, schema.IsRequired("deductible"))
	planType := schema.GetProperty("plan_type")
	require.NotNil(t, planType)
	assert.Contains(t, planType.Enum, "PPO")

	validator := structured.NewValidator()
	assert.NoError(t, validator.Validate([]byte(fixtures.SummaryJSON), schema),
		"示例摘要应通过 Summary 的 schema 校验")
}

func TestSummarySchema_RejectsInvalidFixture(t *testing.T) {
	gen := structured.NewSchemaGenerator()
	schema, err := gen.GenerateSchema(reflect.TypeOf(Summary{}))
	require.NoError(t, err)

	validator := structured.NewValidator()
	err = validator.Validate([]byte(fixtures.InvalidSummaryJSON), schema)
	require.Error(t, err, "缺必填字段且金额为负的摘要应校验失败")

	verrs, ok := err.(*structured.ValidationErrors)
	require.True(t, ok)
	assert.NotEmpty(t, verrs.Errors)
}

func TestCoverageCategorySchema_EnumAndPattern(t *testing.T) {
	gen := structured.NewSchemaGenerator()
	schema, err := gen.GenerateSchema(reflect.TypeOf(CoverageCategory{}))
	require.NoError(t, err)

	coverage := schema.GetProperty("coverage")
	require.NotNil(t, coverage)
	assert.ElementsMatch(t, []any{CoverageCovered, CoverageNotCovered, CoverageNeedsConfirmation}, coverage.Enum)

	validator := structured.NewValidator()
	assert.NoError(t, validator.Validate([]byte(fixtures.CoveredCategoryJSON), schema))

	err = validator.Validate([]byte(`{"slug":"Bad Slug","name":"x","coverage":"maybe"}`), schema)
	require.Error(t, err, "非法 slug 与覆盖状态应被拒绝")
}
