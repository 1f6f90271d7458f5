package plan

import (
	"time"
)

// Summary 是从 SBC 文档结构化出的保险计划摘要。
// jsonschema 标签驱动生成约束 LLM 输出的 JSON Schema。
type Summary struct {
	PlanName       string        `json:"plan_name" jsonschema:"required,minLength=1,description=Marketing name of the plan as printed on the SBC"`
	Issuer         string        `json:"issuer" jsonschema:"required,minLength=1,description=Insurance company issuing the plan"`
	PlanType       string        `json:"plan_type" jsonschema:"required,enum=HMO,enum=PPO,enum=EPO,enum=POS,enum=HDHP,enum=OTHER,description=Network type of the plan"`
	CoveragePeriod string        `json:"coverage_period,omitempty" jsonschema:"description=Coverage period as printed, e.g. 01/01/2026 - 12/31/2026"`
	Deductible     CostTier      `json:"deductible" jsonschema:"required,description=Overall annual deductible"`
	OutOfPocketMax CostTier      `json:"out_of_pocket_max" jsonschema:"required,description=Annual out-of-pocket limit"`
	Services       []ServiceCost `json:"services" jsonschema:"required,minItems=1,description=Common medical events and what the member pays"`
	Notes          string        `json:"notes,omitempty" jsonschema:"description=Important caveats that do not fit elsewhere"`
}

// CostTier 个人/家庭两档金额，单位美元
type CostTier struct {
	Individual float64 `json:"individual" jsonschema:"required,minimum=0,description=Individual amount in USD"`
	Family     float64 `json:"family" jsonschema:"minimum=0,description=Family amount in USD, 0 when not applicable"`
}

// ServiceCost 单个医疗服务项目的费用分担
type ServiceCost struct {
	Name             string `json:"name" jsonschema:"required,minLength=1,description=Medical event or service name"`
	InNetworkCost    string `json:"in_network_cost" jsonschema:"required,description=What the member pays in network, as printed (e.g. $25 copay / 20% coinsurance)"`
	OutOfNetworkCost string `json:"out_of_network_cost,omitempty" jsonschema:"description=What the member pays out of network"`
	Limitations      string `json:"limitations,omitempty" jsonschema:"description=Limitations, exceptions and other important information"`
}

// CoverageStatus 覆盖判定结果
const (
	CoverageCovered           = "covered"
	CoverageNotCovered        = "not_covered"
	CoverageNeedsConfirmation = "needs_confirmation"
)

// CoverageCategory 分类浏览器中的一个服务类别
type CoverageCategory struct {
	Slug        string `json:"slug" jsonschema:"required,pattern=^[a-z0-9-]+$,description=Stable identifier for the category"`
	Name        string `json:"name" jsonschema:"required,minLength=1,description=Display name of the category"`
	Coverage    string `json:"coverage" jsonschema:"required,enum=covered,enum=not_covered,enum=needs_confirmation,description=Whether the plan covers this category"`
	CostDetail  string `json:"cost_detail,omitempty" jsonschema:"description=What the member pays for this category under the plan"`
	Explanation string `json:"explanation,omitempty" jsonschema:"description=Short plain-language explanation grounded in the plan document"`
}

// categoryTopics 分类浏览器固定的类别清单
var categoryTopics = []struct {
	Slug string
	Name string
}{
	{"primary-care", "Primary care visits"},
	{"specialist", "Specialist visits"},
	{"emergency", "Emergency room care"},
	{"urgent-care", "Urgent care"},
	{"prescription-drugs", "Prescription drugs"},
	{"mental-health", "Mental health services"},
	{"maternity", "Maternity care"},
	{"preventive", "Preventive care and screenings"},
	{"imaging", "Imaging (CT/PET scans, MRIs)"},
	{"hospital-stay", "Hospital stay"},
}

// DefaultCategories 返回保守的默认类别集合。
// 结构化彻底失败时用它兜底，全部标记为待确认而不是猜测。
func DefaultCategories() []CoverageCategory {
	out := make([]CoverageCategory, 0, len(categoryTopics))
	for _, topic := range categoryTopics {
		out = append(out, fallbackCategory(topic.Slug, topic.Name))
	}
	return out
}

// ================================
// 持久化模型
// ================================

// Record 已结构化计划的持久化记录
type Record struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PlanID      string    `gorm:"size:36;uniqueIndex;not null" json:"plan_id"` // 对外暴露的 UUID
	Filename    string    `gorm:"size:255;not null" json:"filename"`
	Text        string    `gorm:"type:text" json:"-"` // 抽取出的原文，作为聊天上下文
	SummaryJSON string    `gorm:"type:text;not null" json:"-"`
	PageCount   int       `gorm:"default:0" json:"page_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Record) TableName() string { return "plan_records" }

// ChatMessage 聊天历史记录
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PlanID    string    `gorm:"size:36;index:idx_plan_created;not null" json:"plan_id"`
	Role      string    `gorm:"size:16;not null" json:"role"` // user 或 assistant
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_plan_created" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
