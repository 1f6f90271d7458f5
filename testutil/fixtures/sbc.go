// 示例 SBC 数据 fixture。
//
// 纯字符串常量，不引用领域包，避免与被测包形成导入环。
package fixtures

// SBCDocumentText 一份缩略版 SBC 文档的抽取文本
const SBCDocumentText = `Summary of Benefits and Coverage: What this Plan Covers & What You Pay For Covered Services
Coverage Period: 01/01/2026 - 12/31/2026
Sample Health Co: Silver Choice PPO 1500

What is the overall deductible? $1,500 individual / $3,000 family.
What is the out-of-pocket limit for this plan? $7,000 individual / $14,000 family.

If you visit a health care provider's office or clinic:
  Primary care visit to treat an injury or illness: $25 copay (in-network); 40% coinsurance (out-of-network)
  Specialist visit: $50 copay (in-network); 40% coinsurance (out-of-network)
  Preventive care/screening/immunization: No charge (in-network)

If you need drugs to treat your illness or condition:
  Generic drugs: $10 copay (retail), $25 copay (mail order)
  Preferred brand drugs: $40 copay

If you have an emergency:
  Emergency room care: $350 copay then 20% coinsurance
  Urgent care: $75 copay

If you have a hospital stay:
  Facility fee: 20% coinsurance
  Physician/surgeon fees: 20% coinsurance

Excluded Services: cosmetic surgery, dental care (adult), long-term care.`

// SummaryJSON 与 SBCDocumentText 对应的合法结构化摘要
const SummaryJSON = `{
  "plan_name": "Silver Choice PPO 1500",
  "issuer": "Sample Health Co",
  "plan_type": "PPO",
  "coverage_period": "01/01/2026 - 12/31/2026",
  "deductible": {"individual": 1500, "family": 3000},
  "out_of_pocket_max": {"individual": 7000, "family": 14000},
  "services": [
    {"name": "Primary care visit", "in_network_cost": "$25 copay", "out_of_network_cost": "40% coinsurance"},
    {"name": "Specialist visit", "in_network_cost": "$50 copay", "out_of_network_cost": "40% coinsurance"},
    {"name": "Emergency room care", "in_network_cost": "$350 copay then 20% coinsurance"},
    {"name": "Urgent care", "in_network_cost": "$75 copay"}
  ],
  "notes": "Cosmetic surgery, adult dental care and long-term care are excluded."
}`

// CoveredCategoryJSON 一个合法的「已覆盖」类别判定
const CoveredCategoryJSON = `{
  "slug": "primary-care",
  "name": "Primary care visits",
  "coverage": "covered",
  "cost_detail": "$25 copay in network",
  "explanation": "The plan lists a $25 copay for primary care visits."
}`

// InvalidSummaryJSON 缺少必填字段的非法摘要，用于校验失败路径
const InvalidSummaryJSON = `{
  "plan_name": "Broken Plan",
  "plan_type": "PPO",
  "deductible": {"individual": -5},
  "out_of_pocket_max": {"individual": 7000},
  "services": []
}`
