package api

import (
	"time"

	"github.com/BaSui01/planflow/plan"
)

// =============================================================================
// 计划上传与查询类型
// =============================================================================

// UploadPlanResponse 上传并结构化一份 SBC 文档后的响应。
// @Description 计划上传响应结构
type UploadPlanResponse struct {
	// 计划 ID，后续查询与对话都以它为键
	PlanID string `json:"plan_id" example:"7f9c24e5-1a2b-4c3d-8e9f-0a1b2c3d4e5f"`
	// 原始文件名
	Filename string `json:"filename" example:"sbc.pdf"`
	// 文档页数
	PageCount int `json:"page_count" example:"8"`
	// 抽取文本是否命中缓存
	Cached bool `json:"cached"`
	// 结构化摘要
	Summary *plan.Summary `json:"summary"`
}

// PlanResponse 查询已结构化计划的响应。
// @Description 计划查询响应结构
type PlanResponse struct {
	PlanID    string        `json:"plan_id"`
	Filename  string        `json:"filename"`
	PageCount int           `json:"page_count"`
	CreatedAt time.Time     `json:"created_at"`
	Summary   *plan.Summary `json:"summary"`
}

// CategoriesResponse 覆盖类别浏览响应。
// @Description 覆盖类别响应结构
type CategoriesResponse struct {
	PlanID     string                  `json:"plan_id"`
	Cached     bool                    `json:"cached"`
	Categories []plan.CoverageCategory `json:"categories"`
}

// =============================================================================
// 保险对话类型
// =============================================================================

// AskRequest 针对某个计划的提问请求。
// @Description 保险对话请求结构
type AskRequest struct {
	// 用户问题
	Question string `json:"question" example:"专科门诊自付多少？" binding:"required"`
}

// AskResponse 针对某个计划的回答。
// @Description 保险对话响应结构
type AskResponse struct {
	PlanID   string `json:"plan_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ChatStreamChunk WebSocket 流式回答中的单个增量。
// @Description 流式对话增量结构
type ChatStreamChunk struct {
	// 增量文本
	Delta string `json:"delta,omitempty"`
	// 结束原因，仅最终 chunk 携带
	FinishReason string `json:"finish_reason,omitempty"`
	// 错误消息，出错时携带
	Error string `json:"error,omitempty"`
	// 是否为最终 chunk
	Done bool `json:"done,omitempty"`
}

// ChatHistoryResponse 某计划的聊天历史。
// @Description 聊天历史响应结构
type ChatHistoryResponse struct {
	PlanID   string        `json:"plan_id"`
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage 聊天历史中的单条消息。
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
