// Copyright (c) PlanFlow Authors.

// Package plan 是保险计划领域层：SBC 文档结构化（Structurer）、
// 分类覆盖浏览（Explorer）、计划问答（ChatService）与持久化（Store）。
package plan
