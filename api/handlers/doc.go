// Copyright (c) PlanFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 PlanFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 PlanFlow 所有 HTTP 端点的请求处理逻辑，
包括 SBC 文档上传与结构化、覆盖类别浏览、保险对话以及统一的
响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - PlanHandler      — 计划上传、查询与覆盖类别浏览，带抽取缓存
  - ChatHandler      — 保险对话处理器，支持同步回答与 WebSocket 流式推送
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Database、Redis、Provider）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 抽取缓存：按文档内容哈希复用抽取结果，降低上游压力
  - WebSocket 流式输出：ChatHandler.HandleChatSocket 按增量推送回答
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
