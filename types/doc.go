// Copyright (c) PlanFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 PlanFlow 服务的全局共享类型定义。

# 概述

types 是服务最底层的公共包，不依赖任何内部包，为 llm、structured、
extract、plan、api 等上层模块提供统一的类型契约。所有跨包共享的
结构体、枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - Message           — 对话消息（Role、Content、Metadata）
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记

# 主要能力

  - 错误工具链：IsRetryable / GetErrorCode
  - 错误构造：NewError + WithCause / WithHTTPStatus / WithProvider 链式构建
*/
package types
