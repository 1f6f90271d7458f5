// Copyright (c) PlanFlow Authors.
// Licensed under the MIT License.

/*
包 llm 定义统一的大语言模型接入层：Provider 抽象、请求与响应模型，
以及对齐 HTTP 状态和可重试语义的错误码。

# 概述

本包屏蔽不同模型服务商在接口、鉴权、错误语义和流式协议上的差异，
对上层业务暴露一致的请求与响应模型。PlanFlow 的结构化生成、类目
探查与保险对话都通过这层与具体服务商解耦。

# Provider 抽象

核心接口是 [Provider]，包含补全、流式输出、健康检查与名称声明。
基于该接口，系统可以在保持上层调用不变的前提下切换底层模型服务
（见 providers/anthropic 与 providers/gemini）。

# 核心类型

  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [Message] / [Role]：对话消息与角色
  - [StreamChunk]：流式输出分片
  - [HealthStatus]：健康检查状态
  - [Error] / [ErrorCode]：统一错误模型

# 错误语义

[Error] 携带 [ErrorCode]、HTTP 状态与 Retryable 标记。重试调用器
（子包 invoke）依据 Retryable 决定是否继续温度阶梯或降级备用模型。

# 相关子包

- llm/invoke：带温度阶梯与备用模型降级的结构化生成调用器。
*/
package llm
