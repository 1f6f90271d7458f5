// Copyright 2026 PlanFlow Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 structured 提供结构化输出的 Schema 建模、生成、解析与校验能力。

该包用于约束 LLM 输出格式，降低自由文本导致的解析失败风险。
生成时将 Schema 指令注入系统提示，响应经 JSON 提取与字段级校验后
才作为类型安全的结果返回。

# 核心接口

  - SchemaValidator — 对 JSON 数据按 JSONSchema 进行字段级校验

# 主要类型

  - JSONSchema — JSON Schema 定义，支持 object/array/enum 及常用约束
  - Output[T] — 泛型结构化输出处理器，自动生成 Schema 并驱动 LLM 生成
  - SchemaGenerator — 通过反射从 Go 类型生成 JSONSchema，支持 jsonschema 标签
  - DefaultValidator — 内置格式校验（email/uri/uuid/date/date-time）
  - ParseResult[T] / ParseError / ValidationErrors — 解析与校验结果

# 典型用法

	out, _ := structured.NewOutput[MyStruct](provider)
	result, _ := out.Generate(ctx, "提取保险计划信息")

	// 配合调用器按指定模型与温度生成
	value, err := out.GenerateAt(ctx, messages, "claude-sonnet", 0.7)

# 主要能力

  - Schema 建模：定义对象、数组、枚举及约束规则
  - 结构化生成：引导模型按指定结构输出，支持模型与温度覆盖
  - 结果校验：对输出进行字段级校验与错误报告
  - 反射生成：从 Go struct 标签自动推导 JSONSchema
*/
package structured
