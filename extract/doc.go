// Copyright (c) PlanFlow Authors.

// Package extract 封装外部文档抽取服务的 HTTP 客户端：
// 上传 SBC PDF 字节，取回纯文本与逐页元数据，供 plan.Structurer 结构化。
package extract
