// Copyright (c) PlanFlow Authors.

// Package config 提供 PlanFlow 服务的配置管理。
//
// 职责覆盖：
//   - 从 YAML/JSON 文件加载配置，叠加 PLANFLOW_ 前缀的环境变量
//   - 配置校验（端口、LLM provider、温度阶梯、上传限制等）
//   - 基于轮询的文件监听与防抖热重载
//   - 带 API Key 鉴权的运行时配置查询/更新接口与变更历史
//
// 入口为 NewLoader / MustLoad，热重载见 HotReloadManager。
package config
