// Copyright (c) PlanFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 PlanFlow 服务端程序入口。

# 概述

cmd/planflow 是 PlanFlow 服务的可执行入口，提供 SBC 文档上传、
计划查询、类目覆盖探查与保险对话的 HTTP API，以及健康检查、版本查询
等子命令。程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus
指标采集以及配置热重载。

# 核心类型

  - Server            — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusWriter      — 包装 http.ResponseWriter 以捕获状态码和响应字节数

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing（可选）、CORS、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key）、JWTAuth（HS256 Bearer）
  - 配置热重载：HotReloadManager 监听文件变更并回调
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus），端口为 0 时与
    业务端口共用
  - 优雅关闭：信号监听 → 停止热更新 → 关闭 HTTP → 关闭 Metrics →
    关闭缓存与数据库 → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
