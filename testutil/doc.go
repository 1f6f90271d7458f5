// Copyright (c) PlanFlow Authors.

// Package testutil 提供测试基础设施：上下文/数据库辅助、
// mocks 子包的脚本化 Provider 与 fixtures 子包的示例 SBC 数据。
package testutil
