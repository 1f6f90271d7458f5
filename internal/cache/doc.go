// 版权所有 2026 PlanFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，缓存文档抽取结果与
计划类别报告，避免对外部抽取服务和 LLM 的重复调用。

# 概述

本包封装 go-redis 客户端，为上层业务提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化与优雅关闭。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete 基础操作与 GetJSON/SetJSON 便捷序列化方法，
    以及按抽取专用 TTL 写入的 SetExtraction。
  - Config：缓存配置，包含地址、密码、连接池大小与两档 TTL。

# 键空间

  - planflow:extract:<sha256>     按文档内容哈希缓存抽取文本
  - planflow:summary:<plan_id>    结构化摘要
  - planflow:categories:<plan_id> 类别覆盖报告

# 错误语义

提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
