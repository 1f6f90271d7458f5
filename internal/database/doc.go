// 版权所有 2026 PlanFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理。

# 概述

本包通过 Open 按配置打开 postgres、mysql 或 sqlite 连接，
通过 PoolManager 封装 GORM 与 database/sql 的连接池配置，
统一管理连接生命周期、空闲回收与最大连接数限制，并按固定
间隔向 Prometheus 上报连接数指标。

# 核心类型

  - Config：数据库连接配置（驱动与 DSN）。
  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与指标上报间隔。
  - PoolStats：友好格式的连接池统计信息。

# 主要能力

  - 驱动选择：postgres/mysql 用于生产部署，sqlite 用于本地与测试。
  - 连接池调优：通过 MaxIdleConns/MaxOpenConns/ConnMaxLifetime 精细控制。
  - 指标上报：StartMetricsLoop 定时采集连接数并写入 metrics.Collector，
    连接池关闭后循环自动退出。
*/
package database
