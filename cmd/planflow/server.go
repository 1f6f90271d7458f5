package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/BaSui01/planflow/api/handlers"
	"github.com/BaSui01/planflow/config"
	"github.com/BaSui01/planflow/extract"
	"github.com/BaSui01/planflow/internal/cache"
	"github.com/BaSui01/planflow/internal/database"
	"github.com/BaSui01/planflow/internal/metrics"
	"github.com/BaSui01/planflow/internal/server"
	"github.com/BaSui01/planflow/llm"
	"github.com/BaSui01/planflow/llm/invoke"
	"github.com/BaSui01/planflow/plan"
	"github.com/BaSui01/planflow/providers"
	claude "github.com/BaSui01/planflow/providers/anthropic"
	"github.com/BaSui01/planflow/providers/gemini"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 PlanFlow 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 存储与缓存
	poolManager *database.PoolManager
	cacheMgr    *cache.Manager
	store       *plan.Store

	// LLM Provider
	provider llm.Provider

	// Handlers
	healthHandler *handlers.HealthHandler
	planHandler   *handlers.PlanHandler
	chatHandler   *handlers.ChatHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 热更新管理器
	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("planflow", s.logger)

	// 2. 初始化存储（数据库 + 缓存）
	if err := s.initStorage(); err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}

	// 3. 初始化 LLM Provider
	if err := s.initProvider(); err != nil {
		return fmt.Errorf("failed to init provider: %w", err)
	}

	// 4. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 5. 初始化热更新管理器
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	// 6. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 7. 启动 Metrics 服务器（MetricsPort 为 0 时 /metrics 挂在主端口）
	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStorage 打开数据库连接池并按需连接 Redis
func (s *Server) initStorage() error {
	db, err := database.Open(database.Config{
		Driver: s.cfg.Database.Driver,
		DSN:    s.cfg.Database.DSN(),
	}, s.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	s.poolManager, err = database.NewPoolManager(db, database.PoolConfig{
		MaxIdleConns:    s.cfg.Database.MaxIdleConns,
		MaxOpenConns:    s.cfg.Database.MaxOpenConns,
		ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: s.cfg.Database.ConnMaxIdleTime,
		MetricsInterval: s.cfg.Database.MetricsInterval,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("configure connection pool: %w", err)
	}
	s.poolManager.StartMetricsLoop(s.metricsCollector, s.cfg.Database.Name)

	s.store, err = plan.NewStore(db)
	if err != nil {
		return fmt.Errorf("init plan store: %w", err)
	}

	if s.cfg.Cache.Enabled {
		s.cacheMgr, err = cache.NewManager(cache.Config{
			Addr:          s.cfg.Cache.Addr,
			Password:      s.cfg.Cache.Password,
			DB:            s.cfg.Cache.DB,
			PoolSize:      s.cfg.Cache.PoolSize,
			MinIdleConns:  s.cfg.Cache.MinIdleConns,
			DefaultTTL:    s.cfg.Cache.DefaultTTL,
			ExtractionTTL: s.cfg.Cache.ExtractionTTL,
		}, s.logger)
		if err != nil {
			// 缓存不可用时降级为直连上游，不阻塞启动
			s.logger.Warn("Cache not available, running without cache", zap.Error(err))
			s.cacheMgr = nil
		}
	}

	s.logger.Info("Storage initialized",
		zap.String("driver", s.cfg.Database.Driver),
		zap.Bool("cache_enabled", s.cacheMgr != nil),
	)
	return nil
}

// initProvider 按配置选择 LLM Provider
func (s *Server) initProvider() error {
	switch s.cfg.LLM.Provider {
	case "claude":
		s.provider = claude.NewClaudeProvider(providers.ClaudeConfig{
			APIKey:  s.cfg.LLM.APIKey,
			BaseURL: s.cfg.LLM.BaseURL,
			Model:   s.cfg.LLM.Model,
			Timeout: s.cfg.LLM.Timeout,
		}, s.logger)
	case "gemini":
		s.provider = gemini.NewGeminiProvider(providers.GeminiConfig{
			APIKey:  s.cfg.LLM.APIKey,
			BaseURL: s.cfg.LLM.BaseURL,
			Model:   s.cfg.LLM.Model,
			Timeout: s.cfg.LLM.Timeout,
		}, s.logger)
	default:
		return fmt.Errorf("unsupported LLM provider: %s (supported: claude, gemini)", s.cfg.LLM.Provider)
	}

	s.logger.Info("LLM provider initialized", zap.String("provider", s.cfg.LLM.Provider))
	return nil
}

// invokeOptions 把 LLM 配置转换为重试调用选项
func (s *Server) invokeOptions() *invoke.Options {
	return &invoke.Options{
		Model:        s.cfg.LLM.Model,
		BackupModel:  s.cfg.LLM.BackupModel,
		Temperatures: s.cfg.LLM.Temperatures,
		MaxAttempts:  s.cfg.LLM.MaxAttempts,
		BaseDelay:    s.cfg.LLM.BaseDelay,
		Logger:       s.logger,
	}
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.poolManager.Ping))
	s.healthHandler.RegisterCheck(handlers.NewProviderHealthCheck(s.provider))
	if s.cacheMgr != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("cache", s.cacheMgr.Ping))
	}

	// 文档抽取客户端
	extractor := extract.NewClient(extract.Config{
		BaseURL:          s.cfg.Extract.BaseURL,
		APIKey:           s.cfg.Extract.APIKey,
		Timeout:          s.cfg.Extract.Timeout,
		MaxDocumentBytes: s.cfg.Extract.MaxDocumentBytes,
		RequestsPerSec:   s.cfg.Extract.RateLimitRPS,
		Burst:            s.cfg.Extract.RateLimitBurst,
	}, s.logger)

	// 结构化生成与类目探查
	structurer, err := plan.NewStructurer(extractor, s.provider, s.invokeOptions(), s.logger)
	if err != nil {
		return fmt.Errorf("init structurer: %w", err)
	}
	explorer, err := plan.NewExplorer(s.provider, s.invokeOptions(), s.logger)
	if err != nil {
		return fmt.Errorf("init explorer: %w", err)
	}

	s.planHandler = handlers.NewPlanHandler(handlers.PlanHandlerConfig{
		Extractor:  extractor,
		Structurer: structurer,
		Explorer:   explorer,
		Store:      s.store,
		Cache:      s.cacheMgr,
		Metrics:    s.metricsCollector,
		MaxUpload:  s.cfg.Extract.MaxDocumentBytes,
	}, s.logger)

	// 保险对话服务
	chatService, err := plan.NewChatService(s.provider, plan.ChatConfig{
		Model:           s.cfg.Chat.Model,
		Temperature:     s.cfg.Chat.Temperature,
		MaxTokens:       s.cfg.Chat.MaxTokens,
		ContextBudget:   s.cfg.Chat.ContextBudget,
		HistoryMessages: s.cfg.Chat.HistoryMessages,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init chat service: %w", err)
	}
	s.chatHandler = handlers.NewChatHandler(chatService, s.store, s.cfg.Chat.HistoryMessages, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	// 注册配置变更回调
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	// 注册配置重载回调
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	// 启动热更新管理器
	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	// 创建配置 API 处理器
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("POST /v1/plans", s.planHandler.HandleUpload)
	mux.HandleFunc("GET /v1/plans/{id}", s.planHandler.HandleGetPlan)
	mux.HandleFunc("GET /v1/plans/{id}/categories", s.planHandler.HandleCategories)
	mux.HandleFunc("POST /v1/plans/{id}/chat", s.chatHandler.HandleAsk)
	mux.HandleFunc("GET /v1/plans/{id}/chat/history", s.chatHandler.HandleHistory)
	mux.HandleFunc("GET /v1/plans/{id}/chat/ws", s.chatHandler.HandleChatSocket)
	s.logger.Info("Plan API routes registered")

	// MetricsPort 为 0 时 /metrics 与业务共用端口
	if s.cfg.Server.MetricsPort == 0 {
		mux.Handle("/metrics", promhttp.Handler())
	}

	// ========================================
	// 配置管理 API（需要独立认证保护）
	// 安全修复：配置 API 是敏感的管理端点，必须经过认证中间件保护，
	// 不依赖全局中间件链的顺序，而是显式包装认证检查。
	// ========================================
	if s.configAPIHandler != nil {
		configAuth := config.NewConfigAPIMiddleware(s.configAPIHandler, s.getFirstAPIKey())
		mux.HandleFunc("/api/v1/config", configAuth.RequireAuth(s.configAPIHandler.HandleConfig))
		mux.HandleFunc("/api/v1/config/reload", configAuth.RequireAuth(s.configAPIHandler.HandleReload))
		mux.HandleFunc("/api/v1/config/fields", configAuth.RequireAuth(s.configAPIHandler.HandleFields))
		mux.HandleFunc("/api/v1/config/changes", configAuth.RequireAuth(s.configAPIHandler.HandleChanges))
		s.logger.Info("Configuration API registered with authentication")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	middlewares = append(middlewares,
		CORS(s.cfg.API.AllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)
	if len(s.cfg.API.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.API.APIKeys, skipAuthPaths, s.logger))
	}
	if s.cfg.API.JWTSecret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.API.JWTSecret, skipAuthPaths, s.logger))
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// getFirstAPIKey 返回配置中的第一个 API Key，用于配置 API 的独立认证。
// 如果未配置任何 API Key，返回空字符串（ConfigAPIMiddleware 会跳过认证检查）。
func (s *Server) getFirstAPIKey() string {
	if len(s.cfg.API.APIKeys) > 0 {
		return s.cfg.API.APIKeys[0]
	}
	return ""
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 停止热更新管理器
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭缓存与数据库连接
	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}
	if s.poolManager != nil {
		if err := s.poolManager.Close(); err != nil {
			s.logger.Error("Database shutdown error", zap.Error(err))
		}
	}

	// 5. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
