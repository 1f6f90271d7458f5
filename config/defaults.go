// =============================================================================
// 📦 PlanFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		API:       DefaultAPIConfig(),
		LLM:       DefaultLLMConfig(),
		Chat:      DefaultChatConfig(),
		Extract:   DefaultExtractConfig(),
		Cache:     DefaultCacheConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultAPIConfig 返回默认接口认证配置
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		APIKeys:        nil,
		JWTSecret:      "",
		AllowedOrigins: []string{"*"},
	}
}

// DefaultLLMConfig 返回默认结构化生成配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:     "claude",
		APIKey:       "",
		BaseURL:      "",
		Timeout:      2 * time.Minute,
		Model:        "claude-sonnet-4-20250514",
		BackupModel:  "claude-3-5-haiku-20241022",
		Temperatures: []float32{0.0, 0.2, 0.5},
		MaxAttempts:  0,
		BaseDelay:    1 * time.Second,
	}
}

// DefaultChatConfig 返回默认对话配置
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Model:           "claude-3-5-haiku-20241022",
		Temperature:     0.3,
		MaxTokens:       1024,
		ContextBudget:   16000,
		HistoryMessages: 20,
	}
}

// DefaultExtractConfig 返回默认抽取服务配置
func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{
		BaseURL:          "http://localhost:9400",
		APIKey:           "",
		Timeout:          90 * time.Second,
		MaxDocumentBytes: 20 << 20,
		RateLimitRPS:     5,
		RateLimitBurst:   10,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:       true,
		Addr:          "localhost:6379",
		Password:      "",
		DB:            0,
		PoolSize:      10,
		MinIdleConns:  2,
		DefaultTTL:    10 * time.Minute,
		ExtractionTTL: 24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "planflow",
		Password:        "",
		Name:            "planflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		MetricsInterval: 30 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "planflow",
		SampleRate:   0.1,
	}
}
