// 配置热重载管理器实现。
//
// 支持局部更新、变更通知、应用前校验与审计记录。
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 类型定义 ---

// ChangeCallback 配置字段变更时调用
type ChangeCallback func(change ConfigChange)

// ReloadCallback 整份配置重载后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// RollbackCallback 回滚事件回调
type RollbackCallback func(event RollbackEvent)

// ValidateFunc 应用前校验钩子，返回 error 表示拒绝新配置
type ValidateFunc func(newConfig *Config) error

// ConfigChange 一次字段级配置变更的审计记录
type ConfigChange struct {
	Timestamp time.Time `json:"timestamp"`

	// 变更来源：file / api / env / rollback
	Source string `json:"source"`

	// 字段路径，如 "Server.HTTPPort"
	Path string `json:"path"`

	// 敏感字段的新旧值会被脱敏
	OldValue any `json:"old_value,omitempty"`
	NewValue any `json:"new_value,omitempty"`

	// 是否需要重启才能生效
	RequiresRestart bool `json:"requires_restart"`

	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// ConfigSnapshot 历史快照，供版本回滚使用
type ConfigSnapshot struct {
	Config    *Config   `json:"config"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   int       `json:"version"`
	Checksum  string    `json:"checksum"`
}

// RollbackEvent 回滚事件
type RollbackEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Reason         string    `json:"reason"`
	FailedConfig   *Config   `json:"failed_config"`
	RestoredConfig *Config   `json:"restored_config"`
	Version        int       `json:"version"`
	Error          error     `json:"error,omitempty"`
}

// HotReloadableField 描述单个可通过 API 修改的配置字段
type HotReloadableField struct {
	Path            string
	Description     string
	RequiresRestart bool
	Sensitive       bool
	// Validator 可选的字段级校验
	Validator func(value any) error
}

// --- 字段注册表 ---

// liveField 不需要重启即可生效的字段
func liveField(path, desc string) HotReloadableField {
	return HotReloadableField{Path: path, Description: desc}
}

// restartField 修改后需要重启进程的字段
func restartField(path, desc string, sensitive bool) HotReloadableField {
	return HotReloadableField{Path: path, Description: desc, RequiresRestart: true, Sensitive: sensitive}
}

// hotReloadableFields 可经 API 修改的字段白名单，未列出的路径一律视为需要重启
var hotReloadableFields = map[string]HotReloadableField{
	// 日志
	"Log.Level":  liveField("Log.Level", "Log level (debug, info, warn, error)"),
	"Log.Format": liveField("Log.Format", "Log format (json, console)"),

	// 覆盖问答
	"Chat.Temperature":     liveField("Chat.Temperature", "Chat sampling temperature"),
	"Chat.MaxTokens":       liveField("Chat.MaxTokens", "Maximum tokens per chat answer"),
	"Chat.ContextBudget":   liveField("Chat.ContextBudget", "Prompt token budget for chat context"),
	"Chat.HistoryMessages": liveField("Chat.HistoryMessages", "Maximum history messages carried into chat context"),

	// LLM 结构化
	"LLM.MaxAttempts": liveField("LLM.MaxAttempts", "Maximum structuring attempts on the primary model"),
	"LLM.BaseDelay":   liveField("LLM.BaseDelay", "Base delay for linear retry backoff"),
	"LLM.Timeout":     liveField("LLM.Timeout", "LLM request timeout"),

	// 文档抽取
	"Extract.RateLimitRPS":     liveField("Extract.RateLimitRPS", "Client-side rate limit for the extraction service"),
	"Extract.MaxDocumentBytes": liveField("Extract.MaxDocumentBytes", "Maximum accepted document size in bytes"),

	// 缓存 TTL
	"Cache.DefaultTTL":    liveField("Cache.DefaultTTL", "Default cache entry TTL"),
	"Cache.ExtractionTTL": liveField("Cache.ExtractionTTL", "Cached extraction result TTL"),

	// 遥测
	"Telemetry.Enabled":    liveField("Telemetry.Enabled", "Enable telemetry"),
	"Telemetry.SampleRate": liveField("Telemetry.SampleRate", "Telemetry sample rate"),

	// 监听端口与超时改动无法在运行中生效
	"Server.HTTPPort":     restartField("Server.HTTPPort", "HTTP server port", false),
	"Server.MetricsPort":  restartField("Server.MetricsPort", "Metrics server port", false),
	"Server.ReadTimeout":  restartField("Server.ReadTimeout", "HTTP read timeout", false),
	"Server.WriteTimeout": restartField("Server.WriteTimeout", "HTTP write timeout", false),

	// 连接类配置
	"Database.Host":     restartField("Database.Host", "Database host", false),
	"Database.Port":     restartField("Database.Port", "Database port", false),
	"Database.Password": restartField("Database.Password", "Database password", true),
	"Cache.Addr":        restartField("Cache.Addr", "Redis address", false),
	"Cache.Password":    restartField("Cache.Password", "Redis password", true),

	// 上游凭据
	"LLM.APIKey":     restartField("LLM.APIKey", "LLM API key", true),
	"Extract.APIKey": restartField("Extract.APIKey", "Extraction service API key", true),
}

// GetHotReloadableFields 返回字段白名单的副本
func GetHotReloadableFields() map[string]HotReloadableField {
	out := make(map[string]HotReloadableField, len(hotReloadableFields))
	for k, v := range hotReloadableFields {
		out[k] = v
	}
	return out
}

// IsHotReloadable 判断字段是否可在不重启的情况下修改
func IsHotReloadable(path string) bool {
	f, ok := hotReloadableFields[path]
	return ok && !f.RequiresRestart
}

// --- 管理器 ---

// HotReloadManager 持有当前配置，驱动文件监听、API 更新、历史与回滚。
type HotReloadManager struct {
	mu sync.RWMutex

	config     *Config
	configPath string

	// 回滚支持：上一份成功应用的配置 + 环形历史
	previousConfig *Config
	configHistory  []ConfigSnapshot
	maxHistorySize int
	validateFunc   ValidateFunc

	watcher *FileWatcher

	changeCallbacks   []ChangeCallback
	reloadCallbacks   []ReloadCallback
	rollbackCallbacks []RollbackCallback

	changeLog []ConfigChange

	logger *zap.Logger

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// HotReloadOption 配置 HotReloadManager
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 设置日志器
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) { m.logger = logger }
}

// WithConfigPath 设置监听的配置文件路径
func WithConfigPath(path string) HotReloadOption {
	return func(m *HotReloadManager) { m.configPath = path }
}

// WithMaxHistorySize 设置历史快照上限
func WithMaxHistorySize(size int) HotReloadOption {
	return func(m *HotReloadManager) {
		if size > 0 {
			m.maxHistorySize = size
		}
	}
}

// WithValidateFunc 设置应用前校验钩子
func WithValidateFunc(fn ValidateFunc) HotReloadOption {
	return func(m *HotReloadManager) { m.validateFunc = fn }
}

// NewHotReloadManager 创建热重载管理器，初始配置作为第一条历史快照
func NewHotReloadManager(config *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config:         config,
		maxHistorySize: 10,
		changeLog:      make([]ConfigChange, 0, 100),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.recordSnapshot(config, "init")
	return m
}

// Start 启动管理器；设置了配置路径时同时启动文件监听
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hot reload manager already running")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	if m.configPath != "" {
		watcher, err := NewFileWatcher(
			[]string{m.configPath},
			WithWatcherLogger(m.logger),
			WithDebounceDelay(500*time.Millisecond),
		)
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		watcher.OnChange(m.handleFileChange)
		if err := watcher.Start(m.ctx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
		m.watcher = watcher
	}

	m.running = true
	m.logger.Info("Hot reload manager started", zap.String("config_path", m.configPath))
	return nil
}

// Stop 停止管理器与文件监听，重复调用为 no-op
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Error("Failed to stop file watcher", zap.Error(err))
		}
	}
	m.running = false
	m.logger.Info("Hot reload manager stopped")
	return nil
}

func (m *HotReloadManager) handleFileChange(event FileEvent) {
	m.logger.Info("Configuration file changed",
		zap.String("path", event.Path),
		zap.String("op", event.Op.String()))

	if event.Op == FileOpWrite || event.Op == FileOpCreate {
		if err := m.ReloadFromFile(); err != nil {
			m.logger.Error("Failed to reload configuration", zap.Error(err))
		}
	}
}

// ReloadFromFile 重新加载配置文件。加载或校验失败时保留当前配置。
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	newConfig, err := NewLoader().WithConfigPath(m.configPath).Load()
	if err != nil {
		m.logger.Error("failed to load config from file, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		m.logger.Error("invalid config from file, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		return fmt.Errorf("invalid config: %w", err)
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig 原子地应用新配置：校验、变更检测、快照与审计日志
// 全部在同一把锁内完成；回调在锁外触发，失败则自动回滚。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	m.mu.Lock()

	oldConfig := m.config

	if m.validateFunc != nil {
		if err := m.validateFunc(newConfig); err != nil {
			m.logger.Warn("config validation hook failed",
				zap.Error(err), zap.String("source", source))
			m.changeLog = append(m.changeLog, ConfigChange{
				Timestamp: time.Now(),
				Source:    source,
				Path:      "(validation_hook)",
				Error:     fmt.Sprintf("validation hook failed: %v", err),
			})
			m.mu.Unlock()
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	changes := diffConfigs(oldConfig, newConfig)
	var requiresRestart bool
	applied := make([]ConfigChange, 0, len(changes))
	for _, change := range changes {
		change.Source = source
		change.Timestamp = time.Now()
		change.Applied = true
		if field, known := hotReloadableFields[change.Path]; known {
			change.RequiresRestart = field.RequiresRestart
			if field.Sensitive {
				change.OldValue = "[REDACTED]"
				change.NewValue = "[REDACTED]"
			}
		} else {
			change.RequiresRestart = true
		}
		requiresRestart = requiresRestart || change.RequiresRestart
		applied = append(applied, change)
		m.logFieldChange(change)
	}

	m.previousConfig = cloneConfig(oldConfig)
	m.config = newConfig
	m.recordSnapshot(newConfig, source)
	m.changeLog = append(m.changeLog, applied...)
	if len(m.changeLog) > 1000 {
		m.changeLog = m.changeLog[len(m.changeLog)-1000:]
	}

	// 回调列表在锁内复制，锁外调用，避免回调再入导致死锁
	changeCBs := append([]ChangeCallback(nil), m.changeCallbacks...)
	reloadCBs := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.Unlock()

	if err := m.fireCallbacks(changeCBs, reloadCBs, oldConfig, newConfig, applied); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.logger.Error("callback failed, rolling back", zap.Error(err))
			m.rollbackLocked(oldConfig, fmt.Sprintf("callback error: %v", err), err)
		} else {
			// 配置已被并发修改，回滚会覆盖别人的更新
			m.logger.Warn("callback failed but config changed concurrently, skip rollback",
				zap.Error(err))
		}
		m.mu.Unlock()
		return fmt.Errorf("config applied but callback failed: %w", err)
	}

	if requiresRestart {
		m.logger.Warn("Some configuration changes require restart to take effect")
	}
	m.logger.Info("Configuration reloaded",
		zap.Int("changes", len(applied)),
		zap.Bool("requires_restart", requiresRestart))
	return nil
}

// fireCallbacks 触发回调并吸收 panic
func (m *HotReloadManager) fireCallbacks(changeCBs []ChangeCallback, reloadCBs []ReloadCallback, oldConfig, newConfig *Config, changes []ConfigChange) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	for _, cb := range changeCBs {
		for _, change := range changes {
			cb(change)
		}
	}
	for _, cb := range reloadCBs {
		cb(oldConfig, newConfig)
	}
	return nil
}

func (m *HotReloadManager) logFieldChange(change ConfigChange) {
	fields := []zap.Field{
		zap.String("path", change.Path),
		zap.String("source", change.Source),
		zap.Bool("requires_restart", change.RequiresRestart),
	}
	// 敏感字段不落日志
	if f, known := hotReloadableFields[change.Path]; !known || !f.Sensitive {
		fields = append(fields,
			zap.Any("old_value", change.OldValue),
			zap.Any("new_value", change.NewValue))
	}
	m.logger.Info("Configuration changed", fields...)
}

// OnChange 注册字段变更回调
func (m *HotReloadManager) OnChange(callback ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeCallbacks = append(m.changeCallbacks, callback)
}

// OnReload 注册整体重载回调
func (m *HotReloadManager) OnReload(callback ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, callback)
}

// OnRollback 注册回滚事件回调
func (m *HotReloadManager) OnRollback(callback RollbackCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackCallbacks = append(m.rollbackCallbacks, callback)
}

// --- 回滚与历史 ---

// Rollback 回滚到上一份成功应用的配置
func (m *HotReloadManager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.previousConfig == nil {
		return fmt.Errorf("no previous config available for rollback")
	}
	m.rollbackLocked(m.previousConfig, "manual rollback", nil)
	return nil
}

// RollbackToVersion 回滚到历史中的指定版本
func (m *HotReloadManager) RollbackToVersion(version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range m.configHistory {
		if snap.Version == version {
			m.rollbackLocked(snap.Config, fmt.Sprintf("rollback to version %d", version), nil)
			return nil
		}
	}
	return fmt.Errorf("config version %d not found in history", version)
}

// rollbackLocked 执行回滚，调用方必须持有写锁
func (m *HotReloadManager) rollbackLocked(target *Config, reason string, cause error) {
	failed := m.config
	restored := cloneConfig(target)
	m.config = restored

	restoredVersion := 0
	checksum := configChecksum(target)
	for _, snap := range m.configHistory {
		if snap.Checksum == checksum {
			restoredVersion = snap.Version
			break
		}
	}

	event := RollbackEvent{
		Timestamp:      time.Now(),
		Reason:         reason,
		FailedConfig:   failed,
		RestoredConfig: restored,
		Version:        restoredVersion,
		Error:          cause,
	}

	m.changeLog = append(m.changeLog, ConfigChange{
		Timestamp: time.Now(),
		Source:    "rollback",
		Path:      "(rollback)",
		Applied:   true,
		Error:     reason,
	})

	for _, cb := range m.rollbackCallbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("rollback callback panicked", zap.Any("panic", r))
				}
			}()
			cb(event)
		}()
	}

	m.logger.Warn("configuration rolled back",
		zap.String("reason", reason),
		zap.Int("restored_version", restoredVersion))
}

// recordSnapshot 推入历史快照并裁剪到上限
func (m *HotReloadManager) recordSnapshot(config *Config, source string) {
	version := 1
	if n := len(m.configHistory); n > 0 {
		version = m.configHistory[n-1].Version + 1
	}
	m.configHistory = append(m.configHistory, ConfigSnapshot{
		Config:    cloneConfig(config),
		Timestamp: time.Now(),
		Source:    source,
		Version:   version,
		Checksum:  configChecksum(config),
	})
	if len(m.configHistory) > m.maxHistorySize {
		m.configHistory = m.configHistory[len(m.configHistory)-m.maxHistorySize:]
	}
}

// GetConfigHistory 返回历史快照副本
func (m *HotReloadManager) GetConfigHistory() []ConfigSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConfigSnapshot, len(m.configHistory))
	copy(out, m.configHistory)
	return out
}

// GetCurrentVersion 返回当前配置的版本号
func (m *HotReloadManager) GetCurrentVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.configHistory) == 0 {
		return 0
	}
	return m.configHistory[len(m.configHistory)-1].Version
}

// GetConfig 返回当前配置的深拷贝
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneConfig(m.config)
}

// GetChangeLog 返回最近 limit 条变更记录，limit<=0 表示全部
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.changeLog) {
		limit = len(m.changeLog)
	}
	out := make([]ConfigChange, limit)
	copy(out, m.changeLog[len(m.changeLog)-limit:])
	return out
}

// --- 字段级更新 ---

// UpdateField 更新单个白名单字段，回调失败时回滚
func (m *HotReloadManager) UpdateField(path string, value any) error {
	m.mu.Lock()

	before := cloneConfig(m.config)

	field, known := hotReloadableFields[path]
	if !known {
		m.mu.Unlock()
		return fmt.Errorf("unknown configuration field: %s", path)
	}
	if field.Validator != nil {
		if err := field.Validator(value); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("validation failed for %s: %w", path, err)
		}
	}

	oldValue, err := m.getFieldValue(path)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to get old value: %w", err)
	}
	if err := setNestedField(reflect.ValueOf(m.config).Elem(), path, value); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to set value: %w", err)
	}

	change := ConfigChange{
		Timestamp:       time.Now(),
		Source:          "api",
		Path:            path,
		OldValue:        oldValue,
		NewValue:        value,
		RequiresRestart: field.RequiresRestart,
		Applied:         true,
	}
	if field.Sensitive {
		change.OldValue = "[REDACTED]"
		change.NewValue = "[REDACTED]"
	}

	m.logFieldChange(change)
	m.changeLog = append(m.changeLog, change)
	callbacks := append([]ChangeCallback(nil), m.changeCallbacks...)
	// 快照在锁内取，锁外不再读 m.config
	after := cloneConfig(m.config)
	m.mu.Unlock()

	if err := m.fireCallbacks(callbacks, nil, before, after, []ConfigChange{change}); err != nil {
		m.mu.Lock()
		m.rollbackLocked(before, fmt.Sprintf("callback error: %v", err), err)
		m.mu.Unlock()
		return fmt.Errorf("field updated but callback failed, rolled back: %w", err)
	}
	return nil
}

// getFieldValue 读取当前配置中指定路径的值，调用方需持锁
func (m *HotReloadManager) getFieldValue(path string) (any, error) {
	return getNestedField(reflect.ValueOf(m.config).Elem(), path)
}

// --- 反射工具 ---

// diffConfigs 逐字段比较两份配置，返回值不同的叶子字段
func diffConfigs(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	diffStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func diffStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	if oldVal.Kind() != reflect.Struct || newVal.Kind() != reflect.Struct {
		return
	}
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		ov, nv := oldVal.Field(i), newVal.Field(i)
		if ov.Kind() == reflect.Struct {
			diffStructs(path, ov, nv, changes)
			continue
		}
		if !reflect.DeepEqual(ov.Interface(), nv.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:     path,
				OldValue: ov.Interface(),
				NewValue: nv.Interface(),
			})
		}
	}
}

// getNestedField 按点分路径取嵌套字段值
func getNestedField(v reflect.Value, path string) (any, error) {
	for _, part := range splitPath(path) {
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("not a struct at %s", part)
		}
		v = v.FieldByName(part)
		if !v.IsValid() {
			return nil, fmt.Errorf("field not found: %s", part)
		}
	}
	return v.Interface(), nil
}

// setNestedField 按点分路径写嵌套字段，类型可转换时自动转换
func setNestedField(v reflect.Value, path string, value any) error {
	parts := splitPath(path)
	for i, part := range parts {
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("not a struct at %s", part)
		}
		v = v.FieldByName(part)
		if !v.IsValid() {
			return fmt.Errorf("field not found: %s", part)
		}
		if i == len(parts)-1 {
			if !v.CanSet() {
				return fmt.Errorf("cannot set field: %s", part)
			}
			nv := reflect.ValueOf(value)
			if !nv.Type().ConvertibleTo(v.Type()) {
				return fmt.Errorf("type mismatch: expected %s, got %s", v.Type(), nv.Type())
			}
			v.Set(nv.Convert(v.Type()))
		}
	}
	return nil
}

// splitPath 分割点分路径，忽略空段
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(c rune) bool { return c == '.' })
}

// cloneConfig 经 JSON 往返做深拷贝，失败时退回原指针
func cloneConfig(config *Config) *Config {
	data, err := json.Marshal(config)
	if err != nil {
		return config
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return config
	}
	return &out
}

// configChecksum FNV-1a 校验和，用于在历史中定位同一份配置
func configChecksum(config *Config) string {
	data, err := json.Marshal(config)
	if err != nil {
		return ""
	}
	var hash uint64
	for _, b := range data {
		hash ^= uint64(b)
		hash *= 1099511628211
	}
	return fmt.Sprintf("%016x", hash)
}

// --- API 脱敏视图 ---

// SanitizedConfig 返回脱敏后的配置 map，供配置查询 API 使用
func (m *HotReloadManager) SanitizedConfig() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.Marshal(m.config)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	redactSensitiveFields(result, "")
	return result
}

// redactSensitiveFields 递归脱敏键名中含敏感词的字段
func redactSensitiveFields(data map[string]any, prefix string) {
	sensitiveKeys := []string{"password", "api_key", "apikey", "secret", "token", "credential"}

	for key, value := range data {
		fullPath := key
		if prefix != "" {
			fullPath = prefix + "." + key
		}

		lowerKey := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if strings.Contains(lowerKey, s) {
				if str, ok := value.(string); ok && str != "" {
					data[key] = "[REDACTED]"
				}
				// API Key 列表同样脱敏
				if list, ok := value.([]any); ok && len(list) > 0 {
					data[key] = fmt.Sprintf("[REDACTED %d items]", len(list))
				}
				break
			}
		}

		if nested, ok := value.(map[string]any); ok {
			redactSensitiveFields(nested, fullPath)
		}
	}
}
