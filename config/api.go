// config 包的 HTTP 配置管理 API。
//
// 提供配置查询、更新、热重载触发与变更历史查询能力。
package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// --- API 类型定义 ---

// ConfigAPIHandler 处理配置 API 请求
type ConfigAPIHandler struct {
	manager       *HotReloadManager
	allowedOrigin string
}

// apiResponse 配置 API 的响应信封，与 handlers.Response 字段保持一致
type apiResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// apiError 配置 API 的错误结构
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// configData 响应 Data 字段的载荷
type configData struct {
	Message         string               `json:"message,omitempty"`
	Config          map[string]any       `json:"config,omitempty"`
	Fields          map[string]FieldInfo `json:"fields,omitempty"`
	Changes         []ConfigChange       `json:"changes,omitempty"`
	RequiresRestart bool                 `json:"requires_restart,omitempty"`
}

// FieldInfo 单个配置字段的对外描述
type FieldInfo struct {
	Path            string `json:"path"`
	Description     string `json:"description"`
	RequiresRestart bool   `json:"requires_restart"`
	Sensitive       bool   `json:"sensitive"`
	// 敏感字段不回显当前值
	CurrentValue any `json:"current_value,omitempty"`
}

// ConfigUpdateRequest 字段路径到新值的更新请求
type ConfigUpdateRequest struct {
	Updates map[string]any `json:"updates"`
}

// --- 构造与路由 ---

// NewConfigAPIHandler 创建配置 API 处理器。
// allowedOrigin 指定 CORS 允许的来源，为空时不设置 Access-Control-Allow-Origin。
func NewConfigAPIHandler(manager *HotReloadManager, allowedOrigin ...string) *ConfigAPIHandler {
	h := &ConfigAPIHandler{manager: manager}
	if len(allowedOrigin) > 0 {
		h.allowedOrigin = allowedOrigin[0]
	}
	return h
}

// RegisterRoutes 注册配置 API 路由
func (h *ConfigAPIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/config", h.handleConfig)
	mux.HandleFunc("/api/v1/config/reload", h.handleReload)
	mux.HandleFunc("/api/v1/config/fields", h.handleFields)
	mux.HandleFunc("/api/v1/config/changes", h.handleChanges)
}

// 导出版本，供外部认证中间件包装后挂载

func (h *ConfigAPIHandler) HandleConfig(w http.ResponseWriter, r *http.Request)  { h.handleConfig(w, r) }
func (h *ConfigAPIHandler) HandleReload(w http.ResponseWriter, r *http.Request)  { h.handleReload(w, r) }
func (h *ConfigAPIHandler) HandleFields(w http.ResponseWriter, r *http.Request)  { h.handleFields(w, r) }
func (h *ConfigAPIHandler) HandleChanges(w http.ResponseWriter, r *http.Request) { h.handleChanges(w, r) }

// --- 处理器 ---

func (h *ConfigAPIHandler) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getConfig(w, r)
	case http.MethodPut:
		h.updateConfig(w, r)
	case http.MethodOptions:
		h.handleCORS(w, r)
	default:
		h.methodNotAllowed(w, r)
	}
}

// getConfig 返回脱敏后的当前配置
// @Summary 获取当前配置
// @Description 返回当前配置并编辑敏感字段
// @Tags config
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse "当前配置"
// @Failure 500 {object} apiResponse "内部服务器错误"
// @Router /api/v1/config [get]
func (h *ConfigAPIHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, configData{
		Message: "Configuration retrieved successfully",
		Config:  h.manager.SanitizedConfig(),
	})
}

// updateConfig 批量更新白名单字段
// @Summary 更新配置
// @Description 动态更新一个或多个配置字段
// @Tags config
// @Accept json
// @Produce json
// @Param request body ConfigUpdateRequest true "配置更新"
// @Success 200 {object} apiResponse "配置已更新"
// @Failure 400 {object} apiResponse "无效请求"
// @Failure 500 {object} apiResponse "内部服务器错误"
// @Router /api/v1/config [put]
func (h *ConfigAPIHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(req.Updates) == 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "No updates provided")
		return
	}

	var failures []string
	var requiresRestart bool
	for path, value := range req.Updates {
		field, known := hotReloadableFields[path]
		if !known {
			failures = append(failures, fmt.Sprintf("Unknown field: %s", path))
			continue
		}
		if field.RequiresRestart {
			requiresRestart = true
		}
		if err := h.manager.UpdateField(path, value); err != nil {
			failures = append(failures, fmt.Sprintf("Failed to update %s: %v", path, err))
		}
	}

	if len(failures) > 0 {
		writeAPIJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Error: &apiError{
				Code:    "INVALID_REQUEST",
				Message: fmt.Sprintf("Some updates failed: %v", failures),
			},
			Data:      configData{RequiresRestart: requiresRestart},
			Timestamp: time.Now(),
		})
		return
	}

	h.writeData(w, http.StatusOK, configData{
		Message:         "Configuration updated successfully",
		Config:          h.manager.SanitizedConfig(),
		RequiresRestart: requiresRestart,
	})
}

// handleReload 触发从文件重载
// @Summary 从文件热重载配置
// @Description 从配置文件热重载并应用最新配置
// @Tags config
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse "配置已热重载"
// @Failure 500 {object} apiResponse "热重载失败"
// @Router /api/v1/config/reload [post]
func (h *ConfigAPIHandler) handleReload(w http.ResponseWriter, r *http.Request) {
	if !h.guardMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.manager.ReloadFromFile(); err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			fmt.Sprintf("Failed to reload configuration: %v", err))
		return
	}

	h.writeData(w, http.StatusOK, configData{
		Message: "Configuration reloaded successfully",
		Config:  h.manager.SanitizedConfig(),
	})
}

// handleFields 返回可热重载字段清单
// @Summary 获取可热重载字段
// @Description 返回支持热重载的配置字段列表
// @Tags config
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse "可热重载字段"
// @Router /api/v1/config/fields [get]
func (h *ConfigAPIHandler) handleFields(w http.ResponseWriter, r *http.Request) {
	if !h.guardMethod(w, r, http.MethodGet) {
		return
	}

	fields := make(map[string]FieldInfo, len(hotReloadableFields))
	for path, field := range hotReloadableFields {
		info := FieldInfo{
			Path:            path,
			Description:     field.Description,
			RequiresRestart: field.RequiresRestart,
			Sensitive:       field.Sensitive,
		}
		if !field.Sensitive {
			if value, err := h.manager.getFieldValue(path); err == nil {
				info.CurrentValue = value
			}
		}
		fields[path] = info
	}

	h.writeData(w, http.StatusOK, configData{
		Message: "Hot reloadable fields retrieved",
		Fields:  fields,
	})
}

// handleChanges 返回变更历史
// @Summary 获取配置更改历史记录
// @Description 返回配置更改的历史记录
// @Tags config
// @Accept json
// @Produce json
// @Param limit query int false "返回的最大更改数量" default(50)
// @Success 200 {object} apiResponse "配置更改"
// @Router /api/v1/config/changes [get]
func (h *ConfigAPIHandler) handleChanges(w http.ResponseWriter, r *http.Request) {
	if !h.guardMethod(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	changes := h.manager.GetChangeLog(limit)
	h.writeData(w, http.StatusOK, configData{
		Message: fmt.Sprintf("Retrieved %d configuration changes", len(changes)),
		Changes: changes,
	})
}

// --- 响应辅助 ---

// guardMethod 放行指定方法，OPTIONS 走 CORS，其余返回 405
func (h *ConfigAPIHandler) guardMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	switch r.Method {
	case method:
		return true
	case http.MethodOptions:
		h.handleCORS(w, r)
	default:
		h.methodNotAllowed(w, r)
	}
	return false
}

func (h *ConfigAPIHandler) writeData(w http.ResponseWriter, status int, data configData) {
	writeAPIJSON(w, status, apiResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (h *ConfigAPIHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeAPIJSON(w, status, apiResponse{
		Success:   false,
		Error:     &apiError{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

func (h *ConfigAPIHandler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		fmt.Sprintf("Method %s not allowed", r.Method))
}

// handleCORS 处理 CORS 预检请求
func (h *ConfigAPIHandler) handleCORS(w http.ResponseWriter, r *http.Request) { //nolint:unparam // r 参数保留以符合 http.HandlerFunc 签名
	if h.allowedOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOrigin)
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// writeAPIJSON 先序列化再写出，避免半截响应。
// Content-Type 与安全头同 handlers.WriteJSON。
func writeAPIJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	buf, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}`)) //nolint:errcheck // Write 错误可安全忽略（客户端断开）
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf) //nolint:errcheck // Write 错误可安全忽略（客户端断开）
}

// --- 中间件 ---

// ConfigAPIMiddleware 配置 API 的鉴权与请求日志中间件
type ConfigAPIMiddleware struct {
	handler *ConfigAPIHandler
	apiKey  string
}

// NewConfigAPIMiddleware 创建配置 API 中间件，apiKey 为空时不做鉴权
func NewConfigAPIMiddleware(handler *ConfigAPIHandler, apiKey string) *ConfigAPIMiddleware {
	return &ConfigAPIMiddleware{handler: handler, apiKey: apiKey}
}

// RequireAuth 校验 X-API-Key 请求头。
// 不支持 query string 传 key：会暴露在日志与浏览器历史中。
func (m *ConfigAPIMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// CORS 预检不带自定义头，跳过鉴权
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		if m.apiKey != "" && r.Header.Get("X-API-Key") != m.apiKey {
			writeAPIJSON(w, http.StatusUnauthorized, apiResponse{
				Success:   false,
				Error:     &apiError{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"},
				Timestamp: time.Now(),
			})
			return
		}

		next(w, r)
	}
}

// LogRequests 记录方法、路径、状态码与耗时，logger 为 nil 时只透传
func (m *ConfigAPIMiddleware) LogRequests(next http.HandlerFunc, logger func(method, path string, status int, duration time.Duration)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next(wrapped, r)

		if logger != nil {
			logger(r.Method, r.URL.Path, wrapped.status, time.Since(start))
		}
	}
}

// responseWriter 捕获状态码
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
