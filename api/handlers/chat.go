package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/planflow/api"
	"github.com/BaSui01/planflow/plan"
	"github.com/BaSui01/planflow/types"
)

// =============================================================================
// 💬 保险对话 Handler
// =============================================================================

// ChatHandler 基于计划文档的问答处理器
type ChatHandler struct {
	chat         *plan.ChatService
	store        *plan.Store
	historyLimit int
	logger       *zap.Logger
}

// NewChatHandler 创建对话处理器
func NewChatHandler(chat *plan.ChatService, store *plan.Store, historyLimit int, logger *zap.Logger) *ChatHandler {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		chat:         chat,
		store:        store,
		historyLimit: historyLimit,
		logger:       logger.With(zap.String("component", "chat_handler")),
	}
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleAsk 针对计划提问
// @Summary 保险对话
// @Description 基于计划文档回答用户问题，并持久化问答记录
// @Tags 对话
// @Accept json
// @Produce json
// @Param id path string true "计划 ID"
// @Param request body api.AskRequest true "问题"
// @Success 200 {object} Response{data=api.AskResponse} "回答"
// @Failure 400 {object} Response "无效请求"
// @Failure 404 {object} Response "计划不存在"
// @Security ApiKeyAuth
// @Router /v1/plans/{id}/chat [post]
func (h *ChatHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	planID, ok := extractPlanID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"missing plan id", h.logger)
		return
	}

	var req api.AskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"question is required", h.logger)
		return
	}

	ctx := r.Context()
	rec, history, err := h.loadPlanContext(ctx, planID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	start := time.Now()
	answer, err := h.chat.Ask(ctx, rec, history, req.Question)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	if err := h.store.AppendExchange(ctx, planID, req.Question, answer); err != nil {
		// 回答已经生成，持久化失败只记日志，不吞掉回答
		h.logger.Warn("persist chat exchange failed", zap.String("plan_id", planID), zap.Error(err))
	}

	h.logger.Info("chat answered",
		zap.String("plan_id", planID),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, api.AskResponse{
		PlanID:   planID,
		Question: req.Question,
		Answer:   answer,
	})
}

// HandleHistory 查询聊天历史
// @Summary 聊天历史
// @Description 按时间顺序返回某计划最近的问答记录
// @Tags 对话
// @Produce json
// @Param id path string true "计划 ID"
// @Success 200 {object} Response{data=api.ChatHistoryResponse} "历史记录"
// @Security ApiKeyAuth
// @Router /v1/plans/{id}/chat/history [get]
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	planID, ok := extractPlanID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"missing plan id", h.logger)
		return
	}

	history, err := h.store.History(r.Context(), planID, h.historyLimit)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	messages := make([]api.ChatMessage, len(history))
	for i, msg := range history {
		messages[i] = api.ChatMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
	}

	WriteSuccess(w, api.ChatHistoryResponse{PlanID: planID, Messages: messages})
}

// HandleChatSocket 通过 WebSocket 流式回答
// @Summary 流式保险对话
// @Description 升级为 WebSocket，客户端发送问题，服务端按增量推送回答
// @Tags 对话
// @Param id path string true "计划 ID"
// @Success 101 {string} string "协议切换"
// @Security ApiKeyAuth
// @Router /v1/plans/{id}/chat/ws [get]
func (h *ChatHandler) HandleChatSocket(w http.ResponseWriter, r *http.Request) {
	planID, ok := extractPlanID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"missing plan id", h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	// 显式 cancel：handler 中途放弃消费流时，上游 pump goroutine
	// 靠这个信号从阻塞的发送中解脱
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var req api.AskRequest
	if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.Question) == "" {
		h.writeSocketChunk(ctx, conn, api.ChatStreamChunk{Error: "question is required", Done: true})
		conn.Close(websocket.StatusUnsupportedData, "question is required")
		return
	}

	rec, history, err := h.loadPlanContext(ctx, planID)
	if err != nil {
		h.writeSocketChunk(ctx, conn, api.ChatStreamChunk{Error: err.Error(), Done: true})
		conn.Close(websocket.StatusNormalClosure, "plan lookup failed")
		return
	}

	stream, err := h.chat.AskStream(ctx, rec, history, req.Question)
	if err != nil {
		h.writeSocketChunk(ctx, conn, api.ChatStreamChunk{Error: err.Error(), Done: true})
		conn.Close(websocket.StatusNormalClosure, "stream start failed")
		return
	}

	var answer strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			h.logger.Error("chat stream error", zap.String("plan_id", planID), zap.Error(chunk.Err))
			h.writeSocketChunk(ctx, conn, api.ChatStreamChunk{Error: chunk.Err.Message, Done: true})
			conn.Close(websocket.StatusNormalClosure, "stream error")
			return
		}

		if chunk.Delta.Content != "" {
			answer.WriteString(chunk.Delta.Content)
			if !h.writeSocketChunk(ctx, conn, api.ChatStreamChunk{Delta: chunk.Delta.Content}) {
				return
			}
		}

		if chunk.FinishReason != "" {
			h.writeSocketChunk(ctx, conn, api.ChatStreamChunk{FinishReason: chunk.FinishReason, Done: true})
		}
	}

	if answer.Len() > 0 {
		if err := h.store.AppendExchange(ctx, planID, req.Question, answer.String()); err != nil {
			h.logger.Warn("persist chat exchange failed", zap.String("plan_id", planID), zap.Error(err))
		}
	}

	conn.Close(websocket.StatusNormalClosure, "done")
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// loadPlanContext 加载计划记录与最近历史
func (h *ChatHandler) loadPlanContext(ctx context.Context, planID string) (*plan.Record, []plan.ChatMessage, error) {
	rec, err := h.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	history, err := h.store.History(ctx, planID, h.historyLimit)
	if err != nil {
		return nil, nil, err
	}
	return rec, history, nil
}

// writeSocketChunk 序列化并发送一个流式增量，返回 false 表示连接已断
func (h *ChatHandler) writeSocketChunk(ctx context.Context, conn *websocket.Conn, chunk api.ChatStreamChunk) bool {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

// writeChatError 将对话错误转换为 HTTP 响应
func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	var typErr *types.Error
	if errors.As(err, &typErr) {
		WriteError(w, typErr, h.logger)
		return
	}
	WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
		err.Error(), h.logger)
}
