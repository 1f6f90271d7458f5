package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/planflow/api"
	"github.com/BaSui01/planflow/extract"
	"github.com/BaSui01/planflow/internal/cache"
	"github.com/BaSui01/planflow/internal/metrics"
	"github.com/BaSui01/planflow/llm"
	"github.com/BaSui01/planflow/llm/invoke"
	"github.com/BaSui01/planflow/plan"
	"github.com/BaSui01/planflow/types"
)

// =============================================================================
// 📄 计划管理 Handler
// =============================================================================

// PlanHandler 计划上传、查询与类别浏览处理器
type PlanHandler struct {
	extractor  plan.Extractor
	structurer *plan.Structurer
	explorer   *plan.Explorer
	store      *plan.Store
	cache      *cache.Manager // 可为 nil，缓存关闭时直连
	metrics    *metrics.Collector
	maxUpload  int64
	logger     *zap.Logger
}

// PlanHandlerConfig 计划处理器依赖
type PlanHandlerConfig struct {
	Extractor  plan.Extractor
	Structurer *plan.Structurer
	Explorer   *plan.Explorer
	Store      *plan.Store
	Cache      *cache.Manager
	Metrics    *metrics.Collector
	MaxUpload  int64
}

// NewPlanHandler 创建计划处理器
func NewPlanHandler(cfg PlanHandlerConfig, logger *zap.Logger) *PlanHandler {
	maxUpload := cfg.MaxUpload
	if maxUpload <= 0 {
		maxUpload = extract.DefaultMaxDocumentBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanHandler{
		extractor:  cfg.Extractor,
		structurer: cfg.Structurer,
		explorer:   cfg.Explorer,
		store:      cfg.Store,
		cache:      cfg.Cache,
		metrics:    cfg.Metrics,
		maxUpload:  maxUpload,
		logger:     logger.With(zap.String("component", "plan_handler")),
	}
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleUpload 上传 SBC PDF 并结构化
// @Summary 上传计划文档
// @Description 上传 SBC PDF，抽取文本并生成结构化摘要
// @Tags 计划
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "SBC PDF 文件"
// @Success 200 {object} Response{data=api.UploadPlanResponse} "结构化结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 413 {object} Response "文档超限"
// @Failure 422 {object} Response "文档不可读"
// @Failure 502 {object} Response "抽取或结构化失败"
// @Security ApiKeyAuth
// @Router /v1/plans [post]
func (h *PlanHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"expected multipart form with a file field", h.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"missing file field", h.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"read uploaded file", h.logger)
		return
	}

	filename := header.Filename
	if filename == "" {
		filename = "document.pdf"
	}

	ctx := r.Context()
	result, cached, err := h.extractWithCache(ctx, filename, data)
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	summary, err := h.structurer.StructureText(ctx, result.Text)
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	planID := uuid.NewString()
	if _, err := h.store.SavePlan(ctx, planID, filename, result.Text, result.PageCount, summary); err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
			"persist plan", h.logger)
		return
	}

	h.logger.Info("plan structured",
		zap.String("plan_id", planID),
		zap.String("filename", filename),
		zap.Int("page_count", result.PageCount),
		zap.Bool("extraction_cached", cached),
	)

	WriteSuccess(w, api.UploadPlanResponse{
		PlanID:    planID,
		Filename:  filename,
		PageCount: result.PageCount,
		Cached:    cached,
		Summary:   summary,
	})
}

// HandleGetPlan 查询已结构化计划
// @Summary 查询计划
// @Description 按计划 ID 返回结构化摘要
// @Tags 计划
// @Produce json
// @Param id path string true "计划 ID"
// @Success 200 {object} Response{data=api.PlanResponse} "计划详情"
// @Failure 404 {object} Response "计划不存在"
// @Security ApiKeyAuth
// @Router /v1/plans/{id} [get]
func (h *PlanHandler) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := extractPlanID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"missing plan id", h.logger)
		return
	}

	rec, err := h.store.GetPlan(r.Context(), planID)
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	summary, err := rec.Summary()
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
			"decode stored summary", h.logger)
		return
	}

	WriteSuccess(w, api.PlanResponse{
		PlanID:    rec.PlanID,
		Filename:  rec.Filename,
		PageCount: rec.PageCount,
		CreatedAt: rec.CreatedAt,
		Summary:   summary,
	})
}

// HandleCategories 浏览计划的覆盖类别
// @Summary 覆盖类别
// @Description 返回十个固定服务类别在该计划下的覆盖判定
// @Tags 计划
// @Produce json
// @Param id path string true "计划 ID"
// @Success 200 {object} Response{data=api.CategoriesResponse} "类别列表"
// @Failure 404 {object} Response "计划不存在"
// @Security ApiKeyAuth
// @Router /v1/plans/{id}/categories [get]
func (h *PlanHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	planID, ok := extractPlanID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"missing plan id", h.logger)
		return
	}

	ctx := r.Context()

	// 类别判定成本高，优先走缓存
	if h.cache != nil {
		var categories []plan.CoverageCategory
		if err := h.cache.GetJSON(ctx, cache.CategoriesKey(planID), &categories); err == nil {
			h.recordCacheHit("categories")
			WriteSuccess(w, api.CategoriesResponse{PlanID: planID, Cached: true, Categories: categories})
			return
		}
		h.recordCacheMiss("categories")
	}

	rec, err := h.store.GetPlan(ctx, planID)
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	categories, err := h.explorer.Explore(ctx, rec.Text)
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.SetJSON(ctx, cache.CategoriesKey(planID), categories, 0); err != nil {
			h.logger.Warn("cache categories failed", zap.String("plan_id", planID), zap.Error(err))
		}
	}

	WriteSuccess(w, api.CategoriesResponse{PlanID: planID, Categories: categories})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// extractWithCache 抽取文档文本，按内容哈希命中缓存时跳过上游调用
func (h *PlanHandler) extractWithCache(ctx context.Context, filename string, data []byte) (*extract.Result, bool, error) {
	key := cache.ExtractionKey(data)

	if h.cache != nil {
		var cached extract.Result
		if err := h.cache.GetJSON(ctx, key, &cached); err == nil {
			h.recordCacheHit("extraction")
			h.recordExtraction("cached", 0, int64(len(data)))
			return &cached, true, nil
		}
		h.recordCacheMiss("extraction")
	}

	start := time.Now()
	result, err := h.extractor.ExtractPDF(ctx, filename, data)
	if err != nil {
		h.recordExtraction("error", time.Since(start), int64(len(data)))
		return nil, false, err
	}
	h.recordExtraction("ok", time.Since(start), int64(len(data)))

	if h.cache != nil {
		if err := h.cache.SetExtraction(ctx, key, result); err != nil {
			h.logger.Warn("cache extraction failed", zap.Error(err))
		}
	}
	return result, false, nil
}

// writePlanError 将领域错误转换为 HTTP 响应
func (h *PlanHandler) writePlanError(w http.ResponseWriter, err error) {
	var typErr *types.Error
	if errors.As(err, &typErr) {
		WriteError(w, typErr, h.logger)
		return
	}

	var exhausted *invoke.ExhaustedError
	if errors.As(err, &exhausted) {
		apiErr := types.NewError(types.ErrRetryExhausted, exhausted.Error()).
			WithHTTPStatus(http.StatusBadGateway)
		WriteError(w, apiErr, h.logger)
		return
	}

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		WriteLLMError(w, llmErr, h.logger)
		return
	}

	WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
		err.Error(), h.logger)
}

// extractPlanID 从路径提取计划 ID（Go 1.22+ PathValue 优先，回退到路径解析）
func extractPlanID(r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 3 {
			return "", false
		}
		id = parts[2]
	}
	if id == "" {
		return "", false
	}
	return id, true
}

func (h *PlanHandler) recordCacheHit(kind string) {
	if h.metrics != nil {
		h.metrics.RecordCacheHit(kind)
	}
}

func (h *PlanHandler) recordCacheMiss(kind string) {
	if h.metrics != nil {
		h.metrics.RecordCacheMiss(kind)
	}
}

func (h *PlanHandler) recordExtraction(status string, d time.Duration, size int64) {
	if h.metrics != nil {
		h.metrics.RecordExtraction(status, d, size)
	}
}
