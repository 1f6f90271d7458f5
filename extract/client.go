package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/planflow/internal/pool"
	"github.com/BaSui01/planflow/internal/tlsutil"
	"github.com/BaSui01/planflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultMaxDocumentBytes 单个 PDF 的默认上限，超过后直接拒绝、不上传。
const DefaultMaxDocumentBytes = 20 << 20 // 20 MiB

// Config 文档抽取服务配置
type Config struct {
	BaseURL          string        `json:"base_url" yaml:"base_url"`
	APIKey           string        `json:"api_key" yaml:"api_key"`
	Timeout          time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxDocumentBytes int64         `json:"max_document_bytes,omitempty" yaml:"max_document_bytes,omitempty"`
	RequestsPerSec   float64       `json:"requests_per_sec,omitempty" yaml:"requests_per_sec,omitempty"`
	Burst            int           `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// Page 抽取结果中的单页文本
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Result 文档抽取结果：整篇文本加逐页元数据
type Result struct {
	Text      string `json:"text"`
	Pages     []Page `json:"pages,omitempty"`
	PageCount int    `json:"page_count"`
}

// Client 文档抽取服务的 HTTP 客户端。
// 上游是多租户 SaaS，客户端侧做限流避免触发对方 429。
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient 创建抽取服务客户端
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second // PDF 抽取是慢接口
	}
	if cfg.MaxDocumentBytes == 0 {
		cfg.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.Burst == 0 {
		cfg.Burst = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg: cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		logger:  logger.With(zap.String("component", "extract")),
	}
}

type extractResponse struct {
	Text  string `json:"text"`
	Pages []struct {
		PageNumber int    `json:"page_number"`
		Text       string `json:"text"`
	} `json:"pages"`
}

type extractErrorResp struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractPDF 上传 PDF 字节并返回纯文本与逐页元数据。
// 超限文档、不可读文档和上游失败分别返回带类型码的 *types.Error。
func (c *Client) ExtractPDF(ctx context.Context, filename string, data []byte) (*Result, error) {
	if int64(len(data)) > c.cfg.MaxDocumentBytes {
		return nil, types.NewError(types.ErrDocumentTooLarge,
			fmt.Sprintf("document %s is %d bytes, limit is %d", filename, len(data), c.cfg.MaxDocumentBytes)).
			WithHTTPStatus(http.StatusRequestEntityTooLarge)
	}
	if len(data) == 0 {
		return nil, types.NewError(types.ErrDocumentUnreadable, "empty document").
			WithHTTPStatus(http.StatusBadRequest)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.ErrExtractionFailed, "rate limit wait canceled").WithCause(err)
	}

	body := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(body)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, types.NewError(types.ErrExtractionFailed, "build multipart body").WithCause(err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, types.NewError(types.ErrExtractionFailed, "write multipart body").WithCause(err)
	}
	writer.Close()

	endpoint := fmt.Sprintf("%s/v1/extract", strings.TrimRight(c.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, types.NewError(types.ErrExtractionFailed, "build request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrExtractionFailed, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.mapError(resp.StatusCode, resp.Body)
	}

	var er extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, types.NewError(types.ErrExtractionFailed, "decode extraction response").
			WithRetryable(true).
			WithCause(err)
	}

	if strings.TrimSpace(er.Text) == "" {
		// 扫描件或者纯图片 PDF：上游返回空文本
		return nil, types.NewError(types.ErrDocumentUnreadable,
			fmt.Sprintf("no extractable text in %s", filename)).
			WithHTTPStatus(http.StatusUnprocessableEntity)
	}

	result := &Result{
		Text:      er.Text,
		PageCount: len(er.Pages),
	}
	for _, p := range er.Pages {
		result.Pages = append(result.Pages, Page{Number: p.PageNumber, Text: p.Text})
	}

	c.logger.Debug("文档抽取完成",
		zap.String("filename", filename),
		zap.Int("bytes", len(data)),
		zap.Int("pages", result.PageCount),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (c *Client) mapError(status int, body io.Reader) *types.Error {
	msg := readErrMsg(body)

	switch status {
	case http.StatusRequestEntityTooLarge:
		return types.NewError(types.ErrDocumentTooLarge, msg).WithHTTPStatus(status)
	case http.StatusUnprocessableEntity:
		return types.NewError(types.ErrDocumentUnreadable, msg).WithHTTPStatus(status)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrExtractionFailed, msg).WithHTTPStatus(status).WithRetryable(true)
	default:
		return types.NewError(types.ErrExtractionFailed, msg).
			WithHTTPStatus(status).
			WithRetryable(status >= 500)
	}
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var er extractErrorResp
	if err := json.Unmarshal(data, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	if len(data) > 0 {
		return string(data)
	}
	return "extraction service error"
}
