package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/extract"
	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/service"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/LJTian/NewsDigest/internal/stream"
)

// Core 路由依赖的核心操作，*service.Service 实现了它
type Core interface {
	ListSources(ctx context.Context) []service.Source
	HasSource(key string) bool
	RunBatch(ctx context.Context, key, keyword string, maxCount int) (service.Batch, error)
	SaveBatch(ctx context.Context, keyword string, items []news.Item) (int, error)
	RunStream(ctx context.Context, key, keyword string, maxCount int, pace time.Duration, emit func(stream.Event) error) (int, error)
	DeepExtract(ctx context.Context, pageURL string) extract.Result
	DeepExtractForRecord(ctx context.Context, id string) (service.RecordExtraction, error)
	DeepExtractBatch(ctx context.Context, ids []string) service.BatchOutcome
}

// NewsLister 已入库新闻的查询，可以为 nil
type NewsLister interface {
	ListNews(ctx context.Context, source string, limit int, date string) ([]storage.NewsRecord, error)
	ListPublishedDates(ctx context.Context, source string, limit int) ([]string, error)
}

type Server struct {
	core    Core
	news    NewsLister
	metrics http.Handler
	logger  *zap.Logger
}

func NewServer(core Core, lister NewsLister, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{core: core, news: lister, metrics: metrics, logger: logger}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/sources", s.listSources)
		v1.GET("/crawl", s.crawl)
		v1.GET("/crawl/stream", s.crawlStream)
		v1.POST("/extract", s.deepExtract)
		v1.GET("/news", s.listNews)
		v1.GET("/news/dates", s.listDates)
		v1.POST("/news/deep", s.deepExtractBatch)
		v1.POST("/news/:id/deep", s.deepExtractRecord)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func internalError(c *gin.Context) {
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (s *Server) listSources(c *gin.Context) {
	ok(c, s.core.ListSources(c.Request.Context()))
}

// crawl 批量采集；save=1 时顺带入库
func (s *Server) crawl(c *gin.Context) {
	source := c.DefaultQuery("source", "baidu")
	keyword := strings.TrimSpace(c.Query("keyword"))
	maxCount := queryInt(c, "max", collector.DefaultMaxCount)

	batch, err := s.core.RunBatch(c.Request.Context(), source, keyword, maxCount)
	if err != nil {
		if failure.Is(err, failure.KindConfiguration) {
			fail(c, http.StatusBadRequest, "unknown_source", err.Error())
			return
		}
		s.logger.Error("run batch failed", zap.String("source", source), zap.Error(err))
		internalError(c)
		return
	}

	resp := gin.H{
		"source": batch.Source,
		"status": batch.Status,
		"items":  batch.Items,
	}
	if c.Query("save") == "1" && len(batch.Items) > 0 {
		saved, err := s.core.SaveBatch(c.Request.Context(), keyword, batch.Items)
		if err != nil {
			s.logger.Warn("save batch failed", zap.String("source", source), zap.Error(err))
		}
		resp["saved"] = saved
	}
	ok(c, resp)
}

// crawlStream 以 SSE 推送采集进度；pace_ms 未提供时使用配置的节奏
func (s *Server) crawlStream(c *gin.Context) {
	source := c.DefaultQuery("source", "baidu")
	if !s.core.HasSource(source) {
		fail(c, http.StatusBadRequest, "unknown_source", "unknown source: "+source)
		return
	}
	keyword := strings.TrimSpace(c.Query("keyword"))
	maxCount := queryInt(c, "max", collector.DefaultMaxCount)

	pace := time.Duration(-1)
	if raw, provided := c.GetQuery("pace_ms"); provided {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "bad_request", "invalid pace_ms")
			return
		}
		pace = stream.PaceFromMillis(ms, true)
	}

	stream.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Stream(func(w io.Writer) bool {
		_, err := s.core.RunStream(c.Request.Context(), source, keyword, maxCount, pace, func(ev stream.Event) error {
			if err := stream.WriteSSE(w, ev); err != nil {
				return err
			}
			c.Writer.Flush()
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Info("stream ended with error", zap.String("source", source), zap.Error(err))
		}
		return false
	})
}

type extractRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) deepExtract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "url is required")
		return
	}
	res := s.core.DeepExtract(c.Request.Context(), req.URL)
	ok(c, gin.H{"title": res.Title, "content": res.Content})
}

func (s *Server) deepExtractRecord(c *gin.Context) {
	id := c.Param("id")
	res, err := s.core.DeepExtractForRecord(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, res)
	case storage.IsNotFound(err):
		fail(c, http.StatusNotFound, "not_found", "record not found")
	case failure.Is(err, failure.KindEmpty):
		// 没抽到正文不算接口错误，记录保持未深采状态
		ok(c, res)
	default:
		s.logger.Error("deep extract record failed", zap.String("id", id), zap.Error(err))
		internalError(c)
	}
}

type batchRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (s *Server) deepExtractBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "ids is required")
		return
	}
	ok(c, s.core.DeepExtractBatch(c.Request.Context(), req.IDs))
}

func (s *Server) listNews(c *gin.Context) {
	if s.news == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "storage not configured")
		return
	}
	limit := queryInt(c, "limit", 20)
	items, err := s.news.ListNews(c.Request.Context(), c.Query("source"), limit, c.Query("date"))
	if err != nil {
		s.logger.Error("list news failed", zap.Error(err))
		internalError(c)
		return
	}
	ok(c, items)
}

func (s *Server) listDates(c *gin.Context) {
	if s.news == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "storage not configured")
		return
	}
	dates, err := s.news.ListPublishedDates(c.Request.Context(), c.Query("source"), queryInt(c, "limit", 31))
	if err != nil {
		s.logger.Error("list dates failed", zap.Error(err))
		internalError(c)
		return
	}
	ok(c, dates)
}

// BasicAuth 为整个站点增加一个简单的 Basic Auth 访问密码。
// /health 不做认证，便于健康检查。
func BasicAuth(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
