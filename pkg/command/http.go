package command

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader 请求ID头
const RequestIDHeader = "X-Request-ID"

// DataResponse GET 命令的响应
type DataResponse struct {
	Key  string `json:"key"`
	Data string `json:"data"`
}

// SetRequest PUT 命令的请求体
type SetRequest struct {
	Data       *string `json:"data" binding:"required"`
	TTLSeconds *int64  `json:"ttl_seconds"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewRouter 创建带中间件和全部命令路由的 gin 引擎
func NewRouter(cmds *Commands) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(accessLog(cmds.log))

	router.GET("/health", cmds.health)
	router.GET("/stats", cmds.stats)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cache/*key", cmds.getHandler)
		v1.PUT("/cache/*key", cmds.setHandler)
		v1.DELETE("/cache/*key", cmds.invalidateHandler)
		v1.DELETE("/cache", cmds.clearHandler)
	}

	return router
}

func (c *Commands) getHandler(ctx *gin.Context) {
	key, ok := keyParam(ctx)
	if !ok {
		return
	}

	data := c.GetCachedData(key)
	if data == nil {
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "no cached data for key"})
		return
	}
	ctx.JSON(http.StatusOK, DataResponse{Key: key, Data: *data})
}

func (c *Commands) setHandler(ctx *gin.Context) {
	key, ok := keyParam(ctx)
	if !ok {
		return
	}

	var req SetRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	if req.TTLSeconds != nil && *req.TTLSeconds < 0 {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "ttl_seconds cannot be negative"})
		return
	}

	if err := c.SetCachedData(key, *req.Data, req.TTLSeconds); err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Commands) invalidateHandler(ctx *gin.Context) {
	key, ok := keyParam(ctx)
	if !ok {
		return
	}

	if err := c.InvalidateCachedData(key); err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Commands) clearHandler(ctx *gin.Context) {
	if err := c.ClearCachedData(); err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Commands) health(ctx *gin.Context) {
	if !c.Healthy() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "poisoned", "timestamp": time.Now()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
}

func (c *Commands) stats(ctx *gin.Context) {
	stats, err := c.Stats()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

// keyParam 取出通配路径中的键，键可以包含斜杠
func keyParam(ctx *gin.Context) (string, bool) {
	key := strings.TrimPrefix(ctx.Param("key"), "/")
	if key == "" {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "key is required"})
		return "", false
	}
	return key, true
}

func requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.Header(RequestIDHeader, id)
		ctx.Next()
	}
}

func accessLog(log *logrus.Entry) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		log.WithFields(logrus.Fields{
			"method":     ctx.Request.Method,
			"path":       ctx.Request.URL.Path,
			"status":     ctx.Writer.Status(),
			"latency":    time.Since(start),
			"request_id": ctx.GetString("request_id"),
		}).Debug("request handled")
	}
}
