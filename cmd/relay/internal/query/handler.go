package query

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/pkg/config"
)

// Handler binds the query service to HTTP routes.
type Handler struct {
	svc     *Service
	logger  *zap.Logger
	metrics http.Handler
}

// NewHandler creates the HTTP handler. metrics may be nil, in which case
// /metrics is not served.
func NewHandler(svc *Service, logger *zap.Logger, metrics http.Handler) *Handler {
	return &Handler{svc: svc, logger: logger, metrics: metrics}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/symbols", h.ListSymbols)
	router.GET("/price/:symbol", h.GetPrice)

	api := router.Group("/api/v1")
	{
		api.GET("/prices", h.ListPrices)
	}

	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
}

// NewRouter builds a gin engine with recovery, request logging at debug
// level, the optional per-IP rate limit and every query route.
func NewRouter(h *Handler, rl config.RateLimitConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	if rl.Enabled {
		router.Use(RateLimit(NewIPLimiter(rl.QPS, rl.Burst)))
	}
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"symbols": len(h.svc.ListSymbols()),
	})
}

// ListSymbols returns the sorted downstream symbols as a JSON array.
func (h *Handler) ListSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListSymbols())
}

func (h *Handler) GetPrice(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	rec, ok := h.svc.GetPrice(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Symbol not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListPrices returns the whole snapshot, or only the comma separated
// ?symbols= when given.
func (h *Handler) ListPrices(c *gin.Context) {
	raw := c.Query("symbols")
	if raw == "" {
		c.JSON(http.StatusOK, h.svc.Snapshot())
		return
	}

	var syms []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			syms = append(syms, s)
		}
	}
	c.JSON(http.StatusOK, h.svc.GetPrices(syms))
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
