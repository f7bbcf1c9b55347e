package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the handler's routes onto a new gin engine.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.log))

	router.GET("/health", h.Health)

	api := router.Group("/api")
	{
		api.GET("/progress", h.Progress)
		api.GET("/market-summary", h.MarketSummary)

		stocks := api.Group("/stocks")
		{
			stocks.GET("", h.ListStocks)
			stocks.GET("/:symbol", h.GetStock)
			stocks.GET("/:symbol/history", h.GetHistory)
		}
	}

	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}
