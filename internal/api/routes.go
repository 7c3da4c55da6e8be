package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/alphastack/equityresearch/internal/api/handlers"
	"github.com/alphastack/equityresearch/internal/database"
	"github.com/alphastack/equityresearch/internal/middleware"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
	System    System    `json:"system"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

type System struct {
	MemoryUsedPct float64 `json:"memory_used_pct"`
	Goroutines    int     `json:"goroutines"`
}

func SetupRoutes(router *gin.Engine, db *database.PostgresDB, redis *database.RedisClient, analysis *handlers.AnalysisHandler, backtest *handlers.BacktestHandler, logger *logrus.Logger) {
	router.Use(otelgin.Middleware("equityresearch"))
	router.Use(middleware.RequestLogger(logger))

	router.GET("/health", healthCheck(db, redis))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/analysis/:symbol", analysis.AnalyzeSymbol)
		v1.GET("/decisions", analysis.ListDecisions)
		v1.POST("/backtest", backtest.RunBacktest)
	}
}

func healthCheck(db *database.PostgresDB, redis *database.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "ok",
				Redis:    "ok",
			},
			System: System{Goroutines: runtime.NumGoroutine()},
		}

		if memInfo, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
			response.System.MemoryUsedPct = memInfo.UsedPercent
		}

		if db != nil {
			if err := db.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Database = "error"
				response.Status = "degraded"
			}
		}
		if redis != nil {
			if err := redis.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Redis = "error"
				response.Status = "degraded"
			}
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}
