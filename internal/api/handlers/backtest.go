package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/backtest"
	"github.com/alphastack/equityresearch/internal/database"
)

// BacktestHandler runs historical replays over the research pipeline.
type BacktestHandler struct {
	replayer   *backtest.Replayer
	repository *database.ResearchRepository
	logger     *logrus.Logger
}

func NewBacktestHandler(replayer *backtest.Replayer, repository *database.ResearchRepository, logger *logrus.Logger) *BacktestHandler {
	return &BacktestHandler{replayer: replayer, repository: repository, logger: logger}
}

type BacktestRequest struct {
	Symbols []string `json:"symbols" binding:"required,min=1"`
	Start   string   `json:"start" binding:"required"`
	End     string   `json:"end" binding:"required"`
}

type BacktestResponse struct {
	RunID  string           `json:"run_id"`
	Result *backtest.Result `json:"result"`
	Report string           `json:"report"`
}

// RunBacktest replays the window synchronously. Long windows over many
// symbols can take a while; callers set their own request timeouts.
// POST /api/v1/backtest
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return
	}
	if !end.After(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be after start"})
		return
	}

	runID := uuid.New().String()
	startedAt := time.Now()

	result, err := h.replayer.Run(c.Request.Context(), req.Symbols, start, end)
	if err != nil {
		h.logger.WithError(err).Error("backtest run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backtest run failed"})
		return
	}

	if h.repository != nil {
		if err := h.repository.SaveBacktestRun(c.Request.Context(), runID, startedAt, result); err != nil {
			h.logger.WithError(err).Warn("failed to persist backtest run")
		}
	}

	c.JSON(http.StatusOK, BacktestResponse{
		RunID:  runID,
		Result: result,
		Report: backtest.FormatReport(result),
	})
}
