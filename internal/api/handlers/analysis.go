package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/database"
	"github.com/alphastack/equityresearch/internal/models"
	"github.com/alphastack/equityresearch/internal/services"
)

// AnalysisHandler serves on-demand symbol evaluations and the decision log.
type AnalysisHandler struct {
	synthesizer *services.Synthesizer
	repository  *database.ResearchRepository
	notifier    services.DecisionNotifier
	logger      *logrus.Logger
}

func NewAnalysisHandler(synthesizer *services.Synthesizer, repository *database.ResearchRepository, notifier services.DecisionNotifier, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		synthesizer: synthesizer,
		repository:  repository,
		notifier:    notifier,
		logger:      logger,
	}
}

type AnalysisResponse struct {
	Decision  models.Decision `json:"decision"`
	Timestamp time.Time       `json:"timestamp"`
}

// AnalyzeSymbol runs the full four-dimension evaluation for one symbol.
// GET /api/v1/analysis/:symbol?regime=bullish
func (h *AnalysisHandler) AnalyzeSymbol(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	regime := models.RegimeNeutral
	switch strings.ToLower(c.Query("regime")) {
	case "bullish":
		regime = models.RegimeBullish
	case "bearish":
		regime = models.RegimeBearish
	case "", "neutral":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "regime must be bullish, bearish or neutral"})
		return
	}

	decision, err := h.synthesizer.Analyze(c.Request.Context(), symbol, regime)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	if h.repository != nil {
		if err := h.repository.SaveDecision(c.Request.Context(), decision); err != nil {
			h.logger.WithError(err).Warn("failed to persist decision")
		}
	}

	// Notifications are fire-and-forget; a slow Telegram call must not
	// delay the response.
	if h.notifier != nil && decision.Action.IsBuy() {
		go func(d models.Decision) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.notifier.NotifyDecision(ctx, d); err != nil {
				h.logger.WithError(err).Warn("decision notification failed")
			}
		}(decision)
	}

	c.JSON(http.StatusOK, AnalysisResponse{Decision: decision, Timestamp: time.Now()})
}

// ListDecisions returns persisted decisions, newest first.
// GET /api/v1/decisions?symbol=X&action=BUY&limit=50
func (h *AnalysisHandler) ListDecisions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	filter := database.DecisionFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Action: models.Action(strings.ToUpper(strings.TrimSpace(c.Query("action")))),
		Limit:  limit,
	}

	decisions, err := h.repository.ListDecisions(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to list decisions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list decisions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"decisions": decisions,
		"count":     len(decisions),
		"timestamp": time.Now(),
	})
}
