package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestAnalyzeSymbolRejectsUnknownRegime(t *testing.T) {
	h := NewAnalysisHandler(nil, nil, nil, quietLogger())

	router := gin.New()
	router.GET("/analysis/:symbol", h.AnalyzeSymbol)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/analysis/TCS?regime=sideways", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "regime")
}

func TestAnalyzeSymbolRejectsBlankSymbol(t *testing.T) {
	h := NewAnalysisHandler(nil, nil, nil, quietLogger())

	router := gin.New()
	router.GET("/analysis/:symbol", h.AnalyzeSymbol)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/analysis/%20", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDecisionsRejectsBadLimit(t *testing.T) {
	h := NewAnalysisHandler(nil, nil, nil, quietLogger())

	router := gin.New()
	router.GET("/decisions", h.ListDecisions)

	for _, limit := range []string{"0", "-5", "501", "abc"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/decisions?limit="+limit, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit %q should be rejected", limit)
	}
}

func TestRunBacktestRequestValidation(t *testing.T) {
	h := NewBacktestHandler(nil, nil, quietLogger())

	router := gin.New()
	router.POST("/backtest", h.RunBacktest)

	tests := []struct {
		name string
		body string
	}{
		{"missing symbols", `{"start":"2023-01-01","end":"2023-06-01"}`},
		{"empty symbols", `{"symbols":[],"start":"2023-01-01","end":"2023-06-01"}`},
		{"malformed start", `{"symbols":["TCS"],"start":"Jan 1","end":"2023-06-01"}`},
		{"malformed end", `{"symbols":["TCS"],"start":"2023-01-01","end":"01-06-2023"}`},
		{"end before start", `{"symbols":["TCS"],"start":"2023-06-01","end":"2023-01-01"}`},
		{"not json", `symbols=TCS`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/backtest", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
