package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"emacross-core/internal/candles"
	"emacross-core/internal/strategy"
	"emacross-core/pkg/db"
)

type analyzeRequest struct {
	Pair      string           `json:"pair" binding:"required,min=1"`
	Timeframe string           `json:"timeframe"`
	Candles   []candles.Candle `json:"candles"`
	// CSV is an alternative to Candles: a header row plus one row per candle.
	CSV string `json:"csv"`
}

type listSignalsQuery struct {
	Limit int `form:"limit"`
}

func (q *listSignalsQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func pairParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("pair")))
}

func (s *Server) getStrategy(c *gin.Context) {
	st := s.Engine.Strategy()
	c.JSON(http.StatusOK, gin.H{
		"name":   st.Name(),
		"config": st.Config(),
	})
}

func (s *Server) getInformativePairs(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Strategy().InformativePairs())
}

// analyze runs the full pipeline over the posted candles and returns every
// row with its indicator and decision columns. NaN cells are rendered as null.
func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	input := req.Candles
	if req.CSV != "" {
		df, err := candles.ReadCSV(strings.NewReader(req.CSV))
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_CANDLES", err.Error())
			return
		}
		if input, err = candles.Candles(df); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_CANDLES", err.Error())
			return
		}
	}

	meta := strategy.Metadata{Pair: strings.ToUpper(req.Pair), Timeframe: req.Timeframe}
	out, summary, err := s.Engine.AnalyzeHistory(c.Request.Context(), meta, input)
	if err != nil {
		if errors.Is(err, candles.ErrMissingColumn) || errors.Is(err, candles.ErrEmptyFrame) {
			respondError(c, http.StatusBadRequest, "INVALID_CANDLES", err.Error())
			return
		}
		s.log.Error().Err(err).Str("pair", meta.Pair).Msg("analyze failed")
		respondError(c, http.StatusInternalServerError, "ANALYZE_FAILED", "analysis failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":  summary,
		"rows": candles.Rows(out),
	})
}

func (s *Server) listPairs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pairs": s.Engine.Pairs()})
}

func (s *Server) getLatest(c *gin.Context) {
	pair := pairParam(c)
	d, ok := s.Engine.Latest(pair)
	if !ok {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "no decision for "+pair+" yet")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) getSignals(c *gin.Context) {
	if s.Signals == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_STORE", "signal store not configured")
		return
	}
	var q listSignalsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	q.normalize()

	pair := pairParam(c)
	sigs, err := s.Signals.RecentSignals(c.Request.Context(), pair, q.Limit)
	if err != nil {
		s.log.Error().Err(err).Str("pair", pair).Msg("list signals failed")
		respondError(c, http.StatusInternalServerError, "DB_ERROR", "failed to load signals")
		return
	}
	if sigs == nil {
		sigs = []db.Signal{}
	}
	c.JSON(http.StatusOK, gin.H{"pair": pair, "signals": sigs})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_METRICS", "metrics not configured")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}
