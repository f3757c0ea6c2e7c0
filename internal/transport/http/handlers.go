package httpapi

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"chartfeed/internal/backtest"
	"chartfeed/internal/chartcache"
	"chartfeed/internal/market"
	"chartfeed/internal/strategy"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (s *Server) handleTicker(c *gin.Context) {
	snap := s.cfg.Market.Ticker()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ticker not loaded yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleBalances(c *gin.Context) {
	if !s.cfg.Market.BalancesEnabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "balance feed disabled, no api credentials"})
		return
	}
	snap := s.cfg.Market.Balances()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "balances not loaded yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleMarkets(c *gin.Context) {
	if s.cfg.Market.Ticker() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ticker not loaded yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": s.cfg.Market.Markets()})
}

type chartSummary struct {
	Pair    string    `json:"pair"`
	Ready   bool      `json:"ready"`
	Candles int       `json:"candles"`
	First   time.Time `json:"first,omitempty"`
	Last    time.Time `json:"last,omitempty"`
}

func (s *Server) handleCharts(c *gin.Context) {
	symbols := s.cfg.Charts.Symbols()
	out := make([]chartSummary, 0, len(symbols))
	for _, pair := range symbols {
		sum := chartSummary{Pair: pair}
		if series, ok := s.cfg.Charts.Series(pair); ok && !series.Empty() {
			sum.Ready = true
			sum.Candles = series.Len()
			sum.First = series.First().Time
			sum.Last = series.Last().Time
		}
		out = append(out, sum)
	}
	c.JSON(http.StatusOK, gin.H{"charts": out})
}

// handleChart returns the series of an active pair. ?wait=5s blocks until a
// loading chart is ready, ?limit=N keeps the newest N candles.
func (s *Server) handleChart(c *gin.Context) {
	pair, ok := pairParam(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wait must be a duration such as 5s"})
			return
		}
		wait = d
	}

	series, status, err := s.chart(c.Request.Context(), pair, wait)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if limit > 0 && series.Len() > limit {
		series.Candles = series.Candles[series.Len()-limit:]
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) handleAddChart(c *gin.Context) {
	pair, ok := pairParam(c)
	if !ok {
		return
	}
	if s.cfg.Charts.AddSymbol(pair) {
		c.JSON(http.StatusCreated, gin.H{"pair": pair, "added": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pair": pair, "added": false})
}

func (s *Server) handleRemoveChart(c *gin.Context) {
	pair, ok := pairParam(c)
	if !ok {
		return
	}
	if !s.cfg.Charts.RemoveSymbol(pair) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chart not active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pair": pair, "removed": true})
}

type backtestRequest struct {
	Pair        string   `json:"pair" binding:"required"`
	Strategy    string   `json:"strategy"`
	Fast        int      `json:"fast"`
	Slow        int      `json:"slow"`
	TradePct    *float64 `json:"trade_pct"`
	CandleWidth string   `json:"candle_width"`
	Wait        string   `json:"wait"`
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair := strings.ToUpper(strings.TrimSpace(req.Pair))
	if _, _, err := market.SplitPair(pair); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	defaults := s.cfg.Backtest
	name := req.Strategy
	if name == "" {
		name = defaults.Strategy
	}
	sp := strategy.Params{Fast: defaults.Fast, Slow: defaults.Slow}
	if req.Fast > 0 {
		sp.Fast = req.Fast
	}
	if req.Slow > 0 {
		sp.Slow = req.Slow
	}
	strat, err := strategy.New(name, sp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := defaults.Params
	if req.TradePct != nil {
		params.TradePct = decimal.NewFromFloat(*req.TradePct)
	}
	if req.CandleWidth != "" {
		d, err := time.ParseDuration(req.CandleWidth)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "candle_width must be a duration such as 15m"})
			return
		}
		params.CandleWidth = d
	}
	var wait time.Duration
	if req.Wait != "" {
		if wait, err = time.ParseDuration(req.Wait); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wait must be a duration such as 5s"})
			return
		}
	}

	series, status, err := s.chart(c.Request.Context(), pair, wait)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	res, err := backtest.Run(c.Request.Context(), series, strat, params)
	switch {
	case errors.Is(err, backtest.ErrInvalidParams), errors.Is(err, backtest.ErrEmptySeries):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, backtest.ErrInvalidSeries):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// chart resolves the series of an active pair, waiting at most wait (capped
// by the configured timeout) for one still loading.
func (s *Server) chart(ctx context.Context, pair string, wait time.Duration) (market.Series, int, error) {
	if series, ok := s.cfg.Charts.Series(pair); ok {
		return series, http.StatusOK, nil
	}
	if !slices.Contains(s.cfg.Charts.Symbols(), pair) {
		return market.Series{}, http.StatusNotFound, errors.New("chart not active")
	}
	if wait <= 0 {
		return market.Series{}, http.StatusServiceUnavailable, errors.New("chart is loading")
	}
	if wait > s.cfg.WaitTimeout {
		wait = s.cfg.WaitTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	series, err := s.cfg.Charts.WaitReady(ctx, pair)
	switch {
	case err == nil:
		return series, http.StatusOK, nil
	case errors.Is(err, chartcache.ErrNotActive):
		return market.Series{}, http.StatusNotFound, err
	case errors.Is(err, context.DeadlineExceeded):
		return market.Series{}, http.StatusGatewayTimeout, errors.New("chart still loading")
	}
	return market.Series{}, http.StatusServiceUnavailable, err
}

func pairParam(c *gin.Context) (string, bool) {
	pair := strings.ToUpper(strings.TrimSpace(c.Param("pair")))
	if _, _, err := market.SplitPair(pair); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return pair, true
}
