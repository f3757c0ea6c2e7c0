package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chartfeed/internal/backtest"
	"chartfeed/internal/market"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MarketView is the live market state served by the API.
type MarketView interface {
	Ticker() *market.TickerSnapshot
	Balances() *market.BalanceSnapshot
	Markets() map[string][]string
	BalancesEnabled() bool
}

// Charts is the chart cache served by the API.
type Charts interface {
	Symbols() []string
	Series(pair string) (market.Series, bool)
	WaitReady(ctx context.Context, pair string) (market.Series, error)
	AddSymbol(pair string) bool
	RemoveSymbol(pair string) bool
}

// BacktestDefaults fill the fields a backtest request leaves out.
type BacktestDefaults struct {
	Strategy string
	Fast     int
	Slow     int
	Params   backtest.Params
}

type Config struct {
	Addr        string
	Market      MarketView
	Charts      Charts
	Backtest    BacktestDefaults
	WaitTimeout time.Duration // upper bound for ?wait on a loading chart
	// Health reports storage reachability on /healthz when set.
	Health func(ctx context.Context) bool
	Logger *zap.Logger
}

// Server exposes the market feed and the backtester over HTTP.
type Server struct {
	addr   string
	router *gin.Engine
	cfg    Config
	logger *zap.Logger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Market == nil || cfg.Charts == nil {
		return nil, errors.New("http server requires market and charts")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	s := &Server{addr: cfg.Addr, router: router, cfg: cfg, logger: cfg.Logger}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	api.GET("/ticker", s.handleTicker)
	api.GET("/balances", s.handleBalances)
	api.GET("/markets", s.handleMarkets)
	api.GET("/charts", s.handleCharts)
	api.GET("/charts/:pair", s.handleChart)
	api.POST("/charts/:pair", s.handleAddChart)
	api.DELETE("/charts/:pair", s.handleRemoveChart)
	api.POST("/backtest", s.handleBacktest)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("http server listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.cfg.Health != nil && !s.cfg.Health(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("dur", time.Since(start)),
		)
	}
}
