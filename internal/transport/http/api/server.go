// Package apihttp serves the download ledger and trade charts over HTTP.
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pumpscope/internal/logger"
	"pumpscope/internal/store/archive"
	"pumpscope/internal/store/ledger"
	"pumpscope/internal/trade"
)

// Ledger is the read side of the download ledger.
type Ledger interface {
	List(ctx context.Context, f ledger.Filter) ([]ledger.Record, error)
	Get(ctx context.Context, id int64) (ledger.Record, error)
	Summary(ctx context.Context, runID string) (map[ledger.Status]int, error)
}

// Archive is the read side of the trade archive.
type Archive interface {
	Manifest(ctx context.Context, exchange, symbol string) (archive.Manifest, error)
	RangeTrades(ctx context.Context, exchange, symbol string, start, end int64) ([]trade.Trade, error)
}

type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr   string
	Ledger Ledger
	// Archive is optional; without it the archive routes answer 404 and
	// charts need the CSV on disk.
	Archive Archive
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("http server requires a ledger")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	NewRouter(cfg.Ledger, cfg.Archive).Register(router)
	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http api listening on %s", s.addr)

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

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
