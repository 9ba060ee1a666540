package apihttp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pumpscope/internal/chart"
	symbolpkg "pumpscope/internal/pkg/symbol"
	"pumpscope/internal/sink"
	"pumpscope/internal/store/archive"
	"pumpscope/internal/store/ledger"
	"pumpscope/internal/trade"
)

type Router struct {
	ledger  Ledger
	archive Archive
}

func NewRouter(l Ledger, a Archive) *Router {
	return &Router{ledger: l, archive: a}
}

func (r *Router) Register(engine *gin.Engine) {
	api := engine.Group("/api")
	api.GET("/downloads", r.handleListDownloads)
	api.GET("/downloads/:id", r.handleGetDownload)
	api.GET("/runs/:run_id", r.handleRunSummary)
	api.GET("/archive/:exchange/:symbol", r.handleArchive)
	engine.GET("/charts/:id", r.handleChart)
}

func (r *Router) handleListDownloads(c *gin.Context) {
	limit := 100
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}
	records, err := r.ledger.List(c.Request.Context(), ledger.Filter{
		RunID:    c.Query("run_id"),
		Exchange: c.Query("exchange"),
		Status:   ledger.Status(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloads": records})
}

func (r *Router) handleGetDownload(c *gin.Context) {
	rec, ok := r.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleRunSummary(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("run_id"))
	summary, err := r.ledger.Summary(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(summary) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "statuses": summary})
}

func (r *Router) handleChart(c *gin.Context) {
	rec, ok := r.lookup(c)
	if !ok {
		return
	}
	if rec.Status != ledger.StatusDone || rec.Path == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "download has no trade file", "status": rec.Status})
		return
	}
	trades, err := r.chartTrades(c.Request.Context(), rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var pumpTime time.Time
	if !rec.WindowStart.IsZero() && !rec.WindowEnd.IsZero() {
		if days, ok := rec.Params["days_before"].(float64); ok {
			pumpTime = rec.WindowStart.Add(time.Duration(days) * 24 * time.Hour)
		}
	}
	var buf bytes.Buffer
	err = chart.RenderHTML(&buf, chart.Input{
		Symbol:   rec.Symbol,
		Exchange: rec.Exchange,
		PumpTime: pumpTime,
		Candles:  chart.Bucket(trades, time.Minute),
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (r *Router) lookup(c *gin.Context) (ledger.Record, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return ledger.Record{}, false
	}
	rec, err := r.ledger.Get(c.Request.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return ledger.Record{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return ledger.Record{}, false
	}
	return rec, true
}

// chartTrades reads the download's CSV, falling back to the archive for the
// same window when the file has been removed.
func (r *Router) chartTrades(ctx context.Context, rec ledger.Record) ([]trade.Trade, error) {
	trades, err := sink.ReadCSV(rec.Path)
	if err == nil || !errors.Is(err, os.ErrNotExist) || r.archive == nil {
		return trades, err
	}
	if rec.WindowStart.IsZero() || rec.WindowEnd.IsZero() {
		return nil, err
	}
	return r.archive.RangeTrades(ctx, rec.Exchange, rec.Symbol, rec.WindowStart.UnixMilli(), rec.WindowEnd.UnixMilli())
}

type archivedTrade struct {
	ID        int64   `json:"id"`
	IDKind    string  `json:"id_kind"`
	Timestamp int64   `json:"timestamp"`
	Datetime  string  `json:"datetime"`
	Side      string  `json:"side"`
	Price     string  `json:"price"`
	Amount    string  `json:"amount"`
	BTCVolume float64 `json:"btc_volume"`
}

// handleArchive returns the manifest of one archived symbol and its trades in
// [start, end) (epoch ms). Without bounds the whole archive is returned.
func (r *Router) handleArchive(c *gin.Context) {
	if r.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade archive disabled"})
		return
	}
	exchange := strings.ToLower(strings.TrimSpace(c.Param("exchange")))
	symbol := symbolpkg.Normalize(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid symbol"})
		return
	}
	ctx := c.Request.Context()
	manifest, err := r.archive.Manifest(ctx, exchange, symbol)
	if errors.Is(err, archive.ErrNotArchived) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	start, ok := msQuery(c, "start", manifest.MinTime)
	if !ok {
		return
	}
	end, ok := msQuery(c, "end", manifest.MaxTime+1)
	if !ok {
		return
	}
	trades, err := r.archive.RangeTrades(ctx, exchange, symbol, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rows := make([]archivedTrade, len(trades))
	for i, t := range trades {
		rows[i] = archivedTrade{
			ID: t.ID.Value, IDKind: t.ID.Kind.String(), Timestamp: t.Timestamp, Datetime: t.Datetime,
			Side: string(t.Side), Price: t.Price.String(), Amount: t.Amount.String(), BTCVolume: t.BTCVolume,
		}
	}
	c.JSON(http.StatusOK, gin.H{"manifest": manifest, "trades": rows})
}

func msQuery(c *gin.Context, key string, fallback int64) (int64, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be epoch milliseconds"})
		return 0, false
	}
	return v, true
}
