package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pumpscope/internal/backfill"
	"pumpscope/internal/events"
	"pumpscope/internal/logger"
	"pumpscope/internal/pkg/circuit"
	symbolpkg "pumpscope/internal/pkg/symbol"
	"pumpscope/internal/sink"
	"pumpscope/internal/store/ledger"
	"pumpscope/internal/trade"
)

// ErrBatchAborted is returned when the circuit breaker stops a batch early.
var ErrBatchAborted = errors.New("batch aborted: too many consecutive failures")

// Downloader is satisfied by *backfill.Walker.
type Downloader interface {
	Download(ctx context.Context, symbol string, start, end int64) ([]trade.Trade, error)
}

type LedgerWriter interface {
	Append(ctx context.Context, rec *ledger.Record) error
}

type TradeArchiver interface {
	InsertTrades(ctx context.Context, exchange, symbol string, trades []trade.Trade) (int, error)
}

type RunnerConfig struct {
	Exchange   string
	QuoteAsset string
	DataDir    string
	DaysBefore int
	DaysAfter  int
	PageLimit  int
}

// Report summarises one batch.
type Report struct {
	RunID    string
	Exchange string
	Total    int
	Done     int
	Absent   int
	Failed   int
	Skipped  int
	Rows     int
	Aborted  bool
	Elapsed  time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("run=%s exchange=%s total=%d done=%d absent=%d failed=%d skipped=%d rows=%d aborted=%t elapsed=%s",
		r.RunID, r.Exchange, r.Total, r.Done, r.Absent, r.Failed, r.Skipped, r.Rows, r.Aborted, r.Elapsed.Round(time.Millisecond))
}

// Runner downloads the trade window of every event, one at a time, and writes
// one CSV per event.
type Runner struct {
	cfg        RunnerConfig
	downloader Downloader
	ledger     LedgerWriter
	archive    TradeArchiver
	breaker    *circuit.Breaker
	now        func() time.Time
}

type RunnerOption func(*Runner)

func WithLedger(l LedgerWriter) RunnerOption {
	return func(r *Runner) { r.ledger = l }
}

func WithArchive(a TradeArchiver) RunnerOption {
	return func(r *Runner) { r.archive = a }
}

func WithBreaker(b *circuit.Breaker) RunnerOption {
	return func(r *Runner) { r.breaker = b }
}

func NewRunner(cfg RunnerConfig, d Downloader, opts ...RunnerOption) *Runner {
	r := &Runner{cfg: cfg, downloader: d, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run processes list in order. Events whose output file exists are skipped.
// Absent results are logged and never written. The batch stops on context
// cancellation or when the breaker opens.
func (r *Runner) Run(ctx context.Context, list []events.Event) (Report, error) {
	rep := Report{RunID: ledger.NewRunID(), Exchange: r.cfg.Exchange, Total: len(list)}
	began := r.now()

	log := logger.With("run", rep.RunID, "exchange", r.cfg.Exchange)
	log.Infof("batch started: %d events, window -%dd/+%dd", len(list), r.cfg.DaysBefore, r.cfg.DaysAfter)

	for i, ev := range list {
		if err := ctx.Err(); err != nil {
			rep.Elapsed = r.now().Sub(began)
			return rep, err
		}
		if r.breaker != nil && !r.breaker.Allow() {
			rep.Aborted = true
			break
		}
		status, rows := r.runOne(ctx, log.With("event", fmt.Sprintf("%d/%d", i+1, len(list))), rep.RunID, ev)
		if err := ctx.Err(); err != nil {
			rep.Elapsed = r.now().Sub(began)
			return rep, err
		}
		switch status {
		case ledger.StatusDone:
			rep.Done++
			rep.Rows += rows
		case ledger.StatusAbsent:
			rep.Absent++
		case ledger.StatusSkipped:
			rep.Skipped++
		case ledger.StatusFailed:
			rep.Failed++
		}
		if r.breaker != nil && r.breaker.State() == circuit.StateOpen {
			rep.Aborted = true
			break
		}
	}
	rep.Elapsed = r.now().Sub(began)
	log.Infof("batch finished: %s", rep)
	if rep.Aborted {
		return rep, fmt.Errorf("%w (%d failed)", ErrBatchAborted, rep.Failed)
	}
	return rep, nil
}

func (r *Runner) runOne(ctx context.Context, log logger.Entry, runID string, ev events.Event) (ledger.Status, int) {
	started := r.now()
	symbol := symbolpkg.Pair(ev.Symbol, r.cfg.QuoteAsset)
	path := ev.OutputPath(r.cfg.DataDir)
	rec := &ledger.Record{
		RunID:     runID,
		Exchange:  r.cfg.Exchange,
		Symbol:    symbol,
		EventKey:  ev.Key(),
		Path:      path,
		StartedAt: started.UTC(),
		Params: map[string]any{
			"days_before": r.cfg.DaysBefore,
			"days_after":  r.cfg.DaysAfter,
			"quote":       r.cfg.QuoteAsset,
			"page_limit":  r.cfg.PageLimit,
			"market":      symbolpkg.For(r.cfg.Exchange).ToExchange(symbol),
		},
	}
	log = log.With("symbol", symbol, "pump", ev.Key())

	finish := func(status ledger.Status, rows int, err error) (ledger.Status, int) {
		rec.Status = status
		rec.Rows = rows
		if err != nil {
			rec.Error = err.Error()
		}
		if status != ledger.StatusDone {
			rec.Path = ""
		}
		rec.FinishedAt = r.now().UTC()
		r.record(ctx, log, rec)
		return status, rows
	}

	if symbol == "" {
		log.Warnf("skipping event with empty symbol")
		return finish(ledger.StatusFailed, 0, fmt.Errorf("empty symbol"))
	}
	if sink.Exists(path) {
		log.Infof("output %s exists, skipping", path)
		rec.Path = path
		return finish(ledger.StatusSkipped, 0, nil)
	}
	start, end, err := ev.Window(r.cfg.DaysBefore, r.cfg.DaysAfter)
	if err != nil {
		log.Warnf("bad event time: %v", err)
		return finish(ledger.StatusFailed, 0, err)
	}
	rec.WindowStart = time.UnixMilli(start).UTC()
	rec.WindowEnd = time.UnixMilli(end).UTC()

	trades, err := r.downloader.Download(ctx, symbol, start, end)
	if err != nil {
		if backfill.IsAbsent(err) {
			log.Warnf("no history: %v", err)
			if r.breaker != nil {
				r.breaker.RecordSuccess()
			}
			return finish(ledger.StatusAbsent, 0, err)
		}
		log.Errorf("download failed: %v", err)
		if r.breaker != nil && ctx.Err() == nil {
			r.breaker.RecordFailure()
		}
		return finish(ledger.StatusFailed, 0, err)
	}
	if r.breaker != nil {
		r.breaker.RecordSuccess()
	}

	if err := sink.WriteCSV(path, trades); err != nil {
		log.Errorf("write %s: %v", path, err)
		return finish(ledger.StatusFailed, 0, err)
	}
	log.Infof("wrote %d trades to %s", len(trades), path)

	if r.archive != nil && len(trades) > 0 {
		if _, err := r.archive.InsertTrades(ctx, r.cfg.Exchange, symbol, trades); err != nil {
			log.Warnf("archive %s: %v", symbol, err)
		}
	}
	return finish(ledger.StatusDone, len(trades), nil)
}

func (r *Runner) record(ctx context.Context, log logger.Entry, rec *ledger.Record) {
	if r.ledger == nil {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := r.ledger.Append(ctx, rec); err != nil {
		log.Warnf("ledger append: %v", err)
	}
}
