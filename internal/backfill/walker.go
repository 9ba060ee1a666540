// Package backfill reconstructs the complete trade record of a symbol over a
// time window from a cursor-paginated trades endpoint.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pumpscope/internal/gateway/exchange"
	"pumpscope/internal/logger"
	"pumpscope/internal/trade"
)

const (
	defaultRetryDelay = 5 * time.Second
	defaultStallStep  = 10 * time.Minute
)

// Options tunes the walker. Zero values fall back to the defaults: 1000-trade
// pages, a 5s pause before the single retry, a 10 minute stall step.
type Options struct {
	PageLimit  int
	RetryDelay time.Duration
	StallStep  time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageLimit <= 0 || o.PageLimit > exchange.MaxPageLimit {
		o.PageLimit = exchange.MaxPageLimit
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.StallStep <= 0 {
		o.StallStep = defaultStallStep
	}
	return o
}

// Walker downloads trade windows through one exchange client. It holds no
// per-download state and issues one request at a time.
type Walker struct {
	client exchange.TradeFetcher
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(client exchange.TradeFetcher, opts Options) *Walker {
	return &Walker{
		client: client,
		opts:   opts.withDefaults(),
		sleep:  sleepWithContext,
	}
}

// Download returns every trade of symbol with start <= timestamp < end, unique
// by id and ordered by timestamp. An absent-result is reported as an error
// matching ErrAbsent; any other error is fatal for this download.
func (w *Walker) Download(ctx context.Context, symbol string, start, end int64) ([]trade.Trade, error) {
	if w == nil || w.client == nil {
		return nil, fmt.Errorf("backfill walker has no exchange client")
	}
	if start >= end {
		return []trade.Trade{}, nil
	}
	log := logger.With("exchange", w.client.Name(), "symbol", symbol)
	log.Infof("downloading %s from %s to %s", symbol, trade.FormatDatetime(start), trade.FormatDatetime(end))

	oldestID, oldestTs, err := w.locate(ctx, symbol)
	if err != nil {
		return nil, err
	}
	oldestID, err = w.searchBackward(ctx, log, symbol, oldestID, oldestTs, start)
	if err != nil {
		return nil, err
	}
	return w.fillForward(ctx, log, symbol, oldestID, start, end)
}

// locate fetches the most recent page and returns its oldest trade.
func (w *Walker) locate(ctx context.Context, symbol string) (int64, int64, error) {
	page, err := w.fetch(ctx, exchange.Recent(symbol, w.opts.PageLimit))
	if err != nil {
		return 0, 0, err
	}
	if len(page) == 0 {
		return 0, 0, fmt.Errorf("%w (%s)", ErrEmptyHistory, symbol)
	}
	id, err := leadingID(page)
	if err != nil {
		return 0, 0, err
	}
	return id.Value, page[0].Timestamp, nil
}

// searchBackward steps one page at a time towards older ids until the leading
// trade of a page is at or before start.
func (w *Walker) searchBackward(ctx context.Context, log logger.Entry, symbol string, oldestID, oldestTs, start int64) (int64, error) {
	limit := int64(w.opts.PageLimit)
	for oldestTs > start {
		from := oldestID - limit
		if from < 0 {
			from = 0
		}
		page, err := w.fetch(ctx, exchange.Cursor(symbol, w.opts.PageLimit, from))
		if err != nil {
			return 0, err
		}
		if len(page) == 0 {
			log.Warnf("backward search got an empty page at id %d; earliest available trade %s", from, trade.FormatDatetime(oldestTs))
			return 0, fmt.Errorf("%w (%s at id %d)", ErrStuckCursor, symbol, oldestID)
		}
		id, err := leadingID(page)
		if err != nil {
			return 0, err
		}
		if id.Value >= oldestID {
			log.Warnf("history starts at %s, after window start %s", trade.FormatDatetime(page[0].Timestamp), trade.FormatDatetime(start))
			return 0, fmt.Errorf("%w (%s at id %d)", ErrStuckCursor, symbol, oldestID)
		}
		oldestID, oldestTs = id.Value, page[0].Timestamp
	}
	return oldestID, nil
}

// fillForward walks ascending ids from cursor until the since watermark
// reaches end or the exchange runs out of trades.
func (w *Walker) fillForward(ctx context.Context, log logger.Entry, symbol string, cursor, start, end int64) ([]trade.Trade, error) {
	stall := w.opts.StallStep.Milliseconds()
	since := start
	out := make([]trade.Trade, 0)
	var lastEmitted int64
	emitted := false

	for since < end {
		log.Debugf("since %s (%.1f%%)", trade.FormatDatetime(since), progressPercent(since-start, end-start))
		page, err := w.fetch(ctx, exchange.Cursor(symbol, w.opts.PageLimit, cursor))
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		ids, err := resolvePage(page)
		if err != nil {
			return nil, err
		}
		next := ids[len(ids)-1].Value + 1
		if next <= cursor {
			log.Warnf("forward cursor did not advance past id %d; stopping", cursor)
			break
		}
		cursor = next

		// The watermark only moves forward: a page that does not end past it
		// pushes it by the stall step so a flat stretch cannot loop forever.
		if lastTs := page[len(page)-1].Timestamp; lastTs > since {
			since = lastTs
		} else {
			since += stall
		}

		for i, raw := range page {
			if raw.Timestamp < start || raw.Timestamp >= end {
				continue
			}
			if emitted && ids[i].Value <= lastEmitted {
				continue
			}
			out = append(out, toTrade(symbol, raw, ids[i]))
			lastEmitted, emitted = ids[i].Value, true
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	log.Infof("collected %d trades", len(out))
	return out, nil
}

// fetch is the single request path for all phases: one retry after the retry
// delay on a timeout, no retry for anything else.
func (w *Walker) fetch(ctx context.Context, req exchange.FetchRequest) ([]exchange.RawTrade, error) {
	page, err := w.client.FetchTrades(ctx, req)
	if err == nil {
		return page, nil
	}
	if !exchange.IsTimeout(err) || ctx.Err() != nil {
		return nil, classify(req, err)
	}
	logger.Warnf("[%s] %s request timed out, retrying in %s", w.client.Name(), req.Symbol, w.opts.RetryDelay)
	if serr := w.sleep(ctx, w.opts.RetryDelay); serr != nil {
		return nil, serr
	}
	page, err = w.client.FetchTrades(ctx, req)
	if err != nil {
		return nil, classify(req, err)
	}
	return page, nil
}

func classify(req exchange.FetchRequest, err error) error {
	if errors.Is(err, exchange.ErrSymbolNotFound) {
		return fmt.Errorf("%w: %w", ErrSymbolNotFound, err)
	}
	mode := "recent"
	if req.FromID != nil {
		mode = fmt.Sprintf("fromId=%d", *req.FromID)
	}
	return fmt.Errorf("fetch %s trades (%s): %w", req.Symbol, mode, exchange.ClassifyTransport(err))
}

func leadingID(page []exchange.RawTrade) (trade.ID, error) {
	id, err := trade.ResolveID(page[0].ID, page[0].Order)
	if err != nil {
		return trade.ID{}, fmt.Errorf("%w: %w", ErrMalformedTrade, err)
	}
	return id, nil
}

func resolvePage(page []exchange.RawTrade) ([]trade.ID, error) {
	ids := make([]trade.ID, len(page))
	for i, raw := range page {
		id, err := trade.ResolveID(raw.ID, raw.Order)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrMalformedTrade, i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func toTrade(symbol string, raw exchange.RawTrade, id trade.ID) trade.Trade {
	sym := raw.Symbol
	if sym == "" {
		sym = symbol
	}
	dt := raw.Datetime
	if dt == "" {
		dt = trade.FormatDatetime(raw.Timestamp)
	}
	return trade.Trade{
		Symbol:    sym,
		ID:        id,
		Timestamp: raw.Timestamp,
		Datetime:  dt,
		Side:      raw.Side,
		Price:     raw.Price,
		Amount:    raw.Amount,
		BTCVolume: trade.Volume(raw.Price, raw.Amount),
	}
}

// progressPercent treats an empty total as complete.
func progressPercent(done, total int64) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(done) * 100 / float64(total)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
