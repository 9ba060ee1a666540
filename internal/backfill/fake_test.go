package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pumpscope/internal/gateway/exchange"
	"pumpscope/internal/trade"
)

var t0 = time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

const minute = int64(time.Minute / time.Millisecond)

// linearExchange serves ids first..last, one trade per minute starting at t0
// for id first. It can pretend a symbol is missing and can ignore cursors.
type linearExchange struct {
	first, last   int64
	missing       map[string]bool
	ignoreCursor  bool
	useOrderField bool
	tsOf          func(id int64) int64

	mu      sync.Mutex
	cursors []int64
	recent  int
}

func newLinear(first, last int64) *linearExchange {
	return &linearExchange{first: first, last: last}
}

func (l *linearExchange) Name() string { return "fake" }

func (l *linearExchange) timestamp(id int64) int64 {
	if l.tsOf != nil {
		return l.tsOf(id)
	}
	return t0 + (id-l.first)*minute
}

func (l *linearExchange) FetchTrades(_ context.Context, req exchange.FetchRequest) ([]exchange.RawTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.missing[req.Symbol] {
		return nil, exchange.ErrSymbolNotFound
	}
	limit := int64(req.Limit)
	var from int64
	if req.FromID == nil || l.ignoreCursor {
		l.recent++
		from = l.last - limit + 1
	} else {
		l.cursors = append(l.cursors, *req.FromID)
		from = *req.FromID
	}
	if from < l.first {
		from = l.first
	}
	to := from + limit - 1
	if to > l.last {
		to = l.last
	}
	out := make([]exchange.RawTrade, 0, limit)
	for id := from; id <= to; id++ {
		out = append(out, l.raw(req.Symbol, id))
	}
	return out, nil
}

func (l *linearExchange) raw(symbol string, id int64) exchange.RawTrade {
	v := id
	side := trade.SideBuy
	if id%2 == 0 {
		side = trade.SideSell
	}
	rt := exchange.RawTrade{
		Symbol:    symbol,
		Timestamp: l.timestamp(id),
		Side:      side,
		Price:     decimal.New(100+id%7, -8),
		Amount:    decimal.New(id%13+1, 0),
	}
	if l.useOrderField {
		rt.Order = &v
	} else {
		rt.ID = &v
	}
	return rt
}

func (l *linearExchange) cursorLog() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.cursors...)
}

func noSleep(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if recorded != nil {
			*recorded = append(*recorded, d)
		}
		return nil
	}
}
