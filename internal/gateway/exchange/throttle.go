package exchange

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled paces FetchTrades calls through a token bucket shared by every
// request made with the wrapped fetcher.
type Throttled struct {
	next    TradeFetcher
	limiter *rate.Limiter
}

// Throttle wraps next so that it issues at most perMin requests per minute.
// perMin <= 0 returns next unchanged.
func Throttle(next TradeFetcher, perMin int) TradeFetcher {
	if next == nil || perMin <= 0 {
		return next
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 1),
	}
}

func (t *Throttled) Name() string { return t.next.Name() }

func (t *Throttled) FetchTrades(ctx context.Context, req FetchRequest) ([]RawTrade, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.FetchTrades(ctx, req)
}
