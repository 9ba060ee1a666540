// Package kucoin reads spot trade history through kucoin-go-sdk.
//
// KuCoin only serves the most recent page of /api/v1/market/histories and has
// no id cursor, so cursor requests are answered from that page filtered to
// ids at or above the cursor.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	kucoin "github.com/Kucoin/kucoin-go-sdk"
	"github.com/shopspring/decimal"

	"pumpscope/internal/gateway/exchange"
	symbolpkg "pumpscope/internal/pkg/symbol"
	"pumpscope/internal/trade"
)

const defaultRESTBaseURL = "https://api.kucoin.com"

var notFoundCodes = map[string]struct{}{
	"400100": {},
	"900001": {},
}

type historiesFunc func(symbol string) (*kucoin.ApiResponse, error)

type Source struct {
	cfg       exchange.Config
	histories historiesFunc
}

func New(cfg exchange.Config) (*Source, error) {
	final := cfg
	final.RESTBaseURL = strings.TrimRight(strings.TrimSpace(final.RESTBaseURL), "/")
	if final.RESTBaseURL == "" {
		final.RESTBaseURL = defaultRESTBaseURL
	}
	if final.HTTPTimeout <= 0 {
		final.HTTPTimeout = 15 * time.Second
	}
	opts := []kucoin.ApiServiceOption{kucoin.ApiBaseURIOption(final.RESTBaseURL)}
	if final.APIKey != "" {
		opts = append(opts, kucoin.ApiKeyOption(final.APIKey))
	}
	svc := kucoin.NewApiService(opts...)
	return &Source{cfg: final, histories: svc.TradeHistories}, nil
}

func (s *Source) Name() string { return "kucoin" }

func (s *Source) FetchTrades(ctx context.Context, req exchange.FetchRequest) ([]exchange.RawTrade, error) {
	internal := symbolpkg.Normalize(req.Symbol)
	if internal == "" {
		return nil, fmt.Errorf("kucoin: invalid symbol %q", req.Symbol)
	}
	rsp, err := s.call(ctx, symbolpkg.Dash.ToExchange(internal))
	if err != nil {
		return nil, err
	}
	if rsp.Code != kucoin.ApiSuccess {
		if _, ok := notFoundCodes[rsp.Code]; ok {
			return nil, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, rsp.Message)
		}
		return nil, fmt.Errorf("kucoin api error %s: %s", rsp.Code, rsp.Message)
	}
	var rows kucoin.TradeHistoriesModel
	if len(rsp.RawData) > 0 {
		if err := json.Unmarshal(rsp.RawData, &rows); err != nil {
			return nil, fmt.Errorf("kucoin: decode trade histories: %w", err)
		}
	}

	out := make([]exchange.RawTrade, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		raw, err := convertTrade(internal, row)
		if err != nil {
			return nil, err
		}
		if req.FromID != nil && raw.ID != nil && *raw.ID < *req.FromID {
			continue
		}
		out = append(out, raw)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return idOf(out[i]) < idOf(out[j])
	})
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// call bounds the blocking SDK request by ctx and the configured timeout.
func (s *Source) call(ctx context.Context, symbol string) (*kucoin.ApiResponse, error) {
	type result struct {
		rsp *kucoin.ApiResponse
		err error
	}
	done := make(chan result, 1)
	go func() {
		rsp, err := s.histories(symbol)
		done <- result{rsp: rsp, err: err}
	}()

	timer := time.NewTimer(s.cfg.HTTPTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: kucoin trade histories after %s", exchange.ErrTimeout, s.cfg.HTTPTimeout)
	case r := <-done:
		if r.err != nil {
			return nil, exchange.ClassifyTransport(r.err)
		}
		if r.rsp == nil {
			return nil, fmt.Errorf("kucoin: empty response")
		}
		return r.rsp, nil
	}
}

func convertTrade(symbol string, row *kucoin.TradeHistoryModel) (exchange.RawTrade, error) {
	raw := exchange.RawTrade{Symbol: symbol}
	if seq, err := strconv.ParseInt(strings.TrimSpace(row.Sequence), 10, 64); err == nil {
		raw.ID = &seq
	}
	// Time is reported in nanoseconds.
	raw.Timestamp = row.Time / int64(time.Millisecond)
	side, err := trade.ParseSide(row.Side)
	if err != nil {
		return exchange.RawTrade{}, fmt.Errorf("kucoin: trade %s: %w", row.Sequence, err)
	}
	raw.Side = side
	if raw.Price, err = decimal.NewFromString(row.Price); err != nil {
		return exchange.RawTrade{}, fmt.Errorf("kucoin: trade %s price: %w", row.Sequence, err)
	}
	if raw.Amount, err = decimal.NewFromString(row.Size); err != nil {
		return exchange.RawTrade{}, fmt.Errorf("kucoin: trade %s size: %w", row.Sequence, err)
	}
	return raw, nil
}

func idOf(t exchange.RawTrade) int64 {
	if t.ID != nil {
		return *t.ID
	}
	return 0
}
