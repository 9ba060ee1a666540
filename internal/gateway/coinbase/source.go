// Package coinbase reads spot trade history from the Coinbase Exchange REST API.
package coinbase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"pumpscope/internal/gateway/exchange"
	symbolpkg "pumpscope/internal/pkg/symbol"
	"pumpscope/internal/trade"
)

const defaultRESTBaseURL = "https://api.exchange.coinbase.com"

// Source pages /products/{id}/trades. The API paginates newest first with
// after=<trade_id> returning ids strictly below it, so cursor mode asks for
// after=FromID+limit and reverses the page.
type Source struct {
	cfg  exchange.Config
	http *http.Client
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
	httpClient, err := exchange.NewHTTPClient(final)
	if err != nil {
		return nil, fmt.Errorf("coinbase: %w", err)
	}
	return &Source{cfg: final, http: httpClient}, nil
}

func (s *Source) Name() string { return "coinbase" }

func (s *Source) FetchTrades(ctx context.Context, req exchange.FetchRequest) ([]exchange.RawTrade, error) {
	internal := symbolpkg.Normalize(req.Symbol)
	if internal == "" {
		return nil, fmt.Errorf("coinbase: invalid symbol %q", req.Symbol)
	}
	limit := req.Limit
	if limit <= 0 || limit > exchange.MaxPageLimit {
		limit = exchange.MaxPageLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if req.FromID != nil {
		q.Set("after", strconv.FormatInt(*req.FromID+int64(limit), 10))
	}
	endpoint := fmt.Sprintf("%s/products/%s/trades?%s", s.cfg.RESTBaseURL, url.PathEscape(symbolpkg.Dash.ToExchange(internal)), q.Encode())

	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	rows := gjson.ParseBytes(body)
	if !rows.IsArray() {
		return nil, fmt.Errorf("coinbase: unexpected trades payload: %.120s", string(body))
	}
	out := make([]exchange.RawTrade, 0, len(rows.Array()))
	var convErr error
	rows.ForEach(func(_, row gjson.Result) bool {
		raw, err := convertTrade(internal, row)
		if err != nil {
			convErr = err
			return false
		}
		if req.FromID != nil && raw.ID != nil && *raw.ID < *req.FromID {
			return true
		}
		out = append(out, raw)
		return true
	})
	if convErr != nil {
		return nil, convErr
	}
	sort.SliceStable(out, func(i, j int) bool {
		return idOf(out[i]) < idOf(out[j])
	})
	return out, nil
}

func (s *Source) get(ctx context.Context, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "pumpscope")
	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, exchange.ClassifyTransport(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, exchange.ClassifyTransport(err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, gjson.GetBytes(body, "message").String())
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := gjson.GetBytes(body, "message").String()
		if strings.EqualFold(msg, "NotFound") {
			return nil, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, msg)
		}
		return nil, fmt.Errorf("coinbase: status %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}

func convertTrade(symbol string, row gjson.Result) (exchange.RawTrade, error) {
	raw := exchange.RawTrade{Symbol: symbol}
	if v := row.Get("trade_id"); v.Exists() {
		id := v.Int()
		raw.ID = &id
	}
	ts, err := time.Parse(time.RFC3339Nano, row.Get("time").String())
	if err != nil {
		return exchange.RawTrade{}, fmt.Errorf("coinbase: trade %s time: %w", row.Get("trade_id").String(), err)
	}
	raw.Timestamp = ts.UnixMilli()
	// side names the maker order; the taker went the other way.
	maker, err := trade.ParseSide(row.Get("side").String())
	if err != nil {
		return exchange.RawTrade{}, fmt.Errorf("coinbase: trade %s: %w", row.Get("trade_id").String(), err)
	}
	raw.Side = trade.SideBuy
	if maker == trade.SideBuy {
		raw.Side = trade.SideSell
	}
	if raw.Price, err = decimal.NewFromString(row.Get("price").String()); err != nil {
		return exchange.RawTrade{}, fmt.Errorf("coinbase: trade price: %w", err)
	}
	if raw.Amount, err = decimal.NewFromString(row.Get("size").String()); err != nil {
		return exchange.RawTrade{}, fmt.Errorf("coinbase: trade size: %w", err)
	}
	return raw, nil
}

func idOf(t exchange.RawTrade) int64 {
	if t.ID != nil {
		return *t.ID
	}
	return 0
}
