package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"pumpscope/internal/gateway/exchange"
	symbolpkg "pumpscope/internal/pkg/symbol"
	"pumpscope/internal/trade"
)

// codeInvalidSymbol is returned by the spot API for unknown pairs.
const codeInvalidSymbol = -1121

// Source pages spot trades through GET /api/v3/historicalTrades.
type Source struct {
	cfg    exchange.Config
	client *gobinance.Client
}

func New(cfg exchange.Config) (*Source, error) {
	final := withDefaults(cfg)
	client := gobinance.NewClient(final.APIKey, "")
	client.BaseURL = final.RESTBaseURL
	httpClient, err := exchange.NewHTTPClient(final)
	if err != nil {
		return nil, err
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

func (s *Source) Name() string { return "binance" }

func (s *Source) FetchTrades(ctx context.Context, req exchange.FetchRequest) ([]exchange.RawTrade, error) {
	internal := symbolpkg.Normalize(req.Symbol)
	if internal == "" {
		return nil, fmt.Errorf("binance: invalid symbol %q", req.Symbol)
	}
	limit := req.Limit
	if limit <= 0 || limit > exchange.MaxPageLimit {
		limit = exchange.MaxPageLimit
	}
	svc := s.client.NewHistoricalTradesService().
		Symbol(symbolpkg.Binance.ToExchange(internal)).
		Limit(limit)
	if req.FromID != nil {
		svc = svc.FromID(*req.FromID)
	}
	trades, err := svc.Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]exchange.RawTrade, 0, len(trades))
	for _, t := range trades {
		if t == nil {
			continue
		}
		raw, err := convertTrade(internal, t)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func convertTrade(symbol string, t *gobinance.Trade) (exchange.RawTrade, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return exchange.RawTrade{}, fmt.Errorf("binance: trade %d price: %w", t.ID, err)
	}
	amount, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return exchange.RawTrade{}, fmt.Errorf("binance: trade %d qty: %w", t.ID, err)
	}
	// The taker sold into a resting bid when the buyer was the maker.
	side := trade.SideBuy
	if t.IsBuyerMaker {
		side = trade.SideSell
	}
	id := t.ID
	return exchange.RawTrade{
		Symbol:    symbol,
		ID:        &id,
		Timestamp: t.Time,
		Side:      side,
		Price:     price,
		Amount:    amount,
	}, nil
}

func mapError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == codeInvalidSymbol || strings.Contains(strings.ToLower(apiErr.Message), "invalid symbol") {
			return fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, apiErr.Message)
		}
		return fmt.Errorf("binance api error %d: %s", apiErr.Code, apiErr.Message)
	}
	return exchange.ClassifyTransport(err)
}
