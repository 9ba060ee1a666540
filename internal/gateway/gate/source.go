package gate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"
	"github.com/shopspring/decimal"

	"pumpscope/internal/gateway/exchange"
	symbolpkg "pumpscope/internal/pkg/symbol"
	"pumpscope/internal/trade"
)

const defaultGateREST = "https://api.gateio.ws/api/v4"

var notFoundLabels = map[string]struct{}{
	"INVALID_CURRENCY_PAIR":   {},
	"INVALID_CURRENCY":        {},
	"CURRENCY_PAIR_NOT_FOUND": {},
}

// Source pages spot trades through SpotApi.ListTrades. Cursor mode maps to
// last_id=FromID-1 with reverse=false so the page starts at FromID.
type Source struct {
	cfg  exchange.Config
	rest *gateapi.APIClient
}

func New(cfg exchange.Config) (*Source, error) {
	final := withDefaults(cfg)
	restClient, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &Source{cfg: final, rest: restClient}, nil
}

func newRESTClient(cfg exchange.Config) (*gateapi.APIClient, error) {
	conf := gateapi.NewConfiguration()
	conf.BasePath = cfg.RESTBaseURL
	httpClient, err := exchange.NewHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	conf.HTTPClient = httpClient
	return gateapi.NewAPIClient(conf), nil
}

func (s *Source) Name() string { return "gate" }

func (s *Source) FetchTrades(ctx context.Context, req exchange.FetchRequest) ([]exchange.RawTrade, error) {
	internal := symbolpkg.Normalize(req.Symbol)
	if internal == "" {
		return nil, fmt.Errorf("gate: invalid symbol %q", req.Symbol)
	}
	limit := req.Limit
	if limit <= 0 || limit > exchange.MaxPageLimit {
		limit = exchange.MaxPageLimit
	}
	opts := &gateapi.ListTradesOpts{
		Limit: optional.NewInt32(int32(limit)),
	}
	if req.FromID != nil {
		opts.LastId = optional.NewString(strconv.FormatInt(*req.FromID-1, 10))
		opts.Reverse = optional.NewBool(false)
	}

	trades, _, err := s.rest.SpotApi.ListTrades(ctx, symbolpkg.Gate.ToExchange(internal), opts)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]exchange.RawTrade, 0, len(trades))
	for _, t := range trades {
		raw, err := convertTrade(internal, t)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return idOf(out[i]) < idOf(out[j])
	})
	return out, nil
}

func convertTrade(symbol string, t gateapi.Trade) (exchange.RawTrade, error) {
	raw := exchange.RawTrade{Symbol: symbol}
	if id, ok := parseID(t.Id); ok {
		raw.ID = &id
	}
	if order, ok := parseID(t.OrderId); ok {
		raw.Order = &order
	}
	ts, err := parseTimestamp(t.CreateTimeMs, t.CreateTime)
	if err != nil {
		return exchange.RawTrade{}, fmt.Errorf("gate: trade %s: %w", t.Id, err)
	}
	raw.Timestamp = ts
	side, err := trade.ParseSide(t.Side)
	if err != nil {
		return exchange.RawTrade{}, fmt.Errorf("gate: trade %s: %w", t.Id, err)
	}
	raw.Side = side
	if raw.Price, err = decimal.NewFromString(t.Price); err != nil {
		return exchange.RawTrade{}, fmt.Errorf("gate: trade %s price: %w", t.Id, err)
	}
	if raw.Amount, err = decimal.NewFromString(t.Amount); err != nil {
		return exchange.RawTrade{}, fmt.Errorf("gate: trade %s amount: %w", t.Id, err)
	}
	return raw, nil
}

func parseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseTimestamp prefers create_time_ms, which older API versions report as
// fractional milliseconds and some mirrors as seconds.
func parseTimestamp(ms, sec string) (int64, error) {
	if v, err := strconv.ParseFloat(strings.TrimSpace(ms), 64); err == nil && v > 0 {
		if v < 1e12 {
			v *= 1000
		}
		return int64(v), nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(sec), 64)
	if err != nil {
		return 0, fmt.Errorf("bad create_time %q", sec)
	}
	return int64(v * 1000), nil
}

func idOf(t exchange.RawTrade) int64 {
	if t.ID != nil {
		return *t.ID
	}
	if t.Order != nil {
		return *t.Order
	}
	return 0
}

func mapError(err error) error {
	var apiErr gateapi.GateAPIError
	if errors.As(err, &apiErr) {
		if _, ok := notFoundLabels[strings.ToUpper(apiErr.Label)]; ok {
			return fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, apiErr.Message)
		}
		return fmt.Errorf("gate api error %s: %s", apiErr.Label, apiErr.Message)
	}
	return exchange.ClassifyTransport(err)
}
