package gateway

import (
	"fmt"
	"strings"

	"pumpscope/internal/config"
	"pumpscope/internal/gateway/binance"
	"pumpscope/internal/gateway/coinbase"
	"pumpscope/internal/gateway/exchange"
	"pumpscope/internal/gateway/gate"
	"pumpscope/internal/gateway/kucoin"
)

// Supported lists the exchange names NewFetcher accepts.
var Supported = []string{"binance", "gate", "coinbase", "kucoin"}

// NewFetcher builds the trade fetcher for an exchange name as it appears in
// the events file.
func NewFetcher(name string, cfg config.ExchangesConfig) (exchange.TradeFetcher, error) {
	ex, ok := cfg.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
	ecfg := exchange.Config{
		RESTBaseURL:  ex.RESTBaseURL,
		HTTPTimeout:  ex.HTTPTimeout,
		ProxyEnabled: ex.ProxyEnabled,
		RESTProxyURL: ex.RESTProxyURL,
		APIKey:       ex.APIKey,
	}
	var (
		f   exchange.TradeFetcher
		err error
	)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binance":
		f, err = binance.New(ecfg)
	case "gate", "gateio":
		f, err = gate.New(ecfg)
	case "coinbase", "coinbaseexchange":
		f, err = coinbase.New(ecfg)
	case "kucoin":
		f, err = kucoin.New(ecfg)
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
	if err != nil {
		return nil, err
	}
	return exchange.Throttle(f, ex.RateLimitPerMin), nil
}
