package binance

import (
	"strings"
	"time"

	"pumpscope/internal/gateway/exchange"
)

const defaultRESTBaseURL = "https://api.binance.com"

func withDefaults(c exchange.Config) exchange.Config {
	out := c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultRESTBaseURL
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
