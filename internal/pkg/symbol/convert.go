package symbol

import "strings"

// joinConverter renders BASE<sep>QUOTE and reads back any form Parse accepts.
type joinConverter struct {
	sep    string
	format Format
}

func (c joinConverter) ToExchange(internal string) string {
	sym := Parse(internal)
	if sym.Base == "" || sym.Quote == "" {
		// unparseable input is passed through so the exchange reports it as unknown
		return strings.ToUpper(strings.TrimSpace(internal))
	}
	return sym.Base + c.sep + sym.Quote
}

func (c joinConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

func (c joinConverter) Format() Format { return c.format }

var (
	// Binance: XYZBTC
	Binance Converter = joinConverter{sep: "", format: FormatBinance}
	// Gate: XYZ_BTC
	Gate Converter = joinConverter{sep: "_", format: FormatGate}
	// Dash: XYZ-BTC, the product id form of Coinbase and KuCoin.
	Dash Converter = joinConverter{sep: "-", format: FormatDash}
)

// For returns the converter an exchange expects, defaulting to the internal form.
func For(exchange string) Converter {
	switch strings.ToLower(strings.TrimSpace(exchange)) {
	case "binance":
		return Binance
	case "gate", "gateio":
		return Gate
	case "coinbase", "coinbaseexchange", "kucoin":
		return Dash
	default:
		return joinConverter{sep: "/", format: FormatInternal}
	}
}
