package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Symbol
	}{
		{"xyz/btc", Symbol{"XYZ", "BTC"}},
		{"XYZBTC", Symbol{"XYZ", "BTC"}},
		{"XYZ_BTC", Symbol{"XYZ", "BTC"}},
		{"XYZ-USD", Symbol{"XYZ", "USD"}},
		{"ETH/USDT:USDT", Symbol{"ETH", "USDT"}},
		{"", Symbol{}},
		{"BTC", Symbol{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Parse(tc.in), tc.in)
	}
}

func TestPair(t *testing.T) {
	assert.Equal(t, "XYZ/BTC", Pair("xyz", "btc"))
	assert.Equal(t, "XYZ/ETH", Pair("XYZ/ETH", "BTC"))
	assert.Equal(t, "", Pair(" ", "BTC"))
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "XYZBTC", Binance.ToExchange("XYZ/BTC"))
	assert.Equal(t, "XYZ/BTC", Binance.FromExchange("XYZBTC"))
	assert.Equal(t, "XYZ_BTC", Gate.ToExchange("XYZ/BTC"))
	assert.Equal(t, "XYZ/BTC", Gate.FromExchange("xyz_btc"))
	assert.Equal(t, "XYZ-BTC", Dash.ToExchange("xyz/btc"))
	assert.Equal(t, "XYZ/BTC", Dash.FromExchange("XYZ-BTC"))
	assert.Equal(t, FormatDash, Dash.Format())
}

func TestFor(t *testing.T) {
	assert.Equal(t, FormatBinance, For("Binance").Format())
	assert.Equal(t, FormatGate, For("gateio").Format())
	assert.Equal(t, FormatDash, For("kucoin").Format())
	assert.Equal(t, "XYZ/BTC", For("yobit").ToExchange("xyzbtc"))
	assert.Equal(t, "NOPE", Binance.ToExchange("nope"))
}
