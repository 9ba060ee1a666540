package chart

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

const (
	smaPeriod = 20
	rsiPeriod = 14
)

// SMA returns the simple moving average of closes, NaN until the period fills.
func SMA(candles []Candle, period int) []float64 {
	closes := closesOf(candles)
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}
	raw := talib.Sma(closes, period)
	for i := period - 1; i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// RSI returns Wilder's RSI of closes, NaN for the first period values.
func RSI(candles []Candle, period int) []float64 {
	closes := closesOf(candles)
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}
	raw := talib.Rsi(closes, period)
	for i := period; i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func closesOf(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
