// Package chart turns downloaded trades into candle charts.
package chart

import (
	"sort"
	"time"

	"pumpscope/internal/trade"
)

// Candle aggregates the trades of one interval. Volume is in the quote asset.
type Candle struct {
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	BuyVolume float64
	Trades    int
}

// Bucket groups trades into interval-aligned candles. Intervals without trades
// produce no candle.
func Bucket(trades []trade.Trade, interval time.Duration) []Candle {
	if len(trades) == 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	step := interval.Milliseconds()
	sorted := make([]trade.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var out []Candle
	for _, t := range sorted {
		price, _ := t.Price.Float64()
		open := t.Timestamp - mod(t.Timestamp, step)
		if len(out) == 0 || out[len(out)-1].OpenTime != open {
			out = append(out, Candle{
				OpenTime:  open,
				CloseTime: open + step - 1,
				Open:      price,
				High:      price,
				Low:       price,
			})
		}
		c := &out[len(out)-1]
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		c.Volume += t.BTCVolume
		if t.Side == trade.SideBuy {
			c.BuyVolume += t.BTCVolume
		}
		c.Trades++
	}
	return out
}

func mod(v, m int64) int64 {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}
