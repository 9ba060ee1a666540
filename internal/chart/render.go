package chart

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground = "#0b1020"
	colorText       = "#e5e7eb"
	colorMuted      = "#94a3b8"
	colorUp         = "#22c55e"
	colorDown       = "#ef4444"
	colorSMA        = "#f59e0b"
	colorRSI        = "#38bdf8"

	pageWidthPx  = 1600
	priceHeight  = 600
	volumeHeight = 240
	rsiHeight    = 200

	axisLayout = "01-02 15:04"
)

// Input describes one chart page.
type Input struct {
	Symbol   string
	Exchange string
	// PumpTime, when set, is marked on the price panel and shown in the subtitle.
	PumpTime time.Time
	Candles  []Candle
}

// RenderHTML writes a self-contained echarts page with three stacked panels:
// price candles with an SMA overlay, quote volume, and RSI.
func RenderHTML(w io.Writer, in Input) error {
	if strings.TrimSpace(in.Symbol) == "" {
		return fmt.Errorf("symbol required for chart")
	}
	if len(in.Candles) == 0 {
		return fmt.Errorf("no candles to chart for %s", in.Symbol)
	}
	labels := axisLabels(in.Candles)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		pricePanel(in, labels),
		volumePanel(in.Candles, labels),
		rsiPanel(in.Candles, labels),
	)
	return page.Render(w)
}

// panel holds the options every stacked chart shares.
func panel(height int, title opts.Title, extra ...charts.GlobalOpts) []charts.GlobalOpts {
	title.Left = "left"
	if title.TitleStyle == nil {
		title.TitleStyle = &opts.TextStyle{Color: colorText}
	}
	base := []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", pageWidthPx),
			Height:          fmt.Sprintf("%dpx", height),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(title),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	}
	return append(base, extra...)
}

func pricePanel(in Input, labels []string) *charts.Kline {
	low, high := priceRange(in.Candles)
	pad := (high - low) * 0.05
	if pad <= 0 {
		pad = math.Abs(high) * 0.01
	}
	title := strings.ToUpper(in.Symbol)
	if in.Exchange != "" {
		title += " @ " + in.Exchange
	}
	subtitle := fmt.Sprintf("%d trades, %d candles", tradeCount(in.Candles), len(in.Candles))
	if !in.PumpTime.IsZero() {
		subtitle = "pump " + in.PumpTime.UTC().Format("2006-01-02 15:04") + " UTC, " + subtitle
	}

	k := charts.NewKLine()
	k.SetGlobalOptions(panel(priceHeight,
		opts.Title{
			Title:         title,
			Subtitle:      subtitle,
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorMuted},
		},
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorText}}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Color: colorMuted}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			Min:       low - pad,
			Max:       high + pad,
			AxisLabel: &opts.AxisLabel{Color: colorMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorMuted, Opacity: opts.Float(0.2)}},
		}),
	)...)

	bars := make([]opts.KlineData, len(in.Candles))
	for i, c := range in.Candles {
		bars[i] = opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}}
	}
	series := []charts.SeriesOpts{
		charts.WithItemStyleOpts(opts.ItemStyle{Color: colorUp, Color0: colorDown, BorderColor: colorUp, BorderColor0: colorDown}),
	}
	if label, ok := pumpLabel(in.Candles, in.PumpTime); ok {
		series = append(series,
			charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{Name: "pump", XAxis: label}),
			charts.WithMarkLineStyleOpts(opts.MarkLineStyle{Symbol: []string{"none", "none"}}),
		)
	}
	k.SetXAxis(labels)
	k.AddSeries("Price", bars, series...)

	sma := charts.NewLine()
	sma.SetXAxis(labels)
	sma.AddSeries(fmt.Sprintf("SMA %d", smaPeriod), lineData(SMA(in.Candles, smaPeriod)),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorSMA, Width: 2}))
	k.Overlap(sma)
	return k
}

func volumePanel(candles []Candle, labels []string) *charts.Bar {
	b := charts.NewBar()
	b.SetGlobalOptions(panel(volumeHeight,
		opts.Title{Title: "Volume (quote)"},
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorMuted}}),
	)...)
	data := make([]opts.BarData, len(candles))
	for i, c := range candles {
		color := colorDown
		if c.Close >= c.Open {
			color = colorUp
		}
		data[i] = opts.BarData{Value: c.Volume, ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)}}
	}
	b.SetXAxis(labels)
	b.AddSeries("Volume", data)
	return b
}

func rsiPanel(candles []Candle, labels []string) *charts.Line {
	l := charts.NewLine()
	l.SetGlobalOptions(panel(rsiHeight,
		opts.Title{Title: fmt.Sprintf("RSI %d", rsiPeriod)},
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorMuted}}),
	)...)
	l.SetXAxis(labels)
	l.AddSeries("RSI", lineData(RSI(candles, rsiPeriod)),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorRSI, Width: 2}))
	return l
}

func axisLabels(candles []Candle) []string {
	out := make([]string, len(candles))
	for i, c := range candles {
		out[i] = time.UnixMilli(c.OpenTime).UTC().Format(axisLayout)
	}
	return out
}

// pumpLabel returns the axis label of the candle containing t, if any.
func pumpLabel(candles []Candle, t time.Time) (string, bool) {
	if t.IsZero() {
		return "", false
	}
	ms := t.UnixMilli()
	for _, c := range candles {
		if ms >= c.OpenTime && ms <= c.CloseTime {
			return time.UnixMilli(c.OpenTime).UTC().Format(axisLayout), true
		}
	}
	return "", false
}

func lineData(series []float64) []opts.LineData {
	out := make([]opts.LineData, len(series))
	for i, v := range series {
		if !math.IsNaN(v) {
			out[i] = opts.LineData{Value: v}
		}
	}
	return out
}

func priceRange(candles []Candle) (low, high float64) {
	low, high = candles[0].Low, candles[0].High
	for _, c := range candles[1:] {
		low = math.Min(low, c.Low)
		high = math.Max(high, c.High)
	}
	return low, high
}

func tradeCount(candles []Candle) int {
	n := 0
	for _, c := range candles {
		n += c.Trades
	}
	return n
}
