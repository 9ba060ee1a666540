package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pumpscope/internal/backfill"
	"pumpscope/internal/config"
	"pumpscope/internal/events"
	"pumpscope/internal/gateway/exchange"
	"pumpscope/internal/pkg/circuit"
	"pumpscope/internal/sink"
	"pumpscope/internal/store/ledger"
	"pumpscope/internal/trade"
)

type mockDownloader struct {
	mock.Mock
}

func (m *mockDownloader) Download(ctx context.Context, symbol string, start, end int64) ([]trade.Trade, error) {
	args := m.Called(ctx, symbol, start, end)
	trades, _ := args.Get(0).([]trade.Trade)
	return trades, args.Error(1)
}

type memLedger struct {
	mu      sync.Mutex
	records []ledger.Record
}

func (l *memLedger) Append(_ context.Context, rec *ledger.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec.ID = int64(len(l.records) + 1)
	l.records = append(l.records, *rec)
	return nil
}

func (l *memLedger) statuses() map[string]ledger.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]ledger.Status, len(l.records))
	for _, r := range l.records {
		out[r.Symbol] = r.Status
	}
	return out
}

type memArchive struct {
	calls map[string]int
}

func (a *memArchive) InsertTrades(_ context.Context, ex, symbol string, trades []trade.Trade) (int, error) {
	if a.calls == nil {
		a.calls = map[string]int{}
	}
	a.calls[ex+"|"+symbol] += len(trades)
	return len(trades), nil
}

func event(sym string) events.Event {
	return events.Event{Symbol: sym, Date: "2021-05-01", Hour: "18:00", Exchange: "binance"}
}

func sampleTrades(symbol string, start int64, n int) []trade.Trade {
	out := make([]trade.Trade, n)
	for i := range out {
		ts := start + int64(i)*60_000
		p := decimal.RequireFromString("0.000002")
		a := decimal.NewFromInt(int64(10 * (i + 1)))
		out[i] = trade.Trade{
			Symbol: symbol, ID: trade.ExchangeID(int64(100 + i)), Timestamp: ts,
			Datetime: trade.FormatDatetime(ts), Side: trade.SideBuy, Price: p, Amount: a,
			BTCVolume: trade.Volume(p, a),
		}
	}
	return out
}

func runnerConfig(dir string) RunnerConfig {
	return RunnerConfig{Exchange: "binance", QuoteAsset: "BTC", DataDir: dir, DaysBefore: 1, DaysAfter: 1, PageLimit: 1000}
}

func TestRunnerProcessesMixedBatch(t *testing.T) {
	dir := t.TempDir()
	list := []events.Event{event("AAA"), event("BBB"), event("CCC"), event("DDD")}
	start, end, err := list[0].Window(1, 1)
	require.NoError(t, err)

	existing := list[2].OutputPath(dir)
	require.NoError(t, os.WriteFile(existing, []byte("symbol,timestamp,datetime,side,price,amount,btc_volume\n"), 0o644))

	d := &mockDownloader{}
	d.On("Download", mock.Anything, "AAA/BTC", start, end).Return(sampleTrades("AAA/BTC", start, 3), nil).Once()
	d.On("Download", mock.Anything, "BBB/BTC", start, end).Return(nil, fmt.Errorf("locate: %w", backfill.ErrSymbolNotFound)).Once()
	d.On("Download", mock.Anything, "DDD/BTC", start, end).Return(nil, fmt.Errorf("fetch: %w", exchange.ErrTimeout)).Once()

	led := &memLedger{}
	arc := &memArchive{}
	r := NewRunner(runnerConfig(dir), d, WithLedger(led), WithArchive(arc), WithBreaker(circuit.New("binance", 3, time.Minute)))

	rep, err := r.Run(context.Background(), list)
	require.NoError(t, err)
	d.AssertExpectations(t)

	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 1, rep.Done)
	assert.Equal(t, 1, rep.Absent)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 3, rep.Rows)
	assert.False(t, rep.Aborted)
	assert.NotEmpty(t, rep.RunID)

	got, err := sink.ReadCSV(list[0].OutputPath(dir))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.False(t, sink.Exists(list[1].OutputPath(dir)), "absent events write no file")
	assert.False(t, sink.Exists(list[3].OutputPath(dir)), "failed events write no file")

	assert.Equal(t, map[string]ledger.Status{
		"AAA/BTC": ledger.StatusDone,
		"BBB/BTC": ledger.StatusAbsent,
		"CCC/BTC": ledger.StatusSkipped,
		"DDD/BTC": ledger.StatusFailed,
	}, led.statuses())
	assert.Equal(t, map[string]int{"binance|AAA/BTC": 3}, arc.calls)

	for _, rec := range led.records {
		assert.Equal(t, rep.RunID, rec.RunID)
		if rec.Status == ledger.StatusDone {
			assert.Equal(t, filepath.Join(dir, "AAA_2021-05-01 18.00.csv"), rec.Path)
			assert.EqualValues(t, 1, rec.Params["days_before"])
			assert.Equal(t, "AAABTC", rec.Params["market"])
		}
	}
}

func TestRunnerIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	list := []events.Event{event("AAA")}
	start, end, err := list[0].Window(1, 1)
	require.NoError(t, err)

	d := &mockDownloader{}
	d.On("Download", mock.Anything, "AAA/BTC", start, end).Return(sampleTrades("AAA/BTC", start, 2), nil).Once()
	r := NewRunner(runnerConfig(dir), d)

	first, err := r.Run(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Done)

	second, err := r.Run(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	d.AssertNumberOfCalls(t, "Download", 1)
}

func TestRunnerEmptyWindowWritesHeaderOnlyFile(t *testing.T) {
	dir := t.TempDir()
	list := []events.Event{event("AAA")}
	d := &mockDownloader{}
	d.On("Download", mock.Anything, "AAA/BTC", mock.Anything, mock.Anything).Return([]trade.Trade{}, nil).Once()
	arc := &memArchive{}
	rep, err := NewRunner(runnerConfig(dir), d, WithArchive(arc)).Run(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Done)
	assert.Zero(t, rep.Rows)
	assert.True(t, sink.Exists(list[0].OutputPath(dir)))
	assert.Empty(t, arc.calls)
}

func TestRunnerBreakerAbortsBatch(t *testing.T) {
	dir := t.TempDir()
	list := []events.Event{event("AAA"), event("BBB"), event("CCC")}
	d := &mockDownloader{}
	d.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, exchange.ErrTimeout)

	r := NewRunner(runnerConfig(dir), d, WithBreaker(circuit.New("binance", 2, time.Hour)))
	rep, err := r.Run(context.Background(), list)
	require.ErrorIs(t, err, ErrBatchAborted)
	assert.True(t, rep.Aborted)
	assert.Equal(t, 2, rep.Failed)
	d.AssertNumberOfCalls(t, "Download", 2)
}

func TestRunnerAbsentResetsBreaker(t *testing.T) {
	dir := t.TempDir()
	list := []events.Event{event("AAA"), event("BBB"), event("CCC")}
	d := &mockDownloader{}
	d.On("Download", mock.Anything, "AAA/BTC", mock.Anything, mock.Anything).Return(nil, exchange.ErrTimeout).Once()
	d.On("Download", mock.Anything, "BBB/BTC", mock.Anything, mock.Anything).Return(nil, backfill.ErrStuckCursor).Once()
	d.On("Download", mock.Anything, "CCC/BTC", mock.Anything, mock.Anything).Return(nil, exchange.ErrTimeout).Once()

	r := NewRunner(runnerConfig(dir), d, WithBreaker(circuit.New("binance", 2, time.Hour)))
	rep, err := r.Run(context.Background(), list)
	require.NoError(t, err)
	assert.False(t, rep.Aborted)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 1, rep.Absent)
}

func TestRunnerOpenBreakerHoldsNextBatch(t *testing.T) {
	dir := t.TempDir()
	breaker := circuit.New("binance", 1, time.Hour)
	d := &mockDownloader{}
	d.On("Download", mock.Anything, "AAA/BTC", mock.Anything, mock.Anything).Return(nil, exchange.ErrTimeout).Once()

	_, err := NewRunner(runnerConfig(dir), d, WithBreaker(breaker)).Run(context.Background(), []events.Event{event("AAA")})
	require.ErrorIs(t, err, ErrBatchAborted)

	rep, err := NewRunner(runnerConfig(dir), d, WithBreaker(breaker)).Run(context.Background(), []events.Event{event("BBB")})
	require.ErrorIs(t, err, ErrBatchAborted)
	assert.True(t, rep.Aborted)
	assert.Zero(t, rep.Done+rep.Failed)
	d.AssertNotCalled(t, "Download", mock.Anything, "BBB/BTC", mock.Anything, mock.Anything)
}

func TestRunnerBreakerRetriesAfterCooldown(t *testing.T) {
	dir := t.TempDir()
	breaker := circuit.New("binance", 1, 0)
	d := &mockDownloader{}
	d.On("Download", mock.Anything, "AAA/BTC", mock.Anything, mock.Anything).Return(nil, exchange.ErrTimeout).Once()
	d.On("Download", mock.Anything, "BBB/BTC", mock.Anything, mock.Anything).Return(sampleTrades("BBB/BTC", 0, 1), nil).Once()

	_, err := NewRunner(runnerConfig(dir), d, WithBreaker(breaker)).Run(context.Background(), []events.Event{event("AAA")})
	require.ErrorIs(t, err, ErrBatchAborted)
	assert.Equal(t, circuit.StateOpen, breaker.State())

	rep, err := NewRunner(runnerConfig(dir), d, WithBreaker(breaker)).Run(context.Background(), []events.Event{event("BBB")})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Done)
	assert.Equal(t, circuit.StateClosed, breaker.State())
	d.AssertExpectations(t)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) SendText(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

func TestAppKeepsOneBreakerPerExchange(t *testing.T) {
	cfg := config.Default()
	cfg.Breaker.Threshold = 1
	n := &recordingNotifier{}
	a := &App{cfg: cfg, notify: n}

	b := a.breakerFor("binance")
	assert.Same(t, b, a.breakerFor("binance"))
	assert.NotSame(t, b, a.breakerFor("gate"))

	b.RecordFailure()
	assert.Eventually(t, func() bool { return len(n.sent()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, n.sent()[0], "binance paused after 1 consecutive failures")
}

func TestRunnerStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	list := []events.Event{event("AAA"), event("BBB")}
	ctx, cancel := context.WithCancel(context.Background())
	d := &mockDownloader{}
	d.On("Download", mock.Anything, "AAA/BTC", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	led := &memLedger{}
	_, err := NewRunner(runnerConfig(dir), d, WithLedger(led)).Run(ctx, list)
	assert.True(t, errors.Is(err, context.Canceled))
	d.AssertNumberOfCalls(t, "Download", 1)
	assert.Len(t, led.records, 1, "interrupted event is still recorded")
}

func TestRunnerRecordsBadEventTime(t *testing.T) {
	dir := t.TempDir()
	bad := events.Event{Symbol: "AAA", Date: "2021-13-40", Hour: "18:00", Exchange: "binance"}
	d := &mockDownloader{}
	led := &memLedger{}
	rep, err := NewRunner(runnerConfig(dir), d, WithLedger(led)).Run(context.Background(), []events.Event{bad})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	d.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, led.records, 1)
	assert.NotEmpty(t, led.records[0].Error)
}

func TestExchangesIn(t *testing.T) {
	list := []events.Event{
		{Exchange: "Binance"}, {Exchange: "yobit"}, {Exchange: "binance"}, {Exchange: " "},
	}
	assert.Equal(t, []string{"binance", "yobit"}, exchangesIn(list))
}

func TestBatchMessage(t *testing.T) {
	rep := Report{RunID: "r1", Exchange: "binance", Total: 4, Done: 2, Rows: 10, Absent: 1, Failed: 1}
	out := batchMessage(rep, nil).Render()
	assert.Contains(t, out, "pumpscope binance batch")
	assert.Contains(t, out, "2 (10 trades)")
	assert.Contains(t, out, "run r1")
	assert.NotContains(t, out, "stopped")

	aborted := batchMessage(rep, ErrBatchAborted).Render()
	assert.Contains(t, aborted, "stopped: batch aborted")
}
