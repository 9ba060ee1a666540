package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pumpscope/internal/backfill"
	"pumpscope/internal/chart"
	"pumpscope/internal/config"
	"pumpscope/internal/events"
	"pumpscope/internal/gateway"
	"pumpscope/internal/gateway/notifier"
	"pumpscope/internal/logger"
	"pumpscope/internal/pkg/circuit"
	"pumpscope/internal/sink"
	"pumpscope/internal/store/archive"
	"pumpscope/internal/store/ledger"
	apihttp "pumpscope/internal/transport/http/api"
	"pumpscope/internal/watch"
)

// App wires configuration, stores and exchange clients for the CLI commands.
type App struct {
	cfg     *config.Config
	ledger  *ledger.Store
	archive *archive.Store
	http    *apihttp.Server
	notify  notifier.TextNotifier
	Summary *StartupSummary
	cleanup func()

	// breakers outlive a batch so watcher-triggered runs respect the cooldown
	// of an exchange that tripped earlier.
	breakersMu sync.Mutex
	breakers   map[string]*circuit.Breaker
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	app, cleanup, err := buildAppWithWire(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	app.cleanup = cleanup
	return app, nil
}

// Close releases the stores opened by NewApp.
func (a *App) Close() {
	if a == nil || a.cleanup == nil {
		return
	}
	a.cleanup()
	a.cleanup = nil
}

// Download runs one batch for exchangeName over the configured events file.
func (a *App) Download(ctx context.Context, exchangeName string, daysBefore, daysAfter int) (Report, error) {
	if a == nil || a.cfg == nil {
		return Report{}, fmt.Errorf("app not initialized")
	}
	dl := a.cfg.Download
	all, err := events.Load(dl.EventsPath)
	if err != nil {
		return Report{}, err
	}
	list := events.FilterExchange(all, exchangeName)
	if len(list) == 0 {
		logger.Warnf("no events for exchange %s in %s", exchangeName, dl.EventsPath)
	}

	fetcher, err := gateway.NewFetcher(exchangeName, a.cfg.Exchanges)
	if err != nil {
		return Report{}, err
	}
	walker := backfill.New(fetcher, backfill.Options{
		PageLimit:  dl.PageLimit,
		RetryDelay: dl.RetryDelay,
		StallStep:  dl.StallStep,
	})
	if err := os.MkdirAll(dl.DataDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create data dir: %w", err)
	}

	opts := []RunnerOption{
		WithBreaker(a.breakerFor(fetcher.Name())),
	}
	if a.ledger != nil {
		opts = append(opts, WithLedger(a.ledger))
	}
	if a.archive != nil {
		opts = append(opts, WithArchive(a.archive))
	}
	runner := NewRunner(RunnerConfig{
		Exchange:   fetcher.Name(),
		QuoteAsset: dl.QuoteAsset,
		DataDir:    dl.DataDir,
		DaysBefore: daysBefore,
		DaysAfter:  daysAfter,
		PageLimit:  dl.PageLimit,
	}, walker, opts...)
	rep, err := runner.Run(ctx, list)
	a.report(ctx, rep, err)
	return rep, err
}

// breakerFor returns the breaker of one exchange, creating it on first use.
func (a *App) breakerFor(exchange string) *circuit.Breaker {
	a.breakersMu.Lock()
	defer a.breakersMu.Unlock()
	if b, ok := a.breakers[exchange]; ok {
		return b
	}
	if a.breakers == nil {
		a.breakers = make(map[string]*circuit.Breaker)
	}
	b := circuit.New(exchange, a.cfg.Breaker.Threshold, a.cfg.Breaker.Cooldown)
	b.OnChange(a.breakerChanged)
	a.breakers[exchange] = b
	return b
}

// breakerChanged runs under the breaker's lock; the chat message is sent from
// its own goroutine.
func (a *App) breakerChanged(snap circuit.Snapshot, from circuit.State) {
	logger.With("exchange", snap.Name, "failures", snap.Failures).
		Warnf("circuit %s -> %s", from, snap.State)
	if a.notify == nil || snap.State != circuit.StateOpen {
		return
	}
	text := fmt.Sprintf("pumpscope: %s paused after %d consecutive failures, retry after %s",
		snap.Name, snap.Failures, a.cfg.Breaker.Cooldown)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.notify.SendText(ctx, text); err != nil {
			logger.Warnf("send breaker alert: %v", err)
		}
	}()
}

func (a *App) report(ctx context.Context, rep Report, runErr error) {
	if a.notify == nil || rep.Total == 0 {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.notify.SendText(sendCtx, batchMessage(rep, runErr).Render()); err != nil {
		logger.Warnf("send batch report: %v", err)
	}
}

func batchMessage(rep Report, runErr error) notifier.Message {
	msg := notifier.Message{
		Title: fmt.Sprintf("pumpscope %s batch", rep.Exchange),
		At:    time.Now(),
	}
	msg.Add("events", rep.Total)
	msg.Add("done", fmt.Sprintf("%d (%d trades)", rep.Done, rep.Rows))
	msg.Add("absent", rep.Absent)
	msg.Add("failed", rep.Failed)
	msg.Add("skipped", rep.Skipped)
	msg.Add("elapsed", rep.Elapsed.Round(time.Second))
	msg.Notes = append(msg.Notes, "run "+rep.RunID)
	if runErr != nil {
		msg.Notes = append(msg.Notes, "stopped: "+runErr.Error())
	}
	return msg
}

// Serve runs the HTTP API and, when enabled, the events file watcher until ctx
// is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	if a.cfg.Watch.Enabled {
		w, err := watch.New(a.cfg.Download.EventsPath, a.cfg.Watch.Debounce, a.downloadAll)
		if err != nil {
			return err
		}
		group.Go(func() error {
			return w.Run(ctx)
		})
	}
	return group.Wait()
}

// downloadAll runs a batch for every supported exchange named in the events
// file. Existing outputs are skipped, so repeated triggers only fetch new
// events.
func (a *App) downloadAll(ctx context.Context) {
	all, err := events.Load(a.cfg.Download.EventsPath)
	if err != nil {
		logger.Errorf("reload events: %v", err)
		return
	}
	for _, name := range exchangesIn(all) {
		if _, ok := a.cfg.Exchanges.ByName(name); !ok {
			logger.Debugf("events for unsupported exchange %s ignored", name)
			continue
		}
		rep, err := a.Download(ctx, name, a.cfg.Download.DaysBefore, a.cfg.Download.DaysAfter)
		if err != nil {
			logger.Errorf("batch %s: %v", name, err)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		logger.Infof("batch %s done: %s", name, rep)
	}
}

func exchangesIn(list []events.Event) []string {
	seen := make(map[string]struct{})
	for _, ev := range list {
		name := strings.ToLower(strings.TrimSpace(ev.Exchange))
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RenderChart charts a trade CSV as 1-minute candles. The output format
// follows the extension of out: .png goes through headless Chrome, anything
// else is written as HTML.
func RenderChart(ctx context.Context, csvPath, out string) (string, error) {
	trades, err := sink.ReadCSV(csvPath)
	if err != nil {
		return "", err
	}
	if len(trades) == 0 {
		return "", fmt.Errorf("no trades in %s", csvPath)
	}
	symbol := trades[0].Symbol
	if out == "" {
		out = strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".html"
	}
	in := chart.Input{Symbol: symbol, Candles: chart.Bucket(trades, time.Minute)}

	if strings.EqualFold(filepath.Ext(out), ".png") {
		png, err := chart.RenderPNG(ctx, in)
		if err != nil {
			return "", err
		}
		return out, os.WriteFile(out, png, 0o644)
	}
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := chart.RenderHTML(f, in); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return "", err
	}
	return out, f.Close()
}
