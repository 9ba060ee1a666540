package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"pumpscope/internal/app"
	"pumpscope/internal/config"
	"pumpscope/internal/logger"
)

const usage = `usage:
  pumpscope <exchange> [days_before days_after]   download trades around every pump event of exchange
  pumpscope chart <trades.csv> [out.html|out.png] chart a downloaded trade file
  pumpscope serve                                 run the HTTP API (and the events watcher when enabled)`

func main() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args[0] == "chart" {
		if len(args) < 2 || len(args) > 3 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		out := ""
		if len(args) == 3 {
			out = args[2]
		}
		path, err := app.RenderChart(ctx, args[1], out)
		if err != nil {
			log.Fatalf("render chart: %v", err)
		}
		fmt.Println(path)
		return
	}

	cfgPath := os.Getenv("PUMPSCOPE_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s, events=%s)", cfg.App.Env, cfg.Download.EventsPath)

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("init app: %v", err)
	}
	defer a.Close()

	if args[0] == "serve" {
		if err := a.Serve(ctx); err != nil {
			a.Close()
			log.Fatalf("serve: %v", err)
		}
		return
	}

	before, after, err := parseWindow(args[1:], cfg.Download.DaysBefore, cfg.Download.DaysAfter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s\n", err, usage)
		a.Close()
		os.Exit(2)
	}
	rep, err := a.Download(ctx, args[0], before, after)
	fmt.Println(rep)
	if err != nil {
		a.Close()
		log.Fatalf("download: %v", err)
	}
}

// parseWindow reads the optional days_before days_after pair.
func parseWindow(args []string, defBefore, defAfter int) (int, int, error) {
	switch len(args) {
	case 0:
		return defBefore, defAfter, nil
	case 2:
		before, err := strconv.Atoi(args[0])
		if err != nil || before < 0 {
			return 0, 0, fmt.Errorf("days_before must be a non-negative integer: %q", args[0])
		}
		after, err := strconv.Atoi(args[1])
		if err != nil || after < 0 {
			return 0, 0, fmt.Errorf("days_after must be a non-negative integer: %q", args[1])
		}
		return before, after, nil
	default:
		return 0, 0, fmt.Errorf("expected both days_before and days_after")
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
