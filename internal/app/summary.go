package app

import (
	"fmt"
	"strings"
	"time"

	"pumpscope/internal/config"
	"pumpscope/internal/logger"
)

type StartupSummary struct {
	EventsPath string
	DataDir    string
	Window     string
	PageLimit  int
	LedgerPath string
	ArchiveDir string
	HTTPAddr   string
	Watch      string
}

func newStartupSummary(cfg *config.Config) *StartupSummary {
	s := &StartupSummary{
		EventsPath: cfg.Download.EventsPath,
		DataDir:    cfg.Download.DataDir,
		Window:     fmt.Sprintf("-%dd / +%dd (quote %s)", cfg.Download.DaysBefore, cfg.Download.DaysAfter, cfg.Download.QuoteAsset),
		PageLimit:  cfg.Download.PageLimit,
		LedgerPath: cfg.Store.LedgerPath,
		HTTPAddr:   cfg.HTTP.Addr,
		Watch:      "off",
	}
	if cfg.Store.ArchiveTrades {
		s.ArchiveDir = cfg.Store.ArchiveDir
	}
	if cfg.Watch.Enabled {
		s.Watch = "debounce " + cfg.Watch.Debounce.Round(time.Millisecond).String()
	}
	return s
}

// Print logs the summary as a block of info lines.
func (s *StartupSummary) Print() {
	if s == nil {
		return
	}
	logger.InfoBlock(s.String())
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	title := "STARTUP SUMMARY"
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "  events:     %s\n", s.EventsPath)
	fmt.Fprintf(&b, "  data dir:   %s\n", s.DataDir)
	fmt.Fprintf(&b, "  window:     %s\n", s.Window)
	fmt.Fprintf(&b, "  page limit: %d\n", s.PageLimit)
	fmt.Fprintf(&b, "  ledger:     %s\n", s.LedgerPath)
	fmt.Fprintf(&b, "  archive:    %s\n", orDash(s.ArchiveDir))
	fmt.Fprintf(&b, "  http:       %s\n", orDash(s.HTTPAddr))
	fmt.Fprintf(&b, "  watch:      %s\n", s.Watch)
	fmt.Fprintln(&b, rule)
	return b.String()
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
