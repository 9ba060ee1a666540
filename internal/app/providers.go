package app

import (
	"context"

	"pumpscope/internal/config"
	"pumpscope/internal/gateway/notifier"
	"pumpscope/internal/store/archive"
	"pumpscope/internal/store/ledger"
	apihttp "pumpscope/internal/transport/http/api"
)

func provideLedger(cfg *config.Config) (*ledger.Store, func(), error) {
	store, err := ledger.Open(cfg.Store.LedgerPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// provideArchive returns nil when trade archiving is disabled.
func provideArchive(cfg *config.Config) (*archive.Store, func(), error) {
	if !cfg.Store.ArchiveTrades {
		return nil, func() {}, nil
	}
	store, err := archive.NewStore(cfg.Store.ArchiveDir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func provideHTTPServer(cfg *config.Config, l *ledger.Store, a *archive.Store) (*apihttp.Server, error) {
	sc := apihttp.ServerConfig{Addr: cfg.HTTP.Addr, Ledger: l}
	if a != nil {
		sc.Archive = a
	}
	return apihttp.NewServer(sc)
}

// provideNotifier returns nil when no notifier is enabled.
func provideNotifier(cfg *config.Config) notifier.TextNotifier {
	tg := cfg.Notify.Telegram
	if !tg.Enabled {
		return nil
	}
	return notifier.NewTelegram(tg.APIBaseURL, tg.BotToken, tg.ChatID)
}

func provideApp(_ context.Context, cfg *config.Config, l *ledger.Store, a *archive.Store, srv *apihttp.Server, n notifier.TextNotifier) *App {
	return &App{
		cfg:     cfg,
		ledger:  l,
		archive: a,
		http:    srv,
		notify:  n,
		Summary: newStartupSummary(cfg),
	}
}
