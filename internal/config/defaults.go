package config

import (
	"strings"
	"time"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultEventsPath        = "pump_telegram.csv"
	defaultDataDir           = "data"
	defaultQuoteAsset        = "BTC"
	defaultDaysBefore        = 7
	defaultDaysAfter         = 7
	defaultPageLimit         = 1000
	defaultRetryDelay        = 5 * time.Second
	defaultStallStep         = 10 * time.Minute
	defaultHTTPTimeout       = 15 * time.Second
	defaultBinanceREST       = "https://api.binance.com"
	defaultGateREST          = "https://api.gateio.ws/api/v4"
	defaultCoinbaseREST      = "https://api.exchange.coinbase.com"
	defaultKucoinREST        = "https://api.kucoin.com"
	defaultLedgerPath        = "data/ledger.db"
	defaultArchiveDir        = "data/archive"
	defaultBreakerThreshold  = 3
	defaultBreakerCooldown   = time.Minute
	defaultHTTPAddr          = ":9992"
	defaultWatchDebounce     = 2 * time.Second
	defaultTelegramAPI       = "https://api.telegram.org"
	maxExchangePageLimit     = 1000
	maxDownloadWindowInDays  = 365
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Download.applyDefaults(keys)
	c.Exchanges.Binance.applyDefaults(keys, "exchanges.binance", defaultBinanceREST)
	c.Exchanges.Gate.applyDefaults(keys, "exchanges.gate", defaultGateREST)
	c.Exchanges.Coinbase.applyDefaults(keys, "exchanges.coinbase", defaultCoinbaseREST)
	c.Exchanges.Kucoin.applyDefaults(keys, "exchanges.kucoin", defaultKucoinREST)
	c.Store.applyDefaults(keys)
	c.Breaker.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
	c.Watch.applyDefaults(keys)
	c.Notify.Telegram.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
	)
}

func (d *DownloadConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("download.events_path", &d.EventsPath, defaultEventsPath),
		stringFieldDefault("download.data_dir", &d.DataDir, defaultDataDir),
		stringFieldDefault("download.quote_asset", &d.QuoteAsset, defaultQuoteAsset),
		intFieldDefault("download.days_before", &d.DaysBefore, defaultDaysBefore),
		intFieldDefault("download.days_after", &d.DaysAfter, defaultDaysAfter),
		intFieldDefault("download.page_limit", &d.PageLimit, defaultPageLimit),
		durationFieldDefault("download.retry_delay", &d.RetryDelay, defaultRetryDelay),
		durationFieldDefault("download.stall_step", &d.StallStep, defaultStallStep),
	)
	d.QuoteAsset = strings.ToUpper(strings.TrimSpace(d.QuoteAsset))
}

func (e *ExchangeConfig) applyDefaults(keys keySet, prefix, restBase string) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault(prefix+".rest_base_url", &e.RESTBaseURL, restBase),
		durationFieldDefault(prefix+".http_timeout", &e.HTTPTimeout, defaultHTTPTimeout),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.ledger_path", &s.LedgerPath, defaultLedgerPath),
		stringFieldDefault("store.archive_dir", &s.ArchiveDir, defaultArchiveDir),
	)
}

func (b *BreakerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("breaker.threshold", &b.Threshold, defaultBreakerThreshold),
		durationFieldDefault("breaker.cooldown", &b.Cooldown, defaultBreakerCooldown),
	)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr))
}

func (w *WatchConfig) applyDefaults(keys keySet) {
	if w == nil {
		return
	}
	applyFieldDefaults(keys, durationFieldDefault("watch.debounce", &w.Debounce, defaultWatchDebounce))
}

func (t *TelegramConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("notify.telegram.api_base_url", &t.APIBaseURL, defaultTelegramAPI))
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func durationFieldDefault(key string, target *time.Duration, def time.Duration) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
