package config

import (
	"strings"
	"time"
)

// Config 是 pumpscope 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Download  DownloadConfig  `toml:"download"`
	Exchanges ExchangesConfig `toml:"exchanges"`
	Store     StoreConfig     `toml:"store"`
	Breaker   BreakerConfig   `toml:"breaker"`
	HTTP      HTTPConfig      `toml:"http"`
	Watch     WatchConfig     `toml:"watch"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// DownloadConfig 控制事件窗口与回填分页行为。
type DownloadConfig struct {
	EventsPath string        `toml:"events_path"`
	DataDir    string        `toml:"data_dir"`
	QuoteAsset string        `toml:"quote_asset"`
	DaysBefore int           `toml:"days_before"`
	DaysAfter  int           `toml:"days_after"`
	PageLimit  int           `toml:"page_limit"`
	RetryDelay time.Duration `toml:"retry_delay"`
	StallStep  time.Duration `toml:"stall_step"`
}

type ExchangesConfig struct {
	Binance  ExchangeConfig `toml:"binance"`
	Gate     ExchangeConfig `toml:"gate"`
	Coinbase ExchangeConfig `toml:"coinbase"`
	Kucoin   ExchangeConfig `toml:"kucoin"`
}

// ExchangeConfig is shared by every REST adapter; unused fields are ignored.
type ExchangeConfig struct {
	RESTBaseURL  string        `toml:"rest_base_url"`
	HTTPTimeout  time.Duration `toml:"http_timeout"`
	ProxyEnabled bool          `toml:"proxy_enabled"`
	RESTProxyURL string        `toml:"rest_proxy_url"`
	APIKey       string        `toml:"api_key"`
	// RateLimitPerMin caps REST calls per minute; 0 disables pacing.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// ByName 返回指定交易所的配置；未知名称返回 false。
func (e ExchangesConfig) ByName(name string) (ExchangeConfig, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binance":
		return e.Binance, true
	case "gate", "gateio":
		return e.Gate, true
	case "coinbase", "coinbaseexchange":
		return e.Coinbase, true
	case "kucoin":
		return e.Kucoin, true
	default:
		return ExchangeConfig{}, false
	}
}

type StoreConfig struct {
	LedgerPath    string `toml:"ledger_path"`
	ArchiveTrades bool   `toml:"archive_trades"`
	ArchiveDir    string `toml:"archive_dir"`
}

type BreakerConfig struct {
	Threshold int           `toml:"threshold"`
	Cooldown  time.Duration `toml:"cooldown"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

type WatchConfig struct {
	Enabled  bool          `toml:"enabled"`
	Debounce time.Duration `toml:"debounce"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

// TelegramConfig 控制批次结束后的 Telegram 报告。
type TelegramConfig struct {
	Enabled    bool   `toml:"enabled"`
	APIBaseURL string `toml:"api_base_url"`
	BotToken   string `toml:"bot_token"`
	ChatID     string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
