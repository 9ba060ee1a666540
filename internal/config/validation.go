package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Download.validate(); err != nil {
		return err
	}
	for _, name := range []string{"binance", "gate", "coinbase", "kucoin"} {
		ex, _ := c.Exchanges.ByName(name)
		if err := ex.validate("exchanges." + name); err != nil {
			return err
		}
	}
	if err := c.Breaker.validate(); err != nil {
		return err
	}
	if c.Store.ArchiveTrades && strings.TrimSpace(c.Store.ArchiveDir) == "" {
		return fmt.Errorf("store.archive_dir is required when store.archive_trades is enabled")
	}
	if tg := c.Notify.Telegram; tg.Enabled && (strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "") {
		return fmt.Errorf("notify.telegram.bot_token and chat_id are required when telegram is enabled")
	}
	return nil
}

func (d *DownloadConfig) validate() error {
	if strings.TrimSpace(d.DataDir) == "" {
		return fmt.Errorf("download.data_dir cannot be empty")
	}
	if d.QuoteAsset == "" {
		return fmt.Errorf("download.quote_asset cannot be empty")
	}
	if d.DaysBefore < 0 || d.DaysAfter < 0 {
		return fmt.Errorf("download.days_before/days_after must be >= 0")
	}
	if d.DaysBefore > maxDownloadWindowInDays || d.DaysAfter > maxDownloadWindowInDays {
		return fmt.Errorf("download window must be <= %d days on each side", maxDownloadWindowInDays)
	}
	if d.PageLimit <= 0 || d.PageLimit > maxExchangePageLimit {
		return fmt.Errorf("download.page_limit must be within (0, %d]", maxExchangePageLimit)
	}
	if d.RetryDelay < 0 {
		return fmt.Errorf("download.retry_delay must be >= 0")
	}
	if d.StallStep <= 0 {
		return fmt.Errorf("download.stall_step must be > 0")
	}
	return nil
}

func (e ExchangeConfig) validate(prefix string) error {
	if e.HTTPTimeout < 0 {
		return fmt.Errorf("%s.http_timeout must be >= 0", prefix)
	}
	if e.RateLimitPerMin < 0 {
		return fmt.Errorf("%s.rate_limit_per_min must be >= 0", prefix)
	}
	if e.ProxyEnabled && strings.TrimSpace(e.RESTProxyURL) == "" {
		return fmt.Errorf("%s.rest_proxy_url is required when proxy_enabled is set", prefix)
	}
	return nil
}

func (b *BreakerConfig) validate() error {
	if b.Threshold < 0 {
		return fmt.Errorf("breaker.threshold must be >= 0")
	}
	if b.Cooldown < 0 {
		return fmt.Errorf("breaker.cooldown must be >= 0")
	}
	return nil
}
