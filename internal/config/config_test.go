package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "BTC", cfg.Download.QuoteAsset)
	assert.Equal(t, 7, cfg.Download.DaysBefore)
	assert.Equal(t, 7, cfg.Download.DaysAfter)
	assert.Equal(t, 1000, cfg.Download.PageLimit)
	assert.Equal(t, 5*time.Second, cfg.Download.RetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.Download.StallStep)
	assert.Equal(t, "https://api.binance.com", cfg.Exchanges.Binance.RESTBaseURL)
	assert.Equal(t, 15*time.Second, cfg.Exchanges.Gate.HTTPTimeout)
	assert.Equal(t, *Default(), *cfg)
}

func TestLoadWithIncludeAndExplicitZero(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
download:
  data_dir: /tmp/pumps
  quote_asset: usdt
  retry_delay: 2s
`)
	main := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
download:
  days_before: 0
  days_after: 3
exchanges:
  gate:
    http_timeout: 30s
`)
	cfg, err := Load(main)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/pumps", cfg.Download.DataDir)
	assert.Equal(t, "USDT", cfg.Download.QuoteAsset)
	assert.Equal(t, 2*time.Second, cfg.Download.RetryDelay)
	assert.Equal(t, 0, cfg.Download.DaysBefore, "explicit zero must not be replaced by default")
	assert.Equal(t, 3, cfg.Download.DaysAfter)
	assert.Equal(t, 30*time.Second, cfg.Exchanges.Gate.HTTPTimeout)
	assert.Equal(t, "https://api.gateio.ws/api/v4", cfg.Exchanges.Gate.RESTBaseURL)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PUMPSCOPE_DOWNLOAD_DATA_DIR", "/env/data")
	t.Setenv("PUMPSCOPE_HTTP_ADDR", ":8080")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/data", cfg.Download.DataDir)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"page limit":  "download:\n  page_limit: 5000\n",
		"negative":    "download:\n  days_before: -1\n",
		"proxy":       "exchanges:\n  binance:\n    proxy_enabled: true\n",
		"archive dir": "store:\n  archive_trades: true\n  archive_dir: \"\"\n",
		"telegram":    "notify:\n  telegram:\n    enabled: true\n    bot_token: abc\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestExchangesByName(t *testing.T) {
	cfg := Default()
	ex, ok := cfg.Exchanges.ByName(" Coinbase ")
	require.True(t, ok)
	assert.Equal(t, "https://api.exchange.coinbase.com", ex.RESTBaseURL)
	_, ok = cfg.Exchanges.ByName("mtgox")
	assert.False(t, ok)
}
