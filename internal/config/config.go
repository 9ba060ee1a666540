package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix scopes environment overrides, e.g. PUMPSCOPE_DOWNLOAD_DATA_DIR.
const EnvPrefix = "PUMPSCOPE"

// envKeys lists the keys that may be overridden from the environment even when
// the config file does not mention them.
var envKeys = []string{
	"app.env", "app.log_level", "app.log_path",
	"download.events_path", "download.data_dir", "download.quote_asset",
	"download.days_before", "download.days_after", "download.page_limit",
	"download.retry_delay", "download.stall_step",
	"exchanges.binance.rest_base_url", "exchanges.binance.api_key",
	"exchanges.gate.rest_base_url", "exchanges.coinbase.rest_base_url",
	"exchanges.kucoin.rest_base_url",
	"store.ledger_path", "store.archive_trades", "store.archive_dir",
	"http.addr", "watch.enabled",
	"notify.telegram.enabled", "notify.telegram.bot_token", "notify.telegram.chat_id",
}

// Load reads the YAML config at path (following include lists), applies env
// overrides and defaults, then validates. A missing file at path is not an
// error: the result is the default configuration plus env overrides.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if exists(path) {
		if err := mergeWithIncludes(v, path); err != nil {
			return nil, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults(settingsKeys(v))
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

func loadDotEnv() error {
	if !exists(".env") {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("loading .env failed: %w", err)
	}
	return nil
}

func exists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist) && err == nil
}

// settingsKeys returns every leaf key that the files or the environment set.
func settingsKeys(v *viper.Viper) keySet {
	keys := make(keySet)
	for _, key := range v.AllKeys() {
		if v.IsSet(key) {
			keys.mark(key)
		}
	}
	return keys
}
