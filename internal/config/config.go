package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"whalewatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Bitcoin     BitcoinConfig     `mapstructure:"bitcoin"`
	Solana      SolanaConfig      `mapstructure:"solana"`
	Prices      PricesConfig      `mapstructure:"prices"`
	Derivatives DerivativesConfig `mapstructure:"derivatives"`
	Notifier    NotifierConfig    `mapstructure:"notifier"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN
// disables history persistence entirely.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// MonitorConfig governs the polling loop and alert admission.
type MonitorConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	MinValueUSD    float64       `mapstructure:"min_value_usd"`
	EnabledChains  []string      `mapstructure:"enabled_chains"`
	SettingsPath   string        `mapstructure:"settings_path"`
	DemoSeedAlerts int           `mapstructure:"demo_seed_alerts"`
	SyntheticEvery time.Duration `mapstructure:"synthetic_every"`
	SyntheticRate  float64       `mapstructure:"synthetic_rate"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
}

// EthereumConfig covers Ethereum RPC access. RPCURL may contain a {key}
// placeholder that is replaced with APIKey at dial time.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	APIKey         string        `mapstructure:"api_key"`
	RenderContract string        `mapstructure:"render_contract"`
	TxLimit        int           `mapstructure:"tx_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BitcoinConfig covers the Esplora REST endpoint.
type BitcoinConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	TxLimit        int           `mapstructure:"tx_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SolanaConfig covers the Solana JSON-RPC endpoint.
type SolanaConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RenderMint     string        `mapstructure:"render_mint"`
	TxLimit        int           `mapstructure:"tx_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PricesConfig captures CoinGecko connectivity.
type PricesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DerivativesConfig tunes the funding rate and open interest
// aggregators.
type DerivativesConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Symbols        []string      `mapstructure:"symbols"`
	BinanceBaseURL string        `mapstructure:"binance_base_url"`
	BybitBaseURL   string        `mapstructure:"bybit_base_url"`
	OKXBaseURL     string        `mapstructure:"okx_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NotifierConfig defines outbound alert routing.
type NotifierConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	MinNotifyUSD   float64        `mapstructure:"min_notify_usd"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
	Discord        DiscordConfig  `mapstructure:"discord"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
}

// TelegramConfig holds Telegram Bot API parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DiscordConfig holds the Discord webhook parameters.
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WHALEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "whalewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.min_value_usd", 100000.0)
	v.SetDefault("monitor.enabled_chains", []string{"ETH", "BTC", "SOL", "RNDR"})
	v.SetDefault("monitor.settings_path", "")
	v.SetDefault("monitor.demo_seed_alerts", 0)
	v.SetDefault("monitor.synthetic_every", "0s")
	v.SetDefault("monitor.synthetic_rate", 0.3)
	v.SetDefault("monitor.startup_delay", "0s")

	v.SetDefault("ethereum.rpc_url", "https://mainnet.infura.io/v3/{key}")
	v.SetDefault("ethereum.render_contract", "0x6De037ef9aD2725EB40118Bb1702EBb27e4Aeb24")
	v.SetDefault("ethereum.tx_limit", 50)
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("bitcoin.base_url", "https://blockstream.info/api")
	v.SetDefault("bitcoin.tx_limit", 10)
	v.SetDefault("bitcoin.request_timeout", "10s")

	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.render_mint", "rndrizKT3MK1iimdxRdWabcF7Zg7AR5T4nud4EkHBof")
	v.SetDefault("solana.tx_limit", 20)
	v.SetDefault("solana.request_timeout", "15s")

	v.SetDefault("prices.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("prices.request_timeout", "10s")
	v.SetDefault("prices.user_agent", "whalewatch/1.0")

	v.SetDefault("derivatives.enabled", true)
	v.SetDefault("derivatives.symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	v.SetDefault("derivatives.bybit_base_url", "https://api.bybit.com")
	v.SetDefault("derivatives.okx_base_url", "https://www.okx.com")
	v.SetDefault("derivatives.request_timeout", "10s")

	v.SetDefault("notifier.enabled", false)
	v.SetDefault("notifier.min_notify_usd", 1000000.0)
	v.SetDefault("notifier.request_timeout", "10s")
	v.SetDefault("notifier.telegram.enabled", false)
	v.SetDefault("notifier.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notifier.discord.enabled", false)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x7768616c))
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be greater than zero")
	}
	if c.Monitor.MinValueUSD < 0 {
		return fmt.Errorf("monitor.min_value_usd cannot be negative")
	}
	if c.Monitor.SyntheticRate < 0 || c.Monitor.SyntheticRate > 1 {
		return fmt.Errorf("monitor.synthetic_rate must be within [0,1]")
	}
	if c.Notifier.Telegram.Enabled {
		if c.Notifier.Telegram.BotToken == "" {
			return fmt.Errorf("notifier.telegram.bot_token is required")
		}
		if c.Notifier.Telegram.ChatID == "" {
			return fmt.Errorf("notifier.telegram.chat_id is required")
		}
	}
	if c.Notifier.Discord.Enabled && c.Notifier.Discord.WebhookURL == "" {
		return fmt.Errorf("notifier.discord.webhook_url is required")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
