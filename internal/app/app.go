package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
	"whalewatch/internal/alerting"
	"whalewatch/internal/config"
	"whalewatch/internal/fetcher"
	"whalewatch/internal/funding"
	"whalewatch/internal/openinterest"
	"whalewatch/internal/prices"
	"whalewatch/internal/service"
	"whalewatch/internal/settings"
	"whalewatch/internal/simulator"
	"whalewatch/internal/storage"
	"whalewatch/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newPriceSource() prices.Source {
	return prices.NewClient(prices.Options{
		BaseURL:   a.Config.Prices.BaseURL,
		APIKey:    a.Config.Prices.APIKey,
		Timeout:   a.Config.Prices.RequestTimeout,
		UserAgent: a.Config.Prices.UserAgent,
	}, a.Logger)
}

func (a *App) newScanners(priceSource prices.Source, apiKey string) service.Scanners {
	minValue := decimal.NewFromFloat(a.Config.Monitor.MinValueUSD)

	bitcoin := fetcher.NewBitcoin(fetcher.BitcoinOptions{
		BaseURL:     a.Config.Bitcoin.BaseURL,
		Timeout:     a.Config.Bitcoin.RequestTimeout,
		MinValueUSD: minValue,
		TxLimit:     a.Config.Bitcoin.TxLimit,
		UserAgent:   a.Config.Prices.UserAgent,
	}, priceSource, a.Logger)

	ethereum := fetcher.NewEthereum(fetcher.EthereumOptions{
		RPCURL:         a.Config.Ethereum.RPCURL,
		APIKey:         apiKey,
		Timeout:        a.Config.Ethereum.RequestTimeout,
		MinValueUSD:    minValue,
		TxLimit:        a.Config.Ethereum.TxLimit,
		RenderContract: a.Config.Ethereum.RenderContract,
	}, priceSource, a.Logger)

	solana := fetcher.NewSolana(fetcher.SolanaOptions{
		RPCURL:      a.Config.Solana.RPCURL,
		Timeout:     a.Config.Solana.RequestTimeout,
		MinValueUSD: minValue,
		TxLimit:     a.Config.Solana.TxLimit,
		RenderMint:  a.Config.Solana.RenderMint,
	}, priceSource, a.Logger)

	return service.Scanners{
		Bitcoin:  bitcoin,
		Ethereum: ethereum,
		Solana:   solana,
	}
}

func (a *App) newDerivatives() (*funding.Aggregator, *openinterest.Aggregator) {
	if !a.Config.Derivatives.Enabled {
		return nil, nil
	}
	cfg := a.Config.Derivatives

	fundingClients := []funding.ExchangeClient{
		funding.NewBinanceClient(cfg.BinanceBaseURL),
		funding.NewBybitClient(cfg.BybitBaseURL, cfg.RequestTimeout),
		funding.NewOKXClient(cfg.OKXBaseURL, cfg.RequestTimeout),
	}
	oiClients := []openinterest.ExchangeClient{
		openinterest.NewBinanceClient(cfg.BinanceBaseURL),
		openinterest.NewBybitClient(cfg.BybitBaseURL, cfg.RequestTimeout),
		openinterest.NewOKXClient(cfg.OKXBaseURL, cfg.RequestTimeout),
	}

	return funding.NewAggregator(fundingClients, cfg.Symbols, a.Logger),
		openinterest.NewAggregator(oiClients, cfg.Symbols, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Notifier.Enabled {
		return nil
	}
	cfg := a.Config.Notifier

	var channels []alerting.Notifier
	if cfg.Telegram.Enabled {
		channels = append(channels, alerting.NewTelegramNotifier(
			cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase,
			cfg.RequestTimeout, a.Logger))
	}
	if cfg.Discord.Enabled {
		channels = append(channels, alerting.NewDiscordNotifier(
			cfg.Discord.WebhookURL, cfg.RequestTimeout, a.Logger))
	}
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}
	return alerting.NewMultiNotifier(a.Logger, channels...)
}

func (a *App) newSettingsStore() *settings.Store {
	defaults := settings.Defaults()
	defaults.MinValueUSD = decimal.NewFromFloat(a.Config.Monitor.MinValueUSD)
	defaults.CheckInterval = a.Config.Monitor.Interval
	defaults.EthereumAPIKey = a.Config.Ethereum.APIKey

	chains := make([]alert.Chain, 0, len(a.Config.Monitor.EnabledChains))
	for _, raw := range a.Config.Monitor.EnabledChains {
		if chain := alert.Chain(raw); chain.Valid() {
			chains = append(chains, chain)
		}
	}
	if len(chains) > 0 {
		defaults.EnabledChains = chains
	}

	return settings.NewStore(a.Config.Monitor.SettingsPath, defaults, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(settingsStore *settings.Store, alerts *alert.Store, history storage.AlertStore, withNotifier bool) *service.Service {
	priceSource := a.newPriceSource()
	scanners := a.newScanners(priceSource, settingsStore.Current().EthereumAPIKey)
	fundingAgg, oiAgg := a.newDerivatives()

	var notifier alerting.Notifier
	if withNotifier {
		notifier = a.newNotifier()
	}

	opts := service.Options{
		DemoSeedAlerts: a.Config.Monitor.DemoSeedAlerts,
		SyntheticEvery: a.Config.Monitor.SyntheticEvery,
		SyntheticRate:  a.Config.Monitor.SyntheticRate,
		NotifyMinUSD:   decimal.NewFromFloat(a.Config.Notifier.MinNotifyUSD),
		LockKey:        a.Config.Database.AdvisoryLockKey,
		StartupDelay:   a.Config.Monitor.StartupDelay,
	}

	return service.New(opts, scanners, alerts, settingsStore,
		fundingAgg, oiAgg, simulator.New(), notifier, history, a.Logger)
}

// Run executes the long-running monitoring service until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var history storage.AlertStore
	if store != nil {
		history = store
	}

	settingsStore := a.newSettingsStore()
	alerts := alert.NewStore()
	svc := a.newService(settingsStore, alerts, history, true)

	a.Logger.Info().Str("build", version.String()).Msg("starting monitoring service")
	if err := svc.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	svc.Stop()

	stats := alerts.Stats()
	a.Logger.Info().
		Int64("total_alerts", stats.TotalAlerts).
		Str("total_value_usd", stats.TotalValue.String()).
		Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	CSVPath   string
	JSONPath  string
	MDPath    string
	PNGPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Chain      string
	FromHeight uint64
	ToHeight   uint64
	DryRun     bool
}
