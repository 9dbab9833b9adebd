package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
	"whalewatch/internal/alerting"
	"whalewatch/internal/fetcher"
	"whalewatch/internal/funding"
	"whalewatch/internal/openinterest"
	"whalewatch/internal/scheduler"
	"whalewatch/internal/settings"
	"whalewatch/internal/simulator"
	"whalewatch/internal/storage"
)

var (
	// ErrAlreadyRunning is returned by Start when monitoring is active.
	ErrAlreadyRunning = errors.New("monitoring already running")
	// ErrMissingAPIKey is returned by Start when the Ethereum chain is
	// enabled without an RPC API key.
	ErrMissingAPIKey = errors.New("ethereum chain enabled but no api key configured")
)

// Scanners groups the per-chain whale scanners. Any of them may be nil
// when the chain is not wired.
type Scanners struct {
	Bitcoin  fetcher.WhaleScanner
	Ethereum fetcher.WhaleScanner
	Solana   fetcher.WhaleScanner
}

// Options tune service behaviour beyond the runtime settings.
type Options struct {
	DemoSeedAlerts int
	SyntheticEvery time.Duration
	SyntheticRate  float64
	NotifyMinUSD   decimal.Decimal
	LockKey        int64
	StartupDelay   time.Duration
}

// Service orchestrates the polling loop: chain scans, derivatives
// monitors, alert admission, persistence, and outbound notification.
type Service struct {
	opts     Options
	scanners Scanners
	alerts   *alert.Store
	settings *settings.Store
	funding  *funding.Aggregator
	oi       *openinterest.Aggregator
	sim      *simulator.Generator
	notifier alerting.Notifier
	history  storage.AlertStore
	locker   storage.AdvisoryLocker
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	seeded  bool
}

// New constructs the monitoring service. The history store, notifier,
// derivatives aggregators, and simulator are all optional.
func New(opts Options, scanners Scanners, alerts *alert.Store, settingsStore *settings.Store,
	fundingAgg *funding.Aggregator, oiAgg *openinterest.Aggregator, sim *simulator.Generator,
	notifier alerting.Notifier, history storage.AlertStore, logger zerolog.Logger) *Service {

	var locker storage.AdvisoryLocker
	if l, ok := history.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		opts:     opts,
		scanners: scanners,
		alerts:   alerts,
		settings: settingsStore,
		funding:  fundingAgg,
		oi:       oiAgg,
		sim:      sim,
		notifier: notifier,
		history:  history,
		locker:   locker,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Running reports whether the polling loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the polling loop. It refuses to start twice, and
// refuses to start while Ethereum is enabled without an API key so the
// operator sees the misconfiguration instead of silent scan failures.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	current := s.settings.Current()
	if current.ChainEnabled(alert.ChainETH) && current.EthereumAPIKey == "" {
		return ErrMissingAPIKey
	}

	if !s.seeded && s.opts.DemoSeedAlerts > 0 && s.sim != nil {
		for _, a := range s.sim.DemoAlerts(s.opts.DemoSeedAlerts) {
			s.alerts.Add(a)
		}
		s.seeded = true
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.runLoop(loopCtx, s.done)

	s.logger.Info().
		Dur("interval", current.CheckInterval).
		Str("min_value_usd", current.MinValueUSD.String()).
		Msg("monitoring started")
	return nil
}

// Stop cancels the polling loop and waits for the in-flight cycle to
// unwind. Results from that cycle are dropped, not recorded.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info().Msg("monitoring stopped")
}

// UpdateSettings applies the mutation to the runtime settings. The new
// interval takes effect on the next cycle.
func (s *Service) UpdateSettings(mutate func(*settings.Settings)) (settings.Settings, error) {
	return s.settings.Update(mutate)
}

// ToggleChain flips a chain in the enabled set.
func (s *Service) ToggleChain(chain alert.Chain) (settings.Settings, error) {
	return s.settings.ToggleChain(chain)
}

// ClearAlerts drops the session alert list and resets statistics. The
// persisted history is untouched.
func (s *Service) ClearAlerts() {
	s.alerts.Clear()
}

// InjectSynthetic adds one generated alert to the session, bypassing the
// USD floor.
func (s *Service) InjectSynthetic(ctx context.Context) alert.Alert {
	a := s.sim.Alert()
	return s.record(ctx, a)
}

func (s *Service) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.opts.SyntheticEvery > 0 && s.sim != nil {
		go s.syntheticLoop(ctx)
	}

	sched := scheduler.New(scheduler.Options{
		IntervalFunc:   func() time.Duration { return s.settings.Current().CheckInterval },
		StartupDelay:   s.opts.StartupDelay,
		RunImmediately: true,
	}, s.logger)

	_ = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		s.cycle(ctx)
		return nil
	})
}

// syntheticLoop occasionally injects a generated alert to keep demo
// sessions lively.
func (s *Service) syntheticLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SyntheticEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeSynthetic(ctx)
		}
	}
}

// cycle runs one poll round. Every source is scanned independently so a
// failing chain or exchange never starves the others.
func (s *Service) cycle(ctx context.Context) {
	current := s.settings.Current()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("advisory lock check failed")
		return
	}
	if !proceed {
		s.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return
	}
	if unlock != nil {
		defer unlock()
	}

	if current.ChainEnabled(alert.ChainBTC) {
		s.scanChain(ctx, "BTC", s.scanners.Bitcoin, current)
	}
	if current.ChainEnabled(alert.ChainSOL) || current.ChainEnabled(alert.ChainRNDR) {
		s.scanChain(ctx, "SOL", s.scanners.Solana, current)
	}
	if current.ChainEnabled(alert.ChainETH) {
		s.scanChain(ctx, "ETH", s.scanners.Ethereum, current)
	}

	if s.funding != nil {
		_, patterns := s.funding.Monitor(ctx)
		for _, p := range patterns {
			s.recordChecked(ctx, fundingPatternAlert(p))
		}
	}
	if s.oi != nil {
		_, patterns := s.oi.Monitor(ctx)
		for _, p := range patterns {
			s.recordChecked(ctx, openInterestPatternAlert(p))
		}
	}
}

func (s *Service) scanChain(ctx context.Context, name string, scanner fetcher.WhaleScanner, current settings.Settings) {
	if scanner == nil {
		return
	}
	alerts, err := scanner.Scan(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("chain", name).Msg("chain scan failed")
		return
	}
	for _, a := range alerts {
		if !current.ChainEnabled(alert.Chain(a.Type)) {
			continue
		}
		if a.ValueUSD.LessThan(current.MinValueUSD) {
			continue
		}
		s.recordChecked(ctx, a)
	}
}

// recordChecked drops results that arrive after Stop.
func (s *Service) recordChecked(ctx context.Context, a alert.Alert) {
	if ctx.Err() != nil {
		return
	}
	s.record(ctx, a)
}

func (s *Service) record(ctx context.Context, a alert.Alert) alert.Alert {
	recorded := s.alerts.Add(a)

	if s.history != nil {
		if _, err := s.history.InsertAlert(ctx, RecordFromAlert(recorded)); err != nil {
			s.logger.Error().Err(err).Str("hash", recorded.Hash).Msg("failed to persist alert")
		}
	}

	if s.notifier != nil && !recorded.Synthetic && recorded.ValueUSD.GreaterThanOrEqual(s.opts.NotifyMinUSD) {
		if err := s.notifier.Notify(ctx, recorded); err != nil {
			s.logger.Error().Err(err).Str("hash", recorded.Hash).Msg("failed to dispatch alert")
		}
	}

	s.logger.Info().
		Str("type", recorded.Type).
		Str("value_usd", recorded.ValueUSD.String()).
		Str("hash", recorded.Hash).
		Msg("whale alert recorded")
	return recorded
}

func (s *Service) maybeSynthetic(ctx context.Context) {
	if s.sim == nil || !s.sim.Chance(s.opts.SyntheticRate) {
		return
	}
	s.recordChecked(ctx, s.sim.Alert())
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// fundingPatternAlert converts a funding pattern into a session alert.
// Pattern alerts carry no USD valuation and bypass the floor.
func fundingPatternAlert(p funding.PatternAlert) alert.Alert {
	return alert.Alert{
		Type:      p.Type,
		Amount:    decimal.Zero,
		ValueUSD:  decimal.Zero,
		Hash:      fmt.Sprintf("funding_%s_%d", p.Symbol, p.Timestamp.Unix()),
		Symbol:    p.Symbol,
		Severity:  p.Severity,
		Message:   p.Message,
		Timestamp: p.Timestamp,
	}
}

func openInterestPatternAlert(p openinterest.PatternAlert) alert.Alert {
	return alert.Alert{
		Type:      p.Type,
		Amount:    decimal.Zero,
		ValueUSD:  decimal.Zero,
		Hash:      fmt.Sprintf("oi_%s_%d", p.Symbol, p.Timestamp.Unix()),
		Symbol:    p.Symbol,
		Severity:  p.Severity,
		Message:   p.Message,
		Timestamp: p.Timestamp,
	}
}

// RecordFromAlert converts a session alert into its persisted form.
func RecordFromAlert(a alert.Alert) storage.AlertRecord {
	rec := storage.AlertRecord{
		Type:      a.Type,
		Amount:    a.Amount,
		ValueUSD:  a.ValueUSD,
		Hash:      a.Hash,
		FromAddr:  a.From,
		ToAddr:    a.To,
		Symbol:    a.Symbol,
		Severity:  string(a.Severity),
		Message:   a.Message,
		Synthetic: a.Synthetic,
		AlertTS:   a.Timestamp,
	}
	if a.Block > 0 {
		block := int64(a.Block)
		rec.Block = &block
	}
	return rec
}
