package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
)

// Settings are the operator-tunable monitoring parameters. Unlike the
// static config file they may change while the service runs, and every
// change is persisted.
type Settings struct {
	MinValueUSD     decimal.Decimal `json:"min_value_usd"`
	CheckInterval   time.Duration   `json:"check_interval"`
	EthereumAPIKey  string          `json:"ethereum_api_key"`
	EnabledChains   []alert.Chain   `json:"enabled_chains"`
	AlertThresholds []int64         `json:"alert_thresholds"`
}

// Defaults mirrors the out-of-the-box configuration.
func Defaults() Settings {
	return Settings{
		MinValueUSD:     decimal.NewFromInt(100_000),
		CheckInterval:   30 * time.Second,
		EnabledChains:   append([]alert.Chain(nil), alert.AllChains...),
		AlertThresholds: []int64{50_000, 100_000, 500_000, 1_000_000},
	}
}

// ChainEnabled reports whether the chain is in the enabled set.
func (s Settings) ChainEnabled(chain alert.Chain) bool {
	for _, c := range s.EnabledChains {
		if c == chain {
			return true
		}
	}
	return false
}

func (s Settings) clone() Settings {
	out := s
	out.EnabledChains = append([]alert.Chain(nil), s.EnabledChains...)
	out.AlertThresholds = append([]int64(nil), s.AlertThresholds...)
	return out
}

// Store owns the mutable settings and persists them to a JSON file on
// every change. An empty path keeps the store purely in memory.
type Store struct {
	mu      sync.Mutex
	path    string
	current Settings
	logger  zerolog.Logger
}

// NewStore seeds the store with defaults and overlays any persisted file.
func NewStore(path string, defaults Settings, logger zerolog.Logger) *Store {
	store := &Store{
		path:    path,
		current: defaults.clone(),
		logger:  logger.With().Str("component", "settings_store").Logger(),
	}
	store.load()
	return store
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to read settings file, using defaults")
		}
		return
	}
	var persisted Settings
	if err := json.Unmarshal(raw, &persisted); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to decode settings file, using defaults")
		return
	}
	s.current = persisted.clone()
}

// Current returns a copy of the active settings.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Update applies the mutation under the store lock and persists the
// result. The updated settings are returned.
func (s *Store) Update(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	mutate(&next)
	s.current = next

	if err := s.persist(next); err != nil {
		return next.clone(), err
	}
	return next.clone(), nil
}

// ToggleChain adds or removes a chain from the enabled set and persists.
// Already-recorded alerts are unaffected.
func (s *Store) ToggleChain(chain alert.Chain) (Settings, error) {
	if !chain.Valid() {
		return s.Current(), fmt.Errorf("unknown chain %q", chain)
	}
	return s.Update(func(next *Settings) {
		for i, c := range next.EnabledChains {
			if c == chain {
				next.EnabledChains = append(next.EnabledChains[:i], next.EnabledChains[i+1:]...)
				return
			}
		}
		next.EnabledChains = append(next.EnabledChains, chain)
	})
}

func (s *Store) persist(current Settings) error {
	if s.path == "" {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
