package alert

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// maxRetained caps the visible alert list. Statistics keep counting past it.
const maxRetained = 100

// Store owns the alert list and running statistics. All mutation goes
// through Add/Clear; readers get copies, never the backing slice or map.
type Store struct {
	mu     sync.Mutex
	alerts []Alert
	stats  Stats
	lastID int64
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		alerts: make([]Alert, 0, maxRetained),
		stats:  zeroStats(),
	}
}

// Add stamps the alert with an ID and detection timestamp, prepends it to
// the list, evicts past the cap, and updates statistics. The stamped alert
// is returned.
func (s *Store) Add(a Alert) Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := time.Now().UnixNano()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	a.ID = id
	a.Timestamp = time.Now().UTC()

	s.alerts = append([]Alert{a}, s.alerts...)
	if len(s.alerts) > maxRetained {
		s.alerts = s.alerts[:maxRetained]
	}

	s.stats.TotalAlerts++
	s.stats.TotalValue = s.stats.TotalValue.Add(a.ValueUSD)
	s.stats.AverageValue = s.stats.TotalValue.DivRound(decimal.NewFromInt(s.stats.TotalAlerts), 8)
	last := a
	s.stats.LastAlert = &last

	if chain := Chain(a.Type); chain.Valid() {
		stat := s.stats.ChainStats[chain]
		stat.Alerts++
		stat.Volume = stat.Volume.Add(a.ValueUSD)
		s.stats.ChainStats[chain] = stat
	}

	return a
}

// Snapshot returns a copy of the retained alerts, newest first.
func (s *Store) Snapshot() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Stats returns a copy of the running statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.ChainStats = make(map[Chain]ChainStat, len(s.stats.ChainStats))
	for chain, stat := range s.stats.ChainStats {
		out.ChainStats[chain] = stat
	}
	if s.stats.LastAlert != nil {
		last := *s.stats.LastAlert
		out.LastAlert = &last
	}
	return out
}

// Len reports the number of retained alerts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// Clear drops all retained alerts and resets statistics in one step.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = s.alerts[:0]
	s.stats = zeroStats()
}
