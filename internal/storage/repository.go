package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertAlertSQL = `INSERT INTO whale_alerts (
        alert_type,
        amount,
        value_usd,
        tx_hash,
        block_number,
        from_addr,
        to_addr,
        symbol,
        severity,
        message,
        synthetic,
        alert_ts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (tx_hash) DO UPDATE
    SET value_usd = EXCLUDED.value_usd,
        severity  = EXCLUDED.severity,
        message   = EXCLUDED.message
    RETURNING id, created_at;`

	alertColumnsSQL = `id,
        alert_type,
        amount,
        value_usd,
        tx_hash,
        block_number,
        from_addr,
        to_addr,
        symbol,
        severity,
        message,
        synthetic,
        alert_ts,
        created_at`

	listAlertsBetweenSQL = `SELECT ` + alertColumnsSQL + `
    FROM whale_alerts
    WHERE alert_ts >= $1
      AND alert_ts < $2
    ORDER BY alert_ts;`

	listRecentAlertsSQL = `SELECT ` + alertColumnsSQL + `
    FROM whale_alerts
    ORDER BY alert_ts DESC
    LIMIT $1;`

	countAlertsSQL = `SELECT COUNT(*) FROM whale_alerts;`

	deleteAlertsBeforeSQL = `DELETE FROM whale_alerts WHERE alert_ts < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for whale alert persistence.
type AlertStore interface {
	InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	CountAlerts(ctx context.Context) (int64, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers so only one monitor
// instance writes history at a time.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store wraps a pgx pool with whale alert persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock is released with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertAlert persists one whale alert. Re-observing the same tx hash
// updates the valuation instead of duplicating the row.
func (s *Store) InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var block interface{}
	if rec.Block != nil {
		block = *rec.Block
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		rec.Type,
		rec.Amount.String(),
		rec.ValueUSD.String(),
		rec.Hash,
		block,
		rec.FromAddr,
		rec.ToAddr,
		rec.Symbol,
		rec.Severity,
		rec.Message,
		rec.Synthetic,
		rec.AlertTS,
	)

	out := rec
	if scanErr := row.Scan(&out.ID, &out.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return out, nil
}

// ListAlertsBetween lists alerts within a time window ordered by alert time.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, 0)
}

// ListRecentAlerts lists the most recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, limit)
}

// CountAlerts counts stored alerts.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

// DeleteAlertsBefore deletes historical alerts older than the cutoff.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectAlerts(rows pgx.Rows, hint int) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0, hint)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec       AlertRecord
		amountStr string
		valueStr  string
		block     sql.NullInt64
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Type,
		&amountStr,
		&valueStr,
		&rec.Hash,
		&block,
		&rec.FromAddr,
		&rec.ToAddr,
		&rec.Symbol,
		&rec.Severity,
		&rec.Message,
		&rec.Synthetic,
		&rec.AlertTS,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.Amount, convErr = decimal.NewFromString(amountStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse amount: %w", convErr)
	}
	rec.ValueUSD, convErr = decimal.NewFromString(valueStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse value usd: %w", convErr)
	}

	if block.Valid {
		value := block.Int64
		rec.Block = &value
	}

	return rec, nil
}
