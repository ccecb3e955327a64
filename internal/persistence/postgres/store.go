// Package postgres implements the ledger and evidence stores on PostgreSQL.
// Chain appends run under SERIALIZABLE isolation; serialization failures and
// duplicate-sequence violations both surface as ledger.ErrConflict so the
// caller retries the whole logical append.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trackledger/trackledger/internal/corroboration"
	"github.com/trackledger/trackledger/internal/ledger"
)

type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

var (
	_ ledger.Store                = (*Store)(nil)
	_ corroboration.EvidenceStore = (*Store)(nil)
)

func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) ReadTail(ctx context.Context, chainID string) (ledger.Tail, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var tail ledger.Tail
	query := `
		SELECT sequence, event_hash
		FROM ledger_events
		WHERE chain_id = $1
		ORDER BY sequence DESC
		LIMIT 1`
	err := s.db.QueryRowxContext(ctx, query, chainID).Scan(&tail.Sequence, &tail.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Tail{Sequence: 0, Hash: ledger.GenesisHash}, nil
	}
	if err != nil {
		return ledger.Tail{}, fmt.Errorf("read tail: %w", err)
	}
	return tail, nil
}

func (s *Store) ReadState(ctx context.Context, chainID string) (ledger.DerivedState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var state ledger.DerivedState
	query := `
		SELECT chain_id, total_trades, won_trades, lost_trades, total_profit,
		       balance, equity, peak_profit, max_drawdown, max_drawdown_pct,
		       drawdown_started_at, max_drawdown_seconds, last_sequence, last_event_hash
		FROM derived_state
		WHERE chain_id = $1`
	err := s.db.GetContext(ctx, &state, query, chainID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DerivedState{}, fmt.Errorf("%w: %s", ledger.ErrChainNotFound, chainID)
	}
	if err != nil {
		return ledger.DerivedState{}, fmt.Errorf("read state: %w", err)
	}
	return state, nil
}

func (s *Store) AppendAtomic(ctx context.Context, set ledger.AppendSet) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-check the tail inside the transaction. Two appenders that both read
	// the same tail outside it will disagree here, and the loser conflicts.
	var current int64
	err = tx.QueryRowxContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM ledger_events WHERE chain_id = $1`,
		set.ChainID).Scan(&current)
	if err != nil {
		return fmt.Errorf("re-read tail: %w", err)
	}
	if current != set.ExpectedTail {
		return ledger.ErrConflict
	}

	for i := range set.Events {
		e := &set.Events[i]
		payload, err := ledger.EncodePayload(e.Payload)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_events (chain_id, sequence, event_type, payload, ts, prev_hash, event_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.ChainID, e.Sequence, e.Type, payload, e.Timestamp, e.PrevHash, e.Hash, e.CreatedAt)
		if err != nil {
			return mapConflict(fmt.Errorf("insert event %d: %w", e.Sequence, err))
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO derived_state (chain_id, total_trades, won_trades, lost_trades, total_profit,
			balance, equity, peak_profit, max_drawdown, max_drawdown_pct,
			drawdown_started_at, max_drawdown_seconds, last_sequence, last_event_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (chain_id) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			won_trades = EXCLUDED.won_trades,
			lost_trades = EXCLUDED.lost_trades,
			total_profit = EXCLUDED.total_profit,
			balance = EXCLUDED.balance,
			equity = EXCLUDED.equity,
			peak_profit = EXCLUDED.peak_profit,
			max_drawdown = EXCLUDED.max_drawdown,
			max_drawdown_pct = EXCLUDED.max_drawdown_pct,
			drawdown_started_at = EXCLUDED.drawdown_started_at,
			max_drawdown_seconds = EXCLUDED.max_drawdown_seconds,
			last_sequence = EXCLUDED.last_sequence,
			last_event_hash = EXCLUDED.last_event_hash`,
		set.State.ChainID, set.State.TotalTrades, set.State.WonTrades, set.State.LostTrades,
		set.State.TotalProfit, set.State.Balance, set.State.Equity, set.State.PeakProfit,
		set.State.MaxDrawdown, set.State.MaxDrawdownPct, set.State.DrawdownStartedAt,
		set.State.MaxDrawdownSeconds, set.State.LastSequence, set.State.LastEventHash)
	if err != nil {
		return mapConflict(fmt.Errorf("upsert derived state: %w", err))
	}

	for i := range set.Checkpoints {
		cp := &set.Checkpoints[i]
		stateJSON, err := json.Marshal(cp.State)
		if err != nil {
			return fmt.Errorf("encode checkpoint state: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checkpoints (chain_id, sequence, state, hmac, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			cp.ChainID, cp.Sequence, stateJSON, cp.HMAC, cp.CreatedAt)
		if err != nil {
			return mapConflict(fmt.Errorf("insert checkpoint %d: %w", cp.Sequence, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return mapConflict(fmt.Errorf("commit append: %w", err))
	}
	return nil
}

func (s *Store) ReadRange(ctx context.Context, chainID string, from, to int64) ([]ledger.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT chain_id, sequence, event_type, payload, ts, prev_hash, event_hash, created_at
		FROM ledger_events
		WHERE chain_id = $1 AND sequence >= $2 AND sequence <= $3
		ORDER BY sequence ASC`
	rows, err := s.db.QueryxContext(ctx, query, chainID, from, to)
	if err != nil {
		return nil, fmt.Errorf("read range: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			e       ledger.Event
			payload []byte
		)
		if err := rows.Scan(&e.ChainID, &e.Sequence, &e.Type, &payload,
			&e.Timestamp, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload, err = ledger.DecodePayload(e.Type, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *Store) ReadCheckpoints(ctx context.Context, chainID string, from, to int64) ([]ledger.Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT chain_id, sequence, state, hmac, created_at
		FROM checkpoints
		WHERE chain_id = $1 AND sequence >= $2 AND sequence <= $3
		ORDER BY sequence ASC`
	rows, err := s.db.QueryxContext(ctx, query, chainID, from, to)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []ledger.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

func (s *Store) NearestCheckpoint(ctx context.Context, chainID string, maxSequence int64) (*ledger.Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT chain_id, sequence, state, hmac, created_at
		FROM checkpoints
		WHERE chain_id = $1 AND sequence <= $2
		ORDER BY sequence DESC
		LIMIT 1`
	rows, err := s.db.QueryxContext(ctx, query, chainID, maxSequence)
	if err != nil {
		return nil, fmt.Errorf("read nearest checkpoint: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanCheckpoint(rows)
}

func (s *Store) InsertEvidence(ctx context.Context, ev corroboration.Evidence) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO broker_evidence (chain_id, linked_ticket, action, execution_price, execution_time, source, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ChainID, ev.LinkedTicket, ev.Action, ev.ExecutionPrice, ev.ExecutionTime, ev.Source, ev.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

func (s *Store) ListEvidence(ctx context.Context, chainID string) ([]corroboration.Evidence, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var evidence []corroboration.Evidence
	query := `
		SELECT id, chain_id, linked_ticket, action, execution_price, execution_time, source, received_at
		FROM broker_evidence
		WHERE chain_id = $1
		ORDER BY id ASC`
	if err := s.db.SelectContext(ctx, &evidence, query, chainID); err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return evidence, nil
}

func scanCheckpoint(rows *sqlx.Rows) (*ledger.Checkpoint, error) {
	var (
		cp        ledger.Checkpoint
		stateJSON []byte
	)
	if err := rows.Scan(&cp.ChainID, &cp.Sequence, &stateJSON, &cp.HMAC, &cp.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	return &cp, nil
}

// mapConflict converts serialization failures (40001) and duplicate chain
// positions (23505) into ledger.ErrConflict. Everything else passes through.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "23505":
			return ledger.ErrConflict
		}
	}
	return err
}
