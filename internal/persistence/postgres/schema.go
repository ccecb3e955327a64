package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	chain_id   TEXT        NOT NULL,
	sequence   BIGINT      NOT NULL,
	event_type TEXT        NOT NULL,
	payload    JSONB       NOT NULL,
	ts         BIGINT      NOT NULL,
	prev_hash  TEXT        NOT NULL,
	event_hash TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, sequence)
);

CREATE TABLE IF NOT EXISTS derived_state (
	chain_id             TEXT PRIMARY KEY,
	total_trades         BIGINT           NOT NULL DEFAULT 0,
	won_trades           BIGINT           NOT NULL DEFAULT 0,
	lost_trades          BIGINT           NOT NULL DEFAULT 0,
	total_profit         DOUBLE PRECISION NOT NULL DEFAULT 0,
	balance              DOUBLE PRECISION NOT NULL DEFAULT 0,
	equity               DOUBLE PRECISION NOT NULL DEFAULT 0,
	peak_profit          DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_drawdown         DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_drawdown_pct     DOUBLE PRECISION NOT NULL DEFAULT 0,
	drawdown_started_at  BIGINT           NOT NULL DEFAULT 0,
	max_drawdown_seconds BIGINT           NOT NULL DEFAULT 0,
	last_sequence        BIGINT           NOT NULL DEFAULT 0,
	last_event_hash      TEXT             NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	chain_id   TEXT        NOT NULL,
	sequence   BIGINT      NOT NULL,
	state      JSONB       NOT NULL,
	hmac       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, sequence)
);

CREATE TABLE IF NOT EXISTS broker_evidence (
	id              BIGSERIAL PRIMARY KEY,
	chain_id        TEXT             NOT NULL,
	linked_ticket   BIGINT           NOT NULL,
	action          TEXT             NOT NULL,
	execution_price DOUBLE PRECISION NOT NULL,
	execution_time  BIGINT           NOT NULL,
	source          TEXT             NOT NULL DEFAULT '',
	received_at     TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS broker_evidence_chain_idx ON broker_evidence (chain_id, linked_ticket);
`

// EnsureSchema creates the ledger tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
