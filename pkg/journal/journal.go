// Package journal provides the SQLite-backed persistence for the payment
// gate: the consumed-proof set that must survive restarts, and the
// settlement ledger operators reconcile against.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ordkit/ordinals-x402/pkg/gate"
)

const schema = `
CREATE TABLE IF NOT EXISTS consumed_proofs (
	proof_key  TEXT PRIMARY KEY,
	payer      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settlements (
	id         TEXT PRIMARY KEY,
	proof_key  TEXT NOT NULL,
	resource   TEXT NOT NULL,
	payer      TEXT NOT NULL,
	amount     TEXT NOT NULL,
	network    TEXT NOT NULL,
	tx         TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_settlements_status ON settlements(status);
`

// Store is a SQLite-backed journal. It implements both gate.ReplayStore
// and gate.SettlementJournal.
type Store struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// Open opens (or creates) the journal database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return &Store{db: db, nowFunc: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Consume atomically records a proof key as spent. The INSERT and the
// decision are a single statement, so of two racing submissions exactly
// one sees an inserted row.
func (s *Store) Consume(ctx context.Context, key, payer string, expiresAt time.Time) (bool, error) {
	now := s.nowFunc().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin consume transaction: %w", err)
	}
	defer tx.Rollback()

	// Entries past retention free their key; the authorization they
	// guarded has expired long before, so this never readmits a live proof.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM consumed_proofs WHERE proof_key = ? AND expires_at <= ?`, key, now); err != nil {
		return false, fmt.Errorf("failed to sweep expired proof: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO consumed_proofs (proof_key, payer, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(proof_key) DO NOTHING`,
		key, payer, expiresAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to consume proof: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read consume result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit consume transaction: %w", err)
	}
	return inserted == 1, nil
}

// RecordSettlement appends one settlement outcome.
func (s *Store) RecordSettlement(ctx context.Context, rec gate.SettlementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowFunc()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (id, proof_key, resource, payer, amount, network, tx, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProofKey, rec.Resource, rec.Payer, rec.Amount, rec.Network,
		rec.Transaction, rec.Status, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record settlement: %w", err)
	}
	return nil
}

// ListUnsettled returns the executed-but-unpaid records awaiting manual
// reconciliation, oldest first.
func (s *Store) ListUnsettled(ctx context.Context) ([]gate.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, proof_key, resource, payer, amount, network, tx, status, created_at
		 FROM settlements WHERE status = ? ORDER BY created_at ASC`,
		gate.SettlementStatusUnsettled)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled records: %w", err)
	}
	defer rows.Close()

	var records []gate.SettlementRecord
	for rows.Next() {
		var rec gate.SettlementRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.ProofKey, &rec.Resource, &rec.Payer,
			&rec.Amount, &rec.Network, &rec.Transaction, &rec.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement record: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Sweep removes consumed proofs past their retention window. Called
// periodically so the table does not grow without bound.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM consumed_proofs WHERE expires_at <= ?`, s.nowFunc().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep consumed proofs: %w", err)
	}
	return res.RowsAffected()
}
