// Package store implements output persistence: writing a wallet's
// replay outputs (ledger entries, snapshots) back to the columnar
// store, scoped-delete-then-insert for idempotence under reruns
// (spec.md §5, §6, §7).
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neomarket/ledgerengine/internal/model"
)

// Store writes one wallet's replay outputs to the ledger and
// snapshots tables. It holds no per-wallet state.
type Store struct {
	db *sql.DB
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// WriteRange commits ledger and snapshot rows for one wallet's replay
// over [start, end]. It first issues a scoped delete on both output
// tables for that wallet/range, then batch-inserts the new rows
// (spec.md §6): re-running the same wallet/range is idempotent because
// delete always precedes insert, never the other way around. The two
// tables are written as two independent delete+insert pairs, not one
// cross-table transaction (spec.md §7's documented write-failure
// recovery is "re-run the same wallet/range", not atomic commit).
func (s *Store) WriteRange(ctx context.Context, wallet common.Address, start, end int64, entries []model.LedgerEntry, snapshots []model.Snapshot) error {
	if err := s.writeLedger(ctx, wallet, start, end, entries); err != nil {
		return fmt.Errorf("store: ledger: %w", err)
	}
	if err := s.writeSnapshots(ctx, wallet, start, end, snapshots); err != nil {
		return fmt.Errorf("store: snapshots: %w", err)
	}
	return nil
}

func (s *Store) writeLedger(ctx context.Context, wallet common.Address, start, end int64, entries []model.LedgerEntry) error {
	if _, err := s.db.ExecContext(ctx,
		`ALTER TABLE ledger DELETE WHERE wallet = ? AND timestamp BETWEEN ? AND ?`,
		wallet.Hex(), start, end); err != nil {
		return fmt.Errorf("scoped delete: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO ledger (id, wallet, event_type, tx_hash, log_index, block_number,
                     timestamp, token_id, condition_id, quantity, cash_delta,
                     unit_price, cost_basis, realized_pnl, entry_timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		tokenID := ""
		if e.TokenID != nil {
			tokenID = e.TokenID.String()
		}
		conditionID := ""
		if e.ConditionID != nil {
			conditionID = e.ConditionID.Hex()
		}
		if _, err := stmt.ExecContext(ctx,
			e.StableID, e.Wallet.Hex(), string(e.EventType), e.TxHash.Hex(), e.LogIndex,
			e.BlockNumber, e.Timestamp, tokenID, conditionID, e.Quantity, e.CashDelta,
			e.UnitPrice, e.CostBasis, e.RealizedPnL, e.EntryTimestamp,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert row %s: %w", e.StableID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) writeSnapshots(ctx context.Context, wallet common.Address, start, end int64, snapshots []model.Snapshot) error {
	if _, err := s.db.ExecContext(ctx,
		`ALTER TABLE snapshots DELETE WHERE wallet = ? AND at BETWEEN ? AND ?`,
		wallet.Hex(), start, end); err != nil {
		return fmt.Errorf("scoped delete: %w", err)
	}
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO snapshots (wallet, at, realized_cum, unrealized, open_cost,
                        open_value, cashflow_cum, open_token_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx,
			snap.Wallet.Hex(), snap.At, snap.RealizedCum, snap.Unrealized, snap.OpenCost,
			snap.OpenValue, snap.CashflowCum, snap.OpenTokenCount,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert snapshot at %d: %w", snap.At, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
