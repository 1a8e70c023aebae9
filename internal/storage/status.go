package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

// Merge implements settlement.StatusStore: inserts missing pairs as
// UNSETTLED, prunes rows whose pair no longer appears in the transfer list,
// and leaves surviving rows alone. Runs in one transaction so a recompute
// never observes a half-reconciled table.
func (r *SQLiteRepository) Merge(ctx context.Context, roomID string, transfers []core.Transfer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	keep := make(map[core.PairKey]struct{}, len(transfers))
	for _, t := range transfers {
		keep[core.PairKey{From: t.From, To: t.To}] = struct{}{}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transfer_status (room_id, from_id, to_id, status)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (room_id, from_id, to_id) DO NOTHING`,
			roomID, t.From, t.To, core.StatusUnsettled)
		if err != nil {
			return fmt.Errorf("insert status: %w", err)
		}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT from_id, to_id FROM transfer_status WHERE room_id = ?`, roomID)
	if err != nil {
		return fmt.Errorf("query statuses: %w", err)
	}
	var stale []core.PairKey
	for rows.Next() {
		var key core.PairKey
		if err := rows.Scan(&key.From, &key.To); err != nil {
			rows.Close()
			return fmt.Errorf("scan status key: %w", err)
		}
		if _, ok := keep[key]; !ok {
			stale = append(stale, key)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("iterate statuses: %w", err)
	}

	for _, key := range stale {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM transfer_status WHERE room_id = ? AND from_id = ? AND to_id = ?`,
			roomID, key.From, key.To)
		if err != nil {
			return fmt.Errorf("prune status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, roomID string) (map[core.PairKey]core.TransferStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT from_id, to_id, status FROM transfer_status WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[core.PairKey]core.TransferStatus)
	for rows.Next() {
		var key core.PairKey
		var st core.TransferStatus
		if err := rows.Scan(&key.From, &key.To, &st); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out[key] = st
	}
	return out, rows.Err()
}

// Request moves a transfer to REQUESTED. Re-requesting an already requested
// transfer is a no-op resend.
func (r *SQLiteRepository) Request(ctx context.Context, key settlement.TransferKey) error {
	return r.transition(ctx, key, core.StatusRequested, func(st core.TransferStatus) bool {
		return st.CanRequest()
	})
}

// Complete moves a REQUESTED transfer to DONE. DONE is terminal.
func (r *SQLiteRepository) Complete(ctx context.Context, key settlement.TransferKey) error {
	return r.transition(ctx, key, core.StatusDone, func(st core.TransferStatus) bool {
		return st.CanComplete()
	})
}

// transition reads the current status and applies the guarded update in one
// transaction, distinguishing a missing row from a forbidden transition.
func (r *SQLiteRepository) transition(ctx context.Context, key settlement.TransferKey, next core.TransferStatus, allowed func(core.TransferStatus) bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current core.TransferStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM transfer_status WHERE room_id = ? AND from_id = ? AND to_id = ?`,
		key.RoomID, key.From, key.To).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.ErrTransferNotFound
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if !allowed(current) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, current, next)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE transfer_status SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE room_id = ? AND from_id = ? AND to_id = ?`,
		next, key.RoomID, key.From, key.To)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}

	slog.InfoContext(ctx, "Transfer status updated",
		"room_id", key.RoomID,
		"from", string(key.From),
		"to", string(key.To),
		"status", string(next))
	return nil
}

// RequestAll requests every unsettled transfer owed to the creditor in one
// statement, so the batch is atomic.
func (r *SQLiteRepository) RequestAll(ctx context.Context, roomID string, creditor core.MemberID) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfer_status SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE room_id = ? AND to_id = ? AND status = ?`,
		core.StatusRequested, roomID, creditor, core.StatusUnsettled)
	if err != nil {
		return 0, fmt.Errorf("request all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
