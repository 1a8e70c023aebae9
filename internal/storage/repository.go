// Package storage is the SQLite backend. One repository owns the rooms,
// members and expenses; the transfer status store in status.go shares its
// connection.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateRoom implements settlement.RoomStore.
func (r *SQLiteRepository) CreateRoom(ctx context.Context, room core.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, trip_start, trip_end, invite_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID, room.Name, room.TripStart, room.TripEnd, room.InviteCode, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	slog.InfoContext(ctx, "Room created",
		"room_id", room.ID,
		"name", room.Name,
		"invite_code", room.InviteCode)
	return nil
}

func (r *SQLiteRepository) GetRoom(ctx context.Context, roomID string) (core.Room, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, trip_start, trip_end, invite_code, created_at
		 FROM rooms WHERE id = ?`, roomID)
	return scanRoom(row)
}

func (r *SQLiteRepository) FindRoomByInviteCode(ctx context.Context, code string) (core.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, trip_start, trip_end, invite_code, created_at
		 FROM rooms WHERE invite_code = ?`, code)
	room, err := scanRoom(row)
	if errors.Is(err, settlement.ErrRoomNotFound) {
		return core.Room{}, settlement.ErrInviteNotFound
	}
	return room, err
}

func scanRoom(row *sql.Row) (core.Room, error) {
	var room core.Room
	err := row.Scan(&room.ID, &room.Name, &room.TripStart, &room.TripEnd,
		&room.InviteCode, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Room{}, settlement.ErrRoomNotFound
	}
	if err != nil {
		return core.Room{}, fmt.Errorf("scan room: %w", err)
	}
	return room, nil
}

func (r *SQLiteRepository) ListRoomIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM rooms ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list room ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, roomID string) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT room_id, member_id, name, joined_at
		 FROM room_members WHERE room_id = ? ORDER BY joined_at, member_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.RoomID, &m.ID, &m.Name, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember is idempotent: re-joining leaves the original row untouched.
func (r *SQLiteRepository) AddMember(ctx context.Context, m core.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, member_id, name, joined_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (room_id, member_id) DO NOTHING`,
		m.RoomID, m.ID, m.Name, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveMember(ctx context.Context, roomID string, id core.MemberID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND member_id = ?`, roomID, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// CreateExpense inserts the expense with its ordered participants and items
// in one transaction.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, room_id, title, payer_id, settlement_type, total_units, spent_at, receipt_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RoomID, e.Title, e.Payer, e.SettlementType, e.Total.Units, e.SpentAt, e.ReceiptID)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	for pos, id := range e.Participants {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expense_participants (expense_id, member_id, position) VALUES (?, ?, ?)`,
			e.ID, id, pos)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	for ipos, item := range e.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expense_items (expense_id, position, name, mode, unit_units, total_units)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, ipos, item.Name, item.Mode, item.UnitPrice.Units, item.TotalPrice.Units)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		for pos, id := range item.Participants {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO expense_item_participants (expense_id, item_position, member_id, position)
				 VALUES (?, ?, ?, ?)`,
				e.ID, ipos, id, pos)
			if err != nil {
				return fmt.Errorf("insert item participant: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", e.ID,
		"room_id", e.RoomID,
		"title", e.Title,
		"total_units", e.Total.Units)
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, roomID string) ([]core.Expense, error) {
	return r.listExpenses(ctx,
		`SELECT id, room_id, title, payer_id, settlement_type, total_units, spent_at, receipt_id
		 FROM expenses WHERE room_id = ? ORDER BY spent_at, id`, roomID)
}

func (r *SQLiteRepository) ListExpensesBetween(ctx context.Context, roomID, startDate, endDate string) ([]core.Expense, error) {
	query := `SELECT id, room_id, title, payer_id, settlement_type, total_units, spent_at, receipt_id
	          FROM expenses WHERE room_id = ?`
	args := []any{roomID}
	if startDate != "" {
		query += ` AND date(spent_at) >= ?`
		args = append(args, startDate)
	}
	if endDate != "" {
		query += ` AND date(spent_at) <= ?`
		args = append(args, endDate)
	}
	query += ` ORDER BY spent_at, id`
	return r.listExpenses(ctx, query, args...)
}

func (r *SQLiteRepository) listExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var e core.Expense
		err := rows.Scan(&e.ID, &e.RoomID, &e.Title, &e.Payer, &e.SettlementType,
			&e.Total.Units, &e.SpentAt, &e.ReceiptID)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}

	for i := range expenses {
		if err := r.loadExpenseDetails(ctx, &expenses[i]); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

// loadExpenseDetails fills participants and items, preserving stored order.
func (r *SQLiteRepository) loadExpenseDetails(ctx context.Context, e *core.Expense) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id FROM expense_participants WHERE expense_id = ? ORDER BY position`, e.ID)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id core.MemberID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		e.Participants = append(e.Participants, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate participants: %w", err)
	}

	itemRows, err := r.db.QueryContext(ctx,
		`SELECT position, name, mode, unit_units, total_units
		 FROM expense_items WHERE expense_id = ? ORDER BY position`, e.ID)
	if err != nil {
		return fmt.Errorf("query items: %w", err)
	}
	defer itemRows.Close()

	var positions []int
	for itemRows.Next() {
		var pos int
		var item core.Item
		err := itemRows.Scan(&pos, &item.Name, &item.Mode,
			&item.UnitPrice.Units, &item.TotalPrice.Units)
		if err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		e.Items = append(e.Items, item)
		positions = append(positions, pos)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("iterate items: %w", err)
	}

	for i, pos := range positions {
		pRows, err := r.db.QueryContext(ctx,
			`SELECT member_id FROM expense_item_participants
			 WHERE expense_id = ? AND item_position = ? ORDER BY position`, e.ID, pos)
		if err != nil {
			return fmt.Errorf("query item participants: %w", err)
		}
		for pRows.Next() {
			var id core.MemberID
			if err := pRows.Scan(&id); err != nil {
				pRows.Close()
				return fmt.Errorf("scan item participant: %w", err)
			}
			e.Items[i].Participants = append(e.Items[i].Participants, id)
		}
		err = pRows.Err()
		pRows.Close()
		if err != nil {
			return fmt.Errorf("iterate item participants: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, roomID, expenseID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE room_id = ? AND id = ?`, roomID, expenseID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return settlement.ErrExpenseNotFound
	}

	slog.InfoContext(ctx, "Expense deleted", "expense_id", expenseID, "room_id", roomID)
	return nil
}
