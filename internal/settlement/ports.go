package settlement

import (
	"context"
	"errors"

	"tripsplit/internal/core"
)

// Storage errors shared by the SQLite and memory backends.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrExpenseNotFound  = errors.New("expense not found")
	ErrTransferNotFound = errors.New("transfer not found")
	ErrInviteNotFound   = errors.New("invite code not found")
)

// TransferKey addresses one transfer's workflow status. Always the stable
// (room, from, to) triple, never a synthetic row id, so the status survives
// recomputation after ledger edits.
type TransferKey struct {
	RoomID string
	From   core.MemberID
	To     core.MemberID
}

// Ports for the storage backends.
type (
	RoomStore interface {
		CreateRoom(ctx context.Context, room core.Room) error
		GetRoom(ctx context.Context, roomID string) (core.Room, error)
		FindRoomByInviteCode(ctx context.Context, code string) (core.Room, error)
		ListRoomIDs(ctx context.Context) ([]string, error)
		ListMembers(ctx context.Context, roomID string) ([]core.Member, error)
		// AddMember is idempotent: re-joining a room is not an error.
		AddMember(ctx context.Context, m core.Member) error
		RemoveMember(ctx context.Context, roomID string, id core.MemberID) error
	}

	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.Expense) error
		ListExpenses(ctx context.Context, roomID string) ([]core.Expense, error)
		// ListExpensesBetween filters on spend date keys (inclusive);
		// empty bounds are open.
		ListExpensesBetween(ctx context.Context, roomID, startDate, endDate string) ([]core.Expense, error)
		DeleteExpense(ctx context.Context, roomID, expenseID string) error
	}

	// ExpenseLister is the slice of ExpenseStore the engine needs.
	ExpenseLister interface {
		ListExpenses(ctx context.Context, roomID string) ([]core.Expense, error)
	}

	// StatusStore persists transfer workflow statuses per room.
	StatusStore interface {
		// Merge reconciles stored statuses against a freshly computed
		// transfer list: new pairs start UNSETTLED, pairs no longer owing
		// anything are pruned, surviving pairs keep their status untouched.
		Merge(ctx context.Context, roomID string, transfers []core.Transfer) error
		List(ctx context.Context, roomID string) (map[core.PairKey]core.TransferStatus, error)
		// Request moves UNSETTLED or REQUESTED to REQUESTED.
		Request(ctx context.Context, key TransferKey) error
		// Complete moves REQUESTED to DONE.
		Complete(ctx context.Context, key TransferKey) error
		// RequestAll requests every UNSETTLED transfer owed to creditor,
		// all-or-nothing, and reports how many it touched.
		RequestAll(ctx context.Context, roomID string, creditor core.MemberID) (int, error)
	}
)

// RecomputePublisher distributes recompute notifications after ledger
// mutations. A nil publisher is valid; recompute then happens lazily on the
// next settlement read.
type RecomputePublisher interface {
	PublishRecompute(ctx context.Context, roomID, reason string) error
}
