package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedRoom(t *testing.T, repo *SQLiteRepository, id, invite string) {
	t.Helper()
	err := repo.CreateRoom(context.Background(), core.Room{
		ID: id, Name: "Jeju Trip", InviteCode: invite, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
}

func TestRoomRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedRoom(t, repo, "r1", "ABCD2345")

	room, err := repo.GetRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.Name != "Jeju Trip" || room.InviteCode != "ABCD2345" {
		t.Fatalf("unexpected room: %+v", room)
	}

	byInvite, err := repo.FindRoomByInviteCode(ctx, "  abcd2345 ")
	if err != nil {
		t.Fatalf("find by invite: %v", err)
	}
	if byInvite.ID != "r1" {
		t.Fatalf("expected r1, got %s", byInvite.ID)
	}

	if _, err := repo.GetRoom(ctx, "missing"); !errors.Is(err, settlement.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := repo.FindRoomByInviteCode(ctx, "NOPE2345"); !errors.Is(err, settlement.ErrInviteNotFound) {
		t.Fatalf("expected ErrInviteNotFound, got %v", err)
	}
}

func TestAddMemberIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedRoom(t, repo, "r1", "ABCD2345")

	m := core.Member{RoomID: "r1", ID: "alice", Name: "Alice", JoinedAt: time.Now()}
	if err := repo.AddMember(ctx, m); err != nil {
		t.Fatalf("first join: %v", err)
	}
	m.Name = "Alice II"
	if err := repo.AddMember(ctx, m); err != nil {
		t.Fatalf("re-join must not error: %v", err)
	}

	members, err := repo.ListMembers(ctx, "r1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 || members[0].Name != "Alice" {
		t.Fatalf("expected original row kept, got %+v", members)
	}

	if err := repo.RemoveMember(ctx, "r1", "alice"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	members, _ = repo.ListMembers(ctx, "r1")
	if len(members) != 0 {
		t.Fatalf("expected empty, got %+v", members)
	}
}

func TestExpenseRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedRoom(t, repo, "r1", "ABCD2345")

	spent := time.Date(2025, 8, 14, 19, 30, 0, 0, time.UTC)
	in := core.Expense{
		ID: "e1", RoomID: "r1", Title: "BBQ dinner", Payer: "alice",
		SettlementType: core.SplitItemized,
		SpentAt:        spent,
		Items: []core.Item{
			{Name: "Set menu", Mode: core.ItemPerPerson,
				UnitPrice:    core.Money{Units: 15000},
				Participants: []core.MemberID{"carol", "bob", "alice"}},
			{Name: "Soju", Mode: core.ItemSharedSplit,
				TotalPrice:   core.Money{Units: 10001},
				Participants: []core.MemberID{"bob", "carol"}},
		},
	}
	if err := repo.CreateExpense(ctx, in); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	out, err := repo.ListExpenses(ctx, "r1")
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one expense, got %d", len(out))
	}
	got := out[0]
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %+v", got.Items)
	}
	// Stored participant order drives remainder assignment, so it must
	// survive the round trip exactly.
	wantOrder := []core.MemberID{"carol", "bob", "alice"}
	for i, id := range got.Items[0].Participants {
		if id != wantOrder[i] {
			t.Fatalf("item participant order lost: %v", got.Items[0].Participants)
		}
	}
	if got.Items[1].TotalPrice.Units != 10001 {
		t.Fatalf("expected 10001, got %d", got.Items[1].TotalPrice.Units)
	}
}

func TestListExpensesBetween(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedRoom(t, repo, "r1", "ABCD2345")

	days := []string{"2025-08-14", "2025-08-15", "2025-08-16"}
	for i, day := range days {
		spent, _ := time.Parse("2006-01-02", day)
		err := repo.CreateExpense(ctx, core.Expense{
			ID: days[i], RoomID: "r1", Title: day, Payer: "alice",
			SettlementType: core.SplitEqual,
			Total:          core.Money{Units: 1000},
			Participants:   []core.MemberID{"alice", "bob"},
			SpentAt:        spent,
		})
		if err != nil {
			t.Fatalf("create %s: %v", day, err)
		}
	}

	got, err := repo.ListExpensesBetween(ctx, "r1", "2025-08-15", "2025-08-16")
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}

	open, err := repo.ListExpensesBetween(ctx, "r1", "", "")
	if err != nil || len(open) != 3 {
		t.Fatalf("open bounds should return all: %d (%v)", len(open), err)
	}
}

func TestDeleteExpense(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedRoom(t, repo, "r1", "ABCD2345")

	err := repo.CreateExpense(ctx, core.Expense{
		ID: "e1", RoomID: "r1", Payer: "alice",
		SettlementType: core.SplitEqual,
		Total:          core.Money{Units: 100},
		Participants:   []core.MemberID{"alice", "bob"},
		SpentAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.DeleteExpense(ctx, "r1", "e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteExpense(ctx, "r1", "e1"); !errors.Is(err, settlement.ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound, got %v", err)
	}
}
