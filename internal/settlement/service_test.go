package settlement_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/memory"
	"tripsplit/internal/settlement"
)

func newFixture(t *testing.T) (*settlement.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	err := store.CreateRoom(context.Background(), core.Room{ID: "r1", Name: "Jeju"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return settlement.NewService(store, store, core.NettingPairwise), store
}

func addEqualExpense(t *testing.T, store *memory.Store, id string, payer core.MemberID, total int64, participants ...core.MemberID) {
	t.Helper()
	err := store.CreateExpense(context.Background(), core.Expense{
		ID:             id,
		RoomID:         "r1",
		Payer:          payer,
		SettlementType: core.SplitEqual,
		Total:          core.Money{Units: total},
		Participants:   participants,
		SpentAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("create expense %s: %v", id, err)
	}
}

func TestComputeTransfersScenario(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t)
	addEqualExpense(t, store, "e1", "A", 9000, "A", "B", "C")

	transfers, err := svc.ComputeTransfers(ctx, "r1", core.NettingPairwise)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := []core.Transfer{
		{From: "B", To: "A", Amount: core.Money{Units: 3000}, Status: core.StatusUnsettled},
		{From: "C", To: "A", Amount: core.Money{Units: 3000}, Status: core.StatusUnsettled},
	}
	if len(transfers) != len(want) {
		t.Fatalf("expected %d transfers, got %v", len(want), transfers)
	}
	for i := range want {
		if transfers[i] != want[i] {
			t.Fatalf("transfer %d: expected %v, got %v", i, want[i], transfers[i])
		}
	}
}

func TestStatusSurvivesRecompute(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t)
	addEqualExpense(t, store, "e1", "A", 9000, "A", "B", "C")

	if _, err := svc.ComputeTransfers(ctx, "r1", ""); err != nil {
		t.Fatalf("compute: %v", err)
	}
	key := settlement.TransferKey{RoomID: "r1", From: "B", To: "A"}
	if err := svc.RequestTransfer(ctx, key); err != nil {
		t.Fatalf("request: %v", err)
	}

	// An unrelated expense changes B's amount but must not touch the status.
	addEqualExpense(t, store, "e2", "A", 600, "A", "B")
	svc.InvalidateRoom("r1")

	transfers, err := svc.ComputeTransfers(ctx, "r1", "")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	var found *core.Transfer
	for i := range transfers {
		if transfers[i].From == "B" && transfers[i].To == "A" {
			found = &transfers[i]
		}
	}
	if found == nil {
		t.Fatalf("B->A missing after recompute: %v", transfers)
	}
	if found.Amount.Units != 3300 {
		t.Fatalf("expected amount updated to 3300, got %d", found.Amount.Units)
	}
	if found.Status != core.StatusRequested {
		t.Fatalf("expected REQUESTED to survive recompute, got %v", found.Status)
	}
}

type staticLister struct {
	expenses []core.Expense
}

func (l staticLister) ListExpenses(context.Context, string) ([]core.Expense, error) {
	return l.expenses, nil
}

func TestComputeTransfersRejectsMalformedLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.CreateRoom(ctx, core.Room{ID: "r1", Name: "Jeju"})

	lister := staticLister{expenses: []core.Expense{
		{ID: "ok", RoomID: "r1", Payer: "A", SettlementType: core.SplitEqual,
			Total: core.Money{Units: 100}, Participants: []core.MemberID{"A", "B"}},
		{ID: "dup", RoomID: "r1", Payer: "A", SettlementType: core.SplitEqual,
			Total: core.Money{Units: 100}, Participants: []core.MemberID{"B", "B"}},
	}}
	svc := settlement.NewService(lister, store, core.NettingPairwise)

	_, err := svc.ComputeTransfers(ctx, "r1", "")
	if !errors.Is(err, core.ErrInvalidExpense) {
		t.Fatalf("expected ErrInvalidExpense, got %v", err)
	}
	if !strings.Contains(err.Error(), "dup") {
		t.Fatalf("error should name the offending expense, got %v", err)
	}
}

func TestRequestAllFor(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t)
	addEqualExpense(t, store, "e1", "A", 9000, "A", "B", "C")

	if _, err := svc.ComputeTransfers(ctx, "r1", ""); err != nil {
		t.Fatalf("compute: %v", err)
	}
	n, err := svc.RequestAllFor(ctx, "r1", "A")
	if err != nil {
		t.Fatalf("request all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 requested, got %d", n)
	}

	transfers, err := svc.ComputeTransfers(ctx, "r1", "")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	for _, tr := range transfers {
		if tr.Status != core.StatusRequested {
			t.Fatalf("expected all REQUESTED, got %v", transfers)
		}
	}
}

func TestResendIsIdempotentAlias(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t)
	addEqualExpense(t, store, "e1", "A", 9000, "A", "B", "C")
	if _, err := svc.ComputeTransfers(ctx, "r1", ""); err != nil {
		t.Fatalf("compute: %v", err)
	}

	key := settlement.TransferKey{RoomID: "r1", From: "B", To: "A"}
	if err := svc.RequestTransfer(ctx, key); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := svc.ResendTransfer(ctx, key); err != nil {
		t.Fatalf("resend: %v", err)
	}
	st, err := svc.GetStatus(ctx, key)
	if err != nil || st != core.StatusRequested {
		t.Fatalf("expected REQUESTED, got %v (%v)", st, err)
	}
}

func TestGetStatusUnknownPair(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)
	_, err := svc.GetStatus(ctx, settlement.TransferKey{RoomID: "r1", From: "x", To: "y"})
	if !errors.Is(err, settlement.ErrTransferNotFound) {
		t.Fatalf("expected ErrTransferNotFound, got %v", err)
	}
}

func TestGlobalModeOnRequest(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t)
	// B paid for A, A paid for C: global netting should route B -> C.
	addEqualExpense(t, store, "e1", "B", 200, "A", "B")
	addEqualExpense(t, store, "e2", "A", 200, "A", "C")

	transfers, err := svc.ComputeTransfers(ctx, "r1", core.NettingGlobal)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// A owes B 100 and is owed 100 by C: A nets to zero, C pays B.
	if len(transfers) != 1 || transfers[0].From != "C" || transfers[0].To != "B" || transfers[0].Amount.Units != 100 {
		t.Fatalf("expected single C->B:100, got %v", transfers)
	}
}
