package storage

import (
	"context"
	"errors"
	"testing"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

func mergeTransfers(t *testing.T, repo *SQLiteRepository, pairs ...core.PairKey) {
	t.Helper()
	transfers := make([]core.Transfer, len(pairs))
	for i, p := range pairs {
		transfers[i] = core.Transfer{From: p.From, To: p.To, Amount: core.Money{Units: 100}}
	}
	if err := repo.Merge(context.Background(), "r1", transfers); err != nil {
		t.Fatalf("merge: %v", err)
	}
}

func TestMergeInsertsPrunesPreserves(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedRoom(t, repo, "r1", "ABCD2345")

	ab := core.PairKey{From: "a", To: "b"}
	cb := core.PairKey{From: "c", To: "b"}
	mergeTransfers(t, repo, ab, cb)

	key := settlement.TransferKey{RoomID: "r1", From: "a", To: "b"}
	if err := repo.Request(ctx, key); err != nil {
		t.Fatalf("request: %v", err)
	}

	// Recompute drops c->b and keeps a->b: the REQUESTED status must survive.
	mergeTransfers(t, repo, ab)

	stored, err := repo.List(ctx, "r1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected pruned map of 1, got %v", stored)
	}
	if stored[ab] != core.StatusRequested {
		t.Fatalf("expected REQUESTED preserved, got %v", stored[ab])
	}
}

func TestTransitionGuards(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedRoom(t, repo, "r1", "ABCD2345")
	mergeTransfers(t, repo, core.PairKey{From: "a", To: "b"})

	key := settlement.TransferKey{RoomID: "r1", From: "a", To: "b"}

	if err := repo.Complete(ctx, key); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("complete before request: expected ErrInvalidTransition, got %v", err)
	}
	if err := repo.Request(ctx, key); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := repo.Request(ctx, key); err != nil {
		t.Fatalf("resend must be a no-op, got %v", err)
	}
	if err := repo.Complete(ctx, key); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.Request(ctx, key); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("DONE is terminal, got %v", err)
	}
	if err := repo.Complete(ctx, key); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("DONE is terminal, got %v", err)
	}

	missing := settlement.TransferKey{RoomID: "r1", From: "x", To: "y"}
	if err := repo.Request(ctx, missing); !errors.Is(err, settlement.ErrTransferNotFound) {
		t.Fatalf("expected ErrTransferNotFound, got %v", err)
	}
}

func TestRequestAllScopedToCreditor(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedRoom(t, repo, "r1", "ABCD2345")
	mergeTransfers(t, repo,
		core.PairKey{From: "b", To: "a"},
		core.PairKey{From: "c", To: "a"},
		core.PairKey{From: "a", To: "d"})

	n, err := repo.RequestAll(ctx, "r1", "a")
	if err != nil {
		t.Fatalf("request all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}

	stored, _ := repo.List(ctx, "r1")
	if stored[core.PairKey{From: "a", To: "d"}] != core.StatusUnsettled {
		t.Fatalf("other creditor's transfer must stay UNSETTLED: %v", stored)
	}

	// Already requested rows are not counted again.
	n, err = repo.RequestAll(ctx, "r1", "a")
	if err != nil || n != 0 {
		t.Fatalf("expected 0 on repeat, got %d (%v)", n, err)
	}
}
