// Package settlement wires the pure engine in internal/core to the storage
// backends and exposes the settlement workflow commands.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tripsplit/internal/cache"
	"tripsplit/internal/core"
)

// Service recomputes a room's transfer list on demand and runs the status
// workflow. Recomputation is pure and full: every call rebuilds the list
// from the complete expense ledger, then reconciles the status store.
type Service struct {
	expenses    ExpenseLister
	statuses    StatusStore
	defaultMode core.NettingMode

	// Computed transfer lists are cheap but read often; short TTL keeps
	// the settlement screen snappy without a staleness window worth
	// worrying about.
	cache *cache.LRUCache[[]core.Transfer]
}

func NewService(expenses ExpenseLister, statuses StatusStore, defaultMode core.NettingMode) *Service {
	if !defaultMode.Valid() {
		defaultMode = core.NettingPairwise
	}
	return &Service{
		expenses:    expenses,
		statuses:    statuses,
		defaultMode: defaultMode,
		cache:       cache.NewLRUCache[[]core.Transfer](256, 30*time.Second),
	}
}

// DefaultMode is the room-wide netting mode used when a request does not
// pick one explicitly.
func (s *Service) DefaultMode() core.NettingMode {
	return s.defaultMode
}

// ComputeTransfers rebuilds the room's transfer list under the given
// netting mode, reconciles the status store against it, and returns the
// list joined with each transfer's stored status.
//
// A single malformed expense aborts the whole computation: silently
// skipping it would show a wrong but plausible number, which is worse than
// showing no settlement at all.
func (s *Service) ComputeTransfers(ctx context.Context, roomID string, mode core.NettingMode) ([]core.Transfer, error) {
	if mode == "" {
		mode = s.defaultMode
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown netting mode %q", mode)
	}

	key := cacheKey(roomID, mode)
	if cached, ok := s.cache.Get(key); ok {
		return cloneTransfers(cached), nil
	}

	expenses, err := s.expenses.ListExpenses(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	var obligations []core.Obligation
	for _, e := range expenses {
		obs, err := core.ComputeObligations(e)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		obligations = append(obligations, obs...)
	}

	transfers, err := core.Net(core.Accumulate(obligations), mode)
	if err != nil {
		// An unbalanced ledger is an engine bug, not bad input; log loudly
		// and surface as an internal error.
		slog.ErrorContext(ctx, "Settlement netting failed",
			"room_id", roomID, "mode", string(mode), "error", err)
		return nil, err
	}

	if err := s.statuses.Merge(ctx, roomID, transfers); err != nil {
		return nil, fmt.Errorf("merge statuses: %w", err)
	}
	stored, err := s.statuses.List(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	for i := range transfers {
		if st, ok := stored[core.PairKey{From: transfers[i].From, To: transfers[i].To}]; ok {
			transfers[i].Status = st
		}
	}

	s.cache.Set(key, cloneTransfers(transfers))
	return transfers, nil
}

// GetStatus reports the stored workflow status for one transfer pair.
func (s *Service) GetStatus(ctx context.Context, key TransferKey) (core.TransferStatus, error) {
	stored, err := s.statuses.List(ctx, key.RoomID)
	if err != nil {
		return "", fmt.Errorf("list statuses: %w", err)
	}
	st, ok := stored[core.PairKey{From: key.From, To: key.To}]
	if !ok {
		return "", ErrTransferNotFound
	}
	return st, nil
}

// RequestTransfer asks the debtor to pay. Allowed from UNSETTLED and, as a
// resend, from REQUESTED.
func (s *Service) RequestTransfer(ctx context.Context, key TransferKey) error {
	if err := s.statuses.Request(ctx, key); err != nil {
		return err
	}
	s.InvalidateRoom(key.RoomID)
	return nil
}

// ResendTransfer is the idempotent alias of RequestTransfer.
func (s *Service) ResendTransfer(ctx context.Context, key TransferKey) error {
	return s.RequestTransfer(ctx, key)
}

// CompleteTransfer marks a requested transfer as paid. DONE is terminal.
func (s *Service) CompleteTransfer(ctx context.Context, key TransferKey) error {
	if err := s.statuses.Complete(ctx, key); err != nil {
		return err
	}
	s.InvalidateRoom(key.RoomID)
	return nil
}

// RequestAllFor requests every unsettled transfer owed to the creditor in
// one atomic batch and returns how many were requested.
func (s *Service) RequestAllFor(ctx context.Context, roomID string, creditor core.MemberID) (int, error) {
	n, err := s.statuses.RequestAll(ctx, roomID, creditor)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.InvalidateRoom(roomID)
	}
	return n, nil
}

// InvalidateRoom drops cached transfer lists after any ledger or status
// mutation.
func (s *Service) InvalidateRoom(roomID string) {
	s.cache.Delete(cacheKey(roomID, core.NettingPairwise))
	s.cache.Delete(cacheKey(roomID, core.NettingGlobal))
}

func cacheKey(roomID string, mode core.NettingMode) string {
	return roomID + "\x00" + string(mode)
}

func cloneTransfers(in []core.Transfer) []core.Transfer {
	out := make([]core.Transfer, len(in))
	copy(out, in)
	return out
}
