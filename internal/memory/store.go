// Package memory is the in-memory storage backend, used for local
// development (DATA_BACKEND=memory) and by tests. It implements the same
// ports as the SQLite repository.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

type Store struct {
	mu       sync.Mutex
	rooms    map[string]core.Room
	members  map[string][]core.Member                        // roomID -> ordered members
	expenses map[string][]core.Expense                       // roomID -> insertion order
	statuses map[string]map[core.PairKey]core.TransferStatus // roomID -> pair -> status
}

func New() *Store {
	return &Store{
		rooms:    make(map[string]core.Room),
		members:  make(map[string][]core.Member),
		expenses: make(map[string][]core.Expense),
		statuses: make(map[string]map[core.PairKey]core.TransferStatus),
	}
}

func (s *Store) CreateRoom(_ context.Context, room core.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (core.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return core.Room{}, settlement.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) FindRoomByInviteCode(_ context.Context, code string) (core.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.InviteCode == code {
			return room, nil
		}
	}
	return core.Room{}, settlement.ErrInviteNotFound
}

func (s *Store) ListRoomIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListMembers(_ context.Context, roomID string) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, settlement.ErrRoomNotFound
	}
	return append([]core.Member(nil), s.members[roomID]...), nil
}

func (s *Store) AddMember(_ context.Context, m core.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[m.RoomID]; !ok {
		return settlement.ErrRoomNotFound
	}
	for _, existing := range s.members[m.RoomID] {
		if existing.ID == m.ID {
			return nil // joining twice is a no-op
		}
	}
	s.members[m.RoomID] = append(s.members[m.RoomID], m)
	return nil
}

func (s *Store) RemoveMember(_ context.Context, roomID string, id core.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.members[roomID]
	for i, m := range members {
		if m.ID == id {
			s.members[roomID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[e.RoomID]; !ok {
		return settlement.ErrRoomNotFound
	}
	s.expenses[e.RoomID] = append(s.expenses[e.RoomID], e)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, roomID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.expenses[roomID]...), nil
}

func (s *Store) ListExpensesBetween(ctx context.Context, roomID, startDate, endDate string) ([]core.Expense, error) {
	all, err := s.ListExpenses(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var out []core.Expense
	for _, e := range all {
		day := e.SpentAt.Format(core.DateKey)
		if startDate != "" && day < startDate {
			continue
		}
		if endDate != "" && day > endDate {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) DeleteExpense(_ context.Context, roomID, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expenses := s.expenses[roomID]
	for i, e := range expenses {
		if e.ID == expenseID {
			s.expenses[roomID] = append(expenses[:i], expenses[i+1:]...)
			return nil
		}
	}
	return settlement.ErrExpenseNotFound
}

// Merge implements settlement.StatusStore: new pairs start UNSETTLED,
// vanished pairs are pruned, surviving pairs keep the stored status.
func (s *Store) Merge(_ context.Context, roomID string, transfers []core.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[core.PairKey]struct{}, len(transfers))
	for _, tr := range transfers {
		fresh[core.PairKey{From: tr.From, To: tr.To}] = struct{}{}
	}

	stored := s.statuses[roomID]
	if stored == nil {
		stored = make(map[core.PairKey]core.TransferStatus)
		s.statuses[roomID] = stored
	}
	for key := range stored {
		if _, ok := fresh[key]; !ok {
			delete(stored, key)
		}
	}
	for key := range fresh {
		if _, ok := stored[key]; !ok {
			stored[key] = core.StatusUnsettled
		}
	}
	return nil
}

func (s *Store) List(_ context.Context, roomID string) (map[core.PairKey]core.TransferStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[core.PairKey]core.TransferStatus, len(s.statuses[roomID]))
	for key, st := range s.statuses[roomID] {
		out[key] = st
	}
	return out, nil
}

func (s *Store) Request(_ context.Context, key settlement.TransferKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(key, core.TransferStatus.CanRequest, core.StatusRequested)
}

func (s *Store) Complete(_ context.Context, key settlement.TransferKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(key, core.TransferStatus.CanComplete, core.StatusDone)
}

func (s *Store) RequestAll(_ context.Context, roomID string, creditor core.MemberID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key, st := range s.statuses[roomID] {
		if key.To == creditor && st == core.StatusUnsettled {
			s.statuses[roomID][key] = core.StatusRequested
			count++
		}
	}
	return count, nil
}

func (s *Store) transitionLocked(key settlement.TransferKey, allowed func(core.TransferStatus) bool, next core.TransferStatus) error {
	stored := s.statuses[key.RoomID]
	current, ok := stored[core.PairKey{From: key.From, To: key.To}]
	if !ok {
		return settlement.ErrTransferNotFound
	}
	if !allowed(current) {
		return core.ErrInvalidTransition
	}
	stored[core.PairKey{From: key.From, To: key.To}] = next
	return nil
}
