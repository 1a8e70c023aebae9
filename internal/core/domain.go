package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	SplitEqual    SettlementType = "EQUAL"
	SplitItemized SettlementType = "ITEMIZED"

	ItemPerPerson   ItemMode = "PER_PERSON"
	ItemSharedSplit ItemMode = "SHARED_SPLIT"
)

type (
	// MemberID identifies a room member. Opaque; never parsed.
	MemberID string

	SettlementType string

	ItemMode string

	// Money is an integer amount in minor currency units.
	// All engine arithmetic happens on Units; no floats anywhere.
	Money struct {
		Units int64
	}

	Room struct {
		ID         string
		Name       string
		TripStart  string // date key YYYY-MM-DD, may be empty
		TripEnd    string
		InviteCode string
		CreatedAt  time.Time
	}

	Member struct {
		RoomID   string
		ID       MemberID
		Name     string
		JoinedAt time.Time
	}

	// Item is one line of an itemized expense. PER_PERSON charges UnitPrice
	// to each participant; SHARED_SPLIT divides TotalPrice across them.
	Item struct {
		Name         string
		Mode         ItemMode
		UnitPrice    Money
		TotalPrice   Money
		Participants []MemberID
	}

	Expense struct {
		ID             string
		RoomID         string
		Title          string
		Payer          MemberID
		SettlementType SettlementType
		Total          Money      // authoritative for EQUAL, derived for ITEMIZED
		Participants   []MemberID // ordered; EQUAL only
		Items          []Item     // ITEMIZED only
		SpentAt        time.Time
		ReceiptID      string
	}

	// Obligation is a single-expense debt from Ower to Payer, pre-aggregation.
	Obligation struct {
		Ower   MemberID
		Payer  MemberID
		Amount int64
	}

	// PairKey is the ordered (debtor, creditor) pair a debt or transfer is
	// keyed by. A struct key, so member IDs containing any delimiter cannot
	// collide.
	PairKey struct {
		From MemberID
		To   MemberID
	}

	// Transfer is an aggregated, netted payment recommendation.
	Transfer struct {
		From   MemberID
		To     MemberID
		Amount Money
		Status TransferStatus
	}
)

var (
	ErrInvalidExpense    = errors.New("invalid expense")
	ErrUnbalancedLedger  = errors.New("unbalanced ledger")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func (m Money) Validate() error {
	if m.Units < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInvalidExpense, m.Units)
	}
	return nil
}

func (r Room) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("room name cannot be empty")
	}
	if len(r.Name) > 100 {
		return errors.New("room name too long (max 100 characters)")
	}
	return nil
}

func (i Item) Validate() error {
	if len(i.Participants) == 0 {
		return fmt.Errorf("%w: item %q has no participants", ErrInvalidExpense, i.Name)
	}
	if dup, ok := firstDuplicate(i.Participants); ok {
		return fmt.Errorf("%w: item %q lists participant %q twice", ErrInvalidExpense, i.Name, dup)
	}
	switch i.Mode {
	case ItemPerPerson:
		if err := i.UnitPrice.Validate(); err != nil {
			return err
		}
	case ItemSharedSplit:
		if err := i.TotalPrice.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown item mode %q", ErrInvalidExpense, i.Mode)
	}
	return nil
}

func (e Expense) Validate() error {
	switch e.SettlementType {
	case SplitEqual:
		if err := e.Total.Validate(); err != nil {
			return err
		}
		if len(e.Participants) == 0 {
			return fmt.Errorf("%w: equal split has no participants", ErrInvalidExpense)
		}
		if dup, ok := firstDuplicate(e.Participants); ok {
			return fmt.Errorf("%w: participant %q listed twice", ErrInvalidExpense, dup)
		}
	case SplitItemized:
		for _, it := range e.Items {
			if err := it.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown settlement type %q", ErrInvalidExpense, e.SettlementType)
	}
	return nil
}

// firstDuplicate reports the first member ID appearing more than once.
// Duplicates would double-count a person's share, so they are rejected
// rather than deduplicated.
func firstDuplicate(ids []MemberID) (MemberID, bool) {
	seen := make(map[MemberID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}
