package core

import (
	"fmt"
	"sort"
)

// NettingMode selects how a room's debt graph is reduced to transfers.
//
// Pairwise keeps payments between people who actually transacted and only
// cancels opposing debt inside each pair. Global minimizes the number of
// transfers by netting every member's balance across the whole room, which
// can direct money between members who never shared an expense. The mode is
// a single explicit parameter; there is exactly one recompute path.
type NettingMode string

const (
	NettingPairwise NettingMode = "PAIRWISE"
	NettingGlobal   NettingMode = "GLOBAL"
)

func (m NettingMode) Valid() bool {
	return m == NettingPairwise || m == NettingGlobal
}

// Accumulate folds obligations from every expense in a room into a directed
// debt map keyed by ordered (ower, payer) pair. Exact integer summation;
// this is the invariant the whole engine's currency correctness rests on.
func Accumulate(obligations []Obligation) map[PairKey]int64 {
	debts := make(map[PairKey]int64, len(obligations))
	for _, o := range obligations {
		if o.Amount <= 0 || o.Ower == o.Payer {
			continue
		}
		debts[PairKey{From: o.Ower, To: o.Payer}] += o.Amount
	}
	return debts
}

// Net collapses a debt map into the transfer list for the given mode.
// Deterministic and idempotent: netting an already-netted map is a fixed
// point, and equal inputs produce identical output ordering. Zero and
// negative residuals are dropped, never emitted.
func Net(debts map[PairKey]int64, mode NettingMode) ([]Transfer, error) {
	switch mode {
	case NettingPairwise:
		return netPairwise(debts), nil
	case NettingGlobal:
		return netGlobal(debts)
	default:
		return nil, fmt.Errorf("unknown netting mode %q", mode)
	}
}

// netPairwise cancels min(a, b) from every pair of opposing debts, leaving
// at most one direction per unordered pair. Equal opposing debts vanish.
func netPairwise(debts map[PairKey]int64) []Transfer {
	out := make([]Transfer, 0, len(debts))
	for key, amount := range debts {
		if amount <= 0 {
			continue
		}
		reverse := debts[PairKey{From: key.To, To: key.From}]
		if reverse >= amount {
			// This direction loses (or ties); the residual, if any, is
			// emitted when the loop reaches the reverse key.
			continue
		}
		out = append(out, Transfer{
			From:   key.From,
			To:     key.To,
			Amount: Money{Units: amount - reverse},
			Status: StatusUnsettled,
		})
	}
	sortTransfers(out)
	return out
}

type memberBalance struct {
	id     MemberID
	amount int64
}

// netGlobal reduces the whole graph to per-member balances and greedily
// matches the largest debtor against the largest creditor until every
// balance is zero, producing at most P-1 transfers for P members with a
// nonzero balance.
func netGlobal(debts map[PairKey]int64) ([]Transfer, error) {
	balances := make(map[MemberID]int64)
	for key, amount := range debts {
		if amount <= 0 {
			continue
		}
		balances[key.To] += amount
		balances[key.From] -= amount
	}

	var creditors, debtors []memberBalance
	var owed, owing int64
	for id, b := range balances {
		switch {
		case b > 0:
			creditors = append(creditors, memberBalance{id: id, amount: b})
			owed += b
		case b < 0:
			debtors = append(debtors, memberBalance{id: id, amount: -b})
			owing += -b
		}
	}
	if owed != owing {
		// Accumulate guarantees this never fires; it guards against an
		// accumulator bug, not against bad user input.
		return nil, fmt.Errorf("%w: owed %d != owing %d", ErrUnbalancedLedger, owed, owing)
	}

	var out []Transfer
	for len(creditors) > 0 && len(debtors) > 0 {
		ci := largestBalance(creditors)
		di := largestBalance(debtors)
		amount := min64(creditors[ci].amount, debtors[di].amount)

		out = append(out, Transfer{
			From:   debtors[di].id,
			To:     creditors[ci].id,
			Amount: Money{Units: amount},
			Status: StatusUnsettled,
		})

		creditors[ci].amount -= amount
		debtors[di].amount -= amount
		if creditors[ci].amount == 0 {
			creditors = append(creditors[:ci], creditors[ci+1:]...)
		}
		if debtors[di].amount == 0 {
			debtors = append(debtors[:di], debtors[di+1:]...)
		}
	}
	sortTransfers(out)
	return out, nil
}

// largestBalance picks the entry with the biggest amount, ties broken by
// member ID so the greedy matching stays deterministic.
func largestBalance(entries []memberBalance) int {
	best := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].amount > entries[best].amount ||
			(entries[i].amount == entries[best].amount && entries[i].id < entries[best].id) {
			best = i
		}
	}
	return best
}

// sortTransfers orders by descending amount, ties by (from, to), for stable
// display and testability.
func sortTransfers(transfers []Transfer) {
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].Amount.Units != transfers[j].Amount.Units {
			return transfers[i].Amount.Units > transfers[j].Amount.Units
		}
		if transfers[i].From != transfers[j].From {
			return transfers[i].From < transfers[j].From
		}
		return transfers[i].To < transfers[j].To
	})
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
