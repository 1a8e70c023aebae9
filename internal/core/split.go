package core

import "fmt"

// ComputeObligations turns one expense into the debts it implies. Pure; the
// expense is validated first and a malformed one aborts with
// ErrInvalidExpense rather than being silently skipped, since dropping an
// expense would corrupt the room's balance.
func ComputeObligations(e Expense) ([]Obligation, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	switch e.SettlementType {
	case SplitEqual:
		return splitEvenly(e.Payer, e.Total.Units, e.Participants), nil
	case SplitItemized:
		// Zero items is a valid (empty) expense, not an error.
		var out []Obligation
		for _, it := range e.Items {
			switch it.Mode {
			case ItemPerPerson:
				for _, p := range it.Participants {
					if p == e.Payer || it.UnitPrice.Units == 0 {
						continue
					}
					out = append(out, Obligation{Ower: p, Payer: e.Payer, Amount: it.UnitPrice.Units})
				}
			case ItemSharedSplit:
				out = append(out, splitEvenly(e.Payer, it.TotalPrice.Units, it.Participants)...)
			}
		}
		return out, nil
	}
	// Unreachable after Validate; kept so the switch stays exhaustive.
	return nil, fmt.Errorf("%w: unknown settlement type %q", ErrInvalidExpense, e.SettlementType)
}

// splitEvenly divides total over the participants with integer floor
// division. The remainder goes one unit at a time to the first participants
// in stored list order; that order dependence is the deterministic tie-break
// the product relies on, not an artifact. The payer's own share is dropped
// entirely, never emitted as zero.
func splitEvenly(payer MemberID, total int64, participants []MemberID) []Obligation {
	n := int64(len(participants))
	base := total / n
	remainder := total - base*n

	out := make([]Obligation, 0, len(participants))
	for i, p := range participants {
		share := base
		if int64(i) < remainder {
			share++
		}
		if p == payer || share == 0 {
			continue
		}
		out = append(out, Obligation{Ower: p, Payer: payer, Amount: share})
	}
	return out
}
