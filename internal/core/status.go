package core

// TransferStatus is the human workflow state of one transfer. It is keyed
// by the (from, to) pair and lives independently of the transfer's amount,
// so it survives recomputation after ledger edits.
//
// Lifecycle: UNSETTLED -> REQUESTED -> DONE. A repeated request (resend) is
// a no-op transition; DONE is terminal.
type TransferStatus string

const (
	StatusUnsettled TransferStatus = "UNSETTLED"
	StatusRequested TransferStatus = "REQUESTED"
	StatusDone      TransferStatus = "DONE"
)

func (s TransferStatus) Valid() bool {
	switch s {
	case StatusUnsettled, StatusRequested, StatusDone:
		return true
	}
	return false
}

// CanRequest reports whether a request (or resend) is allowed from s.
func (s TransferStatus) CanRequest() bool {
	return s == StatusUnsettled || s == StatusRequested
}

// CanComplete reports whether the transfer can be marked done from s.
func (s TransferStatus) CanComplete() bool {
	return s == StatusRequested
}
