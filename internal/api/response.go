package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// writeDomainError maps the storage and engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrRoomNotFound),
		errors.Is(err, settlement.ErrExpenseNotFound),
		errors.Is(err, settlement.ErrTransferNotFound),
		errors.Is(err, settlement.ErrInviteNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrInvalidExpense):
		writeError(w, http.StatusUnprocessableEntity, "invalid_expense", err.Error())
	case errors.Is(err, core.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, core.ErrUnbalancedLedger):
		writeError(w, http.StatusInternalServerError, "unbalanced_ledger", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
