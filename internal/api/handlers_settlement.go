package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/settlement"
)

type transferResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (a *API) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if _, err := a.rooms.GetRoom(r.Context(), roomID); err != nil {
		writeDomainError(w, err)
		return
	}

	mode, ok := nettingModeFromQuery(r.URL.Query().Get("mode"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "mode must be pairwise or global")
		return
	}

	transfers, err := a.settlement.ComputeTransfers(r.Context(), roomID, mode)
	if err != nil {
		writeSettlementError(w, err)
		return
	}

	resp := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		resp = append(resp, transferResponse{
			From:   string(t.From),
			To:     string(t.To),
			Amount: t.Amount.Units,
			Status: string(t.Status),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeSettlementError is writeDomainError with the one twist the
// settlement read needs: a malformed expense means the whole room cannot be
// settled, not that the request was malformed.
func writeSettlementError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrInvalidExpense) {
		writeError(w, http.StatusUnprocessableEntity, "cannot_compute_settlement", err.Error())
		return
	}
	writeDomainError(w, err)
}

func (a *API) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	a.handleTransferCommand(w, r, a.settlement.RequestTransfer, core.StatusRequested)
}

func (a *API) handleResendTransfer(w http.ResponseWriter, r *http.Request) {
	a.handleTransferCommand(w, r, a.settlement.ResendTransfer, core.StatusRequested)
}

func (a *API) handleCompleteTransfer(w http.ResponseWriter, r *http.Request) {
	a.handleTransferCommand(w, r, a.settlement.CompleteTransfer, core.StatusDone)
}

func (a *API) handleTransferCommand(w http.ResponseWriter, r *http.Request, command func(context.Context, settlement.TransferKey) error, result core.TransferStatus) {
	roomID := mux.Vars(r)["roomId"]

	if _, err := a.rooms.GetRoom(r.Context(), roomID); err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "from and to are required")
		return
	}

	key := settlement.TransferKey{
		RoomID: roomID,
		From:   core.MemberID(req.From),
		To:     core.MemberID(req.To),
	}
	if err := command(r.Context(), key); err != nil {
		writeDomainError(w, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transfer status updated",
		log.FieldRoomID, roomID,
		log.FieldFrom, req.From,
		log.FieldTo, req.To,
		log.FieldStatus, string(result))

	writeJSON(w, http.StatusOK, map[string]string{
		"from":   req.From,
		"to":     req.To,
		"status": string(result),
	})
}

func (a *API) handleRequestAll(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if _, err := a.rooms.GetRoom(r.Context(), roomID); err != nil {
		writeDomainError(w, err)
		return
	}

	creditor := memberFromContext(r.Context())
	n, err := a.settlement.RequestAllFor(r.Context(), roomID, creditor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Requested all transfers",
		log.FieldRoomID, roomID,
		log.FieldMemberID, string(creditor),
		"requested", n)

	writeJSON(w, http.StatusOK, map[string]int{"requested": n})
}

func nettingModeFromQuery(raw string) (core.NettingMode, bool) {
	switch strings.ToUpper(raw) {
	case "":
		return "", true
	case "PAIRWISE":
		return core.NettingPairwise, true
	case "GLOBAL":
		return core.NettingGlobal, true
	default:
		return "", false
	}
}
