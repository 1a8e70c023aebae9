package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/receipts"
)

type itemRequest struct {
	Name         string   `json:"name"`
	Mode         string   `json:"mode"`
	UnitPrice    string   `json:"unitPrice"`
	TotalPrice   string   `json:"totalPrice"`
	Participants []string `json:"participants"`
}

type expenseRequest struct {
	Title          string        `json:"title"`
	PayerID        string        `json:"payerId"`
	SettlementType string        `json:"settlementType"`
	Amount         string        `json:"amount"`
	Participants   []string      `json:"participants"`
	Items          []itemRequest `json:"items"`
	SpentAt        string        `json:"spentAt"`
	ReceiptID      string        `json:"receiptId"`
}

type itemResponse struct {
	Name         string   `json:"name"`
	Mode         string   `json:"mode"`
	UnitPrice    int64    `json:"unitPrice,omitempty"`
	TotalPrice   int64    `json:"totalPrice,omitempty"`
	Participants []string `json:"participants"`
}

type expenseResponse struct {
	ID             string         `json:"id"`
	RoomID         string         `json:"roomId"`
	Title          string         `json:"title"`
	PayerID        string         `json:"payerId"`
	SettlementType string         `json:"settlementType"`
	Total          int64          `json:"total"`
	Participants   []string       `json:"participants,omitempty"`
	Items          []itemResponse `json:"items,omitempty"`
	SpentAt        time.Time      `json:"spentAt"`
	ReceiptID      string         `json:"receiptId,omitempty"`
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if _, err := a.rooms.GetRoom(r.Context(), roomID); err != nil {
		writeDomainError(w, err)
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	expense, err := expenseFromRequest(roomID, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := a.expenses.CreateExpense(r.Context(), expense); err != nil {
		writeDomainError(w, err)
		return
	}
	a.notifyRecompute(r, roomID, "expense_created")

	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if _, err := a.rooms.GetRoom(r.Context(), roomID); err != nil {
		writeDomainError(w, err)
		return
	}

	startDate := r.URL.Query().Get("startDate")
	endDate := r.URL.Query().Get("endDate")
	if startDate != "" && !validDateKey(startDate) || endDate != "" && !validDateKey(endDate) {
		writeError(w, http.StatusBadRequest, "invalid_request", "dates must be YYYY-MM-DD")
		return
	}

	expenses, err := a.expenses.ListExpensesBetween(r.Context(), roomID, startDate, endDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		resp = append(resp, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID, expenseID := vars["roomId"], vars["expenseId"]

	if err := a.expenses.DeleteExpense(r.Context(), roomID, expenseID); err != nil {
		writeDomainError(w, err)
		return
	}
	a.notifyRecompute(r, roomID, "expense_deleted")

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleReceiptDraft(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "analysis document too large or unreadable")
		return
	}

	draft, err := receipts.ParseAnalysis(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_analysis", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// notifyRecompute invalidates the room's settlement cache and, when a
// publisher is configured, notifies the worker. The mutation itself already
// succeeded, so a broker failure is logged and swallowed.
func (a *API) notifyRecompute(r *http.Request, roomID, reason string) {
	a.settlement.InvalidateRoom(roomID)
	if a.publisher == nil {
		return
	}
	if err := a.publisher.PublishRecompute(r.Context(), roomID, reason); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Recompute publish failed",
			log.FieldRoomID, roomID,
			log.FieldError, err)
	}
}

func expenseFromRequest(roomID string, req expenseRequest) (core.Expense, error) {
	expense := core.Expense{
		ID:             uuid.NewString(),
		RoomID:         roomID,
		Title:          strings.TrimSpace(req.Title),
		Payer:          core.MemberID(req.PayerID),
		SettlementType: core.SettlementType(req.SettlementType),
		ReceiptID:      req.ReceiptID,
	}

	spentAt, err := parseSpentAt(req.SpentAt)
	if err != nil {
		return core.Expense{}, err
	}
	expense.SpentAt = spentAt

	switch expense.SettlementType {
	case core.SplitEqual:
		units, err := core.ParseAmount(req.Amount)
		if err != nil {
			return core.Expense{}, err
		}
		expense.Total = core.Money{Units: units}
		expense.Participants = toMemberIDs(req.Participants)
	case core.SplitItemized:
		for _, it := range req.Items {
			item := core.Item{
				Name:         it.Name,
				Mode:         core.ItemMode(it.Mode),
				Participants: toMemberIDs(it.Participants),
			}
			switch item.Mode {
			case core.ItemPerPerson:
				units, err := core.ParseAmount(it.UnitPrice)
				if err != nil {
					return core.Expense{}, err
				}
				item.UnitPrice = core.Money{Units: units}
			case core.ItemSharedSplit:
				units, err := core.ParseAmount(it.TotalPrice)
				if err != nil {
					return core.Expense{}, err
				}
				item.TotalPrice = core.Money{Units: units}
			}
			expense.Items = append(expense.Items, item)
		}
		expense.Total = core.ExpenseTotal(expense)
	}

	if err := expense.Validate(); err != nil {
		return core.Expense{}, err
	}
	return expense, nil
}

// parseSpentAt accepts an RFC3339 timestamp or a bare date key.
func parseSpentAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(core.DateKey, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unparseable spentAt %q", core.ErrInvalidExpense, s)
	}
	return t, nil
}

func toMemberIDs(ids []string) []core.MemberID {
	out := make([]core.MemberID, len(ids))
	for i, id := range ids {
		out[i] = core.MemberID(id)
	}
	return out
}

func toExpenseResponse(e core.Expense) expenseResponse {
	resp := expenseResponse{
		ID:             e.ID,
		RoomID:         e.RoomID,
		Title:          e.Title,
		PayerID:        string(e.Payer),
		SettlementType: string(e.SettlementType),
		Total:          core.ExpenseTotal(e).Units,
		SpentAt:        e.SpentAt,
		ReceiptID:      e.ReceiptID,
	}
	for _, id := range e.Participants {
		resp.Participants = append(resp.Participants, string(id))
	}
	for _, it := range e.Items {
		item := itemResponse{
			Name:       it.Name,
			Mode:       string(it.Mode),
			UnitPrice:  it.UnitPrice.Units,
			TotalPrice: it.TotalPrice.Units,
		}
		for _, id := range it.Participants {
			item.Participants = append(item.Participants, string(id))
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
