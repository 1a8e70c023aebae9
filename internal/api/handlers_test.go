package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/memory"
	"tripsplit/internal/settlement"
)

const testSecret = "0123456789abcdef"

func newTestAPI(t *testing.T) (http.Handler, *API) {
	t.Helper()
	store := memory.New()
	svc := settlement.NewService(store, store, core.NettingPairwise)
	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	a := New(store, store, svc, nil, testSecret, []string{"*"}, logger)
	return a.Handler(), a
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func login(t *testing.T, handler http.Handler, name string) (token, memberID string) {
	t.Helper()
	w := doJSON(t, handler, "POST", "/api/auth/login", "", map[string]string{"name": name})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	return resp["token"], resp["memberId"]
}

func createRoom(t *testing.T, handler http.Handler, token string) (roomID, inviteCode string) {
	t.Helper()
	w := doJSON(t, handler, "POST", "/api/rooms", token, map[string]string{"name": "Jeju"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create room: %d %s", w.Code, w.Body.String())
	}
	var resp roomResponse
	decodeBody(t, w, &resp)
	return resp.ID, resp.InviteCode
}

func TestLoginValidation(t *testing.T) {
	handler, _ := newTestAPI(t)

	w := doJSON(t, handler, "POST", "/api/auth/login", "", map[string]string{"name": "  "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank name: expected 400, got %d", w.Code)
	}

	token, memberID := login(t, handler, "Alice")
	if token == "" || memberID == "" {
		t.Fatal("login should issue token and member id")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler, _ := newTestAPI(t)

	w := doJSON(t, handler, "POST", "/api/rooms", "", map[string]string{"name": "Jeju"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = doJSON(t, handler, "POST", "/api/rooms", "not-a-jwt", map[string]string{"name": "Jeju"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", w.Code)
	}
}

func TestRoomCreateJoinRoundTrip(t *testing.T) {
	handler, _ := newTestAPI(t)
	aliceToken, _ := login(t, handler, "Alice")
	bobToken, bobID := login(t, handler, "Bob")

	roomID, invite := createRoom(t, handler, aliceToken)
	if len(invite) != settlement.InviteCodeLength {
		t.Fatalf("invite code %q has wrong length", invite)
	}

	w := doJSON(t, handler, "POST", "/api/rooms/join", bobToken, map[string]string{"inviteCode": invite})
	if w.Code != http.StatusOK {
		t.Fatalf("join: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, "GET", "/api/rooms/"+roomID, aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get room: %d", w.Code)
	}
	var room roomResponse
	decodeBody(t, w, &room)
	if len(room.Members) != 2 {
		t.Fatalf("expected 2 members, got %+v", room.Members)
	}

	w = doJSON(t, handler, "POST", "/api/rooms/join", bobToken, map[string]string{"inviteCode": "NOPE2345"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("bad invite: expected 404, got %d", w.Code)
	}

	// Leaving removes only the caller.
	w = doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/leave", bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("leave: %d", w.Code)
	}
	w = doJSON(t, handler, "GET", "/api/rooms/"+roomID, aliceToken, nil)
	decodeBody(t, w, &room)
	for _, m := range room.Members {
		if m.ID == bobID {
			t.Fatalf("bob should be gone: %+v", room.Members)
		}
	}
}

func TestExpenseAndSettlementFlow(t *testing.T) {
	handler, _ := newTestAPI(t)
	token, _ := login(t, handler, "Alice")
	roomID, _ := createRoom(t, handler, token)

	w := doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/expenses", token, expenseRequest{
		Title:          "BBQ",
		PayerID:        "A",
		SettlementType: "EQUAL",
		Amount:         "9,000",
		Participants:   []string{"A", "B", "C"},
		SpentAt:        "2025-08-14",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create expense: %d %s", w.Code, w.Body.String())
	}
	var created expenseResponse
	decodeBody(t, w, &created)
	if created.Total != 9000 {
		t.Fatalf("amount string not parsed: %+v", created)
	}

	w = doJSON(t, handler, "GET", "/api/rooms/"+roomID+"/settlement", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settlement: %d %s", w.Code, w.Body.String())
	}
	var transfers []transferResponse
	decodeBody(t, w, &transfers)
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %+v", transfers)
	}
	for _, tr := range transfers {
		if tr.To != "A" || tr.Amount != 3000 || tr.Status != "UNSETTLED" {
			t.Fatalf("unexpected transfer %+v", tr)
		}
	}

	// Workflow: request then complete.
	w = doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/transfers/request", token,
		map[string]string{"from": "B", "to": "A"})
	if w.Code != http.StatusOK {
		t.Fatalf("request: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/transfers/complete", token,
		map[string]string{"from": "B", "to": "A"})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}

	// Completing again hits the terminal state.
	w = doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/transfers/complete", token,
		map[string]string{"from": "B", "to": "A"})
	if w.Code != http.StatusConflict {
		t.Fatalf("double complete: expected 409, got %d", w.Code)
	}

	// Unknown pair is 404, not 409.
	w = doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/transfers/request", token,
		map[string]string{"from": "X", "to": "Y"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown pair: expected 404, got %d", w.Code)
	}
}

func TestCompleteBeforeRequestConflicts(t *testing.T) {
	handler, _ := newTestAPI(t)
	token, _ := login(t, handler, "Alice")
	roomID, _ := createRoom(t, handler, token)

	doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/expenses", token, expenseRequest{
		PayerID: "A", SettlementType: "EQUAL", Amount: "3000",
		Participants: []string{"A", "B"},
	})
	doJSON(t, handler, "GET", "/api/rooms/"+roomID+"/settlement", token, nil)

	w := doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/transfers/complete", token,
		map[string]string{"from": "B", "to": "A"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", w.Code, w.Body.String())
	}
}

func TestInvalidExpenseRejected(t *testing.T) {
	handler, _ := newTestAPI(t)
	token, _ := login(t, handler, "Alice")
	roomID, _ := createRoom(t, handler, token)

	w := doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/expenses", token, expenseRequest{
		PayerID: "A", SettlementType: "EQUAL", Amount: "100",
		Participants: []string{"B", "B"},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate participant: expected 422, got %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/expenses", token, expenseRequest{
		PayerID: "A", SettlementType: "EQUAL", Amount: "-100",
		Participants: []string{"A", "B"},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative amount: expected 422, got %d", w.Code)
	}
}

func TestSettlementModeQuery(t *testing.T) {
	handler, _ := newTestAPI(t)
	token, _ := login(t, handler, "Alice")
	roomID, _ := createRoom(t, handler, token)

	w := doJSON(t, handler, "GET", "/api/rooms/"+roomID+"/settlement?mode=global", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("global mode: %d", w.Code)
	}
	w = doJSON(t, handler, "GET", "/api/rooms/"+roomID+"/settlement?mode=fancy", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad mode: expected 400, got %d", w.Code)
	}
}

func TestRequestAllUsesTokenMember(t *testing.T) {
	handler, _ := newTestAPI(t)
	token, memberID := login(t, handler, "Alice")
	roomID, _ := createRoom(t, handler, token)

	doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/expenses", token, expenseRequest{
		PayerID: memberID, SettlementType: "EQUAL", Amount: "9000",
		Participants: []string{memberID, "B", "C"},
	})
	doJSON(t, handler, "GET", "/api/rooms/"+roomID+"/settlement", token, nil)

	w := doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/transfers/request-all", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("request-all: %d %s", w.Code, w.Body.String())
	}
	var resp map[string]int
	decodeBody(t, w, &resp)
	if resp["requested"] != 2 {
		t.Fatalf("expected 2 requested, got %+v", resp)
	}
}

func TestRoomSummary(t *testing.T) {
	handler, _ := newTestAPI(t)
	token, _ := login(t, handler, "Alice")
	roomID, _ := createRoom(t, handler, token)

	for _, e := range []expenseRequest{
		{PayerID: "A", SettlementType: "EQUAL", Amount: "9,000", Participants: []string{"A", "B"}, SpentAt: "2025-08-14"},
		{PayerID: "B", SettlementType: "EQUAL", Amount: "5,000", Participants: []string{"A", "B"}, SpentAt: "2025-08-15"},
	} {
		w := doJSON(t, handler, "POST", "/api/rooms/"+roomID+"/expenses", token, e)
		if w.Code != http.StatusCreated {
			t.Fatalf("seed expense: %d %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, handler, "GET", "/api/rooms/"+roomID+"/summary", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary: %d", w.Code)
	}
	var resp struct {
		TripTotal int64 `json:"tripTotal"`
		ByDay     []struct {
			Date  string `json:"date"`
			Total int64  `json:"total"`
		} `json:"byDay"`
	}
	decodeBody(t, w, &resp)
	if resp.TripTotal != 14000 {
		t.Fatalf("trip total: %+v", resp)
	}
	if len(resp.ByDay) != 2 || resp.ByDay[0].Total != 9000 {
		t.Fatalf("by day: %+v", resp.ByDay)
	}
}

func TestReceiptDraftEndpoint(t *testing.T) {
	handler, _ := newTestAPI(t)
	token, _ := login(t, handler, "Alice")

	w := doJSON(t, handler, "POST", "/api/receipts/draft", token, map[string]any{
		"merchantName": "Corner Mart",
		"total":        7000,
		"items":        []map[string]any{{"name": "Water", "price": 1000, "qty": 7}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("draft: %d %s", w.Code, w.Body.String())
	}
	var draft struct {
		Merchant string `json:"merchant"`
		Total    struct {
			Units int64
		} `json:"total"`
	}
	decodeBody(t, w, &draft)
	if draft.Merchant != "Corner Mart" {
		t.Fatalf("draft: %s", w.Body.String())
	}
}

func TestUnknownRoomIs404(t *testing.T) {
	handler, _ := newTestAPI(t)
	token, _ := login(t, handler, "Alice")

	for _, path := range []string{
		"/api/rooms/missing",
		"/api/rooms/missing/summary",
		"/api/rooms/missing/settlement",
	} {
		w := doJSON(t, handler, "GET", path, token, nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, w.Code)
		}
	}
}
