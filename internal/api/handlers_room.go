package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/settlement"
)

type memberResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

type roomResponse struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	TripStart  string           `json:"tripStart,omitempty"`
	TripEnd    string           `json:"tripEnd,omitempty"`
	InviteCode string           `json:"inviteCode"`
	CreatedAt  time.Time        `json:"createdAt"`
	Members    []memberResponse `json:"members"`
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		TripStart string `json:"tripStart"`
		TripEnd   string `json:"tripEnd"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.TripStart != "" || req.TripEnd != "" {
		if !validDateKey(req.TripStart) || !validDateKey(req.TripEnd) || req.TripEnd < req.TripStart {
			writeError(w, http.StatusBadRequest, "invalid_request", "trip dates must be YYYY-MM-DD with end not before start")
			return
		}
	}

	inviteCode, err := a.uniqueInviteCode(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	room := core.Room{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		TripStart:  req.TripStart,
		TripEnd:    req.TripEnd,
		InviteCode: inviteCode,
		CreatedAt:  time.Now().UTC(),
	}
	if err := room.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := a.rooms.CreateRoom(r.Context(), room); err != nil {
		writeDomainError(w, err)
		return
	}

	// The creator joins their own room immediately.
	claims := claimsFromContext(r.Context())
	member := core.Member{
		RoomID:   room.ID,
		ID:       core.MemberID(claims.MemberID),
		Name:     claims.Name,
		JoinedAt: time.Now().UTC(),
	}
	if err := a.rooms.AddMember(r.Context(), member); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, roomResponse{
		ID:         room.ID,
		Name:       room.Name,
		TripStart:  room.TripStart,
		TripEnd:    room.TripEnd,
		InviteCode: room.InviteCode,
		CreatedAt:  room.CreatedAt,
		Members:    []memberResponse{{ID: claims.MemberID, Name: claims.Name, JoinedAt: member.JoinedAt}},
	})
}

// uniqueInviteCode retries generation until the code is unused. Collisions
// are vanishingly rare with a 32^8 space, so a handful of attempts is
// plenty.
func (a *API) uniqueInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := settlement.NewInviteCode()
		_, err := a.rooms.FindRoomByInviteCode(ctx, code)
		if errors.Is(err, settlement.ErrInviteNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("could not allocate a unique invite code")
}

func (a *API) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	room, err := a.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	members, err := a.rooms.ListMembers(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoomResponse(room, members))
}

func (a *API) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode string `json:"inviteCode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	room, err := a.rooms.FindRoomByInviteCode(r.Context(), req.InviteCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	claims := claimsFromContext(r.Context())
	err = a.rooms.AddMember(r.Context(), core.Member{
		RoomID:   room.ID,
		ID:       core.MemberID(claims.MemberID),
		Name:     claims.Name,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Member joined room",
		log.FieldRoomID, room.ID,
		log.FieldMemberID, claims.MemberID)

	members, err := a.rooms.ListMembers(r.Context(), room.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(room, members))
}

func (a *API) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if _, err := a.rooms.GetRoom(r.Context(), roomID); err != nil {
		writeDomainError(w, err)
		return
	}
	member := memberFromContext(r.Context())
	if err := a.rooms.RemoveMember(r.Context(), roomID, member); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (a *API) handleRoomSummary(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	room, err := a.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	expenses, err := a.expenses.ListExpenses(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summary := core.Summarize(roomID, expenses, room.TripStart, room.TripEnd)

	type dayTotal struct {
		Date  string `json:"date"`
		Total int64  `json:"total"`
	}
	resp := struct {
		RoomID    string     `json:"roomId"`
		TripTotal int64      `json:"tripTotal"`
		ByDay     []dayTotal `json:"byDay"`
	}{RoomID: summary.RoomID, TripTotal: summary.TripTotal.Units, ByDay: []dayTotal{}}
	for _, d := range summary.ByDay {
		resp.ByDay = append(resp.ByDay, dayTotal{Date: d.Date, Total: d.Total.Units})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toRoomResponse(room core.Room, members []core.Member) roomResponse {
	resp := roomResponse{
		ID:         room.ID,
		Name:       room.Name,
		TripStart:  room.TripStart,
		TripEnd:    room.TripEnd,
		InviteCode: room.InviteCode,
		CreatedAt:  room.CreatedAt,
		Members:    []memberResponse{},
	}
	for _, m := range members {
		resp.Members = append(resp.Members, memberResponse{
			ID:       string(m.ID),
			Name:     m.Name,
			JoinedAt: m.JoinedAt,
		})
	}
	return resp
}

func validDateKey(s string) bool {
	if s == "" {
		return false
	}
	_, err := time.Parse(core.DateKey, s)
	return err == nil
}
