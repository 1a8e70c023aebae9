// Package api is the JSON HTTP surface: rooms, expenses, settlement reads
// and the transfer status workflow.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"tripsplit/internal/log"
	"tripsplit/internal/settlement"
)

type API struct {
	router      *mux.Router
	rooms       settlement.RoomStore
	expenses    settlement.ExpenseStore
	settlement  *settlement.Service
	publisher   settlement.RecomputePublisher
	jwtSecret   []byte
	corsOrigins []string
	logger      *log.Logger
}

// New wires the handlers. publisher may be nil; recompute then happens
// lazily on the next settlement read.
func New(rooms settlement.RoomStore, expenses settlement.ExpenseStore, svc *settlement.Service, publisher settlement.RecomputePublisher, jwtSecret string, corsOrigins []string, logger *log.Logger) *API {
	a := &API{
		router:      mux.NewRouter(),
		rooms:       rooms,
		expenses:    expenses,
		settlement:  svc,
		publisher:   publisher,
		jwtSecret:   []byte(jwtSecret),
		corsOrigins: corsOrigins,
		logger:      logger.WithComponent(log.ComponentHTTP),
	}

	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	a.router.HandleFunc("/readyz", a.handleReady).Methods("GET")

	// Auth endpoint stays outside the protected subrouter
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("POST")

	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/rooms", a.handleCreateRoom).Methods("POST")
	protected.HandleFunc("/rooms/join", a.handleJoinRoom).Methods("POST")
	protected.HandleFunc("/rooms/{roomId}", a.handleGetRoom).Methods("GET")
	protected.HandleFunc("/rooms/{roomId}/leave", a.handleLeaveRoom).Methods("POST")
	protected.HandleFunc("/rooms/{roomId}/summary", a.handleRoomSummary).Methods("GET")

	protected.HandleFunc("/rooms/{roomId}/expenses", a.handleCreateExpense).Methods("POST")
	protected.HandleFunc("/rooms/{roomId}/expenses", a.handleListExpenses).Methods("GET")
	protected.HandleFunc("/rooms/{roomId}/expenses/{expenseId}", a.handleDeleteExpense).Methods("DELETE")

	protected.HandleFunc("/rooms/{roomId}/settlement", a.handleGetSettlement).Methods("GET")
	protected.HandleFunc("/rooms/{roomId}/transfers/request", a.handleRequestTransfer).Methods("POST")
	protected.HandleFunc("/rooms/{roomId}/transfers/resend", a.handleResendTransfer).Methods("POST")
	protected.HandleFunc("/rooms/{roomId}/transfers/complete", a.handleCompleteTransfer).Methods("POST")
	protected.HandleFunc("/rooms/{roomId}/transfers/request-all", a.handleRequestAll).Methods("POST")

	protected.HandleFunc("/receipts/draft", a.handleReceiptDraft).Methods("POST")
}

// Handler wraps the router with CORS and request logging.
func (a *API) Handler() http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins:   a.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return log.Middleware(a.logger)(cors.New(corsOptions).Handler(a.router))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := a.rooms.ListRoomIDs(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
