package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/mindconnect/internal/ice"
	"github.com/BioHazard786/mindconnect/internal/signaling"
	"github.com/BioHazard786/mindconnect/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Any origin: a socket can only reach the rooms it joins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs upgrades the request and hands the socket to the hub. The
// connection is not in any room until it sends a join.
func ServeWs(hub *signaling.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		if _, err := hub.Register(conn); err != nil {
			logger.Warn("rejecting websocket", "remote", r.RemoteAddr, "err", err)
		}
	}
}

func registerRoutes(mux *http.ServeMux, opts Options) {
	api := &api{store: opts.Store, ice: ice.Fallback{Primary: opts.ICE, Log: opts.Logger}, log: opts.Logger}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Signaling server is healthy."))
	})
	mux.HandleFunc("GET "+opts.WSPath, ServeWs(opts.Hub, opts.Logger))

	mux.HandleFunc("POST /api/sessions", api.createSession)
	mux.HandleFunc("GET /api/sessions/{first}/{second}", api.sessionLookup)
	mux.HandleFunc("PATCH /api/sessions/{id}", api.updateSession)
	mux.HandleFunc("GET /api/users/{userId}/sessions", api.userSessions)
	mux.HandleFunc("GET /api/ice-servers", api.iceServers)
	mux.HandleFunc("POST /api/demo-room", api.demoRoom)
}

type api struct {
	store store.Store
	ice   ice.Provider
	log   *slog.Logger
}

func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	var in store.NewSession
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to create session")
		return
	}
	if in.RoomID == "" {
		in.RoomID = "room-" + uuid.NewString()
	}

	s, err := a.store.CreateSession(r.Context(), in)
	if err != nil {
		a.log.Warn("create session", "err", err)
		writeMessage(w, statusFor(err, http.StatusBadRequest), "Failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// sessionLookup serves both /api/sessions/room/{roomId} and
// /api/sessions/{sessionId}/messages; as separate patterns they conflict.
func (a *api) sessionLookup(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	switch {
	case first == "room":
		a.sessionByRoom(w, r, second)
	case second == "messages":
		a.sessionMessages(w, r, first)
	default:
		http.NotFound(w, r)
	}
}

func (a *api) sessionByRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	s, err := a.store.SessionByRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Session not found")
			return
		}
		a.log.Error("fetch session", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type statusUpdate struct {
	Status  store.Status `json:"status"`
	EndTime *time.Time   `json:"endTime,omitempty"`
}

func (a *api) updateSession(w http.ResponseWriter, r *http.Request) {
	var in statusUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to update session")
		return
	}

	s, err := a.store.UpdateSessionStatus(r.Context(), r.PathValue("id"), in.Status, in.EndTime)
	if err != nil {
		status := statusFor(err, http.StatusInternalServerError)
		if status == http.StatusInternalServerError {
			a.log.Error("update session", "err", err)
		}
		writeMessage(w, status, "Failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) userSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.store.UserSessions(r.Context(), r.PathValue("userId"))
	if err != nil {
		a.log.Error("fetch user sessions", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch user sessions")
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *api) sessionMessages(w http.ResponseWriter, r *http.Request, sessionID string) {
	messages, err := a.store.SessionMessages(r.Context(), sessionID)
	if err != nil {
		a.log.Error("fetch messages", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *api) iceServers(w http.ResponseWriter, r *http.Request) {
	servers, _ := a.ice.ICEServers(r.Context())
	writeJSON(w, http.StatusOK, servers)
}

type demoRoom struct {
	Session *store.Session `json:"session"`
	RoomID  string         `json:"roomId"`
}

func (a *api) demoRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := "demo-" + uuid.NewString()
	tag := uuid.NewString()[:8]

	patient, err := a.store.CreateUser(ctx, store.NewUser{
		Username: fmt.Sprintf("demo-patient-%s", tag),
		Email:    fmt.Sprintf("demo-patient-%s@mindconnect.com", tag),
		FullName: "Demo Patient",
		Role:     store.RolePatient,
	})
	if err != nil {
		a.log.Error("create demo patient", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to create demo room")
		return
	}

	s, err := a.store.CreateSession(ctx, store.NewSession{
		RoomID:    roomID,
		PatientID: patient.ID,
		Status:    store.StatusScheduled,
	})
	if err != nil {
		a.log.Error("create demo session", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to create demo room")
		return
	}
	writeJSON(w, http.StatusOK, demoRoom{Session: s, RoomID: roomID})
}

func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidStatus), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
