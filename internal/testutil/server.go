// Package testutil provides an in-process fake of the team platform's
// agent API so the client, stream, and reconciliation layers can be
// exercised end to end without a real backend.
package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/mission"
	"github.com/agime-dev/agimectl/internal/stream"
)

// Server is a scripted agent-API server bound to a random localhost
// port. Seed it with sessions and missions, script the event frames each
// stream should deliver, and point an api.Client at URL().
type Server struct {
	listener net.Listener
	server   *http.Server

	mu       sync.Mutex
	sessions map[string]*api.SessionSnapshot
	missions map[string]*mission.Mission
	scripts  map[string][]stream.Event
	hold     map[string]bool
}

// NewServer creates a fake API server bound to a random port on
// localhost.
func NewServer() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("testutil: binding listener: %w", err)
	}

	s := &Server{
		listener: ln,
		sessions: make(map[string]*api.SessionSnapshot),
		missions: make(map[string]*mission.Mission),
		scripts:  make(map[string][]stream.Event),
		hold:     make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PUT /sessions/{id}", s.handleUpdateSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/archive", s.handleArchiveSession)
	mux.HandleFunc("POST /sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancelSession)
	mux.HandleFunc("GET /sessions/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /missions", s.handleListMissions)
	mux.HandleFunc("POST /missions", s.handleCreateMission)
	mux.HandleFunc("GET /missions/{id}", s.handleGetMission)
	mux.HandleFunc("DELETE /missions/{id}", s.handleDeleteMission)
	mux.HandleFunc("POST /missions/{id}/start", s.missionTransition(mission.StatusRunning))
	mux.HandleFunc("POST /missions/{id}/pause", s.missionTransition(mission.StatusPaused))
	mux.HandleFunc("POST /missions/{id}/cancel", s.missionTransition(mission.StatusCancelled))
	mux.HandleFunc("POST /missions/{id}/steps/{idx}/approve", s.stepTransition(mission.StepCompleted))
	mux.HandleFunc("POST /missions/{id}/steps/{idx}/reject", s.stepTransition(mission.StepFailed))
	mux.HandleFunc("POST /missions/{id}/steps/{idx}/skip", s.stepTransition(mission.StepSkipped))
	mux.HandleFunc("POST /missions/{id}/goals/{gid}/approve", s.goalTransition(mission.GoalCompleted))
	mux.HandleFunc("POST /missions/{id}/goals/{gid}/reject", s.goalTransition(mission.GoalAbandoned))
	mux.HandleFunc("POST /missions/{id}/goals/{gid}/pivot", s.goalTransition(mission.GoalPivoting))
	mux.HandleFunc("GET /missions/{id}/stream", s.handleStream)

	s.server = &http.Server{Handler: mux}
	return s, nil
}

// URL returns the base URL clients should use.
func (s *Server) URL() string {
	return "http://" + s.listener.Addr().String()
}

// Start begins serving HTTP requests. Call in a goroutine.
func (s *Server) Start() error {
	return s.server.Serve(s.listener)
}

// Stop shuts the server down, terminating any open streams.
func (s *Server) Stop() error {
	return s.server.Close()
}

// SeedSession registers a session snapshot.
func (s *Server) SeedSession(snap *api.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[snap.SessionID] = snap
}

// SeedMission registers a mission.
func (s *Server) SeedMission(m *mission.Mission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.MissionID] = m
}

// Script appends event frames that the session or mission stream will
// deliver, in order. Frames already consumed by a connected stream are
// not replayed; resume filtering relies on event ids.
func (s *Server) Script(id string, events ...stream.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[id] = append(s.scripts[id], events...)
}

// HoldStream keeps the stream connection open after the script drains,
// simulating a silent but healthy connection.
func (s *Server) HoldStream(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold[id] = true
}

// EndProcessing flips a session to not-processing with the given
// persisted history, as the backend does when a turn finishes.
func (s *Server) EndProcessing(id, messagesJSON string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.sessions[id]; ok {
		snap.IsProcessing = false
		snap.MessagesJSON = messagesJSON
		snap.UpdatedAt = time.Now()
	}
}

// --- Session handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]api.SessionListItem, 0, len(s.sessions))
	for _, snap := range s.sessions {
		items = append(items, api.SessionListItem{
			SessionID:          snap.SessionID,
			AgentID:            snap.AgentID,
			Title:              snap.Title,
			Pinned:             snap.Pinned,
			IsProcessing:       snap.IsProcessing,
			LastMessagePreview: snap.LastMessagePreview,
			MessageCount:       snap.MessageCount,
			UpdatedAt:          snap.UpdatedAt,
		})
	}
	writeJSON(w, items)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if !readJSON(w, r, &req) {
		return
	}

	snap := &api.SessionSnapshot{
		SessionID:    uuid.New().String(),
		AgentID:      req.AgentID,
		MessagesJSON: "[]",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	s.mu.Lock()
	s.sessions[snap.SessionID] = snap
	s.mu.Unlock()

	writeJSON(w, api.CreateSessionResponse{
		SessionID: snap.SessionID,
		AgentID:   snap.AgentID,
		Status:    "created",
	})
}

func (s *Server) session(r *http.Request) (*api.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.sessions[r.PathValue("id")]
	return snap, ok
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.session(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.mu.Lock()
	copied := *snap
	s.mu.Unlock()
	writeJSON(w, &copied)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateSessionRequest
	if !readJSON(w, r, &req) {
		return
	}
	snap, ok := s.session(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.mu.Lock()
	if req.Title != nil {
		snap.Title = *req.Title
	}
	if req.Pinned != nil {
		snap.Pinned = *req.Pinned
	}
	snap.UpdatedAt = time.Now()
	s.mu.Unlock()
	writeJSON(w, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[r.PathValue("id")]; !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	delete(s.sessions, r.PathValue("id"))
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.session(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.mu.Lock()
	snap.Status = "archived"
	s.mu.Unlock()
	writeJSON(w, map[string]string{"status": "archived"})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req api.SendMessageRequest
	if !readJSON(w, r, &req) {
		return
	}
	snap, ok := s.session(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.mu.Lock()
	snap.IsProcessing = true
	snap.UpdatedAt = time.Now()
	id := snap.SessionID
	s.mu.Unlock()
	writeJSON(w, api.SendMessageResponse{SessionID: id, Streaming: true})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.session(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.mu.Lock()
	snap.IsProcessing = false
	s.mu.Unlock()
	writeJSON(w, map[string]string{"status": "cancelled"})
}

// --- Mission handlers ---

func (s *Server) handleListMissions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mission.Mission, 0, len(s.missions))
	for _, m := range s.missions {
		out = append(out, *m)
	}
	writeJSON(w, out)
}

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req api.CreateMissionRequest
	if !readJSON(w, r, &req) {
		return
	}
	m := &mission.Mission{
		MissionID:     uuid.New().String(),
		AgentID:       req.AgentID,
		Goal:          req.Goal,
		Context:       req.Context,
		Status:        mission.StatusDraft,
		ExecutionMode: mission.ExecutionMode(req.ExecutionMode),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	s.mu.Lock()
	s.missions[m.MissionID] = m
	s.mu.Unlock()
	writeJSON(w, m)
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m, ok := s.missions[r.PathValue("id")]
	if ok {
		copied := *m
		s.mu.Unlock()
		writeJSON(w, &copied)
		return
	}
	s.mu.Unlock()
	http.Error(w, "mission not found", http.StatusNotFound)
}

func (s *Server) handleDeleteMission(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missions[r.PathValue("id")]; !ok {
		http.Error(w, "mission not found", http.StatusNotFound)
		return
	}
	delete(s.missions, r.PathValue("id"))
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (s *Server) missionTransition(to mission.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		m, ok := s.missions[r.PathValue("id")]
		if !ok {
			http.Error(w, "mission not found", http.StatusNotFound)
			return
		}
		m.Status = to
		m.UpdatedAt = time.Now()
		writeJSON(w, map[string]string{"status": string(to)})
	}
}

func (s *Server) stepTransition(to mission.StepStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(r.PathValue("idx"))
		if err != nil {
			http.Error(w, "bad step index", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		m, ok := s.missions[r.PathValue("id")]
		if !ok || idx < 0 || idx >= len(m.Steps) {
			http.Error(w, "step not found", http.StatusNotFound)
			return
		}
		m.Steps[idx].Status = to
		m.UpdatedAt = time.Now()
		writeJSON(w, map[string]string{"status": string(to)})
	}
}

func (s *Server) goalTransition(to mission.GoalStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.GoalActionRequest
		if !readJSON(w, r, &req) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		m, ok := s.missions[r.PathValue("id")]
		if !ok {
			http.Error(w, "mission not found", http.StatusNotFound)
			return
		}
		gid := r.PathValue("gid")
		for i := range m.GoalTree {
			if m.GoalTree[i].GoalID == gid {
				m.GoalTree[i].Status = to
				m.UpdatedAt = time.Now()
				writeJSON(w, map[string]string{"status": string(to)})
				return
			}
		}
		http.Error(w, "goal not found", http.StatusNotFound)
	}
}

// --- Stream handler ---

// handleStream replays scripted frames past the client's resume cursor,
// then either closes or, when held open, idles until more frames arrive
// or the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := r.PathValue("id")
	var cursor uint64
	if v := r.URL.Query().Get("last_event_id"); v != "" {
		cursor, _ = strconv.ParseUint(v, 10, 64)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": ping\n\n")
	flusher.Flush()

	sent := 0
	for {
		s.mu.Lock()
		frames := s.scripts[id]
		hold := s.hold[id]
		s.mu.Unlock()

		for ; sent < len(frames); sent++ {
			ev := frames[sent]
			if ev.ID != 0 && ev.ID <= cursor {
				continue
			}
			writeFrame(w, ev)
			flusher.Flush()
			if ev.Type == stream.EventDone {
				return
			}
		}

		if !hold {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func writeFrame(w http.ResponseWriter, ev stream.Event) {
	if ev.ID != 0 {
		fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	fmt.Fprintf(w, "event: %s\n", ev.Type)
	for _, line := range strings.Split(string(ev.Data), "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

// --- Helpers ---

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		// Allow empty body for requests with no fields.
		return true
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encoding response: %v", err), http.StatusInternalServerError)
	}
}
