// Package mockctl emulates the controller REST API for development and
// tests. It can be switched offline to exercise the console's cache and
// replay paths.
package mockctl

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/five82/beacon/internal/controller"
)

// Server serves a Fleet over HTTP.
type Server struct {
	mu      sync.Mutex
	fleet   *Fleet
	token   string
	now     func() time.Time
	log     zerolog.Logger
	offline atomic.Bool
	fail    atomic.Int32 // mutation requests left to reject with 503
}

// Options configure a Server.
type Options struct {
	Token  string // required bearer token; empty accepts anything
	Now    func() time.Time
	Logger *zerolog.Logger
}

// NewServer wraps fleet.
func NewServer(fleet *Fleet, opts Options) *Server {
	s := &Server{fleet: fleet, token: opts.Token, now: opts.Now, log: zerolog.Nop()}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "mockctl").Logger()
	}
	return s
}

// SetOffline makes every API route answer 503 until cleared.
func (s *Server) SetOffline(offline bool) {
	s.offline.Store(offline)
}

// FailMutations makes the next n mutation requests answer 503.
func (s *Server) FailMutations(n int) {
	s.fail.Store(int32(n))
}

// Step advances the simulation once.
func (s *Server) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.fleet.Recover(now)
	s.fleet.Step(now)
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	admin := r.PathPrefix("/_mock").Subrouter()
	admin.HandleFunc("/offline", s.handleOffline).Methods(http.MethodPost, http.MethodDelete)
	admin.HandleFunc("/step", func(w http.ResponseWriter, _ *http.Request) {
		s.Step()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireOnline, s.requireToken)
	api.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/access-points", s.handleAccessPoints).Methods(http.MethodGet)
	api.HandleFunc("/stations", s.handleStations).Methods(http.MethodGet)
	api.HandleFunc("/roaming/events", s.handleRoaming).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/access-points/{id}/reboot", s.handleReboot).Methods(http.MethodPost)
	api.HandleFunc("/stations/{mac}/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	return r
}

func (s *Server) requireOnline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.offline.Load() {
			http.Error(w, "controller offline", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleOffline(w http.ResponseWriter, r *http.Request) {
	offline := r.Method == http.MethodPost
	s.SetOffline(offline)
	s.log.Info().Bool("offline", offline).Msg("mock controller availability changed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.fleet.Status(s.now())
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAccessPoints(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	items := append([]controller.AccessPoint(nil), s.fleet.APs...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, controller.AccessPointList{Items: items})
}

func (s *Server) handleStations(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	items := append([]controller.Station(nil), s.fleet.Stations...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, controller.StationList{Items: items})
}

func (s *Server) handleRoaming(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = time.Unix(secs, 0)
	}
	s.mu.Lock()
	items := make([]controller.RoamingEvent, 0, len(s.fleet.Events))
	for _, ev := range s.fleet.Events {
		if since.IsZero() || ev.ParsedTime().After(since) {
			items = append(items, ev)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, controller.RoamingEventList{Items: items})
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	tiles := s.fleet.Tiles()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, controller.Dashboard{Tiles: tiles})
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	if s.rejectMutation(w) {
		return
	}
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	ok := s.fleet.Reboot(id, s.now())
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown access point", http.StatusNotFound)
		return
	}
	s.log.Info().Str("ap", id).Msg("reboot requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebooting"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.rejectMutation(w) {
		return
	}
	mac := strings.ToLower(mux.Vars(r)["mac"])
	s.mu.Lock()
	ok := s.fleet.Disconnect(mac)
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown station", http.StatusNotFound)
		return
	}
	s.log.Info().Str("mac", mac).Msg("station disconnected")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rejectMutation(w http.ResponseWriter) bool {
	for {
		left := s.fail.Load()
		if left <= 0 {
			return false
		}
		if s.fail.CompareAndSwap(left, left-1) {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return true
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
