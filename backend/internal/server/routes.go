package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/backend/internal/config"
	"github.com/BioHazard786/Huddle/backend/internal/presence"
	"github.com/BioHazard786/Huddle/backend/internal/signaling"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

// Version is reported by /health. Overridden at build time with -ldflags.
var Version = "dev"

// Server wires the hub into HTTP.
type Server struct {
	cfg      *config.Config
	hub      *signaling.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger

	// mirrorEnabled is reported by /health.
	mirrorEnabled bool
}

// New creates a Server for hub.
func New(cfg *config.Config, hub *signaling.Hub, logger zerolog.Logger, mirrorEnabled bool) *Server {
	s := &Server{
		cfg:           cfg,
		hub:           hub,
		log:           logger,
		mirrorEnabled: mirrorEnabled,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(recordMetrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.health)
	r.Get("/ws", s.ServeWs)

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", s.createRoom)
		r.Get("/{id}", s.getRoom)
	})

	return r
}

// ServeWs upgrades the request and hands the connection to the hub.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade connection")
		return
	}

	client := signaling.NewClient(s.hub, conn)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.cfg.AllowsAnyOrigin() {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	rooms, participants := s.hub.Store().Stats()

	mirror := "disabled"
	if s.mirrorEnabled {
		mirror = "enabled"
	}

	writeJSON(w, http.StatusOK, protocol.Health{
		Status:       "healthy",
		Version:      Version,
		Rooms:        rooms,
		Participants: participants,
		EventMirror:  mirror,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

// createRoom mints an unused room ID. The room only comes into existence
// when its first participant joins.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	store := s.hub.Store()
	id := signaling.GenerateRoomID(s.cfg.RoomIDLength, store.Exists)

	info := protocol.RoomInfo{RoomID: id, Participants: []protocol.User{}}
	if s.cfg.PublicURL != "" {
		info.URL = s.cfg.PublicURL + "/room/" + id
	}

	s.log.Info().Str("room_id", id).Msg("room id minted")
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	roster := s.hub.Store().Roster(id)
	if len(roster) == 0 {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	writeJSON(w, http.StatusOK, protocol.RoomInfo{RoomID: id, Participants: users(roster)})
}

func users(roster []presence.Participant) []protocol.User {
	out := make([]protocol.User, len(roster))
	for i, p := range roster {
		out[i] = protocol.User{ID: p.ID, Name: p.Name}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
