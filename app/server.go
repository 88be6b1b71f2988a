// Package app wires the durable store, ephemeral store, identity gate, and
// room hub manager into an HTTP server, generalized from the teacher's
// collab-editor app/server.go wiring.
package app

import (
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"collab-editor/pkg/config"
	"collab-editor/pkg/db"
	"collab-editor/pkg/ephemeral"
	"collab-editor/pkg/handlers"
	"collab-editor/pkg/identity"
	"collab-editor/pkg/room"
)

// Server represents the application server.
type Server struct {
	router   *mux.Router
	hubs     *room.HubManager
	handlers *handlers.Handlers
	store    db.Store
	eph      io.Closer
	config   *config.Config
}

// NewServer creates a new server instance, wiring every collaborator per
// spec §6's recognized configuration.
func NewServer() *Server {
	cfg := config.Load()

	store, err := db.NewPostgresStore(cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("failed to connect to durable store: %v", err)
	}

	eph, err := ephemeral.Connect(cfg.EphemeralStoreURL)
	if err != nil {
		log.Fatalf("failed to connect to ephemeral store: %v", err)
	}

	roomCfg := room.Config{
		OpLogWindow:        cfg.OpLogWindow,
		PresenceTTL:        cfg.PresenceTTL,
		OpLogTTL:           cfg.OpLogTTL,
		ChatRingSize:       cfg.ChatRingSize,
		ChatTTL:            cfg.ChatTTL,
		StoreRetryAttempts: cfg.StoreRetryAttempts,
	}
	hubs := room.NewHubManager(store, eph, roomCfg)

	// No external auth facade is wired into this exercise (spec §1
	// Non-goals: authentication/authorization beyond the callback
	// boundary); any non-empty bearer token is accepted and its value
	// doubles as both user ID and username. A production deployment
	// plugs a real Verify callback in here instead.
	gate := identity.NewGate(func(token string) (identity.User, error) {
		return identity.User{ID: token, Username: token}, nil
	})

	h := handlers.NewHandlers(store, hubs, gate, cfg.IdleTimeout)

	r := mux.NewRouter()

	r.HandleFunc("/ws/{roomId}", h.HandleWebSocket)

	r.HandleFunc("/api/rooms", h.CreateRoom).Methods("POST")
	r.HandleFunc("/api/rooms/{roomId}", h.GetRoom).Methods("GET")
	r.HandleFunc("/api/rooms/{roomId}", h.DeleteRoom).Methods("DELETE")
	r.HandleFunc("/api/rooms/join", h.JoinRoomByInvite).Methods("POST")
	r.HandleFunc("/api/rooms/{roomId}/users", h.GetRoomUsers).Methods("GET")
	r.HandleFunc("/api/rooms/{roomId}/files", h.ListFiles).Methods("GET")
	r.HandleFunc("/api/rooms/{roomId}/files", h.CreateFile).Methods("POST")
	r.HandleFunc("/api/rooms/{roomId}/files/{fileId}", h.DeleteFile).Methods("DELETE")
	r.HandleFunc("/api/files/{fileId}/versions", h.ListVersions).Methods("GET")

	return &Server{
		router:   r,
		hubs:     hubs,
		handlers: h,
		store:    store,
		eph:      eph,
		config:   cfg,
	}
}

// Start starts the server.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.config.GetServerAddr()
	}
	log.Printf("starting collaborative editor server on %s", addr)
	return http.ListenAndServe(addr, corsMiddleware(s.config.FrontendOrigin, s.router))
}

// corsMiddleware handles CORS headers and responds to preflight requests at
// the outer layer so they don't get rejected by method-restricted routes,
// mirroring the teacher's corsMiddleware in collab-editor app/server.go.
func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigin == "*" || origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		w.Header().Set("Access-Control-Max-Age", "600")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close closes the server's store connections.
func (s *Server) Close() error {
	if postgresStore, ok := s.store.(*db.PostgresStore); ok {
		if err := postgresStore.Close(); err != nil {
			return err
		}
	}
	if s.eph != nil {
		return s.eph.Close()
	}
	return nil
}
