// Package handlers implements the thin REST facade of spec §9: read-mostly
// CRUD over rooms and files, with file mutations forwarded through the room
// hub's synchronous entry points so they share one canonical path with the
// live WebSocket edits. Generalized from the teacher's collab-editor
// pkg/handlers/handlers.go, which mixed transport plumbing with document
// mutation; here transport plumbing lives in pkg/session and this package
// is left with only the HTTP surface.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"collab-editor/pkg/db"
	"collab-editor/pkg/identity"
	"collab-editor/pkg/protocol"
	"collab-editor/pkg/room"
	"collab-editor/pkg/session"
)

// Handlers bundles the dependencies the REST facade and WebSocket upgrade
// endpoint need: the durable store for room/file CRUD, the hub manager for
// canonical mutation and presence reads, and the identity gate for the
// upgrade handshake.
type Handlers struct {
	store       db.Store
	hubs        *room.HubManager
	gate        *identity.Gate
	idleTimeout time.Duration
}

// NewHandlers wires a Handlers instance. idleTimeout matches the session's
// configured idle timeout (spec §6 IDLE_TIMEOUT_SECONDS).
func NewHandlers(store db.Store, hubs *room.HubManager, gate *identity.Gate, idleTimeout time.Duration) *Handlers {
	return &Handlers{store: store, hubs: hubs, gate: gate, idleTimeout: idleTimeout}
}

// upgrader allows any origin; the teacher's collab-editor upgrader did the
// same and left CORS enforcement to the HTTP middleware layer instead.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the connection and hands it to a Session, which
// owns the rest of the connection's lifecycle (spec §4.5, §6).
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	token := r.URL.Query().Get("token")
	sess := session.New(conn, h.gate, h.hubs, h.store, h.idleTimeout)
	if err := sess.Authenticate(token); err != nil {
		conn.Close()
		return
	}
	sess.Run()
}

// --- rooms ---

func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		OwnerID string `json:"owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	rm, err := h.store.CreateRoom(req.Name, req.OwnerID)
	if err != nil {
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	if err := h.store.AddMember(rm.ID, req.OwnerID); err != nil {
		http.Error(w, "failed to add owner as member", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, rm)
}

func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	rm, err := h.store.GetRoom(roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (h *Handlers) JoinRoomByInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode string `json:"invite_code"`
		UserID     string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	rm, err := h.store.GetRoomByInviteCode(req.InviteCode)
	if err != nil {
		http.Error(w, "invite code not recognized", http.StatusNotFound)
		return
	}
	if err := h.store.AddMember(rm.ID, req.UserID); err != nil {
		http.Error(w, "failed to join room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rm)
}

func (h *Handlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if err := h.store.DeleteRoom(roomID); err != nil {
		http.Error(w, "failed to delete room", http.StatusInternalServerError)
		return
	}
	h.hubs.DropHub(roomID)
	w.WriteHeader(http.StatusNoContent)
}

// GetRoomUsers returns the participants currently joined to a room's live
// hub (empty if the room has no hub running yet), per spec §9.
func (h *Handlers) GetRoomUsers(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	hub, err := h.hubs.GetOrCreateHub(roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, protocol.RoomUsersPayload{Users: hub.GetUsers()})
}

// --- files ---

func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	files, err := h.store.ListFiles(roomID)
	if err != nil {
		http.Error(w, "failed to list files", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// CreateFile routes through the hub's synchronous entry point so a REST
// create can never race a live WebSocket create-file for the same room
// (spec §9's single canonical mutation path).
func (h *Handlers) CreateFile(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	var req protocol.CreateFilePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	hub, err := h.hubs.GetOrCreateHub(roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	file, err := hub.CreateFileSync(req)
	if err != nil {
		http.Error(w, "failed to create file", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	fileID := mux.Vars(r)["fileId"]

	hub, err := h.hubs.GetOrCreateHub(roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	if err := hub.DeleteFileSync(protocol.DeleteFilePayload{FileID: fileID}); err != nil {
		http.Error(w, "failed to delete file", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]
	versions, err := h.store.ListVersions(fileID)
	if err != nil {
		http.Error(w, "failed to list versions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
