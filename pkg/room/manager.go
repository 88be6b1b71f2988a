package room

import (
	"sync"

	"collab-editor/pkg/db"
	"collab-editor/pkg/ephemeral"
)

// HubManager owns every room's Hub, generalized from the teacher's
// RoomManager (collab-editor's pkg/room/room.go GetOrCreateRoom/rooms map).
// Only one HubManager process is authoritative for a room at a time per
// spec §4.4 (open question iii: multi-process room ownership is future work).
type HubManager struct {
	mu    sync.Mutex
	hubs  map[string]*Hub
	store db.Store
	eph   ephemeral.Store
	cfg   Config
}

// NewHubManager creates a manager that lazily spins up a Hub per room.
func NewHubManager(store db.Store, eph ephemeral.Store, cfg Config) *HubManager {
	return &HubManager{
		hubs:  make(map[string]*Hub),
		store: store,
		eph:   eph,
		cfg:   cfg,
	}
}

// GetOrCreateHub returns the hub for roomID, verifying the room exists in
// the durable store before spinning one up.
func (m *HubManager) GetOrCreateHub(roomID string) (*Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[roomID]; ok {
		return hub, nil
	}

	if _, err := m.store.GetRoom(roomID); err != nil {
		return nil, err
	}

	hub := NewHub(roomID, m.store, m.eph, m.cfg)
	m.hubs[roomID] = hub
	return hub, nil
}

// DropHub shuts down and forgets a room's hub, called when its room is
// deleted (spec §3: deletion revokes all hub and session state).
func (m *HubManager) DropHub(roomID string) {
	m.mu.Lock()
	hub, ok := m.hubs[roomID]
	delete(m.hubs, roomID)
	m.mu.Unlock()

	if ok {
		hub.Shutdown()
	}
}
