package ephemeral

import (
	"context"
	"sync"
	"time"

	"collab-editor/pkg/ot"
)

// MemStore is an in-process Store used by tests and single-process
// deployments where a shared Redis isn't warranted. Expiry is enforced
// lazily on read, matching Redis's own lazy-expiry behavior closely enough
// for the degrade-gracefully guarantee of §4.3.
type MemStore struct {
	mu       sync.Mutex
	presence map[string]map[string]presenceEntry // room -> user -> entry
	ops      map[string][]ot.Operation
	opExpiry map[string]time.Time
	chat     map[string][]ChatMessage
	chatExp  map[string]time.Time
}

type presenceEntry struct {
	value     Presence
	expiresAt time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		presence: make(map[string]map[string]presenceEntry),
		ops:      make(map[string][]ot.Operation),
		opExpiry: make(map[string]time.Time),
		chat:     make(map[string][]ChatMessage),
		chatExp:  make(map[string]time.Time),
	}
}

func (s *MemStore) PutPresence(_ context.Context, roomID string, p Presence, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presence[roomID] == nil {
		s.presence[roomID] = make(map[string]presenceEntry)
	}
	s.presence[roomID][p.UserID] = presenceEntry{value: p, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemStore) GetPresence(_ context.Context, roomID string) ([]Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []Presence
	for userID, entry := range s.presence[roomID] {
		if now.After(entry.expiresAt) {
			delete(s.presence[roomID], userID)
			continue
		}
		out = append(out, entry.value)
	}
	return out, nil
}

func (s *MemStore) DropPresence(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence[roomID], userID)
	return nil
}

func (s *MemStore) PushOp(_ context.Context, fileID string, op ot.Operation, window int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, ok := s.opExpiry[fileID]; ok && time.Now().After(expiry) {
		s.ops[fileID] = nil
	}
	ops := append(s.ops[fileID], op)
	if len(ops) > window {
		ops = ops[len(ops)-window:]
	}
	s.ops[fileID] = ops
	s.opExpiry[fileID] = time.Now().Add(ttl)
	return nil
}

func (s *MemStore) ListOps(_ context.Context, fileID string) ([]ot.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, ok := s.opExpiry[fileID]; ok && time.Now().After(expiry) {
		delete(s.ops, fileID)
		return nil, nil
	}
	out := make([]ot.Operation, len(s.ops[fileID]))
	copy(out, s.ops[fileID])
	return out, nil
}

func (s *MemStore) PushChat(_ context.Context, roomID string, msg ChatMessage, ringSize int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.chat[roomID], msg)
	if len(msgs) > ringSize {
		msgs = msgs[len(msgs)-ringSize:]
	}
	s.chat[roomID] = msgs
	s.chatExp[roomID] = time.Now().Add(ttl)
	return nil
}

func (s *MemStore) ListChat(_ context.Context, roomID string, limit int) ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, ok := s.chatExp[roomID]; ok && time.Now().After(expiry) {
		delete(s.chat, roomID)
		return nil, nil
	}
	all := s.chat[roomID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]ChatMessage, len(all))
	copy(out, all)
	return out, nil
}

var _ Store = (*MemStore)(nil)
