package db

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store used by tests and local development; it
// implements the same contract as PostgresStore without a real database.
type MemStore struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	members  map[string]map[string]bool // roomID -> userID -> true
	files    map[string]*File
	versions map[string][]*FileVersion // fileID -> versions, newest last
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		rooms:    make(map[string]*Room),
		members:  make(map[string]map[string]bool),
		files:    make(map[string]*File),
		versions: make(map[string][]*FileVersion),
	}
}

func (s *MemStore) CreateRoom(name, ownerID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := &Room{
		ID:         uuid.New().String(),
		Name:       name,
		OwnerID:    ownerID,
		InviteCode: uuid.New().String()[:8],
		CreatedAt:  time.Now(),
	}
	s.rooms[room.ID] = room
	s.members[room.ID] = map[string]bool{ownerID: true}
	return room, nil
}

func (s *MemStore) GetRoom(roomID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *MemStore) GetRoomByInviteCode(inviteCode string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.InviteCode == inviteCode {
			return room, nil
		}
	}
	return nil, ErrRoomNotFound
}

func (s *MemStore) DeleteRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return ErrRoomNotFound
	}
	delete(s.rooms, roomID)
	delete(s.members, roomID)
	for id, f := range s.files {
		if f.RoomID == roomID {
			delete(s.files, id)
			delete(s.versions, id)
		}
	}
	return nil
}

func (s *MemStore) AddMember(roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return ErrRoomNotFound
	}
	if s.members[roomID] == nil {
		s.members[roomID] = make(map[string]bool)
	}
	s.members[roomID][userID] = true
	return nil
}

func (s *MemStore) RoomMember(roomID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[roomID][userID], nil
}

func (s *MemStore) CreateFile(roomID, name, language string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}
	now := time.Now()
	file := &File{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Name:      name,
		Content:   "",
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.files[file.ID] = file
	return file, nil
}

func (s *MemStore) LoadFile(fileID string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[fileID]
	if !ok {
		return nil, ErrFileNotFound
	}
	cp := *file
	return &cp, nil
}

func (s *MemStore) ListFiles(roomID string) ([]*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*File
	for _, f := range s.files {
		if f.RoomID == roomID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) SaveContent(fileID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[fileID]
	if !ok {
		return ErrFileNotFound
	}
	file.Content = content
	file.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) DeleteFile(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, fileID)
	delete(s.versions, fileID)
	return nil
}

func (s *MemStore) AppendVersion(fileID, priorContent, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return ErrFileNotFound
	}
	existing := s.versions[fileID]
	cutoff := time.Now().Add(-1 * time.Second)
	for _, v := range existing {
		if v.Content == priorContent && v.UserID == userID && v.CreatedAt.After(cutoff) {
			return nil
		}
	}
	v := &FileVersion{
		ID:        uuid.New().String(),
		FileID:    fileID,
		Content:   priorContent,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	existing = append(existing, v)
	if len(existing) > VersionRingSize {
		existing = existing[len(existing)-VersionRingSize:]
	}
	s.versions[fileID] = existing
	return nil
}

func (s *MemStore) ListVersions(fileID string) ([]*FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.versions[fileID]
	out := make([]*FileVersion, len(existing))
	for i, v := range existing {
		out[len(existing)-1-i] = v // newest first
	}
	return out, nil
}

var _ Store = (*MemStore)(nil)
