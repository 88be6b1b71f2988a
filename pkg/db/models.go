// Package db implements the narrow document-store contract consumed by the
// room hub (spec §4.2, §6 "Durable store contract"). It knows nothing about
// OT, presence, or the wire protocol — only rows.
package db

import (
	"errors"
	"time"
)

// Sentinel errors the hub's ClassifyStoreError maps to error kinds once its
// retries (§4.2, §5) are exhausted; the retry loop itself retries any error.
var (
	ErrRoomNotFound    = errors.New("db: room not found")
	ErrFileNotFound    = errors.New("db: file not found")
	ErrNotAMember      = errors.New("db: user is not a room member")
	ErrConflict        = errors.New("db: conflicting write")
	ErrInviteCodeTaken = errors.New("db: invite code already in use")
)

// Room is the durable record behind spec §3's Room entity. Ownership of the
// in-memory hub for this room is tracked separately (pkg/room); this is
// just the row.
type Room struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"owner_id"`
	InviteCode string    `json:"invite_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// Membership is the authoritative permission check: a user may read or
// edit a room iff a row exists for (RoomID, UserID).
type Membership struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// File is the canonical, current state of one file's content. All edits to
// a file funnel through the single hub owning its room.
type File struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileVersion is an append-only snapshot of a file's content immediately
// before a save. Readers only ever see the 50 most recent per file.
type FileVersion struct {
	ID        string    `json:"id"`
	FileID    string    `json:"file_id"`
	Content   string    `json:"content"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// VersionRingSize bounds how many FileVersion rows ListVersions surfaces.
const VersionRingSize = 50

// Store is the contract the room hub (and the thin REST facade) depend on.
// Implementations may fail any call with a transient error; the hub retries
// Save/AppendVersion per §4.2/§5 before surfacing an error to the session.
type Store interface {
	CreateRoom(name, ownerID string) (*Room, error)
	GetRoom(roomID string) (*Room, error)
	GetRoomByInviteCode(inviteCode string) (*Room, error)
	DeleteRoom(roomID string) error

	AddMember(roomID, userID string) error
	RoomMember(roomID, userID string) (bool, error)

	CreateFile(roomID, name, language string) (*File, error)
	LoadFile(fileID string) (*File, error)
	ListFiles(roomID string) ([]*File, error)
	SaveContent(fileID, content string) error
	DeleteFile(fileID string) error

	AppendVersion(fileID, priorContent, userID string) error
	ListVersions(fileID string) ([]*FileVersion, error)
}
