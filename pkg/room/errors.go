package room

import (
	"errors"

	"collab-editor/pkg/db"
)

// Error kinds from spec §7, surfaced to the session layer so it can decide
// whether to close the connection or keep it open with an error frame.
var (
	ErrUnauthenticated = errors.New("room: unauthenticated")
	ErrForbidden       = errors.New("room: forbidden")
	ErrNotFound        = errors.New("room: not found")
	ErrTransient       = errors.New("room: transient store failure")
	ErrOverloaded      = errors.New("room: peer overloaded")
)

// ClassifyStoreError maps a db.Store sentinel to the §7 error-kind message
// an error frame carries, collapsing everything else (transient/unexpected
// failures) into ErrTransient rather than leaking storage internals to the
// client.
func ClassifyStoreError(err error, genericMessage string) (message string, kind error) {
	switch {
	case errors.Is(err, db.ErrRoomNotFound):
		return "room not found", ErrNotFound
	case errors.Is(err, db.ErrFileNotFound):
		return "file not found", ErrNotFound
	case errors.Is(err, db.ErrNotAMember):
		return "forbidden", ErrForbidden
	default:
		return genericMessage, ErrTransient
	}
}
