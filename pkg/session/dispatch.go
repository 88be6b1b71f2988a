package session

import (
	"encoding/json"
	"errors"

	"collab-editor/pkg/protocol"
	"collab-editor/pkg/room"
)

// errInvalidState marks a frame that arrived in the wrong state (spec
// §4.5). The event handlers also return it when a frame's data does not
// decode into the event's payload type, so such a frame is not closed as
// a protocol violation: in both cases the session replies with an
// "invalid state" error frame and stays connected.
var errInvalidState = errors.New("session: invalid state for frame")

// dispatch routes one inbound frame per the tagged-union table of spec
// §4.4/§4.5. A non-nil, non-errInvalidState return closes the session
// (ProtocolViolation or a hub/store error severe enough to disconnect).
func (s *Session) dispatch(frame protocol.Frame) error {
	switch frame.Event {
	case protocol.EventJoinRoom:
		return s.handleJoinRoom(frame.Data)
	case protocol.EventLeaveRoom:
		return s.handleLeaveRoom()
	case protocol.EventCodeChange:
		return s.handleCodeChange(frame.Data)
	case protocol.EventCursorPosition:
		return s.handleCursorPosition(frame.Data)
	case protocol.EventChatMessage:
		return s.handleChatMessage(frame.Data)
	case protocol.EventGetChatHistory:
		return s.handleGetChatHistory()
	case protocol.EventCreateFile:
		return s.handleCreateFile(frame.Data)
	case protocol.EventDeleteFile:
		return s.handleDeleteFile(frame.Data)
	default:
		s.sendError("unknown event")
		return nil
	}
}

// requireState enforces the state machine: any frame outside the listed
// states is dropped with an {error: "invalid state"} reply (spec §4.5).
func (s *Session) requireState(allowed ...State) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return errInvalidState
}

func (s *Session) handleJoinRoom(data json.RawMessage) error {
	if err := s.requireState(StateAuthenticated, StateInRoom); err != nil {
		return err
	}

	var payload protocol.JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errInvalidState
	}

	// Re-validate the bearer token on each hub join, per the Identity Gate
	// contract of spec §4.6.
	if _, err := s.gate.Authenticate(s.token); err != nil {
		s.sendError("unauthenticated")
		return err
	}

	isMember, err := s.store.RoomMember(payload.RoomID, s.user.ID)
	if err != nil {
		s.sendError("room not found")
		return nil
	}
	if !isMember {
		s.sendError("forbidden")
		return nil // Forbidden: reject but stay connected, per §7
	}

	hub, err := s.hubs.GetOrCreateHub(payload.RoomID)
	if err != nil {
		s.sendError("room not found")
		return nil
	}

	// A join-room while already InRoom switches rooms directly: leave the
	// old one first so its forwardPeer goroutine doesn't leak.
	if s.state == StateInRoom && s.peer != nil {
		if oldHub, err := s.hubs.GetOrCreateHub(s.roomID); err == nil {
			oldHub.Leave(s.peer)
		}
		s.stopForwarding()
	}

	username := payload.Username
	if username == "" {
		username = s.user.Username
	}

	s.peer = room.NewPeer(s.id, s.user.ID, username, outboundQueueSize)
	s.peerStop = make(chan struct{})
	s.peerStopped = make(chan struct{})
	s.roomID = payload.RoomID
	s.state = StateInRoom

	go s.forwardPeer(s.peer, s.peerStop, s.peerStopped)
	hub.Join(s.peer, username)
	return nil
}

func (s *Session) handleLeaveRoom() error {
	if err := s.requireState(StateInRoom); err != nil {
		return err
	}
	hub, err := s.hubs.GetOrCreateHub(s.roomID)
	if err == nil {
		hub.Leave(s.peer)
	}
	s.stopForwarding()
	s.state = StateAuthenticated
	s.peer = nil
	s.roomID = ""
	return nil
}

func (s *Session) handleCodeChange(data json.RawMessage) error {
	if err := s.requireState(StateInRoom); err != nil {
		return err
	}
	var payload protocol.CodeChangePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errInvalidState
	}
	hub, err := s.hubs.GetOrCreateHub(s.roomID)
	if err != nil {
		s.sendError("room not found")
		return nil
	}
	hub.CodeChange(s.peer, payload)
	return nil
}

func (s *Session) handleCursorPosition(data json.RawMessage) error {
	if err := s.requireState(StateInRoom); err != nil {
		return err
	}
	var payload protocol.CursorPositionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errInvalidState
	}
	hub, err := s.hubs.GetOrCreateHub(s.roomID)
	if err != nil {
		return nil
	}
	hub.CursorPosition(s.peer, payload)
	return nil
}

func (s *Session) handleChatMessage(data json.RawMessage) error {
	if err := s.requireState(StateInRoom); err != nil {
		return err
	}
	var payload protocol.ChatMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errInvalidState
	}
	hub, err := s.hubs.GetOrCreateHub(s.roomID)
	if err != nil {
		return nil
	}
	hub.ChatMessage(s.peer, payload)
	return nil
}

func (s *Session) handleGetChatHistory() error {
	if err := s.requireState(StateInRoom); err != nil {
		return err
	}
	hub, err := s.hubs.GetOrCreateHub(s.roomID)
	if err != nil {
		return nil
	}
	hub.GetChatHistory(s.peer)
	return nil
}

func (s *Session) handleCreateFile(data json.RawMessage) error {
	if err := s.requireState(StateInRoom); err != nil {
		return err
	}
	var payload protocol.CreateFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errInvalidState
	}
	hub, err := s.hubs.GetOrCreateHub(s.roomID)
	if err != nil {
		return nil
	}
	hub.CreateFile(s.peer, payload)
	return nil
}

func (s *Session) handleDeleteFile(data json.RawMessage) error {
	if err := s.requireState(StateInRoom); err != nil {
		return err
	}
	var payload protocol.DeleteFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errInvalidState
	}
	hub, err := s.hubs.GetOrCreateHub(s.roomID)
	if err != nil {
		return nil
	}
	hub.DeleteFile(s.peer, payload)
	return nil
}
