// Package protocol defines the wire frames of spec §6: one JSON object
// {event, data} per message, in either direction over the session's
// WebSocket connection.
package protocol

import (
	"encoding/json"

	"collab-editor/pkg/ot"
)

// Inbound event names (client -> session -> hub).
const (
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventCodeChange      = "code-change"
	EventCursorPosition  = "cursor-position"
	EventChatMessage     = "chat-message"
	EventGetChatHistory  = "get-chat-history"
	EventCreateFile      = "create-file"
	EventDeleteFile      = "delete-file"
)

// Outbound event names (hub -> session -> client).
const (
	EventRoomUsers   = "room-users"
	EventRoomFiles   = "room-files"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventCodeUpdate  = "code-update"
	EventCursorUpdate = "cursor-update"
	EventChatHistory = "chat-history"
	EventFileCreated = "file-created"
	EventFileDeleted = "file-deleted"
	EventError       = "error"
)

// Frame is the envelope every message is wrapped in.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps a payload into a Frame, ready to marshal and send.
func Encode(event string, payload interface{}) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// --- inbound payloads ---

type JoinRoomPayload struct {
	RoomID     string `json:"room_id"`
	InviteCode string `json:"invite_code,omitempty"`
	Username   string `json:"username"`
}

type CodeChangePayload struct {
	FileID    string    `json:"file_id"`
	Operation ot.Operation `json:"operation"`
}

type CursorPositionPayload struct {
	FileID string `json:"file_id"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type ChatMessagePayload struct {
	Text        string `json:"text"`
	CodeSnippet string `json:"code_snippet,omitempty"`
}

type CreateFilePayload struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

type DeleteFilePayload struct {
	FileID string `json:"file_id"`
}

// --- outbound payloads ---

type ParticipantView struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

type FileView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

type RoomUsersPayload struct {
	Users []ParticipantView `json:"users"`
}

type RoomFilesPayload struct {
	Files []FileView `json:"files"`
}

type UserJoinedPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

type UserLeftPayload struct {
	UserID string `json:"user_id"`
}

type CodeUpdatePayload struct {
	FileID    string       `json:"file_id"`
	Operation ot.Operation `json:"operation"`
	UserID    string       `json:"user_id"`
}

type CursorUpdatePayload struct {
	FileID string `json:"file_id"`
	UserID string `json:"user_id"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type ChatMessageView struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"`
	CodeSnippet string `json:"code_snippet,omitempty"`
}

type ChatHistoryPayload struct {
	Messages []ChatMessageView `json:"messages"`
}

type FileCreatedPayload struct {
	File FileView `json:"file"`
}

type FileDeletedPayload struct {
	FileID string `json:"file_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
