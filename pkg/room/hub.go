// Package room implements the Room Hub (C5): the single logical goroutine
// serializing membership, OT-mediated file edits, presence, and chat fanout
// for one room. Generalized from the teacher's Room/RoomManager
// (collab-editor's pkg/room/room.go), which serialized only raw broadcast
// messages with no OT, presence, or persistence-retry layer.
package room

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"collab-editor/pkg/db"
	"collab-editor/pkg/ephemeral"
	"collab-editor/pkg/ot"
	"collab-editor/pkg/protocol"
)

// outboundSendTimeout bounds how long a broadcast waits for a peer with a
// not-yet-full queue before giving up on that particular frame kind, per
// the suspension points of spec §5(c).
const outboundSendTimeout = 50 * time.Millisecond

// frameClass tags an outbound frame's backpressure priority per §4.4: drop
// cursor updates first, then chat-history replays, then disconnect the peer.
type frameClass int

const (
	classDroppable    frameClass = iota // cursor-update
	classReplay                         // chat-history replay to one peer
	classMustDeliver                    // everything else: forced reconnect on drop
)

// event is the sum type every inbound hub message funnels through. Using
// one channel (rather than one per event kind) is what guarantees spec
// §5's "a code-change and a cursor-move from the same session cannot be
// reordered by the hub": sends from one session's goroutine preserve
// program order, and the hub drains exactly one event at a time.
type event struct {
	kind string
	peer *Peer

	joinUsername   string
	codeChange     protocol.CodeChangePayload
	cursor         protocol.CursorPositionPayload
	chat           protocol.ChatMessagePayload
	createFile     protocol.CreateFilePayload
	deleteFile     protocol.DeleteFilePayload
	chatHistoryReq bool

	// reply, when non-nil, is used by the synchronous facade-facing entry
	// points (CreateFileSync/DeleteFileSync) so a REST handler can await
	// the outcome of a mutation that still goes through the hub's single
	// serialization point — keeping file creation on one canonical path
	// (spec §9 "Duplicate file-creation paths") instead of letting the
	// REST facade write to the store directly.
	reply chan fileOpResult
}

type fileOpResult struct {
	file *db.File
	err  error
}

const (
	eventJoin        = "join"
	eventLeave       = "leave"
	eventCodeChange  = "code-change"
	eventCursor      = "cursor"
	eventChat        = "chat"
	eventChatHistory = "chat-history"
	eventCreateFile  = "create-file"
	eventDeleteFile  = "delete-file"
)

// Hub is the serialization point for one room (C5). At most one Hub is
// authoritative for a room at a time; every mutation for that room's files,
// membership, and chat funnels through its run loop.
type Hub struct {
	RoomID string

	store db.Store
	eph   ephemeral.Store
	cfg   Config

	colors *ColorAllocator

	inbound  chan event
	shutdown chan struct{}
	done     chan struct{}

	mu        sync.RWMutex // guards peers/userPeers for reads from outside run()
	peers     map[string]*Peer
	userPeers map[string]string // userID -> current sessionID, for reconnect eviction
}

// NewHub creates a hub for roomID and starts its run loop. The caller
// (HubManager) owns lifecycle: call Shutdown when the room is deleted or
// idled out.
func NewHub(roomID string, store db.Store, eph ephemeral.Store, cfg Config) *Hub {
	h := &Hub{
		RoomID:    roomID,
		store:     store,
		eph:       eph,
		cfg:       cfg,
		colors:    NewColorAllocator(),
		inbound:   make(chan event, 256),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		peers:     make(map[string]*Peer),
		userPeers: make(map[string]string),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic in hub %s: %v\n%s", h.RoomID, r, debug.Stack())
		}
		close(h.done)
	}()

	for {
		select {
		case ev := <-h.inbound:
			h.handle(ev)
		case <-h.shutdown:
			h.drain()
			return
		}
	}
}

// drain processes whatever is already queued (up to 2s, per §5) before the
// hub evicts every peer and exits.
func (h *Hub) drain() {
	deadline := time.After(2 * time.Second)
drainLoop:
	for {
		select {
		case ev := <-h.inbound:
			h.handle(ev)
		case <-deadline:
			break drainLoop
		default:
			break drainLoop
		}
	}

	h.mu.Lock()
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[string]*Peer)
	h.userPeers = make(map[string]string)
	h.mu.Unlock()

	for _, p := range peers {
		h.broadcastExcept(peers, "", protocol.EventUserLeft, protocol.UserLeftPayload{UserID: p.UserID})
	}
	for _, p := range peers {
		close(p.Send)
	}
}

// Shutdown stops the hub's run loop after draining pending work.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

func (h *Hub) handle(ev event) {
	switch ev.kind {
	case eventJoin:
		h.handleJoin(ev.peer, ev.joinUsername)
	case eventLeave:
		h.handleLeave(ev.peer)
	case eventCodeChange:
		h.handleCodeChange(ev.peer, ev.codeChange)
	case eventCursor:
		h.handleCursor(ev.peer, ev.cursor)
	case eventChat:
		h.handleChat(ev.peer, ev.chat)
	case eventChatHistory:
		h.handleChatHistory(ev.peer)
	case eventCreateFile:
		h.handleCreateFile(ev.peer, ev.createFile, ev.reply)
	case eventDeleteFile:
		h.handleDeleteFile(ev.peer, ev.deleteFile, ev.reply)
	}
}

// --- public entry points, called from the session layer ---

func (h *Hub) Join(peer *Peer, username string) {
	h.inbound <- event{kind: eventJoin, peer: peer, joinUsername: username}
}

func (h *Hub) Leave(peer *Peer) {
	h.inbound <- event{kind: eventLeave, peer: peer}
}

func (h *Hub) CodeChange(peer *Peer, payload protocol.CodeChangePayload) {
	h.inbound <- event{kind: eventCodeChange, peer: peer, codeChange: payload}
}

func (h *Hub) CursorPosition(peer *Peer, payload protocol.CursorPositionPayload) {
	h.inbound <- event{kind: eventCursor, peer: peer, cursor: payload}
}

func (h *Hub) ChatMessage(peer *Peer, payload protocol.ChatMessagePayload) {
	h.inbound <- event{kind: eventChat, peer: peer, chat: payload}
}

func (h *Hub) GetChatHistory(peer *Peer) {
	h.inbound <- event{kind: eventChatHistory, peer: peer}
}

func (h *Hub) CreateFile(peer *Peer, payload protocol.CreateFilePayload) {
	h.inbound <- event{kind: eventCreateFile, peer: peer, createFile: payload}
}

func (h *Hub) DeleteFile(peer *Peer, payload protocol.DeleteFilePayload) {
	h.inbound <- event{kind: eventDeleteFile, peer: peer, deleteFile: payload}
}

// CreateFileSync is the REST facade's entry point for file creation (spec
// §9's "Duplicate file-creation paths" note): it funnels through the same
// inbound channel as the live WebSocket path and blocks for the result,
// so a REST-originated create can never race a live one for the same room.
func (h *Hub) CreateFileSync(payload protocol.CreateFilePayload) (*db.File, error) {
	reply := make(chan fileOpResult, 1)
	h.inbound <- event{kind: eventCreateFile, createFile: payload, reply: reply}
	res := <-reply
	return res.file, res.err
}

// DeleteFileSync is the REST facade's synchronous counterpart to DeleteFile.
func (h *Hub) DeleteFileSync(payload protocol.DeleteFilePayload) error {
	reply := make(chan fileOpResult, 1)
	h.inbound <- event{kind: eventDeleteFile, deleteFile: payload, reply: reply}
	res := <-reply
	return res.err
}

// --- handlers, all running on the single hub goroutine ---

func (h *Hub) handleJoin(peer *Peer, username string) {
	if username != "" {
		peer.Username = username
	}

	h.mu.Lock()
	// Reconnection evicts the prior session for this user (presence
	// uniqueness, spec §8 property 5).
	if prevSessionID, ok := h.userPeers[peer.UserID]; ok && prevSessionID != peer.SessionID {
		if prev, exists := h.peers[prevSessionID]; exists {
			delete(h.peers, prevSessionID)
			close(prev.Send)
		}
		h.colors.Release(peer.UserID)
	}
	h.peers[peer.SessionID] = peer
	h.userPeers[peer.UserID] = peer.SessionID
	color := h.colors.Assign(peer.UserID)
	peers := h.snapshotPeersLocked()
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	_ = h.eph.PutPresence(ctx, h.RoomID, ephemeral.Presence{
		UserID:    peer.UserID,
		Username:  peer.Username,
		Color:     color,
		SessionID: peer.SessionID,
		ExpiresAt: now.Add(h.cfg.PresenceTTL),
	}, h.cfg.PresenceTTL)

	users := make([]protocol.ParticipantView, 0, len(peers))
	presences, _ := h.eph.GetPresence(ctx, h.RoomID)
	colorByUser := map[string]string{peer.UserID: color}
	for _, p := range presences {
		colorByUser[p.UserID] = p.Color
	}
	for _, p := range peers {
		users = append(users, protocol.ParticipantView{UserID: p.UserID, Username: p.Username, Color: colorByUser[p.UserID]})
	}
	h.sendTo(peer, classMustDeliver, protocol.EventRoomUsers, protocol.RoomUsersPayload{Users: users})

	files, err := h.store.ListFiles(h.RoomID)
	if err == nil {
		views := make([]protocol.FileView, 0, len(files))
		for _, f := range files {
			views = append(views, protocol.FileView{ID: f.ID, Name: f.Name, Language: f.Language, Content: f.Content})
		}
		h.sendTo(peer, classMustDeliver, protocol.EventRoomFiles, protocol.RoomFilesPayload{Files: views})
	}

	h.broadcastExcept(peers, peer.SessionID, protocol.EventUserJoined, protocol.UserJoinedPayload{
		UserID: peer.UserID, Username: peer.Username, Color: color,
	})
}

func (h *Hub) handleLeave(peer *Peer) {
	h.mu.Lock()
	if _, ok := h.peers[peer.SessionID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, peer.SessionID)
	if h.userPeers[peer.UserID] == peer.SessionID {
		delete(h.userPeers, peer.UserID)
	}
	h.colors.Release(peer.UserID)
	peers := h.snapshotPeersLocked()
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.eph.DropPresence(ctx, h.RoomID, peer.UserID)

	// Unlike a reconnect eviction or a backpressure drop, a voluntary leave
	// never closes peer.Send: the session that owns it is expected to stay
	// connected and possibly rejoin, and Send is never read again once the
	// peer is gone from h.peers above.
	h.broadcastExcept(peers, "", protocol.EventUserLeft, protocol.UserLeftPayload{UserID: peer.UserID})
}

// handleCodeChange is the core OT path of spec §4.4: transform against the
// log window, apply, persist (with version bookkeeping), append to the
// log, and rebroadcast to every other peer.
func (h *Hub) handleCodeChange(peer *Peer, payload protocol.CodeChangePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	op := payload.Operation
	op.UserID = peer.UserID

	window, err := h.eph.ListOps(ctx, payload.FileID)
	if err != nil {
		window = nil // missing log entries skip transformation; content stays authoritative
	}
	transformed := ot.TransformAgainst(op, window)

	file, err := h.store.LoadFile(payload.FileID)
	if err != nil {
		msg, _ := ClassifyStoreError(err, "file not found")
		h.sendError(peer, msg)
		return
	}

	newContent := ot.Apply(file.Content, transformed)

	err = h.withRetry(func() error {
		// AppendVersion runs before every save, not just the first in a
		// window: the store itself coalesces duplicate (file, content, user)
		// rows within its own short window (§8 property 6), so gating this
		// call on op-log emptiness would silently drop the version row for
		// every edit after the first one in a 300s op-log TTL window.
		if verr := h.store.AppendVersion(payload.FileID, file.Content, peer.UserID); verr != nil {
			return verr
		}
		return h.store.SaveContent(payload.FileID, newContent)
	})
	if err != nil {
		// Transient per §7: retries were already exhausted by withRetry, so
		// this surfaces as an error frame but leaves the session connected.
		msg, _ := ClassifyStoreError(err, "failed to save edit")
		h.sendError(peer, msg)
		return
	}

	_ = h.eph.PushOp(ctx, payload.FileID, transformed, h.cfg.OpLogWindow, h.cfg.OpLogTTL)

	h.mu.RLock()
	peers := h.snapshotPeersLocked()
	h.mu.RUnlock()

	h.broadcastExcept(peers, peer.SessionID, protocol.EventCodeUpdate, protocol.CodeUpdatePayload{
		FileID: payload.FileID, Operation: transformed, UserID: peer.UserID,
	})
}

func (h *Hub) handleCursor(peer *Peer, payload protocol.CursorPositionPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	presences, _ := h.eph.GetPresence(ctx, h.RoomID)
	color := h.colors.Assign(peer.UserID)
	for _, p := range presences {
		if p.UserID == peer.UserID {
			color = p.Color
			break
		}
	}
	_ = h.eph.PutPresence(ctx, h.RoomID, ephemeral.Presence{
		UserID:    peer.UserID,
		Username:  peer.Username,
		Color:     color,
		Cursor:    &ephemeral.Cursor{FileID: payload.FileID, Line: payload.Line, Column: payload.Column},
		SessionID: peer.SessionID,
		ExpiresAt: time.Now().Add(h.cfg.PresenceTTL),
	}, h.cfg.PresenceTTL)

	h.mu.RLock()
	peers := h.snapshotPeersLocked()
	h.mu.RUnlock()

	h.broadcastExceptClass(peers, peer.SessionID, classDroppable, protocol.EventCursorUpdate, protocol.CursorUpdatePayload{
		FileID: payload.FileID, UserID: peer.UserID, Line: payload.Line, Column: payload.Column,
	})
}

func (h *Hub) handleChat(peer *Peer, payload protocol.ChatMessagePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := ephemeral.ChatMessage{
		ID:          uuid.New().String(),
		UserID:      peer.UserID,
		Username:    peer.Username,
		Message:     payload.Text,
		Timestamp:   time.Now(),
		CodeSnippet: payload.CodeSnippet,
	}
	_ = h.eph.PushChat(ctx, h.RoomID, msg, h.cfg.ChatRingSize, h.cfg.ChatTTL)

	h.mu.RLock()
	peers := h.snapshotPeersLocked()
	h.mu.RUnlock()

	view := protocol.ChatMessageView{
		ID: msg.ID, UserID: msg.UserID, Username: msg.Username,
		Message: msg.Message, Timestamp: msg.Timestamp.UnixNano(), CodeSnippet: msg.CodeSnippet,
	}
	// Chat is delivered to every session including the sender, per §4.4.
	for _, p := range peers {
		h.sendTo(p, classMustDeliver, protocol.EventChatMessage, view)
	}
}

func (h *Hub) handleChatHistory(peer *Peer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := h.eph.ListChat(ctx, h.RoomID, 50)
	if err != nil {
		msgs = nil
	}
	views := make([]protocol.ChatMessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, protocol.ChatMessageView{
			ID: m.ID, UserID: m.UserID, Username: m.Username,
			Message: m.Message, Timestamp: m.Timestamp.UnixNano(), CodeSnippet: m.CodeSnippet,
		})
	}
	h.sendTo(peer, classReplay, protocol.EventChatHistory, protocol.ChatHistoryPayload{Messages: views})
}

// handleCreateFile serves both the live WebSocket path (peer set, reply nil)
// and the REST facade's CreateFileSync (peer nil, reply set) — the same
// mutation and broadcast regardless of origin, per spec §9.
func (h *Hub) handleCreateFile(peer *Peer, payload protocol.CreateFilePayload, reply chan fileOpResult) {
	file, err := h.store.CreateFile(h.RoomID, payload.Name, payload.Language)
	if err != nil {
		if peer != nil {
			msg, _ := ClassifyStoreError(err, "failed to create file")
			h.sendError(peer, msg)
		}
		if reply != nil {
			reply <- fileOpResult{err: err}
		}
		return
	}

	h.mu.RLock()
	peers := h.snapshotPeersLocked()
	h.mu.RUnlock()

	view := protocol.FileView{ID: file.ID, Name: file.Name, Language: file.Language, Content: file.Content}
	for _, p := range peers {
		h.sendTo(p, classMustDeliver, protocol.EventFileCreated, protocol.FileCreatedPayload{File: view})
	}

	if reply != nil {
		reply <- fileOpResult{file: file}
	}
}

func (h *Hub) handleDeleteFile(peer *Peer, payload protocol.DeleteFilePayload, reply chan fileOpResult) {
	err := h.store.DeleteFile(payload.FileID)
	if err != nil {
		if peer != nil {
			msg, _ := ClassifyStoreError(err, "failed to delete file")
			h.sendError(peer, msg)
		}
		if reply != nil {
			reply <- fileOpResult{err: err}
		}
		return
	}

	h.mu.RLock()
	peers := h.snapshotPeersLocked()
	h.mu.RUnlock()

	for _, p := range peers {
		h.sendTo(p, classMustDeliver, protocol.EventFileDeleted, protocol.FileDeletedPayload{FileID: payload.FileID})
	}

	if reply != nil {
		reply <- fileOpResult{}
	}
}

// --- helpers ---

func (h *Hub) snapshotPeersLocked() []*Peer {
	out := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

func (h *Hub) sendError(peer *Peer, message string) {
	h.sendTo(peer, classMustDeliver, protocol.EventError, protocol.ErrorPayload{Message: message})
}

func (h *Hub) broadcastExcept(peers []*Peer, exceptSessionID string, eventName string, payload interface{}) {
	h.broadcastExceptClass(peers, exceptSessionID, classMustDeliver, eventName, payload)
}

func (h *Hub) broadcastExceptClass(peers []*Peer, exceptSessionID string, class frameClass, eventName string, payload interface{}) {
	for _, p := range peers {
		if p.SessionID == exceptSessionID {
			continue
		}
		h.sendTo(p, class, eventName, payload)
	}
}

// sendTo delivers one frame to peer, applying the backpressure policy of
// spec §4.4: droppable frames are dropped silently on a full queue; replays
// are dropped too; anything else forces the peer's queue closed so its
// session reconnects and refetches canonical content.
func (h *Hub) sendTo(peer *Peer, class frameClass, eventName string, payload interface{}) {
	frame, err := protocol.Encode(eventName, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	timer := time.NewTimer(outboundSendTimeout)
	defer timer.Stop()
	select {
	case peer.Send <- data:
		return
	case <-timer.C:
	}

	switch class {
	case classDroppable, classReplay:
		return
	default:
		h.forceDisconnect(peer)
	}
}

// forceDisconnect closes a peer's queue outside the normal Leave path when
// its outbound buffer is saturated, per §4.4's "drops cause a forced
// reconnect" rule.
func (h *Hub) forceDisconnect(peer *Peer) {
	h.mu.Lock()
	if _, ok := h.peers[peer.SessionID]; ok {
		delete(h.peers, peer.SessionID)
		if h.userPeers[peer.UserID] == peer.SessionID {
			delete(h.userPeers, peer.UserID)
		}
		close(peer.Send)
	}
	h.mu.Unlock()
}

// withRetry retries fn up to cfg.StoreRetryAttempts times with the
// 100ms/400ms/1.6s backoff of spec §5, for the Transient store-error class.
func (h *Hub) withRetry(fn func() error) error {
	backoffs := []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}
	attempts := h.cfg.StoreRetryAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var err error
	for i := 0; ; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i >= attempts {
			return err
		}
		if i < len(backoffs) {
			jitter := time.Duration(rand.Intn(25)) * time.Millisecond
			time.Sleep(backoffs[i] + jitter)
		}
	}
}

// GetUsers returns the participants currently joined, for the REST facade's
// read-only room-users endpoint.
func (h *Hub) GetUsers() []protocol.ParticipantView {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]protocol.ParticipantView, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, protocol.ParticipantView{UserID: p.UserID, Username: p.Username, Color: h.colors.Assign(p.UserID)})
	}
	return out
}

