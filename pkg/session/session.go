// Package session implements the Session Endpoint (C6): the per-connection
// state machine that authenticates, dispatches inbound frames into the
// room hub, and forwards hub events back out to the socket. Generalized
// from the teacher's readPump/writePump in collab-editor's
// pkg/handlers/handlers.go, which had no explicit state machine and no OT
// dispatch — just raw broadcast of whatever arrived.
package session

import (
	"encoding/json"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collab-editor/pkg/db"
	"collab-editor/pkg/identity"
	"collab-editor/pkg/protocol"
	"collab-editor/pkg/room"
)

// State is the connection lifecycle of spec §4.5.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

// outboundQueueSize is the bounded per-session outbound queue spec §5
// requires; its saturation is what drives the hub's backpressure policy.
const outboundQueueSize = 256

// readLimitBytes caps a single inbound frame, mirroring the teacher's
// SetReadLimit(512) hardening against oversized frames — widened since code
// edits legitimately carry more than 512 bytes of text.
const readLimitBytes = 1 << 20

// Session is one WebSocket connection's state machine.
type Session struct {
	id   string
	conn *websocket.Conn
	out  chan []byte

	gate  *identity.Gate
	hubs  *room.HubManager
	store db.Store

	idleTimeout time.Duration

	state  State
	token  string
	user   identity.User
	roomID string
	peer   *room.Peer

	// peerStop and peerStopped bound the lifetime of the forwardPeer
	// goroutine started on each join: closing peerStop asks it to return,
	// and peerStopped is closed by the goroutine once it has, so leaving a
	// room or closing the session can join on it before touching out.
	peerStop    chan struct{}
	peerStopped chan struct{}

	closeOnce sync.Once
}

// New wraps an upgraded WebSocket connection in a Session, not yet
// authenticated.
func New(conn *websocket.Conn, gate *identity.Gate, hubs *room.HubManager, store db.Store, idleTimeout time.Duration) *Session {
	return &Session{
		id:          uuid.New().String(),
		conn:        conn,
		out:         make(chan []byte, outboundQueueSize),
		gate:        gate,
		hubs:        hubs,
		store:       store,
		idleTimeout: idleTimeout,
		state:       StateConnecting,
	}
}

// Authenticate validates token at connect time (the HTTP upgrade handshake
// carries it, per spec §6). Failure leaves the session Closed.
func (s *Session) Authenticate(token string) error {
	user, err := s.gate.Authenticate(token)
	if err != nil {
		s.state = StateClosed
		return err
	}
	s.token = token
	s.user = user
	s.state = StateAuthenticated
	return nil
}

// Run starts the reader and writer pumps and blocks until the connection
// closes, mirroring the teacher's go h.writePump / go h.readPump pairing in
// HandleWebSocket but run synchronously here since the caller already runs
// in its own goroutine per connection.
func (s *Session) Run() {
	done := make(chan struct{})
	go func() {
		s.writePump()
		close(done)
	}()
	s.readPump()
	s.close()
	<-done
}

// close tears the session down exactly once. It runs from Run's unwind,
// which a hub-forced drop also reaches: forwardPeer closes the socket on
// its own goroutine, readPump then returns, and Run calls close.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.state == StateInRoom && s.peer != nil {
			if hub, err := s.hubs.GetOrCreateHub(s.roomID); err == nil {
				hub.Leave(s.peer)
			}
			s.stopForwarding()
		}
		s.state = StateClosed
		close(s.out)
		s.conn.Close()
	})
}

// stopForwarding asks the current peer's forwardPeer goroutine to return
// and waits for it to do so, so callers can safely close s.out right after
// without racing its only other writer.
func (s *Session) stopForwarding() {
	close(s.peerStop)
	<-s.peerStopped
}

// forwardPeer copies frames the hub addressed to peer into the session's
// own outbound queue. It exists so the hub closing peer.Send — on a
// reconnect eviction, a backpressure drop, or a room shutdown — never
// closes the session's longer-lived out channel directly; only close()
// does that, exactly once. A plain voluntary leave-room stops this
// goroutine via peerStop without peer.Send ever being closed at all.
func (s *Session) forwardPeer(peer *room.Peer, stop, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case msg, ok := <-peer.Send:
			if !ok {
				// The hub dropped this peer out from under the session:
				// force the connection closed so readPump wakes up and the
				// normal Run/close unwind runs, rather than leaving the
				// session silently undeliverable until the next ping.
				s.conn.Close()
				return
			}
			select {
			case s.out <- msg:
			case <-stop:
				return
			}
		case <-stop:
			return
		}
	}
}

func (s *Session) readPump() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic in session %s readPump: %v\n%s", s.id, r, debug.Stack())
		}
	}()

	s.conn.SetReadLimit(readLimitBytes)
	s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		var frame protocol.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.sendError("malformed frame")
			return // ProtocolViolation: close session, per §7
		}

		if err := s.dispatch(frame); err != nil {
			if err == errInvalidState {
				s.sendError("invalid state")
				continue
			}
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.out:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) sendError(message string) {
	frame, err := protocol.Encode(protocol.EventError, protocol.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case s.out <- data:
	default:
	}
}
