package room

import (
	"encoding/json"
	"testing"
	"time"

	"collab-editor/pkg/db"
	"collab-editor/pkg/ephemeral"
	"collab-editor/pkg/ot"
	"collab-editor/pkg/protocol"
)

func newTestHub(t *testing.T) (*Hub, *db.MemStore, string, string) {
	t.Helper()
	store := db.NewMemStore()
	eph := ephemeral.NewMemStore()
	rm, err := store.CreateRoom("test room", "owner")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	file, err := store.CreateFile(rm.ID, "main.go", "go")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	cfg := DefaultConfig()
	return NewHub(rm.ID, store, eph, cfg), store, rm.ID, file.ID
}

// recvFrame reads one frame off a peer's Send channel or fails the test.
func recvFrame(t *testing.T, ch chan []byte) protocol.Frame {
	t.Helper()
	select {
	case data := <-ch:
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return protocol.Frame{}
	}
}

func drainEvent(eventName string, ch chan []byte, timeout time.Duration) (protocol.Frame, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case data := <-ch:
			var f protocol.Frame
			if err := json.Unmarshal(data, &f); err == nil && f.Event == eventName {
				return f, true
			}
		case <-deadline:
			return protocol.Frame{}, false
		}
	}
}

func TestHubJoinSendsSnapshotsAndBroadcastsUserJoined(t *testing.T) {
	hub, _, _, _ := newTestHub(t)
	defer hub.Shutdown()

	alice := NewPeer("sess-a", "alice", "Alice", 16)
	hub.Join(alice, "Alice")

	if f := recvFrame(t, alice.Send); f.Event != protocol.EventRoomUsers {
		t.Fatalf("expected room-users first, got %s", f.Event)
	}
	if f := recvFrame(t, alice.Send); f.Event != protocol.EventRoomFiles {
		t.Fatalf("expected room-files second, got %s", f.Event)
	}

	bob := NewPeer("sess-b", "bob", "Bob", 16)
	hub.Join(bob, "Bob")

	if _, ok := drainEvent(protocol.EventUserJoined, alice.Send, time.Second); !ok {
		t.Fatal("alice never received user-joined for bob")
	}
}

func TestHubReconnectEvictsPriorSession(t *testing.T) {
	hub, _, _, _ := newTestHub(t)
	defer hub.Shutdown()

	first := NewPeer("sess-1", "alice", "Alice", 16)
	hub.Join(first, "Alice")
	recvFrame(t, first.Send) // room-users
	recvFrame(t, first.Send) // room-files

	second := NewPeer("sess-2", "alice", "Alice", 16)
	hub.Join(second, "Alice")

	select {
	case _, ok := <-first.Send:
		if ok {
			t.Fatal("expected first session's Send channel to be closed on reconnect")
		}
	case <-time.After(time.Second):
		t.Fatal("first session's Send channel was never closed")
	}
}

func TestHubCodeChangeAppliesAndBroadcasts(t *testing.T) {
	hub, store, _, fileID := newTestHub(t)
	defer hub.Shutdown()

	alice := NewPeer("sess-a", "alice", "Alice", 16)
	bob := NewPeer("sess-b", "bob", "Bob", 16)
	hub.Join(alice, "Alice")
	recvFrame(t, alice.Send)
	recvFrame(t, alice.Send)
	hub.Join(bob, "Bob")
	recvFrame(t, bob.Send)
	recvFrame(t, bob.Send)
	drainEvent(protocol.EventUserJoined, alice.Send, time.Second)

	op := ot.Operation{Kind: ot.Insert, Position: 0, Text: "hi", Timestamp: 1}
	hub.CodeChange(alice, protocol.CodeChangePayload{FileID: fileID, Operation: op})

	f, ok := drainEvent(protocol.EventCodeUpdate, bob.Send, time.Second)
	if !ok {
		t.Fatal("bob never received code-update")
	}
	var payload protocol.CodeUpdatePayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("unmarshal code-update: %v", err)
	}
	if payload.Operation.Text != "hi" {
		t.Fatalf("unexpected operation text %q", payload.Operation.Text)
	}

	file, err := store.LoadFile(fileID)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if file.Content != "hi" {
		t.Fatalf("expected saved content %q, got %q", "hi", file.Content)
	}
}

func TestHubChatDeliveredToSenderToo(t *testing.T) {
	hub, _, _, _ := newTestHub(t)
	defer hub.Shutdown()

	alice := NewPeer("sess-a", "alice", "Alice", 16)
	hub.Join(alice, "Alice")
	recvFrame(t, alice.Send)
	recvFrame(t, alice.Send)

	hub.ChatMessage(alice, protocol.ChatMessagePayload{Text: "hello room"})

	f, ok := drainEvent(protocol.EventChatMessage, alice.Send, time.Second)
	if !ok {
		t.Fatal("sender never received its own chat message")
	}
	var view protocol.ChatMessageView
	if err := json.Unmarshal(f.Data, &view); err != nil {
		t.Fatalf("unmarshal chat message: %v", err)
	}
	if view.Message != "hello room" {
		t.Fatalf("unexpected chat message %q", view.Message)
	}
}

func TestHubLeaveKeepsSendOpenAndBroadcastsUserLeft(t *testing.T) {
	hub, _, _, _ := newTestHub(t)
	defer hub.Shutdown()

	alice := NewPeer("sess-a", "alice", "Alice", 16)
	bob := NewPeer("sess-b", "bob", "Bob", 16)
	hub.Join(alice, "Alice")
	recvFrame(t, alice.Send)
	recvFrame(t, alice.Send)
	hub.Join(bob, "Bob")
	recvFrame(t, bob.Send)
	recvFrame(t, bob.Send)
	drainEvent(protocol.EventUserJoined, alice.Send, time.Second)

	hub.Leave(alice)

	if _, ok := drainEvent(protocol.EventUserLeft, bob.Send, time.Second); !ok {
		t.Fatal("bob never received user-left for alice")
	}
	// A voluntary leave never closes Send; only eviction, a backpressure
	// drop, or a room shutdown does.
	select {
	case _, ok := <-alice.Send:
		if !ok {
			t.Fatal("expected alice's Send channel to stay open after a voluntary leave")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubCreateFileSyncBroadcastsAndReturnsFile(t *testing.T) {
	hub, _, _, _ := newTestHub(t)
	defer hub.Shutdown()

	alice := NewPeer("sess-a", "alice", "Alice", 16)
	hub.Join(alice, "Alice")
	recvFrame(t, alice.Send)
	recvFrame(t, alice.Send)

	file, err := hub.CreateFileSync(protocol.CreateFilePayload{Name: "util.go", Language: "go"})
	if err != nil {
		t.Fatalf("CreateFileSync: %v", err)
	}
	if file.Name != "util.go" {
		t.Fatalf("unexpected file name %q", file.Name)
	}

	f, ok := drainEvent(protocol.EventFileCreated, alice.Send, time.Second)
	if !ok {
		t.Fatal("alice never received file-created")
	}
	var payload protocol.FileCreatedPayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("unmarshal file-created: %v", err)
	}
	if payload.File.ID != file.ID {
		t.Fatalf("broadcast file id %q does not match created file id %q", payload.File.ID, file.ID)
	}
}

func TestHubDeleteFileSyncRemovesFile(t *testing.T) {
	hub, store, roomID, fileID := newTestHub(t)
	defer hub.Shutdown()

	if err := hub.DeleteFileSync(protocol.DeleteFilePayload{FileID: fileID}); err != nil {
		t.Fatalf("DeleteFileSync: %v", err)
	}

	files, err := store.ListFiles(roomID)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	for _, f := range files {
		if f.ID == fileID {
			t.Fatal("expected file to be deleted")
		}
	}
}
