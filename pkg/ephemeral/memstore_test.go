package ephemeral

import (
	"context"
	"testing"
	"time"

	"collab-editor/pkg/ot"
)

func TestMemStorePresenceRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.PutPresence(ctx, "room-1", Presence{UserID: "alice", Username: "Alice"}, time.Minute); err != nil {
		t.Fatalf("PutPresence: %v", err)
	}

	got, err := s.GetPresence(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetPresence: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "alice" {
		t.Fatalf("expected one presence entry for alice, got %+v", got)
	}
}

func TestMemStorePresenceExpiresByTTL(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.PutPresence(ctx, "room-1", Presence{UserID: "alice"}, time.Millisecond); err != nil {
		t.Fatalf("PutPresence: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := s.GetPresence(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetPresence: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected expired presence to be dropped, got %+v", got)
	}
}

func TestMemStorePresenceDrop(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_ = s.PutPresence(ctx, "room-1", Presence{UserID: "alice"}, time.Minute)
	if err := s.DropPresence(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("DropPresence: %v", err)
	}
	got, _ := s.GetPresence(ctx, "room-1")
	if len(got) != 0 {
		t.Fatalf("expected presence to be gone after drop, got %+v", got)
	}
}

func TestMemStoreOpLogWindowTruncates(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		op := ot.Operation{Kind: ot.Insert, Position: i, Text: "x", Timestamp: int64(i)}
		if err := s.PushOp(ctx, "file-1", op, 3, time.Minute); err != nil {
			t.Fatalf("PushOp: %v", err)
		}
	}

	ops, err := s.ListOps(ctx, "file-1")
	if err != nil {
		t.Fatalf("ListOps: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected window to cap at 3, got %d", len(ops))
	}
	if ops[0].Position != 2 {
		t.Fatalf("expected oldest-kept op to be position 2, got %d", ops[0].Position)
	}
}

func TestMemStoreChatRingTruncatesAndOrdersOldestFirst(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		msg := ChatMessage{ID: string(rune('a' + i)), Message: "hi"}
		if err := s.PushChat(ctx, "room-1", msg, 2, time.Minute); err != nil {
			t.Fatalf("PushChat: %v", err)
		}
	}

	msgs, err := s.ListChat(ctx, "room-1", 10)
	if err != nil {
		t.Fatalf("ListChat: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected ring to cap at 2, got %d", len(msgs))
	}
	if msgs[0].ID != "c" || msgs[1].ID != "d" {
		t.Fatalf("expected the two most recent messages in order, got %+v", msgs)
	}
}
