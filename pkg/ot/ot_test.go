package ot

import "testing"

func TestApplyInsert(t *testing.T) {
	got := Apply("", Operation{Kind: Insert, Position: 0, Text: "hello"})
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestApplyDelete(t *testing.T) {
	got := Apply("hello", Operation{Kind: Delete, Position: 1, Length: 3})
	if got != "ho" {
		t.Fatalf("got %q, want %q", got, "ho")
	}
}

// S2: concurrent inserts at the same position, tie-broken by timestamp.
func TestTransformConcurrentInsertsSamePosition(t *testing.T) {
	a := Operation{Kind: Insert, Position: 1, Text: "X", UserID: "A", Timestamp: 100}
	b := Operation{Kind: Insert, Position: 1, Text: "Y", UserID: "B", Timestamp: 200}

	content := Apply("ab", a)
	bPrime := Transform(b, a)
	content = Apply(content, bPrime)

	if content != "aXYb" {
		t.Fatalf("got %q, want %q", content, "aXYb")
	}

	// Convergence: the mirror order must produce the same result.
	aPrime := Transform(a, b)
	content2 := Apply("ab", b)
	content2 = Apply(content2, aPrime)
	if content2 != content {
		t.Fatalf("divergent outcomes: %q vs %q", content, content2)
	}
}

// S3: insert vs. overlapping delete collapses into the delete window.
func TestTransformInsertVsOverlappingDelete(t *testing.T) {
	del := Operation{Kind: Delete, Position: 1, Length: 3, UserID: "A"}
	ins := Operation{Kind: Insert, Position: 3, Text: "Z", UserID: "B"}

	content := Apply("abcdef", del)
	insPrime := Transform(ins, del)
	if insPrime.Position != 1 {
		t.Fatalf("got position %d, want 1", insPrime.Position)
	}
	content = Apply(content, insPrime)
	if content != "aZef" {
		t.Fatalf("got %q, want %q", content, "aZef")
	}
}

func TestTransformIdentityAgainstNoOp(t *testing.T) {
	ops := []Operation{
		{Kind: Insert, Position: 2, Text: "abc"},
		{Kind: Delete, Position: 0, Length: 5},
	}
	noop := Operation{Kind: Insert, Position: 0, Text: ""}
	for _, op := range ops {
		got := Transform(op, noop)
		if got != op {
			t.Fatalf("Transform(%+v, noop) = %+v, want unchanged", op, got)
		}
	}
}

func TestApplyComposeSingleMatchesApply(t *testing.T) {
	op := Operation{Kind: Insert, Position: 1, Text: "z", UserID: "A"}
	composed := Compose([]Operation{op})
	if len(composed) != 1 {
		t.Fatalf("expected single composed op, got %d", len(composed))
	}
	if Apply("ab", composed[0]) != Apply("ab", op) {
		t.Fatalf("compose/apply mismatch")
	}
}

func TestComposeMergesContiguousInserts(t *testing.T) {
	ops := []Operation{
		{Kind: Insert, Position: 0, Text: "a", UserID: "A", Timestamp: 1},
		{Kind: Insert, Position: 1, Text: "b", UserID: "A", Timestamp: 2},
	}
	out := Compose(ops)
	if len(out) != 1 || out[0].Text != "ab" {
		t.Fatalf("got %+v, want single merged insert \"ab\"", out)
	}
}

func TestComposeDoesNotMergeDifferentUsers(t *testing.T) {
	ops := []Operation{
		{Kind: Insert, Position: 0, Text: "a", UserID: "A"},
		{Kind: Insert, Position: 1, Text: "b", UserID: "B"},
	}
	out := Compose(ops)
	if len(out) != 2 {
		t.Fatalf("expected no merge across users, got %+v", out)
	}
}

func TestComposeMergesSamePositionDeletes(t *testing.T) {
	ops := []Operation{
		{Kind: Delete, Position: 2, Length: 1, UserID: "A"},
		{Kind: Delete, Position: 2, Length: 3, UserID: "A"},
	}
	out := Compose(ops)
	if len(out) != 1 || out[0].Length != 4 {
		t.Fatalf("got %+v, want single merged delete of length 4", out)
	}
}

func TestSamePositionDeleteTieDoesNotDoubleDelete(t *testing.T) {
	// Open question (ii): same-position, same-length deletes from two
	// clients must not both remove content — the loser becomes a no-op.
	a := Operation{Kind: Delete, Position: 2, Length: 2, UserID: "A", Timestamp: 100}
	b := Operation{Kind: Delete, Position: 2, Length: 2, UserID: "B", Timestamp: 200}

	content := Apply("hello world", a)
	bPrime := Transform(b, a)
	if !bPrime.NoOp() {
		t.Fatalf("expected loser delete to become a no-op, got %+v", bPrime)
	}
	content = Apply(content, bPrime)
	if content != Apply("hello world", a) {
		t.Fatalf("double-delete occurred: %q", content)
	}
}

func TestTransformAgainstFoldsInOrder(t *testing.T) {
	window := []Operation{
		{Kind: Insert, Position: 0, Text: "xx"},
		{Kind: Delete, Position: 0, Length: 1},
	}
	op := Operation{Kind: Insert, Position: 1, Text: "z"}
	got := TransformAgainst(op, window)
	want := Transform(Transform(op, window[0]), window[1])
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestClampsOutOfBoundsPositions(t *testing.T) {
	got := Apply("hi", Operation{Kind: Insert, Position: 99, Text: "!"})
	if got != "hi!" {
		t.Fatalf("got %q, want clamped insert at end %q", got, "hi!")
	}
	got = Apply("hi", Operation{Kind: Delete, Position: 1, Length: 99})
	if got != "h" {
		t.Fatalf("got %q, want clamped delete %q", got, "h")
	}
}
