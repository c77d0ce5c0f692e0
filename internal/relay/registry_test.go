package relay

import (
	"io"
	"log/slog"
	"testing"
)

func newBareSession(id string) *Session {
	return NewSession(SessionParams{
		ID:     id,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRegistry_AddAndGet(t *testing.T) {
	reg := NewRegistry()
	sess := newBareSession("a")

	reg.Add(sess)

	if got := reg.Get("a"); got != sess {
		t.Errorf("Get(a) = %p, want %p", got, sess)
	}
	if got := reg.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %p, want nil", got)
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry()
	reg.Add(newBareSession("a"))
	reg.Add(newBareSession("b"))

	reg.Remove("a")

	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
	if reg.Get("a") != nil {
		t.Error("removed session still retrievable")
	}
	if reg.Get("b") == nil {
		t.Error("unrelated session was removed")
	}

	// Unknown IDs are a no-op.
	reg.Remove("a")
	reg.Remove("never-added")
	if reg.Len() != 1 {
		t.Errorf("Len after no-op removes = %d, want 1", reg.Len())
	}
}

func TestRegistry_AllPreservesInsertionOrder(t *testing.T) {
	reg := NewRegistry()
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		reg.Add(newBareSession(id))
	}

	all := reg.All()
	if len(all) != len(ids) {
		t.Fatalf("All returned %d sessions, want %d", len(all), len(ids))
	}
	for i, sess := range all {
		if sess.ID() != ids[i] {
			t.Errorf("All[%d] = %q, want %q", i, sess.ID(), ids[i])
		}
	}
}

func TestRegistry_AddReplacesSameID(t *testing.T) {
	reg := NewRegistry()
	first := newBareSession("a")
	second := newBareSession("a")

	reg.Add(first)
	reg.Add(second)

	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
	if got := reg.Get("a"); got != second {
		t.Error("Add did not replace the existing entry")
	}
}
