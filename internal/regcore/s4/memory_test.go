package s4

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/patch"
)

func TestMemoryStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryStoreConfig{})
	defer s.Close()

	a := aor.New("sip:alice@example.com", "sip:scscf.example.com")
	a.Bindings["B1"] = &aor.Binding{ContactURI: "sip:a@1", Expires: time.Now().Add(time.Hour)}

	version, err := s.Put(ctx, "alice", a)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if version == "" {
		t.Fatalf("Put returned empty version")
	}

	got, gotVersion, err := s.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotVersion != version {
		t.Errorf("Get version = %q, want %q", gotVersion, version)
	}
	if len(got.Bindings) != 1 {
		t.Errorf("Get bindings len = %d, want 1", len(got.Bindings))
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	s := NewMemoryStore(MemoryStoreConfig{})
	defer s.Close()

	_, _, err := s.Get(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorePatchVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryStoreConfig{})
	defer s.Close()

	a := aor.New("sip:alice@example.com", "sip:scscf.example.com")
	version, _ := s.Put(ctx, "alice", a)

	p := patch.New()
	p.UpdateBindings = map[string]*aor.Binding{"B1": {Expires: time.Now().Add(time.Hour)}}

	if _, _, err := s.Patch(ctx, "alice", p, "stale-version"); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Patch with stale version err = %v, want ErrVersionConflict", err)
	}

	updated, newVersion, err := s.Patch(ctx, "alice", p, version)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if newVersion == version {
		t.Errorf("Patch must bump version")
	}
	if len(updated.Bindings) != 1 {
		t.Errorf("Patch result bindings len = %d, want 1", len(updated.Bindings))
	}
	if updated.NotifyCSeq != 1 {
		t.Errorf("Patch result NotifyCSeq = %d, want 1", updated.NotifyCSeq)
	}
}

func TestMemoryStorePatchEmptyingBindingsDeletesAoR(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryStoreConfig{})
	defer s.Close()

	a := aor.New("sip:alice@example.com", "sip:scscf.example.com")
	a.Bindings["B1"] = &aor.Binding{Expires: time.Now().Add(time.Hour)}
	version, _ := s.Put(ctx, "alice", a)

	p := patch.New()
	p.RemoveBindings = []string{"B1"}
	if _, _, err := s.Patch(ctx, "alice", p, version); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	if _, _, err := s.Get(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AoR with emptied bindings must be absent from the store (I5), got err=%v", err)
	}
}

func TestMemoryStoreDeleteVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryStoreConfig{})
	defer s.Close()

	a := aor.New("sip:alice@example.com", "sip:scscf.example.com")
	version, _ := s.Put(ctx, "alice", a)

	if err := s.Delete(ctx, "alice", "wrong"); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Delete with wrong version err = %v, want ErrVersionConflict", err)
	}
	if err := s.Delete(ctx, "alice", version); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "alice", version); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete on already-absent AoR err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSweepExpiresBindingsAndReportsOnEvict(t *testing.T) {
	ctx := context.Background()
	var reported []string
	s := NewMemoryStore(MemoryStoreConfig{
		OnExpiry: func(aorID string) { reported = append(reported, aorID) },
	})
	defer s.Close()

	a := aor.New("sip:alice@example.com", "sip:scscf.example.com")
	a.Bindings["B1"] = &aor.Binding{ContactURI: "sip:a@1", Expires: time.Now().Add(-time.Second)}
	a.Subscriptions["S1"] = &aor.Subscription{ReqURI: "sip:a@1", Expires: time.Now().Add(time.Hour)}
	s.Put(ctx, "alice", a)

	s.sweep()

	if len(reported) != 1 || reported[0] != "alice" {
		t.Fatalf("sweep reported %v, want [alice]", reported)
	}
	if _, _, err := s.Get(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after sweep removes the only binding, AoR must be absent, got err=%v", err)
	}
}
