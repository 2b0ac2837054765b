package s4

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/patch"
)

// MemoryStoreConfig configures a MemoryStore.
type MemoryStoreConfig struct {
	// SweepInterval is how often the background goroutine scans for
	// bindings past their Expires instant. Zero disables the sweep.
	SweepInterval time.Duration

	// OnExpiry is invoked (outside the store's lock) for every AoR the
	// sweep mutates by dropping expired bindings/cascaded subscriptions.
	OnExpiry ExpiryHandler
}

// DefaultMemoryStoreConfig returns sane defaults for standalone/dev use.
func DefaultMemoryStoreConfig() MemoryStoreConfig {
	return MemoryStoreConfig{SweepInterval: 10 * time.Second}
}

type document struct {
	aor     *aor.AoR
	version int
}

// MemoryStore is an in-process, mutex-guarded implementation of Store.
// Versions are a monotonically increasing per-AoR integer, serialised as a
// decimal string. Grounded on the generic TTLStore[K,V] eviction pattern:
// a periodic sweep drops expired entries and reports them via a callback
// rather than holding a back-reference to the store's owner.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]*document
	cfg    MemoryStoreConfig
	stopCh chan struct{}
}

// NewMemoryStore constructs a MemoryStore and starts its sweep goroutine
// if cfg.SweepInterval is positive.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	s := &MemoryStore{
		docs:   make(map[string]*document),
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go s.sweepLoop()
	}
	return s
}

// Close stops the background sweep goroutine.
func (s *MemoryStore) Close() {
	close(s.stopCh)
}

func (s *MemoryStore) Get(ctx context.Context, aorID string) (*aor.AoR, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[aorID]
	if !ok {
		return nil, "", ErrNotFound
	}
	return doc.aor.Clone(), versionString(doc.version), nil
}

func (s *MemoryStore) Put(ctx context.Context, aorID string, a *aor.AoR) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := &document{aor: a.Clone(), version: 1}
	s.docs[aorID] = doc
	return versionString(doc.version), nil
}

func (s *MemoryStore) Patch(ctx context.Context, aorID string, p *patch.Patch, version string) (*aor.AoR, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[aorID]
	if !ok {
		return nil, "", ErrNotFound
	}
	if versionString(doc.version) != version {
		return nil, "", ErrVersionConflict
	}

	applyPatch(doc.aor, p)
	doc.version++

	if doc.aor.Empty() {
		delete(s.docs, aorID)
	}
	return doc.aor.Clone(), versionString(doc.version), nil
}

func (s *MemoryStore) Delete(ctx context.Context, aorID string, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[aorID]
	if !ok {
		return ErrNotFound
	}
	if versionString(doc.version) != version {
		return ErrVersionConflict
	}
	delete(s.docs, aorID)
	return nil
}

func applyPatch(a *aor.AoR, p *patch.Patch) {
	for id, b := range p.UpdateBindings {
		a.Bindings[id] = b
	}
	for _, id := range p.RemoveBindings {
		delete(a.Bindings, id)
	}
	for id, sub := range p.UpdateSubscriptions {
		a.Subscriptions[id] = sub
	}
	for _, id := range p.RemoveSubscriptions {
		delete(a.Subscriptions, id)
	}
	if p.AssociatedURIsChanged {
		a.AssociatedURIs = p.AssociatedURIs
	}
	if p.IncrementCSeq {
		a.NotifyCSeq++
	}
}

func versionString(v int) string {
	return strconv.Itoa(v)
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep drops bindings past their Expires instant (and any subscription
// cascaded by that removal), bumping the AoR's version and NotifyCSeq
// exactly as a regular PATCH would, then reports the mutated AoR ids via
// OnExpiry outside the lock.
func (s *MemoryStore) sweep() {
	now := time.Now()

	s.mu.Lock()
	var touched []string
	for aorID, doc := range s.docs {
		var goneURIs []string
		for id, b := range doc.aor.Bindings {
			if b.IsExpired(now) {
				goneURIs = append(goneURIs, b.ContactURI)
				delete(doc.aor.Bindings, id)
			}
		}
		if len(goneURIs) == 0 {
			continue
		}
		for id := range patch.CascadeSet(goneURIs, doc.aor.Subscriptions) {
			delete(doc.aor.Subscriptions, id)
		}
		doc.aor.NotifyCSeq++
		doc.version++
		if doc.aor.Empty() {
			delete(s.docs, aorID)
		}
		touched = append(touched, aorID)
	}
	handler := s.cfg.OnExpiry
	s.mu.Unlock()

	if handler != nil {
		for _, aorID := range touched {
			handler(aorID)
		}
	}
}
