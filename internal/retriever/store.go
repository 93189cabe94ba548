package retriever

import "sync"

// HandleStore keeps built handles keyed by corpus fingerprint.
//
// Rebuilds swap the reference atomically: an in-flight retrieval keeps using
// the handle it resolved, while new retrievals see the replacement. Handles
// themselves are never mutated after build.
type HandleStore struct {
	mu            sync.RWMutex
	byFingerprint map[string]*Handle
}

// NewHandleStore creates an empty handle store.
func NewHandleStore() *HandleStore {
	return &HandleStore{byFingerprint: make(map[string]*Handle)}
}

// Put registers a handle under its fingerprint and returns the handle it
// replaced, if any.
func (s *HandleStore) Put(h *Handle) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.byFingerprint[h.fingerprint]
	s.byFingerprint[h.fingerprint] = h
	return previous
}

// Get returns the handle for a corpus fingerprint.
func (s *HandleStore) Get(fingerprint string) (*Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.byFingerprint[fingerprint]
	return h, ok
}

// Invalidate removes the handle for a fingerprint. Returns true if one was
// present.
func (s *HandleStore) Invalidate(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byFingerprint[fingerprint]
	delete(s.byFingerprint, fingerprint)
	return ok
}

// Len returns the number of registered handles.
func (s *HandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byFingerprint)
}
