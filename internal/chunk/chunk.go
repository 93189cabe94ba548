// Package chunk defines the retrievable text unit and the ordered store
// shared by all retrieval indices.
package chunk

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Sentinel errors for chunk store construction.
var (
	// ErrMissingID is returned when a chunk has an empty identifier.
	ErrMissingID = errors.New("chunk missing identifier")

	// ErrDuplicateID is returned when two chunks share an identifier.
	ErrDuplicateID = errors.New("duplicate chunk identifier")
)

// Chunk is an immutable unit of retrievable text.
//
// Source carries opaque provenance metadata (document ID, page or timestamp
// range) produced by the ingestion layer. Retrieval never interprets it, only
// passes it through to results.
//
// Embedding is the dense vector for the chunk text, computed once at index
// build time. A chunk without an embedding can still be indexed lexically.
type Chunk struct {
	ID        string
	Text      string
	Source    map[string]interface{}
	Embedding []float32
}

// Store is an ordered, immutable collection of chunks with stable IDs.
//
// A Store is built once per document and then treated as read-only, so
// concurrent lookups from multiple searches are safe without locking.
type Store struct {
	chunks []Chunk
	byID   map[string]int
}

// NewStore builds a store from an ordered chunk sequence.
//
// Chunk IDs must be non-empty and unique. The input slice is copied; callers
// may reuse it afterwards. An empty input is valid and yields an empty store.
func NewStore(chunks []Chunk) (*Store, error) {
	s := &Store{
		chunks: make([]Chunk, len(chunks)),
		byID:   make(map[string]int, len(chunks)),
	}
	copy(s.chunks, chunks)

	for i, c := range s.chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: chunk at position %d", ErrMissingID, i)
		}
		if _, exists := s.byID[c.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, c.ID)
		}
		s.byID[c.ID] = i
	}

	return s, nil
}

// Len returns the number of chunks in the store.
func (s *Store) Len() int {
	return len(s.chunks)
}

// At returns the chunk at position i in ingestion order.
func (s *Store) At(i int) Chunk {
	return s.chunks[i]
}

// Get returns the chunk with the given ID.
func (s *Store) Get(id string) (Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Chunk{}, false
	}
	return s.chunks[i], true
}

// All returns the chunks in ingestion order. The returned slice is a copy.
func (s *Store) All() []Chunk {
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Texts returns the chunk texts in ingestion order.
func (s *Store) Texts() []string {
	out := make([]string, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = c.Text
	}
	return out
}

// Fingerprint returns a stable content fingerprint for the store.
//
// The fingerprint is a SHA-256 digest over the ordered (ID, text) pairs with
// length prefixes, so it changes whenever chunk content, identity, or order
// changes. It keys the retriever's handle store: re-ingesting a document with
// identical content maps to the same handle.
func (s *Store) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	for _, c := range s.chunks {
		binary.BigEndian.PutUint64(buf[:], uint64(len(c.ID)))
		h.Write(buf[:])
		h.Write([]byte(c.ID))
		binary.BigEndian.PutUint64(buf[:], uint64(len(c.Text)))
		h.Write(buf[:])
		h.Write([]byte(c.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
