package retriever

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/varivashyap/studybuddy/internal/chunk"
	"github.com/varivashyap/studybuddy/internal/dense"
	"github.com/varivashyap/studybuddy/internal/lexical"
)

func init() {
	// Chunk sources carry heterogeneous metadata values.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// Handle is an immutable pair of built indices over one chunk corpus.
//
// Handles are built once by Service.BuildIndices and served read-only
// afterwards; rebuilding a changed corpus produces a new Handle that replaces
// the old one in the handle store. Concurrent retrievals against the same
// Handle are safe.
type Handle struct {
	id          string
	fingerprint string
	createdAt   time.Time

	store   *chunk.Store
	dense   dense.Index
	lexical *lexical.Index
}

func newHandle(store *chunk.Store, denseIdx dense.Index, lexIdx *lexical.Index) *Handle {
	return &Handle{
		id:          uuid.NewString(),
		fingerprint: store.Fingerprint(),
		createdAt:   time.Now().UTC(),
		store:       store,
		dense:       denseIdx,
		lexical:     lexIdx,
	}
}

// ID returns the unique identifier of this build.
func (h *Handle) ID() string { return h.id }

// Fingerprint returns the content fingerprint of the indexed corpus. Two
// handles built from identical chunk sequences share a fingerprint even
// though their IDs differ.
func (h *Handle) Fingerprint() string { return h.fingerprint }

// CreatedAt returns when the indices were built.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// Len returns the number of indexed chunks.
func (h *Handle) Len() int { return h.store.Len() }

// handleSnapshot is the serialized form of a Handle. Indices are rebuilt on
// load rather than serialized; chunk embeddings are retained so the rebuild
// needs no embedder.
type handleSnapshot struct {
	ID          string
	Fingerprint string
	CreatedAt   time.Time
	Chunks      []chunk.Chunk
}

// Save writes the handle's corpus to path for later reuse. The written file
// is an opaque blob; only Service.LoadHandle understands it.
func (h *Handle) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating handle file: %w", err)
	}
	defer f.Close()

	snapshot := handleSnapshot{
		ID:          h.id,
		Fingerprint: h.fingerprint,
		CreatedAt:   h.createdAt,
		Chunks:      h.store.All(),
	}
	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		return fmt.Errorf("encoding handle: %w", err)
	}
	return nil
}

func decodeSnapshot(r io.Reader, snapshot *handleSnapshot) error {
	return gob.NewDecoder(r).Decode(snapshot)
}
