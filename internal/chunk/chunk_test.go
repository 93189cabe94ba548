package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []Chunk
		wantErr error
	}{
		{
			name:   "empty input",
			chunks: nil,
		},
		{
			name: "valid chunks",
			chunks: []Chunk{
				{ID: "c1", Text: "first"},
				{ID: "c2", Text: "second"},
			},
		},
		{
			name: "missing identifier",
			chunks: []Chunk{
				{ID: "", Text: "orphan"},
			},
			wantErr: ErrMissingID,
		},
		{
			name: "duplicate identifier",
			chunks: []Chunk{
				{ID: "c1", Text: "first"},
				{ID: "c1", Text: "again"},
			},
			wantErr: ErrDuplicateID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(tt.chunks)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.chunks), s.Len())
		})
	}
}

func TestStoreLookup(t *testing.T) {
	s, err := NewStore([]Chunk{
		{ID: "a", Text: "alpha", Source: map[string]interface{}{"page": 1}},
		{ID: "b", Text: "beta"},
	})
	require.NoError(t, err)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Text)
	assert.Equal(t, 1, got.Source["page"])

	_, ok = s.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, "beta", s.At(1).Text)
	assert.Equal(t, []string{"alpha", "beta"}, s.Texts())
}

func TestStoreCopiesInput(t *testing.T) {
	in := []Chunk{{ID: "a", Text: "alpha"}}
	s, err := NewStore(in)
	require.NoError(t, err)

	in[0].Text = "mutated"
	assert.Equal(t, "alpha", s.At(0).Text)
}

func TestFingerprint(t *testing.T) {
	a1, err := NewStore([]Chunk{{ID: "a", Text: "alpha"}, {ID: "b", Text: "beta"}})
	require.NoError(t, err)
	a2, err := NewStore([]Chunk{{ID: "a", Text: "alpha"}, {ID: "b", Text: "beta"}})
	require.NoError(t, err)

	// Same content, same fingerprint.
	assert.Equal(t, a1.Fingerprint(), a2.Fingerprint())

	// Order matters.
	reordered, err := NewStore([]Chunk{{ID: "b", Text: "beta"}, {ID: "a", Text: "alpha"}})
	require.NoError(t, err)
	assert.NotEqual(t, a1.Fingerprint(), reordered.Fingerprint())

	// Content matters.
	changed, err := NewStore([]Chunk{{ID: "a", Text: "alpha"}, {ID: "b", Text: "gamma"}})
	require.NoError(t, err)
	assert.NotEqual(t, a1.Fingerprint(), changed.Fingerprint())

	// Boundary between ID and text is unambiguous.
	shifted, err := NewStore([]Chunk{{ID: "aa", Text: "lpha"}, {ID: "b", Text: "beta"}})
	require.NoError(t, err)
	assert.NotEqual(t, a1.Fingerprint(), shifted.Fingerprint())
}
