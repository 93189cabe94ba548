// Package fusion merges the dense and lexical rankings into one list.
//
// The default mode is reciprocal rank fusion (RRF), which only consumes the
// rank positions of the two input lists and is therefore immune to their
// incompatible score scales. A weighted-score mode is also available; it
// min-max normalizes each list's scores before combining, matching the
// behavior retrieval quality was originally tuned against.
package fusion

import (
	"fmt"
	"sort"
)

// Mode selects the fusion algorithm.
type Mode string

const (
	// ModeRRF is reciprocal rank fusion (default).
	ModeRRF Mode = "rrf"

	// ModeWeightedScore combines min-max normalized scores directly.
	ModeWeightedScore Mode = "weighted_score"
)

// Options configures a merge.
type Options struct {
	// KRRF is the RRF smoothing constant. It dampens the dominance of
	// rank-1 hits; 60 is the standard value from the RRF literature.
	// Default: 60.
	KRRF float64 `koanf:"k_rrf"`

	// DenseWeight and LexicalWeight weight the two signals. Defaults: 0.5
	// each (equal trust).
	DenseWeight   float64 `koanf:"dense_weight"`
	LexicalWeight float64 `koanf:"lexical_weight"`

	// Mode selects the fusion algorithm. Default: ModeRRF.
	Mode Mode `koanf:"mode"`
}

// ApplyDefaults sets default values for unset fields.
func (o *Options) ApplyDefaults() {
	if o.KRRF == 0 {
		o.KRRF = 60
	}
	if o.DenseWeight == 0 && o.LexicalWeight == 0 {
		o.DenseWeight = 0.5
		o.LexicalWeight = 0.5
	}
	if o.Mode == "" {
		o.Mode = ModeRRF
	}
}

// Validate validates the options.
func (o Options) Validate() error {
	if o.KRRF < 0 {
		return fmt.Errorf("k_rrf must be non-negative, got %v", o.KRRF)
	}
	if o.DenseWeight < 0 || o.LexicalWeight < 0 {
		return fmt.Errorf("weights must be non-negative, got dense=%v lexical=%v", o.DenseWeight, o.LexicalWeight)
	}
	switch o.Mode {
	case ModeRRF, ModeWeightedScore:
	default:
		return fmt.Errorf("unknown fusion mode %q", o.Mode)
	}
	return nil
}

// Ranked is one entry of a single-signal ranked list. Rank is 1-based.
type Ranked struct {
	ChunkID string
	Score   float64
	Rank    int
}

// Result is one entry of the fused ranking.
//
// DenseRank and LexicalRank record the chunk's 1-based rank in each input
// list; 0 means the chunk was absent from that list.
type Result struct {
	ChunkID     string
	Score       float64
	DenseRank   int
	LexicalRank int
}

// minRank returns the better (smaller) of the present input ranks.
func (r Result) minRank() int {
	switch {
	case r.DenseRank == 0:
		return r.LexicalRank
	case r.LexicalRank == 0:
		return r.DenseRank
	case r.DenseRank < r.LexicalRank:
		return r.DenseRank
	default:
		return r.LexicalRank
	}
}

// Merge fuses two independently ranked lists into one ranking.
//
// Every chunk present in either input appears exactly once in the output.
// The output is sorted by descending fused score; exact ties are broken by
// the smaller minimum rank across both inputs, then by chunk ID ascending,
// giving a total order so repeated merges of the same inputs are
// byte-identical. Merging two empty lists yields an empty list; merging with
// one empty list degrades to a re-weighting of the other.
func Merge(dense, lexical []Ranked, opts Options) ([]Result, error) {
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("validating options: %w", err)
	}

	merged := make(map[string]*Result, len(dense)+len(lexical))
	for _, d := range dense {
		merged[d.ChunkID] = &Result{ChunkID: d.ChunkID, DenseRank: d.Rank}
	}
	for _, l := range lexical {
		if r, ok := merged[l.ChunkID]; ok {
			r.LexicalRank = l.Rank
		} else {
			merged[l.ChunkID] = &Result{ChunkID: l.ChunkID, LexicalRank: l.Rank}
		}
	}

	switch opts.Mode {
	case ModeWeightedScore:
		scoreWeighted(merged, dense, lexical, opts)
	default:
		scoreRRF(merged, opts)
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if mi, mj := results[i].minRank(), results[j].minRank(); mi != mj {
			return mi < mj
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results, nil
}

// scoreRRF assigns reciprocal-rank-fusion scores: each signal a chunk appears
// in contributes weight/(k+rank); absence contributes nothing.
func scoreRRF(merged map[string]*Result, opts Options) {
	for _, r := range merged {
		if r.DenseRank > 0 {
			r.Score += opts.DenseWeight / (opts.KRRF + float64(r.DenseRank))
		}
		if r.LexicalRank > 0 {
			r.Score += opts.LexicalWeight / (opts.KRRF + float64(r.LexicalRank))
		}
	}
}

// scoreWeighted assigns weighted sums of min-max normalized signal scores.
func scoreWeighted(merged map[string]*Result, dense, lexical []Ranked, opts Options) {
	denseNorm := normalizeScores(dense)
	lexicalNorm := normalizeScores(lexical)

	for i, d := range dense {
		merged[d.ChunkID].Score += opts.DenseWeight * denseNorm[i]
	}
	for i, l := range lexical {
		merged[l.ChunkID].Score += opts.LexicalWeight * lexicalNorm[i]
	}
}

// normalizeScores min-max normalizes a ranked list's scores into [0,1].
// A list with a single distinct score maps entirely to 1.
func normalizeScores(list []Ranked) []float64 {
	if len(list) == 0 {
		return nil
	}

	min, max := list[0].Score, list[0].Score
	for _, r := range list[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}

	out := make([]float64, len(list))
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, r := range list {
		out[i] = (r.Score - min) / (max - min)
	}
	return out
}
