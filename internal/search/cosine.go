// Package search compares the server's approximate nearest neighbours with
// an exact brute-force cosine scan.
package search

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/viterin/vek/vek32"

	"github.com/23skdu/vdbload/client"
	vderrors "github.com/23skdu/vdbload/internal/errors"
	"github.com/23skdu/vdbload/internal/metrics"
)

// CosineSimilarity returns the cosine of the angle between a and b. A zero
// vector yields 0.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, vderrors.NewValidationError("cosine_similarity",
			fmt.Sprintf("dimension mismatch: %d != %d", len(a), len(b)))
	}
	if len(a) == 0 {
		return 0, nil
	}
	na := vek32.Dot(a, a)
	nb := vek32.Dot(b, b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return vek32.CosineSimilarity(a, b), nil
}

// Match is one exact nearest neighbour.
type Match struct {
	ID    uint64
	Score float32
}

// BruteForce returns the k corpus vectors most similar to query, best first.
// Equal scores are ordered by id. Vectors whose dimension differs from the
// query are skipped.
func BruteForce(corpus []client.Vector, query []float32, k int) []Match {
	if k <= 0 || len(corpus) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.BruteForceDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	all := make([]Match, 0, len(corpus))
	for _, v := range corpus {
		s, err := CosineSimilarity(v.Values, query)
		if err != nil {
			continue
		}
		all = append(all, Match{ID: v.ID, Score: s})
	}

	slices.SortFunc(all, compareMatches)
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// MergeMatches combines two best-first lists into the k best, in the order
// BruteForce would return them for the union of both corpora.
func MergeMatches(a, b []Match, k int) []Match {
	if k <= 0 {
		return nil
	}
	out := make([]Match, 0, min(k, len(a)+len(b)))
	i, j := 0, 0
	for len(out) < k && (i < len(a) || j < len(b)) {
		switch {
		case j >= len(b) || (i < len(a) && compareMatches(a[i], b[j]) <= 0):
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	return out
}

func compareMatches(a, b Match) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
