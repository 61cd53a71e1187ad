package search

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"

	"github.com/23skdu/vdbload/client"
	vderrors "github.com/23skdu/vdbload/internal/errors"
	"github.com/23skdu/vdbload/internal/metrics"
)

// SelfScoreTolerance is how far from 1.0 the score of a query's own id may be.
const SelfScoreTolerance = 1e-3

// Searcher is the ANN side of the comparison.
type Searcher interface {
	Search(ctx context.Context, req client.SearchRequest) ([]client.Neighbor, error)
}

// Corpus yields the vectors of one transaction. It is satisfied by the
// generator and Parquet sources in internal/dataset.
type Corpus interface {
	Transaction(ctx context.Context, txn int) ([]client.Vector, error)
}

// QueryResult is the outcome of one sanity query.
type QueryResult struct {
	QueryID   uint64
	ANN       []client.Neighbor
	Exact     []Match
	SelfFound bool
	SelfScore float32 // score the server gave the query's own id
	TopScore  float32
	Recall    float64
	Err       error
}

// SelfScoreOK reports whether the query's own id is among the ANN hits with
// a similarity of 1.0 within SelfScoreTolerance.
func (r QueryResult) SelfScoreOK() bool {
	return r.Err == nil && r.SelfFound && math.Abs(1-float64(r.SelfScore)) <= SelfScoreTolerance
}

// Summary aggregates a sanity check.
type Summary struct {
	K          int
	Queries    int
	SelfFound  int
	Errors     int
	MeanRecall float64
	Results    []QueryResult
}

// Passed reports whether every query found itself with a score of ~1.0.
func (s *Summary) Passed() bool {
	if s.Queries == 0 {
		return false
	}
	for _, r := range s.Results {
		if !r.SelfScoreOK() {
			return false
		}
	}
	return true
}

// Checker runs sanity queries against a collection.
type Checker struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewChecker returns a Checker; a nil logger discards output.
func NewChecker(s Searcher, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{searcher: s, logger: logger}
}

// Check issues one ANN search per query and compares it with the exact top-k
// over corpus, which must hold every vector stored in the collection.
// Individual search failures are recorded in the summary; only invalid
// arguments and context cancellation return an error.
func (c *Checker) Check(ctx context.Context, collection string, corpus, queries []client.Vector, k int) (*Summary, error) {
	if err := validateCheck(queries, k); err != nil {
		return nil, err
	}
	exact := make([][]Match, len(queries))
	for i, q := range queries {
		exact[i] = BruteForce(corpus, q.Values, k)
	}
	return c.compare(ctx, collection, queries, exact, k)
}

// CheckCorpus is Check with the exact top-k computed over the transactions
// txns of src, one transaction in memory at a time.
func (c *Checker) CheckCorpus(ctx context.Context, collection string, src Corpus, txns []int, queries []client.Vector, k int) (*Summary, error) {
	if err := validateCheck(queries, k); err != nil {
		return nil, err
	}
	exact, err := ExactNeighbors(ctx, src, txns, queries, k)
	if err != nil {
		return nil, err
	}
	return c.compare(ctx, collection, queries, exact, k)
}

// ExactNeighbors returns the exact top-k of every query over the union of
// the given transactions.
func ExactNeighbors(ctx context.Context, src Corpus, txns []int, queries []client.Vector, k int) ([][]Match, error) {
	exact := make([][]Match, len(queries))
	for _, txn := range txns {
		vectors, err := src.Transaction(ctx, txn)
		if err != nil {
			return nil, err
		}
		for i, q := range queries {
			exact[i] = MergeMatches(exact[i], BruteForce(vectors, q.Values, k), k)
		}
	}
	return exact, nil
}

func validateCheck(queries []client.Vector, k int) error {
	if k <= 0 {
		return vderrors.NewValidationError("sanity_check", "k must be positive")
	}
	if len(queries) == 0 {
		return vderrors.NewValidationError("sanity_check", "no queries")
	}
	return nil
}

func (c *Checker) compare(ctx context.Context, collection string, queries []client.Vector, exact [][]Match, k int) (*Summary, error) {
	sum := &Summary{K: k, Results: make([]QueryResult, 0, len(queries))}
	var recallTotal float64

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res := QueryResult{QueryID: q.ID, Exact: exact[i]}

		ann, err := c.searcher.Search(ctx, client.SearchRequest{Collection: collection, Vector: q.Values, K: k})
		if err != nil {
			res.Err = err
			sum.Errors++
			metrics.SanityQueriesTotal.WithLabelValues("error").Inc()
			c.logger.Warn("Sanity search failed", zap.Uint64("query_id", q.ID), zap.Error(err))
			sum.Results = append(sum.Results, res)
			sum.Queries++
			continue
		}

		res.ANN = ann
		if len(ann) > 0 {
			res.TopScore = ann[0].Score
		}
		for _, n := range ann {
			if n.ID == q.ID {
				res.SelfFound = true
				res.SelfScore = n.Score
				break
			}
		}
		res.Recall = Recall(ann, res.Exact)
		recallTotal += res.Recall

		if res.SelfFound {
			sum.SelfFound++
			metrics.SanityQueriesTotal.WithLabelValues("self_found").Inc()
		} else {
			metrics.SanityQueriesTotal.WithLabelValues("self_missing").Inc()
		}
		c.logger.Debug("Sanity query",
			zap.Uint64("query_id", q.ID),
			zap.Bool("self_found", res.SelfFound),
			zap.Float32("self_score", res.SelfScore),
			zap.Float64("recall", res.Recall))

		sum.Results = append(sum.Results, res)
		sum.Queries++
	}

	if answered := sum.Queries - sum.Errors; answered > 0 {
		sum.MeanRecall = recallTotal / float64(answered)
		metrics.SanityRecall.Set(sum.MeanRecall)
	}
	return sum, nil
}

// Recall is the fraction of exact ids present in the ANN result.
func Recall(ann []client.Neighbor, exact []Match) float64 {
	if len(exact) == 0 {
		return 0
	}
	got := make(map[uint64]struct{}, len(ann))
	for _, n := range ann {
		got[n.ID] = struct{}{}
	}
	hit := 0
	for _, m := range exact {
		if _, ok := got[m.ID]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(exact))
}

// SampleQueries picks n distinct vectors from corpus, reproducibly for a seed.
// The whole corpus is returned when n >= len(corpus).
func SampleQueries(corpus []client.Vector, n int, seed uint64) []client.Vector {
	if n <= 0 {
		return nil
	}
	if n >= len(corpus) {
		return slices.Clone(corpus)
	}
	rng := rand.New(rand.NewPCG(seed, uint64(len(corpus))))
	perm := rng.Perm(len(corpus))[:n]
	out := make([]client.Vector, n)
	for i, p := range perm {
		out[i] = corpus[p]
	}
	return out
}
