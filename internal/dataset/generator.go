// Package dataset produces the vectors submitted by the load test, either
// synthesised on the fly or read back from a Parquet file.
package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/23skdu/vdbload/client"
	vderrors "github.com/23skdu/vdbload/internal/errors"
	"github.com/23skdu/vdbload/internal/metrics"
)

// Mode selects how vectors inside a batch relate to each other.
type Mode string

const (
	// ModeUniform draws every value independently from [-1, 1).
	ModeUniform Mode = "uniform"
	// ModeClustered makes each batch one random base vector followed by
	// perturbed copies of it.
	ModeClustered Mode = "clustered"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUniform, ModeClustered:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown dataset mode %q (want %q or %q)", s, ModeUniform, ModeClustered)
	}
}

// VectorID is the id of vector offset in batch of transaction txn. Ids are
// dense in [0, txnCount*batchCount*batchSize) and never repeat within a run.
func VectorID(txn, batch, offset, batchCount, batchSize int) uint64 {
	return uint64((txn*batchCount+batch)*batchSize + offset)
}

// Generator synthesises reproducible vectors: the same Seed always yields the
// same values for a given (transaction, batch).
type Generator struct {
	Dimension    int
	BatchCount   int
	BatchSize    int
	Mode         Mode
	Perturbation float64
	Seed         uint64
	// Parallelism bounds generation goroutines; 0 means GOMAXPROCS.
	Parallelism int
}

// Validate reports the first invalid field.
func (g *Generator) Validate() error {
	switch {
	case g.Dimension <= 0:
		return vderrors.NewValidationError("generator", "dimension must be positive")
	case g.BatchCount <= 0:
		return vderrors.NewValidationError("generator", "batch count must be positive")
	case g.BatchSize <= 0:
		return vderrors.NewValidationError("generator", "batch size must be positive")
	case g.Perturbation < 0:
		return vderrors.NewValidationError("generator", "perturbation must not be negative")
	}
	if _, err := ParseMode(string(g.Mode)); err != nil {
		return vderrors.NewValidationError("generator", err.Error())
	}
	return nil
}

// PerTransaction is the number of vectors in one transaction.
func (g *Generator) PerTransaction() int {
	return g.BatchCount * g.BatchSize
}

// Transaction returns all vectors of transaction txn in batch order.
func (g *Generator) Transaction(ctx context.Context, txn int) ([]client.Vector, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	out := make([]client.Vector, g.PerTransaction())
	par := g.Parallelism
	if par <= 0 {
		par = runtime.GOMAXPROCS(0)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(par)
	for b := 0; b < g.BatchCount; b++ {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			g.fillBatch(out[b*g.BatchSize:(b+1)*g.BatchSize], txn, b)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	metrics.GenerationDurationSeconds.Observe(time.Since(start).Seconds())
	return out, nil
}

// Batch returns the vectors of one batch; it equals the matching slice of
// Transaction(txn).
func (g *Generator) Batch(txn, batch int) []client.Vector {
	out := make([]client.Vector, g.BatchSize)
	g.fillBatch(out, txn, batch)
	return out
}

func (g *Generator) rng(txn, batch int) *rand.Rand {
	return rand.New(rand.NewPCG(g.Seed, uint64(txn)<<32|uint64(uint32(batch))))
}

func (g *Generator) fillBatch(dst []client.Vector, txn, batch int) {
	rng := g.rng(txn, batch)

	switch g.Mode {
	case ModeClustered:
		base := RandomVector(rng, g.Dimension)
		for i := range dst {
			values := base
			if i > 0 {
				values = Perturb(base, g.Perturbation, rng)
			}
			dst[i] = client.Vector{ID: VectorID(txn, batch, i, g.BatchCount, g.BatchSize), Values: values}
		}
	default:
		for i := range dst {
			dst[i] = client.Vector{
				ID:     VectorID(txn, batch, i, g.BatchCount, g.BatchSize),
				Values: RandomVector(rng, g.Dimension),
			}
		}
	}
}

// RandomVector draws dim values uniformly from [-1, 1).
func RandomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

// Perturb returns a copy of values with uniform noise in [-degree, degree)
// added to each element, clamped to [-1, 1].
func Perturb(values []float32, degree float64, rng *rand.Rand) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		p := float64(v) + (rng.Float64()*2-1)*degree
		out[i] = float32(min(1, max(-1, p)))
	}
	return out
}
