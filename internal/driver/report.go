package driver

import (
	"fmt"
	"time"
)

// TransactionReport describes one transaction of a run.
type TransactionReport struct {
	// Index is the position of the transaction in the run.
	Index int
	// ID is the server-assigned transaction id, empty when opening failed.
	ID      string
	Batches int
	Vectors int
	// FailedBatches holds the indices of failed batches in ascending order.
	FailedBatches []int
	Committed     bool
	Aborted       bool
	Elapsed       time.Duration
	// Err is the error that decided the outcome.
	Err error
	// AbortErr is set when the best-effort abort itself failed.
	AbortErr error

	sourceFailed bool
}

// Outcome is a short label for the transaction result.
func (r *TransactionReport) Outcome() string {
	switch {
	case r.Committed:
		return "committed"
	case r.sourceFailed:
		return "source_failed"
	case r.ID == "":
		return "create_failed"
	case r.AbortErr != nil:
		return "abort_failed"
	case r.Aborted:
		return "aborted"
	default:
		return "failed"
	}
}

// String renders a one-line summary.
func (r *TransactionReport) String() string {
	s := fmt.Sprintf("txn %d (%s): %s, %d vectors in %d batches, %s",
		r.Index, r.ID, r.Outcome(), r.Vectors, r.Batches, r.Elapsed.Round(time.Millisecond))
	if len(r.FailedBatches) > 0 {
		s += fmt.Sprintf(", failed batches %v", r.FailedBatches)
	}
	return s
}

// RunReport aggregates all transactions of a run.
type RunReport struct {
	Transactions []*TransactionReport
	Elapsed      time.Duration
	// Interrupted is set when the context was cancelled before every
	// transaction started.
	Interrupted bool
}

// Committed returns the number of committed transactions.
func (r *RunReport) Committed() int {
	n := 0
	for _, t := range r.Transactions {
		if t.Committed {
			n++
		}
	}
	return n
}

// Failed returns the number of transactions that did not commit.
func (r *RunReport) Failed() int {
	return len(r.Transactions) - r.Committed()
}

// VectorsCommitted sums the vectors of committed transactions.
func (r *RunReport) VectorsCommitted() int {
	n := 0
	for _, t := range r.Transactions {
		if t.Committed {
			n += t.Vectors
		}
	}
	return n
}

// Throughput is committed vectors per second over the whole run.
func (r *RunReport) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.VectorsCommitted()) / r.Elapsed.Seconds()
}
