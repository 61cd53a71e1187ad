// Package driver submits vectors to the server in transactions: each
// transaction is opened, filled by concurrent batch upserts and then
// committed, or aborted when anything failed.
package driver

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/23skdu/vdbload/client"
	"github.com/23skdu/vdbload/internal/concurrency"
	vderrors "github.com/23skdu/vdbload/internal/errors"
	"github.com/23skdu/vdbload/internal/metrics"
)

// TransactionAPI is the subset of the server API the driver needs.
// *client.Client implements it.
type TransactionAPI interface {
	CreateTransaction(ctx context.Context, collection string) (string, error)
	Upsert(ctx context.Context, collection, txnID string, vectors []client.Vector) error
	Commit(ctx context.Context, collection, txnID string) error
	Abort(ctx context.Context, collection, txnID string) error
}

// Source yields the vectors of transaction txn.
type Source interface {
	Transaction(ctx context.Context, txn int) ([]client.Vector, error)
}

// Config controls a Driver.
type Config struct {
	// Workers is the number of batch upserts in flight at once.
	Workers int
	// BatchSize is the number of vectors per upsert call.
	BatchSize int
	// AbortTimeout bounds the abort call, which runs even after ctx is
	// cancelled.
	AbortTimeout time.Duration
}

// DefaultConfig returns the settings of the reference load run.
func DefaultConfig() Config {
	return Config{
		Workers:      64,
		BatchSize:    256,
		AbortTimeout: 30 * time.Second,
	}
}

// Driver runs transactions against a TransactionAPI.
type Driver struct {
	api    TransactionAPI
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and returns a Driver. A nil logger discards output.
func New(api TransactionAPI, cfg Config, logger *zap.Logger) (*Driver, error) {
	if api == nil {
		return nil, vderrors.NewValidationError("new_driver", "transaction api is required")
	}
	if cfg.Workers < 1 {
		return nil, vderrors.NewValidationError("new_driver", "workers must be at least 1")
	}
	if cfg.BatchSize < 1 {
		return nil, vderrors.NewValidationError("new_driver", "batch size must be at least 1")
	}
	if cfg.AbortTimeout <= 0 {
		cfg.AbortTimeout = DefaultConfig().AbortTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{api: api, cfg: cfg, logger: logger}, nil
}

// RunTransaction loads vectors into collection inside one transaction. The
// returned error is the one that decided the outcome; an abort failure is
// logged and reported in TransactionReport.AbortErr only.
func (d *Driver) RunTransaction(ctx context.Context, collection string, vectors []client.Vector) (*TransactionReport, error) {
	return d.runTransaction(ctx, 0, collection, vectors)
}

func (d *Driver) runTransaction(ctx context.Context, index int, collection string, vectors []client.Vector) (*TransactionReport, error) {
	start := time.Now()
	report := &TransactionReport{Index: index, Vectors: len(vectors)}
	defer func() {
		report.Elapsed = time.Since(start)
		metrics.TransactionDurationSeconds.Observe(report.Elapsed.Seconds())
		metrics.TransactionsTotal.WithLabelValues(report.Outcome()).Inc()
	}()

	batches, err := Partition(len(vectors), d.cfg.BatchSize)
	if err != nil {
		report.Err = err
		return report, err
	}
	report.Batches = len(batches)

	logger := d.logger.With(zap.Int("transaction", index), zap.String("collection", collection))

	txnID, err := d.api.CreateTransaction(ctx, collection)
	if err != nil {
		err = ensureType(err, vderrors.ErrTransactionCreate, vderrors.ErrorTypeTransactionCreate, "create_transaction", "open transaction")
		report.Err = err
		logger.Error("Failed to open transaction", zap.Error(err))
		return report, err
	}
	report.ID = txnID
	logger = logger.With(zap.String("transaction_id", txnID))
	logger.Info("Transaction opened", zap.Int("vectors", len(vectors)), zap.Int("batches", len(batches)))

	results := concurrency.RunBounded(ctx, d.cfg.Workers, len(batches), func(ctx context.Context, i int) (int, error) {
		b := batches[i]
		metrics.BatchesInFlight.Inc()
		defer metrics.BatchesInFlight.Dec()

		if err := d.api.Upsert(ctx, collection, txnID, vectors[b.Start:b.End]); err != nil {
			metrics.BatchesTotal.WithLabelValues("failed").Inc()
			return 0, vderrors.NewBatchUpsertError(b.Index, err)
		}
		metrics.BatchesTotal.WithLabelValues("ok").Inc()
		metrics.VectorsUpsertedTotal.Add(float64(b.Len()))
		return b.Len(), nil
	})

	if failed := concurrency.Failed(results); len(failed) > 0 {
		errs := make([]error, len(failed))
		report.FailedBatches = make([]int, len(failed))
		for i, r := range failed {
			errs[i] = r.Err
			report.FailedBatches[i] = r.Index
		}
		sort.Ints(report.FailedBatches)
		report.Err = errors.Join(errs...)

		logger.Error("Batch upserts failed, aborting transaction",
			zap.Int("failed_batches", len(failed)),
			zap.Ints("failed_indices", report.FailedBatches),
			zap.Error(errs[0]))
		d.abort(ctx, logger, collection, report)
		return report, report.Err
	}

	if err := d.api.Commit(ctx, collection, txnID); err != nil {
		err = ensureType(err, vderrors.ErrTransactionCommit, vderrors.ErrorTypeTransactionCommit, "commit", "commit transaction")
		report.Err = err
		logger.Error("Commit failed, aborting transaction", zap.Error(err))
		d.abort(ctx, logger, collection, report)
		return report, err
	}

	report.Committed = true
	logger.Info("Transaction committed", zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

// abort is best effort: failures are logged and recorded, never returned.
func (d *Driver) abort(ctx context.Context, logger *zap.Logger, collection string, report *TransactionReport) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.AbortTimeout)
	defer cancel()

	if err := d.api.Abort(actx, collection, report.ID); err != nil {
		report.AbortErr = ensureType(err, vderrors.ErrTransactionAbort, vderrors.ErrorTypeTransactionAbort, "abort", "abort transaction")
		logger.Error("Abort failed", zap.Error(report.AbortErr))
		return
	}
	report.Aborted = true
	logger.Warn("Transaction aborted")
}

// Run executes txnCount transactions with vectors from src. A failed
// transaction is logged and the next one still runs; a cancelled ctx stops the
// loop before the next transaction starts.
func (d *Driver) Run(ctx context.Context, collection string, txnCount int, src Source) *RunReport {
	start := time.Now()
	report := &RunReport{Transactions: make([]*TransactionReport, 0, max(txnCount, 0))}

	for txn := 0; txn < txnCount; txn++ {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			d.logger.Warn("Run interrupted", zap.Int("next_transaction", txn), zap.Error(err))
			break
		}

		vectors, err := src.Transaction(ctx, txn)
		if err != nil {
			d.logger.Error("Failed to produce transaction vectors", zap.Int("transaction", txn), zap.Error(err))
			report.Transactions = append(report.Transactions, &TransactionReport{Index: txn, Err: err, sourceFailed: true})
			continue
		}

		tr, err := d.runTransaction(ctx, txn, collection, vectors)
		report.Transactions = append(report.Transactions, tr)
		if err != nil {
			d.logger.Error("Transaction failed", zap.Int("transaction", txn), zap.String("outcome", tr.Outcome()), zap.Error(err))
			continue
		}
		d.logger.Info("Transaction complete",
			zap.Int("transaction", txn),
			zap.Int("vectors", tr.Vectors),
			zap.Duration("elapsed", tr.Elapsed))
	}

	report.Elapsed = time.Since(start)
	return report
}

func ensureType(err error, sentinel error, typ vderrors.ErrorType, op, msg string) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return vderrors.Wrap(err, typ, op, msg)
}
