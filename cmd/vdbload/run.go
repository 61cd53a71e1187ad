package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/23skdu/vdbload/client"
	"github.com/23skdu/vdbload/internal/driver"
	"github.com/23skdu/vdbload/internal/search"
)

func NewRunCmd() *cobra.Command {
	def := DefaultConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create the collection and load vectors in transactions",
		Long: `Log in, create the collection (an existing one is reused), optionally create
an explicit dense HNSW index, then run the configured number of transactions.
Each transaction is split into batches upserted concurrently and committed only
when every batch succeeded. A search sanity check runs afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCommandConfig(cmd)
			if err != nil {
				return err
			}
			s, err := newSession(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			_, err = s.runLoad(cmd.Context())
			return err
		},
	}

	cmd.Flags().IntP("workers", "w", def.Workers, "Concurrent batch upserts per transaction")
	cmd.Flags().Bool("create-index", def.CreateIndex, "Create an explicit dense HNSW index before loading")
	cmd.Flags().Int("search-queries", def.SearchQueries, "Sanity queries after loading (0 disables)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	cmd.Flags().Duration("abort-timeout", def.AbortTimeout, "Deadline for aborting a failed transaction")
	return cmd
}

func (s *session) runLoad(ctx context.Context) (*driver.RunReport, error) {
	defer s.serveMetrics(s.cfg.MetricsAddr)()

	s.logger.Info("Starting load run",
		zap.String("collection", s.cfg.Collection),
		zap.Int("transactions", s.cfg.TxnCount),
		zap.Int("batch_count", s.cfg.BatchCount),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Int("dimension", s.cfg.Dimension),
		zap.Int("workers", s.cfg.Workers))

	if err := s.login(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	src, available, err := s.source()
	if err != nil {
		return nil, err
	}
	txns := s.cfg.TxnCount
	if available >= 0 && txns > available {
		s.logger.Warn("Dataset holds fewer transactions than requested",
			zap.Int("requested", txns), zap.Int("available", available))
		txns = available
	}

	d, err := driver.New(s.client, driver.Config{
		Workers:      s.cfg.Workers,
		BatchSize:    s.cfg.BatchSize,
		AbortTimeout: s.cfg.AbortTimeout,
	}, s.logger.Named("driver"))
	if err != nil {
		return nil, err
	}

	report := d.Run(ctx, s.cfg.Collection, txns, src)
	s.printRunReport(report)

	if s.cfg.SearchQueries > 0 && ctx.Err() == nil {
		if txn, ok := lastCommitted(report); ok {
			sum, err := s.sanityCheck(ctx, src, txn, committedTxns(report))
			if err != nil {
				return report, err
			}
			s.printSanitySummary(txn, sum)
			if !sum.Passed() {
				s.logger.Warn("Search sanity check failed",
					zap.Int("self_found", sum.SelfFound), zap.Int("queries", sum.Queries))
			}
		}
	}

	if failed := report.Failed(); failed > 0 {
		return report, fmt.Errorf("%d of %d transactions failed", failed, len(report.Transactions))
	}
	if report.Interrupted {
		return report, ctx.Err()
	}
	return report, nil
}

// ensureCollection creates the collection; one that already exists is reused.
func (s *session) ensureCollection(ctx context.Context) error {
	spec := client.NewCollectionSpec(s.cfg.Collection, s.cfg.Description, s.cfg.Dimension)
	col, err := s.client.CreateCollection(ctx, spec)
	switch {
	case err == nil:
		s.logger.Info("Collection created", zap.String("collection", s.cfg.Collection), zap.String("id", col.ID.String()))
	case client.IsConflict(err):
		s.logger.Warn("Collection already exists, reusing it", zap.String("collection", s.cfg.Collection))
	default:
		s.logger.Error("Failed to create collection", zap.String("collection", s.cfg.Collection), zap.Error(err))
		return err
	}

	if !s.cfg.CreateIndex {
		return nil
	}
	if err := s.client.CreateDenseIndex(ctx, s.cfg.Collection, client.DefaultIndexSpec(s.cfg.Collection)); err != nil {
		if client.IsConflict(err) {
			s.logger.Warn("Dense index already exists", zap.String("collection", s.cfg.Collection))
			return nil
		}
		s.logger.Error("Failed to create dense index", zap.String("collection", s.cfg.Collection), zap.Error(err))
		return err
	}
	s.logger.Info("Dense index created", zap.String("collection", s.cfg.Collection))
	return nil
}

// sanityCheck queries a sample of transaction txn and scores the answers
// against an exact scan over stored, the transactions held by the collection.
func (s *session) sanityCheck(ctx context.Context, src driver.Source, txn int, stored []int) (*search.Summary, error) {
	vectors, err := src.Transaction(ctx, txn)
	if err != nil {
		return nil, err
	}
	queries := search.SampleQueries(vectors, s.cfg.SearchQueries, s.cfg.Seed)
	return search.NewChecker(s.client, s.logger.Named("search")).
		CheckCorpus(ctx, s.cfg.Collection, src, stored, queries, s.cfg.SearchK)
}

func committedTxns(r *driver.RunReport) []int {
	var txns []int
	for _, t := range r.Transactions {
		if t.Committed {
			txns = append(txns, t.Index)
		}
	}
	return txns
}

func lastCommitted(r *driver.RunReport) (int, bool) {
	for i := len(r.Transactions) - 1; i >= 0; i-- {
		if r.Transactions[i].Committed {
			return r.Transactions[i].Index, true
		}
	}
	return 0, false
}

func (s *session) printRunReport(r *driver.RunReport) {
	s.printf("\n--- Results ---\n")
	s.printf("Run ID:       %s\n", s.runID)
	for _, t := range r.Transactions {
		s.printf("  %s\n", t)
	}
	s.printf("Elapsed:      %.2fs\n", r.Elapsed.Seconds())
	s.printf("Committed:    %d/%d transactions\n", r.Committed(), len(r.Transactions))
	s.printf("Vectors:      %d\n", r.VectorsCommitted())
	s.printf("Throughput:   %.2f vectors/sec\n", r.Throughput())
	if r.Interrupted {
		s.printf("Interrupted:  yes\n")
	}
}

func (s *session) printSanitySummary(txn int, sum *search.Summary) {
	s.printf("\n--- Search sanity check (transaction %d) ---\n", txn)
	for _, r := range sum.Results {
		if r.Err != nil {
			s.printf("  query %d: error: %v\n", r.QueryID, r.Err)
			continue
		}
		s.printf("  query %d: self_found=%t self_score=%.6f recall@%d=%.2f\n",
			r.QueryID, r.SelfFound, r.SelfScore, sum.K, r.Recall)
	}
	status := "PASS"
	if !sum.Passed() {
		status = "FAIL"
	}
	s.printf("Self found:   %d/%d\n", sum.SelfFound, sum.Queries)
	s.printf("Mean recall:  %.3f\n", sum.MeanRecall)
	s.printf("Status:       %s\n", status)
}
