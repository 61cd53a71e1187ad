package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/23skdu/vdbload/internal/search"
)

func NewSearchCmd() *cobra.Command {
	def := DefaultConfig()
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the search sanity check against loaded vectors",
		Long: `Regenerate (or read from --dataset) the vectors of one transaction, query the
server with a sample of them and compare the answers with an exact brute-force
cosine scan over the first --txns transactions. Fails unless every query finds
itself with similarity ~1.0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCommandConfig(cmd)
			if err != nil {
				return err
			}
			txn, _ := cmd.Flags().GetInt("txn")
			s, err := newSession(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			_, err = s.runSearch(cmd.Context(), txn)
			return err
		},
	}

	cmd.Flags().Int("txn", 0, "Transaction whose vectors are queried")
	cmd.Flags().Int("search-queries", def.SearchQueries, "Number of sampled queries")
	return cmd
}

func (s *session) runSearch(ctx context.Context, txn int) (*search.Summary, error) {
	if txn < 0 {
		return nil, fmt.Errorf("txn must not be negative: %d", txn)
	}
	if s.cfg.SearchQueries <= 0 {
		return nil, fmt.Errorf("search-queries must be positive")
	}
	if err := s.login(ctx); err != nil {
		return nil, err
	}
	src, available, err := s.source()
	if err != nil {
		return nil, err
	}

	sum, err := s.sanityCheck(ctx, src, txn, storedTxns(s.cfg.TxnCount, available, txn))
	if err != nil {
		return nil, err
	}
	s.printSanitySummary(txn, sum)
	if !sum.Passed() {
		return sum, fmt.Errorf("sanity check failed: %d/%d queries found themselves", sum.SelfFound, sum.Queries)
	}
	return sum, nil
}

// storedTxns lists the transactions a previous run loaded: the first
// txnCount (capped at what the dataset holds), plus txn itself.
func storedTxns(txnCount, available, txn int) []int {
	if available >= 0 && txnCount > available {
		txnCount = available
	}
	txns := make([]int, 0, txnCount+1)
	for i := range txnCount {
		txns = append(txns, i)
	}
	if txn >= txnCount {
		txns = append(txns, txn)
	}
	return txns
}
