package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/23skdu/vdbload/internal/dataset"
)

func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the synthetic dataset to a Parquet file",
		Long: `Generate the vectors a run would submit and store them as a zstd-compressed
Parquet file (columns id, values). Pass the file to run or search with --dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCommandConfig(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			s, err := newSession(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			_, err = s.runGenerate(cmd.Context(), out)
			return err
		},
	}

	cmd.Flags().StringP("out", "o", "vectors.parquet", "Output file")
	return cmd
}

func (s *session) runGenerate(ctx context.Context, path string) (int64, error) {
	if path == "" {
		return 0, fmt.Errorf("output path is required")
	}
	start := time.Now()
	rows, err := dataset.WriteParquet(ctx, path, s.cfg.Generator(), s.cfg.TxnCount)
	if err != nil {
		s.logger.Error("Failed to write dataset", zap.String("path", path), zap.Error(err))
		return rows, err
	}
	s.logger.Info("Dataset written", zap.String("path", path), zap.Int64("rows", rows), zap.Duration("elapsed", time.Since(start)))
	s.printf("Wrote %d vectors (%d transactions x %d) to %s\n", rows, s.cfg.TxnCount, s.cfg.PerTransaction(), path)
	return rows, nil
}
