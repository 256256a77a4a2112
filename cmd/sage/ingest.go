package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vheim/sage/ingest"
)

var (
	ingestDir   string
	ingestWatch bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the rules corpus into the vector store",
	Long: `Loads every supported document under the corpus directory, splits it
into chunks, embeds them, and writes the index. Re-running on an unchanged
corpus is a no-op; removed content is pruned.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "corpus directory (overrides config)")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "keep running and re-index on file changes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	logger := newLogger()

	dir := ingestDir
	if dir == "" {
		dir = cfg.Corpus.Dir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	pipeline := ingest.New(d.store, d.embedding,
		ingest.WithSplitter(ingest.NewSplitter(
			ingest.WithChunkSize(cfg.Corpus.ChunkSize),
			ingest.WithChunkOverlap(cfg.Corpus.ChunkOverlap),
		)),
		ingest.WithMerger(ingest.NewMerger(ingest.WithMinChunkSize(cfg.Corpus.MinChunkSize))),
		ingest.WithTitleExtractor(ingest.NewTitleExtractor(ingest.WithRootMarker(cfg.Corpus.RootMarker))),
		ingest.WithBatchSize(cfg.Embedding.BatchSize),
		ingest.WithLogger(logger),
	)

	res, err := pipeline.Run(ctx, dir)
	if d.inst != nil {
		d.inst.RecordIngest(ctx, dir, res, err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d documents: %d chunks written, %d pruned (%s)\n",
		res.Documents, res.Written, res.Pruned, res.Took.Round(time.Millisecond))

	if ingestWatch {
		logger.Info("watching for changes", "dir", dir)
		if err := pipeline.Watch(ctx, dir, ingest.DefaultDebounce); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}
