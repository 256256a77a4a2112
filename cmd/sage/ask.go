package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vheim/sage"
)

var (
	askTopK     int
	askNoStream bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed rules",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of chunks to retrieve (overrides config)")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "print the full answer at once")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := newLogger()
	question := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	provider, err := buildProvider(cfg, logger, d.inst)
	if err != nil {
		return err
	}

	var retrieveOpts []sage.RetrieverOption
	if cfg.Ask.MinScore > 0 {
		retrieveOpts = append(retrieveOpts, sage.WithMinScore(cfg.Ask.MinScore))
	}
	retriever := sage.NewVectorRetriever(d.store, d.embedding, retrieveOpts...)

	topK := askTopK
	if topK <= 0 {
		topK = cfg.Ask.TopK
	}
	answerer := sage.NewAnswerer(provider, retriever,
		sage.WithTopK(topK), sage.WithAnswerLogger(logger))

	if askNoStream {
		answer, err := answerer.Ask(ctx, question)
		if err != nil {
			return err
		}
		fmt.Println(answer.Text)
		printSources(answer.Sources)
		return nil
	}

	events := make(chan sage.StreamEvent, 64)
	errc := make(chan error, 1)
	go func() {
		_, err := answerer.AskStream(ctx, question, events)
		errc <- err
	}()

	var sources []sage.SearchResult
	for ev := range events {
		switch ev.Type {
		case sage.EventSources:
			sources = ev.Sources
		case sage.EventTextDelta:
			fmt.Print(ev.Content)
		case sage.EventDone:
			fmt.Println()
		}
	}
	if err := <-errc; err != nil {
		return err
	}
	printSources(sources)
	return nil
}

func printSources(sources []sage.SearchResult) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for i, s := range sources {
		fmt.Printf("  [%d] %s (%s, score %.2f)\n", i+1, s.Title, s.Source, s.Score)
	}
}
