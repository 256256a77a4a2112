package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vheim/sage"
	"github.com/vheim/sage/frontend/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	logger := newLogger()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

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
	answerer := sage.NewAnswerer(provider, retriever,
		sage.WithTopK(cfg.Ask.TopK), sage.WithAnswerLogger(logger))

	api := httpapi.New(d.store, retriever, answerer,
		httpapi.WithLogger(logger), httpapi.WithDefaultTopK(cfg.Ask.TopK))

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
