package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vheim/sage/internal/config"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sage",
	Short: "Rules assistant for tabletop games",
	Long: `sage indexes a directory of rules documents into a vector store and
answers questions about them, citing the exact passages it used.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default sage.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig reads the config file named by --config, falling back to the
// SAGE_CONFIG env var and then sage.toml.
func loadConfig() config.Config {
	path := cfgPath
	if path == "" {
		path = os.Getenv("SAGE_CONFIG")
	}
	return config.Load(path)
}

// newLogger builds the CLI logger. Debug level when --verbose is set.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
