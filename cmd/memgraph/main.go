// memgraph is the persistent knowledge graph service: shared memory for
// coding agents, backed by SQLite with full-text and vector search.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zabob/memgraph/internal/config"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var (
	baseDirFlag string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "memgraph",
	Short: "Knowledge graph memory service",
	Long: `memgraph stores entities, observations, and relations in a durable
knowledge graph with lexical (BM25), semantic (vector), and hybrid search.
It serves the tool-call protocol over HTTP+SSE and stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDirFlag, "base-dir", "",
		"base directory (default $MEMGRAPH_HOME or ~/.memgraph)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("memgraph version %s\n", Version)
	},
}

// loadConfig applies flag overrides on top of the configuration record.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(baseDirFlag)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger writes structured logs to the append-only service log and, for
// interactive transports, mirrors them to stderr. The stdio transport owns
// stdout; logs never go there.
func newLogger(cfg *config.Config, mirrorStderr bool) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.LogLevel)

	var writers []io.Writer
	logPath := filepath.Join(cfg.BaseDir, "memgraph.log")
	if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create base directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	writers = append(writers, f)
	if mirrorStderr {
		writers = append(writers, os.Stderr)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	return slog.New(handler), func() { _ = f.Close() }, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
