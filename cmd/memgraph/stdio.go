package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zabob/memgraph/internal/embedding"
	"github.com/zabob/memgraph/internal/graph"
	"github.com/zabob/memgraph/internal/rpc"
	"github.com/zabob/memgraph/internal/storage/sqlite"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve the tool protocol on stdin/stdout only",
	Long: `Runs the stdio adapter without the supervisor: no port, no identity
file, no backups. The post-commit checkpoint keeps writes visible to a
concurrently running daemon on the same database file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// stdout carries protocol frames; logs go to the file only.
		log, closeLog, err := newLogger(cfg, false)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx := cmd.Context()
		store, err := sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		registry := embedding.NewRegistry()
		if cfg.Embeddings.Provider != "" {
			if _, err := registry.Configure(embedding.Config{
				Provider: cfg.Embeddings.Provider,
				Model:    cfg.Embeddings.Model,
				APIKey:   cfg.Embeddings.APIKey,
			}); err != nil {
				log.Warn("embedding provider configuration failed", "error", err)
			}
		}

		svc := graph.NewService(store, registry, graph.Defaults{
			K:            cfg.Vector.DefaultK,
			Threshold:    cfg.Vector.DefaultThreshold,
			HybridWeight: cfg.Vector.DefaultHybridWeight,
			BatchSize:    cfg.Embeddings.BatchSize,
		}, log, nil)

		server := rpc.NewStdioServer(rpc.NewServer(svc, log), log)
		return server.Serve(ctx, os.Stdin, os.Stdout)
	},
}
