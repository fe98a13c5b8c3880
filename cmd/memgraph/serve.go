package main

import (
	"github.com/spf13/cobra"

	"github.com/zabob/memgraph/internal/daemon"
)

var serveStdio bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon (HTTP adapter, identity file, backups)",
	Long: `Starts the supervisor: binds the negotiated port, writes the identity
file, schedules backups, and serves the tool protocol over HTTP+SSE.
With --stdio the stdio adapter runs concurrently on the process pipes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, closeLog, err := newLogger(cfg, !serveStdio)
		if err != nil {
			return err
		}
		defer closeLog()

		d := daemon.New(cfg, Version, log, daemon.Options{Stdio: serveStdio})
		return d.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false,
		"also serve the stdio adapter on stdin/stdout (hybrid mode)")
}
