package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zabob/memgraph/internal/serverinfo"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon gracefully",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		info, err := serverinfo.Read(cfg.BaseDir)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("memgraph is not running (no identity file)")
			return nil
		}
		if err != nil {
			return err
		}
		if !serverinfo.IsAlive(info) {
			fmt.Printf("memgraph is not running; removing stale identity file (pid %d)\n", info.PID)
			return serverinfo.Remove(cfg.BaseDir)
		}

		proc, err := os.FindProcess(info.PID)
		if err != nil {
			return fmt.Errorf("find process %d: %w", info.PID, err)
		}
		if err := terminate(proc); err != nil {
			return fmt.Errorf("signal process %d: %w", info.PID, err)
		}

		// The daemon removes its own identity file on clean shutdown; poll
		// for that instead of guessing.
		deadline := time.Now().Add(stopTimeout)
		for time.Now().Before(deadline) {
			if _, err := serverinfo.Read(cfg.BaseDir); errors.Is(err, os.ErrNotExist) {
				fmt.Printf("memgraph (pid %d) stopped\n", info.PID)
				return nil
			}
			time.Sleep(200 * time.Millisecond)
		}
		return fmt.Errorf("daemon (pid %d) did not stop within %s", info.PID, stopTimeout)
	},
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 10*time.Second,
		"how long to wait for the daemon to exit")
}
