package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zabob/memgraph/internal/serverinfo"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a daemon is running for this base directory",
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

		alive := serverinfo.IsAlive(info)
		if statusJSON {
			out := map[string]any{"running": alive, "info": info}
			return json.NewEncoder(os.Stdout).Encode(out)
		}

		if !alive {
			fmt.Printf("memgraph is not running (stale identity file, pid %d)\n", info.PID)
			return nil
		}
		fmt.Printf("memgraph %s is running\n", info.Version)
		fmt.Printf("  name:     %s\n", info.Name)
		fmt.Printf("  pid:      %d\n", info.PID)
		fmt.Printf("  address:  http://%s:%d\n", displayHost(info.Host), info.Port)
		fmt.Printf("  database: %s\n", info.DatabasePath)
		fmt.Printf("  started:  %s\n", info.StartedAt)
		if info.InDocker {
			fmt.Printf("  container: %s\n", info.ContainerName)
		}
		return nil
	},
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "machine-readable output")
}
