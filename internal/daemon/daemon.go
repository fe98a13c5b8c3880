// Package daemon is the runtime supervisor: it owns the storage engine,
// negotiates the listen port, maintains the identity file, schedules
// backups, and shuts everything down in order.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zabob/memgraph/internal/backup"
	"github.com/zabob/memgraph/internal/config"
	"github.com/zabob/memgraph/internal/embedding"
	"github.com/zabob/memgraph/internal/graph"
	"github.com/zabob/memgraph/internal/lockfile"
	"github.com/zabob/memgraph/internal/rpc"
	"github.com/zabob/memgraph/internal/serverinfo"
	"github.com/zabob/memgraph/internal/storage/sqlite"
	"github.com/zabob/memgraph/internal/telemetry"
)

// maxPortProbes bounds port negotiation: starting at the configured port,
// successive ports are tried until one binds.
const maxPortProbes = 100

// Options selects the daemon's transports.
type Options struct {
	// Stdio additionally serves the stdio adapter on the process pipes,
	// alongside HTTP (the hybrid mode used when a host spawns the daemon
	// but siblings still discover it over the identity file).
	Stdio bool
}

// Daemon is one running supervisor instance.
type Daemon struct {
	cfg     *config.Config
	version string
	log     *slog.Logger
	opts    Options
}

// New builds a daemon from a loaded configuration record.
func New(cfg *config.Config, version string, log *slog.Logger, opts Options) *Daemon {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Daemon{cfg: cfg, version: version, log: log, opts: opts}
}

// Run starts the daemon and blocks until ctx is canceled or a fatal error
// occurs. On return all resources are released: listener closed, identity
// file removed, storage checkpointed and closed, lock dropped.
func (d *Daemon) Run(ctx context.Context) error {
	lock, err := lockfile.Acquire(d.cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	if err := telemetry.Init(ctx, d.cfg.Name, d.version); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	store, err := sqlite.Open(ctx, d.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			d.log.Warn("closing storage", "error", err)
		}
	}()

	backups := backup.NewManager(store, d.cfg.BackupDir, d.cfg.MinBackups,
		time.Duration(d.cfg.MinBackupAgeDays)*24*time.Hour, d.log)
	if d.cfg.BackupOnStart {
		if _, err := backups.Run(ctx); err != nil {
			d.log.Warn("startup backup failed", "error", err)
		}
	}

	registry := embedding.NewRegistry()
	if d.cfg.Embeddings.Provider != "" {
		if _, err := registry.Configure(embedding.Config{
			Provider: d.cfg.Embeddings.Provider,
			Model:    d.cfg.Embeddings.Model,
			APIKey:   d.cfg.Embeddings.APIKey,
		}); err != nil {
			// A broken provider config must not keep the graph offline;
			// lexical search works without one.
			d.log.Warn("embedding provider configuration failed", "error", err)
		}
	}

	ln, port, err := negotiatePort(d.cfg.Host, d.cfg.Port)
	if err != nil {
		return err
	}
	defer func() { _ = ln.Close() }()
	d.log.Info("listening", "host", d.cfg.Host, "port", port, "preferred", d.cfg.Port)

	info := graph.ServerInfo{
		Name:          d.cfg.Name,
		Version:       d.version,
		PID:           os.Getpid(),
		Host:          d.cfg.Host,
		Port:          port,
		InDocker:      d.cfg.InDocker,
		ContainerName: d.cfg.ContainerName,
		DatabasePath:  store.Path(),
		StartedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := serverinfo.Write(d.cfg.BaseDir, identityFromInfo(info)); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	defer func() {
		if err := serverinfo.Remove(d.cfg.BaseDir); err != nil {
			d.log.Warn("removing identity file", "error", err)
		}
	}()

	svc := graph.NewService(store, registry, graph.Defaults{
		K:            d.cfg.Vector.DefaultK,
		Threshold:    d.cfg.Vector.DefaultThreshold,
		HybridWeight: d.cfg.Vector.DefaultHybridWeight,
		BatchSize:    d.cfg.Embeddings.BatchSize,
	}, d.log, func() graph.ServerInfo { return info })

	server := rpc.NewServer(svc, d.log)
	httpServer := rpc.NewHTTPServer(server, d.log, func() graph.ServerInfo { return info }, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Serve(gctx, ln)
	})
	if interval, err := time.ParseDuration(d.cfg.BackupInterval); err == nil && interval > 0 {
		g.Go(func() error {
			backups.RunPeriodic(gctx, interval)
			return nil
		})
	} else if err != nil {
		d.log.Warn("invalid backup interval, periodic backups disabled", "value", d.cfg.BackupInterval)
	}
	if d.opts.Stdio {
		stdio := rpc.NewStdioServer(server, d.log)
		g.Go(func() error {
			return stdio.Serve(gctx, os.Stdin, os.Stdout)
		})
	}

	d.log.Info("daemon ready", "name", d.cfg.Name, "version", d.version, "database", store.Path())
	err = g.Wait()
	if err == context.Canceled {
		err = nil
	}
	d.log.Info("daemon stopped")
	return err
}

// negotiatePort binds the preferred port, probing successive ports when it
// is taken.
func negotiatePort(host string, preferred int) (net.Listener, int, error) {
	var lastErr error
	for port := preferred; port < preferred+maxPortProbes; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
		if err == nil {
			return ln, port, nil
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("no free port in [%d,%d): %w", preferred, preferred+maxPortProbes, lastErr)
}

func identityFromInfo(info graph.ServerInfo) *serverinfo.Info {
	return &serverinfo.Info{
		Name:          info.Name,
		Version:       info.Version,
		PID:           info.PID,
		Host:          info.Host,
		Port:          info.Port,
		InDocker:      info.InDocker,
		ContainerName: info.ContainerName,
		DatabasePath:  info.DatabasePath,
		StartedAt:     info.StartedAt,
	}
}
