package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vanpelt/livesync/internal/cache"
	"github.com/vanpelt/livesync/internal/config"
	"github.com/vanpelt/livesync/internal/handlers"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/middleware"
	"github.com/vanpelt/livesync/internal/services"
	"github.com/vanpelt/livesync/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "🚀 Run the livesync server",
	Long: `# 🚀 Run the livesync Server

**Serve the status and editing channels** over WebSocket, with an SSE mirror and REST helpers.

## 🔌 Endpoints

- **/v1/nodes/:nodeId/ws** - container status channel
- **/v1/versions/:versionId/ws** - collaborative editing channel
- **/v1/resources/:resourceId/events** - read-only SSE mirror
- **/v1/nodes/:nodeId/containers** - push container lists from an agent
- **/health** - liveness and session count

## ⚙️  Configuration

Settings come from defaults, then **--config**, then **LIVESYNC_*** environment variables, then flags.

Set **auth.secret** (or **LIVESYNC_AUTH_SECRET**) to require bearer tokens minted with **livesync token**.`,
	RunE: runServe,
}

var serveFlags struct {
	listen   string
	nodeID   string
	store    string
	dev      bool
	noDocker bool
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listen, "listen", "l", "", "Address to listen on (default 0.0.0.0:8090)")
	serveCmd.Flags().StringVar(&serveFlags.nodeID, "node-id", "", "Node id served on the status channel (default hostname)")
	serveCmd.Flags().StringVar(&serveFlags.store, "store", "", "SQLite file for edited resources (memory when empty)")
	serveCmd.Flags().BoolVar(&serveFlags.dev, "dev", false, "Development mode: console logs at debug level")
	serveCmd.Flags().BoolVar(&serveFlags.noDocker, "no-docker", false, "Disable Docker polling")
}

func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = serveFlags.listen
	}
	if flags.Changed("node-id") {
		cfg.NodeID = serveFlags.nodeID
	}
	if flags.Changed("store") {
		cfg.Store.Path = serveFlags.store
	}
	if flags.Changed("dev") {
		cfg.Dev = serveFlags.dev
	}
	if serveFlags.noDocker {
		cfg.Docker.Enabled = false
	}
	return cfg, cfg.Validate()
}

func snapshotCache(cfg *config.Config) livesync.RegistryOption {
	return livesync.WithSnapshotCache(cache.NewSnapshotCacheWithConfig(cache.Config{
		MaxSize:       cfg.SnapshotCacheSize,
		DefaultTTL:    cfg.SnapshotTTL,
		CleanupPeriod: time.Minute,
	}))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Configure(logger.GetLogLevelFromEnv(cfg.Dev), cfg.Dev)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	status := services.NewContainerStatusService(cfg.NodeID, snapshotCache(cfg))
	defer status.Close()
	editing := services.NewEditingService(st, snapshotCache(cfg))
	defer editing.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Docker.Enabled {
		source, err := services.NewDockerSource(status, cfg.Docker.PollInterval)
		if err != nil {
			logger.Warnf("🐳 Docker polling disabled: %v", err)
		} else {
			source.Start(ctx)
			defer source.Stop()
		}
	}

	if !cfg.AuthEnabled() {
		logger.Warnf("🔓 No auth secret configured, clients choose their own editor identity")
	}

	server := handlers.NewServer(handlers.ServerConfig{
		Status:    status,
		Editing:   editing,
		Auth:      middleware.NewAuthMiddleware(cfg.Auth.Secret),
		QueueSize: cfg.OutboundQueue,
		AccessLog: true,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("🚀 livesync serving node %s on %s", cfg.NodeID, cfg.Listen)
		errCh <- server.Listen(cfg.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	fmt.Fprintln(os.Stderr)
	logger.Infof("🛑 Shutting down livesync")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
