package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	stdsync "sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aiodesk/aio/internal/config"
	"github.com/aiodesk/aio/internal/events"
	"github.com/aiodesk/aio/internal/relay"
	"github.com/aiodesk/aio/internal/sync"
	"github.com/aiodesk/aio/internal/ui"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event bridge for the desktop frontend",
	Long: `Run the WebSocket event bridge the desktop frontend connects to.

The bridge streams chat completions as chat_chunk messages and announces
finished sync cycles. Settings are reloaded automatically when config.json
changes, so edits take effect without restarting.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger("[serve] ")
		manager := configManager()

		cfg, err := manager.Load()
		if err != nil {
			fail("loading config: %v", err)
		}

		// settings is the live snapshot the bridge reads per request; the
		// watcher swaps it when config.json changes.
		var settingsMu stdsync.RWMutex
		settings := cfg
		snapshot := func() *config.Config {
			settingsMu.RLock()
			defer settingsMu.RUnlock()
			return settings
		}

		watcher, err := config.NewWatcher(manager, func(fresh *config.Config) {
			settingsMu.Lock()
			settings = fresh
			settingsMu.Unlock()
		}, logger)
		if err != nil {
			fail("creating config watcher: %v", err)
		}
		if err := watcher.Start(); err != nil {
			fail("starting config watcher: %v", err)
		}
		defer watcher.Stop()

		st, err := openStore()
		if err != nil {
			fail("opening store: %v", err)
		}
		defer st.Close()

		// The syncer is rebuilt per cycle so accountUrl edits are picked up
		// without a restart; syncMu keeps the cycles single-flight anyway.
		var syncMu stdsync.Mutex
		runSync := func(ctx context.Context, token string, pushOnly bool) (string, error) {
			if !syncMu.TryLock() {
				return "", sync.ErrInProgress
			}
			defer syncMu.Unlock()

			accountURL := snapshot().AccountURL
			if accountURL == "" {
				return "", fmt.Errorf("no account URL configured")
			}
			syncer := sync.New(st, sync.NewExchangeClient(accountURL, 0), logger)
			status, err := syncer.Sync(ctx, token, pushOnly)
			return string(status), err
		}

		server, err := events.NewServer(&events.Config{
			Port:     servePort,
			Relay:    relay.NewClient(logger),
			Registry: relay.NewRegistry(),
			Settings: snapshot,
			Sync:     runSync,
			Logger:   logger,
		})
		if err != nil {
			fail("creating event bridge: %v", err)
		}
		if err := server.Start(); err != nil {
			fail("starting event bridge: %v", err)
		}

		fmt.Printf("%s Event bridge listening on %s\n", ui.RenderAccent("🚀"), server.GetAddr())
		fmt.Printf("%s WebSocket endpoint: ws://%s/ws\n", ui.RenderMuted("→"), server.GetAddr())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		fmt.Printf("\n%s Shutting down...\n", ui.RenderWarn("⚠"))
		if err := server.Stop(); err != nil {
			fail("stopping event bridge: %v", err)
		}
		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8765, "port for the event bridge")
	rootCmd.AddCommand(serveCmd)
}
