package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiodesk/aio/internal/auth"
	"github.com/aiodesk/aio/internal/sync"
	"github.com/aiodesk/aio/internal/ui"
)

var (
	syncPushOnly bool
	syncToken    string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync chat history with the account backend",
	Long: `Run one sync cycle against the account backend.

Local changes since the last successful sync are uploaded; unless
--push-only is set, the backend's changes are applied locally in the same
cycle. The sync watermark only advances when the whole cycle succeeds, so a
failed sync is always safe to retry.

The session token comes from --token or the AIO_TOKEN environment variable.`,
	Run: func(cmd *cobra.Command, args []string) {
		token := syncToken
		if token == "" {
			token = os.Getenv("AIO_TOKEN")
		}
		if token == "" {
			fail("no session token: pass --token or set AIO_TOKEN")
		}
		if auth.TokenExpired(token, time.Now()) {
			fail("session token is expired, sign in again")
		}

		cfg, err := configManager().Load()
		if err != nil {
			fail("loading config: %v", err)
		}
		if cfg.AccountURL == "" {
			fail("no account URL configured (accountUrl in %s)", configManager().Path())
		}

		st, err := openStore()
		if err != nil {
			fail("opening store: %v", err)
		}
		defer st.Close()

		syncer := sync.New(st, sync.NewExchangeClient(cfg.AccountURL, 0), newLogger("[sync] "))

		mode := "full sync"
		if syncPushOnly {
			mode = "push-only sync"
		}
		fmt.Printf("%s Starting %s against %s...\n", ui.RenderAccent("🔄"), mode, cfg.AccountURL)
		start := time.Now()

		status, err := syncer.Sync(context.Background(), token, syncPushOnly)
		if err != nil {
			switch {
			case sync.IsNetwork(err):
				fail("sync failed (network): %v", err)
			case sync.IsStore(err):
				fail("sync failed (local store): %v", err)
			default:
				fail("sync failed: %v", err)
			}
		}

		fmt.Printf("%s %s in %v\n", ui.RenderPass("✓"),
			capitalize(string(status)), time.Since(start).Round(time.Millisecond))
	},
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func init() {
	syncCmd.Flags().BoolVar(&syncPushOnly, "push-only", false,
		"upload local changes without applying remote ones")
	syncCmd.Flags().StringVar(&syncToken, "token", "", "session token (default: AIO_TOKEN)")
	rootCmd.AddCommand(syncCmd)
}
