package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiodesk/aio/internal/sync"
	"github.com/aiodesk/aio/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := openStore()
		if err != nil {
			fail("opening store: %v", err)
		}
		defer st.Close()

		ctx := context.Background()

		fmt.Printf("\n%s aio Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("  Data directory: %s\n", dataDir())
		fmt.Printf("  Database:       %s\n", st.Path())

		for _, table := range []string{"assistants", "topics", "messages"} {
			count, err := st.CountRows(ctx, table)
			if err != nil {
				fail("counting %s: %v", table, err)
			}
			fmt.Printf("  %-15s %d rows\n", table+":", count)
		}

		watermark, err := st.GetMeta(ctx, "last_sync_time", sync.Epoch)
		if err != nil {
			fail("reading sync state: %v", err)
		}
		if watermark == sync.Epoch {
			fmt.Printf("  Last sync:      %s\n", ui.RenderWarn("never"))
		} else {
			fmt.Printf("  Last sync:      %s\n", watermark)
		}

		cfg, err := configManager().Load()
		if err != nil {
			fail("loading config: %v", err)
		}
		fmt.Println()
		fmt.Printf("  API URL:        %s\n", orMuted(cfg.APIURL))
		fmt.Printf("  Account URL:    %s\n", orMuted(cfg.AccountURL))
		fmt.Printf("  Default model:  %s\n", orMuted(cfg.DefaultModel))
		fmt.Println()
	},
}

func orMuted(s string) string {
	if s == "" {
		return ui.RenderMuted("(not set)")
	}
	return s
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
