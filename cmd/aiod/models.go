package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiodesk/aio/internal/config"
	"github.com/aiodesk/aio/internal/relay"
	"github.com/aiodesk/aio/internal/ui"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the model catalog",
}

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the provider's model catalog and cache it",
	Run: func(cmd *cobra.Command, args []string) {
		manager := configManager()
		cfg, err := manager.Load()
		if err != nil {
			fail("loading config: %v", err)
		}
		if cfg.APIURL == "" {
			fail("no API URL configured (apiUrl in %s)", manager.Path())
		}

		client := relay.NewClient(newLogger("[models] "))
		models, err := client.FetchModels(context.Background(), cfg.APIURL, cfg.APIKey)
		if err != nil {
			fail("fetching models: %v", err)
		}

		cached := make([]config.Model, 0, len(models))
		for _, m := range models {
			cached = append(cached, config.Model{ID: m.ID, OwnedBy: m.OwnedBy})
		}
		if err := manager.SaveFetchedModels(cached); err != nil {
			fail("caching models: %v", err)
		}

		fmt.Printf("%s Fetched %d models from %s\n", ui.RenderPass("✓"), len(models), cfg.APIURL)
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached models and their activation state",
	Run: func(cmd *cobra.Command, args []string) {
		manager := configManager()

		models, err := manager.LoadFetchedModels()
		if err != nil {
			fail("loading model cache: %v", err)
		}
		if len(models) == 0 {
			fmt.Printf("%s No cached models; run 'aiod models fetch' first\n", ui.RenderWarn("⚠"))
			return
		}

		activatedIDs, err := manager.LoadActivatedModels()
		if err != nil {
			fail("loading activation state: %v", err)
		}
		activated := make(map[string]bool, len(activatedIDs))
		for _, id := range activatedIDs {
			activated[id] = true
		}

		fmt.Printf("\n%s Models (%d cached, %d activated)\n\n",
			ui.RenderAccent("🧠"), len(models), len(activatedIDs))
		for _, m := range models {
			marker := ui.RenderMuted("○")
			if activated[m.ID] {
				marker = ui.RenderPass("●")
			}
			owner := ""
			if m.OwnedBy != "" {
				owner = ui.RenderMuted(" (" + m.OwnedBy + ")")
			}
			fmt.Printf("  %s %s%s\n", marker, m.ID, owner)
		}
		fmt.Println()
	},
}

func init() {
	modelsCmd.AddCommand(modelsFetchCmd)
	modelsCmd.AddCommand(modelsListCmd)
	rootCmd.AddCommand(modelsCmd)
}
