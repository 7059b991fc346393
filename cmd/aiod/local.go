package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aiodesk/aio/internal/llama"
	"github.com/aiodesk/aio/internal/ui"
)

var (
	localModel     string
	localPort      int
	localGPULayers int
	localBinary    string
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Manage the local inference server",
}

// pidFile records the foreground server's pid so 'local stop' can reach it
// from another process.
func pidFile() string {
	return filepath.Join(dataDir(), "llama-server.pid")
}

var localStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run llama-server for a local model",
	Long: `Start llama-server for a local GGUF model and keep it running in the
foreground until interrupted (or stopped with 'aiod local stop').

The model path defaults to localModelPath from config.json.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger("[local] ")

		model := localModel
		if model == "" {
			cfg, err := configManager().Load()
			if err != nil {
				fail("loading config: %v", err)
			}
			model = cfg.LocalModelPath
		}
		if model == "" {
			fail("no model: pass --model or set localModelPath in config.json")
		}

		manager := llama.NewManager(localBinary, logger)
		baseURL, err := manager.Start(context.Background(), llama.Options{
			ModelPath: model,
			Port:      localPort,
			GPULayers: localGPULayers,
		})
		if err != nil {
			fail("starting llama-server: %v", err)
		}

		if err := os.WriteFile(pidFile(), []byte(strconv.Itoa(manager.Pid())), 0644); err != nil {
			logger.Printf("Warning: failed to write pid file: %v", err)
		}

		fmt.Printf("%s Local server running at %s\n", ui.RenderPass("✓"), baseURL)
		fmt.Printf("%s Press Ctrl-C to stop\n", ui.RenderMuted("→"))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		manager.Stop()
		_ = os.Remove(pidFile())
		fmt.Printf("\n%s Local server stopped\n", ui.RenderPass("✓"))
	},
}

var localStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a local server started by 'local start'",
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(pidFile())
		if os.IsNotExist(err) {
			fmt.Printf("%s No local server running\n", ui.RenderWarn("⚠"))
			return
		}
		if err != nil {
			fail("reading pid file: %v", err)
		}

		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			fail("malformed pid file %s: %v", pidFile(), err)
		}

		proc, err := os.FindProcess(pid)
		if err == nil {
			err = proc.Signal(syscall.SIGTERM)
		}
		if err != nil {
			fmt.Printf("%s Process %d already gone\n", ui.RenderWarn("⚠"), pid)
		} else {
			fmt.Printf("%s Stopped local server (pid %d)\n", ui.RenderPass("✓"), pid)
		}
		_ = os.Remove(pidFile())
	},
}

func init() {
	localStartCmd.Flags().StringVar(&localModel, "model", "", "GGUF model path (default: localModelPath from config)")
	localStartCmd.Flags().IntVar(&localPort, "port", 8600, "port for the local server")
	localStartCmd.Flags().IntVar(&localGPULayers, "gpu-layers", 99, "layers offloaded to the GPU")
	localStartCmd.Flags().StringVar(&localBinary, "binary", "llama-server", "llama-server executable")

	localCmd.AddCommand(localStartCmd)
	localCmd.AddCommand(localStopCmd)
	rootCmd.AddCommand(localCmd)
}
