// Command aiod is the backend daemon and CLI for the aio desktop client.
//
// It owns the local chat history database, syncs it against the account
// backend, serves the event bridge the frontend connects to, and manages the
// optional local inference server.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aiodesk/aio/internal/config"
	"github.com/aiodesk/aio/internal/store"
)

var dataDirFlag string

var rootCmd = &cobra.Command{
	Use:   "aiod",
	Short: "Backend for the aio desktop AI client",
	Long: `aiod is the backend of the aio desktop AI client.

It keeps the chat history in a local SQLite database, syncs it with the
account backend, relays chat completions from OpenAI-compatible providers,
and can run a local llama-server for offline models.

All state lives in the data directory (default: the OS config dir under
"aio"); point --data-dir elsewhere to use a separate profile.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"data directory (default: OS config dir + /aio)")
}

// dataDir resolves the active data directory.
func dataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "aio")
}

// newLogger builds the shared logger: stderr for the terminal, a rotating
// file under the data directory for later inspection.
func newLogger(prefix string) *log.Logger {
	rotor := &lumberjack.Logger{
		Filename:   filepath.Join(dataDir(), "logs", "aiod.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return log.New(io.MultiWriter(os.Stderr, rotor), prefix, log.LstdFlags)
}

// openStore opens the chat history database and ensures its schema.
func openStore() (*store.Store, error) {
	st, err := store.Open(filepath.Join(dataDir(), "chat_history.db"))
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// configManager returns the settings manager for the active data directory.
func configManager() *config.Manager {
	return config.NewManager(dataDir())
}

// fail prints an error and exits, the shared failure path of all commands.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
