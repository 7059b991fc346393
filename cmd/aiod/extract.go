package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiodesk/aio/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract text from a document for use as chat context",
	Long: `Extract the textual content of a file and print it to stdout.

Supported formats: pdf, docx, pptx, images (emitted as a data URI), and
plain text. This is the same extraction the desktop frontend runs when a
file is attached to a conversation.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		content, err := extract.File(args[0])
		if err != nil {
			fail("extracting %s: %v", args[0], err)
		}
		fmt.Println(content)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
