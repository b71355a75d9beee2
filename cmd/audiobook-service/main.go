// main package for the audiobook-service command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "audiobook-service",
	Short: "Convert long-form text into a narrated audio file",
	Long: `audiobook-service splits a document into bounded chunks, synthesizes
each chunk through a text-to-speech provider with caching and credential
rotation, and concatenates the results into a single audio file.

Interrupted or partially failed jobs are resumable: re-running the same
conversion reuses every cached chunk and synthesizes only the missing ones.`,
	SilenceUsage: true,
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
