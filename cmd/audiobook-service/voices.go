package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/provider"
	"github.com/spf13/cobra"
)

var errNoVoices = fmt.Errorf("no voices known for provider")

var voicesCmd = &cobra.Command{
	Use:   "voices [provider]",
	Short: "List the available voices per provider",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVoices(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(voicesCmd)
}

func runVoices(cmd *cobra.Command, args []string) error {
	providers := []core.ProviderID{core.ProviderGemini, core.ProviderPiper}

	if len(args) == 1 {
		providers = []core.ProviderID{core.ProviderID(strings.ToLower(args[0]))}
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	for _, id := range providers {
		voices := provider.Voices(id)
		if voices == nil {
			return fmt.Errorf("%w: %q", errNoVoices, id)
		}

		defaultVoice := provider.DefaultVoice(id)

		fmt.Fprintf(writer, "%s:\n", id)

		for _, voice := range voices {
			marker := ""
			if voice.ID == defaultVoice {
				marker = " (default)"
			}

			fmt.Fprintf(writer, "  %s\t%s\t%s%s\n", voice.ID, voice.Category, voice.Gender, marker)
		}
	}

	return writer.Flush()
}
