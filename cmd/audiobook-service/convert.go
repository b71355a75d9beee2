package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/engine"
	"github.com/book-expert/audiobook-service/internal/extract"
	"github.com/book-expert/audiobook-service/internal/provider"
	"github.com/spf13/cobra"
)

// timeRound keeps reported durations readable.
const timeRound = 100 * time.Millisecond

var errJobIncomplete = fmt.Errorf("job did not complete")

var convertCmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Convert a document into a narrated audio file",
	Long: `Convert reads a text, markdown, or PDF document, synthesizes it chunk
by chunk, and writes one audio file. Re-running the same conversion resumes
from the cache: finished chunks are never synthesized again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("out", "o", "", "Output file path (default: input name with .mp3)")
	convertCmd.Flags().String("provider", "", "Synthesis provider (gemini, piper)")
	convertCmd.Flags().String("voice", "", "Voice name (see the voices command)")
	convertCmd.Flags().String("rate", "", "Speech rate adjustment, e.g. +10%")
	convertCmd.Flags().Int("chunk-limit", 0, "Maximum chunk size in characters")
}

func runConvert(cmd *cobra.Command, inputPath string) error {
	a, appErr := newApp()
	if appErr != nil {
		return appErr
	}
	defer a.close()

	opts, optsErr := convertOptions(cmd, a, inputPath)
	if optsErr != nil {
		return optsErr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, _, buildErr := a.buildEngine(ctx, opts.Provider)
	if buildErr != nil {
		return buildErr
	}

	extractor := extract.New("", "", a.log)

	text, extractErr := extractor.Extract(ctx, inputPath)
	if extractErr != nil {
		return fmt.Errorf("extract %s: %w", inputPath, extractErr)
	}

	job, jobErr := eng.NewJob(text, opts)
	if jobErr != nil {
		return fmt.Errorf("prepare job: %w", jobErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Converting %s: %d chunks, provider %s, voice %s\n",
		inputPath, len(job.Chunks), job.Provider, job.Voice)

	result, runErr := eng.Run(ctx, job)
	if runErr != nil {
		return runErr
	}

	if result.Outcome == core.OutcomeComplete {
		length := a.probeDuration(ctx, result.OutputPath)
		if length > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Audio length: %s\n", length.Round(time.Second))
		}
	}

	return reportResult(cmd, result)
}

// convertOptions resolves flags over configuration defaults.
func convertOptions(cmd *cobra.Command, a *app, inputPath string) (engine.JobOptions, error) {
	providerName, _ := cmd.Flags().GetString("provider")
	if providerName == "" {
		providerName = a.cfg.Synthesis.Provider
	}

	providerID := core.ProviderID(strings.ToLower(providerName))

	voice, _ := cmd.Flags().GetString("voice")
	if voice == "" {
		voice = a.cfg.Synthesis.Voice
	}

	if voice == "" {
		voice = provider.DefaultVoice(providerID)
	}

	rate, _ := cmd.Flags().GetString("rate")
	if rate == "" {
		rate = a.cfg.Synthesis.Rate
	}

	chunkLimit, _ := cmd.Flags().GetInt("chunk-limit")
	if chunkLimit == 0 {
		chunkLimit = a.cfg.Synthesis.ChunkLimit
	}

	outputPath, _ := cmd.Flags().GetString("out")
	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"
	}

	return engine.JobOptions{
		Provider:   providerID,
		Voice:      voice,
		Rate:       rate,
		Model:      a.cfg.Gemini.Model,
		ChunkLimit: chunkLimit,
		OutputPath: outputPath,
	}, nil
}

func reportResult(cmd *cobra.Command, result *core.JobResult) error {
	out := cmd.OutOrStdout()

	switch result.Outcome {
	case core.OutcomeComplete:
		fmt.Fprintf(out, "Done in %s: %d cache hits, %d synthesized.\nOutput: %s\n",
			result.Duration.Round(timeRound), result.CacheHits, result.Synthesized, result.OutputPath)

		return nil
	case core.OutcomePartial:
		fmt.Fprintf(out, "Partial after %s: %d chunks failed. Re-run the same command to resume.\n",
			result.Duration.Round(timeRound), len(result.Failures))

		for _, failure := range result.Failures {
			fmt.Fprintf(out, "  chunk %d: %v\n", failure.Index, failure.Err)
		}

		return fmt.Errorf("%w: %d chunks failed", errJobIncomplete, len(result.Failures))
	case core.OutcomeFailed:
		return fmt.Errorf("%w: assembly failed: %w", errJobIncomplete, result.AssemblyError)
	default:
		return fmt.Errorf("%w: unknown outcome", errJobIncomplete)
	}
}
