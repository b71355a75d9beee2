package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the synthesis cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove cached audio older than a given age",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCachePurge(cmd)
	},
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache location and entry count",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCacheInfo(cmd)
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	cacheCmd.AddCommand(cacheInfoCmd)

	cachePurgeCmd.Flags().Duration("older-than", 30*24*time.Hour,
		"Remove entries older than this, e.g. 720h")
}

func runCachePurge(cmd *cobra.Command) error {
	a, appErr := newApp()
	if appErr != nil {
		return appErr
	}
	defer a.close()

	olderThan, _ := cmd.Flags().GetDuration("older-than")

	store, openErr := a.openCache(cmd.Context())
	if openErr != nil {
		return openErr
	}

	removed, purgeErr := store.Purge(cmd.Context(), olderThan)
	if purgeErr != nil {
		return fmt.Errorf("purge cache: %w", purgeErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached entries older than %s.\n", removed, olderThan)

	return nil
}

func runCacheInfo(cmd *cobra.Command) error {
	a, appErr := newApp()
	if appErr != nil {
		return appErr
	}
	defer a.close()

	dir, dirErr := a.cacheDir()
	if dirErr != nil {
		return dirErr
	}

	store, openErr := a.openCache(cmd.Context())
	if openErr != nil {
		return openErr
	}

	entries, lenErr := store.Len(cmd.Context())
	if lenErr != nil {
		return fmt.Errorf("count cache entries: %w", lenErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cache backend: %s\nLocation: %s\nEntries: %d\n",
		a.cfg.Cache.Backend, dir, entries)

	return nil
}
