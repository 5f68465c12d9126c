package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "feedpulse",
		Short:         "Score feed items for toxicity and arousal and keep overlays in sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(scanCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(runCmd())
	root.AddCommand(cacheCmd())

	return root
}

// sourceFlags select the host document.
type sourceFlags struct {
	file    string
	baseURL string
	pageURL string
	feedURL string
}

func (f *sourceFlags) validate() error {
	n := 0
	for _, v := range []string{f.file, f.pageURL, f.feedURL} {
		if v != "" {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("exactly one of --file, --url or --feed is required")
	}
	return nil
}

func scanCmd() *cobra.Command {
	var (
		src        sourceFlags
		jsonOutput bool
		explain    bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one reconciliation pass and print item scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := src.validate(); err != nil {
				return err
			}
			return runScan(cmd.Context(), src, jsonOutput, explain)
		},
	}

	cmd.Flags().StringVar(&src.file, "file", "", "HTML snapshot file")
	cmd.Flags().StringVar(&src.baseURL, "base-url", "", "location the snapshot was saved from (default: from config)")
	cmd.Flags().StringVar(&src.pageURL, "url", "", "page URL to fetch")
	cmd.Flags().StringVar(&src.feedURL, "feed", "", "RSS/Atom feed URL to fetch")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&explain, "explain", false, "print every arousal signal per item as JSON")
	return cmd
}

func watchCmd() *cobra.Command {
	var (
		src  sourceFlags
		port int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rescan an HTML snapshot file on every change and serve the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if src.file == "" {
				return fmt.Errorf("--file is required")
			}
			return runWatch(cmd.Context(), src, port)
		},
	}

	cmd.Flags().StringVar(&src.file, "file", "", "HTML snapshot file")
	cmd.Flags().StringVar(&src.baseURL, "base-url", "", "location the snapshot was saved from (default: from config)")
	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		src  sourceFlags
		port int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon polling a page or feed, with HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if src.pageURL == "" && src.feedURL == "" {
				return fmt.Errorf("one of --url or --feed is required")
			}
			if err := src.validate(); err != nil {
				return err
			}
			return runDaemon(cmd.Context(), src, port)
		},
	}

	cmd.Flags().StringVar(&src.pageURL, "url", "", "page URL to poll")
	cmd.Flags().StringVar(&src.feedURL, "feed", "", "RSS/Atom feed URL to poll")
	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persisted low-score concentration cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show persisted cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Drop expired and excess entries and rewrite the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePrune(cmd.Context())
		},
	})
	return cmd
}
