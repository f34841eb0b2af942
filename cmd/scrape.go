package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/MASanner/findbottomlessmimosas-com/internal/auth"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape listing pages and merge venues into the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("targets")
		names, _ := cmd.Flags().GetStringSlice("city")
		discover, _ := cmd.Flags().GetBool("discover")

		cities, err := scrapeTargets(ctx, file, names, discover, newFirecrawlClient)
		if err != nil {
			return err
		}

		env, err := initRunEnv(ctx, "scrape", auth.AllowAll(), cities, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Orchestrator.Run(ctx, "")
		if err != nil {
			return err
		}
		return writeJSON(stats)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Reprocess stored captures without contacting the extractor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initRunEnv(ctx, "replay", auth.AllowAll(), nil, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Orchestrator.Replay(ctx, "")
		if err != nil {
			return err
		}
		return writeJSON(stats)
	},
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	scrapeCmd.Flags().String("targets", "", "YAML targets file (default from config, else built-in cities)")
	scrapeCmd.Flags().StringSlice("city", nil, "only scrape these cities")
	scrapeCmd.Flags().Bool("discover", false, "add Firecrawl search results to each city's URLs")
	rootCmd.AddCommand(scrapeCmd, replayCmd)
}
