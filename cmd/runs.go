package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
	"github.com/MASanner/findbottomlessmimosas-com/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List scrape run audit records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("read"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		city, _ := cmd.Flags().GetString("city")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			City:   city,
			Status: model.ScrapeRunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.ScrapeRun) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.City,
			r.State,
			r.Source,
			string(r.Status),
			r.StartedAt.Format("2006-01-02 15:04"),
			r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String(),
			truncateText(r.Error, 60),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "CITY", "STATE", "SOURCE", "STATUS", "STARTED", "DURATION", "ERROR"},
		rows, 6,
	))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	runsCmd.Flags().String("city", "", "filter by city")
	runsCmd.Flags().String("status", "", "filter by status (completed, partial, failed)")
	runsCmd.Flags().Int("limit", 50, "maximum runs to show")
	rootCmd.AddCommand(runsCmd)
}
