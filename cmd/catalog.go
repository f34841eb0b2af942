package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List catalog venues",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("read"); err != nil {
			return err
		}

		published, _ := cmd.Flags().GetBool("published")
		pending, _ := cmd.Flags().GetBool("pending")
		if published && pending {
			return eris.New("--published and --pending are mutually exclusive")
		}

		filter := model.VenueFilter{}
		filter.City, _ = cmd.Flags().GetString("city")
		filter.State, _ = cmd.Flags().GetString("state")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if published || pending {
			filter.Published = &published
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		venues, err := st.ListVenues(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "catalog list")
		}
		if len(venues) == 0 {
			fmt.Fprintln(os.Stderr, "No venues found.")
			return nil
		}

		formatVenues(os.Stdout, venues)
		return nil
	},
}

func formatVenues(w io.Writer, venues []model.VenueRecord) {
	rows := make([][]string, 0, len(venues))
	for _, v := range venues {
		price := "-"
		if v.MimosaPrice != nil {
			price = "$" + strconv.Itoa(*v.MimosaPrice)
		}
		status := "pending"
		if v.IsPublished {
			status = "published"
		}
		rows = append(rows, []string{
			truncateText(v.Name, 40),
			truncateText(v.Address, 40),
			v.City + ", " + v.State,
			price,
			strconv.Itoa(v.ConfirmationScore),
			status,
			strconv.Itoa(len(v.SourceURLs)),
			v.UpdatedAt.Format("2006-01-02"),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"NAME", "ADDRESS", "CITY", "PRICE", "SCORE", "STATUS", "SOURCES", "UPDATED"},
		rows, 3, 4, 6,
	))
}

func init() {
	catalogCmd.Flags().String("city", "", "filter by city")
	catalogCmd.Flags().String("state", "", "filter by state")
	catalogCmd.Flags().Bool("published", false, "only published venues")
	catalogCmd.Flags().Bool("pending", false, "only venues awaiting more evidence")
	catalogCmd.Flags().Int("limit", 100, "maximum venues to show")
	rootCmd.AddCommand(catalogCmd)
}
