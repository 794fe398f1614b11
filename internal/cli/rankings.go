package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/ceoorcto/internal/adapters/http/site"
	"github.com/okian/ceoorcto/internal/client"
	"github.com/okian/ceoorcto/internal/domain/model"
)

func newRankingsCommand(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Show the most and least recognised CTOs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := client.NewHTTPClient(root.url)
			if err != nil {
				return err
			}
			r, err := api.Rankings(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("fetching rankings: %w", err)
			}
			return printRankings(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Entries per list (0 = server default)")
	return cmd
}

func printRankings(out io.Writer, r model.Rankings) error {
	if r.Total == 0 {
		_, err := fmt.Fprintln(out, "No rankings yet.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, list := range []struct {
		title   string
		entries []model.RankedProfile
	}{
		{"The most CTOs", r.Top},
		{"The least CTOs", r.Bottom},
	} {
		fmt.Fprintf(tw, "%s\n", list.title)
		fmt.Fprintf(tw, "#\tNAME\tCOMPANY\tRATIO\tSEEN\n")
		for _, e := range list.entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", e.Rank, e.Profile.Name, e.Profile.Company, site.FormatRatio(e.Ratio), e.Profile.TotalCount)
		}
		fmt.Fprintln(tw)
	}
	fmt.Fprintf(tw, "%d CTOs ranked\n", r.Total)
	return tw.Flush()
}
