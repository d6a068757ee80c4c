package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/report"
)

// defaultReportLimit is the number of entries exported when --limit is not set.
const defaultReportLimit = 100

// NewReportCmd creates the report command
func NewReportCmd() *cobra.Command {
	return newReportCmd(defaultDeps())
}

func newReportCmd(d deps) *cobra.Command {
	var (
		xlsxPath string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "List or export recent diary entries",
		Long:  "List the most recent diary entries, or write them to an Excel workbook with --xlsx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			a, err := newApp(cmd, d)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.RecentEntries(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if xlsxPath != "" {
				if err := report.WriteXLSX(xlsxPath, entries); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %d entries to %s\n", len(entries), xlsxPath)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMODEL\tTITLE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.DiaryID, e.CreatedAt.Local().Format(time.DateTime), e.Model, e.Title)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write the entries to this .xlsx file")
	cmd.Flags().IntVar(&limit, "limit", defaultReportLimit, "number of entries, newest first")

	return cmd
}
