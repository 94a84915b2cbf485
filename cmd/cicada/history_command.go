package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent node invocations from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.ensureEnv()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if env.History == nil {
				fmt.Fprintln(out, "History is disabled in the configuration.")
				return nil
			}

			records, err := env.History.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No invocations recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				result := rec.ResultURL
				if rec.LocalPath != "" {
					result = rec.LocalPath
				}
				rows = append(rows, []string{
					strconv.FormatInt(rec.ID, 10),
					rec.Node,
					rec.Status,
					humanize.Time(rec.FinishedAt),
					truncateText(rec.Detail, 48),
					truncateText(result, 60),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Node", "Status", "Finished", "Detail", "Result"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to show")
	return cmd
}
