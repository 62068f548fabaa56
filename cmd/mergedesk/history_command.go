package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const historyTimeLayout = "2006-01-02 15:04:05"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		jobs    bool
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled merges or scan jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJournal()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if jobs {
				entries, err := store.ListJobs(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list jobs: %w", err)
				}
				if jsonOut {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No scan jobs recorded")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.JobID,
						e.ObjectType,
						e.Status,
						strconv.Itoa(e.ProgressPercent) + "%",
						localTime(e.StartedAt),
						localTime(e.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Job", "Object", "Status", "Progress", "Started", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			}

			entries, err := store.ListMerges(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list merges: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No merges recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					localTime(e.CreatedAt),
					e.GroupID,
					e.MasterID,
					strings.Join(e.DuplicateIDs, ", "),
					strconv.Itoa(len(e.Overrides)),
					yesNo(e.Success),
					e.Message,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Set", "Master", "Duplicates", "Overrides", "OK", "Message"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jobs, "jobs", false, "Show scan jobs instead of merges")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func localTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(historyTimeLayout)
}
