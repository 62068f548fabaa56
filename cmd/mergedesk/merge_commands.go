package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mergedesk/internal/compare"
	"mergedesk/internal/merge"
)

// loadWorkspace opens a merge workspace on groupID and fetches its comparison.
func (c *commandContext) loadWorkspace(cmd *cobra.Command, groupID string) (*merge.Workspace, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := c.backend()
	if err != nil {
		return nil, err
	}
	opts := merge.Options{
		Sink:      c.sink(cmd),
		Logger:    c.loggerValue(),
		RecordURL: cfg.RecordURL,
	}
	if store, err := c.openJournal(); err == nil {
		opts.Journal = store
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; merges will not be journaled\n", err)
	}
	ws := merge.New(strings.TrimSpace(groupID), client, opts)
	if err := ws.Load(cmd.Context()); err != nil {
		if msg := ws.View().Error; msg != "" {
			return nil, fmt.Errorf("load duplicate set %s: %s", groupID, msg)
		}
		return nil, err
	}
	return ws, nil
}

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var (
		all     bool
		same    bool
		empty   bool
		search  string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "compare <group-id>",
		Short: "Compare the records of a duplicate set field by field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := ctx.loadWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			filter := compare.DefaultFilter()
			filter.Same = all || same
			filter.Empty = all || empty
			filter.Search = search
			ws.SetFilter(filter)

			view := ws.View()
			if jsonOut {
				return writeJSON(cmd, view)
			}
			printComparison(cmd, view)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Show every field category")
	cmd.Flags().BoolVar(&same, "same", false, "Include fields with identical values")
	cmd.Flags().BoolVar(&empty, "empty", false, "Include fields that are empty on every record")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only fields whose label or API name contains the term")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printComparison(cmd *cobra.Command, view merge.View) {
	out := cmd.OutOrStdout()

	headers := []string{"Field"}
	for _, r := range view.Records {
		label := r.Name
		if label == "" {
			label = r.ID
		}
		if r.IsMaster {
			label += " (master)"
		}
		headers = append(headers, label)
	}

	if view.NoneVisible || len(view.Fields) == 0 {
		fmt.Fprintln(out, "No fields match the current filter")
	} else {
		rows := make([][]string, 0, len(view.Fields))
		for _, f := range view.Fields {
			row := []string{fieldLabel(f)}
			for _, v := range f.Values {
				cell := v.DisplayValue
				if v.IsEmpty {
					cell = "-"
				}
				if v.Selected && f.HasDifference {
					cell = "* " + cell
				}
				row = append(row, cell)
			}
			rows = append(rows, row)
		}
		fmt.Fprintln(out, renderTable(headers, rows, nil))
	}

	st := view.Stats
	fmt.Fprintf(out, "%d differing, %d identical, %d empty; %d field(s) sourced from non-master records\n",
		st.Differences, st.Same, st.Empty, st.Overrides)
	fmt.Fprintf(out, "Mergeable: %s\n", yesNo(view.CanMerge))
}

func fieldLabel(f compare.FieldView) string {
	label := f.Label
	if label == "" {
		label = f.APIName
	}
	if !f.IsUpdateable {
		label += " (read-only)"
	}
	return label
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var (
		master  string
		picks   []string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "merge <group-id>",
		Short: "Merge a duplicate set into its master record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			choices, err := parseAssignments(picks)
			if err != nil {
				return fmt.Errorf("--pick: %w", err)
			}
			ws, err := ctx.loadWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			if master = strings.TrimSpace(master); master != "" {
				if err := ws.SelectMaster(master); err != nil {
					return fmt.Errorf("select master %s: %w", master, err)
				}
			}
			fields := make([]string, 0, len(choices))
			for field := range choices {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				if !ws.SelectValue(field, choices[field]) {
					return fmt.Errorf("cannot source %s from record %s", field, choices[field])
				}
			}

			outcome, err := ws.Merge(cmd.Context(), ctx.confirmer(cmd))
			if errors.Is(err, merge.ErrMergeNotAllowed) {
				return errors.New("this duplicate set cannot be merged: it needs at least two records and a master")
			}
			if err != nil {
				return err
			}
			view := ws.View()
			if jsonOut {
				return writeJSON(cmd, struct {
					Outcome merge.Outcome `json:"outcome"`
					Result  *merge.Result `json:"result,omitempty"`
				}{outcome, view.Result})
			}
			out := cmd.OutOrStdout()
			if outcome == merge.OutcomeDeclined {
				fmt.Fprintln(out, "Merge cancelled")
				return nil
			}
			if view.Result != nil && view.Result.RecordURL != "" {
				fmt.Fprintf(out, "Master record: %s\n", view.Result.RecordURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&master, "master", "", "Record id to keep (defaults to the first record)")
	cmd.Flags().StringArrayVar(&picks, "pick", nil, "Source a field from a record as field=record-id (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
