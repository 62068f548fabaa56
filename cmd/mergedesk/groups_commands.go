package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mergedesk/internal/browser"
	"mergedesk/internal/config"
	"mergedesk/internal/merge"
	"mergedesk/internal/remote"
)

const maxPreviewLabels = 3

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	var (
		objectType string
		search     string
		filters    []string
		page       int
		pageSize   int
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List duplicate sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if pageSize == 0 {
				pageSize = cfg.Browser.PageSize
			}
			if !config.ValidPageSize(pageSize) {
				return fmt.Errorf("%w: %d", browser.ErrInvalidPageSize, pageSize)
			}
			if page < 1 {
				return fmt.Errorf("page must be 1 or greater")
			}
			criteria, err := parseAssignments(filters)
			if err != nil {
				return fmt.Errorf("--filter: %w", err)
			}
			objectType = strings.TrimSpace(objectType)
			if objectType == "" {
				objectType = browser.AllObjects
			}
			if len(criteria) > 0 && objectType == browser.AllObjects {
				return fmt.Errorf("--filter requires --type")
			}

			query := browser.PageQuery{
				ObjectType: objectType,
				SearchTerm: strings.TrimSpace(search),
				Filters:    criteria,
				PageIndex:  page,
				PageSize:   pageSize,
			}
			client, err := ctx.backend()
			if err != nil {
				return err
			}
			result, err := client.ListGroups(cmd.Context(), query.ListQuery())
			if err != nil {
				return fmt.Errorf("list duplicate sets: %s", remote.Message(err))
			}

			if jsonOut {
				return writeJSON(cmd, struct {
					Query      browser.PageQuery       `json:"query"`
					TotalPages int                     `json:"totalPages"`
					TotalCount int                     `json:"totalCount"`
					Groups     []remote.DuplicateGroup `json:"groups"`
				}{query, browser.TotalPages(result.TotalCount, pageSize), result.TotalCount, result.DuplicateSets})
			}

			out := cmd.OutOrStdout()
			if len(result.DuplicateSets) == 0 {
				if query.SearchTerm == "" && len(criteria) == 0 {
					fmt.Fprintln(out, "No duplicate sets found. Start a scan with `mergedesk scan start --type <object>`.")
					return nil
				}
				fmt.Fprintln(out, browser.NoResultsMessage(query.SearchTerm, len(criteria) > 0))
				return nil
			}
			rows := make([][]string, 0, len(result.DuplicateSets))
			for _, g := range result.DuplicateSets {
				rows = append(rows, groupRow(g))
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Object", "Records", "Differs on"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			if query.SearchTerm != "" {
				fmt.Fprintln(out, browser.SearchResultsMessage(query.SearchTerm, result.TotalCount))
			}
			fmt.Fprintf(out, "Page %d of %d (%d sets)\n", page, browser.TotalPages(result.TotalCount, pageSize), result.TotalCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&objectType, "type", "t", browser.AllObjects, "Object type scope")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Search term")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter as field=value (repeatable, requires --type)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Sets per page (12, 24 or 48)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func groupRow(g remote.DuplicateGroup) []string {
	preview := browser.BuildPreview(g)
	labels := make([]string, 0, maxPreviewLabels)
	for i, d := range preview.Differing {
		if i == maxPreviewLabels {
			labels = append(labels, fmt.Sprintf("+%d more", len(preview.Differing)-maxPreviewLabels))
			break
		}
		labels = append(labels, d.Label)
	}
	name := g.Name
	if name == "" {
		name = preview.FirstRecordName
	}
	return []string{g.ID, name, g.ObjectType, strconv.Itoa(g.RecordCount), strings.Join(labels, ", ")}
}

// parseAssignments turns field=value pairs into a map. Later pairs win.
func parseAssignments(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("expected field=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show duplicate counts per object type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backend()
			if err != nil {
				return err
			}
			summary, err := client.GetSummary(cmd.Context())
			if err != nil {
				return fmt.Errorf("load summary: %s", remote.Message(err))
			}
			if jsonOut {
				return writeJSON(cmd, summary)
			}
			counts := append([]remote.ObjectCount(nil), summary.SetsByObject...)
			sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
			rows := make([][]string, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, []string{c.ObjectType, strconv.Itoa(c.Count)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Object", "Sets"}, rows, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintf(out, "%d duplicate sets covering %d records\n", summary.TotalSets, summary.TotalItems)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <group-id>",
		Short: "Delete a duplicate set without merging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backend()
			if err != nil {
				return err
			}
			ws := merge.New(args[0], client, merge.Options{
				Sink:   ctx.sink(cmd),
				Logger: ctx.loggerValue(),
			})
			outcome, err := ws.Delete(cmd.Context(), ctx.confirmer(cmd))
			if err != nil {
				return err
			}
			if outcome == merge.OutcomeDeclined {
				fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled")
			}
			return nil
		},
	}
}
