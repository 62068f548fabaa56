package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mergedesk/internal/remote"
	"mergedesk/internal/scan"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Start, monitor and schedule duplicate scans",
	}

	scanCmd.AddCommand(newScanStartCommand(ctx))
	scanCmd.AddCommand(newScanStatusCommand(ctx))
	scanCmd.AddCommand(newScanAbortCommand(ctx))
	scanCmd.AddCommand(newScanJobsCommand(ctx))
	scanCmd.AddCommand(newScanSchedulesCommand(ctx))
	scanCmd.AddCommand(newScanScheduleCommand(ctx))
	scanCmd.AddCommand(newScanUnscheduleCommand(ctx))

	return scanCmd
}

// newTracker wires a scan tracker on the real clock. The caller must Close it.
func (c *commandContext) newTracker(cmd *cobra.Command) (*scan.Tracker, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := c.backend()
	if err != nil {
		return nil, err
	}
	opts := scan.Options{
		Interval: cfg.PollInterval(),
		Sink:     c.sink(cmd),
		Logger:   c.loggerValue(),
	}
	if store, err := c.openJournal(); err == nil {
		opts.Journal = store
	}
	return scan.New(client, opts), nil
}

func newScanStartCommand(ctx *commandContext) *cobra.Command {
	var (
		objectType string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a duplicate scan for one object type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backend()
			if err != nil {
				return err
			}
			recent, err := client.RecentJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("recent jobs: %s", remote.Message(err))
			}
			tracker, err := ctx.newTracker(cmd)
			if err != nil {
				return err
			}
			defer tracker.Close()
			if tracker.Resume(jobsForScope(recent, objectType)) {
				tracker.Detach(objectType)
			}

			jobID, err := tracker.Start(cmd.Context(), objectType, ctx.confirmer(cmd))
			if errors.Is(err, scan.ErrScanActive) {
				running, _ := tracker.Snapshot()
				return fmt.Errorf("a %s scan is already running (job %s)", objectType, running.JobID)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jobID == "" {
				fmt.Fprintln(out, "Scan cancelled")
				return nil
			}
			fmt.Fprintf(out, "Started scan job %s for %s\n", jobID, objectType)
			if !wait {
				return nil
			}

			waitCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			job, err := waitForScan(waitCtx, tracker, ctx.configValue().PollInterval(), func(s remote.JobStatus) {
				fmt.Fprintf(out, "%s %d%%\n", s.Status, s.ProgressPercent)
			})
			if err != nil {
				return err
			}
			if scan.StateOf(&job) == scan.StateFailed {
				return errors.New("scan failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&objectType, "type", "t", "", "Object type to scan (required)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the scan finishes")
	return cmd
}

// jobsForScope keeps the jobs of one object type.
func jobsForScope(jobs []remote.JobStatus, objectType string) []remote.JobStatus {
	objectType = strings.TrimSpace(objectType)
	var matched []remote.JobStatus
	for _, j := range jobs {
		if strings.TrimSpace(j.ObjectType) == objectType {
			matched = append(matched, j)
		}
	}
	return matched
}

// waitForScan blocks until the tracker stops polling, reporting each status
// change to progress.
func waitForScan(ctx context.Context, tracker *scan.Tracker, interval time.Duration, progress func(remote.JobStatus)) (remote.JobStatus, error) {
	if interval <= 0 {
		interval = scan.DefaultInterval
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	var last remote.JobStatus
	for {
		polling := tracker.Polling()
		job, ok := tracker.Snapshot()
		if ok && (job.Status != last.Status || job.ProgressPercent != last.ProgressPercent) {
			progress(job)
			last = job
		}
		if !polling {
			if !ok || !job.IsComplete {
				return job, errors.New("lost track of the scan; check `mergedesk scan status`")
			}
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newScanStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a scan job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backend()
			if err != nil {
				return err
			}
			job, err := client.GetJobStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("job status: %s", remote.Message(err))
			}
			if jsonOut {
				return writeJSON(cmd, job)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobs([]remote.JobStatus{*job}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newScanAbortCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <job-id>",
		Short: "Stop a running scan job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backend()
			if err != nil {
				return err
			}
			job, err := client.GetJobStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("job status: %s", remote.Message(err))
			}
			if job.JobID == "" {
				job.JobID = args[0]
			}

			tracker, err := ctx.newTracker(cmd)
			if err != nil {
				return err
			}
			defer tracker.Close()
			if !tracker.Resume([]remote.JobStatus{*job}) {
				return fmt.Errorf("scan job %s is not running", args[0])
			}
			tracker.Detach(job.ObjectType)

			aborted, err := tracker.Abort(cmd.Context(), ctx.confirmer(cmd))
			if err != nil {
				return err
			}
			if !aborted {
				fmt.Fprintln(cmd.OutOrStdout(), "Abort cancelled")
			}
			return nil
		},
	}
}

func newScanJobsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent scan jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backend()
			if err != nil {
				return err
			}
			jobs, err := client.RecentJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("recent jobs: %s", remote.Message(err))
			}
			if jsonOut {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recent scan jobs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobs(jobs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderJobs(jobs []remote.JobStatus) string {
	rows := make([][]string, 0, len(jobs))
	for i := range jobs {
		j := jobs[i]
		rows = append(rows, []string{
			j.JobID,
			j.ObjectType,
			string(scan.StateOf(&j)),
			strconv.Itoa(j.ProgressPercent) + "%",
			j.ExtendedStatus,
		})
	}
	return renderTable(
		[]string{"Job", "Object", "State", "Progress", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func newScanSchedulesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List daily scan schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := ctx.newTracker(cmd)
			if err != nil {
				return err
			}
			defer tracker.Close()
			schedules, err := tracker.Schedules(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, schedules)
			}
			rows := make([][]string, 0, len(schedules))
			for _, s := range schedules {
				rows = append(rows, []string{s.ObjectType, yesNo(s.IsScheduled), s.ScheduledTime, s.NextFireTime})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Object", "Scheduled", "At", "Next run"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newScanScheduleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <object-type> <HH:MM>",
		Short: "Schedule a daily scan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := ctx.newTracker(cmd)
			if err != nil {
				return err
			}
			defer tracker.Close()
			return tracker.Schedule(cmd.Context(), args[0], args[1])
		},
	}
}

func newScanUnscheduleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unschedule <object-type>",
		Short: "Cancel a daily scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := ctx.newTracker(cmd)
			if err != nil {
				return err
			}
			defer tracker.Close()
			return tracker.Unschedule(cmd.Context(), args[0])
		},
	}
}
