package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fusionsync/internal/domain"
)

// RunList is the data of the runs command without a run id.
type RunList struct {
	Runs []domain.SyncRun `json:"runs"`
}

// WriteText renders one line per run.
func (l RunList) WriteText(w io.Writer) error {
	if len(l.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No sync runs recorded")
		return err
	}
	for _, r := range l.Runs {
		outcome := fmt.Sprintf("%d created, %d updated", r.Created, r.Updated)
		if r.Status == domain.RunFailed {
			outcome = r.ErrorCode
		}
		digest := r.PayloadDigest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		if _, err := fmt.Fprintf(w, "%s  %-9s  %s  design=%s  digest=%s  %s\n",
			r.ID, r.Status, r.StartedAt.Format(time.RFC3339), r.DesignUUID, digest, outcome); err != nil {
			return err
		}
	}
	return nil
}

// EventList is the data of the runs command with a run id.
type EventList struct {
	RunID  string             `json:"run_id"`
	Events []domain.SyncEvent `json:"events"`
}

// WriteText renders one line per event in seq order.
func (l EventList) WriteText(w io.Writer) error {
	if len(l.Events) == 0 {
		_, err := fmt.Fprintf(w, "No events recorded for run %s\n", l.RunID)
		return err
	}
	for _, e := range l.Events {
		if _, err := fmt.Fprintf(w, "%4d  %-8s %-18s %s\n", e.Seq, e.Action, e.Kind, e.ExternalKey); err != nil {
			return err
		}
	}
	return nil
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show the sync run ledger",
		Long: `Without arguments, list recent sync runs, newest first, including failed
ones. With a run id, list the records that run created or updated.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return NewExitError(ExitCommandError, "--limit must not be negative")
			}
			formatter := newFormatter(rootOpts, cmd)
			logger := newLogger(cmd.ErrOrStderr(), rootOpts.Verbose)

			return withStore(rootOpts, formatter, logger, func(st domain.Store) error {
				if len(args) == 1 {
					events, err := st.ListEvents(cmd.Context(), args[0])
					if err != nil {
						return formatter.Fail("failed to list events", err)
					}
					if events == nil {
						events = []domain.SyncEvent{}
					}
					return formatter.Success(EventList{RunID: args[0], Events: events})
				}

				runs, err := st.ListRuns(cmd.Context(), limit)
				if err != nil {
					return formatter.Fail("failed to list runs", err)
				}
				return formatter.Success(RunList{Runs: runs})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")

	return cmd
}
