package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
	"github.com/roach88/fusionsync/internal/reconcile"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	FailFast bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, the engine defaults to UUIDv7Generator.
	RunIDs reconcile.RunIDGenerator
}

// FileResult is the outcome of syncing one payload file.
type FileResult struct {
	File   string            `json:"file"`
	Status string            `json:"status"` // "ok" or "error"
	Result *reconcile.Result `json:"result,omitempty"`
	Error  *CLIError         `json:"error,omitempty"`

	err error
}

// SyncSummary is the JSON data of the sync command.
type SyncSummary struct {
	Files  []FileResult `json:"files"`
	Failed int          `json:"failed"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <payload-file>...",
		Short: "Sync design structure payloads into the database",
		Long: `Sync one or more design structure payloads exported from Fusion.

Each file is applied in its own transaction: a rejected file leaves the
database unchanged and does not affect the other files. Files ending in
.yaml or .yml are read as YAML, everything else as JSON.

Exit codes: 0 all files synced, 1 a payload was rejected, 2 a file or the
database could not be used.

Example:
  fusionsync sync --db ./parts.db gearbox.json
  fusionsync sync --driver postgres --db "host=localhost dbname=parts" exports/*.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop at the first file that fails")

	return cmd
}

func runSync(opts *SyncOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	var summary SyncSummary
	err := withStore(opts.RootOptions, formatter, logger, func(st domain.Store) error {
		var engineOpts []reconcile.Option
		if opts.RunIDs != nil {
			engineOpts = append(engineOpts, reconcile.WithRunIDGenerator(opts.RunIDs))
		}
		eng := newEngine(st, logger, engineOpts...)

		for _, file := range files {
			formatter.VerboseLog("syncing %s", file)
			res := syncFile(cmd, eng, file)
			summary.Files = append(summary.Files, res)
			if res.err != nil {
				summary.Failed++
				if opts.FailFast {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return outputSync(formatter, summary)
}

func syncFile(cmd *cobra.Command, eng *reconcile.Engine, file string) FileResult {
	res := FileResult{File: file}

	data, err := os.ReadFile(file)
	if err != nil {
		res.Status = "error"
		res.Error = &CLIError{Code: ErrCodeIO, Message: err.Error()}
		res.err = err
		return res
	}

	result, err := eng.SyncPayload(cmd.Context(), data, payload.FormatFromPath(file))
	if err != nil {
		res.Status = "error"
		res.Error = &CLIError{Code: errorCodeOf(err), Message: err.Error()}
		var se *reconcile.SyncError
		if errors.As(err, &se) {
			res.Error.Message = se.Message
			res.Error.Identifier = se.Identifier
		}
		res.err = err
		return res
	}

	res.Status = "ok"
	res.Result = result
	return res
}

func outputSync(f *OutputFormatter, summary SyncSummary) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: summary}
		if first := summary.firstFailure(); first != nil {
			resp.Status = "error"
			resp.Error = first.Error
		}
		if err := json.NewEncoder(f.Writer).Encode(resp); err != nil {
			return err
		}
	} else {
		writeSyncText(f.Writer, summary)
	}

	first := summary.firstFailure()
	if first == nil {
		return nil
	}
	return WrapExitError(summary.exitCode(),
		fmt.Sprintf("%d of %d file(s) failed", summary.Failed, len(summary.Files)), first.err)
}

func writeSyncText(w io.Writer, summary SyncSummary) {
	for _, r := range summary.Files {
		if r.Status == "ok" {
			fmt.Fprintf(w, "✓ %s: design %s, run %s, %d created, %d updated\n",
				r.File, r.Result.Design.UUID, r.Result.RunID, r.Result.Created, r.Result.Updated)
			continue
		}
		fmt.Fprintf(w, "✗ %s: %s: %s", r.File, r.Error.Code, r.Error.Message)
		if r.Error.Identifier != "" {
			fmt.Fprintf(w, " (id=%s)", r.Error.Identifier)
		}
		fmt.Fprintln(w)
	}
}

func (s SyncSummary) firstFailure() *FileResult {
	for i := range s.Files {
		if s.Files[i].err != nil {
			return &s.Files[i]
		}
	}
	return nil
}

// exitCode is 2 if any file failed for a reason other than its payload, 1
// if only payloads were rejected.
func (s SyncSummary) exitCode() int {
	code := ExitSuccess
	for _, r := range s.Files {
		if r.err == nil {
			continue
		}
		if c := exitCodeOf(r.err); c > code {
			code = c
		}
	}
	return code
}
