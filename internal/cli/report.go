package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/report"
)

// ReportOptions holds flags for the component report commands.
type ReportOptions struct {
	*RootOptions
	Version  int
	MaxLines int
}

// NewUsedInCommand creates the used-in command.
func NewUsedInCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "used-in <component-uuid>",
		Short: "List the assemblies that contain a component revision",
		Long: `List every assembly that contains a component revision, directly or
through intermediate sub-assemblies, nearest first.

Without --version the latest synced revision is used.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts.RootOptions, cmd, func(r *report.Reader) (any, error) {
				return r.UsedIn(cmd.Context(), args[0], opts.Version)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Version, "version", 0, "component version number (default latest)")

	return cmd
}

// NewBOMCommand creates the bom command.
func NewBOMCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bom <component-uuid>",
		Short: "Explode the bill of materials below a component revision",
		Long: `Print the full bill of materials below a component revision as an
indented tree. Each line shows the quantity on its assembly line and the
total quantity needed for one top-level assembly.

Without --version the latest synced revision is used.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts.RootOptions, cmd, func(r *report.Reader) (any, error) {
				return r.Explode(cmd.Context(), args[0], opts.Version)
			}, report.WithMaxBOMLines(opts.MaxLines))
		},
	}

	cmd.Flags().IntVar(&opts.Version, "version", 0, "component version number (default latest)")
	cmd.Flags().IntVar(&opts.MaxLines, "max-lines", report.DefaultMaxBOMLines, "fail when the tree has more lines (0 for unlimited)")

	return cmd
}

// Stats is the data of the stats command.
type Stats struct {
	Counts            domain.Counts `json:"counts"`
	ComponentVersions *int          `json:"component_versions,omitempty"`
	DesignVersions    *int          `json:"design_versions,omitempty"`
}

// WriteText renders the stats as aligned lines.
func (s Stats) WriteText(w io.Writer) error {
	rows := []struct {
		label string
		n     int
	}{
		{"users", s.Counts.Users},
		{"components", s.Counts.Components},
		{"component revisions", s.Counts.ComponentRevisions},
		{"assembly lines", s.Counts.AssemblyEdges},
		{"designs", s.Counts.Designs},
		{"design revisions", s.Counts.DesignRevisions},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-20s %d\n", row.label, row.n); err != nil {
			return err
		}
	}
	if s.ComponentVersions != nil {
		fmt.Fprintf(w, "%-20s %d\n", "component versions", *s.ComponentVersions)
	}
	if s.DesignVersions != nil {
		fmt.Fprintf(w, "%-20s %d\n", "design versions", *s.DesignVersions)
	}
	return nil
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var component, design string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts",
		Long: `Show the number of stored records per kind. --component and --design
add the number of synced versions of one component or design.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, cmd, func(r *report.Reader) (any, error) {
				ctx := cmd.Context()
				var stats Stats
				var err error
				if stats.Counts, err = r.Counts(ctx); err != nil {
					return nil, err
				}
				if component != "" {
					n, err := r.ComponentVersionCount(ctx, component)
					if err != nil {
						return nil, err
					}
					stats.ComponentVersions = &n
				}
				if design != "" {
					n, err := r.DesignVersionCount(ctx, design)
					if err != nil {
						return nil, err
					}
					stats.DesignVersions = &n
				}
				return stats, nil
			})
		},
	}

	cmd.Flags().StringVar(&component, "component", "", "component uuid to count versions of")
	cmd.Flags().StringVar(&design, "design", "", "design uuid to count versions of")

	return cmd
}

func runReport(opts *RootOptions, cmd *cobra.Command, query func(r *report.Reader) (any, error), readerOpts ...report.Option) error {
	formatter := newFormatter(opts, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	return withStore(opts, formatter, logger, func(st domain.Store) error {
		data, err := query(report.New(st, readerOpts...))
		if err != nil {
			return formatter.Fail("query failed", err)
		}
		return formatter.Success(data)
	})
}
