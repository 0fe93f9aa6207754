package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/report"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Subject  string // What was checked, e.g. "bom housing@latest"
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the store.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, st domain.Store, assertions []Assertion) []string {
	var errors []string
	reader := report.New(st)

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCounts:
			err = assertCounts(ctx, reader, assertion)
		case AssertBOM:
			err = assertBOM(ctx, reader, assertion)
		case AssertUsedIn:
			err = assertUsedIn(ctx, reader, assertion)
		case AssertVersions:
			err = assertVersions(ctx, reader, assertion)
		case AssertRuns:
			err = assertRuns(ctx, st, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}

	return errors
}

func countsByKind(c domain.Counts) map[string]int {
	return map[string]int{
		"users":               c.Users,
		"components":          c.Components,
		"component_revisions": c.ComponentRevisions,
		"assembly_edges":      c.AssemblyEdges,
		"designs":             c.Designs,
		"design_revisions":    c.DesignRevisions,
	}
}

// assertCounts checks the specified record counts; other kinds are ignored.
func assertCounts(ctx context.Context, r *report.Reader, a Assertion) error {
	counts, err := r.Counts(ctx)
	if err != nil {
		return err
	}
	actual := countsByKind(counts)

	var want, got []string
	for _, kind := range slices.Sorted(maps.Keys(a.Counts)) {
		if actual[kind] != a.Counts[kind] {
			want = append(want, fmt.Sprintf("%s=%d", kind, a.Counts[kind]))
			got = append(got, fmt.Sprintf("%s=%d", kind, actual[kind]))
		}
	}
	if len(want) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertCounts,
		Expected: strings.Join(want, " "),
		Actual:   strings.Join(got, " "),
	}
}

// assertBOM checks the exploded totals exactly.
func assertBOM(ctx context.Context, r *report.Reader, a Assertion) error {
	bom, err := r.Explode(ctx, a.Component, a.Version)
	if err != nil {
		return err
	}
	totals := bom.Totals()
	if maps.Equal(totals, a.Totals) {
		return nil
	}
	return &AssertionError{
		Type:     AssertBOM,
		Subject:  subject(a.Component, a.Version),
		Expected: formatTotals(a.Totals),
		Actual:   formatTotals(totals),
	}
}

// assertUsedIn checks the assemblies containing a revision, in report order.
func assertUsedIn(ctx context.Context, r *report.Reader, a Assertion) error {
	rep, err := r.UsedIn(ctx, a.Component, a.Version)
	if err != nil {
		return err
	}
	parents := make([]string, len(rep.Usages))
	for i, u := range rep.Usages {
		parents[i] = u.String()
	}
	if slices.Equal(parents, a.Parents) || (len(parents) == 0 && len(a.Parents) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     AssertUsedIn,
		Subject:  subject(a.Component, a.Version),
		Expected: fmt.Sprintf("%v", a.Parents),
		Actual:   fmt.Sprintf("%v", parents),
	}
}

func assertVersions(ctx context.Context, r *report.Reader, a Assertion) error {
	var n int
	var err error
	subj := "component " + a.Component
	if a.Design != "" {
		subj = "design " + a.Design
		n, err = r.DesignVersionCount(ctx, a.Design)
	} else {
		n, err = r.ComponentVersionCount(ctx, a.Component)
	}
	if err != nil {
		return err
	}
	if n == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertVersions,
		Subject:  subj,
		Expected: fmt.Sprintf("%d versions", *a.Count),
		Actual:   fmt.Sprintf("%d versions", n),
	}
}

func assertRuns(ctx context.Context, st domain.Store, a Assertion) error {
	runs, err := st.ListRuns(ctx, 0)
	if err != nil {
		return err
	}
	n := 0
	for _, run := range runs {
		if a.Status == "" || string(run.Status) == a.Status {
			n++
		}
	}
	if n == *a.Count {
		return nil
	}
	label := "runs"
	if a.Status != "" {
		label = a.Status + " runs"
	}
	return &AssertionError{
		Type:     AssertRuns,
		Expected: fmt.Sprintf("%d %s", *a.Count, label),
		Actual:   fmt.Sprintf("%d %s", n, label),
	}
}

func subject(component string, version int) string {
	if version <= 0 {
		return component + "@latest"
	}
	return fmt.Sprintf("%s@%d", component, version)
}

func formatTotals(totals map[string]int) string {
	if len(totals) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(totals))
	for _, k := range slices.Sorted(maps.Keys(totals)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, totals[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
