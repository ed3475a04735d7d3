package installer

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// Status is the outcome of one archive.
type Status string

const (
	// StatusInstalled means pip succeeded.
	StatusInstalled Status = "installed"
	// StatusFailed means verification or pip failed.
	StatusFailed Status = "failed"
	// StatusSkipped means the run stopped before reaching the archive.
	StatusSkipped Status = "skipped"
	// StatusPlanned means a dry run would have installed the archive.
	StatusPlanned Status = "planned"
)

// Result records one archive of the run.
type Result struct {
	Archive  string
	Path     string
	Status   Status
	Duration time.Duration
	Err      error
}

// Report summarizes a run.
type Report struct {
	// TargetDir is the absolute install directory.
	TargetDir string
	// PipPath is the pip entry point the run used.
	PipPath string
	// TargetCreated is true when this run created TargetDir.
	TargetCreated bool
	// DryRun is true when nothing was executed.
	DryRun bool
	// Results are in install order.
	Results []Result
}

// Count returns how many results have status s.
func (r *Report) Count(s Status) int {
	n := 0

	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}

	return n
}

// Render writes a human readable summary, coloured when w is a terminal.
func (r *Report) Render(w io.Writer) {
	var (
		green  = color.New(color.FgGreen, color.Bold)
		red    = color.New(color.FgRed, color.Bold)
		yellow = color.New(color.FgYellow)
	)

	_, _ = fmt.Fprintf(w, "Target: %s", r.TargetDir)
	if r.TargetCreated {
		_, _ = fmt.Fprint(w, " (created)")
	}

	_, _ = fmt.Fprintln(w)

	for _, res := range r.Results {
		switch res.Status {
		case StatusInstalled:
			_, _ = green.Fprint(w, "  OK      ")
		case StatusFailed:
			_, _ = red.Fprint(w, "  FAILED  ")
		case StatusSkipped:
			_, _ = yellow.Fprint(w, "  SKIPPED ")
		case StatusPlanned:
			_, _ = fmt.Fprint(w, "  PLANNED ")
		}

		_, _ = fmt.Fprintf(w, "%s", res.Archive)

		if res.Duration > 0 {
			_, _ = fmt.Fprintf(w, " (%s)", res.Duration.Round(time.Millisecond))
		}

		if res.Err != nil {
			_, _ = fmt.Fprintf(w, ": %v", res.Err)
		}

		_, _ = fmt.Fprintln(w)
	}

	summary := fmt.Sprintf("%d installed, %d failed, %d skipped",
		r.Count(StatusInstalled), r.Count(StatusFailed), r.Count(StatusSkipped))
	if r.DryRun {
		summary = fmt.Sprintf("%d planned (dry run)", r.Count(StatusPlanned))
	}

	_, _ = fmt.Fprintln(w, summary)
}
