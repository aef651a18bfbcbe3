package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"legmirror/pkg/harvest"
)

// redrawEvery limits how often skipped units repaint the line. A resumed
// run can skip millions of units before reaching new work.
const redrawEvery = 250 * time.Millisecond

// ProgressDisplay prints a single self-updating progress line for a
// harvest run. It implements harvest.Observer.
type ProgressDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	source  string
	total   int
	verbose bool
	now     func() time.Time

	start    time.Time
	lastDraw time.Time
	current  string
	summary  harvest.Summary
}

// NewProgressDisplay creates a display for source. total is the unit budget
// of the run, or zero when the run is open-ended. In verbose mode every
// finished unit gets its own line instead of repainting one.
func NewProgressDisplay(out io.Writer, source string, total int, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:     out,
		source:  source,
		total:   total,
		verbose: verbose,
		now:     time.Now,
		start:   time.Now(),
	}
}

// UnitDone records one unit outcome and repaints.
func (p *ProgressDisplay) UnitDone(ev harvest.UnitEvent, s harvest.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.summary = s
	p.current = ev.Key
	now := p.now()

	if ev.Outcome == harvest.OutcomeSkipped {
		if p.verbose || now.Sub(p.lastDraw) < redrawEvery {
			return
		}
	} else if p.verbose {
		p.printEvent(ev)
		return
	}

	p.lastDraw = now
	p.printProgress(now)
}

func (p *ProgressDisplay) printEvent(ev harvest.UnitEvent) {
	switch ev.Outcome {
	case harvest.OutcomeFailed:
		fmt.Fprintf(p.out, "%s %s • %v\n", Red("✗"), ev.Key, ev.Err)
	case harvest.OutcomeInterrupted:
		fmt.Fprintf(p.out, "%s %s • interrupted\n", Yellow("⚠"), ev.Key)
	case harvest.OutcomeEmpty:
		fmt.Fprintf(p.out, "%s %s • %s\n", Dim("·"), ev.Key, Dim("nothing to upload"))
	default:
		line := fmt.Sprintf("%s %s", Green("✓"), ev.Key)
		if len(ev.Artifacts) > 0 {
			line += " → " + strings.Join(ev.Artifacts, ", ")
		}
		if ev.Outcome == harvest.OutcomeDuplicate {
			line += " " + Dim("(already archived)")
		}
		fmt.Fprintln(p.out, line)
	}
}

// printProgress repaints the progress line
func (p *ProgressDisplay) printProgress(now time.Time) {
	s := p.summary
	elapsed := now.Sub(p.start)

	var line string
	if p.total > 0 {
		line = fmt.Sprintf("%s [%s] %d/%d • %s",
			Cyan(p.source),
			Bar(s.Processed, p.total, 20),
			s.Processed,
			p.total,
			ETA(s.Processed, p.total, elapsed),
		)
	} else {
		line = fmt.Sprintf("%s %d processed", Cyan(p.source), s.Processed)
	}

	line += fmt.Sprintf(" • %d ok • %d skipped • %.1f/min",
		s.Uploaded, s.Skipped, PerMinute(s.Processed, elapsed))

	if p.current != "" {
		line += " • " + p.current
	}
	if s.Failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", s.Failed))
	}

	fmt.Fprintf(p.out, "\r\033[K%s", line)
}

// Complete prints the final summary of the run.
func (p *ProgressDisplay) Complete(s *harvest.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose {
		fmt.Fprintln(p.out)
	}

	mark := Green("✓")
	if s.Failed > 0 || s.StopReason == harvest.StopInterrupted {
		mark = Yellow("⚠")
	}
	fmt.Fprintf(p.out, "\n%s %s: %d processed, %d artifacts uploaded (%s)\n",
		mark, s.Source, s.Processed, s.ArtifactsUploaded, s.StopReason)

	fmt.Fprintf(p.out, "  %s %d enumerated, %d skipped, %d duplicates\n",
		Dim("•"), s.Enumerated, s.Skipped, s.Duplicates)
	fmt.Fprintf(p.out, "  %s %s staged in %s (%.1f units/min)\n",
		Dim("•"), FormatBytes(s.BytesStaged), FormatDuration(s.Duration), PerMinute(s.Processed, s.Duration))

	if s.Failed > 0 {
		fmt.Fprintf(p.out, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d units failed", s.Failed)))
	}
}
