package harvest

import (
	"fmt"
	"time"
)

// StopReason records why a run ended.
type StopReason string

const (
	StopExhausted    StopReason = "exhausted"
	StopInterrupted  StopReason = "interrupted"
	StopDiskCeiling  StopReason = "disk_ceiling"
	StopCountCeiling StopReason = "count_ceiling"
)

// Outcome is the per-unit result reported in logs and to observers.
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeUploaded    Outcome = "uploaded"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeEmpty       Outcome = "empty"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Summary totals one run.
type Summary struct {
	RunID      string
	Source     string
	StopReason StopReason
	Started    time.Time
	Duration   time.Duration

	Enumerated  int
	Skipped     int
	Processed   int
	Uploaded    int
	Failed      int
	Interrupted int
	Batches     int

	// Source and sink call counts, retries included.
	Fetches   int
	Downloads int
	Uploads   int

	ArtifactsUploaded int
	Duplicates        int
	BytesStaged       int64
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d enumerated, %d skipped, %d processed (%d ok, %d failed), %d uploaded, %d duplicates, stop=%s in %s",
		s.Source, s.Enumerated, s.Skipped, s.Processed, s.Uploaded, s.Failed,
		s.ArtifactsUploaded, s.Duplicates, s.StopReason, s.Duration.Round(time.Millisecond))
}

// Fields renders the summary for structured logging.
func (s Summary) Fields() map[string]interface{} {
	return map[string]interface{}{
		"run_id":             s.RunID,
		"source":             s.Source,
		"stop_reason":        string(s.StopReason),
		"duration":           s.Duration,
		"enumerated":         s.Enumerated,
		"skipped":            s.Skipped,
		"processed":          s.Processed,
		"uploaded":           s.Uploaded,
		"failed":             s.Failed,
		"interrupted":        s.Interrupted,
		"batches":            s.Batches,
		"fetches":            s.Fetches,
		"downloads":          s.Downloads,
		"uploads":            s.Uploads,
		"artifacts_uploaded": s.ArtifactsUploaded,
		"duplicates":         s.Duplicates,
		"bytes_staged":       s.BytesStaged,
	}
}

// UnitEvent is delivered to an Observer once per unit outcome.
type UnitEvent struct {
	Key       string
	Outcome   Outcome
	Artifacts []string
	Err       error
	Duration  time.Duration
}

// Observer receives progress as the run advances. Calls come from the
// committing goroutine, one at a time.
type Observer interface {
	UnitDone(ev UnitEvent, s Summary)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev UnitEvent, s Summary)

func (f ObserverFunc) UnitDone(ev UnitEvent, s Summary) { f(ev, s) }
