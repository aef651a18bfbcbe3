// Package harvest drives a source through transform and sink, recording
// progress in a checkpoint store so that reruns resume where the last run
// stopped and never upload the same artifact twice.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"legmirror/internal/pool"
	"legmirror/pkg/checkpoint"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/logger"
	"legmirror/pkg/ratelimit"
	"legmirror/pkg/retry"
	"legmirror/pkg/storage"
	"legmirror/pkg/workunit"
)

const (
	DefaultBatchSize   = 10
	DefaultCallTimeout = 60 * time.Second
)

// Options tunes a Harvester. Zero values select the defaults.
type Options struct {
	// BatchSize is the number of units between checkpoint commits.
	BatchSize int
	// Workers processes a batch's units in parallel; 1 is sequential.
	Workers int
	// CallTimeout bounds every source and sink call.
	CallTimeout time.Duration
	// MaxUnits stops the run after this many processed units.
	MaxUnits int
	// DiskCeiling stops the run once staging holds this many bytes.
	DiskCeiling int64

	DeleteAfterUpload bool
	// SkipNotFound marks units the source reports missing as permanent
	// failures.
	SkipNotFound bool
	// SeedFromSink imports the sink's existing items before enumerating.
	SeedFromSink bool

	Retry    *retry.Config
	Throttle ratelimit.Limiter
	Staging  *storage.Manager
	Logger   logger.Logger
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Logger == nil {
		o.Logger = logger.GetLogger()
	}
	if o.Retry == nil {
		o.Retry = retry.DefaultConfig()
		o.Retry.Logger = o.Logger
	}
	if o.Throttle == nil {
		o.Throttle = ratelimit.NewThrottle(0)
	}
	return o
}

// Harvester runs one source against one sink.
type Harvester struct {
	source    Source
	sink      Sink
	transform Transform
	store     *checkpoint.Store
	opts      Options
	log       logger.Logger

	fetches   atomic.Int64
	downloads atomic.Int64
	uploads   atomic.Int64
	staged    atomic.Int64
}

func New(source Source, sink Sink, transform Transform, store *checkpoint.Store, opts Options) *Harvester {
	opts = opts.withDefaults()
	return &Harvester{
		source:    source,
		sink:      sink,
		transform: transform,
		store:     store,
		opts:      opts,
		log:       opts.Logger,
	}
}

// unitResult is what a worker hands back to the committer.
type unitResult struct {
	record     *checkpoint.Record
	event      UnitEvent
	uploaded   int
	duplicates int
	// artifacts lists every artifact the unit transformed into, staged or not.
	artifacts []string
}

var errInterrupted = errors.New("run interrupted")

// Run harvests every pending unit. It returns an error only when no
// progress is possible: the sink rejects verification, the checkpoint
// cannot be read or written, or the source cannot enumerate. Per-unit
// failures are recorded and the run continues.
func (h *Harvester) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		RunID:   uuid.NewString(),
		Source:  h.source.Name(),
		Started: time.Now(),
	}
	log := h.log.WithFields(map[string]interface{}{
		"run_id": sum.RunID,
		"source": sum.Source,
	})
	h.fetches.Store(0)
	h.downloads.Store(0)
	h.uploads.Store(0)
	h.staged.Store(0)

	logger.LogComponentStart(log, "harvest", map[string]interface{}{
		"batch_size":   h.opts.BatchSize,
		"workers":      h.opts.Workers,
		"max_units":    h.opts.MaxUnits,
		"disk_ceiling": h.opts.DiskCeiling,
		"checkpoint":   h.store.Path(),
	})

	if v, ok := h.sink.(Verifier); ok {
		if err := v.Verify(ctx); err != nil {
			return sum, fmt.Errorf("sink verification failed: %w", err)
		}
	}

	if _, err := h.store.Load(); err != nil {
		return sum, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if h.opts.SeedFromSink {
		h.seed(ctx, log)
	}

	units, err := h.source.Enumerate(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to enumerate %s: %w", sum.Source, err)
	}

	p := pool.New[workunit.Unit, unitResult](h.opts.Workers, func(ctx context.Context, unit workunit.Unit) unitResult {
		return h.processUnit(ctx, unit, log)
	}, log)
	p.Start()
	defer p.Stop()

	sum.StopReason = StopExhausted
	batch := make([]workunit.Unit, 0, h.opts.BatchSize)
	pending := 0

	flush := func() (bool, error) {
		if len(batch) == 0 {
			return false, nil
		}
		err := h.runBatch(ctx, p, batch, sum, log)
		batch = batch[:0]
		if err != nil {
			return true, err
		}
		if ctx.Err() != nil {
			sum.StopReason = StopInterrupted
			return true, nil
		}
		if h.overDiskCeiling(log) {
			sum.StopReason = StopDiskCeiling
			return true, nil
		}
		return false, nil
	}

	for unit := range units {
		if ctx.Err() != nil {
			sum.StopReason = StopInterrupted
			break
		}
		if h.opts.MaxUnits > 0 && pending >= h.opts.MaxUnits {
			sum.StopReason = StopCountCeiling
			break
		}

		sum.Enumerated++
		key := unit.Key()
		if h.store.IsDone(key) {
			sum.Skipped++
			log.DebugWithFields("unit skipped", map[string]interface{}{
				"unit":    key,
				"outcome": string(OutcomeSkipped),
			})
			h.notify(UnitEvent{Key: key, Outcome: OutcomeSkipped}, sum)
			continue
		}

		batch = append(batch, unit)
		pending++
		if len(batch) < h.opts.BatchSize {
			continue
		}
		stop, err := flush()
		if err != nil {
			return h.finish(sum, log), err
		}
		if stop {
			break
		}
	}

	if len(batch) > 0 && ctx.Err() == nil {
		if _, err := flush(); err != nil {
			return h.finish(sum, log), err
		}
	}
	if ctx.Err() != nil {
		sum.StopReason = StopInterrupted
	}

	return h.finish(sum, log), nil
}

func (h *Harvester) finish(sum *Summary, log logger.Logger) *Summary {
	h.snapshotCounters(sum)
	sum.Duration = time.Since(sum.Started)
	log.InfoWithFields("harvest finished", sum.Fields())
	logger.LogComponentStop(log, "harvest", string(sum.StopReason))
	return sum
}

func (h *Harvester) snapshotCounters(sum *Summary) {
	sum.Fetches = int(h.fetches.Load())
	sum.Downloads = int(h.downloads.Load())
	sum.Uploads = int(h.uploads.Load())
	sum.BytesStaged = h.staged.Load()
}

// runBatch processes units on the pool and commits every resolved unit in
// one write. Units the pool skipped after an interrupt leave no record.
func (h *Harvester) runBatch(ctx context.Context, p *pool.Pool[workunit.Unit, unitResult], units []workunit.Unit, sum *Summary, log logger.Logger) error {
	results := p.Batch(ctx, units)
	sum.Batches++

	records := make([]checkpoint.Record, 0, len(results))
	for _, res := range results {
		if res.Skipped {
			continue
		}
		out := res.Value
		sum.Processed++
		sum.ArtifactsUploaded += out.uploaded
		sum.Duplicates += out.duplicates
		switch out.event.Outcome {
		case OutcomeFailed:
			sum.Failed++
		case OutcomeInterrupted:
			sum.Interrupted++
		default:
			sum.Uploaded++
		}
		if out.record != nil {
			records = append(records, *out.record)
		}
	}

	if len(records) > 0 {
		if err := h.store.Commit(records); err != nil {
			return fmt.Errorf("failed to commit checkpoint: %w", err)
		}
	}
	log.DebugWithFields("batch committed", map[string]interface{}{
		"batch":   sum.Batches,
		"units":   len(units),
		"records": len(records),
	})

	h.sweep(results, log)

	h.snapshotCounters(sum)
	for _, res := range results {
		if !res.Skipped {
			h.notify(res.Value.event, sum)
		}
	}
	return nil
}

// sweep drops staged files of units the checkpoint now treats as done,
// including leftovers of artifacts that turned out to be duplicates. Units
// that will be retried keep their files for the next attempt.
func (h *Harvester) sweep(results []pool.Result[workunit.Unit, unitResult], log logger.Logger) {
	if !h.opts.DeleteAfterUpload || h.opts.Staging == nil {
		return
	}
	for _, res := range results {
		out := res.Value
		if res.Skipped || out.record == nil || !h.store.IsDone(out.record.Key) {
			continue
		}
		for _, id := range out.artifacts {
			if err := h.opts.Staging.Remove(id); err != nil {
				log.WarnWithFields("failed to clean staged files", map[string]interface{}{
					"artifact": id,
					"error":    err.Error(),
				})
			}
		}
	}
}

func (h *Harvester) notify(ev UnitEvent, sum *Summary) {
	if h.opts.Observer != nil {
		h.opts.Observer.UnitDone(ev, *sum)
	}
}

func (h *Harvester) overDiskCeiling(log logger.Logger) bool {
	if h.opts.DiskCeiling <= 0 || h.opts.Staging == nil {
		return false
	}
	usage, err := h.opts.Staging.Usage()
	if err != nil {
		log.WarnWithFields("failed to measure staging usage", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	if usage < h.opts.DiskCeiling {
		return false
	}
	log.WarnWithFields("disk ceiling reached", map[string]interface{}{
		"usage":   usage,
		"ceiling": h.opts.DiskCeiling,
		"dir":     h.opts.Staging.Dir(),
	})
	return true
}

// processUnit runs the full pipeline for one unit. ctx is the run context:
// it gates new calls, while each call itself runs on a detached context
// bounded by CallTimeout so an interrupt lets it finish.
func (h *Harvester) processUnit(ctx context.Context, unit workunit.Unit, log logger.Logger) unitResult {
	start := time.Now()
	key := unit.Key()
	prev, _ := h.store.Get(key)

	rec := checkpoint.Record{Key: key, Attempts: prev.Attempts + 1}
	var out unitResult
	sourceURL, err := h.harvestUnit(ctx, unit, &rec, &out, log)

	fields := map[string]interface{}{
		"unit":        key,
		"attempt":     rec.Attempts,
		"artifacts":   rec.ArtifactIDs,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if sourceURL != "" {
		fields["source_url"] = sourceURL
	}

	switch {
	case err != nil && ctx.Err() != nil && (errors.Is(err, errInterrupted) || errors.Is(err, ctx.Err())):
		out.event.Outcome = OutcomeInterrupted
		// Keep whatever stage was reached; a unit never fetched stays absent.
		if rec.Status != "" {
			rec.Error = err.Error()
			out.record = &rec
		}
		fields["outcome"] = string(OutcomeInterrupted)
		log.InfoWithFields("unit interrupted", fields)

	case err != nil:
		rec.Status = checkpoint.StatusFailed
		rec.Error = err.Error()
		rec.Permanent = h.opts.SkipNotFound && errs.IsNotFound(err)
		out.record = &rec
		out.event.Outcome = OutcomeFailed
		fields["outcome"] = string(OutcomeFailed)
		fields["error_type"] = string(errs.TypeOf(err))
		fields["permanent"] = rec.Permanent
		log.WithError(err).WarnWithFields("unit failed", fields)

	default:
		rec.Status = checkpoint.StatusUploaded
		out.record = &rec
		switch {
		case len(rec.ArtifactIDs) == 0:
			out.event.Outcome = OutcomeEmpty
		case out.uploaded == 0:
			out.event.Outcome = OutcomeDuplicate
		default:
			out.event.Outcome = OutcomeUploaded
		}
		fields["outcome"] = string(out.event.Outcome)
		fields["uploaded"] = out.uploaded
		fields["duplicates"] = out.duplicates
		log.InfoWithFields("unit "+string(out.event.Outcome), fields)
	}

	out.event.Key = key
	out.event.Artifacts = rec.ArtifactIDs
	out.event.Err = err
	out.event.Duration = time.Since(start)
	return out
}

// harvestUnit advances rec through fetch, transform and upload, returning
// the fetched page's URL for log correlation.
func (h *Harvester) harvestUnit(ctx context.Context, unit workunit.Unit, rec *checkpoint.Record, out *unitResult, log logger.Logger) (string, error) {
	raw, err := retry.DoWithResult(ctx, func() (*Raw, error) {
		if err := h.pace(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := h.callContext(ctx)
		defer cancel()
		h.fetches.Add(1)
		return h.source.Fetch(callCtx, unit)
	}, h.opts.Retry)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", unit.Key(), err)
	}
	rec.Status = checkpoint.StatusFetched

	artifacts, err := h.transform(raw)
	if err != nil {
		return raw.SourceURL, fmt.Errorf("transform %s: %w", unit.Key(), err)
	}
	rec.Status = checkpoint.StatusTransformed

	for _, art := range artifacts {
		out.artifacts = append(out.artifacts, art.ID)
		if ctx.Err() != nil {
			return raw.SourceURL, fmt.Errorf("%w: %w", errInterrupted, ctx.Err())
		}

		if h.exists(ctx, art.ID, log) {
			rec.ArtifactIDs = append(rec.ArtifactIDs, art.ID)
			out.duplicates++
			continue
		}

		if err := h.stage(ctx, art); err != nil {
			return raw.SourceURL, fmt.Errorf("download %s: %w", art.ID, err)
		}

		if ctx.Err() != nil {
			return raw.SourceURL, fmt.Errorf("%w: %w", errInterrupted, ctx.Err())
		}
		id, err := retry.DoWithResult(ctx, func() (string, error) {
			callCtx, cancel := h.callContext(ctx)
			defer cancel()
			h.uploads.Add(1)
			return h.sink.Upload(callCtx, art)
		}, h.opts.Retry)
		if err != nil {
			return raw.SourceURL, fmt.Errorf("upload %s: %w", art.ID, err)
		}
		if id == "" {
			id = art.ID
		}
		rec.ArtifactIDs = append(rec.ArtifactIDs, id)
		out.uploaded++

		if h.opts.DeleteAfterUpload && h.opts.Staging != nil && len(art.Staged) > 0 {
			if err := h.opts.Staging.Remove(art.ID); err != nil {
				log.WarnWithFields("failed to clean staged files", map[string]interface{}{
					"artifact": art.ID,
					"error":    err.Error(),
				})
			}
		}
	}
	return raw.SourceURL, nil
}

// exists asks the sink for id. A failed check counts as absent.
func (h *Harvester) exists(ctx context.Context, id string, log logger.Logger) bool {
	found, err := retry.DoWithResult(ctx, func() (bool, error) {
		callCtx, cancel := h.callContext(ctx)
		defer cancel()
		return h.sink.Exists(callCtx, id)
	}, h.opts.Retry)
	if err != nil {
		log.WarnWithFields("existence check failed, assuming absent", map[string]interface{}{
			"artifact": id,
			"error":    err.Error(),
		})
		return false
	}
	return found
}

// stage downloads art's files into the staging directory, reusing files a
// previous attempt already completed.
func (h *Harvester) stage(ctx context.Context, art *Artifact) error {
	if len(art.Files) == 0 {
		return nil
	}
	if h.opts.Staging == nil {
		return errors.New("no staging directory configured")
	}

	art.Staged = art.Staged[:0]
	for _, ref := range art.Files {
		if h.opts.Staging.IsStaged(art.ID, ref.Name) {
			path := h.opts.Staging.PathFor(art.ID, ref.Name)
			if info, err := os.Stat(path); err == nil {
				art.Staged = append(art.Staged, StagedFile{Name: ref.Name, Path: path, Size: info.Size()})
				continue
			}
		}

		file, err := retry.DoWithResult(ctx, func() (StagedFile, error) {
			if err := h.pace(ctx); err != nil {
				return StagedFile{}, err
			}
			callCtx, cancel := h.callContext(ctx)
			defer cancel()
			h.downloads.Add(1)
			path, n, err := h.opts.Staging.Save(art.ID, ref.Name, func(w io.Writer) (int64, error) {
				return h.source.Download(callCtx, ref, w)
			})
			return StagedFile{Name: ref.Name, Path: path, Size: n}, err
		}, h.opts.Retry)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.Name, err)
		}
		h.staged.Add(file.Size)
		art.Staged = append(art.Staged, file)
	}
	return nil
}

// pace waits for the throttle before a source call. Once the run is
// interrupted no further source call starts.
func (h *Harvester) pace(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", errInterrupted, ctx.Err())
	}
	if err := h.opts.Throttle.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", errInterrupted, err)
	}
	return nil
}

func (h *Harvester) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.opts.CallTimeout)
}

// seed marks units whose items already exist in the sink as uploaded.
func (h *Harvester) seed(ctx context.Context, log logger.Logger) {
	lister, ok := h.sink.(Lister)
	resolver, ok2 := h.source.(KeyResolver)
	if !ok || !ok2 {
		log.Warn("seeding requested but the source or sink does not support it")
		return
	}

	ids, err := lister.List(ctx, resolver.SeedQuery())
	if err != nil {
		log.WarnWithFields("failed to list existing items, continuing without seeding", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	byKey := make(map[string]*checkpoint.Record)
	var order []string
	for _, id := range ids {
		unit, ok := resolver.UnitForKey(id)
		if !ok {
			continue
		}
		key := unit.Key()
		if h.store.IsDone(key) {
			continue
		}
		rec, seen := byKey[key]
		if !seen {
			rec = &checkpoint.Record{Key: key, Status: checkpoint.StatusUploaded}
			byKey[key] = rec
			order = append(order, key)
		}
		rec.ArtifactIDs = append(rec.ArtifactIDs, id)
	}

	records := make([]checkpoint.Record, 0, len(order))
	for _, key := range order {
		records = append(records, *byKey[key])
	}
	if len(records) > 0 {
		if err := h.store.Commit(records); err != nil {
			log.WarnWithFields("failed to commit seeded units", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
	}
	log.InfoWithFields("checkpoint seeded from sink", map[string]interface{}{
		"listed": len(ids),
		"seeded": len(records),
	})
}
