package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"scrub/internal/config"
	"scrub/internal/identity"
	"scrub/internal/linklog"
	"scrub/internal/logging"
	"scrub/internal/naming"
	"scrub/internal/record"
	"scrub/internal/scan"
	"scrub/internal/spaceguard"
	"scrub/internal/transform"
)

// Dispatcher partitions the input set across workers and owns run lifecycle.
type Dispatcher struct {
	cfg      *config.Config
	log      *linklog.Log
	resolver *identity.Resolver
	source   record.Source
	writer   record.Writer
	guard    *spaceguard.Guard
	grouping naming.Grouping
	logger   *slog.Logger
}

// New constructs a dispatcher over an open link log and codec collaborators.
func New(cfg *config.Config, log *linklog.Log, source record.Source, writer record.Writer, logger *slog.Logger) (*Dispatcher, error) {
	grouping, err := naming.ParseGrouping(cfg.Pipeline.Grouping)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		cfg:      cfg,
		log:      log,
		resolver: identity.NewResolver(log),
		source:   source,
		writer:   writer,
		guard:    spaceguard.New(cfg.Paths.OutputDir, cfg.SpaceBudgetBytes()),
		grouping: grouping,
		logger:   logger.With(logging.String(logging.FieldComponent, "dispatch")),
	}, nil
}

type job struct {
	seq  int
	file scan.File
}

type runState struct {
	processed         atomic.Int64
	skippedMissingID  atomic.Int64
	skippedUnreadable atomic.Int64
	skippedExisting   atomic.Int64
	writeFailures     atomic.Int64
	remaining         atomic.Int64
	bytesWritten      atomic.Int64

	// Owned by the allocator goroutine; read by Run after it exits.
	halted     bool
	haltReason string
	fatal      error

	total int64
}

// Run executes the batch and returns its summary. The returned error is
// non-nil only for fatal outcomes (and operator cancellation); halting on
// space is a designed stop, not an error.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	batch, err := scan.Walk(d.cfg.Paths.InputDir)
	if err != nil {
		return Summary{}, err
	}

	state := &runState{total: int64(len(batch.Files))}
	d.logger.Info("input enumerated",
		logging.Int("files", len(batch.Files)),
		logging.Int64("total_bytes", batch.TotalBytes),
		logging.Int64("budget_bytes", d.guard.Limit()),
	)

	jobs := make(chan job, len(batch.Files))
	for i, file := range batch.Files {
		jobs <- job{seq: i, file: file}
	}
	close(jobs)

	workers := d.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	requests := make(chan *allocRequest, workers*2)
	allocatorDone := make(chan struct{})

	group, groupCtx := errgroup.WithContext(ctx)
	go func() {
		defer close(allocatorDone)
		d.runAllocator(groupCtx, requests, state)
	}()
	for i := 0; i < workers; i++ {
		worker := i
		group.Go(func() error {
			return d.runWorker(groupCtx, worker, jobs, requests, state)
		})
	}

	runErr := group.Wait()
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	close(requests)
	<-allocatorDone

	summary := Summary{
		TotalFiles:        state.total,
		Processed:         state.processed.Load(),
		SkippedMissingID:  state.skippedMissingID.Load(),
		SkippedUnreadable: state.skippedUnreadable.Load(),
		SkippedExisting:   state.skippedExisting.Load(),
		WriteFailures:     state.writeFailures.Load(),
		Remaining:         state.remaining.Load(),
		BytesWritten:      state.bytesWritten.Load(),
		BudgetBytes:       d.guard.Limit(),
	}

	switch {
	case state.fatal != nil:
		summary.Outcome = OutcomeFailedFatal
		summary.HaltReason = state.fatal.Error()
		if runErr == nil {
			runErr = state.fatal
		}
	case runErr != nil && errors.Is(runErr, context.Canceled):
		summary.Outcome = OutcomeCanceled
		summary.HaltReason = "run canceled"
	case runErr != nil:
		summary.Outcome = OutcomeFailedFatal
		summary.HaltReason = runErr.Error()
	case state.halted:
		summary.Outcome = OutcomeHaltedOnSpace
		summary.HaltReason = state.haltReason
	default:
		summary.Outcome = OutcomeCompleted
	}

	d.logger.Info("run finished",
		logging.String("outcome", string(summary.Outcome)),
		logging.Int64("processed", summary.Processed),
		logging.Int64("remaining", summary.Remaining),
		logging.Int64("bytes_written", summary.BytesWritten),
	)
	return summary, runErr
}

func (d *Dispatcher) runWorker(ctx context.Context, index int, jobs <-chan job, requests chan<- *allocRequest, state *runState) error {
	for jb := range jobs {
		fileCtx := logging.ContextWithWorker(logging.ContextWithPath(ctx, jb.file.Path), index)
		logger := logging.WithContext(fileCtx, d.logger)

		// Drain assigned work even after cancellation so the allocator's
		// sequence pointer always advances and no peer blocks on a reply.
		if ctx.Err() != nil {
			state.remaining.Add(1)
			requests <- &allocRequest{seq: jb.seq, release: true}
			continue
		}

		tags, err := d.source.ReadTags(fileCtx, jb.file.Path)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				state.remaining.Add(1)
			} else {
				state.skippedUnreadable.Add(1)
				logger.Warn("skipping unreadable record", logging.Error(err))
			}
			requests <- &allocRequest{seq: jb.seq, release: true}
			continue
		}

		estimate := spaceguard.Estimate(jb.file.Size)
		req := &allocRequest{
			seq:      jb.seq,
			tags:     tags,
			estimate: estimate,
			reply:    make(chan allocReply, 1),
		}
		requests <- req
		rep := <-req.reply

		switch {
		case rep.err != nil:
			d.abandonRemaining(jobs, requests, state)
			return rep.err
		case rep.missingID:
			state.skippedMissingID.Add(1)
			logger.Warn("skipping record without usable identifier", logging.Error(rep.cause))
			continue
		case rep.halted:
			state.remaining.Add(1)
			continue
		}

		attrs := transform.Apply(tags, rep.bundle)
		target := naming.TargetPath(d.cfg.Paths.OutputDir, d.grouping, attrs)

		if _, err := os.Stat(target); err == nil {
			d.guard.Release(estimate)
			state.skippedExisting.Add(1)
			logger.Debug("output already exists, skipping", logging.String("target", target))
			continue
		}

		written, err := d.writer.WriteRecord(fileCtx, target, attrs)
		if err != nil {
			d.guard.Release(estimate)
			state.writeFailures.Add(1)
			logger.Warn("record write failed", logging.String("target", target), logging.Error(err))
			continue
		}
		d.guard.Commit(estimate, written)
		state.bytesWritten.Add(written)

		if err := d.log.CommitAdmission(fileCtx, rep.bundle.Identity); err != nil {
			d.abandonRemaining(jobs, requests, state)
			return err
		}

		done := state.processed.Add(1)
		if every := int64(d.cfg.Pipeline.ProgressEvery); every > 0 && done%every == 0 {
			d.logger.Info("progress",
				logging.Int64("processed", done),
				logging.Int64("total", state.total),
				logging.Int64("bytes_written", state.bytesWritten.Load()),
			)
		}
	}
	return nil
}

// abandonRemaining drains the job queue after a fatal error so the remaining
// count stays accurate and the allocator's sequence pointer advances for
// every enumerated file even when this was the last live worker.
func (d *Dispatcher) abandonRemaining(jobs <-chan job, requests chan<- *allocRequest, state *runState) {
	for jb := range jobs {
		state.remaining.Add(1)
		requests <- &allocRequest{seq: jb.seq, release: true}
	}
}
