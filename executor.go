package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
)

// Executor drives one run of batch_resolve over a fixed set of domains: it
// partitions the work across a pool of workers, each owning its own
// BatchProcessor, and serializes every result through a single writer task
// that is the sole mutator of the ResolutionCache, per spec.md §4.5.
type Executor struct {
	cfg      Config
	classify ClassifyFunc
	cache    *ResolutionCache
	store    snapshotStore
	logger   *slog.Logger

	// installSignals is swapped out in tests so a run never actually
	// registers a process-wide os/signal handler.
	installSignals func(trigger func()) (stop func())
}

// NewExecutor builds an Executor around classify, persisting through store
// and mutating cache.
func NewExecutor(cfg Config, classify ClassifyFunc, rc *ResolutionCache, store snapshotStore) *Executor {
	return &Executor{
		cfg:            cfg,
		classify:       classify,
		cache:          rc,
		store:          store,
		logger:         cfg.logger(),
		installSignals: installOSSignalHandler,
	}
}

// workerCount computes W = max(1, min(n/minWorkerShare, maxWorkers)), with
// maxWorkers defaulting to max(2, round(NumCPU*1.7)) when cfg.MaxWorkers is
// zero, matching spec.md §4.5 step 2 exactly.
func workerCount(n int, cfg Config) int {
	minShare := cfg.MinWorkerShare
	if minShare <= 0 {
		minShare = 100
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		scaled := int(float64(runtime.NumCPU())*1.7 + 0.5)
		maxWorkers = scaled
		if maxWorkers < 2 {
			maxWorkers = 2
		}
	}

	w := n / minShare
	if w > maxWorkers {
		w = maxWorkers
	}
	if w < 1 {
		w = 1
	}
	return w
}

// partitionRoundRobin splits domains into w segments by round-robin
// striping: segment i receives items at positions i, i+w, i+2w, …, per
// spec.md §4.5 step 3 (P9: disjoint union, sizes differ by at most one).
func partitionRoundRobin(domains []string, w int) [][]string {
	segments := make([][]string, w)
	for i, d := range domains {
		seg := i % w
		segments[seg] = append(segments[seg], d)
	}
	return segments
}

type batchMsg struct {
	workerID string
	batch    BatchResult
}

// Run classifies every domain in domains and applies the results to the
// cache, persisting a snapshot after every batch and once more at the end.
// It returns when every worker has finished (or shutdown was requested and
// the workers drained), per spec.md §4.5 steps 1-8.
func (ex *Executor) Run(ctx context.Context, domains []string) error {
	if len(domains) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var shutdownOnce sync.Once
	stopSignals := ex.installSignals(func() {
		shutdownOnce.Do(cancel)
	})
	defer stopSignals()

	w := workerCount(len(domains), ex.cfg)
	segments := partitionRoundRobin(domains, w)

	bufSize := ex.cfg.ChannelBuffer
	if bufSize <= 0 {
		bufSize = 64
	}
	resultCh := make(chan batchMsg, bufSize)
	estimator := NewEstimator(len(domains), ex.logger)

	var writerErr error
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writerErr = ex.runWriter(cancel, resultCh, estimator)
	}()

	var workersWg sync.WaitGroup
	for i, segment := range segments {
		if len(segment) == 0 {
			continue
		}
		workersWg.Add(1)
		id := fmt.Sprintf("worker-%d", i)
		go func(id string, segment []string) {
			defer workersWg.Done()
			ex.runWorker(runCtx, id, segment, resultCh, estimator)
		}(id, segment)
	}

	workersWg.Wait()
	close(resultCh)
	<-writerDone

	if writerErr != nil {
		ex.logger.Error("writer failed to persist final state", "error", writerErr)
		return writerErr
	}

	if err := persist(ex.store, ex.cache); err != nil {
		ex.logger.Error("failed to persist final snapshot", "error", err)
		return err
	}

	return nil
}

// runWorker streams every batch produced from segment onto resultCh and
// updates estimator as it goes. A panic in the worker's own goroutine is
// recovered and logged, ending only this worker while the others continue;
// the emit callback also selects on ctx so a shutdown in progress doesn't
// wedge the worker on a full resultCh.
func (ex *Executor) runWorker(ctx context.Context, id string, segment []string, resultCh chan<- batchMsg, estimator *Estimator) {
	defer func() {
		if r := recover(); r != nil {
			ex.logger.Error("worker terminated on panic", "worker", id, "panic", r)
		}
	}()

	processor := NewBatchProcessor(ex.classify, ex.cfg.BatchSize, ex.cfg.MaxConcurrentTasks)

	err := processor.ProcessSegment(ctx, segment, func(batch BatchResult) error {
		select {
		case resultCh <- batchMsg{workerID: id, batch: batch}:
		case <-ctx.Done():
			return ctx.Err()
		}
		estimator.Update(id, len(batch))
		return nil
	})

	if err != nil && ctx.Err() == nil {
		ex.logger.Error("worker terminated on unexpected error", "worker", id, "error", err)
	}
}

// maxConsecutiveWriteFailures bounds how many snapshot writes in a row may
// fail before a WriterFailure is treated as unrecoverable rather than
// transient, per spec.md §7.
const maxConsecutiveWriteFailures = 3

// runWriter is the sole mutator of ex.cache: it applies every batch it
// receives and persists a snapshot after each one, per spec.md §4.3's
// single-writer requirement (I4). It returns once resultCh is closed and
// drained, which in Go's channel semantics is equivalent to the
// "processing complete signal plus bounded receive" scheme spec.md §4.5
// step 5 describes: close already carries the completion signal, so no
// separate timeout-polling loop is needed here.
//
// A single failed write is a WriterFailure's transient case: it is logged
// and the loop continues, retrying on the next batch, per spec.md §7. Only
// once writes fail maxConsecutiveWriteFailures times in a row — the
// unrecoverable case — does runWriter call cancel (signaling the workers,
// per §7's "terminates the run after signaling the workers") and return the
// error, so the caller's workersWg.Wait() does not wedge on a full
// resultCh forever.
func (ex *Executor) runWriter(cancel context.CancelFunc, resultCh <-chan batchMsg, estimator *Estimator) error {
	consecutiveFailures := 0

	for msg := range resultCh {
		ex.cache.ApplyBatch(msg.batch)

		if err := persist(ex.store, ex.cache); err != nil {
			consecutiveFailures++
			ex.logger.Error("failed to persist snapshot after batch, will retry on next batch",
				"error", err, "consecutive_failures", consecutiveFailures)

			if consecutiveFailures >= maxConsecutiveWriteFailures {
				ex.logger.Error("snapshot writes failing repeatedly, signaling shutdown", "error", err)
				cancel()
				return err
			}
			continue
		}

		consecutiveFailures = 0
		estimator.Log()
	}

	return nil
}

// installOSSignalHandler registers trigger to run (at most once, by virtue
// of trigger itself being idempotent) on SIGINT or SIGTERM, matching
// spec.md §5's "signal handlers ... set a process-wide shutdown latch
// once" and §8's P8 (signal idempotence). The returned stop function
// deregisters the handler.
func installOSSignalHandler(trigger func()) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case _, ok := <-sigCh:
				if !ok {
					return
				}
				trigger()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
