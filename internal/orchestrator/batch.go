package orchestrator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/argopipe/pkg/logger"
	"github.com/driftline/argopipe/pkg/metrics"
)

// BatchReport aggregates per-file terminal states for one batch run.
type BatchReport struct {
	RunID    string
	Results  []FileResult
	Done     int
	Aborted  int
	Duration time.Duration
}

// AllDone reports whether every file reached the Done state.
func (r *BatchReport) AllDone() bool {
	return r.Aborted == 0 && r.Done == len(r.Results)
}

// ProcessBatch runs a set of files over at most the configured number of
// workers. Each worker processes one file's full four-stage sequence; one
// file's abort never affects its siblings. Output order is by path, not by
// completion, and never by input order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, paths []string) *BatchReport {
	start := time.Now()
	report := &BatchReport{RunID: uuid.NewString()}

	workers := o.workers
	if workers < 1 {
		workers = defaultWorkers
	}
	if workers > len(paths) && len(paths) > 0 {
		workers = len(paths)
	}
	metrics.UpdateWorkerCount(workers)

	o.log.Info(ctx, "starting batch",
		logger.String("run_id", report.RunID),
		logger.Int("files", len(paths)),
		logger.Int("workers", workers),
	)

	jobs := make(chan string)
	results := make(chan FileResult)
	var inFlight atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case path, ok := <-jobs:
					if !ok {
						return
					}
					metrics.UpdateFilesInFlight(int(inFlight.Add(1)))
					r := o.ProcessFile(ctx, path)
					metrics.UpdateFilesInFlight(int(inFlight.Add(-1)))
					select {
					case results <- r:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	processed := make(map[string]bool, len(paths))
	for r := range results {
		processed[r.Path] = true
		report.Results = append(report.Results, r)
	}

	// Files never started before cancellation still appear in the report.
	for _, path := range paths {
		if !processed[path] {
			report.Results = append(report.Results, FileResult{
				Path:   path,
				FileID: FileID(path),
				State:  StateDiscovered,
				Reason: "batch canceled",
			})
		}
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Path < report.Results[j].Path
	})
	for i := range report.Results {
		switch report.Results[i].State {
		case StateDone:
			report.Done++
		case StateAborted:
			report.Aborted++
		}
	}
	report.Duration = time.Since(start)

	o.log.Info(ctx, "batch complete",
		logger.String("run_id", report.RunID),
		logger.Int("done", report.Done),
		logger.Int("aborted", report.Aborted),
		logger.Duration("duration", report.Duration),
	)
	return report
}
