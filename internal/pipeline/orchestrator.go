package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/legalparse/internal/config"
	"github.com/dgallion1/legalparse/internal/hierarchy"
	"github.com/dgallion1/legalparse/internal/pathstore"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("job queue is full")

// Orchestrator manages the act ingestion pipeline.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	parser *hierarchy.Parser
	store  pathstore.Store
	stats  *ParseStats
	log    *slog.Logger
	cfg    config.Config

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, p *hierarchy.Parser, store pathstore.Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.MaxQueueSize),
		parser: p,
		store:  store,
		stats:  NewParseStats(cfg.StatsWindow),
		log:    log,
		cfg:    cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.parser, o.store, o.stats, o.log, o.cfg.MaxConcurrentStore, o.cfg.TextFallback)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}
		close(o.queue)
		o.wg.Wait()
	})
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// Parse runs a synchronous parse and records its latency.
func (o *Orchestrator) Parse(lines []string) (*hierarchy.Result, error) {
	start := time.Now()
	res, err := o.parser.Parse(lines)
	if err != nil {
		return nil, err
	}
	o.stats.Observe(time.Since(start), len(lines))
	return res, nil
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Parser returns the shared act parser.
func (o *Orchestrator) Parser() *hierarchy.Parser {
	return o.parser
}

// Stats returns the parse latency tracker.
func (o *Orchestrator) Stats() *ParseStats {
	return o.stats
}

// DeleteDocument removes every stored record of docID.
func (o *Orchestrator) DeleteDocument(ctx context.Context, docID string) error {
	r := retrier{log: o.log, backoff: Backoff}
	return r.do(ctx, func() error { return o.store.DeleteDocument(ctx, docID) })
}
