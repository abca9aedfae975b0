package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/legalparse/internal/hierarchy"
	"github.com/dgallion1/legalparse/internal/pathstore"
	"github.com/dgallion1/legalparse/internal/source"
)

// Worker processes a single act ingestion job.
type Worker struct {
	parser *hierarchy.Parser
	store  pathstore.Store
	stats  *ParseStats
	log    *slog.Logger
	retry  retrier

	maxConcurrentStore int
	textFallback       string
}

func NewWorker(p *hierarchy.Parser, store pathstore.Store, stats *ParseStats, log *slog.Logger, maxStore int, textFallback string) *Worker {
	return &Worker{
		parser:             p,
		store:              store,
		stats:              stats,
		log:                log,
		retry:              retrier{log: log, backoff: Backoff},
		maxConcurrentStore: maxStore,
		textFallback:       textFallback,
	}
}

// Process runs the full ingest pipeline for a job: read lines, parse, dedup,
// store.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	// Phase 1: Read
	job.SetStatus(StatusReading, "reading")
	src, err := source.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "reading")
		return
	}
	if ts, ok := src.(*source.TextSource); ok {
		ts.Fallback = w.textFallback
	}

	doc, err := src.Read(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("read failed", "error", err)
		job.AddError(fmt.Sprintf("read: %s", err))
		job.SetStatus(StatusFailed, "reading")
		return
	}
	job.SetFileData(nil)
	job.SetTitle(doc.Title)
	log.Info("extracted lines", "lines", len(doc.Lines), "encoding", doc.Encoding)

	// Phase 2: Parse
	job.SetStatus(StatusParsing, "parsing")
	start := time.Now()
	res, err := w.parser.Parse(doc.Lines)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	w.stats.Observe(time.Since(start), len(doc.Lines))
	job.SetParsed(res)
	log.Info("parsed act", "nodes", res.Tree.Len(), "diagnostics", len(res.Diagnostics))

	// Phase 2.5: Dedup check
	hash := LinesHash(doc.Lines)
	job.SetContentHash(hash)
	existing, found, err := w.store.FindByHash(ctx, hash)
	if err != nil {
		log.Warn("dedup check failed, proceeding", "error", err)
	} else if found && existing != job.DocID {
		log.Info("duplicate act, skipping", "existing_doc_id", existing)
		job.SetDuplicateOf(existing)
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	// Phase 3: Store, replacing any earlier version of the document.
	job.SetStatus(StatusStoring, "storing")
	if err := w.retry.do(ctx, func() error { return w.store.DeleteDocument(ctx, job.DocID) }); err != nil {
		log.Warn("clearing previous version failed, proceeding", "error", err)
	}
	out, err := pathstore.Materialize(ctx, w.store, job.DocID, res.Tree, pathstore.MaterializeOptions{
		Concurrency: w.maxConcurrentStore,
		Retry:       w.retry.do,
	})
	if err != nil {
		log.Error("store interrupted", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	job.AddStored(out.Stored)
	job.SetRootRecord(out.RootID)
	hadErrors := len(out.Errors) > 0
	for _, e := range out.Errors {
		log.Error("store failed", "error", e)
		job.AddError(fmt.Sprintf("store %s", e))
	}
	if out.Skipped > 0 {
		job.AddError(fmt.Sprintf("skipped %d nodes below failed parents", out.Skipped))
	}
	log.Info("storage complete", "stored", out.Stored, "skipped", out.Skipped)

	// Write document metadata.
	snap := job.Snapshot()
	kinds := make(map[string]int)
	for k, n := range res.Tree.Stats() {
		kinds[string(k)] = n
	}
	metaErr := w.retry.do(ctx, func() error {
		return w.store.PutMeta(ctx, pathstore.DocumentMeta{
			DocumentID:  job.DocID,
			Filename:    job.Filename,
			Title:       snap.Title,
			ContentHash: hash,
			Grammar:     w.parser.Grammar().Name(),
			Lines:       res.Lines,
			Nodes:       res.Tree.Len(),
			Diagnostics: len(res.Diagnostics),
			Kinds:       kinds,
			RootID:      out.RootID,
			CreatedAt:   job.CreatedAt,
		})
	})
	if metaErr != nil {
		log.Error("meta write failed", "error", metaErr)
		job.AddError(fmt.Sprintf("meta: %s", metaErr))
		hadErrors = true
	}

	// Write hash index for dedup, only for fully stored acts.
	if !hadErrors {
		if err := w.retry.do(ctx, func() error { return w.store.PutHash(ctx, hash, job.DocID) }); err != nil {
			log.Error("hash index write failed", "error", err)
		}
	}

	switch {
	case hadErrors && out.Stored > 0:
		job.SetStatus(StatusPartial, "done")
	case hadErrors:
		job.SetStatus(StatusFailed, "storing")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}
