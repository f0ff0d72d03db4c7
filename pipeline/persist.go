package pipeline

import (
	"context"

	"github.com/nevindra/kertas"
)

// saveDocument writes the document record, retrying transient storage
// failures with backoff.
func (p *Pipeline) saveDocument(ctx context.Context, doc *kertas.Document) error {
	var lastErr error
	for attempt := 0; attempt < p.persistAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, p.persistBaseDelay, attempt-1); err != nil {
				return err
			}
		}
		if err := p.store.SaveDocument(ctx, doc); err != nil {
			lastErr = &kertas.ErrPersist{Op: "save document", Err: err}
			p.logger.Warn("document save failed",
				"document_id", doc.ID, "attempt", attempt+1, "error", err)
			continue
		}
		return nil
	}
	return lastErr
}

// persistChunks retires the document's previous chunk set and writes
// the new one, retrying with backoff. The retire-then-save pair runs
// per attempt so a half-applied attempt is repaired by the next.
func (p *Pipeline) persistChunks(ctx context.Context, set *kertas.ChunkSet) error {
	var lastErr error
	for attempt := 0; attempt < p.persistAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, p.persistBaseDelay, attempt-1); err != nil {
				return err
			}
		}
		if err := p.store.RetireChunks(ctx, set.DocumentID); err != nil {
			lastErr = &kertas.ErrPersist{Op: "retire chunks", Err: err}
			p.logger.Warn("chunk retirement failed",
				"document_id", set.DocumentID, "attempt", attempt+1, "error", err)
			continue
		}
		if err := p.store.SaveChunks(ctx, set); err != nil {
			lastErr = &kertas.ErrPersist{Op: "save chunks", Err: err}
			p.logger.Warn("chunk save failed",
				"document_id", set.DocumentID, "attempt", attempt+1, "error", err)
			continue
		}
		return nil
	}
	return lastErr
}
