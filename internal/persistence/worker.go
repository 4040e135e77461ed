package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"MarginCore/internal/ledger"
	"MarginCore/internal/observability"
)

// PersistenceWorker drains the journal channel and batch-writes to Postgres.
// The settlement loop sends on the channel with blocking sends, so if this
// worker falls behind the loop stalls rather than losing journals.
type PersistenceWorker struct {
	writer       *JournalWriter
	inputChan    <-chan ledger.Journal
	outputChan   chan<- ledger.Journal
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

// NewPersistenceWorker builds a worker. outputChan may be nil; when set,
// journals are forwarded to it after the batch commits, which is how the
// outbound publisher only sees durable journals.
func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan ledger.Journal,
	outputChan chan<- ledger.Journal,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewJournalWriter(db),
		inputChan:    inputChan,
		outputChan:   outputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Writer returns the underlying journal writer.
func (pw *PersistenceWorker) Writer() *JournalWriter { return pw.writer }

// Run batches incoming journals and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled or the input channel
// closes; remaining journals are flushed on the way out.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := make([]ledger.Journal, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case j, ok := <-pw.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			batch = append(batch, j)
			if len(batch) >= pw.batchSize {
				pw.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				pw.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff and never drops the batch.
// It retries until the write succeeds or, on cancellation, makes one last
// attempt with a background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch []ledger.Journal) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, journals=%d)",
				attempt, backoff, len(batch))
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush on shutdown failed: %v", err)
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return
		}

		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, batch []ledger.Journal) error {
	start := time.Now()

	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	inserted, err := pw.writer.WriteJournalBatch(ctx, tx, batch)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDuration.Observe(time.Since(start).Seconds())
		pw.metrics.PersistRecordsWritten.Add(float64(inserted))
		if conflicts := int64(len(batch)) - inserted; conflicts > 0 {
			pw.metrics.PersistConflicts.Add(float64(conflicts))
		}
	}

	if pw.outputChan != nil {
		for _, j := range batch {
			select {
			case pw.outputChan <- j:
			case <-ctx.Done():
				return fmt.Errorf("forward after flush: %w", ctx.Err())
			}
		}
	}

	return nil
}
