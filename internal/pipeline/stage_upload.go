package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/nunotfc/amelie/internal/breaker"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/services"
)

// runUpload pushes the local media to the backend file store and hands the
// remote reference to the processing-check queue.
func (m *Manager) runUpload(ctx context.Context, job UploadJob) {
	log := m.logger.With(
		logging.String(logging.FieldTransactionID, job.TransactionID),
		logging.String(logging.FieldStage, StageUpload))

	if job.Attempt == 0 {
		if err := m.store.MarkProcessing(ctx, job.TransactionID); err != nil {
			m.logLedgerMiss("mark processing", job.TransactionID, err)
		}
	}

	data, err := os.ReadFile(job.ContentRef)
	if err != nil {
		m.removeLocal(job.ContentRef)
		m.handleStageFailure(ctx, StageUpload, job.Envelope,
			services.NewError(services.KindGeneral, "upload stage", "read local media", err), nil)
		return
	}

	if err := m.brk.Allow(); err != nil {
		// Circuit open is terminal for this attempt and never counts as a
		// content failure.
		m.removeLocal(job.ContentRef)
		m.handleStageFailure(ctx, StageUpload, job.Envelope,
			services.NewError(services.KindUnavailable, "upload stage", "inference circuit open", breaker.ErrOpen), nil)
		return
	}

	ref, err := m.inference.Upload(ctx, data, job.MimeType)
	if err != nil {
		kind := services.Classify(err)
		retry := func(env Envelope, delay time.Duration) {
			enqueueAfter(m, m.uploadQ, UploadJob{Envelope: env}, delay)
		}
		if kind == services.KindSafetyBlocked {
			// Content rejection, not a service fault: keep the local file
			// for audit, never retry, and leave the breaker alone.
			retry = nil
		} else {
			m.brk.Failure()
			m.removeLocal(job.ContentRef)
		}
		m.handleStageFailure(ctx, StageUpload, job.Envelope, err, retry)
		return
	}
	m.brk.Success()

	log.Info("media uploaded",
		logging.String("file", ref.Name),
		logging.String(logging.FieldEventType, "upload_succeeded"))
	m.stats[StageUpload].completed.Add(1)

	now := time.Now().UTC()
	enqueue(m, ctx, m.processingQ, ProcessingCheckJob{
		Envelope:       job.Envelope,
		FileName:       ref.Name,
		FileURI:        ref.URI,
		UploadedAt:     now,
		LastProgressAt: now,
	})
}
