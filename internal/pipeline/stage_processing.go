package pipeline

import (
	"context"
	"time"

	"github.com/nunotfc/amelie/internal/dispatch"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/services"
	"github.com/nunotfc/amelie/internal/services/inference"
)

// runProcessingCheck polls the remote file state. While the file is still
// processing the job reschedules itself with exponential backoff; the delay
// runs on a timer, not a worker slot. Hard stops (expiry heuristic, poll
// cap) terminate with the expired classification and best-effort remote
// cleanup.
func (m *Manager) runProcessingCheck(ctx context.Context, job ProcessingCheckJob) {
	log := m.logger.With(
		logging.String(logging.FieldTransactionID, job.TransactionID),
		logging.String(logging.FieldStage, StageProcessingCheck),
		logging.Int("poll", job.Poll))

	if reason, expired := m.expired(job); expired {
		log.Warn("remote file presumed expired",
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "processing_expired"))
		m.deleteRemote(ctx, job.FileName)
		m.removeLocal(job.ContentRef)
		m.handleStageFailure(ctx, StageProcessingCheck, job.Envelope,
			services.NewError(services.KindFileExpired, "processing check", reason, nil), nil)
		return
	}

	ref, err := m.inference.FileStatus(ctx, job.FileName)
	if err != nil {
		if ref.State == inference.FileFailed {
			// The backend gave a definitive verdict; retrying cannot help.
			m.deleteRemote(ctx, job.FileName)
			m.removeLocal(job.ContentRef)
			m.handleStageFailure(ctx, StageProcessingCheck, job.Envelope, err, nil)
			return
		}
		m.deleteRemoteIfTerminal(ctx, job, err)
		retry := func(env Envelope, delay time.Duration) {
			next := job
			next.Envelope = env
			enqueueAfter(m, m.processingQ, next, delay)
		}
		m.handleStageFailure(ctx, StageProcessingCheck, job.Envelope, err, retry)
		return
	}

	switch ref.State {
	case inference.FileProcessing:
		m.reschedulePoll(ctx, job)
	case inference.FileActive, inference.FileSucceeded:
		log.Info("remote file ready", logging.String(logging.FieldEventType, "processing_ready"))
		m.stats[StageProcessingCheck].completed.Add(1)
		enqueue(m, ctx, m.analysisQ, AnalysisJob{
			Envelope:   job.Envelope,
			FileName:   job.FileName,
			FileURI:    firstNonEmpty(ref.URI, job.FileURI),
			UploadedAt: job.UploadedAt,
		})
	default:
		// Unknown states are treated like a failed remote job.
		m.deleteRemote(ctx, job.FileName)
		m.removeLocal(job.ContentRef)
		m.handleStageFailure(ctx, StageProcessingCheck, job.Envelope,
			services.NewError(services.KindGeneral, "processing check", "remote state "+string(ref.State), nil), nil)
	}
}

// expired implements the hard stops that run independently of the backoff
// counter. The elapsed ceiling only fires once a minimum number of polls has
// confirmed the backend really is not answering.
func (m *Manager) expired(job ProcessingCheckJob) (string, bool) {
	elapsed := time.Since(job.UploadedAt)
	ceiling := time.Duration(m.cfg.Pipeline.ExpirySeconds) * time.Second
	if ceiling > 0 && elapsed >= ceiling && job.Poll >= m.cfg.Pipeline.ExpiryMinAttempts {
		return "elapsed ceiling reached", true
	}
	if job.Poll > m.cfg.Pipeline.PollHardCapAttempts {
		return "poll cap reached", true
	}
	return "", false
}

func (m *Manager) reschedulePoll(ctx context.Context, job ProcessingCheckJob) {
	job.Poll++

	now := time.Now().UTC()
	window := time.Duration(m.cfg.Pipeline.ProgressWindowSecond) * time.Second
	if window > 0 && now.Sub(job.LastProgressAt) >= window {
		job.LastProgressAt = now
		m.sendNotice(ctx, job.Envelope, dispatch.ProgressMessage(m.locale()))
	}
	if job.Poll == m.cfg.Pipeline.SlowNoticeAttempt {
		m.sendNotice(ctx, job.Envelope, dispatch.SlowMessage(m.locale()))
	}

	delay := backoffDelay(
		time.Duration(m.cfg.Pipeline.PollBaseMs)*time.Millisecond,
		time.Duration(m.cfg.Pipeline.PollCapMs)*time.Millisecond,
		job.Poll,
	)
	enqueueAfter(m, m.processingQ, job, delay)
}

// deleteRemoteIfTerminal cleans up the remote file when a status failure
// will not be retried.
func (m *Manager) deleteRemoteIfTerminal(ctx context.Context, job ProcessingCheckJob, err error) {
	kind := services.Classify(err)
	if !services.Retryable(kind) || job.Attempt+1 >= m.maxAttempts() {
		m.deleteRemote(ctx, job.FileName)
		m.removeLocal(job.ContentRef)
	}
}

func (m *Manager) sendNotice(ctx context.Context, env Envelope, text string) {
	if err := m.sendToConversation(ctx, env, text); err != nil {
		m.logger.Debug("progress notice not delivered",
			logging.String(logging.FieldTransactionID, env.TransactionID),
			logging.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
