package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/nunotfc/amelie/internal/breaker"
	"github.com/nunotfc/amelie/internal/convconfig"
	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/services"
	"github.com/nunotfc/amelie/internal/services/inference"
)

// runAnalysis generates the description for a ready remote file and hands
// the result to the dispatcher. Conversation settings are read here, fresh,
// because they may have changed since the submission was enqueued.
func (m *Manager) runAnalysis(ctx context.Context, job AnalysisJob) {
	log := m.logger.With(
		logging.String(logging.FieldTransactionID, job.TransactionID),
		logging.String(logging.FieldStage, StageAnalysis))

	settings := convconfig.DefaultSettings(job.ConversationID)
	if m.settings != nil {
		loaded, err := m.settings.Get(ctx, job.ConversationID)
		if err != nil {
			log.Warn("read conversation settings, using defaults", logging.Error(err))
		} else {
			settings = loaded
		}
	}

	if !m.kindEnabled(job.MimeType, settings) {
		log.Info("media kind disabled for conversation, dropping",
			logging.String(logging.FieldEventType, "analysis_skipped"))
		m.deleteRemote(ctx, job.FileName)
		m.removeLocal(job.ContentRef)
		if _, err := m.store.RecordDeliveryFailure(ctx, job.TransactionID, "media kind disabled by conversation settings"); err != nil {
			m.logLedgerMiss("record disabled kind", job.TransactionID, err)
		} else if err := m.store.MarkFailurePermanent(ctx, job.TransactionID, "disabled"); err != nil {
			m.logLedgerMiss("mark disabled permanent", job.TransactionID, err)
		}
		return
	}

	if err := m.brk.Allow(); err != nil {
		m.cleanupArtifacts(ctx, job, services.KindUnavailable)
		m.handleStageFailure(ctx, StageAnalysis, job.Envelope,
			services.NewError(services.KindUnavailable, "analysis stage", "inference circuit open", breaker.ErrOpen), nil)
		return
	}

	prompt := strings.TrimSpace(job.UserPrompt)
	if prompt == "" {
		prompt = inference.PromptFor(job.MimeType, string(settings.Mode))
	}

	callCtx, cancel := context.WithTimeout(ctx, m.analysisTimeout(job.MimeType))
	text, err := m.inference.Generate(callCtx, inference.GenerateRequest{
		FileURI:   job.FileURI,
		MimeType:  job.MimeType,
		Prompt:    prompt,
		Verbosity: string(settings.Mode),
	})
	cancel()

	if err != nil {
		kind := services.Classify(err)
		if kind != services.KindSafetyBlocked {
			m.brk.Failure()
		}
		willRetry := services.Retryable(kind) && job.Attempt+1 < m.maxAttempts()
		if !willRetry {
			m.cleanupArtifacts(ctx, job, kind)
		}
		retry := func(env Envelope, delay time.Duration) {
			next := job
			next.Envelope = env
			enqueueAfter(m, m.analysisQ, next, delay)
		}
		m.handleStageFailure(ctx, StageAnalysis, job.Envelope, err, retry)
		return
	}
	m.brk.Success()

	if err := m.store.AttachResponse(ctx, job.TransactionID, text); err != nil {
		m.logLedgerMiss("attach response", job.TransactionID, err)
	}
	if err := m.store.AttachRecoveryData(ctx, job.TransactionID, ledger.RecoveryData{
		Destination: job.ConversationID,
		OriginID:    job.OriginID,
		ContentRef:  job.FileURI,
		MimeType:    job.MimeType,
	}); err != nil {
		m.logLedgerMiss("attach recovery data", job.TransactionID, err)
	}

	// Artifacts go unconditionally on the success path.
	m.deleteRemote(ctx, job.FileName)
	m.removeLocal(job.ContentRef)

	txn, err := m.store.Get(ctx, job.TransactionID)
	if err != nil {
		m.logLedgerMiss("load for dispatch", job.TransactionID, err)
		return
	}
	m.stats[StageAnalysis].completed.Add(1)
	log.Info("analysis complete", logging.String(logging.FieldEventType, "analysis_succeeded"))
	m.dispatcher.Deliver(ctx, txn, text)
}

func (m *Manager) kindEnabled(mimeType string, settings convconfig.Settings) bool {
	switch kindFromMime(mimeType) {
	case ledger.KindImage:
		return settings.ImageEnabled
	case ledger.KindVideo:
		return settings.VideoEnabled
	default:
		return true
	}
}

func (m *Manager) analysisTimeout(mimeType string) time.Duration {
	if kindFromMime(mimeType) == ledger.KindVideo {
		return time.Duration(m.cfg.Pipeline.VideoTimeoutSeconds) * time.Second
	}
	return time.Duration(m.cfg.Pipeline.ImageTimeoutSeconds) * time.Second
}

// cleanupArtifacts removes local and remote artifacts on terminal failure
// paths. Safety blocks keep the local file for audit.
func (m *Manager) cleanupArtifacts(ctx context.Context, job AnalysisJob, kind services.Kind) {
	m.deleteRemote(ctx, job.FileName)
	if kind != services.KindSafetyBlocked {
		m.removeLocal(job.ContentRef)
	}
}
