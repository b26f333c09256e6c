package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/nunotfc/amelie/internal/dispatch"
	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/services"
)

// handleStageFailure applies the shared retry contract: retryable
// classifications get re-enqueued with exponential backoff until the stage
// attempt cap, everything else terminates the transaction with exactly one
// user-facing message and a problem record.
func (m *Manager) handleStageFailure(ctx context.Context, stage string, env Envelope, err error, retry func(Envelope, time.Duration)) {
	kind := services.Classify(err)
	log := m.logger.With(
		logging.String(logging.FieldTransactionID, env.TransactionID),
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Int(logging.FieldAttempt, env.Attempt+1))

	next := env.Attempt + 1
	if services.Retryable(kind) && next < m.maxAttempts() && retry != nil {
		delay := backoffDelay(
			time.Duration(m.cfg.Pipeline.BackoffBaseMs)*time.Millisecond,
			time.Duration(m.cfg.Pipeline.BackoffCapMs)*time.Millisecond,
			env.Attempt,
		)
		log.Warn("stage attempt failed, retrying",
			logging.Duration("retry_in", delay),
			logging.Error(err))
		env.Attempt = next
		retry(env, delay)
		return
	}

	log.Error("stage failed terminally", logging.Error(err))
	m.stats[stage].failed.Add(1)

	status, recordErr := m.store.RecordDeliveryFailure(ctx, env.TransactionID, err.Error())
	if recordErr != nil {
		m.logLedgerMiss("record stage failure", env.TransactionID, recordErr)
	} else if status != ledger.StatusFailurePermanent {
		// Stage retries are exhausted (or the classification forbids them):
		// the transaction can never produce a response.
		if err := m.store.MarkFailurePermanent(ctx, env.TransactionID, string(kind)); err != nil {
			m.logLedgerMiss("mark failure permanent", env.TransactionID, err)
		}
	}

	if err := m.store.RecordProblem(ctx, ledger.ProblemJob{
		TransactionID: env.TransactionID,
		Stage:         stage,
		ErrorKind:     string(kind),
		Detail:        err.Error(),
		Attempts:      next,
	}); err != nil {
		m.logger.Error("record problem job", logging.Error(err))
	}

	m.notifyFailure(ctx, env, kind)
}

// notifyFailure sends the localized terminal-failure message. Raw error text
// never reaches the conversation.
func (m *Manager) notifyFailure(ctx context.Context, env Envelope, kind services.Kind) {
	message := m.failureMessage(kind)
	if err := m.sendToConversation(ctx, env, message); err != nil {
		m.logger.Warn("failure notice not delivered",
			logging.String(logging.FieldTransactionID, env.TransactionID),
			logging.Error(err))
	}
}

func (m *Manager) failureMessage(kind services.Kind) string {
	return dispatch.FailureMessage(m.locale(), kind)
}

func (m *Manager) sendToConversation(ctx context.Context, env Envelope, text string) error {
	if env.OriginID != "" {
		if err := m.sender.ReplyText(ctx, env.ConversationID, env.OriginID, text); err == nil {
			return nil
		}
	}
	return m.sender.SendText(ctx, env.ConversationID, text)
}

// removeLocal deletes a local scratch file best-effort.
func (m *Manager) removeLocal(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("remove local artifact", logging.String("path", path), logging.Error(err))
	}
}

// deleteRemote removes an uploaded file best-effort. Failure to delete is
// logged, never escalated.
func (m *Manager) deleteRemote(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := m.inference.DeleteFile(ctx, name); err != nil {
		m.logger.Warn("delete remote artifact", logging.String("file", name), logging.Error(err))
	}
}
