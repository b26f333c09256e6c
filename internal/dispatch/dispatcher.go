package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/services/transport"
)

// Dispatcher pushes generated results back to conversations and owns the
// durable fallback path: when the bridge is unreachable the result lands in
// the ledger outbox instead of being lost.
type Dispatcher struct {
	store  *ledger.Store
	sender transport.Sender
	logger *slog.Logger

	maxOutboxAttempts int
}

// New constructs a dispatcher.
func New(store *ledger.Store, sender transport.Sender, logger *slog.Logger, maxOutboxAttempts int) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxOutboxAttempts <= 0 {
		maxOutboxAttempts = 5
	}
	return &Dispatcher{
		store:             store,
		sender:            sender,
		logger:            logging.NewComponentLogger(logger, "dispatch"),
		maxOutboxAttempts: maxOutboxAttempts,
	}
}

// Deliver sends content for a transaction and records the outcome in the
// ledger. It tries a quoted reply first, then a plain send. When both fail
// the result is persisted as a pending notification and false is returned;
// the transaction is then completed later by the outbox sweep.
func (d *Dispatcher) Deliver(ctx context.Context, txn *ledger.Transaction, content string) bool {
	log := d.logger.With(logging.String(logging.FieldTransactionID, txn.ID),
		logging.String(logging.FieldConversationID, txn.ConversationID))

	sendErr := d.send(ctx, txn.ConversationID, txn.OriginID, content)
	if sendErr == nil {
		if err := d.store.MarkDelivered(ctx, txn.ID); err != nil {
			d.logLedgerMiss(log, "mark delivered", err)
		}
		log.Info("result delivered", logging.String(logging.FieldEventType, "delivery_succeeded"))
		return true
	}

	log.Warn("delivery failed, persisting to outbox",
		logging.String(logging.FieldEventType, "delivery_failed"),
		logging.Error(sendErr))

	status, err := d.store.RecordDeliveryFailure(ctx, txn.ID, sendErr.Error())
	if err != nil {
		d.logLedgerMiss(log, "record delivery failure", err)
	}
	if status == ledger.StatusFailurePermanent {
		log.Error("delivery permanently failed",
			logging.String(logging.FieldEventType, "delivery_abandoned"))
		return false
	}

	if _, err := d.store.EnqueueNotification(ctx, ledger.PendingNotification{
		TransactionID: txn.ID,
		Destination:   txn.ConversationID,
		Content:       content,
		RecoveryData:  &ledger.RecoveryData{Destination: txn.ConversationID, OriginID: txn.OriginID},
	}); err != nil {
		log.Error("enqueue pending notification", logging.Error(err))
	}
	return false
}

// DeliverFailure sends the localized failure message for a classification.
// Failure notices are best-effort and never enter the outbox.
func (d *Dispatcher) DeliverFailure(ctx context.Context, txn *ledger.Transaction, locale string, message string) {
	if message == "" {
		return
	}
	if err := d.send(ctx, txn.ConversationID, txn.OriginID, message); err != nil {
		d.logger.Warn("failure notice not delivered",
			logging.String(logging.FieldTransactionID, txn.ID),
			logging.Error(err))
	}
}

// send tries a quoted reply first and falls back to a plain message.
func (d *Dispatcher) send(ctx context.Context, conversationID, originID, content string) error {
	if originID != "" {
		if err := d.sender.ReplyText(ctx, conversationID, originID, content); err == nil {
			return nil
		}
	}
	return d.sender.SendText(ctx, conversationID, content)
}

// logLedgerMiss keeps ledger bookkeeping failures out of the delivery path:
// a missing transaction is logged and skipped, anything else is an error.
func (d *Dispatcher) logLedgerMiss(log *slog.Logger, op string, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		log.Warn("transaction missing from ledger", logging.String("op", op))
		return
	}
	log.Error("ledger update failed", logging.String("op", op), logging.Error(err))
}
