package dispatch

import (
	"context"
	"errors"

	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/logging"
)

// SweepOutbox retries every pending notification once. Delivered records are
// resolved and their transactions completed; failures bump the attempt
// counter until the record is abandoned.
func (d *Dispatcher) SweepOutbox(ctx context.Context) (delivered, remaining int, err error) {
	pending, err := d.store.PendingNotifications(ctx, 0)
	if err != nil {
		return 0, 0, err
	}

	for _, record := range pending {
		if ctx.Err() != nil {
			return delivered, remaining, ctx.Err()
		}

		originID := ""
		if record.RecoveryData != nil {
			originID = record.RecoveryData.OriginID
		}
		sendErr := d.send(ctx, record.Destination, originID, record.Content)
		if sendErr == nil {
			if err := d.store.ResolveNotification(ctx, record.ID); err != nil {
				d.logger.Error("resolve notification", logging.Int64("notification_id", record.ID), logging.Error(err))
			}
			if record.TransactionID != "" {
				if err := d.store.MarkDelivered(ctx, record.TransactionID); err != nil {
					d.logLedgerMiss(d.logger, "mark delivered from outbox", err)
				}
			}
			delivered++
			continue
		}

		status, attemptErr := d.store.RecordNotificationAttempt(ctx, record.ID, d.maxOutboxAttempts)
		if attemptErr != nil {
			d.logger.Error("record notification attempt", logging.Int64("notification_id", record.ID), logging.Error(attemptErr))
			continue
		}
		if status == ledger.DeliveryAbandoned {
			d.logger.Error("notification abandoned",
				logging.Int64("notification_id", record.ID),
				logging.String(logging.FieldTransactionID, record.TransactionID),
				logging.String(logging.FieldEventType, "outbox_abandoned"))
			continue
		}
		remaining++
	}
	return delivered, remaining, nil
}

// ReplayIncomplete finishes transactions interrupted by a crash: anything
// non-terminal that already has a response and recovery data gets its result
// delivered without reprocessing the media. Missing transactions are logged
// and skipped.
func (d *Dispatcher) ReplayIncomplete(ctx context.Context) (int, error) {
	incomplete, err := d.store.FindIncomplete(ctx)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, txn := range incomplete {
		if ctx.Err() != nil {
			return replayed, ctx.Err()
		}

		log := d.logger.With(logging.String(logging.FieldTransactionID, txn.ID))
		if txn.Status != ledger.StatusRecoveryInProgress {
			if err := d.store.MarkRecoveryInProgress(ctx, txn.ID); err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					log.Warn("transaction vanished before replay")
					continue
				}
				log.Error("mark recovery in progress", logging.Error(err))
				continue
			}
		}

		destination := txn.ConversationID
		originID := txn.OriginID
		if txn.RecoveryData != nil {
			destination = txn.RecoveryData.Destination
			if txn.RecoveryData.OriginID != "" {
				originID = txn.RecoveryData.OriginID
			}
		}

		if sendErr := d.send(ctx, destination, originID, txn.Response); sendErr != nil {
			log.Warn("replay delivery failed",
				logging.String(logging.FieldEventType, "recovery_delivery_failed"),
				logging.Error(sendErr))
			if _, err := d.store.RecordDeliveryFailure(ctx, txn.ID, sendErr.Error()); err != nil {
				d.logLedgerMiss(log, "record replay failure", err)
			}
			continue
		}

		if err := d.store.MarkDelivered(ctx, txn.ID); err != nil {
			d.logLedgerMiss(log, "mark delivered from replay", err)
			continue
		}
		log.Info("interrupted transaction completed",
			logging.String(logging.FieldEventType, "recovery_delivered"))
		replayed++
	}
	return replayed, nil
}
