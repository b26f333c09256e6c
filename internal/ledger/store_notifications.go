package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnqueueNotification stores a result that could not be delivered so the
// outbox sweep can retry it later.
func (s *Store) EnqueueNotification(ctx context.Context, n PendingNotification) (*PendingNotification, error) {
	if n.Destination == "" {
		return nil, errors.New("destination is required")
	}

	var recoveryJSON any
	if n.RecoveryData != nil {
		raw, err := json.Marshal(n.RecoveryData)
		if err != nil {
			return nil, fmt.Errorf("marshal recovery data: %w", err)
		}
		recoveryJSON = string(raw)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pending_notifications (
            transaction_id, destination, content, recovery_json,
            attempts, delivery_status, created_at, last_attempt_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.TransactionID,
		n.Destination,
		n.Content,
		recoveryJSON,
		0,
		DeliveryPending,
		now.Format(time.RFC3339Nano),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pending notification: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetNotification(ctx, id)
}

// GetNotification fetches a pending notification by identifier.
func (s *Store) GetNotification(ctx context.Context, id int64) (*PendingNotification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM pending_notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// PendingNotifications returns undelivered records ordered oldest first.
func (s *Store) PendingNotifications(ctx context.Context, limit int) ([]*PendingNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM pending_notifications
        WHERE delivery_status = ? ORDER BY created_at`
	args := []any{DeliveryPending}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	var pending []*PendingNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, n)
	}
	return pending, rows.Err()
}

// ResolveNotification removes a record after successful delivery.
func (s *Store) ResolveNotification(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("resolve notification: %w", err)
	}
	return nil
}

// RecordNotificationAttempt increments the attempt counter after a failed
// redelivery. When maxAttempts is reached the record is marked abandoned and
// excluded from future sweeps.
func (s *Store) RecordNotificationAttempt(ctx context.Context, id int64, maxAttempts int) (DeliveryStatus, error) {
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return "", err
	}

	attempts := n.Attempts + 1
	status := DeliveryPending
	if maxAttempts > 0 && attempts >= maxAttempts {
		status = DeliveryAbandoned
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE pending_notifications SET attempts = ?, delivery_status = ?, last_attempt_at = ? WHERE id = ?`,
		attempts,
		status,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return "", fmt.Errorf("record notification attempt: %w", err)
	}
	return status, nil
}

// SweepAbandonedNotifications deletes abandoned records older than the cutoff.
func (s *Store) SweepAbandonedNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM pending_notifications WHERE delivery_status = ? AND created_at < ?`,
		DeliveryAbandoned,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep abandoned notifications: %w", err)
	}
	return res.RowsAffected()
}

const notificationColumns = "id, transaction_id, destination, content, recovery_json, attempts, delivery_status, created_at, last_attempt_at"

func scanNotification(scanner interface{ Scan(dest ...any) error }) (*PendingNotification, error) {
	var (
		id            int64
		transactionID string
		destination   string
		content       string
		recoveryRaw   sql.NullString
		attempts      int
		statusStr     string
		createdRaw    sql.NullString
		lastRaw       sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&transactionID,
		&destination,
		&content,
		&recoveryRaw,
		&attempts,
		&statusStr,
		&createdRaw,
		&lastRaw,
	); err != nil {
		return nil, err
	}

	n := &PendingNotification{
		ID:            id,
		TransactionID: transactionID,
		Destination:   destination,
		Content:       content,
		Attempts:      attempts,
		Status:        DeliveryStatus(statusStr),
	}
	if recoveryRaw.Valid && recoveryRaw.String != "" {
		var data RecoveryData
		if err := json.Unmarshal([]byte(recoveryRaw.String), &data); err != nil {
			return nil, fmt.Errorf("decode recovery data: %w", err)
		}
		n.RecoveryData = &data
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		n.CreatedAt = created
	}
	if lastRaw.Valid {
		if last, err := parseTimeString(lastRaw.String); err == nil {
			n.LastAttemptAt = &last
		}
	}
	return n, nil
}
