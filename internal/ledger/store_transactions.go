package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Create opens a new transaction for an inbound submission. The initial
// history entry records the created status.
func (s *Store) Create(ctx context.Context, sub Submission) (*Transaction, error) {
	if strings.TrimSpace(sub.SubmissionID) == "" {
		return nil, errors.New("submission id is required")
	}
	if strings.TrimSpace(sub.ConversationID) == "" {
		return nil, errors.New("conversation id is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate transaction id: %w", err)
	}

	now := time.Now().UTC()
	history := []HistoryEntry{{Timestamp: now, Status: StatusCreated}}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}

	timestamp := now.Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO transactions (
            id, submission_id, conversation_id, origin_id, kind, status,
            attempts, recovery_json, response, history_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		sub.SubmissionID,
		sub.ConversationID,
		nullableString(sub.OriginID),
		string(sub.Kind),
		StatusCreated,
		0,
		nil,
		nil,
		string(historyJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	return s.Get(ctx, id.String())
}

// Get fetches a transaction by identifier. Missing transactions return
// ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

// FindBySubmission returns the most recent transaction opened for a
// submission identifier, or ErrNotFound.
func (s *Store) FindBySubmission(ctx context.Context, submissionID string) (*Transaction, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE submission_id = ? ORDER BY created_at DESC LIMIT 1`,
		submissionID,
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find by submission: %w", err)
	}
	return txn, nil
}

// MarkProcessing moves a transaction into the processing state.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusProcessing, "", nil)
}

// AttachResponse stores the generated result and moves the transaction to
// response_generated. A response may be attached exactly once.
func (s *Store) AttachResponse(ctx context.Context, id, response string) error {
	return s.withTransaction(ctx, id, func(txn *Transaction) (map[string]any, error) {
		if txn.Response != "" {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrResponseAlreadySet)
		}
		if !canTransition(txn.Status, StatusResponseGenerated) {
			return nil, transitionError(id, txn.Status, StatusResponseGenerated)
		}
		return map[string]any{
			"status":   StatusResponseGenerated,
			"response": response,
		}, nil
	}, StatusResponseGenerated, "response attached")
}

// MarkDelivered records a successful delivery. Valid from response_generated,
// failure_temporary and recovery_in_progress.
func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusDelivered, "", nil)
}

// RecordDeliveryFailure increments the delivery attempt counter. At
// MaxDeliveryAttempts the transaction becomes failure_permanent; otherwise
// it lands in failure_temporary.
func (s *Store) RecordDeliveryFailure(ctx context.Context, id, detail string) (Status, error) {
	var result Status
	err := s.withTransaction(ctx, id, func(txn *Transaction) (map[string]any, error) {
		attempts := txn.Attempts + 1
		target := StatusFailureTemporary
		if attempts >= MaxDeliveryAttempts {
			target = StatusFailurePermanent
		}
		if txn.Status != target && !canTransition(txn.Status, target) {
			return nil, transitionError(id, txn.Status, target)
		}
		result = target
		return map[string]any{
			"status":   target,
			"attempts": attempts,
		}, nil
	}, "", detail)
	if err != nil {
		return "", err
	}
	return result, nil
}

// MarkFailurePermanent forces a temporarily failed transaction into the
// permanent state regardless of the attempt counter. Used for failure
// classifications that must never be retried.
func (s *Store) MarkFailurePermanent(ctx context.Context, id, detail string) error {
	return s.transition(ctx, id, StatusFailurePermanent, detail, nil)
}

// AttachRecoveryData persists the delivery payload needed to finish the
// transaction after a crash. It does not change the status.
func (s *Store) AttachRecoveryData(ctx context.Context, id string, data RecoveryData) error {
	recoveryJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal recovery data: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transactions SET recovery_json = ?, updated_at = ? WHERE id = ?`,
		string(recoveryJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("attach recovery data: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkRecoveryInProgress flags a non-terminal transaction for startup replay.
func (s *Store) MarkRecoveryInProgress(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusRecoveryInProgress, "startup recovery", nil)
}

// FindIncomplete returns transactions eligible for startup replay: a
// non-terminal status with both a response and recovery data already
// persisted.
func (s *Store) FindIncomplete(ctx context.Context) ([]*Transaction, error) {
	statuses := []Status{StatusProcessing, StatusResponseGenerated, StatusFailureTemporary, StatusRecoveryInProgress}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
        WHERE status IN (` + placeholders + `)
          AND response IS NOT NULL AND response != ''
          AND recovery_json IS NOT NULL
        ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find incomplete: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// List returns transactions filtered by status set, newest first. With no
// statuses it returns everything.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Transaction, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + transactionColumns + ` FROM transactions`
	orderClause := ` ORDER BY created_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// SweepTerminal deletes delivered and permanently failed transactions older
// than the cutoff.
func (s *Store) SweepTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM transactions WHERE status IN (?, ?) AND updated_at < ?`,
		StatusDelivered,
		StatusFailurePermanent,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep terminal transactions: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns transaction counts grouped by status.
func (s *Store) Stats(ctx context.Context) (StatsSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM transactions GROUP BY status`)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("transaction stats: %w", err)
	}
	defer rows.Close()

	summary := StatsSummary{ByStatus: make(map[Status]int)}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StatsSummary{}, err
		}
		summary.ByStatus[status] = count
		summary.Total += count
		switch status {
		case StatusDelivered:
			summary.Delivered += count
		case StatusFailurePermanent:
			summary.Failed += count
		}
	}
	return summary, rows.Err()
}

// transition applies a simple status change with history append.
func (s *Store) transition(ctx context.Context, id string, target Status, detail string, extra map[string]any) error {
	return s.withTransaction(ctx, id, func(txn *Transaction) (map[string]any, error) {
		if !canTransition(txn.Status, target) {
			return nil, transitionError(id, txn.Status, target)
		}
		updates := map[string]any{"status": target}
		for k, v := range extra {
			updates[k] = v
		}
		return updates, nil
	}, target, detail)
}

// withTransaction reads the row inside a SQL transaction, lets decide compute
// column updates, appends a history entry and writes everything back.
func (s *Store) withTransaction(
	ctx context.Context,
	id string,
	decide func(*Transaction) (map[string]any, error),
	historyStatus Status,
	detail string,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read transaction: %w", err)
	}

	updates, err := decide(txn)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entryStatus := historyStatus
	if status, ok := updates["status"].(Status); ok {
		entryStatus = status
	}
	if entryStatus == "" {
		entryStatus = txn.Status
	}
	history := append(txn.History, HistoryEntry{Timestamp: now, Status: entryStatus, Detail: detail})
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	setClauses := []string{"history_json = ?", "updated_at = ?"}
	args := []any{string(historyJSON), now.Format(time.RFC3339Nano)}
	for _, column := range []string{"status", "response", "attempts", "recovery_json"} {
		if value, ok := updates[column]; ok {
			setClauses = append(setClauses, column+" = ?")
			args = append(args, value)
		}
	}
	args = append(args, id)

	query := `UPDATE transactions SET ` + strings.Join(setClauses, ", ") + ` WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction update: %w", err)
	}
	return nil
}

func transitionError(id string, from, to Status) error {
	return fmt.Errorf("transaction %s: %s -> %s: %w", id, from, to, ErrInvalidTransition)
}

const transactionColumns = "id, submission_id, conversation_id, origin_id, kind, status, attempts, recovery_json, response, history_json, created_at, updated_at"

func scanTransaction(scanner interface{ Scan(dest ...any) error }) (*Transaction, error) {
	var (
		id             string
		submissionID   string
		conversationID string
		originID       sql.NullString
		kind           string
		statusStr      string
		attempts       int
		recoveryRaw    sql.NullString
		response       sql.NullString
		historyRaw     sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&submissionID,
		&conversationID,
		&originID,
		&kind,
		&statusStr,
		&attempts,
		&recoveryRaw,
		&response,
		&historyRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:             id,
		SubmissionID:   submissionID,
		ConversationID: conversationID,
		OriginID:       originID.String,
		Kind:           MediaKind(kind),
		Status:         Status(statusStr),
		Attempts:       attempts,
		Response:       response.String,
	}

	if recoveryRaw.Valid && recoveryRaw.String != "" {
		var data RecoveryData
		if err := json.Unmarshal([]byte(recoveryRaw.String), &data); err != nil {
			return nil, fmt.Errorf("decode recovery data: %w", err)
		}
		txn.RecoveryData = &data
	}
	if historyRaw.Valid && historyRaw.String != "" {
		if err := json.Unmarshal([]byte(historyRaw.String), &txn.History); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		txn.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		txn.UpdatedAt = updated
	}
	return txn, nil
}
