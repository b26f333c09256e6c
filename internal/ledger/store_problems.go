package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordProblem stores a terminally failed stage job for inspection.
// Payloads are never persisted here; only the classification and detail.
func (s *Store) RecordProblem(ctx context.Context, p ProblemJob) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO problem_jobs (
            transaction_id, stage, error_kind, detail, attempts, created_at
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		p.TransactionID,
		p.Stage,
		p.ErrorKind,
		nullableString(p.Detail),
		p.Attempts,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert problem job: %w", err)
	}
	return nil
}

// Problems returns recorded problem jobs newest first.
func (s *Store) Problems(ctx context.Context, limit int) ([]*ProblemJob, error) {
	query := `SELECT id, transaction_id, stage, error_kind, detail, attempts, created_at
        FROM problem_jobs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list problem jobs: %w", err)
	}
	defer rows.Close()

	var problems []*ProblemJob
	for rows.Next() {
		var (
			p          ProblemJob
			detail     sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.Stage, &p.ErrorKind, &detail, &p.Attempts, &createdRaw); err != nil {
			return nil, err
		}
		p.Detail = detail.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			p.CreatedAt = created
		}
		problems = append(problems, &p)
	}
	return problems, rows.Err()
}

// SweepProblems deletes problem records older than the cutoff.
func (s *Store) SweepProblems(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM problem_jobs WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep problem jobs: %w", err)
	}
	return res.RowsAffected()
}
