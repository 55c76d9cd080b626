package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrExamNotFound = errors.New("exam not found")

// Row is one completed attempt as stored.
type Row struct {
	AttemptID   int64
	StudentName string
	Username    string
	Score       decimal.Decimal
	SubmittedAt time.Time
}

type Store interface {
	ExamTitle(ctx context.Context, examID int64) (string, error)
	CompletedAttempts(ctx context.Context, examID int64) ([]Row, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ExamTitle(ctx context.Context, examID int64) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx, `SELECT title FROM exams WHERE id = $1`, examID).Scan(&title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrExamNotFound
		}
		return "", fmt.Errorf("load exam title: %w", err)
	}
	return title, nil
}

func (s *PostgresStore) CompletedAttempts(ctx context.Context, examID int64) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, u.name, u.username, a.score, a.submitted_at
		FROM attempts a
		JOIN users u ON u.id = a.user_id
		WHERE a.exam_id = $1 AND a.status = 'completed'
		ORDER BY a.score DESC, a.submitted_at ASC, a.id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query completed attempts: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.AttemptID, &r.StudentName, &r.Username, &r.Score, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan completed attempt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed attempts: %w", err)
	}
	return out, nil
}
