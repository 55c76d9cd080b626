package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the question store plus the attempt repository.
type Store interface {
	ListExams(ctx context.Context) ([]ExamListItem, error)
	GetExam(ctx context.Context, examID int64) (*Exam, error)
	ListQuestions(ctx context.Context, examID int64) ([]Question, error)

	// StartOrResumeAttempt returns the user's in-progress attempt for the
	// exam, creating it if none exists. created reports which happened.
	// When AllowRetake is false and a completed attempt exists it returns
	// ErrAttemptAlreadySubmitted; the check and the insert are atomic.
	StartOrResumeAttempt(ctx context.Context, in StartAttemptInput) (attempt *Attempt, created bool, err error)
	FindInProgressAttempt(ctx context.Context, examID, userID int64) (*Attempt, error)
	HasCompletedAttempt(ctx context.Context, examID, userID int64) (bool, error)
	// CompleteAttempt moves an in-progress attempt to completed. It returns
	// ErrAttemptAlreadySubmitted when the attempt is no longer in progress.
	CompleteAttempt(ctx context.Context, in CompleteAttemptInput) (*Attempt, error)
	GetAttempt(ctx context.Context, attemptID int64) (*Attempt, error)
	ListCompletedAttempts(ctx context.Context, userID int64) ([]AttemptHistoryItem, error)
}

type StartAttemptInput struct {
	ExamID      int64
	UserID      int64
	Now         time.Time
	AllowRetake bool
}

type CompleteAttemptInput struct {
	AttemptID   int64
	ExamID      int64
	UserID      int64
	Score       decimal.Decimal
	Answers     []SubmittedAnswer
	SubmittedAt time.Time
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const attemptColumns = `id, user_id, exam_id, status, started_at, submitted_at, score, answers`

func (s *PostgresStore) ListExams(ctx context.Context) ([]ExamListItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			e.id,
			e.title,
			e.description,
			e.duration_minutes,
			e.start_at,
			e.end_at,
			(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id) AS question_count
		FROM exams e
		ORDER BY e.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	defer rows.Close()

	items := make([]ExamListItem, 0)
	for rows.Next() {
		var (
			it      ExamListItem
			desc    sql.NullString
			startAt sql.NullTime
			endAt   sql.NullTime
		)
		if err := rows.Scan(&it.ID, &it.Title, &desc, &it.DurationMinutes, &startAt, &endAt, &it.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		it.Description = nullStringPtr(desc)
		it.StartAt = nullTimePtr(startAt)
		it.EndAt = nullTimePtr(endAt)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exams: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetExam(ctx context.Context, examID int64) (*Exam, error) {
	var (
		e       Exam
		desc    sql.NullString
		startAt sql.NullTime
		endAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, duration_minutes, start_at, end_at
		FROM exams
		WHERE id = $1
	`, examID).Scan(&e.ID, &e.Title, &desc, &e.DurationMinutes, &startAt, &endAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}
	e.Description = nullStringPtr(desc)
	e.StartAt = nullTimePtr(startAt)
	e.EndAt = nullTimePtr(endAt)
	return &e, nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, examID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, type, prompt, options, answer, score, file_path, file_type
		FROM questions
		WHERE exam_id = $1
		ORDER BY id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		var (
			q        Question
			options  []byte
			filePath sql.NullString
			fileType sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Prompt, &options, &q.Answer, &q.Points, &filePath, &fileType); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Options = options
		q.FilePath = nullStringPtr(filePath)
		q.FileType = nullStringPtr(fileType)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

// attemptLockSQL serializes start and submit for one (user, exam) pair for the
// rest of the transaction.
const attemptLockSQL = `SELECT pg_advisory_xact_lock(hashtextextended('attempt:' || $1::bigint::text || ':' || $2::bigint::text, 0))`

// StartOrResumeAttempt runs under the per-user exam lock, so the retake check
// and the insert see the same set of attempts. The partial unique index
// attempts_one_in_progress_idx still backs the one-in-progress rule.
func (s *PostgresStore) StartOrResumeAttempt(ctx context.Context, in StartAttemptInput) (*Attempt, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin start attempt: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, attemptLockSQL, in.UserID, in.ExamID); err != nil {
		return nil, false, fmt.Errorf("lock attempt: %w", err)
	}

	created, err := scanAttempt(tx.QueryRowContext(ctx, `
		INSERT INTO attempts (user_id, exam_id, status, started_at, created_at, updated_at)
		SELECT $1::bigint, $2::bigint, 'in_progress', $3::timestamptz, now(), now()
		WHERE $4::boolean OR NOT EXISTS (
			SELECT 1
			FROM attempts
			WHERE user_id = $1 AND exam_id = $2 AND status = 'completed'
		)
		ON CONFLICT (user_id, exam_id) WHERE status = 'in_progress' DO NOTHING
		RETURNING `+attemptColumns, in.UserID, in.ExamID, in.Now, in.AllowRetake))
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit start attempt: %w", err)
		}
		return created, true, nil
	case !errors.Is(err, ErrAttemptNotFound):
		return nil, false, fmt.Errorf("insert attempt: %w", err)
	}

	existing, err := scanAttempt(tx.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts
		WHERE user_id = $1 AND exam_id = $2 AND status = 'in_progress'
	`, in.UserID, in.ExamID))
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit start attempt: %w", err)
		}
		return existing, false, nil
	case errors.Is(err, ErrAttemptNotFound):
		// Nothing inserted and nothing in progress: the retake rule refused.
		return nil, false, ErrAttemptAlreadySubmitted
	default:
		return nil, false, fmt.Errorf("load in-progress attempt: %w", err)
	}
}

func (s *PostgresStore) FindInProgressAttempt(ctx context.Context, examID, userID int64) (*Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts
		WHERE user_id = $1 AND exam_id = $2 AND status = 'in_progress'
	`, userID, examID))
	if err != nil && !errors.Is(err, ErrAttemptNotFound) {
		return nil, fmt.Errorf("load in-progress attempt: %w", err)
	}
	return a, err
}

func (s *PostgresStore) HasCompletedAttempt(ctx context.Context, examID, userID int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM attempts
			WHERE user_id = $1 AND exam_id = $2 AND status = 'completed'
		)
	`, userID, examID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check completed attempt: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CompleteAttempt(ctx context.Context, in CompleteAttemptInput) (*Attempt, error) {
	answers := in.Answers
	if answers == nil {
		answers = []SubmittedAnswer{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin complete attempt: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, attemptLockSQL, in.UserID, in.ExamID); err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}

	a, err := scanAttempt(tx.QueryRowContext(ctx, `
		UPDATE attempts
		SET status = 'completed',
			score = $2,
			answers = $3::jsonb,
			submitted_at = $4,
			updated_at = now()
		WHERE id = $1 AND user_id = $5 AND exam_id = $6 AND status = 'in_progress'
		RETURNING `+attemptColumns, in.AttemptID, in.Score, string(answersJSON), in.SubmittedAt, in.UserID, in.ExamID))
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return nil, ErrAttemptAlreadySubmitted
		}
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit complete attempt: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetAttempt(ctx context.Context, attemptID int64) (*Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts
		WHERE id = $1
	`, attemptID))
	if err != nil && !errors.Is(err, ErrAttemptNotFound) {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return a, err
}

func (s *PostgresStore) ListCompletedAttempts(ctx context.Context, userID int64) ([]AttemptHistoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			a.id, a.user_id, a.exam_id, a.status, a.started_at, a.submitted_at, a.score, a.answers,
			e.title, e.description
		FROM attempts a
		JOIN exams e ON e.id = a.exam_id
		WHERE a.user_id = $1 AND a.status = 'completed'
		ORDER BY a.submitted_at DESC, a.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query attempt history: %w", err)
	}
	defer rows.Close()

	items := make([]AttemptHistoryItem, 0)
	for rows.Next() {
		var (
			it   AttemptHistoryItem
			desc sql.NullString
		)
		r := attemptScanRow{}
		if err := rows.Scan(append(r.dest(), &it.Exam.Title, &desc)...); err != nil {
			return nil, fmt.Errorf("scan attempt history: %w", err)
		}
		a, err := r.attempt()
		if err != nil {
			return nil, err
		}
		it.Attempt = *a
		it.Exam.ID = a.ExamID
		it.Exam.Description = nullStringPtr(desc)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt history: %w", err)
	}
	return items, nil
}

type attemptScanRow struct {
	a           Attempt
	submittedAt sql.NullTime
	score       sql.NullFloat64
	answers     []byte
}

func (r *attemptScanRow) dest() []any {
	return []any{&r.a.ID, &r.a.UserID, &r.a.ExamID, &r.a.Status, &r.a.StartedAt, &r.submittedAt, &r.score, &r.answers}
}

func (r *attemptScanRow) attempt() (*Attempt, error) {
	a := r.a
	a.SubmittedAt = nullTimePtr(r.submittedAt)
	if r.score.Valid {
		v := r.score.Float64
		a.Score = &v
	}
	if len(r.answers) > 0 {
		if err := json.Unmarshal(r.answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("decode attempt answers: %w", err)
		}
	}
	return &a, nil
}

func scanAttempt(row *sql.Row) (*Attempt, error) {
	r := attemptScanRow{}
	if err := row.Scan(r.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return r.attempt()
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
