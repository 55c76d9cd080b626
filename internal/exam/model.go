package exam

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrExamNotFound            = errors.New("exam not found")
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrNoActiveAttempt         = errors.New("no attempt in progress for this exam")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrValidation              = errors.New("validation failed")
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

type Exam struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
}

type ExamListItem struct {
	Exam
	QuestionCount int `json:"question_count"`
}

// Question is the canonical stored form, including the answer key. It is
// never serialized to students directly.
type Question struct {
	ID       int64
	ExamID   int64
	Type     string
	Prompt   string
	Options  []byte
	Answer   string
	Points   int
	FilePath *string
	FileType *string
}

type Attempt struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	ExamID      int64             `json:"exam_id"`
	Status      string            `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	SubmittedAt *time.Time        `json:"submitted_at"`
	Score       *float64          `json:"score"`
	Answers     []SubmittedAnswer `json:"answers,omitempty"`
}

type AttemptHistoryItem struct {
	Attempt
	Exam ExamBrief `json:"exam"`
}

type ExamBrief struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// ValidationError lists field problems found before any scoring happens.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
