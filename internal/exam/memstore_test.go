package exam

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory Store used by service tests. It enforces the
// one-in-progress-attempt rule and the retake check under its mutex.
type memStore struct {
	mu        sync.Mutex
	exams     map[int64]Exam
	questions map[int64][]Question
	attempts  []Attempt
	nextID    int64

	failStart error
}

func newMemStore() *memStore {
	return &memStore{
		exams:     make(map[int64]Exam),
		questions: make(map[int64][]Question),
	}
}

func (m *memStore) ListExams(ctx context.Context) ([]ExamListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExamListItem, 0, len(m.exams))
	for _, e := range m.exams {
		out = append(out, ExamListItem{Exam: e, QuestionCount: len(m.questions[e.ID])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetExam(ctx context.Context, examID int64) (*Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[examID]
	if !ok {
		return nil, ErrExamNotFound
	}
	return &e, nil
}

func (m *memStore) ListQuestions(ctx context.Context, examID int64) ([]Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Question{}, m.questions[examID]...), nil
}

func (m *memStore) StartOrResumeAttempt(ctx context.Context, in StartAttemptInput) (*Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStart != nil {
		return nil, false, m.failStart
	}
	completed := false
	for _, a := range m.attempts {
		if a.ExamID != in.ExamID || a.UserID != in.UserID {
			continue
		}
		if a.Status == StatusInProgress {
			return &a, false, nil
		}
		completed = true
	}
	if completed && !in.AllowRetake {
		return nil, false, ErrAttemptAlreadySubmitted
	}
	m.nextID++
	a := Attempt{ID: m.nextID, UserID: in.UserID, ExamID: in.ExamID, Status: StatusInProgress, StartedAt: in.Now}
	m.attempts = append(m.attempts, a)
	return &a, true, nil
}

func (m *memStore) FindInProgressAttempt(ctx context.Context, examID, userID int64) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ExamID == examID && a.UserID == userID && a.Status == StatusInProgress {
			return &a, nil
		}
	}
	return nil, ErrAttemptNotFound
}

func (m *memStore) HasCompletedAttempt(ctx context.Context, examID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ExamID == examID && a.UserID == userID && a.Status == StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CompleteAttempt(ctx context.Context, in CompleteAttemptInput) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.attempts {
		a := &m.attempts[i]
		if a.ID != in.AttemptID || a.UserID != in.UserID || a.ExamID != in.ExamID {
			continue
		}
		if a.Status != StatusInProgress {
			return nil, ErrAttemptAlreadySubmitted
		}
		score := in.Score.InexactFloat64()
		submittedAt := in.SubmittedAt
		a.Status = StatusCompleted
		a.Score = &score
		a.SubmittedAt = &submittedAt
		a.Answers = append([]SubmittedAnswer{}, in.Answers...)
		out := *a
		return &out, nil
	}
	return nil, ErrAttemptAlreadySubmitted
}

func (m *memStore) GetAttempt(ctx context.Context, attemptID int64) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ID == attemptID {
			return &a, nil
		}
	}
	return nil, ErrAttemptNotFound
}

func (m *memStore) ListCompletedAttempts(ctx context.Context, userID int64) ([]AttemptHistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AttemptHistoryItem, 0)
	for _, a := range m.attempts {
		if a.UserID != userID || a.Status != StatusCompleted {
			continue
		}
		e := m.exams[a.ExamID]
		out = append(out, AttemptHistoryItem{Attempt: a, Exam: ExamBrief{ID: e.ID, Title: e.Title, Description: e.Description}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(*out[j].SubmittedAt) })
	return out, nil
}

func (m *memStore) attemptCount(examID, userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.ExamID == examID && a.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memStore) inProgressCount(examID, userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.ExamID == examID && a.UserID == userID && a.Status == StatusInProgress {
			n++
		}
	}
	return n
}
