package exam

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	msgAttemptStarted   = "Ujian dimulai"
	msgAttemptResumed   = "Melanjutkan ujian yang sedang berlangsung"
	msgAttemptSubmitted = "Ujian berhasil dikumpulkan"
)

// EventRecorder receives attempt lifecycle events, e.g. for metrics.
type EventRecorder interface {
	AttemptStarted(resumed bool)
	AttemptSubmitted()
}

type ServiceConfig struct {
	AllowRetake bool
	Logger      zerolog.Logger
	Events      EventRecorder
	Shuffle     Shuffler
	Now         func() time.Time
}

type Service struct {
	store       Store
	presenter   *Presenter
	validate    *validator.Validate
	allowRetake bool
	log         zerolog.Logger
	events      EventRecorder
	now         func() time.Time
}

type StartResult struct {
	Message    string    `json:"message"`
	Resumed    bool      `json:"resumed"`
	Attempt    *Attempt  `json:"user_exam"`
	DeadlineAt time.Time `json:"deadline_at"`
}

type SubmitInput struct {
	ExamID  int64
	UserID  int64
	Answers []SubmittedAnswer `json:"answers" validate:"required,dive"`
}

type SubmitResult struct {
	Message      string   `json:"message"`
	Score        float64  `json:"score"`
	CorrectCount int      `json:"correct_count"`
	Total        int      `json:"total_questions"`
	Attempt      *Attempt `json:"user_exam"`
}

type ResultDetail struct {
	Attempt      Attempt     `json:"user_exam"`
	Exam         ExamBrief   `json:"exam"`
	Total        int         `json:"total_questions"`
	CorrectCount int         `json:"correct_count"`
	Items        []ScoreItem `json:"items"`
}

type noopRecorder struct{}

func (noopRecorder) AttemptStarted(bool) {}
func (noopRecorder) AttemptSubmitted()   {}

func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.Events == nil {
		cfg.Events = noopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Service{
		store:       store,
		presenter:   NewPresenter(cfg.Shuffle),
		validate:    v,
		allowRetake: cfg.AllowRetake,
		log:         cfg.Logger,
		events:      cfg.Events,
		now:         cfg.Now,
	}
}

func (s *Service) ListExams(ctx context.Context) ([]ExamListItem, error) {
	return s.store.ListExams(ctx)
}

// GetExamView returns the exam with shuffled, answer-free questions.
func (s *Service) GetExamView(ctx context.Context, examID, userID int64) (*ExamView, error) {
	var (
		e         *Exam
		questions []Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		e, err = s.store.GetExam(gctx, examID)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = s.store.ListQuestions(gctx, examID)
		return err
	})
	if err := g.Wait(); err != nil {
		if !errors.Is(err, ErrExamNotFound) {
			s.logFailure(err, "get exam view", userID, examID)
		}
		return nil, err
	}

	view := s.presenter.ExamView(*e, questions)
	return &view, nil
}

func (s *Service) StartAttempt(ctx context.Context, examID, userID int64) (*StartResult, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		if !errors.Is(err, ErrExamNotFound) {
			s.logFailure(err, "start attempt", userID, examID)
		}
		return nil, err
	}

	attempt, created, err := s.store.StartOrResumeAttempt(ctx, StartAttemptInput{
		ExamID:      examID,
		UserID:      userID,
		Now:         s.now(),
		AllowRetake: s.allowRetake,
	})
	if err != nil {
		if !errors.Is(err, ErrAttemptAlreadySubmitted) {
			s.logFailure(err, "start attempt", userID, examID)
		}
		return nil, err
	}

	s.events.AttemptStarted(!created)
	res := &StartResult{
		Message:    msgAttemptStarted,
		Resumed:    !created,
		Attempt:    attempt,
		DeadlineAt: attempt.StartedAt.Add(time.Duration(e.DurationMinutes) * time.Minute),
	}
	if !created {
		res.Message = msgAttemptResumed
		s.log.Info().Int64("user_id", userID).Int64("exam_id", examID).Int64("attempt_id", attempt.ID).Msg("attempt resumed")
	} else {
		s.log.Info().Int64("user_id", userID).Int64("exam_id", examID).Int64("attempt_id", attempt.ID).Msg("attempt started")
	}
	return res, nil
}

// SubmitAttempt scores the answers and completes the user's in-progress
// attempt. Validation runs before anything is read or written.
func (s *Service) SubmitAttempt(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := s.validateSubmit(in); err != nil {
		return nil, err
	}

	if _, err := s.store.GetExam(ctx, in.ExamID); err != nil {
		if !errors.Is(err, ErrExamNotFound) {
			s.logFailure(err, "submit attempt", in.UserID, in.ExamID)
		}
		return nil, err
	}

	active, err := s.store.FindInProgressAttempt(ctx, in.ExamID, in.UserID)
	if err != nil {
		if !errors.Is(err, ErrAttemptNotFound) {
			s.logFailure(err, "submit attempt", in.UserID, in.ExamID)
			return nil, err
		}
		done, err := s.store.HasCompletedAttempt(ctx, in.ExamID, in.UserID)
		if err != nil {
			s.logFailure(err, "submit attempt", in.UserID, in.ExamID)
			return nil, err
		}
		if done {
			return nil, ErrAttemptAlreadySubmitted
		}
		return nil, ErrNoActiveAttempt
	}

	questions, err := s.store.ListQuestions(ctx, in.ExamID)
	if err != nil {
		s.logFailure(err, "submit attempt", in.UserID, in.ExamID)
		return nil, err
	}

	scored := ScoreSubmission(questions, in.Answers)
	completed, err := s.store.CompleteAttempt(ctx, CompleteAttemptInput{
		AttemptID:   active.ID,
		ExamID:      in.ExamID,
		UserID:      in.UserID,
		Score:       scored.Score,
		Answers:     in.Answers,
		SubmittedAt: s.now(),
	})
	if err != nil {
		if !errors.Is(err, ErrAttemptAlreadySubmitted) {
			s.logFailure(err, "submit attempt", in.UserID, in.ExamID)
		}
		return nil, err
	}

	s.events.AttemptSubmitted()
	s.log.Info().
		Int64("user_id", in.UserID).
		Int64("exam_id", in.ExamID).
		Int64("attempt_id", completed.ID).
		Str("score", scored.Score.StringFixed(2)).
		Msg("attempt submitted")

	return &SubmitResult{
		Message:      msgAttemptSubmitted,
		Score:        scored.ScoreFloat(),
		CorrectCount: scored.CorrectCount,
		Total:        scored.Total,
		Attempt:      completed,
	}, nil
}

func (s *Service) ListResults(ctx context.Context, userID int64) ([]AttemptHistoryItem, error) {
	return s.store.ListCompletedAttempts(ctx, userID)
}

// GetResult returns one of the user's attempts. Attempts of other users are
// reported as not found.
func (s *Service) GetResult(ctx context.Context, attemptID, userID int64) (*ResultDetail, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrAttemptNotFound
	}

	var (
		e         *Exam
		questions []Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		e, err = s.store.GetExam(gctx, a.ExamID)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = s.store.ListQuestions(gctx, a.ExamID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load result exam: %w", err)
	}

	out := &ResultDetail{
		Attempt: *a,
		Exam:    ExamBrief{ID: e.ID, Title: e.Title, Description: e.Description},
		Total:   len(questions),
		Items:   []ScoreItem{},
	}
	if a.Status == StatusCompleted {
		scored := ScoreSubmission(questions, a.Answers)
		out.CorrectCount = scored.CorrectCount
		out.Items = scored.Items
	}
	return out, nil
}

func (s *Service) validateSubmit(in SubmitInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate submit: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if i := strings.IndexByte(key, '.'); i >= 0 {
			key = key[i+1:]
		}
		switch fe.Tag() {
		case "required":
			fields[key] = "is required"
		case "gt":
			fields[key] = "must be greater than " + fe.Param()
		default:
			fields[key] = "is invalid"
		}
	}
	return &ValidationError{Fields: fields}
}

func (s *Service) logFailure(err error, op string, userID, examID int64) {
	s.log.Error().Err(err).Int64("user_id", userID).Int64("exam_id", examID).Msg(op + " failed")
}
