package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

// SubmittedAtLayout matches the dashboard's "d M H:i" display.
const SubmittedAtLayout = "02 Jan 15:04"

type Service struct {
	store Store
	loc   *time.Location
	log   zerolog.Logger
}

type Entry struct {
	Rank        int     `json:"rank"`
	ID          int64   `json:"id"`
	StudentName string  `json:"student_name"`
	Username    string  `json:"username"`
	Score       float64 `json:"score"`
	SubmittedAt string  `json:"submitted_at"`
}

type ExamSummary struct {
	ExamID       int64   `json:"exam_id"`
	Title        string  `json:"title"`
	Participants int     `json:"participants"`
	AverageScore float64 `json:"average_score"`
	HighestScore float64 `json:"highest_score"`
	LowestScore  float64 `json:"lowest_score"`
}

func NewService(store Store, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc, log: logger}
}

// RankEntries orders completed attempts by score descending, then earlier
// submission first, then attempt id.
func RankEntries(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Score.Cmp(rows[j].Score); c != 0 {
			return c > 0
		}
		if !rows[i].SubmittedAt.Equal(rows[j].SubmittedAt) {
			return rows[i].SubmittedAt.Before(rows[j].SubmittedAt)
		}
		return rows[i].AttemptID < rows[j].AttemptID
	})
}

func (s *Service) Leaderboard(ctx context.Context, examID int64) ([]Entry, error) {
	_, rows, err := s.load(ctx, examID)
	if err != nil {
		return nil, err
	}
	return s.entries(rows), nil
}

func (s *Service) SummaryByExam(ctx context.Context, examID int64) (*ExamSummary, error) {
	title, rows, err := s.load(ctx, examID)
	if err != nil {
		return nil, err
	}

	out := &ExamSummary{ExamID: examID, Title: title, Participants: len(rows)}
	if len(rows) == 0 {
		return out, nil
	}
	sum := decimal.Zero
	high, low := rows[0].Score, rows[0].Score
	for _, r := range rows {
		sum = sum.Add(r.Score)
		high = decimal.Max(high, r.Score)
		low = decimal.Min(low, r.Score)
	}
	out.AverageScore = sum.DivRound(decimal.NewFromInt(int64(len(rows))), 2).InexactFloat64()
	out.HighestScore = high.InexactFloat64()
	out.LowestScore = low.InexactFloat64()
	return out, nil
}

// ExportLeaderboardXLSX renders the ranked leaderboard as a workbook.
func (s *Service) ExportLeaderboardXLSX(ctx context.Context, examID int64) ([]byte, error) {
	title, rows, err := s.load(ctx, examID)
	if err != nil {
		return nil, err
	}
	entries := s.entries(rows)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	_ = f.SetCellValue(sheet, "A1", title)
	headers := []string{"rank", "attempt_id", "student_name", "username", "score", "submitted_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, e := range entries {
		row := i + 3
		values := []any{e.Rank, e.ID, e.StudentName, e.Username, e.Score, e.SubmittedAt}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "F", 20)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) load(ctx context.Context, examID int64) (string, []Row, error) {
	var (
		title string
		rows  []Row
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		title, err = s.store.ExamTitle(gctx, examID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.store.CompletedAttempts(gctx, examID)
		return err
	})
	if err := g.Wait(); err != nil {
		if !errors.Is(err, ErrExamNotFound) {
			s.log.Error().Err(err).Int64("exam_id", examID).Msg("load leaderboard failed")
		}
		return "", nil, err
	}
	RankEntries(rows)
	return title, rows, nil
}

func (s *Service) entries(rows []Row) []Entry {
	out := make([]Entry, 0, len(rows))
	for i, r := range rows {
		out = append(out, Entry{
			Rank:        i + 1,
			ID:          r.AttemptID,
			StudentName: r.StudentName,
			Username:    r.Username,
			Score:       r.Score.Round(2).InexactFloat64(),
			SubmittedAt: r.SubmittedAt.In(s.loc).Format(SubmittedAtLayout),
		})
	}
	return out
}
