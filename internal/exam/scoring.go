package exam

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type QuestionKind string

const (
	KindSingle   QuestionKind = "single"
	KindMultiple QuestionKind = "multiple"
)

// ParseKind maps a stored question type to a kind. Anything that is not
// exactly "multiple" scores as a single-answer question.
func ParseKind(v string) QuestionKind {
	if v == string(KindMultiple) {
		return KindMultiple
	}
	return KindSingle
}

// Answer is either a single option string or a sorted multiset of option
// tokens, depending on Kind.
type Answer struct {
	Kind   QuestionKind
	Single string
	Tokens []string
}

func NewAnswer(kind QuestionKind, raw string) Answer {
	if kind != KindMultiple {
		return Answer{Kind: KindSingle, Single: raw}
	}
	parts := strings.Split(raw, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, strings.TrimSpace(p))
	}
	sort.Strings(tokens)
	return Answer{Kind: KindMultiple, Tokens: tokens}
}

// Equal compares two answers of the same kind. Multiple answers match only
// when the sorted token sequences are identical, duplicates included.
func (a Answer) Equal(b Answer) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind != KindMultiple {
		return a.Single == b.Single
	}
	if len(a.Tokens) != len(b.Tokens) {
		return false
	}
	for i := range a.Tokens {
		if a.Tokens[i] != b.Tokens[i] {
			return false
		}
	}
	return true
}

type SubmittedAnswer struct {
	QuestionID int64   `json:"question_id" validate:"required,gt=0"`
	Answer     *string `json:"answer"`
}

type ScoreItem struct {
	QuestionID int64 `json:"question_id"`
	Answered   bool  `json:"answered"`
	Correct    bool  `json:"correct"`
}

type ScoreResult struct {
	Total        int             `json:"total"`
	CorrectCount int             `json:"correct_count"`
	Score        decimal.Decimal `json:"-"`
	Items        []ScoreItem     `json:"items"`
}

// ScoreFloat returns the rounded score as a float for JSON responses.
func (r ScoreResult) ScoreFloat() float64 {
	return r.Score.InexactFloat64()
}

// ScoreSubmission scores answers against the full question set of one exam.
// It is a pure function of its inputs.
func ScoreSubmission(questions []Question, answers []SubmittedAnswer) ScoreResult {
	byQuestion := make(map[int64]*string, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.Answer
	}

	res := ScoreResult{
		Total: len(questions),
		Items: make([]ScoreItem, 0, len(questions)),
	}
	for _, q := range questions {
		item := ScoreItem{QuestionID: q.ID}
		raw, ok := byQuestion[q.ID]
		if ok && raw != nil && *raw != "" {
			item.Answered = true
			kind := ParseKind(q.Type)
			if NewAnswer(kind, *raw).Equal(NewAnswer(kind, q.Answer)) {
				item.Correct = true
				res.CorrectCount++
			}
		}
		res.Items = append(res.Items, item)
	}

	res.Score = percentScore(res.CorrectCount, res.Total)
	return res
}

func percentScore(correct, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(correct)*100).DivRound(decimal.NewFromInt(int64(total)), 2)
}
