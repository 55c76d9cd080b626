package exam

import "testing"

func strPtr(v string) *string { return &v }

func TestScoreSubmission_SingleKind(t *testing.T) {
	questions := []Question{
		{ID: 1, Type: "single", Answer: "4"},
		{ID: 2, Type: "single", Answer: "15"},
		{ID: 3, Type: "single", Answer: "25"},
	}
	answers := []SubmittedAnswer{
		{QuestionID: 1, Answer: strPtr("4")},
		{QuestionID: 2, Answer: strPtr("15")},
		{QuestionID: 3, Answer: strPtr("99")},
	}

	got := ScoreSubmission(questions, answers)
	if got.CorrectCount != 2 || got.Total != 3 {
		t.Fatalf("expected 2/3, got %d/%d", got.CorrectCount, got.Total)
	}
	if got.Score.StringFixed(2) != "66.67" {
		t.Fatalf("expected 66.67, got %s", got.Score.StringFixed(2))
	}
	if got.ScoreFloat() != 66.67 {
		t.Fatalf("expected float 66.67, got %v", got.ScoreFloat())
	}
}

func TestScoreSubmission_MultipleKindOrderIndependent(t *testing.T) {
	questions := []Question{{ID: 1, Type: "multiple", Answer: "A,C"}}
	got := ScoreSubmission(questions, []SubmittedAnswer{{QuestionID: 1, Answer: strPtr("C, A")}})
	if got.CorrectCount != 1 || got.Score.StringFixed(2) != "100.00" {
		t.Fatalf("expected full score, got correct=%d score=%s", got.CorrectCount, got.Score)
	}
}

func TestAnswerEqual(t *testing.T) {
	tests := []struct {
		name      string
		kind      QuestionKind
		canonical string
		submitted string
		want      bool
	}{
		{name: "multiple reversed", kind: KindMultiple, canonical: "A,B", submitted: "B,A", want: true},
		{name: "multiple whitespace", kind: KindMultiple, canonical: " A , B", submitted: "B,A ", want: true},
		{name: "multiple duplicate token", kind: KindMultiple, canonical: "A,B", submitted: "A,B,B", want: false},
		{name: "multiple duplicates both sides", kind: KindMultiple, canonical: "A,A,B", submitted: "B,A,A", want: true},
		{name: "multiple missing token", kind: KindMultiple, canonical: "A,B", submitted: "A", want: false},
		{name: "multiple case sensitive", kind: KindMultiple, canonical: "A,B", submitted: "a,b", want: false},
		{name: "single exact", kind: KindSingle, canonical: "B", submitted: "B", want: true},
		{name: "single not trimmed", kind: KindSingle, canonical: "B", submitted: " B", want: false},
		{name: "single comma is literal", kind: KindSingle, canonical: "A,B", submitted: "B,A", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewAnswer(tc.kind, tc.submitted).Equal(NewAnswer(tc.kind, tc.canonical))
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if ParseKind("multiple") != KindMultiple {
		t.Fatalf("multiple should parse as multiple")
	}
	for _, v := range []string{"single", "", "Multiple", "essay"} {
		if ParseKind(v) != KindSingle {
			t.Fatalf("%q should parse as single", v)
		}
	}
}

func TestScoreSubmission_NoQuestions(t *testing.T) {
	got := ScoreSubmission(nil, []SubmittedAnswer{})
	if got.Total != 0 || got.CorrectCount != 0 || !got.Score.IsZero() {
		t.Fatalf("expected zero score, got %+v", got)
	}
	if got.Items == nil {
		t.Fatalf("items should be an empty list")
	}
}

func TestScoreSubmission_UnansweredAndUnknown(t *testing.T) {
	questions := []Question{
		{ID: 1, Type: "single", Answer: "A"},
		{ID: 2, Type: "single", Answer: "B"},
		{ID: 3, Type: "single", Answer: "C"},
		{ID: 4, Type: "single", Answer: "D"},
	}
	answers := []SubmittedAnswer{
		{QuestionID: 1, Answer: nil},
		{QuestionID: 2, Answer: strPtr("")},
		{QuestionID: 3, Answer: strPtr("C")},
		{QuestionID: 99, Answer: strPtr("A")},
	}

	got := ScoreSubmission(questions, answers)
	if got.CorrectCount != 1 || got.Total != 4 {
		t.Fatalf("expected 1/4, got %d/%d", got.CorrectCount, got.Total)
	}
	if got.Score.StringFixed(2) != "25.00" {
		t.Fatalf("expected 25.00, got %s", got.Score)
	}
	wantAnswered := []bool{false, false, true, false}
	for i, it := range got.Items {
		if it.Answered != wantAnswered[i] {
			t.Fatalf("item %d answered=%v want %v", i, it.Answered, wantAnswered[i])
		}
	}
}

func TestScoreSubmission_DuplicateQuestionLastWins(t *testing.T) {
	questions := []Question{{ID: 1, Type: "single", Answer: "A"}}
	answers := []SubmittedAnswer{
		{QuestionID: 1, Answer: strPtr("A")},
		{QuestionID: 1, Answer: strPtr("B")},
	}
	got := ScoreSubmission(questions, answers)
	if got.CorrectCount != 0 {
		t.Fatalf("last answer should win, got correct=%d", got.CorrectCount)
	}

	answers[1].Answer = strPtr("A")
	got = ScoreSubmission(questions, answers)
	if got.CorrectCount != 1 || got.Score.StringFixed(2) != "100.00" {
		t.Fatalf("duplicate correct answers must not exceed 100, got %+v", got)
	}
}

func TestScoreSubmission_Bounds(t *testing.T) {
	for total := 1; total <= 13; total++ {
		questions := make([]Question, total)
		for i := range questions {
			questions[i] = Question{ID: int64(i + 1), Type: "single", Answer: "X"}
		}
		for correct := 0; correct <= total; correct++ {
			answers := make([]SubmittedAnswer, 0, total)
			for i := 0; i < total; i++ {
				v := "Y"
				if i < correct {
					v = "X"
				}
				answers = append(answers, SubmittedAnswer{QuestionID: int64(i + 1), Answer: strPtr(v)})
			}
			got := ScoreSubmission(questions, answers)
			f := got.ScoreFloat()
			if f < 0 || f > 100 {
				t.Fatalf("score out of bounds for %d/%d: %v", correct, total, f)
			}
			if got.Score.Exponent() < -2 {
				t.Fatalf("score has more than two decimals: %s", got.Score)
			}
		}
	}
}

func TestPercentScoreRounding(t *testing.T) {
	tests := []struct {
		correct, total int
		want           string
	}{
		{1, 3, "33.33"},
		{2, 3, "66.67"},
		{1, 8, "12.50"},
		{1, 6, "16.67"},
		{5, 7, "71.43"},
		{0, 5, "0.00"},
		{3, 0, "0.00"},
	}
	for _, tc := range tests {
		if got := percentScore(tc.correct, tc.total).StringFixed(2); got != tc.want {
			t.Fatalf("percentScore(%d,%d)=%s want %s", tc.correct, tc.total, got, tc.want)
		}
	}
}
