package exam

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"
)

func reverseShuffle(n int, swap func(i, j int)) {
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		swap(i, j)
	}
}

func noShuffle(int, func(i, j int)) {}

func sampleQuestions() []Question {
	img := "uploads/q1.png"
	imgType := "IMAGE"
	return []Question{
		{ID: 1, Type: "single", Prompt: "2+2?", Options: []byte(`["3","4","5"]`), Answer: "4", Points: 1, FilePath: &img, FileType: &imgType},
		{ID: 2, Type: "multiple", Prompt: "Primes?", Options: []byte(`["2","3","4"]`), Answer: "2,3", Points: 2},
		{ID: 3, Type: "single", Prompt: "Broken", Options: []byte(`{"a":1}`), Answer: "SECRET-KEY"},
	}
}

func TestPresenterExamView_NeverExposesAnswer(t *testing.T) {
	p := NewPresenter(nil)
	view := p.ExamView(Exam{ID: 9, Title: "Ujian", DurationMinutes: 60}, sampleQuestions())

	b, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(b)
	if strings.Contains(body, `"answer"`) || strings.Contains(body, "SECRET-KEY") {
		t.Fatalf("view leaks canonical answer: %s", body)
	}
}

func TestPresenterExamView_ShufflesWithInjectedShuffler(t *testing.T) {
	p := NewPresenter(reverseShuffle)
	qs := sampleQuestions()
	view := p.ExamView(Exam{ID: 9, Title: "Ujian", DurationMinutes: 45}, qs)

	if view.Duration != 45 || view.Exam.ID != 9 {
		t.Fatalf("unexpected exam metadata: %+v", view.Exam)
	}
	if len(view.Questions) != 3 || view.Questions[0].ID != 3 || view.Questions[2].ID != 1 {
		t.Fatalf("question order should be reversed, got %+v", view.Questions)
	}
	first := view.Questions[2]
	if strings.Join(first.Options, ",") != "5,4,3" {
		t.Fatalf("options should be reversed, got %v", first.Options)
	}
	if string(qs[0].Options) != `["3","4","5"]` || qs[0].ID != 1 {
		t.Fatalf("input questions must not be mutated")
	}
}

func TestPresenterExamView_PreservesOptionSet(t *testing.T) {
	p := NewPresenter(nil)
	for i := 0; i < 20; i++ {
		view := p.ExamView(Exam{ID: 1}, sampleQuestions())
		for _, q := range view.Questions {
			if q.ID != 1 {
				continue
			}
			got := append([]string(nil), q.Options...)
			sort.Strings(got)
			if strings.Join(got, ",") != "3,4,5" {
				t.Fatalf("option set changed: %v", q.Options)
			}
		}
	}
}

func TestPresenterExamView_Media(t *testing.T) {
	view := NewPresenter(noShuffle).ExamView(Exam{ID: 1}, sampleQuestions())
	q := view.Questions[0]
	if q.FilePath == nil || *q.FilePath != "uploads/q1.png" || q.FileType == nil || *q.FileType != "image" {
		t.Fatalf("unexpected media: %+v", q)
	}
	if view.Questions[1].FilePath != nil || view.Questions[1].FileType != nil {
		t.Fatalf("question without media should have nil media fields")
	}
}

func TestPresenterExamView_EchoesTypeAndScore(t *testing.T) {
	questions := []Question{
		{ID: 9, Type: "essay", Prompt: "Jelaskan", Options: []byte(`[]`), Answer: "x", Points: 5},
	}
	view := NewPresenter(noShuffle).ExamView(Exam{ID: 1}, questions)
	if got := view.Questions[0]; got.Type != "essay" || got.Score != 5 {
		t.Fatalf("unexpected view: %+v", got)
	}

	raw, err := json.Marshal(view.Questions[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["score"] != float64(5) || fields["type"] != "essay" {
		t.Fatalf("unexpected keys: %s", raw)
	}
	if _, ok := fields["points"]; ok {
		t.Fatalf("view should not carry a points key: %s", raw)
	}
}

func TestDecodeOptions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "strings", raw: `["A","B"]`, want: []string{"A", "B"}},
		{name: "empty", raw: ``, want: []string{}},
		{name: "null", raw: `null`, want: []string{}},
		{name: "object", raw: `{"a":"b"}`, want: []string{}},
		{name: "scalar", raw: `"A,B"`, want: []string{}},
		{name: "invalid json", raw: `[`, want: []string{}},
		{name: "mixed scalars", raw: `["A", 2, true]`, want: []string{"A", "2", "true"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeOptions([]byte(tc.raw))
			if got == nil {
				t.Fatalf("options must never be nil")
			}
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestMediaKind(t *testing.T) {
	for in, want := range map[string]string{"image": "image", " Audio ": "audio", "VIDEO": "video", "pdf": "unknown", "": "unknown"} {
		v := in
		if got := mediaKind(&v); got != want {
			t.Fatalf("mediaKind(%q)=%q want %q", in, got, want)
		}
	}
	if mediaKind(nil) != "unknown" {
		t.Fatalf("nil file type should be unknown")
	}
}
