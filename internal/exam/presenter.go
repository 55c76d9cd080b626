package exam

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"strings"
)

// Shuffler permutes n elements through swap, like rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

type ExamView struct {
	Exam      ExamBrief      `json:"exam"`
	Duration  int            `json:"duration_minutes"`
	Questions []QuestionView `json:"questions"`
}

// QuestionView is what a student sees. It has no answer field.
type QuestionView struct {
	ID       int64    `json:"id"`
	Type     string   `json:"type"`
	Prompt   string   `json:"prompt"`
	FilePath *string  `json:"file_path"`
	FileType *string  `json:"file_type"`
	Options  []string `json:"options"`
	Score    int      `json:"score"`
}

type Presenter struct {
	shuffle Shuffler
}

func NewPresenter(shuffle Shuffler) *Presenter {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	return &Presenter{shuffle: shuffle}
}

// ExamView builds a freshly shuffled view. Neither argument is mutated.
func (p *Presenter) ExamView(e Exam, questions []Question) ExamView {
	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		options := decodeOptions(q.Options)
		p.shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

		v := QuestionView{
			ID:      q.ID,
			Type:    q.Type,
			Prompt:  q.Prompt,
			Options: options,
			Score:   q.Points,
		}
		if q.FilePath != nil && strings.TrimSpace(*q.FilePath) != "" {
			path := *q.FilePath
			kind := mediaKind(q.FileType)
			v.FilePath = &path
			v.FileType = &kind
		}
		views = append(views, v)
	}
	p.shuffle(len(views), func(i, j int) { views[i], views[j] = views[j], views[i] })

	return ExamView{
		Exam: ExamBrief{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
		},
		Duration:  e.DurationMinutes,
		Questions: views,
	}
}

// decodeOptions always returns a new slice; a missing or non-array value
// yields an empty list instead of an error.
func decodeOptions(raw []byte) []string {
	out := []string{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, string(bytes.TrimSpace(it)))
	}
	return out
}

func mediaKind(fileType *string) string {
	if fileType == nil {
		return "unknown"
	}
	switch v := strings.ToLower(strings.TrimSpace(*fileType)); v {
	case "image", "audio", "video":
		return v
	default:
		return "unknown"
	}
}
