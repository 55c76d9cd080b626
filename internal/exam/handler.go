package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cbtexam/internal/app/apiresp"
	"cbtexam/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc examService
}

type examService interface {
	ListExams(ctx context.Context) ([]ExamListItem, error)
	GetExamView(ctx context.Context, examID, userID int64) (*ExamView, error)
	StartAttempt(ctx context.Context, examID, userID int64) (*StartResult, error)
	SubmitAttempt(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	ListResults(ctx context.Context, userID int64) ([]AttemptHistoryItem, error)
	GetResult(ctx context.Context, attemptID, userID int64) (*ResultDetail, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type submitRequest struct {
	Answers json.RawMessage `json:"answers"`
}

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListExams(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	view, err := h.svc.GetExamView(r.Context(), examID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: view})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	res, err := h.svc.StartAttempt(r.Context(), examID, user.ID)
	if err != nil {
		if !isDomainError(err) {
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "Gagal memulai ujian secara internal"})
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: res})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
			return
		}
		writeServiceError(w, r, &ValidationError{Fields: map[string]string{"body": "must be an object"}})
		return
	}

	answers, verr := decodeSubmittedAnswers(req.Answers)
	if verr != nil {
		writeServiceError(w, r, verr)
		return
	}

	res, err := h.svc.SubmitAttempt(r.Context(), SubmitInput{
		ExamID:  examID,
		UserID:  user.ID,
		Answers: answers,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: res})
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	items, err := h.svc.ListResults(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) ResultDetail(w http.ResponseWriter, r *http.Request) {
	attemptID, err := strconv.ParseInt(chi.URLParam(r, "attemptID"), 10, 64)
	if err != nil || attemptID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return
	}
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	res, err := h.svc.GetResult(r.Context(), attemptID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: res})
}

// decodeSubmittedAnswers checks the shape of the answers list item by item so
// type mismatches surface as field errors. A missing or null list decodes to
// nil and is reported by the service as required.
func decodeSubmittedAnswers(raw json.RawMessage) ([]SubmittedAnswer, *ValidationError) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"answers": "must be an array"}}
	}

	fields := make(map[string]string)
	out := make([]SubmittedAnswer, 0, len(items))
	for i, item := range items {
		prefix := fmt.Sprintf("answers[%d]", i)
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			fields[prefix] = "must be an object"
			continue
		}

		var a SubmittedAnswer
		if v, ok := obj["question_id"]; ok && !isJSONNull(v) {
			id, ok := parseQuestionID(v)
			if !ok {
				fields[prefix+".question_id"] = "must be an integer"
			}
			a.QuestionID = id
		}
		if v, ok := obj["answer"]; ok && !isJSONNull(v) {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				fields[prefix+".answer"] = "must be a string"
			} else {
				a.Answer = &s
			}
		}
		out = append(out, a)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return out, nil
}

// parseQuestionID accepts a JSON integer or a string holding one.
func parseQuestionID(v json.RawMessage) (int64, bool) {
	var n int64
	if err := json.Unmarshal(v, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isJSONNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func examIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	examID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || examID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return 0, false
	}
	return examID, true
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrNoActiveAttempt) ||
		errors.Is(err, ErrAttemptAlreadySubmitted) ||
		errors.Is(err, ErrValidation)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		apiresp.WriteValidation(w, r, verr.Error(), verr.Fields)
	case errors.Is(err, ErrExamNotFound), errors.Is(err, ErrAttemptNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrNoActiveAttempt), errors.Is(err, ErrAttemptAlreadySubmitted):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
