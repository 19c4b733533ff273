package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"timed-quiz/internal/app"
	"timed-quiz/internal/domain"
)

// API serves the attempt-store REST endpoints.
type API struct {
	service *app.AttemptService
	logger  *zap.Logger
}

func NewAPI(service *app.AttemptService, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{service: service, logger: logger}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (a *API) StartAttempt(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	record, err := a.service.Start(r.Context(), chi.URLParam(r, "quizID"), user)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) GetQuiz(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	quiz, err := a.service.Quiz(r.Context(), chi.URLParam(r, "quizID"), user)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (a *API) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid submission body")
		return
	}
	if req.AttemptID == "" {
		writeDetail(w, http.StatusBadRequest, "attempt_id is required")
		return
	}
	result, err := a.service.Submit(r.Context(), chi.URLParam(r, "quizID"), user, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) MyResult(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	result, err := a.service.MyResult(r.Context(), chi.URLParam(r, "quizID"), user)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) GetResult(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	result, err := a.service.Result(r.Context(), chi.URLParam(r, "attemptID"), user)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAttemptCompleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimeLimitExceeded):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		detail = "internal error"
	}
	writeDetail(w, status, detail)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
