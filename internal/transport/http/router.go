package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"timed-quiz/internal/metrics"
)

// NewRouter wires the public health/metrics endpoints and the authenticated attempt-store routes.
func NewRouter(api *API, ws *WSHandler, auth *Authenticator, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Route("/api/quizzes/{quizID}", func(r chi.Router) {
			r.Get("/", api.GetQuiz)
			r.Post("/start", api.StartAttempt)
			r.Post("/submit", api.SubmitAttempt)
			r.Get("/my-result", api.MyResult)
		})
		r.Get("/api/results/{attemptID}", api.GetResult)
		r.Get("/ws/attempts/{attemptID}", ws.ServeWS)
	})
	return r
}
