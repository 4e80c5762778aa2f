package http

import (
	"net/http"

	"quiz-analytics-service/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// RouterOptions configures cross-cutting HTTP behaviour.
type RouterOptions struct {
	AllowedOrigins []string
	// Logger receives one line per request; nil disables request logging.
	Logger *logrus.Logger
}

// NewRouter mounts the REST API under /api/quiz and the live feed under /ws.
func NewRouter(service *app.QuizService, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.Logger != nil {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: opts.Logger, NoColor: true}))
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	quizzes := NewQuizHandler(service)
	r.Route("/api/quiz", func(r chi.Router) {
		r.Get("/dashboard/{userId}", quizzes.Dashboard)
		r.Post("/createQuiz/{userId}", quizzes.CreateQuiz)
		r.Put("/editQuiz/{userId}/{quizId}", quizzes.EditQuiz)
		r.Put("/impression/{quizId}", quizzes.RecordImpression)
		r.Get("/analytics/{userId}/{quizId}", quizzes.Analytics)
		r.Delete("/deleteQuiz/{userId}/{quizId}", quizzes.DeleteQuiz)
		r.Put("/poll/{quizId}", quizzes.RecordPollVotes)
		r.Get("/{quizId}", quizzes.GetQuiz)
		r.Put("/{quizId}", quizzes.RecordResponses)
	})

	r.Get("/ws/analytics", NewWSHandler(service).ServeWS)
	return r
}
