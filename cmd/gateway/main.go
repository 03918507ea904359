package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	api "github.com/quizgate/quizgate/internal/api/http"
	"github.com/quizgate/quizgate/internal/audit"
	auth "github.com/quizgate/quizgate/internal/auth/middleware"
	"github.com/quizgate/quizgate/internal/config"
	"github.com/quizgate/quizgate/internal/db"
	"github.com/quizgate/quizgate/internal/quiz"
	"github.com/quizgate/quizgate/internal/rbac"
	"github.com/quizgate/quizgate/internal/storage"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh, cfg.DBDriver)
	events := audit.NewEventRepo(dbh)
	admission := quiz.NewAdmissionService(store, events)
	grader := quiz.NewGradeService(store, events)

	if err := seedAdmin(ctx, dbh, cfg); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Access-Token",
			"X-SafeExamBrowser-ConfigKeyHash"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Exam-delivery surface. Token-capability or JWT checks happen per
	// attempt inside the handlers; quiz-launch and seb-validate are open
	// by design (anonymous students reach them before having any token).
	r.Post("/quiz-launch", api.QuizLaunchHandler(admission, cfg.PublicURL))
	r.Post("/seb-validate", api.SEBValidateHandler(store, events, cfg.PublicURL))
	r.Get("/quizzes/{quizID}", api.GetQuizHandler(store))
	r.Post("/quizzes/{quizID}/verify-password", api.VerifyPasswordHandler(store))
	r.Put("/attempts/{attemptID}/answers", api.SaveAnswersHandler(store))
	r.Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store, grader))
	r.Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
	r.Get("/attempts/{attemptID}/results", api.GetResultsHandler(store))

	r.Route("/assets", func(ar chi.Router) {
		api.MountAssets(ar, bs)
	})

	// Authoring surface (JWT -> role in context -> rbac).
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.RoleFromDB(dbh, cfg.Mode == config.ModeOffline))

		pr.Post("/account/password", api.ChangePasswordHandler(dbh))
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.CreateQuizHandler(store))
		pr.With(rbac.Require("quiz:publish")).
			Post("/quizzes/{quizID}/publish", api.PublishQuizHandler(store))
		pr.With(rbac.Require("quiz:archive")).
			Post("/quizzes/{quizID}/archive", api.ArchiveQuizHandler(store))
		pr.With(rbac.Require("quiz:export-seb")).
			Get("/quizzes/{quizID}/seb-config", api.ExportSEBConfigHandler(store, bs, cfg.PublicURL))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/quizzes/{quizID}/attempts", api.ListAttemptsHandler(store))
		pr.With(rbac.Require("audit:view")).
			Get("/audit/events", api.ListEventsHandler(events))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

// seedAdmin ensures the bootstrap admin account exists when a bcrypt
// hash is configured.
func seedAdmin(ctx context.Context, dbh *sql.DB, cfg config.Config) error {
	if cfg.AdminPassHash == "" {
		return nil
	}
	_, err := dbh.ExecContext(ctx, `INSERT INTO users (id, username, role, password_hash, created_at)
		VALUES ($1,$2,'admin',$3,$4)
		ON CONFLICT (username) DO UPDATE SET password_hash=EXCLUDED.password_hash`,
		uuid.NewString(), cfg.AdminUser, cfg.AdminPassHash, time.Now().Unix())
	return err
}
