package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"noble-language-orchestrator/internal/assessment"
	"noble-language-orchestrator/internal/config"
	"noble-language-orchestrator/internal/database"
	"noble-language-orchestrator/internal/difficulty"
	"noble-language-orchestrator/internal/dispatcher"
	"noble-language-orchestrator/internal/generator"
	"noble-language-orchestrator/internal/handlers"
	"noble-language-orchestrator/internal/lessonbuilder"
	"noble-language-orchestrator/internal/orchestrator"
	"noble-language-orchestrator/internal/planupdater"
	"noble-language-orchestrator/internal/quizsubmission"
	"noble-language-orchestrator/internal/reassessment"
	"noble-language-orchestrator/internal/scoring"
	"noble-language-orchestrator/internal/store"
	"noble-language-orchestrator/internal/store/memory"
	"noble-language-orchestrator/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	var st store.Store
	if cfg.DatabaseURL == "memory" {
		log.Println("using in-memory store (DATABASE_URL=memory)")
		st = memory.New()
	} else {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()
		st = postgres.New(db)
	}

	gen := generator.NewClient(
		getEnv("GENERATOR_BASE_URL", "http://localhost:9100"),
		func() string { return os.Getenv("GENERATOR_SERVICE_TOKEN") },
		generator.WithTimeouts(cfg.GeneratorTimeoutInitial, cfg.GeneratorTimeoutRetry),
		generator.WithRetries(cfg.GeneratorRetries),
	)

	difficultyEngine := difficulty.NewEngine(st, cfg.DNAWindow)
	plans := planupdater.NewUpdater(st, gen, cfg.PlanDropMaxPerUpdate)
	lessons := lessonbuilder.NewBuilder(st, gen, cfg.LessonLookback, cfg.ObservationLookback)
	reassess := reassessment.NewEngine(st, difficultyEngine, cfg.ReassessMinAttempts, cfg.ReassessConfidenceMin)
	sessions := orchestrator.New(st, lessons, gen, plans, cfg.TeacherNotesSubstantiveChars)
	assessments := assessment.NewService(st, gen)
	scorer := scoring.NewScorer(scoring.DefaultPolicy(), gen)
	quizzes := quizsubmission.NewService(st, scorer, difficultyEngine, plans, reassess)

	// The dispatcher is available for event-queue-backed deployments (e.g. a
	// message-bus collaborator handing off lifecycle events); the HTTP
	// adapter below calls services directly since each request is already
	// its own bounded unit of work.
	disp := dispatcher.New(cfg.DispatcherWorkerPoolSize, 90*time.Second, 1, time.Second, 30*time.Second)

	h := handlers.New(assessments, sessions, quizzes)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fiberErr, ok := err.(*fiber.Error); ok {
				code = fiberErr.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", h.Health)

	app.Post("/assessments", h.StartAssessment)
	app.Post("/assessments/:id/placement", h.SubmitPlacement)
	app.Post("/assessments/:id/diagnostic", h.SubmitDiagnostic)

	app.Post("/sessions", h.RequestSession)
	app.Post("/sessions/:id/confirm", h.ConfirmSession)
	app.Post("/sessions/:id/cancel", h.CancelSession)
	app.Post("/sessions/:id/complete", h.CompleteSession)

	app.Post("/quizzes/:id/submit", h.SubmitQuiz)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = disp.Wait()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	}()

	log.Printf("learning orchestrator listening on :%s", cfg.Port)
	if err := app.Listen("0.0.0.0:" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
