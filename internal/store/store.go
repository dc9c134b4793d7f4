// Package store declares the repository interfaces every engine component
// depends on. internal/store/postgres backs them with lib/pq; internal/store/memory
// backs them with an in-process map, used in tests and local/dev runs.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/models"
)

// StudentRepo manages the identity anchor row.
type StudentRepo interface {
	Create(ctx context.Context, s *models.Student) error
	Get(ctx context.Context, id uuid.UUID) (*models.Student, error)
	UpdateLevel(ctx context.Context, id uuid.UUID, level models.CEFRLevel) error
}

// AssessmentRepo manages the intake flow.
type AssessmentRepo interface {
	Create(ctx context.Context, a *models.Assessment) error
	Get(ctx context.Context, id uuid.UUID) (*models.Assessment, error)
	Update(ctx context.Context, a *models.Assessment) error
}

// ProfileRepo manages the one-per-student diagnostic profile.
type ProfileRepo interface {
	Create(ctx context.Context, p *models.LearnerProfile) error
	GetByStudent(ctx context.Context, studentID uuid.UUID) (*models.LearnerProfile, error)
	Update(ctx context.Context, p *models.LearnerProfile) error
}

// PlanRepo manages versioned, append-only learning plans.
type PlanRepo interface {
	Create(ctx context.Context, p *models.LearningPlan) error
	LatestByStudent(ctx context.Context, studentID uuid.UUID) (*models.LearningPlan, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.LearningPlan, error)
}

// SessionRepo manages the session state machine.
type SessionRepo interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
	ListByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]models.Session, error)
}

// LessonRepo manages immutable lesson artifacts and their canonical tags.
type LessonRepo interface {
	// Create persists the artifact and its tags atomically.
	Create(ctx context.Context, l *models.LessonArtifact, tags []models.LessonSkillTag) error
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*models.LessonArtifact, error)
	TagsByLesson(ctx context.Context, lessonID uuid.UUID) ([]models.LessonSkillTag, error)
	// RecentTopicsByStudent returns the topics of the last n lesson artifacts
	// for studentID, most recent first.
	RecentTopicsByStudent(ctx context.Context, studentID uuid.UUID, n int) ([][]string, error)
}

// QuizRepo manages derived quizzes.
type QuizRepo interface {
	Create(ctx context.Context, q *models.NextQuiz) error
	Get(ctx context.Context, id uuid.UUID) (*models.NextQuiz, error)
	GetByLessonArtifact(ctx context.Context, lessonArtifactID uuid.UUID) (*models.NextQuiz, error)
}

// AttemptRepo manages scored quiz attempts and their per-question items.
type AttemptRepo interface {
	Create(ctx context.Context, a *models.QuizAttempt, items []models.QuizAttemptItem) error
	RecentByStudent(ctx context.Context, studentID uuid.UUID, n int) ([]models.QuizAttempt, error)
	ItemsByAttempt(ctx context.Context, attemptID uuid.UUID) ([]models.QuizAttemptItem, error)
	CountByStudent(ctx context.Context, studentID uuid.UUID) (int, error)
}

// ObservationRepo manages teacher-entered per-skill observations.
type ObservationRepo interface {
	Create(ctx context.Context, o *models.SessionSkillObservation) error
	RecentByStudent(ctx context.Context, studentID uuid.UUID, n int) ([]models.SessionSkillObservation, error)
}

// DNARepo manages versioned, append-only performance snapshots.
type DNARepo interface {
	Create(ctx context.Context, d *models.LearningDNA) error
	LatestByStudent(ctx context.Context, studentID uuid.UUID) (*models.LearningDNA, error)
}

// InterferenceRepo manages recurring L1 interference patterns.
type InterferenceRepo interface {
	// Upsert increments OccurrenceCount and refreshes LastSeenAt if a pattern
	// with the same StudentID+PatternCategory+PatternDetail already has
	// status Exhibited; otherwise it inserts a new row.
	Upsert(ctx context.Context, p *models.L1InterferencePattern) error
	MarkOvercome(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.L1InterferencePattern, error)
}

// CEFRHistoryRepo manages the append-only level-transition log.
type CEFRHistoryRepo interface {
	Append(ctx context.Context, e *models.CEFRHistoryEntry) error
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.CEFRHistoryEntry, error)
}

// SpacedItemRepo manages SM-2 scheduled cards.
type SpacedItemRepo interface {
	Create(ctx context.Context, it *models.SpacedItem) error
	Update(ctx context.Context, it *models.SpacedItem) error
	DueByStudent(ctx context.Context, studentID uuid.UUID, asOf time.Time) ([]models.SpacedItem, error)
}

// Store aggregates every repository the engine needs. A single concrete
// implementation (postgres or memory) satisfies all of them at once.
type Store interface {
	Students() StudentRepo
	Assessments() AssessmentRepo
	Profiles() ProfileRepo
	Plans() PlanRepo
	Sessions() SessionRepo
	Lessons() LessonRepo
	Quizzes() QuizRepo
	Attempts() AttemptRepo
	Observations() ObservationRepo
	DNA() DNARepo
	Interference() InterferenceRepo
	CEFRHistory() CEFRHistoryRepo
	SpacedItems() SpacedItemRepo
}
