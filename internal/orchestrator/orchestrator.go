// Package orchestrator owns the session state machine and the two pipelines
// that run off its transitions: the fail-soft post-confirmation pipeline
// (lesson + quiz generation) and the post-class pipeline (spaced-item
// extraction and conditional plan-update trigger).
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/generator"
	"noble-language-orchestrator/internal/lessonbuilder"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/planupdater"
	"noble-language-orchestrator/internal/store"
)

// allowedTransitions maps the current status to the statuses reachable by
// a single event, per the spec's transition table.
var allowedTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionRequested: {models.SessionConfirmed, models.SessionCancelled},
	models.SessionConfirmed: {models.SessionCompleted, models.SessionCancelled},
}

func isAllowed(from, to models.SessionStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Orchestrator drives the session lifecycle.
type Orchestrator struct {
	st                           store.Store
	lessons                      *lessonbuilder.Builder
	gen                          *generator.Client
	plans                        *planupdater.Updater
	teacherNotesSubstantiveChars int
}

// New builds an Orchestrator.
func New(st store.Store, lessons *lessonbuilder.Builder, gen *generator.Client, plans *planupdater.Updater, teacherNotesSubstantiveChars int) *Orchestrator {
	return &Orchestrator{
		st:                           st,
		lessons:                      lessons,
		gen:                          gen,
		plans:                        plans,
		teacherNotesSubstantiveChars: teacherNotesSubstantiveChars,
	}
}

// CreateRequest inserts a new session in the requested state.
func (o *Orchestrator) CreateRequest(ctx context.Context, studentID, teacherID uuid.UUID, scheduledAt time.Time, durationMinutes int) (*models.Session, error) {
	sess := &models.Session{
		ID:              uuid.New(),
		StudentID:       studentID,
		TeacherID:       teacherID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: durationMinutes,
		Status:          models.SessionRequested,
		LessonStatus:    models.StepPending,
		QuizStatus:      models.StepPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := o.st.Sessions().Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Confirm transitions a requested session to confirmed and runs the
// post-confirmation pipeline. The transition itself always succeeds once
// allowed; pipeline step failures are recorded but never unwind it.
func (o *Orchestrator) Confirm(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	sess, err := o.st.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !isAllowed(sess.Status, models.SessionConfirmed) {
		return nil, apperrors.InvalidTransition("session cannot be confirmed from its current status", nil)
	}

	sess.Status = models.SessionConfirmed
	sess.UpdatedAt = time.Now()
	if err := o.st.Sessions().Update(ctx, sess); err != nil {
		return nil, err
	}

	o.runPostConfirmationPipeline(ctx, sess)
	return sess, nil
}

// Cancel transitions a requested or confirmed session to cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID uuid.UUID, reason string) (*models.Session, error) {
	sess, err := o.st.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !isAllowed(sess.Status, models.SessionCancelled) {
		return nil, apperrors.InvalidTransition("session cannot be cancelled from its current status", nil)
	}

	sess.Status = models.SessionCancelled
	sess.CancelledReason = reason
	sess.UpdatedAt = time.Now()
	if err := o.st.Sessions().Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Complete transitions a confirmed session to completed, recording teacher
// notes/homework/summary, and runs the post-class pipeline.
func (o *Orchestrator) Complete(ctx context.Context, sessionID uuid.UUID, teacherNotes, homework, summary string) (*models.Session, int, error) {
	sess, err := o.st.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if !isAllowed(sess.Status, models.SessionCompleted) {
		return nil, 0, apperrors.InvalidTransition("session cannot be completed from its current status", nil)
	}

	sess.Status = models.SessionCompleted
	sess.TeacherNotes = teacherNotes
	sess.Homework = homework
	sess.Summary = summary
	sess.UpdatedAt = time.Now()
	if err := o.st.Sessions().Update(ctx, sess); err != nil {
		return nil, 0, err
	}

	learningPointsExtracted := o.runPostClassPipeline(ctx, sess)
	return sess, learningPointsExtracted, nil
}

// runPostConfirmationPipeline implements §4.7's fail-soft lesson+quiz
// generation. Step failures are logged and recorded on the session; the
// session's own status never regresses because of them.
func (o *Orchestrator) runPostConfirmationPipeline(ctx context.Context, sess *models.Session) {
	if existing, err := o.st.Lessons().GetBySession(ctx, sess.ID); err == nil && existing != nil {
		sess.LessonStatus = models.StepCompleted
		if quiz, err := o.st.Quizzes().GetByLessonArtifact(ctx, existing.ID); err == nil && quiz != nil {
			sess.QuizStatus = models.StepCompleted
		}
		sess.UpdatedAt = time.Now()
		_ = o.st.Sessions().Update(ctx, sess)
		return
	}

	artifact, err := o.lessons.Build(ctx, sess.ID, sess.StudentID)
	if err != nil {
		log.Printf("post-confirmation pipeline: lesson build failed for session %s: %v", sess.ID, err)
		sess.LessonStatus = models.StepFailed
		sess.QuizStatus = models.StepFailed
		sess.UpdatedAt = time.Now()
		_ = o.st.Sessions().Update(ctx, sess)
		return
	}
	sess.LessonStatus = models.StepCompleted

	quiz, err := o.deriveQuiz(ctx, artifact)
	if err != nil {
		log.Printf("post-confirmation pipeline: quiz derivation failed for session %s: %v", sess.ID, err)
		sess.QuizStatus = models.StepFailed
		sess.UpdatedAt = time.Now()
		_ = o.st.Sessions().Update(ctx, sess)
		return
	}
	_ = quiz
	sess.QuizStatus = models.StepCompleted
	sess.UpdatedAt = time.Now()
	_ = o.st.Sessions().Update(ctx, sess)
}

// quizGeneratorPayload is the schema the generator is expected to return for
// the "quiz" use case.
type quizGeneratorPayload struct {
	Title     string             `json:"title"`
	Questions []models.Question  `json:"questions"`
}

func (o *Orchestrator) deriveQuiz(ctx context.Context, artifact *models.LessonArtifact) (*models.NextQuiz, error) {
	resp, err := o.gen.Generate(ctx, generator.Request{
		UseCase:      generator.UseCaseQuiz,
		SystemPrompt: "You derive a quiz from a lesson artifact, with one question per key skill tag.",
		UserPrompt:   artifact.Objective,
		Temperature:  0.3,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	var payload quizGeneratorPayload
	if err := generator.DecodePayload(resp, &payload); err != nil {
		return nil, err
	}

	quiz := &models.NextQuiz{
		ID:                          uuid.New(),
		StudentID:                   artifact.StudentID,
		DerivedFromLessonArtifactID: artifact.ID,
		Title:                       payload.Title,
		Questions:                   payload.Questions,
		CreatedAt:                   time.Now(),
	}
	if err := o.st.Quizzes().Create(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

// runPostClassPipeline implements §4.7's spaced-item extraction and the
// conditional plan-update trigger, returning the number of learning points
// extracted.
func (o *Orchestrator) runPostClassPipeline(ctx context.Context, sess *models.Session) int {
	artifact, err := o.st.Lessons().GetBySession(ctx, sess.ID)
	extracted := 0
	if err == nil && artifact != nil {
		for _, topic := range artifact.Topics {
			item := &models.SpacedItem{
				ID:           uuid.New(),
				StudentID:    sess.StudentID,
				ItemType:     models.SpacedLearningPoint,
				Content:      topic,
				EaseFactor:   2.5,
				IntervalDays: 1,
				Repetitions:  0,
				NextReview:   time.Now().Add(24 * time.Hour),
				CreatedAt:    time.Now(),
			}
			if err := o.st.SpacedItems().Create(ctx, item); err != nil {
				log.Printf("post-class pipeline: failed to persist spaced item for session %s: %v", sess.ID, err)
				continue
			}
			extracted++
		}
	}

	if len(sess.TeacherNotes) >= o.teacherNotesSubstantiveChars {
		if _, err := o.plans.Update(ctx, sess.StudentID, planupdater.TriggerTeacherNotes); err != nil {
			log.Printf("post-class pipeline: plan update from teacher notes failed for session %s: %v", sess.ID, err)
		}
	}

	return extracted
}
