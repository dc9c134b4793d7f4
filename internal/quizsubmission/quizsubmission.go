// Package quizsubmission runs the scored-attempt pipeline that follows
// quiz.submit: score the answers, persist the attempt and its items,
// upsert any L1 interference patterns the grader flagged, and trigger the
// downstream difficulty and plan-update recomputation.
package quizsubmission

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/difficulty"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/planupdater"
	"noble-language-orchestrator/internal/reassessment"
	"noble-language-orchestrator/internal/scoring"
	"noble-language-orchestrator/internal/store"
)

// Service runs the quiz.submit operation end to end.
//
// Reassessment is event-driven off every completed attempt rather than
// clock-driven: reassessment.Engine.Evaluate already gates on
// REASSESS_MIN_ATTEMPTS internally, so calling it here costs one cheap
// no-op read on most attempts and avoids a second scheduling mechanism.
type Service struct {
	st           store.Store
	scorer       *scoring.Scorer
	difficulty   *difficulty.Engine
	plans        *planupdater.Updater
	reassessment *reassessment.Engine
}

// NewService builds a Service.
func NewService(st store.Store, scorer *scoring.Scorer, difficultyEngine *difficulty.Engine, plans *planupdater.Updater, reassess *reassessment.Engine) *Service {
	return &Service{st: st, scorer: scorer, difficulty: difficultyEngine, plans: plans, reassessment: reassess}
}

// Submit scores quizID's answers for the submitting student, persists the
// attempt, and triggers recomputation. A second submission for the same
// quiz by the same student is rejected as a StoreConflict (spec's
// one-attempt-per-quiz-per-student idempotency rule).
func (s *Service) Submit(ctx context.Context, quizID uuid.UUID, studentID uuid.UUID, answers map[string]string) (*scoring.Result, error) {
	quiz, err := s.st.Quizzes().Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.StudentID != studentID {
		return nil, apperrors.Validation("quiz does not belong to the submitting student", nil)
	}

	student, err := s.st.Students().Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	result, err := s.scorer.Score(ctx, student.CurrentLevel, quiz.Questions, answers)
	if err != nil {
		return nil, err
	}

	attempt := &models.QuizAttempt{
		ID:          uuid.New(),
		QuizID:      quizID,
		StudentID:   studentID,
		Score:       result.Score,
		SubmittedAt: time.Now(),
	}
	items := make([]models.QuizAttemptItem, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, models.QuizAttemptItem{
			ID:             uuid.New(),
			AttemptID:      attempt.ID,
			QuestionID:     it.QuestionID,
			IsCorrect:      it.IsCorrect,
			SkillTag:       it.SkillTag,
			NeedsAIGrading: it.NeedsAIGrading,
			Explanation:    it.Explanation,
		})
	}
	if err := s.st.Attempts().Create(ctx, attempt, items); err != nil {
		return nil, err
	}

	now := time.Now()
	for _, di := range result.Interference {
		if err := s.st.Interference().Upsert(ctx, &models.L1InterferencePattern{
			ID:              uuid.New(),
			StudentID:       studentID,
			PatternCategory: di.PatternCategory,
			PatternDetail:   di.PatternDetail,
			Status:          models.PatternExhibited,
			OccurrenceCount: 1,
			FirstSeenAt:     now,
			LastSeenAt:      now,
		}); err != nil {
			return nil, err
		}
	}

	// Downstream recomputation is fail-soft per the propagation policy: a
	// scored attempt is never undone by a failure further down the loop.
	if _, err := s.difficulty.Evaluate(ctx, studentID, "attempt"); err != nil {
		log.Printf("quiz submission: difficulty recompute failed for student %s: %v", studentID, err)
	} else if _, err := s.plans.Update(ctx, studentID, planupdater.TriggerQuizSubmission); err != nil {
		log.Printf("quiz submission: plan update failed for student %s, previous plan remains current: %v", studentID, err)
	}
	if _, err := s.reassessment.Evaluate(ctx, studentID); err != nil {
		log.Printf("quiz submission: reassessment failed for student %s, level unchanged: %v", studentID, err)
	}

	return result, nil
}
