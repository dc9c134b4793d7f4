// Package reassessment implements the Reassessment Engine: periodic
// promotion/demotion decisions over a student's recent attempt trajectory,
// appending CEFR history and a DNA snapshot marked trigger_event=reassessment
// whenever the level changes.
package reassessment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/difficulty"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store"
)

// cefrFloors is the per-level recent-average floor below which two
// consecutive declining windows trigger a demotion. Resolved as an open
// question: floors rise with level since higher levels demand more
// consistent accuracy to retain, while A1 has no floor below it to demote
// to. See DESIGN.md for the rationale.
var cefrFloors = map[models.CEFRLevel]float64{
	models.LevelA2: 40,
	models.LevelB1: 45,
	models.LevelB2: 50,
	models.LevelC1: 55,
	models.LevelC2: 60,
}

// Engine runs the promotion/demotion decision.
type Engine struct {
	st                store.Store
	difficultyEngine  *difficulty.Engine
	minAttempts       int
	confidenceMin     float64

	// decliningStreak tracks consecutive declining-window observations per
	// student across calls to Evaluate, satisfying the "two consecutive
	// windows" demotion rule without a persisted counter column.
	decliningStreak map[uuid.UUID]int
}

// NewEngine builds an Engine. minAttempts/confidenceMin are the spec's
// REASSESS_MIN_ATTEMPTS / REASSESS_CONFIDENCE_MIN knobs.
func NewEngine(st store.Store, difficultyEngine *difficulty.Engine, minAttempts int, confidenceMin float64) *Engine {
	return &Engine{
		st:               st,
		difficultyEngine: difficultyEngine,
		minAttempts:      minAttempts,
		confidenceMin:    confidenceMin,
		decliningStreak:  make(map[uuid.UUID]int),
	}
}

// Decision is the closed sum of reassessment outcomes.
type Decision string

const (
	DecisionPromote Decision = "promote"
	DecisionDemote  Decision = "demote"
	DecisionHold    Decision = "hold"
)

// Result reports the outcome and, when it is not Hold, the new level.
type Result struct {
	Decision Decision
	NewLevel models.CEFRLevel
}

// Evaluate decides whether studentID should be promoted, demoted, or held,
// and applies the decision. quizsubmission calls it after every attempt; it
// holds until enough attempts have accrued since the last level change.
func (e *Engine) Evaluate(ctx context.Context, studentID uuid.UUID) (*Result, error) {
	student, err := e.st.Students().Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	cefrHistory, err := e.st.CEFRHistory().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	attemptsSinceLastChange, err := e.attemptsSinceLastLevelChange(ctx, studentID, cefrHistory)
	if err != nil {
		return nil, err
	}
	if attemptsSinceLastChange < e.minAttempts {
		return &Result{Decision: DecisionHold}, nil
	}

	recentMostRecentFirst, err := e.st.Attempts().RecentByStudent(ctx, studentID, 10)
	if err != nil {
		return nil, err
	}
	recent := make([]models.QuizAttempt, len(recentMostRecentFirst))
	for i, a := range recentMostRecentFirst {
		recent[len(recentMostRecentFirst)-1-i] = a
	}

	dna, err := e.st.DNA().LatestByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	recentFive := last(recent, 5)
	recentFiveAvg := meanScore(recentFive)
	confidence := confidenceOf(dna.Trajectory, len(recent))

	if dna.Trajectory == models.TrajectoryImproving && recentFiveAvg >= 70 && confidence >= e.confidenceMin {
		e.decliningStreak[studentID] = 0
		newLevel, ok := student.CurrentLevel.Next()
		if !ok {
			return &Result{Decision: DecisionHold}, nil
		}
		if err := e.apply(ctx, studentID, student.CurrentLevel, newLevel); err != nil {
			return nil, err
		}
		return &Result{Decision: DecisionPromote, NewLevel: newLevel}, nil
	}

	floor, hasFloor := cefrFloors[student.CurrentLevel]
	if hasFloor && dna.Trajectory == models.TrajectoryDeclining && recentFiveAvg < floor {
		e.decliningStreak[studentID]++
		if e.decliningStreak[studentID] >= 2 {
			e.decliningStreak[studentID] = 0
			newLevel, ok := student.CurrentLevel.Previous()
			if !ok {
				return &Result{Decision: DecisionHold}, nil
			}
			if err := e.apply(ctx, studentID, student.CurrentLevel, newLevel); err != nil {
				return nil, err
			}
			return &Result{Decision: DecisionDemote, NewLevel: newLevel}, nil
		}
		return &Result{Decision: DecisionHold}, nil
	}

	e.decliningStreak[studentID] = 0
	return &Result{Decision: DecisionHold}, nil
}

func (e *Engine) apply(ctx context.Context, studentID uuid.UUID, from, to models.CEFRLevel) error {
	if err := e.st.Students().UpdateLevel(ctx, studentID, to); err != nil {
		return err
	}
	entry := &models.CEFRHistoryEntry{
		ID:         uuid.New(),
		StudentID:  studentID,
		FromLevel:  from,
		ToLevel:    to,
		Confidence: 1,
		Source:     "reassessment",
		CreatedAt:  time.Now(),
	}
	if err := e.st.CEFRHistory().Append(ctx, entry); err != nil {
		return err
	}
	_, err := e.difficultyEngine.Evaluate(ctx, studentID, "reassessment")
	return err
}

// attemptsSinceLastLevelChange counts attempts submitted after the most
// recent CEFR history entry (or all attempts, if the student has never
// changed level).
func (e *Engine) attemptsSinceLastLevelChange(ctx context.Context, studentID uuid.UUID, cefrHistory []models.CEFRHistoryEntry) (int, error) {
	all, err := e.st.Attempts().RecentByStudent(ctx, studentID, 0)
	if err != nil {
		return 0, err
	}
	if len(cefrHistory) == 0 {
		return len(all), nil
	}
	lastChange := cefrHistory[len(cefrHistory)-1].CreatedAt
	count := 0
	for _, a := range all {
		if a.SubmittedAt.After(lastChange) {
			count++
		}
	}
	return count, nil
}

func last(attempts []models.QuizAttempt, n int) []models.QuizAttempt {
	if len(attempts) <= n {
		return attempts
	}
	return attempts[len(attempts)-n:]
}

func meanScore(attempts []models.QuizAttempt) float64 {
	if len(attempts) == 0 {
		return 0
	}
	var sum float64
	for _, a := range attempts {
		sum += a.Score * 100
	}
	return sum / float64(len(attempts))
}

// confidenceOf derives a deterministic substitute for the generator's
// assessor confidence, per spec §4.8: stronger trajectories and larger
// sample sizes yield higher confidence.
func confidenceOf(trend models.Trajectory, sampleSize int) float64 {
	base := 0.5
	if trend == models.TrajectoryImproving {
		base = 0.75
	}
	sizeBonus := float64(sampleSize) / 40 // +0.25 at sampleSize=10
	confidence := base + sizeBonus
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
