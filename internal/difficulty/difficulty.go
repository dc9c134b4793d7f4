// Package difficulty implements the difficulty engine: a windowed,
// per-skill and global recommendation over scored attempts, emitted as a
// versioned LearningDNA snapshot.
package difficulty

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store"
)

// Engine computes difficulty recommendations from the windowed attempt
// history.
type Engine struct {
	recentWindow int
	st           store.Store
}

// NewEngine builds an Engine reading the last recentWindow attempts as the
// "recent window" (spec default: 8).
func NewEngine(st store.Store, recentWindow int) *Engine {
	return &Engine{recentWindow: recentWindow, st: st}
}

// scoreOf converts a QuizAttempt's 0..1 score to the 0..100 scale the
// thresholds are expressed in.
func scoreOf(a models.QuizAttempt) float64 { return a.Score * 100 }

// recommend applies the shared threshold rule used for both the global and
// per-skill recommendations: >=70 maintain/increase (decided by trajectory),
// 40-69 maintain/decrease (decided by trajectory), <40 decrease. sampleSize
// under 2 yields coldStartValue, the caller's cold-start sentinel.
func recommend(avg float64, sampleSize int, trend models.Trajectory, increaseWord, maintainWord, decreaseWord, coldStartValue models.DifficultyRecommendation) models.DifficultyRecommendation {
	if sampleSize < 2 {
		return coldStartValue
	}
	switch {
	case avg >= 70:
		if trend == models.TrajectoryImproving {
			return increaseWord
		}
		return maintainWord
	case avg >= 40:
		if trend == models.TrajectoryDeclining {
			return decreaseWord
		}
		return maintainWord
	default:
		return decreaseWord
	}
}

// trajectoryOf classifies the last 10 attempts (oldest first) into
// improving/declining/stable by comparing the mean of the earlier half to
// the mean of the recent half.
func trajectoryOf(lastTen []models.QuizAttempt) models.Trajectory {
	if len(lastTen) < 2 {
		return models.TrajectoryStable
	}
	mid := len(lastTen) / 2
	earlier := lastTen[:mid]
	recent := lastTen[mid:]

	earlierMean := mean(earlier)
	recentMean := mean(recent)

	switch {
	case recentMean-earlierMean >= 10:
		return models.TrajectoryImproving
	case earlierMean-recentMean >= 10:
		return models.TrajectoryDeclining
	default:
		return models.TrajectoryStable
	}
}

func mean(attempts []models.QuizAttempt) float64 {
	if len(attempts) == 0 {
		return 0
	}
	var sum float64
	for _, a := range attempts {
		sum += scoreOf(a)
	}
	return sum / float64(len(attempts))
}

// round2 rounds v to 2 decimal places, the precision spec.md's testable
// property 6 requires for recent_avg/lifetime_avg.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// chronological reverses a most-recent-first slice into oldest-first order.
func chronological(attempts []models.QuizAttempt) []models.QuizAttempt {
	out := make([]models.QuizAttempt, len(attempts))
	for i, a := range attempts {
		out[len(attempts)-1-i] = a
	}
	return out
}

// Evaluate recomputes the DNA snapshot for studentID and persists it with
// the next monotonic version. triggerEvent is one of "attempt",
// "teacher_notes", "reassessment".
func (e *Engine) Evaluate(ctx context.Context, studentID uuid.UUID, triggerEvent string) (*models.LearningDNA, error) {
	recentMostRecentFirst, err := e.st.Attempts().RecentByStudent(ctx, studentID, e.recentWindow)
	if err != nil {
		return nil, err
	}
	recent := chronological(recentMostRecentFirst)

	lifetimeCount, err := e.st.Attempts().CountByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	var lifetimeAvg float64
	if lifetimeCount > 0 {
		// n=0 asks the store for every attempt the student has made, so
		// this is the true lifetime mean, not a windowed approximation.
		allMostRecentFirst, err := e.st.Attempts().RecentByStudent(ctx, studentID, 0)
		if err != nil {
			return nil, err
		}
		lifetimeAvg = mean(allMostRecentFirst)
	}

	recentAvg := mean(recent)
	globalRec := recommend(recentAvg, len(recent), trajectoryOf(last(recent, 10)), models.RecIncrease, models.RecMaintain, models.RecDecrease, models.RecDecrease)

	profile, err := e.skillProfile(ctx, studentID)
	if err != nil {
		return nil, err
	}

	dna := &models.LearningDNA{
		ID:                   uuid.New(),
		StudentID:            studentID,
		RecentAvg:            round2(recentAvg),
		LifetimeAvg:          round2(lifetimeAvg),
		SkillProfile:         profile,
		GlobalRecommendation: globalRec,
		Trajectory:           trajectoryOf(last(recent, 10)),
		ColdStart:            len(recent) < 2,
		TriggerEvent:         triggerEvent,
		CreatedAt:            time.Now(),
	}

	prior, err := e.st.DNA().LatestByStudent(ctx, studentID)
	if err != nil {
		dna.Version = 1
	} else {
		dna.Version = prior.Version + 1
	}

	if err := e.st.DNA().Create(ctx, dna); err != nil {
		return nil, err
	}
	return dna, nil
}

func last(attempts []models.QuizAttempt, n int) []models.QuizAttempt {
	if len(attempts) <= n {
		return attempts
	}
	return attempts[len(attempts)-n:]
}

// skillProfile computes a per-skill recommendation over the last 8 items
// tagged with each skill, across the student's recent attempts.
func (e *Engine) skillProfile(ctx context.Context, studentID uuid.UUID) ([]models.SkillProfileEntry, error) {
	attempts, err := e.st.Attempts().RecentByStudent(ctx, studentID, 0)
	if err != nil {
		return nil, err
	}

	bySkill := make(map[string][]bool) // correctness, most-recent-first across attempts
	for _, a := range attempts {
		items, err := e.st.Attempts().ItemsByAttempt(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			bySkill[it.SkillTag] = append(bySkill[it.SkillTag], it.IsCorrect)
		}
	}

	var out []models.SkillProfileEntry
	for skill, results := range bySkill {
		windowed := results
		if len(windowed) > 8 {
			windowed = windowed[:8]
		}
		correct := 0
		for _, ok := range windowed {
			if ok {
				correct++
			}
		}
		var avg float64
		if len(windowed) > 0 {
			avg = float64(correct) / float64(len(windowed)) * 100
		}
		rec := recommend(avg, len(windowed), models.TrajectoryStable, models.RecChallenge, models.RecMaintain, models.RecSimplify, models.RecColdStart)
		out = append(out, models.SkillProfileEntry{
			SkillTag:       skill,
			Recommendation: rec,
			SampleSize:     len(windowed),
		})
	}
	return out, nil
}
