package difficulty

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store/memory"
)

func attempt(score float64, when time.Time) models.QuizAttempt {
	return models.QuizAttempt{ID: uuid.New(), QuizID: uuid.New(), StudentID: uuid.New(), Score: score, SubmittedAt: when}
}

func TestTrajectoryOf(t *testing.T) {
	t.Run("fewer than two points is stable", func(t *testing.T) {
		assert.Equal(t, models.TrajectoryStable, trajectoryOf(nil))
		assert.Equal(t, models.TrajectoryStable, trajectoryOf([]models.QuizAttempt{attempt(0.5, time.Now())}))
	})

	t.Run("recent half scoring well above the earlier half is improving", func(t *testing.T) {
		attempts := []models.QuizAttempt{attempt(0.3, time.Now()), attempt(0.3, time.Now()), attempt(0.8, time.Now()), attempt(0.8, time.Now())}
		assert.Equal(t, models.TrajectoryImproving, trajectoryOf(attempts))
	})

	t.Run("recent half scoring well below the earlier half is declining", func(t *testing.T) {
		attempts := []models.QuizAttempt{attempt(0.8, time.Now()), attempt(0.8, time.Now()), attempt(0.3, time.Now()), attempt(0.3, time.Now())}
		assert.Equal(t, models.TrajectoryDeclining, trajectoryOf(attempts))
	})

	t.Run("a small gap is stable", func(t *testing.T) {
		attempts := []models.QuizAttempt{attempt(0.6, time.Now()), attempt(0.62, time.Now())}
		assert.Equal(t, models.TrajectoryStable, trajectoryOf(attempts))
	})
}

func TestRecommend(t *testing.T) {
	t.Run("cold start below two samples returns the sentinel", func(t *testing.T) {
		rec := recommend(90, 1, models.TrajectoryStable, models.RecIncrease, models.RecMaintain, models.RecDecrease, models.RecColdStart)
		assert.Equal(t, models.RecColdStart, rec)
	})

	t.Run("high average with improving trend increases difficulty", func(t *testing.T) {
		rec := recommend(80, 5, models.TrajectoryImproving, models.RecIncrease, models.RecMaintain, models.RecDecrease, models.RecColdStart)
		assert.Equal(t, models.RecIncrease, rec)
	})

	t.Run("high average without improving trend maintains", func(t *testing.T) {
		rec := recommend(80, 5, models.TrajectoryStable, models.RecIncrease, models.RecMaintain, models.RecDecrease, models.RecColdStart)
		assert.Equal(t, models.RecMaintain, rec)
	})

	t.Run("mid-range average with declining trend decreases difficulty", func(t *testing.T) {
		rec := recommend(50, 5, models.TrajectoryDeclining, models.RecIncrease, models.RecMaintain, models.RecDecrease, models.RecColdStart)
		assert.Equal(t, models.RecDecrease, rec)
	})

	t.Run("mid-range average without declining trend maintains", func(t *testing.T) {
		rec := recommend(50, 5, models.TrajectoryStable, models.RecIncrease, models.RecMaintain, models.RecDecrease, models.RecColdStart)
		assert.Equal(t, models.RecMaintain, rec)
	})

	t.Run("low average always decreases regardless of trend", func(t *testing.T) {
		rec := recommend(20, 5, models.TrajectoryImproving, models.RecIncrease, models.RecMaintain, models.RecDecrease, models.RecColdStart)
		assert.Equal(t, models.RecDecrease, rec)
	})
}

func TestChronologicalReversesOrder(t *testing.T) {
	a, b, c := attempt(0.1, time.Now()), attempt(0.2, time.Now()), attempt(0.3, time.Now())
	mostRecentFirst := []models.QuizAttempt{c, b, a}

	oldestFirst := chronological(mostRecentFirst)

	assert.Equal(t, []models.QuizAttempt{a, b, c}, oldestFirst)
}

func TestEngineEvaluateColdStart(t *testing.T) {
	st := memory.New()
	studentID := uuid.New()
	require.NoError(t, st.Students().Create(context.Background(), &models.Student{ID: studentID, CurrentLevel: models.LevelA1}))

	engine := NewEngine(st, 8)
	dna, err := engine.Evaluate(context.Background(), studentID, "attempt")

	require.NoError(t, err)
	assert.True(t, dna.ColdStart)
	assert.Equal(t, 1, dna.Version)
	assert.Equal(t, models.RecDecrease, dna.GlobalRecommendation)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 66.67, round2(66.66666666))
	assert.Equal(t, 0.0, round2(0))
	assert.Equal(t, 100.0, round2(100))
}

func TestEngineEvaluateRoundsRecentAndLifetimeAvgToTwoDecimals(t *testing.T) {
	st := memory.New()
	studentID := uuid.New()
	require.NoError(t, st.Students().Create(context.Background(), &models.Student{ID: studentID, CurrentLevel: models.LevelA1}))

	scores := []float64{0.7, 0.7, 0.7}
	for i, score := range scores {
		require.NoError(t, st.Attempts().Create(context.Background(), &models.QuizAttempt{
			ID: uuid.New(), QuizID: uuid.New(), StudentID: studentID, Score: score,
			SubmittedAt: time.Now().Add(time.Duration(i) * time.Hour),
		}, nil))
	}

	engine := NewEngine(st, 8)
	dna, err := engine.Evaluate(context.Background(), studentID, "attempt")

	require.NoError(t, err)
	assert.Equal(t, 70.0, dna.RecentAvg)
	assert.Equal(t, 70.0, dna.LifetimeAvg)
	assert.Equal(t, dna.RecentAvg, round2(dna.RecentAvg), "recent_avg must already be rounded to 2 decimals")
}

func TestEngineEvaluateVersionsMonotonically(t *testing.T) {
	st := memory.New()
	studentID := uuid.New()
	require.NoError(t, st.Students().Create(context.Background(), &models.Student{ID: studentID, CurrentLevel: models.LevelA1}))

	engine := NewEngine(st, 8)
	first, err := engine.Evaluate(context.Background(), studentID, "attempt")
	require.NoError(t, err)
	second, err := engine.Evaluate(context.Background(), studentID, "attempt")
	require.NoError(t, err)

	assert.Equal(t, first.Version+1, second.Version)
}
