package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/models"
)

func TestPlanRepoEnforcesMonotonicVersioning(t *testing.T) {
	st := New()
	ctx := context.Background()
	studentID := uuid.New()

	require.NoError(t, st.Plans().Create(ctx, &models.LearningPlan{ID: uuid.New(), StudentID: studentID, Version: 1}))

	t.Run("skipping a version is rejected", func(t *testing.T) {
		err := st.Plans().Create(ctx, &models.LearningPlan{ID: uuid.New(), StudentID: studentID, Version: 3})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindStoreConflict))
	})

	t.Run("the next version in sequence is accepted", func(t *testing.T) {
		require.NoError(t, st.Plans().Create(ctx, &models.LearningPlan{ID: uuid.New(), StudentID: studentID, Version: 2}))
		latest, err := st.Plans().LatestByStudent(ctx, studentID)
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)
	})
}

func TestDNARepoEnforcesMonotonicVersioning(t *testing.T) {
	st := New()
	ctx := context.Background()
	studentID := uuid.New()

	require.NoError(t, st.DNA().Create(ctx, &models.LearningDNA{ID: uuid.New(), StudentID: studentID, Version: 1}))

	err := st.DNA().Create(ctx, &models.LearningDNA{ID: uuid.New(), StudentID: studentID, Version: 1})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindStoreConflict))
}

func TestAttemptRepoRejectsADuplicateSubmissionForTheSameQuiz(t *testing.T) {
	st := New()
	ctx := context.Background()
	quizID, studentID := uuid.New(), uuid.New()

	require.NoError(t, st.Attempts().Create(ctx, &models.QuizAttempt{ID: uuid.New(), QuizID: quizID, StudentID: studentID, Score: 0.5}, nil))

	err := st.Attempts().Create(ctx, &models.QuizAttempt{ID: uuid.New(), QuizID: quizID, StudentID: studentID, Score: 0.9}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindStoreConflict))
}

func TestInterferenceRepoUpsertAccumulatesOccurrences(t *testing.T) {
	st := New()
	ctx := context.Background()
	studentID := uuid.New()
	now := time.Now()

	first := &models.L1InterferencePattern{
		ID: uuid.New(), StudentID: studentID, PatternCategory: "false_cognate", PatternDetail: "embarazada/embarrassed",
		Status: models.PatternExhibited, OccurrenceCount: 1, FirstSeenAt: now, LastSeenAt: now,
	}
	require.NoError(t, st.Interference().Upsert(ctx, first))

	later := now.Add(time.Hour)
	second := &models.L1InterferencePattern{
		ID: uuid.New(), StudentID: studentID, PatternCategory: "false_cognate", PatternDetail: "embarazada/embarrassed",
		Status: models.PatternExhibited, OccurrenceCount: 1, FirstSeenAt: later, LastSeenAt: later,
	}
	require.NoError(t, st.Interference().Upsert(ctx, second))

	patterns, err := st.Interference().ListByStudent(ctx, studentID)
	require.NoError(t, err)
	require.Len(t, patterns, 1, "a repeated exhibited pattern should accumulate, not duplicate")
	assert.Equal(t, 2, patterns[0].OccurrenceCount)
	assert.Equal(t, later, patterns[0].LastSeenAt)
}

func TestInterferenceRepoMarkOvercomeStopsAccumulation(t *testing.T) {
	st := New()
	ctx := context.Background()
	studentID := uuid.New()
	now := time.Now()

	pattern := &models.L1InterferencePattern{
		ID: uuid.New(), StudentID: studentID, PatternCategory: "word_order", PatternDetail: "adjective placement",
		Status: models.PatternExhibited, OccurrenceCount: 1, FirstSeenAt: now, LastSeenAt: now,
	}
	require.NoError(t, st.Interference().Upsert(ctx, pattern))
	require.NoError(t, st.Interference().MarkOvercome(ctx, pattern.ID, now.Add(time.Hour)))

	repeat := &models.L1InterferencePattern{
		ID: uuid.New(), StudentID: studentID, PatternCategory: "word_order", PatternDetail: "adjective placement",
		Status: models.PatternExhibited, OccurrenceCount: 1, FirstSeenAt: now, LastSeenAt: now,
	}
	require.NoError(t, st.Interference().Upsert(ctx, repeat))

	patterns, err := st.Interference().ListByStudent(ctx, studentID)
	require.NoError(t, err)
	require.Len(t, patterns, 2, "a pattern marked overcome should not absorb a fresh occurrence")
}
