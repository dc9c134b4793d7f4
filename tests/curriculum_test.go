// Package tests exercises the full intake -> lesson -> quiz -> plan loop
// end to end against internal/store/memory, the way a single package-level
// smoke test would against a real Postgres-backed deployment.
package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/assessment"
	"noble-language-orchestrator/internal/difficulty"
	"noble-language-orchestrator/internal/generator"
	"noble-language-orchestrator/internal/lessonbuilder"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/orchestrator"
	"noble-language-orchestrator/internal/planupdater"
	"noble-language-orchestrator/internal/quizsubmission"
	"noble-language-orchestrator/internal/reassessment"
	"noble-language-orchestrator/internal/scoring"
	"noble-language-orchestrator/internal/store/memory"
)

// useCaseGenerator serves a fixed, per-use-case queue of payloads, so a test
// can stub the whole multi-stage pipeline (assessment, lesson, quiz, plan)
// without caring about the interleaving order calls land in.
func useCaseGenerator(t *testing.T, queues map[generator.UseCase][]interface{}) *generator.Client {
	t.Helper()
	calls := make(map[generator.UseCase]int)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		useCase := generator.UseCase(r.Header.Get("X-Use-Case"))
		queue := queues[useCase]
		idx := calls[useCase]
		require.Truef(t, idx < len(queue), "generator called more times than stubbed for use case %q", useCase)
		calls[useCase] = idx + 1

		raw, err := json.Marshal(queue[idx])
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(generator.Response{Payload: raw})
	}))
	t.Cleanup(server.Close)
	return generator.NewClient(server.URL, func() string { return "test-token" }, generator.WithRetries(1))
}

// alwaysTimeoutGenerator returns a gateway-timeout status on every call, so
// the client exhausts its retry budget and surfaces a Timeout error.
func alwaysTimeoutGenerator(t *testing.T, retries int) *generator.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	t.Cleanup(server.Close)
	return generator.NewClient(server.URL, func() string { return "test-token" },
		generator.WithRetries(retries), generator.WithTimeouts(50*time.Millisecond, 50*time.Millisecond))
}

func intakeDiagnosticPayload() map[string]interface{} {
	return map[string]interface{}{
		"level":      "A1",
		"confidence": 0.8,
		"weak_areas": []string{"present_simple"},
		"gaps": []models.DiagnosticGap{
			{Area: "present_simple", Severity: "medium", Description: "drops the third-person -s"},
		},
		"priority_list": []string{"present_simple"},
	}
}

// runIntake drives a student through the placement and diagnostic stages
// using gen's "assessment" queue, returning the student ID.
func runIntake(t *testing.T, ctx context.Context, st *memory.Store, gen *generator.Client) uuid.UUID {
	t.Helper()
	studentID := uuid.New()
	require.NoError(t, st.Students().Create(ctx, &models.Student{ID: studentID, CurrentLevel: models.LevelPending}))

	assessmentSvc := assessment.NewService(st, gen)

	a, _, err := assessmentSvc.Start(ctx, studentID)
	require.NoError(t, err)

	_, _, err = assessmentSvc.SubmitPlacement(ctx, a.ID, models.JSONB{"p1": "A"})
	require.NoError(t, err)

	completed, err := assessmentSvc.SubmitDiagnostic(ctx, a.ID, models.JSONB{"d1": "answer"})
	require.NoError(t, err)
	require.Equal(t, "completed", completed.Stage)

	return studentID
}

// TestFirstCycleLessonQuizPlan walks the S1 scenario: intake, a confirmed
// session that builds lesson v1 and its derived quiz before any quiz has
// ever been attempted, a quiz submission, and the resulting plan/DNA
// recomputation - the path the lessonbuilder/assessment bootstrapping fix
// exists to keep working.
func TestFirstCycleLessonQuizPlan(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	gen := useCaseGenerator(t, map[generator.UseCase][]interface{}{
		generator.UseCaseAssessment: {
			map[string]interface{}{
				"questions": []models.Question{{ID: "p1", Type: models.QuestionMultipleChoice, CorrectAnswer: "A", SkillTag: "present_simple"}},
			},
			map[string]interface{}{
				"bracket":   "A1",
				"questions": []models.Question{{ID: "d1", Type: models.QuestionMultipleChoice, CorrectAnswer: "A", SkillTag: "present_simple"}},
			},
			intakeDiagnosticPayload(),
		},
		generator.UseCaseLesson: {
			map[string]interface{}{
				"objective":  "Present simple affirmative forms",
				"difficulty": "A1",
				"skill_tags": []map[string]interface{}{
					{"type": "grammar", "value": "present_simple", "cefr_level": "A1"},
				},
			},
		},
		generator.UseCaseQuiz: {
			map[string]interface{}{
				"title": "Present simple check",
				"questions": []models.Question{
					{ID: "q1", Type: models.QuestionMultipleChoice, CorrectAnswer: "A", SkillTag: "present_simple"},
				},
			},
		},
		generator.UseCasePlan: {
			map[string]interface{}{
				"summary": "Keep drilling present simple.",
				"difficulty_adjustment": map[string]interface{}{
					"current_level":  "A1",
					"recommendation": string(models.RecDecrease),
					"rationale":      "cold start after the first graded attempt",
				},
			},
		},
	})

	studentID := runIntake(t, ctx, st, gen)

	// Intake must have already seeded version 1 of both the plan and the DNA
	// snapshot, since the lesson builder requires both and no quiz has run yet.
	seededPlan, err := st.Plans().LatestByStudent(ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, 1, seededPlan.Version)
	seededDNA, err := st.DNA().LatestByStudent(ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, 1, seededDNA.Version)

	lessonBuilder := lessonbuilder.NewBuilder(st, gen, 3, 10)
	planUpdater := planupdater.NewUpdater(st, gen, 1)
	difficultyEngine := difficulty.NewEngine(st, 8)
	scorer := scoring.NewScorer(scoring.DefaultPolicy(), gen)
	reassess := reassessment.NewEngine(st, difficultyEngine, 10, 0.6)
	quizSvc := quizsubmission.NewService(st, scorer, difficultyEngine, planUpdater, reassess)
	orch := orchestrator.New(st, lessonBuilder, gen, planUpdater, 140)

	sess, err := orch.CreateRequest(ctx, studentID, uuid.New(), time.Now().Add(time.Hour), 45)
	require.NoError(t, err)

	confirmed, err := orch.Confirm(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.StepCompleted, confirmed.LessonStatus, "lesson v1 must build on the very first session, before any quiz has ever been attempted")
	require.Equal(t, models.StepCompleted, confirmed.QuizStatus)

	lesson, err := st.Lessons().GetBySession(ctx, sess.ID)
	require.NoError(t, err)
	quiz, err := st.Quizzes().GetByLessonArtifact(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 1)

	result, err := quizSvc.Submit(ctx, quiz.ID, studentID, map[string]string{"q1": "A"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Score)

	plan, err := st.Plans().LatestByStudent(ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Version, "a quiz submission must trigger a new plan version")

	dna, err := st.DNA().LatestByStudent(ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, 2, dna.Version, "a quiz submission must trigger a new DNA snapshot")
}

// TestTenAttemptPromotionTrace walks the S4 scenario: a student who submits
// ten attempts with a clearly improving trajectory gets promoted a CEFR
// level once REASSESS_MIN_ATTEMPTS is reached, driven through the real
// difficulty and reassessment engines rather than asserting on their
// internals directly.
func TestTenAttemptPromotionTrace(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	studentID := uuid.New()
	require.NoError(t, st.Students().Create(ctx, &models.Student{ID: studentID, CurrentLevel: models.LevelA1}))
	require.NoError(t, st.CEFRHistory().Append(ctx, &models.CEFRHistoryEntry{
		ID: uuid.New(), StudentID: studentID, FromLevel: models.LevelPending, ToLevel: models.LevelA1,
		Confidence: 0.8, Source: "intake", CreatedAt: time.Now().Add(-24 * time.Hour),
	}))

	// Five weak attempts followed by five strong ones: a clear improving
	// trajectory with a recent-five average comfortably above the promotion
	// threshold.
	scores := []float64{0.4, 0.45, 0.4, 0.45, 0.4, 0.85, 0.9, 0.85, 0.9, 0.95}
	base := time.Now().Add(-time.Duration(len(scores)) * time.Hour)
	for i, score := range scores {
		require.NoError(t, st.Attempts().Create(ctx, &models.QuizAttempt{
			ID: uuid.New(), QuizID: uuid.New(), StudentID: studentID, Score: score,
			SubmittedAt: base.Add(time.Duration(i) * time.Hour),
		}, nil))
	}

	difficultyEngine := difficulty.NewEngine(st, 10)
	dna, err := difficultyEngine.Evaluate(ctx, studentID, "attempt")
	require.NoError(t, err)
	require.Equal(t, models.TrajectoryImproving, dna.Trajectory, "five weak then five strong attempts must read as improving")

	reassess := reassessment.NewEngine(st, difficultyEngine, 10, 0.6)
	result, err := reassess.Evaluate(ctx, studentID)
	require.NoError(t, err)

	assert.Equal(t, reassessment.DecisionPromote, result.Decision)
	assert.Equal(t, models.LevelA2, result.NewLevel)

	student, err := st.Students().Get(ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, models.LevelA2, student.CurrentLevel)

	history, err := st.CEFRHistory().ListByStudent(ctx, studentID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "reassessment", history[1].Source)
}

// TestFailSoftConfirmUnderRepeatedTimeout walks the S6 scenario: the
// generator endpoint times out twice in a row (exhausting the retry
// budget), so session confirmation must still succeed with the pipeline
// steps marked failed rather than the confirm call itself erroring out.
func TestFailSoftConfirmUnderRepeatedTimeout(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	studentID := uuid.New()
	require.NoError(t, st.Students().Create(ctx, &models.Student{ID: studentID, CurrentLevel: models.LevelA1}))
	require.NoError(t, st.Profiles().Create(ctx, &models.LearnerProfile{
		ID: uuid.New(), StudentID: studentID, RecommendedStart: models.LevelA1, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, st.Plans().Create(ctx, &models.LearningPlan{
		ID: uuid.New(), StudentID: studentID, Version: 1, Summary: "seed", CreatedAt: time.Now(),
	}))
	require.NoError(t, st.DNA().Create(ctx, &models.LearningDNA{
		ID: uuid.New(), StudentID: studentID, Version: 1, ColdStart: true,
		GlobalRecommendation: models.RecMaintain, Trajectory: models.TrajectoryStable, CreatedAt: time.Now(),
	}))

	gen := alwaysTimeoutGenerator(t, 1) // one retry, both calls time out
	lessonBuilder := lessonbuilder.NewBuilder(st, gen, 3, 10)
	planUpdater := planupdater.NewUpdater(st, gen, 1)
	orch := orchestrator.New(st, lessonBuilder, gen, planUpdater, 140)

	sess, err := orch.CreateRequest(ctx, studentID, uuid.New(), time.Now().Add(time.Hour), 45)
	require.NoError(t, err)

	confirmed, err := orch.Confirm(ctx, sess.ID)
	require.NoError(t, err, "confirm must succeed even though the generator never responds")
	assert.Equal(t, models.SessionConfirmed, confirmed.Status, "the transition itself must never unwind because of a pipeline failure")
	assert.Equal(t, models.StepFailed, confirmed.LessonStatus)
	assert.Equal(t, models.StepFailed, confirmed.QuizStatus)

	_, err = st.Lessons().GetBySession(ctx, sess.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation), "no lesson should have been persisted when generation never returned")
}
