package lessonbuilder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noble-language-orchestrator/internal/generator"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store"
	"noble-language-orchestrator/internal/store/memory"
)

func fixedPayloadGenerator(t *testing.T, payload interface{}) *generator.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(generator.Response{Payload: raw})
	}))
	t.Cleanup(server.Close)
	return generator.NewClient(server.URL, func() string { return "test-token" })
}

func seedPrerequisites(t *testing.T, st store.Store, studentID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Profiles().Create(ctx, &models.LearnerProfile{ID: uuid.New(), StudentID: studentID, RecommendedStart: models.LevelA2}))
	require.NoError(t, st.Plans().Create(ctx, &models.LearningPlan{ID: uuid.New(), StudentID: studentID, Version: 1, Summary: "focus on articles"}))
	require.NoError(t, st.DNA().Create(ctx, &models.LearningDNA{ID: uuid.New(), StudentID: studentID, Version: 1, GlobalRecommendation: models.RecMaintain}))
}

func lessonPayload(objective string) map[string]interface{} {
	phase := map[string]interface{}{"duration_minutes": 10}
	return map[string]interface{}{
		"objective":           objective,
		"difficulty":          "A2",
		"warm_up":             phase,
		"presentation":        phase,
		"controlled_practice": phase,
		"free_practice":       phase,
		"wrap_up":             phase,
		"skill_tags": []map[string]interface{}{
			{"type": "grammar", "value": "word_order", "cefr_level": "A2"},
		},
	}
}

func TestBuildPersistsALessonWithCanonicalTags(t *testing.T) {
	st := memory.New()
	studentID := uuid.New()
	seedPrerequisites(t, st, studentID)

	gen := fixedPayloadGenerator(t, lessonPayload("word order in questions"))
	b := NewBuilder(st, gen, 3, 10)

	artifact, err := b.Build(context.Background(), uuid.New(), studentID)

	require.NoError(t, err)
	assert.Equal(t, models.LevelA2, artifact.Difficulty)
	assert.Equal(t, []string{"word order in questions"}, artifact.Topics)

	tags, err := st.Lessons().TagsByLesson(context.Background(), artifact.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "word_order", tags[0].TagValue)
}

func TestBuildRejectsANonCanonicalSkillTag(t *testing.T) {
	st := memory.New()
	studentID := uuid.New()
	seedPrerequisites(t, st, studentID)

	payload := lessonPayload("greetings")
	payload["skill_tags"] = []map[string]interface{}{
		{"type": "grammar", "value": "not_a_real_tag", "cefr_level": "A2"},
	}
	gen := fixedPayloadGenerator(t, payload)
	b := NewBuilder(st, gen, 3, 10)

	_, err := b.Build(context.Background(), uuid.New(), studentID)

	assert.Error(t, err)
}

func TestBuildRejectsRepeatingThePreviousTopicAfterAPassingScore(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	studentID := uuid.New()
	seedPrerequisites(t, st, studentID)

	session := &models.Session{ID: uuid.New(), StudentID: studentID, Status: models.SessionCompleted}
	require.NoError(t, st.Sessions().Create(ctx, session))

	firstLesson := &models.LessonArtifact{ID: uuid.New(), SessionID: session.ID, StudentID: studentID, Topics: []string{"past tense basics"}}
	require.NoError(t, st.Lessons().Create(ctx, firstLesson, nil))

	quiz := &models.NextQuiz{ID: uuid.New(), StudentID: studentID, DerivedFromLessonArtifactID: firstLesson.ID}
	require.NoError(t, st.Quizzes().Create(ctx, quiz))
	require.NoError(t, st.Attempts().Create(ctx, &models.QuizAttempt{ID: uuid.New(), QuizID: quiz.ID, StudentID: studentID, Score: 0.9}, nil))

	gen := fixedPayloadGenerator(t, lessonPayload("past tense basics"))
	b := NewBuilder(st, gen, 3, 10)

	_, err := b.Build(ctx, uuid.New(), studentID)

	assert.Error(t, err, "a passing score on the previous topic's quiz should forbid repeating it")
}
