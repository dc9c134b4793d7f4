// Package lessonbuilder implements the Lesson Builder: gathers the nine
// context inputs named in the spec, calls the Generator Client, enforces
// the topic-repetition and canonical-tag policies, and persists the
// resulting immutable LessonArtifact with its skill tags in one atomic
// write alongside the owning session.
package lessonbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/generator"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store"
	"noble-language-orchestrator/internal/taxonomy"
)

// Builder runs the lesson-generation contract.
type Builder struct {
	st               store.Store
	gen              *generator.Client
	lessonLookback   int
	observationLookback int
}

// NewBuilder builds a Builder. lessonLookback/observationLookback are the
// spec's LESSON_LOOKBACK / OBSERVATION_LOOKBACK knobs.
func NewBuilder(st store.Store, gen *generator.Client, lessonLookback, observationLookback int) *Builder {
	return &Builder{st: st, gen: gen, lessonLookback: lessonLookback, observationLookback: observationLookback}
}

// lessonGeneratorPayload is the schema the generator is expected to return
// for the "lesson" use case.
type lessonGeneratorPayload struct {
	Objective          string                  `json:"objective"`
	Difficulty         models.CEFRLevel        `json:"difficulty"`
	WarmUp             models.LessonPhase      `json:"warm_up"`
	Presentation       models.LessonPhase      `json:"presentation"`
	ControlledPractice models.LessonPhase      `json:"controlled_practice"`
	FreePractice       models.LessonPhase      `json:"free_practice"`
	WrapUp             models.LessonPhase      `json:"wrap_up"`
	SkillTags          []generatedSkillTag     `json:"skill_tags"`
}

type generatedSkillTag struct {
	Type      models.SkillTagType `json:"type"`
	Value     string              `json:"value"`
	CEFRLevel models.CEFRLevel    `json:"cefr_level"`
}

// Build gathers context for sessionID's student, generates a lesson, and
// persists the artifact plus its canonical tags atomically.
func (b *Builder) Build(ctx context.Context, sessionID, studentID uuid.UUID) (*models.LessonArtifact, error) {
	profile, err := b.st.Profiles().GetByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("lesson build requires a learner profile: %w", err)
	}

	plan, err := b.st.Plans().LatestByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("lesson build requires a learning plan: %w", err)
	}

	recentTopics, err := b.st.Lessons().RecentTopicsByStudent(ctx, studentID, b.lessonLookback)
	if err != nil {
		return nil, err
	}

	observations, err := b.st.Observations().RecentByStudent(ctx, studentID, b.observationLookback)
	if err != nil {
		return nil, err
	}

	cefrHistory, err := b.st.CEFRHistory().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(cefrHistory) > 5 {
		cefrHistory = cefrHistory[len(cefrHistory)-5:]
	}

	dna, err := b.st.DNA().LatestByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("lesson build requires a DNA snapshot: %w", err)
	}

	interference, err := b.st.Interference().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	dueItems, err := b.st.SpacedItems().DueByStudent(ctx, studentID, time.Now())
	if err != nil {
		return nil, err
	}
	if len(dueItems) > 10 {
		dueItems = dueItems[:10]
	}

	previousTopic, previousScoreBelowHalf, err := b.lastTopicAndScore(ctx, studentID)
	if err != nil {
		return nil, err
	}

	resp, err := b.gen.Generate(ctx, generator.Request{
		UseCase:      generator.UseCaseLesson,
		SystemPrompt: buildSystemPrompt(previousTopic, previousScoreBelowHalf),
		UserPrompt:   buildUserPrompt(profile, plan, recentTopics, observations, cefrHistory, dna, interference, dueItems),
		Temperature:  0.4,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	var payload lessonGeneratorPayload
	if err := generator.DecodePayload(resp, &payload); err != nil {
		return nil, err
	}

	if !previousScoreBelowHalf && previousTopic != "" {
		for _, topic := range lessonTopics(payload) {
			if strings.EqualFold(topic, previousTopic) {
				return nil, apperrors.GenerationInvalid(fmt.Sprintf("generated lesson repeats the previous topic %q without a sub-50%% quiz score", previousTopic), nil)
			}
		}
	}

	artifact := &models.LessonArtifact{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		StudentID:          studentID,
		Difficulty:         payload.Difficulty,
		PromptVersion:       1,
		Topics:             lessonTopics(payload),
		Objective:          payload.Objective,
		WarmUp:             payload.WarmUp,
		Presentation:       payload.Presentation,
		ControlledPractice: payload.ControlledPractice,
		FreePractice:       payload.FreePractice,
		WrapUp:             payload.WrapUp,
		CreatedAt:          time.Now(),
	}

	tags := make([]models.LessonSkillTag, 0, len(payload.SkillTags))
	for _, t := range payload.SkillTags {
		canonical := taxonomy.Normalize(t.Value)
		if !taxonomy.IsCanonical(canonical) {
			return nil, apperrors.GenerationInvalid(fmt.Sprintf("generated skill tag %q is not in the canonical taxonomy", t.Value), nil)
		}
		tags = append(tags, models.LessonSkillTag{
			ID:        uuid.New(),
			LessonID:  artifact.ID,
			TagType:   t.Type,
			TagValue:  canonical,
			CEFRLevel: t.CEFRLevel,
		})
	}

	if err := b.st.Lessons().Create(ctx, artifact, tags); err != nil {
		return nil, err
	}
	return artifact, nil
}

// lastTopicAndScore returns the previous lesson's primary topic and whether
// the quiz derived from it scored below 50%, used to enforce the
// no-topic-repeat policy.
func (b *Builder) lastTopicAndScore(ctx context.Context, studentID uuid.UUID) (string, bool, error) {
	topics, err := b.st.Lessons().RecentTopicsByStudent(ctx, studentID, 1)
	if err != nil {
		return "", false, err
	}
	if len(topics) == 0 || len(topics[0]) == 0 {
		return "", false, nil
	}
	previousTopic := topics[0][0]

	sessions, err := b.st.Sessions().ListByStudent(ctx, studentID, 1)
	if err != nil || len(sessions) == 0 {
		return previousTopic, false, nil
	}
	lessonArtifact, err := b.st.Lessons().GetBySession(ctx, sessions[0].ID)
	if err != nil {
		return previousTopic, false, nil
	}
	quiz, err := b.st.Quizzes().GetByLessonArtifact(ctx, lessonArtifact.ID)
	if err != nil {
		return previousTopic, false, nil
	}
	attempts, err := b.st.Attempts().RecentByStudent(ctx, studentID, 1)
	if err != nil || len(attempts) == 0 || attempts[0].QuizID != quiz.ID {
		return previousTopic, false, nil
	}
	return previousTopic, attempts[0].Score < 0.5, nil
}

func lessonTopics(payload lessonGeneratorPayload) []string {
	if payload.Objective == "" {
		return nil
	}
	return []string{payload.Objective}
}

func buildSystemPrompt(previousTopic string, allowRepeat bool) string {
	guidance := "Never repeat the previous lesson's primary topic."
	if allowRepeat {
		guidance = fmt.Sprintf("The previous topic %q scored below 50%% on its quiz, so repeating it is allowed and often appropriate.", previousTopic)
	}
	return "You build a five-phase language lesson (warm_up, presentation, controlled_practice, free_practice, wrap_up) " +
		"confined to the canonical skill-tag taxonomy. " + guidance
}

func buildUserPrompt(
	profile *models.LearnerProfile,
	plan *models.LearningPlan,
	recentTopics [][]string,
	observations []models.SessionSkillObservation,
	cefrHistory []models.CEFRHistoryEntry,
	dna *models.LearningDNA,
	interference []models.L1InterferencePattern,
	dueItems []models.SpacedItem,
) string {
	return fmt.Sprintf(
		"Recommended level: %s\nPriorities: %v\nPlan summary: %s\nRecent topics: %v\n"+
			"Recent observations: %d\nCEFR history entries: %d\nDNA global recommendation: %s\n"+
			"Active L1 patterns: %d\nDue spaced items: %d\n",
		profile.RecommendedStart, profile.PriorityList, plan.Summary, recentTopics,
		len(observations), len(cefrHistory), dna.GlobalRecommendation, len(interference), len(dueItems))
}
