// Package planupdater implements the Plan Updater: gathers the previous
// plan, latest attempt, recent observations, DNA, profile, L1 patterns, and
// CEFR history, calls the Generator Client for a new LearningPlan, validates
// its contract, and writes it with the next monotonic version.
package planupdater

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/generator"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store"
)

// Updater runs the plan-update contract.
type Updater struct {
	st          store.Store
	gen         *generator.Client
	dropMaxPer  int
}

// NewUpdater builds an Updater. dropMaxPerUpdate bounds how many focus areas
// may be dropped in one update (spec default: 1).
func NewUpdater(st store.Store, gen *generator.Client, dropMaxPerUpdate int) *Updater {
	return &Updater{st: st, gen: gen, dropMaxPer: dropMaxPerUpdate}
}

// TriggerSource names why the update ran. Update accepts it but does not use
// it in the prompt, in any log line, or in the stored plan.
type TriggerSource string

const (
	TriggerQuizSubmission TriggerSource = "quiz_submission"
	TriggerTeacherNotes   TriggerSource = "teacher_notes"
	TriggerSessionComplete TriggerSource = "session_complete"
)

// planGeneratorPayload is the schema the generator is expected to return for
// the "plan" use case.
type planGeneratorPayload struct {
	Summary              string                       `json:"summary"`
	GoalsNext2Weeks       []string                     `json:"goals_next_2_weeks"`
	TopWeaknesses        []models.Weakness            `json:"top_weaknesses"`
	DifficultyAdjustment models.DifficultyAdjustment  `json:"difficulty_adjustment"`
	GrammarFocus         []string                     `json:"grammar_focus"`
	VocabularyFocus      []string                     `json:"vocabulary_focus"`
	RecommendedDrills    []string                     `json:"recommended_drills"`
	TeacherGuidance      map[string]interface{}       `json:"teacher_guidance"`
}

// Update runs the full contract for studentID and persists the resulting
// plan. On validation failure, nothing is persisted and the previous plan
// remains current.
func (u *Updater) Update(ctx context.Context, studentID uuid.UUID, source TriggerSource) (*models.LearningPlan, error) {
	previous, err := u.st.Plans().LatestByStudent(ctx, studentID)
	if err != nil && !apperrors.Is(err, apperrors.KindValidation) {
		return nil, err
	}

	dna, err := u.st.DNA().LatestByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("plan update requires a DNA snapshot: %w", err)
	}

	profile, err := u.st.Profiles().GetByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("plan update requires a learner profile: %w", err)
	}

	observations, err := u.st.Observations().RecentByStudent(ctx, studentID, 10)
	if err != nil {
		return nil, err
	}

	interference, err := u.st.Interference().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	cefrHistory, err := u.st.CEFRHistory().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	resp, err := u.gen.Generate(ctx, generator.Request{
		UseCase:      generator.UseCasePlan,
		SystemPrompt: buildSystemPrompt(),
		UserPrompt:   buildUserPrompt(previous, dna, profile, observations, interference, cefrHistory),
		Temperature:  0.3,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	var payload planGeneratorPayload
	if err := generator.DecodePayload(resp, &payload); err != nil {
		return nil, err
	}

	if err := u.validateContract(previous, dna, payload); err != nil {
		return nil, err
	}

	version := 1
	if previous != nil {
		version = previous.Version + 1
	}

	plan := &models.LearningPlan{
		ID:                   uuid.New(),
		StudentID:            studentID,
		Version:              version,
		Summary:              payload.Summary,
		GoalsNext2Weeks:      payload.GoalsNext2Weeks,
		TopWeaknesses:        payload.TopWeaknesses,
		DifficultyAdjustment: payload.DifficultyAdjustment,
		GrammarFocus:         payload.GrammarFocus,
		VocabularyFocus:      payload.VocabularyFocus,
		TeacherGuidance:      payload.TeacherGuidance,
		RecommendedDrills:    payload.RecommendedDrills,
		CreatedAt:            time.Now(),
	}

	if err := u.st.Plans().Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// validateContract enforces the rules the generator must follow (spec §4.5):
// difficulty agreement with DNA, and the drop/introduce-at-most-one rules
// relative to the previous plan's focus areas.
func (u *Updater) validateContract(previous *models.LearningPlan, dna *models.LearningDNA, payload planGeneratorPayload) error {
	if payload.DifficultyAdjustment.Recommendation != dna.GlobalRecommendation {
		return apperrors.Validation(fmt.Sprintf(
			"plan difficulty_adjustment.recommendation %q disagrees with DNA global_recommendation %q",
			payload.DifficultyAdjustment.Recommendation, dna.GlobalRecommendation), nil)
	}

	if previous == nil {
		return nil
	}

	previousAreas := make(map[string]bool)
	for _, w := range previous.TopWeaknesses {
		previousAreas[w.SkillArea] = true
	}
	newAreas := make(map[string]bool)
	for _, w := range payload.TopWeaknesses {
		newAreas[w.SkillArea] = true
	}

	dropped := 0
	for area := range previousAreas {
		if !newAreas[area] {
			dropped++
		}
	}
	if dropped > u.dropMaxPer {
		return apperrors.Validation(fmt.Sprintf("plan dropped %d focus areas, exceeding the max of %d per update", dropped, u.dropMaxPer), nil)
	}

	introduced := 0
	for area := range newAreas {
		if !previousAreas[area] {
			introduced++
		}
	}
	if introduced > 1 {
		return apperrors.Validation(fmt.Sprintf("plan introduced %d new focus areas, exceeding the max of 1 per update", introduced), nil)
	}

	return nil
}

func buildSystemPrompt() string {
	return "You update a language learner's plan given their prior plan, performance DNA, and teacher observations. " +
		"Keep a weakness high-priority while its accuracy stays below 60%, move it to maintenance once it reaches 70%, " +
		"introduce at most one new focus area, and drop at most one existing focus area. The difficulty_adjustment " +
		"recommendation must exactly match the provided DNA global recommendation."
}

func buildUserPrompt(
	previous *models.LearningPlan,
	dna *models.LearningDNA,
	profile *models.LearnerProfile,
	observations []models.SessionSkillObservation,
	interference []models.L1InterferencePattern,
	cefrHistory []models.CEFRHistoryEntry,
) string {
	prompt := fmt.Sprintf("DNA global recommendation: %s\nDNA trajectory: %s\nRecommended level: %s\n",
		dna.GlobalRecommendation, dna.Trajectory, profile.RecommendedStart)
	if previous != nil {
		prompt += fmt.Sprintf("Previous plan summary: %s\nPrevious focus areas: %v\n", previous.Summary, previous.TopWeaknesses)
	}
	prompt += fmt.Sprintf("Recent observations: %d\nActive L1 interference patterns: %d\nCEFR history entries: %d\n",
		len(observations), len(interference), len(cefrHistory))
	return prompt
}
