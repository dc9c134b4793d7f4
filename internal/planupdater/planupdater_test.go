package planupdater

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"noble-language-orchestrator/internal/models"
)

func TestValidateContractRequiresDifficultyAgreement(t *testing.T) {
	u := &Updater{dropMaxPer: 1}
	dna := &models.LearningDNA{GlobalRecommendation: models.RecIncrease}

	t.Run("agreeing recommendation passes", func(t *testing.T) {
		payload := planGeneratorPayload{DifficultyAdjustment: models.DifficultyAdjustment{Recommendation: models.RecIncrease}}
		assert.NoError(t, u.validateContract(nil, dna, payload))
	})

	t.Run("disagreeing recommendation is rejected", func(t *testing.T) {
		payload := planGeneratorPayload{DifficultyAdjustment: models.DifficultyAdjustment{Recommendation: models.RecMaintain}}
		err := u.validateContract(nil, dna, payload)
		assert.Error(t, err)
	})
}

func TestValidateContractFirstPlanSkipsFocusAreaRules(t *testing.T) {
	u := &Updater{dropMaxPer: 1}
	dna := &models.LearningDNA{GlobalRecommendation: models.RecMaintain}
	payload := planGeneratorPayload{
		DifficultyAdjustment: models.DifficultyAdjustment{Recommendation: models.RecMaintain},
		TopWeaknesses:        []models.Weakness{{SkillArea: "articles"}, {SkillArea: "past_simple"}, {SkillArea: "idioms"}},
	}

	assert.NoError(t, u.validateContract(nil, dna, payload))
}

func TestValidateContractFocusAreaDropLimit(t *testing.T) {
	u := &Updater{dropMaxPer: 1}
	dna := &models.LearningDNA{GlobalRecommendation: models.RecMaintain}
	previous := &models.LearningPlan{TopWeaknesses: []models.Weakness{{SkillArea: "articles"}, {SkillArea: "past_simple"}}}

	t.Run("dropping one area is within the limit", func(t *testing.T) {
		payload := planGeneratorPayload{
			DifficultyAdjustment: models.DifficultyAdjustment{Recommendation: models.RecMaintain},
			TopWeaknesses:        []models.Weakness{{SkillArea: "articles"}},
		}
		assert.NoError(t, u.validateContract(previous, dna, payload))
	})

	t.Run("dropping every area at once exceeds the limit", func(t *testing.T) {
		payload := planGeneratorPayload{
			DifficultyAdjustment: models.DifficultyAdjustment{Recommendation: models.RecMaintain},
			TopWeaknesses:        []models.Weakness{{SkillArea: "idioms"}},
		}
		err := u.validateContract(previous, dna, payload)
		assert.Error(t, err)
	})
}

func TestValidateContractFocusAreaIntroductionLimit(t *testing.T) {
	u := &Updater{dropMaxPer: 1}
	dna := &models.LearningDNA{GlobalRecommendation: models.RecMaintain}
	previous := &models.LearningPlan{TopWeaknesses: []models.Weakness{{SkillArea: "articles"}}}

	t.Run("introducing one new area is within the limit", func(t *testing.T) {
		payload := planGeneratorPayload{
			DifficultyAdjustment: models.DifficultyAdjustment{Recommendation: models.RecMaintain},
			TopWeaknesses:        []models.Weakness{{SkillArea: "articles"}, {SkillArea: "idioms"}},
		}
		assert.NoError(t, u.validateContract(previous, dna, payload))
	})

	t.Run("introducing two new areas at once exceeds the limit", func(t *testing.T) {
		payload := planGeneratorPayload{
			DifficultyAdjustment: models.DifficultyAdjustment{Recommendation: models.RecMaintain},
			TopWeaknesses:        []models.Weakness{{SkillArea: "articles"}, {SkillArea: "idioms"}, {SkillArea: "phrasal_verbs_separable"}},
		}
		err := u.validateContract(previous, dna, payload)
		assert.Error(t, err)
	})
}
