// Package assessment drives the intake flow that seeds a student's first
// LearnerProfile: a placement stage followed by a diagnostic stage, each
// generated on demand and scored into a determined level, confidence, and
// weak-area list. The engine proper (difficulty, plan updater, lesson
// builder) only begins once this flow has produced a profile.
package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/generator"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store"
)

// Service runs the intake flow.
type Service struct {
	st  store.Store
	gen *generator.Client
}

// NewService builds a Service.
func NewService(st store.Store, gen *generator.Client) *Service {
	return &Service{st: st, gen: gen}
}

// placementPayload is the schema the generator returns for a placement
// question set.
type placementPayload struct {
	Questions []models.Question `json:"questions"`
}

// Start creates a new assessment row for studentID and generates its
// placement stage questions.
func (s *Service) Start(ctx context.Context, studentID uuid.UUID) (*models.Assessment, []models.Question, error) {
	resp, err := s.gen.Generate(ctx, generator.Request{
		UseCase:      generator.UseCaseAssessment,
		SystemPrompt: "You generate a short placement question set spanning CEFR A1 through C2, to bracket a new language learner's level.",
		UserPrompt:   fmt.Sprintf("student_id: %s", studentID),
		Temperature:  0.2,
		JSONMode:     true,
	})
	if err != nil {
		return nil, nil, err
	}

	var payload placementPayload
	if err := generator.DecodePayload(resp, &payload); err != nil {
		return nil, nil, err
	}

	a := &models.Assessment{
		ID:        uuid.New(),
		StudentID: studentID,
		Stage:     "placement",
		CreatedAt: time.Now(),
	}
	if err := s.st.Assessments().Create(ctx, a); err != nil {
		return nil, nil, err
	}
	return a, payload.Questions, nil
}

// diagnosticPayload is the schema the generator returns for a diagnostic
// question set, bracketed to the placement stage's rough level estimate.
type diagnosticPayload struct {
	Bracket   models.CEFRLevel  `json:"bracket"`
	Questions []models.Question `json:"questions"`
}

// SubmitPlacement scores the placement answers, advances the assessment to
// the diagnostic stage, and returns the rough bracket plus diagnostic
// questions targeted at it.
func (s *Service) SubmitPlacement(ctx context.Context, assessmentID uuid.UUID, answers models.JSONB) (models.CEFRLevel, []models.Question, error) {
	a, err := s.st.Assessments().Get(ctx, assessmentID)
	if err != nil {
		return "", nil, err
	}
	a.PlacementAnswers = answers

	resp, err := s.gen.Generate(ctx, generator.Request{
		UseCase:      generator.UseCaseAssessment,
		SystemPrompt: "Given a learner's placement answers, estimate a rough CEFR bracket and generate diagnostic questions that probe the boundary of that bracket.",
		UserPrompt:   fmt.Sprintf("placement_answers: %v", map[string]interface{}(answers)),
		Temperature:  0.2,
		JSONMode:     true,
	})
	if err != nil {
		return "", nil, err
	}

	var payload diagnosticPayload
	if err := generator.DecodePayload(resp, &payload); err != nil {
		return "", nil, err
	}

	a.Stage = "diagnostic"
	if err := s.st.Assessments().Update(ctx, a); err != nil {
		return "", nil, err
	}
	return payload.Bracket, payload.Questions, nil
}

// diagnosticResultPayload is the schema the generator returns for the final
// diagnostic determination.
type diagnosticResultPayload struct {
	Level      models.CEFRLevel `json:"level"`
	Confidence float64          `json:"confidence"`
	WeakAreas  []string         `json:"weak_areas"`
	Gaps       []models.DiagnosticGap `json:"gaps"`
	PriorityList []string       `json:"priority_list"`
}

// SubmitDiagnostic scores the diagnostic answers, completes the assessment,
// creates the student's LearnerProfile, and sets the student's level.
func (s *Service) SubmitDiagnostic(ctx context.Context, assessmentID uuid.UUID, answers models.JSONB) (*models.Assessment, error) {
	a, err := s.st.Assessments().Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	a.DiagnosticAnswers = answers

	resp, err := s.gen.Generate(ctx, generator.Request{
		UseCase:      generator.UseCaseAssessment,
		SystemPrompt: "Given a learner's placement and diagnostic answers, determine a final CEFR level, a confidence in [0,1], weak areas, and a prioritized diagnostic-gap list.",
		UserPrompt:   fmt.Sprintf("placement_answers: %v\ndiagnostic_answers: %v", map[string]interface{}(a.PlacementAnswers), map[string]interface{}(answers)),
		Temperature:  0.2,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	var payload diagnosticResultPayload
	if err := generator.DecodePayload(resp, &payload); err != nil {
		return nil, err
	}

	now := time.Now()
	a.DeterminedLevel = payload.Level
	a.Confidence = payload.Confidence
	a.WeakAreas = payload.WeakAreas
	a.Stage = "completed"
	a.CompletedAt = &now
	if err := s.st.Assessments().Update(ctx, a); err != nil {
		return nil, err
	}

	if err := s.st.Students().UpdateLevel(ctx, a.StudentID, payload.Level); err != nil {
		return nil, err
	}

	profile := &models.LearnerProfile{
		ID:               uuid.New(),
		StudentID:        a.StudentID,
		Gaps:             payload.Gaps,
		PriorityList:     payload.PriorityList,
		RecommendedStart: payload.Level,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.st.Profiles().Create(ctx, profile); err != nil {
		return nil, err
	}

	if err := s.st.CEFRHistory().Append(ctx, &models.CEFRHistoryEntry{
		ID:         uuid.New(),
		StudentID:  a.StudentID,
		FromLevel:  models.LevelPending,
		ToLevel:    payload.Level,
		Confidence: payload.Confidence,
		Source:     "intake",
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	if err := s.seedInitialPlanAndDNA(ctx, a.StudentID, payload.Level, payload.Gaps, payload.PriorityList, now); err != nil {
		return nil, err
	}

	return a, nil
}

// seedInitialPlanAndDNA creates the student's version-1 LearningPlan and
// LearningDNA from the diagnostic result. Every later plan/DNA update reads
// "the previous plan"/"the latest DNA snapshot" by LatestByStudent, and the
// lesson builder requires both to exist; intake is the only point in the
// flow before any quiz has been attempted, so it is where version 1 of each
// must originate.
func (s *Service) seedInitialPlanAndDNA(ctx context.Context, studentID uuid.UUID, level models.CEFRLevel, gaps []models.DiagnosticGap, priorityList []string, now time.Time) error {
	weaknesses := make([]models.Weakness, 0, len(gaps))
	for _, g := range gaps {
		weaknesses = append(weaknesses, models.Weakness{SkillArea: g.Area, Priority: "high"})
	}

	plan := &models.LearningPlan{
		ID:        uuid.New(),
		StudentID: studentID,
		Version:   1,
		Summary:   "Initial plan from intake diagnostic.",
		TopWeaknesses: weaknesses,
		DifficultyAdjustment: models.DifficultyAdjustment{
			CurrentLevel:   level,
			Recommendation: models.RecMaintain,
			Rationale:      "no quiz attempts yet; holding at the diagnosed level",
		},
		GrammarFocus:      priorityList,
		RecommendedDrills: priorityList,
		CreatedAt:         now,
	}
	if err := s.st.Plans().Create(ctx, plan); err != nil {
		return err
	}

	dna := &models.LearningDNA{
		ID:                   uuid.New(),
		StudentID:            studentID,
		Version:              1,
		GlobalRecommendation: models.RecMaintain,
		Trajectory:           models.TrajectoryStable,
		ColdStart:            true,
		TriggerEvent:         "intake",
		CreatedAt:            now,
	}
	return s.st.DNA().Create(ctx, dna)
}
