// Package models defines the persistent entities of the learning loop:
// students, assessments, plans, lessons, quizzes, attempts, DNA snapshots,
// L1 interference patterns, and spaced-repetition items.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CEFRLevel is a closed sum of proficiency bands. "pending" marks a student
// who has not completed an initial assessment yet.
type CEFRLevel string

const (
	LevelPending CEFRLevel = "pending"
	LevelA1      CEFRLevel = "A1"
	LevelA2      CEFRLevel = "A2"
	LevelB1      CEFRLevel = "B1"
	LevelB2      CEFRLevel = "B2"
	LevelC1      CEFRLevel = "C1"
	LevelC2      CEFRLevel = "C2"
)

// cefrOrder gives the promotion/demotion ordering of the CEFR ladder.
var cefrOrder = []CEFRLevel{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// Next returns the level one step above l, or ok=false at the ceiling.
func (l CEFRLevel) Next() (CEFRLevel, bool) {
	for i, lvl := range cefrOrder {
		if lvl == l && i+1 < len(cefrOrder) {
			return cefrOrder[i+1], true
		}
	}
	return l, false
}

// Previous returns the level one step below l, or ok=false at the floor.
func (l CEFRLevel) Previous() (CEFRLevel, bool) {
	for i, lvl := range cefrOrder {
		if lvl == l && i > 0 {
			return cefrOrder[i-1], true
		}
	}
	return l, false
}

// JSONB stores an opaque JSON document in a Postgres jsonb column. It backs
// the untyped documents (assessment answers, LearningPath.WeeklyPlan,
// LearningPlan.TeacherGuidance); its contents are not validated.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return json.Unmarshal(value.([]byte), j)
	}
}

// Student is the identity anchor for the whole loop.
type Student struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	NativeLanguage string    `json:"native_language"`
	CurrentLevel   CEFRLevel `json:"current_level"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Assessment captures the placement + diagnostic intake flow.
type Assessment struct {
	ID                uuid.UUID  `json:"id"`
	StudentID         uuid.UUID  `json:"student_id"`
	Stage             string     `json:"stage"` // placement, diagnostic, completed
	PlacementAnswers  JSONB      `json:"placement_answers,omitempty"`
	DiagnosticAnswers JSONB      `json:"diagnostic_answers,omitempty"`
	DeterminedLevel   CEFRLevel  `json:"determined_level,omitempty"`
	Confidence        float64    `json:"confidence"`
	WeakAreas         []string   `json:"weak_areas"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// DiagnosticGap is one weakness surfaced at intake.
type DiagnosticGap struct {
	Area        string `json:"area"`
	Severity    string `json:"severity"` // low, medium, high
	Description string `json:"description"`
	L1Context   string `json:"l1_context,omitempty"`
}

// LearnerProfile is created once at intake and mutated only by re-diagnostic.
type LearnerProfile struct {
	ID               uuid.UUID       `json:"id"`
	StudentID        uuid.UUID       `json:"student_id"`
	Gaps             []DiagnosticGap `json:"gaps"`
	PriorityList     []string        `json:"priority_list"`
	RecommendedStart CEFRLevel       `json:"recommended_start_level"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LearningPath is the coarse target/current-level tracker (weekly-plan
// level); LearningPlan below is the versioned, detailed artifact.
type LearningPath struct {
	ID           uuid.UUID `json:"id"`
	StudentID    uuid.UUID `json:"student_id"`
	TargetLevel  CEFRLevel `json:"target_level"`
	CurrentLevel CEFRLevel `json:"current_level"`
	WeeklyPlan   JSONB     `json:"weekly_plan"`
	Status       string    `json:"status"` // active, paused, completed
}

// DifficultyRecommendation is a closed sum of global/per-skill directives.
type DifficultyRecommendation string

const (
	RecDecrease  DifficultyRecommendation = "decrease_difficulty"
	RecMaintain  DifficultyRecommendation = "maintain"
	RecIncrease  DifficultyRecommendation = "increase_difficulty"
	RecSimplify  DifficultyRecommendation = "simplify"
	RecChallenge DifficultyRecommendation = "challenge"
	RecColdStart DifficultyRecommendation = "<2pts"
)

// Weakness is one entry in LearningPlan.TopWeaknesses.
type Weakness struct {
	SkillArea        string  `json:"skill_area"`
	AccuracyObserved float64 `json:"accuracy_observed"`
	Priority         string  `json:"priority"` // high, maintenance
}

// DifficultyAdjustment is the plan's difficulty directive, which must agree
// with the DNA's global recommendation.
type DifficultyAdjustment struct {
	CurrentLevel   CEFRLevel                `json:"current_level"`
	Recommendation DifficultyRecommendation `json:"recommendation"`
	Rationale      string                   `json:"rationale"`
}

// LearningPlan is versioned and append-only; versions form a gap-free
// monotonic sequence per student starting at 1.
type LearningPlan struct {
	ID                   uuid.UUID            `json:"id"`
	StudentID            uuid.UUID            `json:"student_id"`
	Version              int                  `json:"version"`
	Summary              string               `json:"summary"`
	GoalsNext2Weeks      []string             `json:"goals_next_2_weeks"`
	TopWeaknesses        []Weakness           `json:"top_weaknesses"`
	DifficultyAdjustment DifficultyAdjustment `json:"difficulty_adjustment"`
	GrammarFocus         []string             `json:"grammar_focus"`
	VocabularyFocus      []string             `json:"vocabulary_focus"`
	TeacherGuidance      JSONB                `json:"teacher_guidance,omitempty"`
	RecommendedDrills    []string             `json:"recommended_drills"`
	CreatedAt            time.Time            `json:"created_at"`
}

// SessionStatus is the closed sum of session lifecycle states.
type SessionStatus string

const (
	SessionRequested SessionStatus = "requested"
	SessionConfirmed SessionStatus = "confirmed"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// PipelineStepStatus tracks the best-effort result of one post-confirmation
// pipeline step.
type PipelineStepStatus string

const (
	StepPending   PipelineStepStatus = "pending"
	StepCompleted PipelineStepStatus = "completed"
	StepFailed    PipelineStepStatus = "failed"
)

// Session is the primary state machine entity.
type Session struct {
	ID              uuid.UUID          `json:"id"`
	StudentID       uuid.UUID          `json:"student_id"`
	TeacherID       uuid.UUID          `json:"teacher_id"`
	ScheduledAt     time.Time          `json:"scheduled_at"`
	DurationMinutes int                `json:"duration_min"`
	Status          SessionStatus      `json:"status"`
	TeacherNotes    string             `json:"teacher_notes,omitempty"`
	Homework        string             `json:"homework,omitempty"`
	Summary         string             `json:"summary,omitempty"`
	LessonStatus    PipelineStepStatus `json:"lesson_status"`
	QuizStatus      PipelineStepStatus `json:"quiz_status"`
	CancelledReason string             `json:"cancelled_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// LessonPhase is one of the five fixed phases of a lesson artifact.
type LessonPhase struct {
	DurationMinutes int      `json:"duration_minutes"`
	Materials       []string `json:"materials"`
	Examples        []string `json:"examples"`
	Exercises       []string `json:"exercises"`
	SuccessCriteria []string `json:"success_criteria"`
}

// LessonArtifact is the immutable 5-phase lesson produced for a session.
type LessonArtifact struct {
	ID                 uuid.UUID   `json:"id"`
	SessionID          uuid.UUID   `json:"session_id"`
	StudentID          uuid.UUID   `json:"student_id"`
	Difficulty         CEFRLevel   `json:"difficulty"`
	PromptVersion      int         `json:"prompt_version"`
	Topics             []string    `json:"topics"`
	Objective          string      `json:"objective"`
	WarmUp             LessonPhase `json:"warm_up"`
	Presentation       LessonPhase `json:"presentation"`
	ControlledPractice LessonPhase `json:"controlled_practice"`
	FreePractice       LessonPhase `json:"free_practice"`
	WrapUp             LessonPhase `json:"wrap_up"`
	CreatedAt          time.Time   `json:"created_at"`
}

// SkillTagType is the closed sum of tag kinds.
type SkillTagType string

const (
	TagGrammar       SkillTagType = "grammar"
	TagVocabulary    SkillTagType = "vocabulary"
	TagPronunciation SkillTagType = "pronunciation"
	TagConversation  SkillTagType = "conversation"
)

// LessonSkillTag is a canonical tag row attached to a lesson artifact.
type LessonSkillTag struct {
	ID        uuid.UUID    `json:"id"`
	LessonID  uuid.UUID    `json:"lesson_id"`
	TagType   SkillTagType `json:"tag_type"`
	TagValue  string       `json:"tag_value"`
	CEFRLevel CEFRLevel    `json:"cefr_level"`
}

// QuestionType is the closed sum of quiz question kinds.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
	QuestionTranslate      QuestionType = "translate"
	QuestionReorder        QuestionType = "reorder"
)

// Question is one quiz item.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	SkillTag      string       `json:"skill_tag"`
}

// NextQuiz is derived from a lesson artifact.
type NextQuiz struct {
	ID                          uuid.UUID  `json:"id"`
	StudentID                   uuid.UUID  `json:"student_id"`
	DerivedFromLessonArtifactID uuid.UUID  `json:"derived_from_lesson_artifact_id"`
	Title                       string     `json:"title"`
	Questions                   []Question `json:"questions"`
	CreatedAt                   time.Time  `json:"created_at"`
}

// QuizAttempt is the single scored attempt at a quiz by a student.
type QuizAttempt struct {
	ID          uuid.UUID `json:"id"`
	QuizID      uuid.UUID `json:"quiz_id"`
	StudentID   uuid.UUID `json:"student_id"`
	Score       float64   `json:"score"` // 0..1
	SubmittedAt time.Time `json:"submitted_at"`
}

// QuizAttemptItem is one per-question result of an attempt.
type QuizAttemptItem struct {
	ID             uuid.UUID `json:"id"`
	AttemptID      uuid.UUID `json:"attempt_id"`
	QuestionID     string    `json:"question_id"`
	IsCorrect      bool      `json:"is_correct"`
	SkillTag       string    `json:"skill_tag"`
	NeedsAIGrading bool      `json:"needs_ai_grading,omitempty"`
	Explanation    string    `json:"explanation,omitempty"`
}

// SessionSkillObservation is a teacher-entered per-skill score, recorded
// immutably at session completion.
type SessionSkillObservation struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	StudentID uuid.UUID `json:"student_id"`
	SkillTag  string    `json:"skill_tag"`
	Score     float64   `json:"score"` // 0..100
	CEFRLevel CEFRLevel `json:"cefr_level"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SkillProfileEntry is one skill's windowed recommendation inside a DNA
// snapshot.
type SkillProfileEntry struct {
	SkillTag       string                   `json:"skill_tag"`
	Recommendation DifficultyRecommendation `json:"recommendation"`
	SampleSize     int                      `json:"sample_size"`
}

// Trajectory is the closed sum of trend classifications.
type Trajectory string

const (
	TrajectoryImproving Trajectory = "improving"
	TrajectoryStable    Trajectory = "stable"
	TrajectoryDeclining Trajectory = "declining"
)

// LearningDNA is a versioned snapshot of the windowed performance profile.
type LearningDNA struct {
	ID                    uuid.UUID                `json:"id"`
	StudentID             uuid.UUID                `json:"student_id"`
	Version               int                      `json:"version"`
	RecentAvg             float64                  `json:"recent_avg"`
	LifetimeAvg           float64                  `json:"lifetime_avg"`
	SkillProfile          []SkillProfileEntry      `json:"skill_profile"`
	GlobalRecommendation  DifficultyRecommendation `json:"global_recommendation"`
	Trajectory            Trajectory               `json:"trajectory"`
	ColdStart              bool                    `json:"cold_start"`
	TriggerEvent          string                   `json:"trigger_event"` // intake, attempt, teacher_notes, reassessment
	CreatedAt             time.Time                `json:"created_at"`
}

// L1InterferenceStatus is the closed sum of pattern lifecycle states.
type L1InterferenceStatus string

const (
	PatternExhibited L1InterferenceStatus = "exhibited"
	PatternOvercome  L1InterferenceStatus = "overcome"
)

// L1InterferencePattern tracks one recurring native-language error pattern.
type L1InterferencePattern struct {
	ID              uuid.UUID            `json:"id"`
	StudentID       uuid.UUID            `json:"student_id"`
	PatternCategory string               `json:"pattern_category"`
	PatternDetail   string               `json:"pattern_detail"`
	Status          L1InterferenceStatus `json:"status"`
	OccurrenceCount int                  `json:"occurrence_count"`
	FirstSeenAt     time.Time            `json:"first_seen_at"`
	LastSeenAt      time.Time            `json:"last_seen_at"`
	OvercomeAt      *time.Time           `json:"overcome_at,omitempty"`
}

// CEFRHistoryEntry is one append-only level-transition log row.
type CEFRHistoryEntry struct {
	ID         uuid.UUID `json:"id"`
	StudentID  uuid.UUID `json:"student_id"`
	FromLevel  CEFRLevel `json:"from_level"`
	ToLevel    CEFRLevel `json:"to_level"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"` // reassessment, intake
	CreatedAt  time.Time `json:"created_at"`
}

// SpacedItemType distinguishes the two families of spaced-repetition cards
// named in the spec without inventing a new entity.
type SpacedItemType string

const (
	SpacedLearningPoint SpacedItemType = "learning_point"
	SpacedVocabulary    SpacedItemType = "vocabulary"
)

// SpacedItem is one SM-2 scheduled card.
type SpacedItem struct {
	ID           uuid.UUID      `json:"id"`
	StudentID    uuid.UUID      `json:"student_id"`
	ItemType     SpacedItemType `json:"item_type"`
	Content      string         `json:"content"`
	EaseFactor   float64        `json:"ease_factor"`
	IntervalDays int            `json:"interval_days"`
	Repetitions  int            `json:"repetitions"`
	NextReview   time.Time      `json:"next_review"`
	CreatedAt    time.Time      `json:"created_at"`
}
