// Package postgres backs store.Store with lib/pq, following the query and
// transaction style of this codebase's service layer: db.Query/QueryRow/Exec
// for single statements, db.Begin/tx.Exec/tx.Commit for multi-row writes.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/database"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store"
)

// Store is the Postgres-backed aggregate.
type Store struct {
	db *database.DB
}

// New wraps db as a store.Store.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Students() store.StudentRepo         { return &studentRepo{s.db} }
func (s *Store) Assessments() store.AssessmentRepo    { return &assessmentRepo{s.db} }
func (s *Store) Profiles() store.ProfileRepo          { return &profileRepo{s.db} }
func (s *Store) Plans() store.PlanRepo                { return &planRepo{s.db} }
func (s *Store) Sessions() store.SessionRepo          { return &sessionRepo{s.db} }
func (s *Store) Lessons() store.LessonRepo            { return &lessonRepo{s.db} }
func (s *Store) Quizzes() store.QuizRepo              { return &quizRepo{s.db} }
func (s *Store) Attempts() store.AttemptRepo          { return &attemptRepo{s.db} }
func (s *Store) Observations() store.ObservationRepo  { return &observationRepo{s.db} }
func (s *Store) DNA() store.DNARepo                   { return &dnaRepo{s.db} }
func (s *Store) Interference() store.InterferenceRepo { return &interferenceRepo{s.db} }
func (s *Store) CEFRHistory() store.CEFRHistoryRepo   { return &cefrHistoryRepo{s.db} }
func (s *Store) SpacedItems() store.SpacedItemRepo    { return &spacedItemRepo{s.db} }

type studentRepo struct{ db *database.DB }

func (r *studentRepo) Create(ctx context.Context, st *models.Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, native_language, current_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, st.ID, st.Name, st.NativeLanguage, st.CurrentLevel, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert student: %w", err)
	}
	return nil
}

func (r *studentRepo) Get(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var st models.Student
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, native_language, current_level, created_at, updated_at
		FROM students WHERE id = $1
	`, id).Scan(&st.ID, &st.Name, &st.NativeLanguage, &st.CurrentLevel, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Validation("student not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query student: %w", err)
	}
	return &st, nil
}

func (r *studentRepo) UpdateLevel(ctx context.Context, id uuid.UUID, level models.CEFRLevel) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students SET current_level = $1, updated_at = now() WHERE id = $2
	`, level, id)
	if err != nil {
		return fmt.Errorf("failed to update student level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Validation("student not found", nil)
	}
	return nil
}

type assessmentRepo struct{ db *database.DB }

func (r *assessmentRepo) Create(ctx context.Context, a *models.Assessment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assessments (id, student_id, stage, placement_answers, diagnostic_answers,
			determined_level, confidence, weak_areas, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.StudentID, a.Stage, a.PlacementAnswers, a.DiagnosticAnswers,
		a.DeterminedLevel, a.Confidence, pqStringArray(a.WeakAreas), a.CreatedAt, a.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

func (r *assessmentRepo) Get(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	var a models.Assessment
	var weakAreas []string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, stage, placement_answers, diagnostic_answers,
			determined_level, confidence, weak_areas, created_at, completed_at
		FROM assessments WHERE id = $1
	`, id).Scan(&a.ID, &a.StudentID, &a.Stage, &a.PlacementAnswers, &a.DiagnosticAnswers,
		&a.DeterminedLevel, &a.Confidence, pqStringArrayScan(&weakAreas), &a.CreatedAt, &a.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Validation("assessment not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assessment: %w", err)
	}
	a.WeakAreas = weakAreas
	return &a, nil
}

func (r *assessmentRepo) Update(ctx context.Context, a *models.Assessment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assessments SET stage = $1, placement_answers = $2, diagnostic_answers = $3,
			determined_level = $4, confidence = $5, weak_areas = $6, completed_at = $7
		WHERE id = $8
	`, a.Stage, a.PlacementAnswers, a.DiagnosticAnswers, a.DeterminedLevel, a.Confidence,
		pqStringArray(a.WeakAreas), a.CompletedAt, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update assessment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Validation("assessment not found", nil)
	}
	return nil
}

type profileRepo struct{ db *database.DB }

func (r *profileRepo) Create(ctx context.Context, p *models.LearnerProfile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO learner_profiles (id, student_id, gaps, priority_list, recommended_start_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.StudentID, gapsJSON(p.Gaps), pqStringArray(p.PriorityList), p.RecommendedStart, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert learner profile: %w", err)
	}
	return nil
}

func (r *profileRepo) GetByStudent(ctx context.Context, studentID uuid.UUID) (*models.LearnerProfile, error) {
	var p models.LearnerProfile
	var priorityList []string
	var gaps []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, gaps, priority_list, recommended_start_level, created_at, updated_at
		FROM learner_profiles WHERE student_id = $1
	`, studentID).Scan(&p.ID, &p.StudentID, &gaps, pqStringArrayScan(&priorityList), &p.RecommendedStart, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Validation("learner profile not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query learner profile: %w", err)
	}
	p.PriorityList = priorityList
	if err := unmarshalGaps(gaps, &p.Gaps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gaps: %w", err)
	}
	return &p, nil
}

func (r *profileRepo) Update(ctx context.Context, p *models.LearnerProfile) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE learner_profiles SET gaps = $1, priority_list = $2, recommended_start_level = $3, updated_at = $4
		WHERE student_id = $5
	`, gapsJSON(p.Gaps), pqStringArray(p.PriorityList), p.RecommendedStart, p.UpdatedAt, p.StudentID)
	if err != nil {
		return fmt.Errorf("failed to update learner profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Validation("learner profile not found", nil)
	}
	return nil
}

type planRepo struct{ db *database.DB }

func (r *planRepo) Create(ctx context.Context, p *models.LearningPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentMax int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM (
			SELECT version FROM learning_plans WHERE student_id = $1 FOR UPDATE
		) locked
	`, p.StudentID).Scan(&currentMax)
	if err != nil {
		return fmt.Errorf("failed to lock plan versions: %w", err)
	}
	if p.Version != currentMax+1 {
		return apperrors.StoreConflict("plan version is not the next monotonic version", nil)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO learning_plans (id, student_id, version, summary, goals_next_2_weeks,
			top_weaknesses, difficulty_adjustment, grammar_focus, vocabulary_focus,
			teacher_guidance, recommended_drills, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.StudentID, p.Version, p.Summary, pqStringArray(p.GoalsNext2Weeks),
		weaknessesJSON(p.TopWeaknesses), difficultyJSON(p.DifficultyAdjustment),
		pqStringArray(p.GrammarFocus), pqStringArray(p.VocabularyFocus),
		p.TeacherGuidance, pqStringArray(p.RecommendedDrills), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert learning plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan insert: %w", err)
	}
	return nil
}

func (r *planRepo) LatestByStudent(ctx context.Context, studentID uuid.UUID) (*models.LearningPlan, error) {
	plans, err := r.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, apperrors.Validation("no plan exists for student", nil)
	}
	return &plans[len(plans)-1], nil
}

func (r *planRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.LearningPlan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, version, summary, goals_next_2_weeks, top_weaknesses,
			difficulty_adjustment, grammar_focus, vocabulary_focus, teacher_guidance,
			recommended_drills, created_at
		FROM learning_plans WHERE student_id = $1 ORDER BY version ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning plans: %w", err)
	}
	defer rows.Close()

	var out []models.LearningPlan
	for rows.Next() {
		var p models.LearningPlan
		var goals, grammar, vocab, drills []string
		var weaknesses, difficulty []byte
		if err := rows.Scan(&p.ID, &p.StudentID, &p.Version, &p.Summary, pqStringArrayScan(&goals),
			&weaknesses, &difficulty, pqStringArrayScan(&grammar), pqStringArrayScan(&vocab),
			&p.TeacherGuidance, pqStringArrayScan(&drills), &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learning plan: %w", err)
		}
		p.GoalsNext2Weeks = goals
		p.GrammarFocus = grammar
		p.VocabularyFocus = vocab
		p.RecommendedDrills = drills
		if err := unmarshalWeaknesses(weaknesses, &p.TopWeaknesses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weaknesses: %w", err)
		}
		if err := unmarshalDifficulty(difficulty, &p.DifficultyAdjustment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal difficulty adjustment: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

type sessionRepo struct{ db *database.DB }

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, student_id, teacher_id, scheduled_at, duration_min, status,
			teacher_notes, homework, summary, lesson_status, quiz_status, cancelled_reason,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, s.ID, s.StudentID, s.TeacherID, s.ScheduledAt, s.DurationMinutes, s.Status,
		s.TeacherNotes, s.Homework, s.Summary, s.LessonStatus, s.QuizStatus, s.CancelledReason,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var s models.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, teacher_id, scheduled_at, duration_min, status, teacher_notes,
			homework, summary, lesson_status, quiz_status, cancelled_reason, created_at, updated_at
		FROM sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.StudentID, &s.TeacherID, &s.ScheduledAt, &s.DurationMinutes, &s.Status,
		&s.TeacherNotes, &s.Homework, &s.Summary, &s.LessonStatus, &s.QuizStatus, &s.CancelledReason,
		&s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Validation("session not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) Update(ctx context.Context, s *models.Session) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1, teacher_notes = $2, homework = $3, summary = $4,
			lesson_status = $5, quiz_status = $6, cancelled_reason = $7, updated_at = $8
		WHERE id = $9
	`, s.Status, s.TeacherNotes, s.Homework, s.Summary, s.LessonStatus, s.QuizStatus,
		s.CancelledReason, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Validation("session not found", nil)
	}
	return nil
}

func (r *sessionRepo) ListByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, teacher_id, scheduled_at, duration_min, status, teacher_notes,
			homework, summary, lesson_status, quiz_status, cancelled_reason, created_at, updated_at
		FROM sessions WHERE student_id = $1 ORDER BY scheduled_at DESC LIMIT $2
	`, studentID, effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.StudentID, &s.TeacherID, &s.ScheduledAt, &s.DurationMinutes,
			&s.Status, &s.TeacherNotes, &s.Homework, &s.Summary, &s.LessonStatus, &s.QuizStatus,
			&s.CancelledReason, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

type lessonRepo struct{ db *database.DB }

func (r *lessonRepo) Create(ctx context.Context, l *models.LessonArtifact, tags []models.LessonSkillTag) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lesson_artifacts (id, session_id, student_id, difficulty, prompt_version,
			topics, objective, warm_up, presentation, controlled_practice, free_practice, wrap_up, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, l.ID, l.SessionID, l.StudentID, l.Difficulty, l.PromptVersion, pqStringArray(l.Topics),
		l.Objective, phaseJSON(l.WarmUp), phaseJSON(l.Presentation), phaseJSON(l.ControlledPractice),
		phaseJSON(l.FreePractice), phaseJSON(l.WrapUp), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert lesson artifact: %w", err)
	}

	for _, t := range tags {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO lesson_skill_tags (id, lesson_id, tag_type, tag_value, cefr_level)
			VALUES ($1, $2, $3, $4, $5)
		`, t.ID, l.ID, t.TagType, t.TagValue, t.CEFRLevel)
		if err != nil {
			return fmt.Errorf("failed to insert lesson skill tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lesson artifact insert: %w", err)
	}
	return nil
}

func (r *lessonRepo) GetBySession(ctx context.Context, sessionID uuid.UUID) (*models.LessonArtifact, error) {
	var l models.LessonArtifact
	var topics []string
	var warmUp, presentation, controlled, free, wrapUp []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, difficulty, prompt_version, topics, objective,
			warm_up, presentation, controlled_practice, free_practice, wrap_up, created_at
		FROM lesson_artifacts WHERE session_id = $1
	`, sessionID).Scan(&l.ID, &l.SessionID, &l.StudentID, &l.Difficulty, &l.PromptVersion,
		pqStringArrayScan(&topics), &l.Objective, &warmUp, &presentation, &controlled, &free, &wrapUp, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Validation("lesson artifact not found for session", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson artifact: %w", err)
	}
	l.Topics = topics
	for _, pair := range []struct {
		raw []byte
		out *models.LessonPhase
	}{
		{warmUp, &l.WarmUp}, {presentation, &l.Presentation}, {controlled, &l.ControlledPractice},
		{free, &l.FreePractice}, {wrapUp, &l.WrapUp},
	} {
		if err := unmarshalPhase(pair.raw, pair.out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lesson phase: %w", err)
		}
	}
	return &l, nil
}

func (r *lessonRepo) TagsByLesson(ctx context.Context, lessonID uuid.UUID) ([]models.LessonSkillTag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lesson_id, tag_type, tag_value, cefr_level FROM lesson_skill_tags WHERE lesson_id = $1
	`, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson skill tags: %w", err)
	}
	defer rows.Close()

	var out []models.LessonSkillTag
	for rows.Next() {
		var t models.LessonSkillTag
		if err := rows.Scan(&t.ID, &t.LessonID, &t.TagType, &t.TagValue, &t.CEFRLevel); err != nil {
			return nil, fmt.Errorf("failed to scan lesson skill tag: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *lessonRepo) RecentTopicsByStudent(ctx context.Context, studentID uuid.UUID, n int) ([][]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT topics FROM lesson_artifacts WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2
	`, studentID, effectiveLimit(n))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent topics: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var topics []string
		if err := rows.Scan(pqStringArrayScan(&topics)); err != nil {
			return nil, fmt.Errorf("failed to scan recent topics: %w", err)
		}
		out = append(out, topics)
	}
	return out, nil
}

type quizRepo struct{ db *database.DB }

func (r *quizRepo) Create(ctx context.Context, q *models.NextQuiz) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO next_quizzes (id, student_id, derived_from_lesson_artifact_id, title, questions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, q.ID, q.StudentID, q.DerivedFromLessonArtifactID, q.Title, questionsJSON(q.Questions), q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert quiz: %w", err)
	}
	return nil
}

func (r *quizRepo) Get(ctx context.Context, id uuid.UUID) (*models.NextQuiz, error) {
	return r.scanOne(ctx, `
		SELECT id, student_id, derived_from_lesson_artifact_id, title, questions, created_at
		FROM next_quizzes WHERE id = $1
	`, id)
}

func (r *quizRepo) GetByLessonArtifact(ctx context.Context, lessonArtifactID uuid.UUID) (*models.NextQuiz, error) {
	return r.scanOne(ctx, `
		SELECT id, student_id, derived_from_lesson_artifact_id, title, questions, created_at
		FROM next_quizzes WHERE derived_from_lesson_artifact_id = $1
	`, lessonArtifactID)
}

func (r *quizRepo) scanOne(ctx context.Context, query string, arg interface{}) (*models.NextQuiz, error) {
	var q models.NextQuiz
	var questions []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&q.ID, &q.StudentID, &q.DerivedFromLessonArtifactID, &q.Title, &questions, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Validation("quiz not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz: %w", err)
	}
	if err := unmarshalQuestions(questions, &q.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	return &q, nil
}

type attemptRepo struct{ db *database.DB }

func (r *attemptRepo) Create(ctx context.Context, a *models.QuizAttempt, items []models.QuizAttemptItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quiz_attempts (id, quiz_id, student_id, score, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.QuizID, a.StudentID, a.Score, a.SubmittedAt)
	if err != nil {
		return asStoreConflict("student has already submitted an attempt for this quiz", err)
	}

	for _, it := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO quiz_attempt_items (id, attempt_id, question_id, is_correct, skill_tag, needs_ai_grading, explanation)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, it.ID, a.ID, it.QuestionID, it.IsCorrect, it.SkillTag, it.NeedsAIGrading, it.Explanation)
		if err != nil {
			return fmt.Errorf("failed to insert quiz attempt item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quiz attempt insert: %w", err)
	}
	return nil
}

func (r *attemptRepo) RecentByStudent(ctx context.Context, studentID uuid.UUID, n int) ([]models.QuizAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, quiz_id, student_id, score, submitted_at
		FROM quiz_attempts WHERE student_id = $1 ORDER BY submitted_at DESC LIMIT $2
	`, studentID, effectiveLimit(n))
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz attempts: %w", err)
	}
	defer rows.Close()

	var out []models.QuizAttempt
	for rows.Next() {
		var a models.QuizAttempt
		if err := rows.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Score, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quiz attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *attemptRepo) ItemsByAttempt(ctx context.Context, attemptID uuid.UUID) ([]models.QuizAttemptItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, attempt_id, question_id, is_correct, skill_tag, needs_ai_grading, explanation
		FROM quiz_attempt_items WHERE attempt_id = $1
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz attempt items: %w", err)
	}
	defer rows.Close()

	var out []models.QuizAttemptItem
	for rows.Next() {
		var it models.QuizAttemptItem
		if err := rows.Scan(&it.ID, &it.AttemptID, &it.QuestionID, &it.IsCorrect, &it.SkillTag,
			&it.NeedsAIGrading, &it.Explanation); err != nil {
			return nil, fmt.Errorf("failed to scan quiz attempt item: %w", err)
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *attemptRepo) CountByStudent(ctx context.Context, studentID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM quiz_attempts WHERE student_id = $1
	`, studentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count quiz attempts: %w", err)
	}
	return count, nil
}

type observationRepo struct{ db *database.DB }

func (r *observationRepo) Create(ctx context.Context, o *models.SessionSkillObservation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_skill_observations (id, session_id, student_id, skill_tag, score, cefr_level, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.ID, o.SessionID, o.StudentID, o.SkillTag, o.Score, o.CEFRLevel, o.Notes, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session skill observation: %w", err)
	}
	return nil
}

func (r *observationRepo) RecentByStudent(ctx context.Context, studentID uuid.UUID, n int) ([]models.SessionSkillObservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, skill_tag, score, cefr_level, notes, created_at
		FROM session_skill_observations WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2
	`, studentID, effectiveLimit(n))
	if err != nil {
		return nil, fmt.Errorf("failed to query session skill observations: %w", err)
	}
	defer rows.Close()

	var out []models.SessionSkillObservation
	for rows.Next() {
		var o models.SessionSkillObservation
		if err := rows.Scan(&o.ID, &o.SessionID, &o.StudentID, &o.SkillTag, &o.Score, &o.CEFRLevel,
			&o.Notes, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session skill observation: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

type dnaRepo struct{ db *database.DB }

func (r *dnaRepo) Create(ctx context.Context, d *models.LearningDNA) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentMax int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM (
			SELECT version FROM learning_dna WHERE student_id = $1 FOR UPDATE
		) locked
	`, d.StudentID).Scan(&currentMax)
	if err != nil {
		return fmt.Errorf("failed to lock DNA versions: %w", err)
	}
	if d.Version != currentMax+1 {
		return apperrors.StoreConflict("DNA version is not the next monotonic version", nil)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO learning_dna (id, student_id, version, recent_avg, lifetime_avg, skill_profile,
			global_recommendation, trajectory, cold_start, trigger_event, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, d.StudentID, d.Version, d.RecentAvg, d.LifetimeAvg, skillProfileJSON(d.SkillProfile),
		d.GlobalRecommendation, d.Trajectory, d.ColdStart, d.TriggerEvent, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert DNA snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit DNA insert: %w", err)
	}
	return nil
}

func (r *dnaRepo) LatestByStudent(ctx context.Context, studentID uuid.UUID) (*models.LearningDNA, error) {
	var d models.LearningDNA
	var profile []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, version, recent_avg, lifetime_avg, skill_profile,
			global_recommendation, trajectory, cold_start, trigger_event, created_at
		FROM learning_dna WHERE student_id = $1 ORDER BY version DESC LIMIT 1
	`, studentID).Scan(&d.ID, &d.StudentID, &d.Version, &d.RecentAvg, &d.LifetimeAvg, &profile,
		&d.GlobalRecommendation, &d.Trajectory, &d.ColdStart, &d.TriggerEvent, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Validation("no DNA snapshot exists for student", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query DNA snapshot: %w", err)
	}
	if err := unmarshalSkillProfile(profile, &d.SkillProfile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal skill profile: %w", err)
	}
	return &d, nil
}

type interferenceRepo struct{ db *database.DB }

func (r *interferenceRepo) Upsert(ctx context.Context, p *models.L1InterferencePattern) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO l1_interference_patterns (id, student_id, pattern_category, pattern_detail,
			status, occurrence_count, first_seen_at, last_seen_at, overcome_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (student_id, pattern_category, pattern_detail) WHERE status = 'exhibited'
		DO UPDATE SET occurrence_count = l1_interference_patterns.occurrence_count + 1,
			last_seen_at = EXCLUDED.last_seen_at
	`, p.ID, p.StudentID, p.PatternCategory, p.PatternDetail, p.Status, p.OccurrenceCount,
		p.FirstSeenAt, p.LastSeenAt, p.OvercomeAt)
	if err != nil {
		return fmt.Errorf("failed to upsert interference pattern: %w", err)
	}
	return nil
}

func (r *interferenceRepo) MarkOvercome(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE l1_interference_patterns SET status = $1, overcome_at = $2 WHERE id = $3
	`, models.PatternOvercome, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark interference pattern overcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Validation("interference pattern not found", nil)
	}
	return nil
}

func (r *interferenceRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.L1InterferencePattern, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, pattern_category, pattern_detail, status, occurrence_count,
			first_seen_at, last_seen_at, overcome_at
		FROM l1_interference_patterns WHERE student_id = $1
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interference patterns: %w", err)
	}
	defer rows.Close()

	var out []models.L1InterferencePattern
	for rows.Next() {
		var p models.L1InterferencePattern
		if err := rows.Scan(&p.ID, &p.StudentID, &p.PatternCategory, &p.PatternDetail, &p.Status,
			&p.OccurrenceCount, &p.FirstSeenAt, &p.LastSeenAt, &p.OvercomeAt); err != nil {
			return nil, fmt.Errorf("failed to scan interference pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

type cefrHistoryRepo struct{ db *database.DB }

func (r *cefrHistoryRepo) Append(ctx context.Context, e *models.CEFRHistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cefr_history (id, student_id, from_level, to_level, confidence, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.StudentID, e.FromLevel, e.ToLevel, e.Confidence, e.Source, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append CEFR history entry: %w", err)
	}
	return nil
}

func (r *cefrHistoryRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.CEFRHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, from_level, to_level, confidence, source, created_at
		FROM cefr_history WHERE student_id = $1 ORDER BY created_at ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query CEFR history: %w", err)
	}
	defer rows.Close()

	var out []models.CEFRHistoryEntry
	for rows.Next() {
		var e models.CEFRHistoryEntry
		if err := rows.Scan(&e.ID, &e.StudentID, &e.FromLevel, &e.ToLevel, &e.Confidence, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan CEFR history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

type spacedItemRepo struct{ db *database.DB }

func (r *spacedItemRepo) Create(ctx context.Context, it *models.SpacedItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO spaced_items (id, student_id, item_type, content, ease_factor, interval_days,
			repetitions, next_review, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, it.ID, it.StudentID, it.ItemType, it.Content, it.EaseFactor, it.IntervalDays,
		it.Repetitions, it.NextReview, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert spaced item: %w", err)
	}
	return nil
}

func (r *spacedItemRepo) Update(ctx context.Context, it *models.SpacedItem) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE spaced_items SET ease_factor = $1, interval_days = $2, repetitions = $3, next_review = $4
		WHERE id = $5
	`, it.EaseFactor, it.IntervalDays, it.Repetitions, it.NextReview, it.ID)
	if err != nil {
		return fmt.Errorf("failed to update spaced item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Validation("spaced item not found", nil)
	}
	return nil
}

func (r *spacedItemRepo) DueByStudent(ctx context.Context, studentID uuid.UUID, asOf time.Time) ([]models.SpacedItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, item_type, content, ease_factor, interval_days, repetitions, next_review, created_at
		FROM spaced_items WHERE student_id = $1 AND next_review <= $2
	`, studentID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query due spaced items: %w", err)
	}
	defer rows.Close()

	var out []models.SpacedItem
	for rows.Next() {
		var it models.SpacedItem
		if err := rows.Scan(&it.ID, &it.StudentID, &it.ItemType, &it.Content, &it.EaseFactor,
			&it.IntervalDays, &it.Repetitions, &it.NextReview, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan spaced item: %w", err)
		}
		out = append(out, it)
	}
	return out, nil
}
