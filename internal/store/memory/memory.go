// Package memory provides an in-process Store implementation backed by
// plain maps, guarded by a single mutex. It exists for unit/integration
// tests and local development without a Postgres instance; the semantics
// (append-only plans/DNA, atomic lesson+tags writes) match the postgres
// implementation exactly.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/store"
)

// Store is the in-memory aggregate. The zero value is not usable; use New.
type Store struct {
	mu sync.Mutex

	students      map[uuid.UUID]models.Student
	assessments   map[uuid.UUID]models.Assessment
	profiles      map[uuid.UUID]models.LearnerProfile // keyed by student ID
	plans         map[uuid.UUID][]models.LearningPlan // keyed by student ID, version order
	sessions      map[uuid.UUID]models.Session
	lessons       map[uuid.UUID]models.LessonArtifact  // keyed by lesson ID
	lessonTags    map[uuid.UUID][]models.LessonSkillTag
	quizzes       map[uuid.UUID]models.NextQuiz
	attempts      map[uuid.UUID]models.QuizAttempt
	attemptItems  map[uuid.UUID][]models.QuizAttemptItem
	observations  map[uuid.UUID][]models.SessionSkillObservation // keyed by student ID
	dna           map[uuid.UUID][]models.LearningDNA              // keyed by student ID
	interference  map[uuid.UUID][]models.L1InterferencePattern    // keyed by student ID
	cefrHistory   map[uuid.UUID][]models.CEFRHistoryEntry         // keyed by student ID
	spacedItems   map[uuid.UUID][]models.SpacedItem               // keyed by student ID
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		students:     make(map[uuid.UUID]models.Student),
		assessments:  make(map[uuid.UUID]models.Assessment),
		profiles:     make(map[uuid.UUID]models.LearnerProfile),
		plans:        make(map[uuid.UUID][]models.LearningPlan),
		sessions:     make(map[uuid.UUID]models.Session),
		lessons:      make(map[uuid.UUID]models.LessonArtifact),
		lessonTags:   make(map[uuid.UUID][]models.LessonSkillTag),
		quizzes:      make(map[uuid.UUID]models.NextQuiz),
		attempts:     make(map[uuid.UUID]models.QuizAttempt),
		attemptItems: make(map[uuid.UUID][]models.QuizAttemptItem),
		observations: make(map[uuid.UUID][]models.SessionSkillObservation),
		dna:          make(map[uuid.UUID][]models.LearningDNA),
		interference: make(map[uuid.UUID][]models.L1InterferencePattern),
		cefrHistory:  make(map[uuid.UUID][]models.CEFRHistoryEntry),
		spacedItems:  make(map[uuid.UUID][]models.SpacedItem),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Students() store.StudentRepo         { return (*studentRepo)(s) }
func (s *Store) Assessments() store.AssessmentRepo    { return (*assessmentRepo)(s) }
func (s *Store) Profiles() store.ProfileRepo          { return (*profileRepo)(s) }
func (s *Store) Plans() store.PlanRepo                { return (*planRepo)(s) }
func (s *Store) Sessions() store.SessionRepo          { return (*sessionRepo)(s) }
func (s *Store) Lessons() store.LessonRepo            { return (*lessonRepo)(s) }
func (s *Store) Quizzes() store.QuizRepo              { return (*quizRepo)(s) }
func (s *Store) Attempts() store.AttemptRepo          { return (*attemptRepo)(s) }
func (s *Store) Observations() store.ObservationRepo  { return (*observationRepo)(s) }
func (s *Store) DNA() store.DNARepo                   { return (*dnaRepo)(s) }
func (s *Store) Interference() store.InterferenceRepo { return (*interferenceRepo)(s) }
func (s *Store) CEFRHistory() store.CEFRHistoryRepo   { return (*cefrHistoryRepo)(s) }
func (s *Store) SpacedItems() store.SpacedItemRepo    { return (*spacedItemRepo)(s) }

type studentRepo Store

func (r *studentRepo) Create(_ context.Context, st *models.Student) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.students[st.ID]; exists {
		return apperrors.StoreConflict("student already exists", nil)
	}
	s.students[st.ID] = *st
	return nil
}

func (r *studentRepo) Get(_ context.Context, id uuid.UUID) (*models.Student, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, apperrors.Validation("student not found", nil)
	}
	return &st, nil
}

func (r *studentRepo) UpdateLevel(_ context.Context, id uuid.UUID, level models.CEFRLevel) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return apperrors.Validation("student not found", nil)
	}
	st.CurrentLevel = level
	st.UpdatedAt = time.Now()
	s.students[id] = st
	return nil
}

type assessmentRepo Store

func (r *assessmentRepo) Create(_ context.Context, a *models.Assessment) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.ID] = *a
	return nil
}

func (r *assessmentRepo) Get(_ context.Context, id uuid.UUID) (*models.Assessment, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, apperrors.Validation("assessment not found", nil)
	}
	return &a, nil
}

func (r *assessmentRepo) Update(_ context.Context, a *models.Assessment) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assessments[a.ID]; !ok {
		return apperrors.Validation("assessment not found", nil)
	}
	s.assessments[a.ID] = *a
	return nil
}

type profileRepo Store

func (r *profileRepo) Create(_ context.Context, p *models.LearnerProfile) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.StudentID] = *p
	return nil
}

func (r *profileRepo) GetByStudent(_ context.Context, studentID uuid.UUID) (*models.LearnerProfile, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[studentID]
	if !ok {
		return nil, apperrors.Validation("learner profile not found", nil)
	}
	return &p, nil
}

func (r *profileRepo) Update(_ context.Context, p *models.LearnerProfile) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.StudentID]; !ok {
		return apperrors.Validation("learner profile not found", nil)
	}
	s.profiles[p.StudentID] = *p
	return nil
}

type planRepo Store

func (r *planRepo) Create(_ context.Context, p *models.LearningPlan) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.plans[p.StudentID]
	wantVersion := len(existing) + 1
	if p.Version != wantVersion {
		return apperrors.StoreConflict("plan version is not the next monotonic version", nil)
	}
	s.plans[p.StudentID] = append(existing, *p)
	return nil
}

func (r *planRepo) LatestByStudent(_ context.Context, studentID uuid.UUID) (*models.LearningPlan, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	plans := s.plans[studentID]
	if len(plans) == 0 {
		return nil, apperrors.Validation("no plan exists for student", nil)
	}
	latest := plans[len(plans)-1]
	return &latest, nil
}

func (r *planRepo) ListByStudent(_ context.Context, studentID uuid.UUID) ([]models.LearningPlan, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LearningPlan, len(s.plans[studentID]))
	copy(out, s.plans[studentID])
	return out, nil
}

type sessionRepo Store

func (r *sessionRepo) Create(_ context.Context, sess *models.Session) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (r *sessionRepo) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.Validation("session not found", nil)
	}
	return &sess, nil
}

func (r *sessionRepo) Update(_ context.Context, sess *models.Session) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return apperrors.Validation("session not found", nil)
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (r *sessionRepo) ListByStudent(_ context.Context, studentID uuid.UUID, limit int) ([]models.Session, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.StudentID == studentID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type lessonRepo Store

func (r *lessonRepo) Create(_ context.Context, l *models.LessonArtifact, tags []models.LessonSkillTag) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons[l.ID] = *l
	s.lessonTags[l.ID] = append([]models.LessonSkillTag(nil), tags...)
	return nil
}

func (r *lessonRepo) GetBySession(_ context.Context, sessionID uuid.UUID) (*models.LessonArtifact, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lessons {
		if l.SessionID == sessionID {
			out := l
			return &out, nil
		}
	}
	return nil, apperrors.Validation("lesson not found for session", nil)
}

func (r *lessonRepo) TagsByLesson(_ context.Context, lessonID uuid.UUID) ([]models.LessonSkillTag, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LessonSkillTag, len(s.lessonTags[lessonID]))
	copy(out, s.lessonTags[lessonID])
	return out, nil
}

func (r *lessonRepo) RecentTopicsByStudent(_ context.Context, studentID uuid.UUID, n int) ([][]string, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var lessons []models.LessonArtifact
	for _, l := range s.lessons {
		if l.StudentID == studentID {
			lessons = append(lessons, l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].CreatedAt.After(lessons[j].CreatedAt) })
	if n > 0 && len(lessons) > n {
		lessons = lessons[:n]
	}
	out := make([][]string, len(lessons))
	for i, l := range lessons {
		out[i] = l.Topics
	}
	return out, nil
}

type quizRepo Store

func (r *quizRepo) Create(_ context.Context, q *models.NextQuiz) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[q.ID] = *q
	return nil
}

func (r *quizRepo) Get(_ context.Context, id uuid.UUID) (*models.NextQuiz, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, apperrors.Validation("quiz not found", nil)
	}
	return &q, nil
}

func (r *quizRepo) GetByLessonArtifact(_ context.Context, lessonArtifactID uuid.UUID) (*models.NextQuiz, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quizzes {
		if q.DerivedFromLessonArtifactID == lessonArtifactID {
			out := q
			return &out, nil
		}
	}
	return nil, apperrors.Validation("quiz not found for lesson artifact", nil)
}

type attemptRepo Store

func (r *attemptRepo) Create(_ context.Context, a *models.QuizAttempt, items []models.QuizAttemptItem) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.QuizID == a.QuizID && existing.StudentID == a.StudentID {
			return apperrors.StoreConflict("student has already submitted an attempt for this quiz", nil)
		}
	}
	s.attempts[a.ID] = *a
	s.attemptItems[a.ID] = append([]models.QuizAttemptItem(nil), items...)
	return nil
}

func (r *attemptRepo) RecentByStudent(_ context.Context, studentID uuid.UUID, n int) ([]models.QuizAttempt, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.QuizAttempt
	for _, a := range s.attempts {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *attemptRepo) ItemsByAttempt(_ context.Context, attemptID uuid.UUID) ([]models.QuizAttemptItem, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.QuizAttemptItem, len(s.attemptItems[attemptID]))
	copy(out, s.attemptItems[attemptID])
	return out, nil
}

func (r *attemptRepo) CountByStudent(_ context.Context, studentID uuid.UUID) (int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.attempts {
		if a.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

type observationRepo Store

func (r *observationRepo) Create(_ context.Context, o *models.SessionSkillObservation) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[o.StudentID] = append(s.observations[o.StudentID], *o)
	return nil
}

func (r *observationRepo) RecentByStudent(_ context.Context, studentID uuid.UUID, n int) ([]models.SessionSkillObservation, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append([]models.SessionSkillObservation(nil), s.observations[studentID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

type dnaRepo Store

func (r *dnaRepo) Create(_ context.Context, d *models.LearningDNA) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.dna[d.StudentID]
	wantVersion := len(existing) + 1
	if d.Version != wantVersion {
		return apperrors.StoreConflict("DNA version is not the next monotonic version", nil)
	}
	s.dna[d.StudentID] = append(existing, *d)
	return nil
}

func (r *dnaRepo) LatestByStudent(_ context.Context, studentID uuid.UUID) (*models.LearningDNA, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshots := s.dna[studentID]
	if len(snapshots) == 0 {
		return nil, apperrors.Validation("no DNA snapshot exists for student", nil)
	}
	latest := snapshots[len(snapshots)-1]
	return &latest, nil
}

type interferenceRepo Store

func (r *interferenceRepo) Upsert(_ context.Context, p *models.L1InterferencePattern) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	patterns := s.interference[p.StudentID]
	for i, existing := range patterns {
		if existing.Status == models.PatternExhibited &&
			existing.PatternCategory == p.PatternCategory &&
			existing.PatternDetail == p.PatternDetail {
			existing.OccurrenceCount++
			existing.LastSeenAt = p.LastSeenAt
			patterns[i] = existing
			s.interference[p.StudentID] = patterns
			return nil
		}
	}
	s.interference[p.StudentID] = append(patterns, *p)
	return nil
}

func (r *interferenceRepo) MarkOvercome(_ context.Context, id uuid.UUID, at time.Time) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for studentID, patterns := range s.interference {
		for i, p := range patterns {
			if p.ID == id {
				p.Status = models.PatternOvercome
				p.OvercomeAt = &at
				patterns[i] = p
				s.interference[studentID] = patterns
				return nil
			}
		}
	}
	return apperrors.Validation("interference pattern not found", nil)
}

func (r *interferenceRepo) ListByStudent(_ context.Context, studentID uuid.UUID) ([]models.L1InterferencePattern, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.L1InterferencePattern, len(s.interference[studentID]))
	copy(out, s.interference[studentID])
	return out, nil
}

type cefrHistoryRepo Store

func (r *cefrHistoryRepo) Append(_ context.Context, e *models.CEFRHistoryEntry) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cefrHistory[e.StudentID] = append(s.cefrHistory[e.StudentID], *e)
	return nil
}

func (r *cefrHistoryRepo) ListByStudent(_ context.Context, studentID uuid.UUID) ([]models.CEFRHistoryEntry, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CEFRHistoryEntry, len(s.cefrHistory[studentID]))
	copy(out, s.cefrHistory[studentID])
	return out, nil
}

type spacedItemRepo Store

func (r *spacedItemRepo) Create(_ context.Context, it *models.SpacedItem) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spacedItems[it.StudentID] = append(s.spacedItems[it.StudentID], *it)
	return nil
}

func (r *spacedItemRepo) Update(_ context.Context, it *models.SpacedItem) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.spacedItems[it.StudentID]
	for i, existing := range items {
		if existing.ID == it.ID {
			items[i] = *it
			s.spacedItems[it.StudentID] = items
			return nil
		}
	}
	return apperrors.Validation("spaced item not found", nil)
}

func (r *spacedItemRepo) DueByStudent(_ context.Context, studentID uuid.UUID, asOf time.Time) ([]models.SpacedItem, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SpacedItem
	for _, it := range s.spacedItems[studentID] {
		if !it.NextReview.After(asOf) {
			out = append(out, it)
		}
	}
	return out, nil
}
