package postgres

import (
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/models"
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), per lib/pq's error code scheme.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// asStoreConflict wraps err as apperrors.StoreConflict when it is a unique
// violation, otherwise leaves it as a generic wrapped error.
func asStoreConflict(msg string, err error) error {
	if isUniqueViolation(err) {
		return apperrors.StoreConflict(msg, err)
	}
	return err
}

// pqStringArray adapts a []string for a Postgres text[] column.
func pqStringArray(ss []string) interface{} {
	return pq.Array(ss)
}

// pqStringArrayScan adapts a *[]string destination for scanning a
// Postgres text[] column.
func pqStringArrayScan(dest *[]string) interface{} {
	return pq.Array(dest)
}

// effectiveLimit maps a non-positive limit to "no limit" for a LIMIT clause.
func effectiveLimit(limit int) int64 {
	if limit <= 0 {
		return 1<<63 - 1
	}
	return int64(limit)
}

func gapsJSON(gaps []models.DiagnosticGap) []byte {
	b, _ := json.Marshal(gaps)
	return b
}

func unmarshalGaps(raw []byte, out *[]models.DiagnosticGap) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func weaknessesJSON(ws []models.Weakness) []byte {
	b, _ := json.Marshal(ws)
	return b
}

func unmarshalWeaknesses(raw []byte, out *[]models.Weakness) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func difficultyJSON(d models.DifficultyAdjustment) []byte {
	b, _ := json.Marshal(d)
	return b
}

func unmarshalDifficulty(raw []byte, out *models.DifficultyAdjustment) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func phaseJSON(p models.LessonPhase) []byte {
	b, _ := json.Marshal(p)
	return b
}

func unmarshalPhase(raw []byte, out *models.LessonPhase) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func questionsJSON(qs []models.Question) []byte {
	b, _ := json.Marshal(qs)
	return b
}

func unmarshalQuestions(raw []byte, out *[]models.Question) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func skillProfileJSON(sp []models.SkillProfileEntry) []byte {
	b, _ := json.Marshal(sp)
	return b
}

func unmarshalSkillProfile(raw []byte, out *[]models.SkillProfileEntry) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
