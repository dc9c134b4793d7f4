package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"noble-language-orchestrator/internal/models"
)

// startAssessmentRequest is the body of POST /assessments.
type startAssessmentRequest struct {
	StudentID uuid.UUID `json:"student_id"`
}

// StartAssessment implements assessment.start.
// POST /assessments
func (h *Handler) StartAssessment(c *fiber.Ctx) error {
	var req startAssessmentRequest
	if err := c.BodyParser(&req); err != nil || req.StudentID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "student_id is required"})
	}

	a, questions, err := h.assessments.Start(c.Context(), req.StudentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"assessment_id":      a.ID,
		"placement_questions": questions,
	})
}

// submitPlacementRequest is the body of POST /assessments/:id/placement.
type submitPlacementRequest struct {
	Answers models.JSONB `json:"answers"`
}

// SubmitPlacement implements assessment.submit_placement.
// POST /assessments/:id/placement
func (h *Handler) SubmitPlacement(c *fiber.Ctx) error {
	assessmentID, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req submitPlacementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	bracket, questions, err := h.assessments.SubmitPlacement(c.Context(), assessmentID, req.Answers)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"bracket":              bracket,
		"diagnostic_questions": questions,
	})
}

// submitDiagnosticRequest is the body of POST /assessments/:id/diagnostic.
type submitDiagnosticRequest struct {
	Answers models.JSONB `json:"answers"`
}

// SubmitDiagnostic implements assessment.submit_diagnostic.
// POST /assessments/:id/diagnostic
func (h *Handler) SubmitDiagnostic(c *fiber.Ctx) error {
	assessmentID, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req submitDiagnosticRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	a, err := h.assessments.SubmitDiagnostic(c.Context(), assessmentID, req.Answers)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"level":      a.DeterminedLevel,
		"confidence": a.Confidence,
		"weak_areas": a.WeakAreas,
	})
}
