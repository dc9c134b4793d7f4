package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// submitQuizRequest is the body of POST /quizzes/:id/submit.
type submitQuizRequest struct {
	StudentID uuid.UUID         `json:"student_id"`
	Answers   map[string]string `json:"answers"`
}

// SubmitQuiz implements quiz.submit.
// POST /quizzes/:id/submit
func (h *Handler) SubmitQuiz(c *fiber.Ctx) error {
	quizID, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req submitQuizRequest
	if err := c.BodyParser(&req); err != nil || req.StudentID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "student_id and answers are required"})
	}

	result, err := h.quizzes.Submit(c.Context(), quizID, req.StudentID, req.Answers)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"score":    result.Score,
		"per_item": result.Items,
	})
}
