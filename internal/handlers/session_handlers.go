package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// requestSessionRequest is the body of POST /sessions.
type requestSessionRequest struct {
	StudentID       uuid.UUID `json:"student_id"`
	TeacherID       uuid.UUID `json:"teacher_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_min"`
}

// RequestSession implements session.request.
// POST /sessions
func (h *Handler) RequestSession(c *fiber.Ctx) error {
	var req requestSessionRequest
	if err := c.BodyParser(&req); err != nil || req.StudentID == uuid.Nil || req.TeacherID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "student_id, teacher_id, scheduled_at and duration_min are required"})
	}

	sess, err := h.sessions.CreateRequest(c.Context(), req.StudentID, req.TeacherID, req.ScheduledAt, req.DurationMinutes)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// ConfirmSession implements session.confirm. Lesson/quiz generation is
// fail-soft: a non-2xx response here reflects the session lookup, the
// transition being disallowed, or the status write failing, never a
// downstream pipeline failure.
// POST /sessions/:id/confirm
func (h *Handler) ConfirmSession(c *fiber.Ctx) error {
	sessionID, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}

	sess, err := h.sessions.Confirm(c.Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"lesson_status": sess.LessonStatus,
		"quiz_status":   sess.QuizStatus,
	})
}

// cancelSessionRequest is the body of POST /sessions/:id/cancel.
type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

// CancelSession implements session.cancel.
// POST /sessions/:id/cancel
func (h *Handler) CancelSession(c *fiber.Ctx) error {
	sessionID, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req cancelSessionRequest
	_ = c.BodyParser(&req)

	if _, err := h.sessions.Cancel(c.Context(), sessionID, req.Reason); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// completeSessionRequest is the body of POST /sessions/:id/complete.
type completeSessionRequest struct {
	TeacherNotes string `json:"teacher_notes"`
	Homework     string `json:"homework"`
	Summary      string `json:"summary"`
}

// CompleteSession implements session.complete.
// POST /sessions/:id/complete
func (h *Handler) CompleteSession(c *fiber.Ctx) error {
	sessionID, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req completeSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	_, learningPointsExtracted, err := h.sessions.Complete(c.Context(), sessionID, req.TeacherNotes, req.Homework, req.Summary)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"learning_points_extracted": learningPointsExtracted})
}
