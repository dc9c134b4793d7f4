// Package handlers maps the engine's eight transport-agnostic operations
// onto Fiber routes. Handlers stay thin: parse and validate the request
// shape, call the owning service/engine, map its error kind to an HTTP
// status, and serialize the result.
package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/assessment"
	"noble-language-orchestrator/internal/orchestrator"
	"noble-language-orchestrator/internal/quizsubmission"
)

// Handler wires every per-resource handler file to the services it calls.
type Handler struct {
	assessments *assessment.Service
	sessions    *orchestrator.Orchestrator
	quizzes     *quizsubmission.Service
}

// New builds a Handler.
func New(assessments *assessment.Service, sessions *orchestrator.Orchestrator, quizzes *quizsubmission.Service) *Handler {
	return &Handler{assessments: assessments, sessions: sessions, quizzes: quizzes}
}

// parseUUIDParam extracts and parses a path parameter as a uuid.UUID,
// returning a Fiber 400 error on a malformed value.
func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// writeError maps an apperrors.Error kind to its HTTP status per §7's
// error-handling design and writes the JSON error envelope. Unrecognized
// errors are logged and reported as a generic 500.
func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case apperrors.Is(err, apperrors.KindValidation):
		status = fiber.StatusBadRequest
	case apperrors.Is(err, apperrors.KindInvalidTransition):
		status = fiber.StatusConflict
	case apperrors.Is(err, apperrors.KindTimeout):
		status = fiber.StatusGatewayTimeout
	case apperrors.Is(err, apperrors.KindGenerationInvalid):
		status = fiber.StatusUnprocessableEntity
	case apperrors.Is(err, apperrors.KindStoreConflict):
		status = fiber.StatusConflict
	case apperrors.Is(err, apperrors.KindTransient):
		status = fiber.StatusBadGateway
	default:
		log.Printf("handlers: unclassified error: %v", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// Health reports service liveness.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "service": "learning-orchestrator"})
}
