package web

import (
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleStoreError maps persistence and validation errors onto RFC-7807
// responses.
func handleStoreError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsAutomationNotFound(err):
		return notFound(c, "automation not found")
	case persistence.IsContentNotFound(err):
		return notFound(c, "automation content not found")
	case persistence.IsTriggerNotFound(err):
		return notFound(c, "trigger not found")
	case persistence.IsStepNotFound(err):
		return notFound(c, "step not found")
	case persistence.IsInstanceNotFound(err):
		return notFound(c, "instance not found")
	case persistence.IsActionNotFound(err):
		return notFound(c, "action not found")
	case registry.IsPayloadInvalid(err), registry.IsConfigInvalid(err):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
