package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/registry"
)

const defaultEventLimit = 50

type APIHandlers struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

func NewAPIHandlers(persistence persistence.Persistence, registry *registry.Registry) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		registry:    registry,
	}
}

// GetTriggers lists every trigger of a tenant.
func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		return badRequest(c, "tenant_id query parameter is required")
	}

	triggers, err := h.persistence.TriggerRepository().TriggersByTenant(c.Context(), tenantID)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(ListTriggersResponse{
		Triggers: triggers,
		Count:    len(triggers),
	})
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	trigger, err := h.persistence.TriggerRepository().TriggerByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Trigger not found")
		}

		return internalError(c, err)
	}

	return c.JSON(trigger)
}

// GetTriggerEvents returns the firing history of a trigger, newest first.
func (h *APIHandlers) GetTriggerEvents(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	limit := defaultEventLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return badRequest(c, "Invalid limit parameter: "+limitStr)
		}

		limit = parsed
	}

	// A trigger with no history still 404s when it does not exist at all.
	_, err := h.persistence.TriggerRepository().TriggerByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Trigger not found")
		}

		return internalError(c, err)
	}

	events, err := h.persistence.TriggerEventRepository().TriggerEventsByTrigger(c.Context(), id, limit)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(ListTriggerEventsResponse{
		TriggerID: id,
		Events:    events,
		Count:     len(events),
	})
}

// ValidateTrigger dry-runs the definition-time checks against a trigger body
// without storing it, so authoring tools can reject bad definitions before
// they reach the engine.
func (h *APIHandlers) ValidateTrigger(c fiber.Ctx) error {
	var trigger models.Trigger
	if err := c.Bind().JSON(&trigger); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	findings := h.registry.ValidateTrigger(&trigger)

	response := ValidateTriggerResponse{Valid: len(findings) == 0}
	for _, finding := range findings {
		response.Problems = append(response.Problems, finding.Error())
	}

	return c.JSON(response)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	message := "Automata API is healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		message = "Automata API is unhealthy: " + err.Error()
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
