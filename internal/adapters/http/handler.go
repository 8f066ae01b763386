// Package http exposes the deployment status/trigger API.
package http

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/zwg/restage/internal/core/domain"
	"github.com/zwg/restage/internal/core/ports"
)

// Redeployer runs one full redeploy and reports what happened.
type Redeployer interface {
	Redeploy(ctx context.Context) (*domain.Report, error)
}

// DeployHandler serves the status of the instance slot and accepts redeploy
// triggers. Triggered runs are serialized: concurrent redeploys are undefined
// behavior at the runtime level, so overlapping requests simply queue.
type DeployHandler struct {
	redeployer   Redeployer
	containers   ports.ContainerService
	instanceName string

	mu sync.Mutex
}

// NewDeployHandler creates the handler for the given instance slot.
func NewDeployHandler(redeployer Redeployer, containers ports.ContainerService, instanceName string) *DeployHandler {
	return &DeployHandler{
		redeployer:   redeployer,
		containers:   containers,
		instanceName: instanceName,
	}
}

// Register attaches the API routes to the given router group.
func (h *DeployHandler) Register(router fiber.Router) {
	router.Get("/status", h.Status)
	router.Post("/redeploy", h.Redeploy)
}

// Status reports the current occupant of the instance slot, or state "absent"
// when the slot is empty.
func (h *DeployHandler) Status(c *fiber.Ctx) error {
	inst, err := h.containers.FindInstance(c.Context(), h.instanceName)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if inst == nil {
		return c.JSON(fiber.Map{
			"name":  h.instanceName,
			"state": "absent",
		})
	}
	return c.JSON(inst)
}

// Redeploy triggers one run of the full procedure and returns its report.
func (h *DeployHandler) Redeploy(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	report, err := h.redeployer.Redeploy(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"steps": stepsJSON(report),
		})
	}

	return c.JSON(fiber.Map{
		"address": report.Address,
		"steps":   stepsJSON(report),
	})
}

func stepsJSON(report *domain.Report) []fiber.Map {
	if report == nil {
		return nil
	}
	out := make([]fiber.Map, 0, len(report.Steps))
	for _, s := range report.Steps {
		m := fiber.Map{
			"name": s.Name,
			"kind": s.Kind,
		}
		if s.Note != "" {
			m["note"] = s.Note
		}
		if s.Err != nil {
			m["error"] = s.Err.Error()
		}
		out = append(out, m)
	}
	return out
}
