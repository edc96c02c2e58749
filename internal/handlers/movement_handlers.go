package handlers

import (
	"net/http"

	"stockrecon/internal/common"
	"stockrecon/internal/services"

	"github.com/labstack/echo/v4"
)

// MovementHandlers exposes read-only views of stock movements and their
// manifests. The movement lifecycle itself is owned by another service.
type MovementHandlers struct {
	manifestService services.ManifestService
}

func NewMovementHandlers(manifestService services.ManifestService) *MovementHandlers {
	return &MovementHandlers{
		manifestService: manifestService,
	}
}

// GetMovement returns the movement header.
func (h *MovementHandlers) GetMovement(c echo.Context) error {
	movementID, err := common.ValidateUUID(c.Param("movementId"), "movementId")
	if err != nil {
		return common.SendValidationError(c, "movementId", err.Error())
	}

	movement, err := h.manifestService.GetMovement(c.Request().Context(), movementID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, movement)
}

// GetManifest returns the expected line items of a pending movement, in
// manifest order.
func (h *MovementHandlers) GetManifest(c echo.Context) error {
	movementID, err := common.ValidateUUID(c.Param("movementId"), "movementId")
	if err != nil {
		return common.SendValidationError(c, "movementId", err.Error())
	}

	lines, err := h.manifestService.Resolve(c.Request().Context(), movementID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"movement_id": movementID,
		"lines":       lines,
	})
}
