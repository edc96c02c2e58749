package handlers

import (
	"net/http"

	"stockrecon/internal/common"
	"stockrecon/internal/models"
	"stockrecon/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ValidationHandlers exposes the validation engine to the scanning client.
type ValidationHandlers struct {
	validationService services.ValidationService
}

// NewValidationHandlers creates a new validation handlers instance
func NewValidationHandlers(validationService services.ValidationService) *ValidationHandlers {
	return &ValidationHandlers{
		validationService: validationService,
	}
}

// ScanRequest represents one physical scan submitted by the client.
// RequestID is an optional idempotency token per scan event; repeats within
// the dedup window return the original result instead of counting twice.
type ScanRequest struct {
	Barcode   string `json:"barcode"`
	RequestID string `json:"request_id,omitempty"`
}

// ScanHistoryRequest represents query parameters for the scan audit trail
type ScanHistoryRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// StartValidation creates a validation session for the movement, or
// resumes the existing in-progress one.
func (h *ValidationHandlers) StartValidation(c echo.Context) error {
	movementID, err := common.ValidateUUID(c.Param("movementId"), "movementId")
	if err != nil {
		return common.SendValidationError(c, "movementId", err.Error())
	}

	session, err := h.validationService.Start(c.Request().Context(), movementID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"validation_id": session.ID,
		"status":        session.Status,
		"started_at":    session.StartedAt,
		"items":         session.Items,
		"progress":      session.Progress(),
	})
}

// GetExistingValidation returns the movement's in-progress session, or a
// null validation when none exists. Clients use it to recover a session id
// after a restart.
func (h *ValidationHandlers) GetExistingValidation(c echo.Context) error {
	movementID, err := common.ValidateUUID(c.Param("movementId"), "movementId")
	if err != nil {
		return common.SendValidationError(c, "movementId", err.Error())
	}

	session, err := h.validationService.ExistingValidation(c.Request().Context(), movementID)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if session == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"validation": nil,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"validation": sessionResponse(session),
	})
}

// GetValidation returns the session state plus computed progress.
func (h *ValidationHandlers) GetValidation(c echo.Context) error {
	movementID, validationID, err := h.pathIDs(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	session, progress, err := h.validationService.Get(c.Request().Context(), movementID, validationID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	resp := sessionResponse(session)
	resp["progress"] = progress
	return c.JSON(http.StatusOK, resp)
}

// Scan submits one scanned barcode against the session. A rejected scan
// (unknown barcode, item already complete) is a 200 with success=false,
// not an error: the session keeps accepting scans.
func (h *ValidationHandlers) Scan(c echo.Context) error {
	movementID, validationID, err := h.pathIDs(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req ScanRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	barcode, err := common.ValidateBarcode(req.Barcode)
	if err != nil {
		return common.SendValidationError(c, "barcode", err.Error())
	}
	requestID, err := common.ValidateRequestID(req.RequestID)
	if err != nil {
		return common.SendValidationError(c, "request_id", err.Error())
	}

	result, err := h.validationService.Scan(c.Request().Context(), movementID, validationID, barcode, requestID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// CompleteValidation finalizes the session and reports discrepancies.
func (h *ValidationHandlers) CompleteValidation(c echo.Context) error {
	movementID, validationID, err := h.pathIDs(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	session, discrepancies, err := h.validationService.Complete(c.Request().Context(), movementID, validationID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"validation_id": session.ID,
		"status":        session.Status,
		"completed_at":  session.CompletedAt,
		"discrepancies": discrepancies,
	})
}

// GetReport returns a presigned download URL for the archived
// reconciliation report of a finalized session.
func (h *ValidationHandlers) GetReport(c echo.Context) error {
	movementID, validationID, err := h.pathIDs(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	url, err := h.validationService.ReportURL(c.Request().Context(), movementID, validationID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"url": url,
	})
}

// GetScanHistory returns the session's scan audit trail.
func (h *ValidationHandlers) GetScanHistory(c echo.Context) error {
	movementID, validationID, err := h.pathIDs(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req ScanHistoryRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid query parameters")
	}
	limit, offset, err := common.ValidatePaginationParams(req.Limit, req.Offset)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	events, err := h.validationService.ScanHistory(c.Request().Context(), movementID, validationID, limit, offset)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *ValidationHandlers) pathIDs(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	movementID, err := common.ValidateUUID(c.Param("movementId"), "movementId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	validationID, err := common.ValidateUUID(c.Param("validationId"), "validationId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return movementID, validationID, nil
}

func sessionResponse(session *models.ValidationSession) map[string]interface{} {
	return map[string]interface{}{
		"validation_id": session.ID,
		"movement_id":   session.MovementID,
		"status":        session.Status,
		"started_at":    session.StartedAt,
		"completed_at":  session.CompletedAt,
		"items":         session.Items,
	}
}
