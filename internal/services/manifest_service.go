package services

import (
	"context"
	"fmt"

	"stockrecon/internal/common"
	"stockrecon/internal/models"
	"stockrecon/internal/repositories"

	"github.com/google/uuid"
)

// ManifestService resolves a movement into the list of line items a
// validation session is expected to receive. Read-only.
type ManifestService interface {
	GetMovement(ctx context.Context, movementID uuid.UUID) (*models.StockMovement, error)
	Resolve(ctx context.Context, movementID uuid.UUID) ([]*models.MovementLine, error)
}

type manifestService struct {
	movementRepo repositories.MovementRepository
}

func NewManifestService(movementRepo repositories.MovementRepository) ManifestService {
	return &manifestService{movementRepo: movementRepo}
}

func (s *manifestService) GetMovement(ctx context.Context, movementID uuid.UUID) (*models.StockMovement, error) {
	return s.movementRepo.GetByID(ctx, movementID)
}

// Resolve returns the movement's manifest lines in manifest order. Only
// pending movements are resolvable: goods already received or cancelled
// have nothing left to validate.
func (s *manifestService) Resolve(ctx context.Context, movementID uuid.UUID) ([]*models.MovementLine, error) {
	movement, err := s.movementRepo.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if !movement.Validatable() {
		return nil, fmt.Errorf("movement %s is %s, validation requires PENDING: %w", movementID, movement.Status, common.ErrInvalidState)
	}
	return s.movementRepo.ListLines(ctx, movementID)
}
