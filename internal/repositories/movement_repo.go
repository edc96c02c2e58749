package repositories

import (
	"context"
	"errors"
	"fmt"

	"stockrecon/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stockrecon/internal/common"
)

// MovementRepository reads stock movements and their manifest lines. The
// movement lifecycle is owned elsewhere; this engine never writes to it.
type MovementRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StockMovement, error)
	ListLines(ctx context.Context, movementID uuid.UUID) ([]*models.MovementLine, error)
}

type movementRepo struct {
	db Database
}

func NewMovementRepo(db Database) MovementRepository {
	return &movementRepo{db: db}
}

func (r *movementRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.StockMovement, error) {
	movement := &models.StockMovement{}
	query := `
		SELECT id, reference, source_warehouse_id, destination_warehouse_id, status, created_at
		FROM stock_movements
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&movement.ID, &movement.Reference, &movement.SourceWarehouseID, &movement.DestinationWarehouseID, &movement.Status, &movement.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("movement %s: %w", id, common.ErrNotFound)
		}
		return nil, err
	}
	return movement, nil
}

func (r *movementRepo) ListLines(ctx context.Context, movementID uuid.UUID) ([]*models.MovementLine, error) {
	query := `
		SELECT ml.id, ml.movement_id, ml.product_id, p.name, p.barcode, ml.quantity, ml.position
		FROM movement_lines ml
		JOIN products p ON p.id = ml.product_id
		WHERE ml.movement_id = $1
		ORDER BY ml.position ASC
	`
	rows, err := r.db.Query(ctx, query, movementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*models.MovementLine
	for rows.Next() {
		line := &models.MovementLine{}
		if err := rows.Scan(&line.ID, &line.MovementID, &line.ProductID, &line.ProductName, &line.Barcode, &line.Quantity, &line.Position); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
