package testhelpers

import (
	"context"
	"os"
	"testing"

	"stockrecon/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func() error
}

// SetupTestDB creates a pooled connection for testing
func SetupTestDB(t *testing.T, connString string) *TestDB {
	t.Helper()

	if connString == "" {
		connString = os.Getenv("TEST_DATABASE_URL")
		if connString == "" {
			connString = "host=localhost port=5432 user=postgres password=postgres dbname=stockrecon_test sslmode=disable"
		}
	}

	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	return &TestDB{
		Pool: pool,
		Cleanup: func() error {
			pool.Close()
			return nil
		},
	}
}

// SeedMovement creates a pending movement with the given manifest lines
// (product name, barcode, quantity triples) and returns its id.
func SeedMovement(t *testing.T, db *TestDB, lines []models.MovementLine) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	movementID := uuid.New()
	sourceID := uuid.New()
	destinationID := uuid.New()

	movementQuery := `
		INSERT INTO stock_movements (id, reference, source_warehouse_id, destination_warehouse_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := db.Pool.Exec(ctx, movementQuery, movementID, "TEST-"+movementID.String()[:8], sourceID, destinationID, models.MovementStatusPending)
	if err != nil {
		t.Fatalf("Failed to create test movement: %v", err)
	}

	productQuery := `INSERT INTO products (id, name, barcode) VALUES ($1, $2, $3) ON CONFLICT (barcode) DO NOTHING`
	lineQuery := `
		INSERT INTO movement_lines (id, movement_id, product_id, quantity, position)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, line := range lines {
		productID := uuid.New()
		if _, err := db.Pool.Exec(ctx, productQuery, productID, line.ProductName, line.Barcode); err != nil {
			t.Fatalf("Failed to create test product: %v", err)
		}
		if _, err := db.Pool.Exec(ctx, lineQuery, uuid.New(), movementID, productID, line.Quantity, i); err != nil {
			t.Fatalf("Failed to create test movement line: %v", err)
		}
	}

	return movementID
}
