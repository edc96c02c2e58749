package testhelpers

import (
	"context"
	"os"
	"testing"

	"stockrecon/internal/common"
	"stockrecon/internal/models"
	"stockrecon/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Full session lifecycle against a real database: seed a movement, open a
// session from its manifest, scan into a shortfall, finalize, and verify
// the terminal state is immutable.
func TestValidationFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}

	testDB := SetupTestDB(t, "")
	defer testDB.Cleanup()

	ctx := context.Background()
	movementID := SeedMovement(t, testDB, []models.MovementLine{
		{ProductName: "Widget A", Barcode: "1111", Quantity: 3},
		{ProductName: "Widget B", Barcode: "2222", Quantity: 2},
	})

	movementRepo := repositories.NewMovementRepo(testDB.Pool)
	validationRepo := repositories.NewValidationRepo(testDB.Pool)

	movement, err := movementRepo.GetByID(ctx, movementID)
	require.NoError(t, err)
	assert.True(t, movement.Validatable())

	lines, err := movementRepo.ListLines(ctx, movementID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "1111", lines[0].Barcode)
	assert.Equal(t, "2222", lines[1].Barcode)

	session := &models.ValidationSession{
		ID:         uuid.New(),
		MovementID: movementID,
		Status:     models.SessionStatusInProgress,
	}
	for _, line := range lines {
		session.Items = append(session.Items, &models.ValidationItem{
			ID:               uuid.New(),
			SessionID:        session.ID,
			ProductID:        line.ProductID,
			ProductName:      line.ProductName,
			Barcode:          line.Barcode,
			ExpectedQuantity: line.Quantity,
			Status:           models.ItemStatusPending,
			Position:         line.Position,
		})
	}

	t.Run("CreateSession", func(t *testing.T) {
		require.NoError(t, validationRepo.CreateSession(ctx, session))

		active, err := validationRepo.GetActiveByMovement(ctx, movementID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, active.ID)
		require.Len(t, active.Items, 2)
	})

	t.Run("SecondSessionConflicts", func(t *testing.T) {
		duplicate := &models.ValidationSession{
			ID:         uuid.New(),
			MovementID: movementID,
			Status:     models.SessionStatusInProgress,
		}
		err := validationRepo.CreateSession(ctx, duplicate)
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("Scans", func(t *testing.T) {
		// Widget A to completion, Widget B short by one.
		for i := 0; i < 3; i++ {
			item, outcome, err := validationRepo.ApplyScan(ctx, movementID, session.ID, "1111")
			require.NoError(t, err)
			assert.Equal(t, repositories.ScanApplied, outcome)
			assert.Equal(t, i+1, item.ScannedQuantity)
		}
		item, outcome, err := validationRepo.ApplyScan(ctx, movementID, session.ID, "2222")
		require.NoError(t, err)
		assert.Equal(t, repositories.ScanApplied, outcome)
		assert.Equal(t, models.ItemStatusPartial, item.Status)

		// Over-scan of the completed item is rejected, not counted.
		_, outcome, err = validationRepo.ApplyScan(ctx, movementID, session.ID, "1111")
		require.NoError(t, err)
		assert.Equal(t, repositories.ScanItemComplete, outcome)

		// A barcode outside the manifest never mutates anything.
		_, outcome, err = validationRepo.ApplyScan(ctx, movementID, session.ID, "9999")
		require.NoError(t, err)
		assert.Equal(t, repositories.ScanUnknownBarcode, outcome)
	})

	t.Run("Finalize", func(t *testing.T) {
		finalized, err := validationRepo.FinalizeSession(ctx, movementID, session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompletedWithDiscrepancy, finalized.Status)
		require.NotNil(t, finalized.CompletedAt)

		discrepancies := finalized.Discrepancies()
		require.Len(t, discrepancies, 1)
		assert.Equal(t, "Widget B", discrepancies[0].ProductName)
		assert.Equal(t, 1, discrepancies[0].Missing)
	})

	t.Run("TerminalSessionIsImmutable", func(t *testing.T) {
		_, _, err := validationRepo.ApplyScan(ctx, movementID, session.ID, "2222")
		assert.ErrorIs(t, err, common.ErrInvalidState)

		_, err = validationRepo.FinalizeSession(ctx, movementID, session.ID)
		assert.ErrorIs(t, err, common.ErrInvalidState)

		// The movement is free for a new session once the old one closed.
		_, err = validationRepo.GetActiveByMovement(ctx, movementID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}
