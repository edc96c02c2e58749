package repositories

import (
	"context"
	"testing"
	"time"

	"stockrecon/internal/common"
	"stockrecon/internal/models"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ValidationRepoTestSuite struct {
	suite.Suite
	mock       pgxmock.PgxPoolIface
	repo       ValidationRepository
	movementID uuid.UUID
	sessionID  uuid.UUID
	itemID     uuid.UUID
	productID  uuid.UUID
	context    context.Context
}

func (suite *ValidationRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewValidationRepo(mock)
	suite.movementID = uuid.New()
	suite.sessionID = uuid.New()
	suite.itemID = uuid.New()
	suite.productID = uuid.New()
	suite.context = context.Background()
}

func (suite *ValidationRepoTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestValidationRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ValidationRepoTestSuite))
}

func (suite *ValidationRepoTestSuite) itemColumns() []string {
	return []string{"id", "session_id", "product_id", "product_name", "barcode", "expected_quantity", "scanned_quantity", "status", "position", "last_scanned_at"}
}

func (suite *ValidationRepoTestSuite) expectSessionLock(query string, status string) {
	suite.mock.ExpectQuery(query).
		WithArgs(suite.sessionID, suite.movementID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(status))
}

func (suite *ValidationRepoTestSuite) TestApplyScan_Applied() {
	now := time.Now()

	suite.mock.ExpectBegin()
	suite.expectSessionLock(`SELECT status FROM validation_sessions`, models.SessionStatusInProgress)
	suite.mock.ExpectQuery(`UPDATE validation_items`).
		WithArgs(suite.sessionID, "1111").
		WillReturnRows(pgxmock.NewRows(suite.itemColumns()).
			AddRow(suite.itemID, suite.sessionID, suite.productID, "Widget A", "1111", 5, 3, models.ItemStatusPartial, 0, &now))
	suite.mock.ExpectCommit()

	item, outcome, err := suite.repo.ApplyScan(suite.context, suite.movementID, suite.sessionID, "1111")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), ScanApplied, outcome)
	assert.Equal(suite.T(), 3, item.ScannedQuantity)
	assert.Equal(suite.T(), models.ItemStatusPartial, item.Status)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestApplyScan_UnknownBarcode() {
	suite.mock.ExpectBegin()
	suite.expectSessionLock(`SELECT status FROM validation_sessions`, models.SessionStatusInProgress)
	suite.mock.ExpectQuery(`UPDATE validation_items`).
		WithArgs(suite.sessionID, "9999").
		WillReturnError(pgx.ErrNoRows)
	suite.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(suite.sessionID, "9999").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	suite.mock.ExpectCommit()

	item, outcome, err := suite.repo.ApplyScan(suite.context, suite.movementID, suite.sessionID, "9999")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), ScanUnknownBarcode, outcome)
	assert.Nil(suite.T(), item)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestApplyScan_ItemAlreadyComplete() {
	suite.mock.ExpectBegin()
	suite.expectSessionLock(`SELECT status FROM validation_sessions`, models.SessionStatusInProgress)
	suite.mock.ExpectQuery(`UPDATE validation_items`).
		WithArgs(suite.sessionID, "1111").
		WillReturnError(pgx.ErrNoRows)
	suite.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(suite.sessionID, "1111").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	suite.mock.ExpectCommit()

	item, outcome, err := suite.repo.ApplyScan(suite.context, suite.movementID, suite.sessionID, "1111")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), ScanItemComplete, outcome)
	assert.Nil(suite.T(), item)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestApplyScan_TerminalSession() {
	suite.mock.ExpectBegin()
	suite.expectSessionLock(`SELECT status FROM validation_sessions`, models.SessionStatusCompleted)
	suite.mock.ExpectRollback()

	_, _, err := suite.repo.ApplyScan(suite.context, suite.movementID, suite.sessionID, "1111")
	assert.ErrorIs(suite.T(), err, common.ErrInvalidState)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestApplyScan_SessionNotFound() {
	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`SELECT status FROM validation_sessions`).
		WithArgs(suite.sessionID, suite.movementID).
		WillReturnError(pgx.ErrNoRows)
	suite.mock.ExpectRollback()

	_, _, err := suite.repo.ApplyScan(suite.context, suite.movementID, suite.sessionID, "1111")
	assert.ErrorIs(suite.T(), err, common.ErrNotFound)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestCreateSession_Success() {
	session := &models.ValidationSession{
		ID:         suite.sessionID,
		MovementID: suite.movementID,
		Status:     models.SessionStatusInProgress,
		Items: []*models.ValidationItem{
			{ID: suite.itemID, SessionID: suite.sessionID, ProductID: suite.productID, ProductName: "Widget A", Barcode: "1111", ExpectedQuantity: 5, Status: models.ItemStatusPending, Position: 0},
		},
	}

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`INSERT INTO validation_sessions`).
		WithArgs(session.ID, session.MovementID, session.Status).
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(time.Now()))
	suite.mock.ExpectExec(`INSERT INTO validation_items`).
		WithArgs(suite.itemID, suite.sessionID, suite.productID, "Widget A", "1111", 5, 0, models.ItemStatusPending, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectCommit()

	err := suite.repo.CreateSession(suite.context, session)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), session.StartedAt.IsZero())
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

// Losing the insert race against the partial unique index surfaces as a
// conflict, which the service resolves by resuming the winner.
func (suite *ValidationRepoTestSuite) TestCreateSession_ActiveSessionConflict() {
	session := &models.ValidationSession{
		ID:         suite.sessionID,
		MovementID: suite.movementID,
		Status:     models.SessionStatusInProgress,
	}

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`INSERT INTO validation_sessions`).
		WithArgs(session.ID, session.MovementID, session.Status).
		WillReturnError(pgx.ErrNoRows)
	suite.mock.ExpectRollback()

	err := suite.repo.CreateSession(suite.context, session)
	assert.ErrorIs(suite.T(), err, common.ErrConflict)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestFinalizeSession_WithDiscrepancy() {
	startedAt := time.Now().Add(-time.Hour)
	completedAt := time.Now()

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`SELECT id, movement_id, status, started_at, completed_at`).
		WithArgs(suite.sessionID, suite.movementID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "movement_id", "status", "started_at", "completed_at"}).
			AddRow(suite.sessionID, suite.movementID, models.SessionStatusInProgress, startedAt, (*time.Time)(nil)))
	suite.mock.ExpectQuery(`SELECT id, session_id, product_id`).
		WithArgs(suite.sessionID).
		WillReturnRows(pgxmock.NewRows(suite.itemColumns()).
			AddRow(suite.itemID, suite.sessionID, suite.productID, "Widget A", "1111", 5, 2, models.ItemStatusPartial, 0, (*time.Time)(nil)))
	suite.mock.ExpectQuery(`UPDATE validation_sessions`).
		WithArgs(suite.sessionID, models.SessionStatusCompletedWithDiscrepancy).
		WillReturnRows(pgxmock.NewRows([]string{"completed_at"}).AddRow(&completedAt))
	suite.mock.ExpectCommit()

	session, err := suite.repo.FinalizeSession(suite.context, suite.movementID, suite.sessionID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SessionStatusCompletedWithDiscrepancy, session.Status)
	assert.NotNil(suite.T(), session.CompletedAt)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestFinalizeSession_Clean() {
	startedAt := time.Now().Add(-time.Hour)

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`SELECT id, movement_id, status, started_at, completed_at`).
		WithArgs(suite.sessionID, suite.movementID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "movement_id", "status", "started_at", "completed_at"}).
			AddRow(suite.sessionID, suite.movementID, models.SessionStatusInProgress, startedAt, (*time.Time)(nil)))
	suite.mock.ExpectQuery(`SELECT id, session_id, product_id`).
		WithArgs(suite.sessionID).
		WillReturnRows(pgxmock.NewRows(suite.itemColumns()).
			AddRow(suite.itemID, suite.sessionID, suite.productID, "Widget A", "1111", 5, 5, models.ItemStatusComplete, 0, (*time.Time)(nil)))
	suite.mock.ExpectQuery(`UPDATE validation_sessions`).
		WithArgs(suite.sessionID, models.SessionStatusCompleted).
		WillReturnRows(pgxmock.NewRows([]string{"completed_at"}).AddRow(time.Now()))
	suite.mock.ExpectCommit()

	session, err := suite.repo.FinalizeSession(suite.context, suite.movementID, suite.sessionID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SessionStatusCompleted, session.Status)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

// Two finalize calls cannot both succeed: the second observes the terminal
// status under the same lock the first held.
func (suite *ValidationRepoTestSuite) TestFinalizeSession_AlreadyTerminal() {
	startedAt := time.Now().Add(-time.Hour)
	completedAt := time.Now()

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`SELECT id, movement_id, status, started_at, completed_at`).
		WithArgs(suite.sessionID, suite.movementID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "movement_id", "status", "started_at", "completed_at"}).
			AddRow(suite.sessionID, suite.movementID, models.SessionStatusCompleted, startedAt, &completedAt))
	suite.mock.ExpectRollback()

	_, err := suite.repo.FinalizeSession(suite.context, suite.movementID, suite.sessionID)
	assert.ErrorIs(suite.T(), err, common.ErrInvalidState)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestGetActiveByMovement_NotFound() {
	suite.mock.ExpectQuery(`SELECT id, movement_id, status, started_at, completed_at`).
		WithArgs(suite.movementID).
		WillReturnError(pgx.ErrNoRows)

	_, err := suite.repo.GetActiveByMovement(suite.context, suite.movementID)
	assert.ErrorIs(suite.T(), err, common.ErrNotFound)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ValidationRepoTestSuite) TestGetSession_LoadsItemsInManifestOrder() {
	startedAt := time.Now().Add(-time.Hour)
	secondItemID := uuid.New()

	suite.mock.ExpectQuery(`SELECT id, movement_id, status, started_at, completed_at`).
		WithArgs(suite.sessionID, suite.movementID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "movement_id", "status", "started_at", "completed_at"}).
			AddRow(suite.sessionID, suite.movementID, models.SessionStatusInProgress, startedAt, (*time.Time)(nil)))
	suite.mock.ExpectQuery(`SELECT id, session_id, product_id`).
		WithArgs(suite.sessionID).
		WillReturnRows(pgxmock.NewRows(suite.itemColumns()).
			AddRow(suite.itemID, suite.sessionID, suite.productID, "Widget A", "1111", 5, 0, models.ItemStatusPending, 0, (*time.Time)(nil)).
			AddRow(secondItemID, suite.sessionID, uuid.New(), "Widget B", "2222", 3, 1, models.ItemStatusPartial, 1, (*time.Time)(nil)))

	session, err := suite.repo.GetSession(suite.context, suite.movementID, suite.sessionID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), session.Items, 2)
	assert.Equal(suite.T(), "1111", session.Items[0].Barcode)
	assert.Equal(suite.T(), "2222", session.Items[1].Barcode)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}
