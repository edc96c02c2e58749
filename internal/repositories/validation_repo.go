package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockrecon/internal/common"
	"stockrecon/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ScanOutcome classifies what a scan attempt did at the store level.
// Rejections are outcomes, not errors: the session keeps accepting scans.
type ScanOutcome string

const (
	ScanApplied        ScanOutcome = "applied"
	ScanUnknownBarcode ScanOutcome = "unknown_barcode"
	ScanItemComplete   ScanOutcome = "item_complete"
)

// ValidationRepository is the durable store for validation sessions and
// their per-item scan counters.
//
// Concurrency contract: scans take a shared lock on the session row and
// apply the counter increment as a single UPDATE, so concurrent scans of
// the same barcode can never lose an update. Finalization takes an
// exclusive lock on the session row, which both serializes competing
// finalize calls and fences off in-flight scans.
type ValidationRepository interface {
	CreateSession(ctx context.Context, session *models.ValidationSession) error
	GetSession(ctx context.Context, movementID, sessionID uuid.UUID) (*models.ValidationSession, error)
	GetActiveByMovement(ctx context.Context, movementID uuid.UUID) (*models.ValidationSession, error)
	ApplyScan(ctx context.Context, movementID, sessionID uuid.UUID, barcode string) (*models.ValidationItem, ScanOutcome, error)
	FinalizeSession(ctx context.Context, movementID, sessionID uuid.UUID) (*models.ValidationSession, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.ValidationSession, error)
}

type validationRepo struct {
	db Database
}

func NewValidationRepo(db Database) ValidationRepository {
	return &validationRepo{db: db}
}

// CreateSession inserts the session and its manifest snapshot in one
// transaction. A partial unique index on (movement_id) WHERE status =
// 'IN_PROGRESS' backs the one-active-session invariant; losing the insert
// race surfaces as ErrConflict so the caller can resume the winner.
func (r *validationRepo) CreateSession(ctx context.Context, session *models.ValidationSession) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sessionQuery := `
		INSERT INTO validation_sessions (id, movement_id, status, started_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (movement_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		RETURNING started_at
	`
	err = tx.QueryRow(ctx, sessionQuery, session.ID, session.MovementID, session.Status).Scan(&session.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("movement %s already has an active session: %w", session.MovementID, common.ErrConflict)
		}
		return err
	}

	itemQuery := `
		INSERT INTO validation_items (id, session_id, product_id, product_name, barcode, expected_quantity, scanned_quantity, status, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, item := range session.Items {
		_, err := tx.Exec(ctx, itemQuery, item.ID, item.SessionID, item.ProductID, item.ProductName, item.Barcode, item.ExpectedQuantity, item.ScannedQuantity, item.Status, item.Position)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *validationRepo) GetSession(ctx context.Context, movementID, sessionID uuid.UUID) (*models.ValidationSession, error) {
	session := &models.ValidationSession{}
	query := `
		SELECT id, movement_id, status, started_at, completed_at
		FROM validation_sessions
		WHERE id = $1 AND movement_id = $2
	`
	err := r.db.QueryRow(ctx, query, sessionID, movementID).Scan(&session.ID, &session.MovementID, &session.Status, &session.StartedAt, &session.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("validation session %s: %w", sessionID, common.ErrNotFound)
		}
		return nil, err
	}

	session.Items, err = r.loadItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *validationRepo) GetActiveByMovement(ctx context.Context, movementID uuid.UUID) (*models.ValidationSession, error) {
	session := &models.ValidationSession{}
	query := `
		SELECT id, movement_id, status, started_at, completed_at
		FROM validation_sessions
		WHERE movement_id = $1 AND status = 'IN_PROGRESS'
	`
	err := r.db.QueryRow(ctx, query, movementID).Scan(&session.ID, &session.MovementID, &session.Status, &session.StartedAt, &session.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no active validation for movement %s: %w", movementID, common.ErrNotFound)
		}
		return nil, err
	}

	session.Items, err = r.loadItems(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ApplyScan increments the matching item's counter and recomputes its
// status in a single UPDATE. The shared lock on the session row keeps the
// session from being finalized underneath the scan; the UPDATE's guard on
// scanned_quantity < expected_quantity enforces the over-scan rejection.
func (r *validationRepo) ApplyScan(ctx context.Context, movementID, sessionID uuid.UUID, barcode string) (*models.ValidationItem, ScanOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	lockQuery := `
		SELECT status FROM validation_sessions
		WHERE id = $1 AND movement_id = $2
		FOR SHARE
	`
	err = tx.QueryRow(ctx, lockQuery, sessionID, movementID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", fmt.Errorf("validation session %s: %w", sessionID, common.ErrNotFound)
		}
		return nil, "", err
	}
	if status != models.SessionStatusInProgress {
		return nil, "", fmt.Errorf("validation session %s is %s: %w", sessionID, status, common.ErrInvalidState)
	}

	item := &models.ValidationItem{}
	updateQuery := `
		UPDATE validation_items
		SET scanned_quantity = scanned_quantity + 1,
		    status = CASE WHEN scanned_quantity + 1 >= expected_quantity THEN 'COMPLETE' ELSE 'PARTIAL' END,
		    last_scanned_at = NOW()
		WHERE session_id = $1 AND barcode = $2 AND scanned_quantity < expected_quantity
		RETURNING id, session_id, product_id, product_name, barcode, expected_quantity, scanned_quantity, status, position, last_scanned_at
	`
	err = tx.QueryRow(ctx, updateQuery, sessionID, barcode).Scan(&item.ID, &item.SessionID, &item.ProductID, &item.ProductName, &item.Barcode, &item.ExpectedQuantity, &item.ScannedQuantity, &item.Status, &item.Position, &item.LastScannedAt)
	if err == nil {
		return item, ScanApplied, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", err
	}

	// No row qualified: either the barcode is not on the manifest or the
	// item is already fully received.
	var exists bool
	existsQuery := `SELECT EXISTS (SELECT 1 FROM validation_items WHERE session_id = $1 AND barcode = $2)`
	if err := tx.QueryRow(ctx, existsQuery, sessionID, barcode).Scan(&exists); err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, ScanUnknownBarcode, tx.Commit(ctx)
	}
	return nil, ScanItemComplete, tx.Commit(ctx)
}

// FinalizeSession transitions the session to its terminal status. The
// exclusive lock makes the IN_PROGRESS check and the transition one atomic
// step, so two racing finalize calls cannot both succeed.
func (r *validationRepo) FinalizeSession(ctx context.Context, movementID, sessionID uuid.UUID) (*models.ValidationSession, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	session := &models.ValidationSession{}
	lockQuery := `
		SELECT id, movement_id, status, started_at, completed_at
		FROM validation_sessions
		WHERE id = $1 AND movement_id = $2
		FOR UPDATE
	`
	err = tx.QueryRow(ctx, lockQuery, sessionID, movementID).Scan(&session.ID, &session.MovementID, &session.Status, &session.StartedAt, &session.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("validation session %s: %w", sessionID, common.ErrNotFound)
		}
		return nil, err
	}
	if session.Status != models.SessionStatusInProgress {
		return nil, fmt.Errorf("validation session %s already finalized as %s: %w", sessionID, session.Status, common.ErrInvalidState)
	}

	itemsQuery := `
		SELECT id, session_id, product_id, product_name, barcode, expected_quantity, scanned_quantity, status, position, last_scanned_at
		FROM validation_items
		WHERE session_id = $1
		ORDER BY position ASC
	`
	rows, err := tx.Query(ctx, itemsQuery, sessionID)
	if err != nil {
		return nil, err
	}
	session.Items, err = scanItems(rows)
	if err != nil {
		return nil, err
	}

	terminal := models.SessionStatusCompleted
	if len(session.Discrepancies()) > 0 {
		terminal = models.SessionStatusCompletedWithDiscrepancy
	}

	updateQuery := `
		UPDATE validation_sessions
		SET status = $2, completed_at = NOW()
		WHERE id = $1
		RETURNING completed_at
	`
	if err := tx.QueryRow(ctx, updateQuery, sessionID, terminal).Scan(&session.CompletedAt); err != nil {
		return nil, err
	}
	session.Status = terminal

	return session, tx.Commit(ctx)
}

func (r *validationRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.ValidationSession, error) {
	query := `
		SELECT id, movement_id, status, started_at, completed_at
		FROM validation_sessions
		WHERE status = 'IN_PROGRESS' AND started_at < $1
		ORDER BY started_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.ValidationSession
	for rows.Next() {
		session := &models.ValidationSession{}
		if err := rows.Scan(&session.ID, &session.MovementID, &session.Status, &session.StartedAt, &session.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *validationRepo) loadItems(ctx context.Context, sessionID uuid.UUID) ([]*models.ValidationItem, error) {
	query := `
		SELECT id, session_id, product_id, product_name, barcode, expected_quantity, scanned_quantity, status, position, last_scanned_at
		FROM validation_items
		WHERE session_id = $1
		ORDER BY position ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]*models.ValidationItem, error) {
	defer rows.Close()

	items := []*models.ValidationItem{}
	for rows.Next() {
		item := &models.ValidationItem{}
		if err := rows.Scan(&item.ID, &item.SessionID, &item.ProductID, &item.ProductName, &item.Barcode, &item.ExpectedQuantity, &item.ScannedQuantity, &item.Status, &item.Position, &item.LastScannedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
