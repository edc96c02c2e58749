package repositories

import (
	"context"
	"time"

	"stockrecon/internal/models"

	"github.com/google/uuid"
)

// ScanEventRepository is the append-only audit trail of scan attempts.
// Entries are never updated; a retention sweep prunes old ones.
type ScanEventRepository interface {
	Create(ctx context.Context, event *models.ScanEvent) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*models.ScanEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type scanEventRepo struct {
	db Database
}

func NewScanEventRepo(db Database) ScanEventRepository {
	return &scanEventRepo{db: db}
}

func (r *scanEventRepo) Create(ctx context.Context, event *models.ScanEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()

	query := `
		INSERT INTO scan_events (id, session_id, item_id, barcode, accepted, message, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, event.ID, event.SessionID, event.ItemID, event.Barcode, event.Accepted, event.Message, event.RequestID, event.CreatedAt)
	return err
}

func (r *scanEventRepo) ListBySession(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*models.ScanEvent, error) {
	query := `
		SELECT id, session_id, item_id, barcode, accepted, message, request_id, created_at
		FROM scan_events
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.ScanEvent
	for rows.Next() {
		event := &models.ScanEvent{}
		if err := rows.Scan(&event.ID, &event.SessionID, &event.ItemID, &event.Barcode, &event.Accepted, &event.Message, &event.RequestID, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *scanEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM scan_events WHERE created_at < $1`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
