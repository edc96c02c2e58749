package jobs

import (
	"context"
	"log"
	"time"

	"stockrecon/internal/repositories"

	"github.com/google/uuid"
)

// StaleSessionAlertService flags validation sessions that have been
// IN_PROGRESS for too long. A stuck session usually means a device died
// mid-count or a shipment was abandoned; it is surfaced to operators, never
// auto-finalized.
type StaleSessionAlertService struct {
	validationRepo repositories.ValidationRepository
}

type StaleSessionAlert struct {
	SessionID  uuid.UUID
	MovementID uuid.UUID
	StartedAt  time.Time
	Age        time.Duration
}

func NewStaleSessionAlertService(validationRepo repositories.ValidationRepository) *StaleSessionAlertService {
	return &StaleSessionAlertService{
		validationRepo: validationRepo,
	}
}

func (a *StaleSessionAlertService) CheckStale(ctx context.Context, maxAge time.Duration) ([]StaleSessionAlert, error) {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour // Default threshold
	}

	cutoff := time.Now().Add(-maxAge)
	sessions, err := a.validationRepo.ListStale(ctx, cutoff, 100)
	if err != nil {
		log.Printf("Failed to list stale validation sessions: %v", err)
		return nil, err
	}

	var alerts []StaleSessionAlert
	for _, session := range sessions {
		alerts = append(alerts, StaleSessionAlert{
			SessionID:  session.ID,
			MovementID: session.MovementID,
			StartedAt:  session.StartedAt,
			Age:        time.Since(session.StartedAt),
		})
	}
	return alerts, nil
}

func (a *StaleSessionAlertService) LogStaleAlerts(ctx context.Context, alerts []StaleSessionAlert) {
	if len(alerts) == 0 {
		log.Println("No stale validation sessions")
		return
	}

	log.Printf("Stale validation sessions (%d):", len(alerts))
	for _, alert := range alerts {
		log.Printf("- Session %s for movement %s in progress for %s (started %s)",
			alert.SessionID.String(),
			alert.MovementID.String(),
			alert.Age.Round(time.Minute),
			alert.StartedAt.Format(time.RFC3339))
	}
}
