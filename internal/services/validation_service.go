package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"stockrecon/internal/caching"
	"stockrecon/internal/common"
	"stockrecon/internal/models"
	"stockrecon/internal/repositories"

	"github.com/google/uuid"
)

const (
	// Snapshot TTL matches the client polling interval, so stale reads are
	// bounded by one poll cycle even when invalidation is missed.
	sessionCacheTTL = 5 * time.Second

	// Window within which a repeated scan request id returns the stored
	// result instead of counting again.
	scanDedupTTL = 30 * time.Second

	reportURLExpiry = 24 * time.Hour
)

// Scan result messages shown to the operator.
const (
	msgUnknownBarcode = "product not found in this shipment"
	msgItemComplete   = "item already fully received"
)

// ValidationService is the session lifecycle manager and scan processor:
// it creates or resumes sessions, applies scans, derives progress, and
// finalizes sessions into their terminal outcome.
type ValidationService interface {
	Start(ctx context.Context, movementID uuid.UUID) (*models.ValidationSession, error)
	Get(ctx context.Context, movementID, sessionID uuid.UUID) (*models.ValidationSession, *models.ValidationProgress, error)
	ExistingValidation(ctx context.Context, movementID uuid.UUID) (*models.ValidationSession, error)
	Scan(ctx context.Context, movementID, sessionID uuid.UUID, barcode, requestID string) (*models.ValidationScanResult, error)
	Complete(ctx context.Context, movementID, sessionID uuid.UUID) (*models.ValidationSession, []*models.ValidationDiscrepancy, error)
	ReportURL(ctx context.Context, movementID, sessionID uuid.UUID) (string, error)
	ScanHistory(ctx context.Context, movementID, sessionID uuid.UUID, limit, offset int) ([]*models.ScanEvent, error)
}

type validationService struct {
	manifestSvc    ManifestService
	validationRepo repositories.ValidationRepository
	scanEventRepo  repositories.ScanEventRepository
	cacheService   caching.CacheService
	minioSvc       MinioService
	reportBucket   string
}

func NewValidationService(
	manifestSvc ManifestService,
	validationRepo repositories.ValidationRepository,
	scanEventRepo repositories.ScanEventRepository,
	cacheService caching.CacheService,
	minioSvc MinioService,
	reportBucket string,
) ValidationService {
	return &validationService{
		manifestSvc:    manifestSvc,
		validationRepo: validationRepo,
		scanEventRepo:  scanEventRepo,
		cacheService:   cacheService,
		minioSvc:       minioSvc,
		reportBucket:   reportBucket,
	}
}

// Start creates a validation session for the movement, or resumes the
// existing IN_PROGRESS one unchanged. Resuming instead of failing means a
// client that lost its session reference or retried a start continues the
// same reconciliation rather than double-counting scan history.
func (s *validationService) Start(ctx context.Context, movementID uuid.UUID) (*models.ValidationSession, error) {
	existing, err := s.validationRepo.GetActiveByMovement(ctx, movementID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	lines, err := s.manifestSvc.Resolve(ctx, movementID)
	if err != nil {
		return nil, err
	}

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
			ScannedQuantity:  0,
			Status:           models.ItemStatusPending,
			Position:         line.Position,
		})
	}

	if err := s.validationRepo.CreateSession(ctx, session); err != nil {
		// Lost the creation race: another device opened the session first.
		// Resume theirs, same as the non-racing path.
		if errors.Is(err, common.ErrConflict) {
			return s.validationRepo.GetActiveByMovement(ctx, movementID)
		}
		return nil, err
	}

	return session, nil
}

func (s *validationService) Get(ctx context.Context, movementID, sessionID uuid.UUID) (*models.ValidationSession, *models.ValidationProgress, error) {
	if cached, err := s.cacheService.GetSession(ctx, sessionID); cached != nil {
		if cached.MovementID != movementID {
			return nil, nil, fmt.Errorf("validation session %s does not belong to movement %s: %w", sessionID, movementID, common.ErrNotFound)
		}
		return cached, cached.Progress(), nil
	} else if err != nil {
		log.Printf("Cache error for session %s: %v", sessionID.String(), err)
	}

	session, err := s.validationRepo.GetSession(ctx, movementID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if cacheErr := s.cacheService.SetSession(ctx, session, sessionCacheTTL); cacheErr != nil {
		log.Printf("Failed to cache session %s: %v", sessionID.String(), cacheErr)
	}

	return session, session.Progress(), nil
}

// ExistingValidation returns the movement's IN_PROGRESS session, or nil
// when there is none. Used by clients recovering a session id after a
// restart; it always resolves to the same session Start would resume.
func (s *validationService) ExistingValidation(ctx context.Context, movementID uuid.UUID) (*models.ValidationSession, error) {
	session, err := s.validationRepo.GetActiveByMovement(ctx, movementID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// Scan resolves the barcode against the session's manifest snapshot and
// counts one received unit. Rejections (unknown barcode, item already
// complete) come back as unsuccessful results, never as errors, so the
// operator can keep scanning.
func (s *validationService) Scan(ctx context.Context, movementID, sessionID uuid.UUID, barcode, requestID string) (*models.ValidationScanResult, error) {
	if requestID != "" {
		if prior, err := s.cacheService.GetScanResult(ctx, sessionID, requestID); prior != nil {
			return prior, nil
		} else if err != nil {
			log.Printf("Scan dedup lookup failed for session %s: %v", sessionID.String(), err)
		}
	}

	item, outcome, err := s.validationRepo.ApplyScan(ctx, movementID, sessionID, barcode)
	if err != nil {
		return nil, err
	}

	var result *models.ValidationScanResult
	switch outcome {
	case repositories.ScanApplied:
		result = &models.ValidationScanResult{
			Success: true,
			Message: fmt.Sprintf("Scanned %s (%d/%d)", item.ProductName, item.ScannedQuantity, item.ExpectedQuantity),
			Item:    item,
		}
	case repositories.ScanUnknownBarcode:
		result = &models.ValidationScanResult{Success: false, Message: msgUnknownBarcode}
	case repositories.ScanItemComplete:
		result = &models.ValidationScanResult{Success: false, Message: msgItemComplete}
	default:
		return nil, fmt.Errorf("unexpected scan outcome %q", outcome)
	}

	s.recordScanEvent(ctx, sessionID, barcode, requestID, result)

	if result.Success {
		if cacheErr := s.cacheService.DeleteSession(ctx, sessionID); cacheErr != nil {
			log.Printf("Failed to invalidate cache for session %s: %v", sessionID.String(), cacheErr)
		}
	}

	if requestID != "" {
		if cacheErr := s.cacheService.SetScanResult(ctx, sessionID, requestID, result, scanDedupTTL); cacheErr != nil {
			log.Printf("Failed to store scan dedup token for session %s: %v", sessionID.String(), cacheErr)
		}
	}

	return result, nil
}

// Complete finalizes the session: COMPLETED when every item reached its
// expected quantity, COMPLETED_WITH_DISCREPANCY otherwise. The session is
// immutable afterwards.
func (s *validationService) Complete(ctx context.Context, movementID, sessionID uuid.UUID) (*models.ValidationSession, []*models.ValidationDiscrepancy, error) {
	session, err := s.validationRepo.FinalizeSession(ctx, movementID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	discrepancies := session.Discrepancies()

	if cacheErr := s.cacheService.DeleteSession(ctx, sessionID); cacheErr != nil {
		log.Printf("Failed to invalidate cache for session %s: %v", sessionID.String(), cacheErr)
	}

	// Archival is best effort: the finalized outcome is already durable in
	// the store, a missing report never rolls it back.
	if err := s.archiveReport(ctx, session, discrepancies); err != nil {
		log.Printf("Failed to archive reconciliation report for session %s: %v", sessionID.String(), err)
	}

	return session, discrepancies, nil
}

func (s *validationService) ReportURL(ctx context.Context, movementID, sessionID uuid.UUID) (string, error) {
	session, err := s.validationRepo.GetSession(ctx, movementID, sessionID)
	if err != nil {
		return "", err
	}
	if !session.Terminal() {
		return "", fmt.Errorf("validation session %s has no report before finalization: %w", sessionID, common.ErrInvalidState)
	}
	return s.minioSvc.GetPresignedURL(s.reportBucket, reportObjectName(session), reportURLExpiry)
}

func (s *validationService) ScanHistory(ctx context.Context, movementID, sessionID uuid.UUID, limit, offset int) ([]*models.ScanEvent, error) {
	// Resolve the session first so a mismatched movement id surfaces as
	// NotFound instead of an empty history.
	if _, err := s.validationRepo.GetSession(ctx, movementID, sessionID); err != nil {
		return nil, err
	}
	return s.scanEventRepo.ListBySession(ctx, sessionID, limit, offset)
}

func (s *validationService) recordScanEvent(ctx context.Context, sessionID uuid.UUID, barcode, requestID string, result *models.ValidationScanResult) {
	event := &models.ScanEvent{
		SessionID: sessionID,
		Barcode:   barcode,
		Accepted:  result.Success,
		Message:   result.Message,
	}
	if result.Item != nil {
		event.ItemID = &result.Item.ID
	}
	if requestID != "" {
		event.RequestID = &requestID
	}
	if err := s.scanEventRepo.Create(ctx, event); err != nil {
		log.Printf("Failed to record scan event for session %s: %v", sessionID.String(), err)
	}
}

// reconciliationReport is the archived shape of a finalized session.
type reconciliationReport struct {
	Session       *models.ValidationSession       `json:"session"`
	Progress      *models.ValidationProgress      `json:"progress"`
	Discrepancies []*models.ValidationDiscrepancy `json:"discrepancies"`
	GeneratedAt   time.Time                       `json:"generated_at"`
}

func (s *validationService) archiveReport(ctx context.Context, session *models.ValidationSession, discrepancies []*models.ValidationDiscrepancy) error {
	report := reconciliationReport{
		Session:       session,
		Progress:      session.Progress(),
		Discrepancies: discrepancies,
		GeneratedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := s.minioSvc.EnsureBucketExists(ctx, s.reportBucket); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return s.minioSvc.UploadReport(ctx, s.reportBucket, reportObjectName(session), data)
}

func reportObjectName(session *models.ValidationSession) string {
	return fmt.Sprintf("%s/%s.json", session.MovementID.String(), session.ID.String())
}
