package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"stockrecon/internal/models"
)

// CacheService caches session snapshots for the polling read path and holds
// scan deduplication tokens. Cache failures are never fatal: callers fall
// through to the store and log.
type CacheService interface {
	// Session snapshot caching
	GetSession(ctx context.Context, sessionID uuid.UUID) (*models.ValidationSession, error)
	SetSession(ctx context.Context, session *models.ValidationSession, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error

	// Scan idempotency: a client-supplied request id maps to the result of
	// the scan that carried it first, for a bounded window.
	GetScanResult(ctx context.Context, sessionID uuid.UUID, requestID string) (*models.ValidationScanResult, error)
	SetScanResult(ctx context.Context, sessionID uuid.UUID, requestID string, result *models.ValidationScanResult, ttl time.Duration) error

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port URLs as well as bare host:port
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

// Invalidation writes a tombstone instead of deleting the key. A reader
// that loaded the session from the database before a scan committed could
// otherwise repopulate the key with a pre-scan snapshot right after the
// scan's invalidation; the tombstone blocks SetSession (set-if-absent) for
// longer than any such in-flight read takes to land.
const (
	sessionTombstone    = "__invalidated__"
	sessionTombstoneTTL = 2 * time.Second
)

func sessionKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("stockrecon:session:%s", sessionID.String())
}

func scanResultKey(sessionID uuid.UUID, requestID string) string {
	return fmt.Sprintf("stockrecon:scan:dedup:%s:%s", sessionID.String(), requestID)
}

func (r *redisCacheService) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.ValidationSession, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}
	if string(data) == sessionTombstone {
		return nil, nil // invalidated, read from the store
	}

	var session models.ValidationSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *redisCacheService) SetSession(ctx context.Context, session *models.ValidationSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	// Set-if-absent: a live tombstone wins over repopulation.
	return r.client.SetNX(ctx, sessionKey(session.ID), data, ttl).Err()
}

func (r *redisCacheService) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	return r.client.Set(ctx, sessionKey(sessionID), sessionTombstone, sessionTombstoneTTL).Err()
}

func (r *redisCacheService) GetScanResult(ctx context.Context, sessionID uuid.UUID, requestID string) (*models.ValidationScanResult, error) {
	data, err := r.client.Get(ctx, scanResultKey(sessionID, requestID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // no previous scan carried this request id
		}
		return nil, err
	}

	var result models.ValidationScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *redisCacheService) SetScanResult(ctx context.Context, sessionID uuid.UUID, requestID string, result *models.ValidationScanResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, scanResultKey(sessionID, requestID), data, ttl).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
