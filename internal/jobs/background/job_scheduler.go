package background

import (
	"context"
	"log"
	"sync"
	"time"

	"stockrecon/internal/jobs"
	"stockrecon/internal/repositories"

	"github.com/go-co-op/gocron/v2"
)

const scanEventRetention = 90 * 24 * time.Hour

// JobScheduler manages the engine's background jobs.
type JobScheduler struct {
	scheduler     gocron.Scheduler
	staleAlerts   *jobs.StaleSessionAlertService
	scanEventRepo repositories.ScanEventRepository
	staleMaxAge   time.Duration
	jobsByName    map[string]gocron.Job
	mu            sync.RWMutex
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(staleAlerts *jobs.StaleSessionAlertService, scanEventRepo repositories.ScanEventRepository, staleMaxAge time.Duration) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:     scheduler,
		staleAlerts:   staleAlerts,
		scanEventRepo: scanEventRepo,
		staleMaxAge:   staleMaxAge,
		jobsByName:    make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Stale session alerts - every hour
	staleJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.checkStaleSessions, context.Background()),
		gocron.WithName("stale-session-alerts"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create stale session job: %v", err)
	} else {
		js.addJob("stale-sessions", staleJob)
	}

	// Scan event retention sweep - daily
	retentionJob, err := js.scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(js.pruneScanEvents, context.Background()),
		gocron.WithName("scan-event-retention"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create scan event retention job: %v", err)
	} else {
		js.addJob("scan-event-retention", retentionJob)
	}
}

func (js *JobScheduler) addJob(name string, job gocron.Job) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.jobsByName[name] = job
}

func (js *JobScheduler) checkStaleSessions(ctx context.Context) {
	alerts, err := js.staleAlerts.CheckStale(ctx, js.staleMaxAge)
	if err != nil {
		log.Printf("Stale session check failed: %v", err)
		return
	}
	js.staleAlerts.LogStaleAlerts(ctx, alerts)
}

func (js *JobScheduler) pruneScanEvents(ctx context.Context) {
	cutoff := time.Now().Add(-scanEventRetention)
	deleted, err := js.scanEventRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Scan event retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Scan event retention sweep removed %d events older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
