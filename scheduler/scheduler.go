// Package scheduler refreshes every configured topic on a daily schedule for
// serve mode, publishing the results to the data store, and warns when the data
// goes stale.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/giygas/gho-indicators/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// ErrNoTopicLoaded is returned when a refresh produced no result at all
var ErrNoTopicLoaded = errors.New("no topic could be loaded")

// DefaultTimes are the daily refresh times
const DefaultTimes = "06:00;18:00"

// Scheduler runs topic refreshes using injected dependencies
type Scheduler struct {
	dataStore interfaces.DataStore
	runner    interfaces.TopicRunner
	topics    []entities.Topic
	times     string
	scheduler *gocron.Scheduler
	job       atomic.Pointer[gocron.Job]

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	once   sync.Once
}

// NewScheduler creates a new scheduler instance with injected dependencies.
// times uses the gocron At() format, e.g. "06:00;18:00".
func NewScheduler(dataStore interfaces.DataStore, runner interfaces.TopicRunner, topics []entities.Topic, times string) *Scheduler {
	if times == "" {
		times = DefaultTimes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		dataStore: dataStore,
		runner:    runner,
		topics:    topics,
		times:     times,
		scheduler: gocron.NewScheduler(time.Local),
		ctx:       ctx,
		cancel:    cancel,
		stop:      make(chan struct{}),
	}
}

// Start loads every topic once, then schedules the refreshes and the staleness
// monitor. It fails only when the initial load produced no topic at all.
func (s *Scheduler) Start() error {
	if err := s.refresh(); err != nil {
		if errors.Is(err, ErrNoTopicLoaded) {
			logging.Error("Failed to perform initial data load", "error", err)
			return fmt.Errorf("initial data load failed: %w", err)
		}
		logging.Warn("Initial data load was partial", "error", err)
	}
	if s.ctx.Err() != nil {
		return nil
	}

	job, err := s.scheduler.Every(1).Days().At(s.times).Do(func() {
		if err := s.refresh(); err != nil {
			logging.Error("Failed to refresh topics", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule updates", "error", err)
		return fmt.Errorf("failed to schedule updates: %w", err)
	}
	s.job.Store(job)

	s.scheduler.StartAsync()
	logging.Info("Refresh scheduled", "times", s.times, "next_run", s.NextRun())

	s.startHealthMonitoring(time.Hour)

	return nil
}

// Stop stops the scheduler and cancels a refresh in flight
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.cancel()
		close(s.stop)
		s.scheduler.Stop()
	})
}

// NextRun returns the next scheduled refresh, or the zero time before Start
func (s *Scheduler) NextRun() time.Time {
	job := s.job.Load()
	if job == nil {
		return time.Time{}
	}
	return job.NextRun()
}

// refresh runs every topic and publishes what succeeded. Topics that failed keep
// their previous result in the store.
func (s *Scheduler) refresh() error {
	// Prevent concurrent updates
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return nil
	}
	defer s.dataStore.EndUpdate()

	logging.Info("Starting topic refresh", "topics", len(s.topics), "at", time.Now().Format(time.RFC3339))
	start := time.Now()

	results, err := s.runner.RunTopics(s.ctx, s.topics)
	if len(results) > 0 {
		s.dataStore.UpdateResults(results)
	}

	logging.Info("Topic refresh completed",
		"duration", time.Since(start).String(),
		"succeeded", len(results),
		"failed", len(s.topics)-len(results),
	)

	if len(results) == 0 && len(s.topics) > 0 {
		if err == nil {
			return ErrNoTopicLoaded
		}
		return fmt.Errorf("%w: %w", ErrNoTopicLoaded, err)
	}
	return err
}

// startHealthMonitoring warns when the data has not been refreshed for over a day
func (s *Scheduler) startHealthMonitoring(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				lastUpdate := s.dataStore.GetLastUpdated()
				if time.Since(lastUpdate) > 25*time.Hour {
					logging.Warn("Data hasn't been updated in over 25 hours", "last_update", lastUpdate)
				}
			}
		}
	}()
}
