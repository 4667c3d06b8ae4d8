// Package reminders runs the background pass that notifies users shortly
// before their confirmed appointments.
package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"salonbot/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// CandidateStore provides the confirmed, not yet reminded appointments.
type CandidateStore interface {
	ListReminderCandidates(ctx context.Context) ([]model.ReminderCandidate, error)
	MarkReminded(ctx context.Context, appointmentID int64) error
}

// Notifier delivers a reminder to the appointment owner.
type Notifier interface {
	SendReminder(ctx context.Context, c model.ReminderCandidate) error
}

// Config holds configuration for the reminder service.
type Config struct {
	// CheckInterval is how often a pass runs. Default: 1 minute.
	CheckInterval time.Duration
	// Window is how long before the start a reminder may fire. Default: 2 hours.
	Window time.Duration
	// PassTimeout bounds a single pass. Default: 5 minutes.
	PassTimeout time.Duration
	// RatePerSecond and Burst throttle deliveries. Defaults: 20 and 30.
	RatePerSecond float64
	Burst         int
	Location      *time.Location
	Now           func() time.Time
}

// PassResult summarizes one scheduler pass.
type PassResult struct {
	Candidates int
	Sent       int
	Failed     int
	Skipped    int
}

// Service handles sending appointment reminders.
type Service struct {
	config   Config
	store    CandidateStore
	notifier Notifier
	limiter  *rate.Limiter
	metrics  *Metrics
	logger   zerolog.Logger

	// passMu keeps the ticker and manual triggers from running passes in parallel.
	passMu  sync.Mutex
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a new reminder service. Metrics are registered with reg
// when it is not nil.
func NewService(cfg Config, store CandidateStore, notifier Notifier, reg prometheus.Registerer, logger *zerolog.Logger) *Service {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 2 * time.Hour
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 5 * time.Minute
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 30
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Service{
		config:   cfg,
		store:    store,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		metrics:  NewMetrics(reg),
		logger:   logger.With().Str("component", "reminders").Logger(),
	}
}

// Start begins the reminder loop. It stops when ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Dur("window", s.config.Window).
		Msg("Reminder service started")
}

// Stop gracefully stops the reminder service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Reminder service stopped")
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately on start
	s.CheckNow(ctx)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

// CheckNow runs one pass and logs the outcome. A failing or panicking pass
// never stops the loop.
func (s *Service) CheckNow(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Reminder pass panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.PassTimeout)
	defer cancel()

	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Reminder pass failed")
		return
	}
	if res.Sent > 0 || res.Failed > 0 {
		s.logger.Info().
			Int("candidates", res.Candidates).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Msg("Reminder pass finished")
	}
}

// RunOnce performs a single pass over the reminder candidates.
func (s *Service) RunOnce(ctx context.Context) (PassResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	timer := prometheus.NewTimer(s.metrics.PassDuration)
	defer timer.ObserveDuration()

	var res PassResult
	candidates, err := s.store.ListReminderCandidates(ctx)
	if err != nil {
		return res, fmt.Errorf("list reminder candidates: %w", err)
	}
	res.Candidates = len(candidates)
	s.metrics.Candidates.Set(float64(len(candidates)))

	now := s.config.Now()
	for _, c := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		l := s.logger.With().Int64("appointment_id", c.ID).Int64("user_id", c.UserID).Logger()

		start, err := model.ParseDateTime(c.DateTime, s.config.Location)
		if err != nil {
			l.Warn().Err(err).Str("date_time", c.DateTime).Msg("Skipping appointment with unparseable date/time")
			res.Skipped++
			s.metrics.IncSent(StatusSkipped)
			continue
		}
		if !s.inWindow(start.Sub(now)) {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		if err := s.notifier.SendReminder(ctx, c); err != nil {
			l.Error().Err(err).Msg("Failed to send reminder")
			res.Failed++
			s.metrics.IncSent(StatusFailed)
			continue
		}
		res.Sent++
		s.metrics.IncSent(StatusSent)

		if err := s.store.MarkReminded(ctx, c.ID); err != nil {
			l.Error().Err(err).Msg("Failed to mark reminder as sent (notification was sent)")
			continue
		}
		l.Info().Str("date_time", c.DateTime).Msg("Reminder sent")
	}
	return res, nil
}

// inWindow reports whether remaining falls in (0, Window].
func (s *Service) inWindow(remaining time.Duration) bool {
	return remaining > 0 && remaining <= s.config.Window
}
