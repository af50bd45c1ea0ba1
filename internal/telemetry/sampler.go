// Package telemetry reports best-effort user engagement samples to the
// analytics backend. It lives outside the transactional checkout contract:
// every failure here is swallowed after logging and can never affect checkout
// state.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/domain"
)

const (
	defaultInterval = 30 * time.Second
	reportTimeout   = 5 * time.Second
)

// Reporter delivers a behavior sample to the analytics endpoint.
type Reporter interface {
	TrackUserBehavior(ctx context.Context, sample domain.BehaviorSample) error
}

// DeviceClass derives the device bucket from the reported viewport width.
func DeviceClass(viewportWidth int) string {
	switch {
	case viewportWidth <= 0:
		return "unknown"
	case viewportWidth < 768:
		return "mobile"
	case viewportWidth < 1024:
		return "tablet"
	default:
		return "desktop"
	}
}

// NewSessionID generates the per-browsing-session identifier reused by every
// sample in the session.
func NewSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), random)
}

// SamplerDeps wires the collaborators for a Sampler.
type SamplerDeps struct {
	Reporter  Reporter
	Logger    *zap.Logger
	Clock     func() time.Time
	Interval  time.Duration
	SessionID string
}

// Sampler accumulates engagement signals for one checkout session and reports
// one sample at start, one per interval, and one at Close.
type Sampler struct {
	reporter  Reporter
	logger    *zap.Logger
	now       func() time.Time
	interval  time.Duration
	sessionID string

	mu             sync.Mutex
	startedAt      time.Time
	lastActivity   time.Time
	maxScroll      int
	viewportWidth  int
	exitIntent     bool
	visibilityLost bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSampler constructs a sampler; Start must be called to begin reporting.
func NewSampler(deps SamplerDeps) (*Sampler, error) {
	if deps.Reporter == nil {
		return nil, fmt.Errorf("telemetry sampler: reporter is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	sessionID := strings.TrimSpace(deps.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID(clock())
	}
	now := clock()
	return &Sampler{
		reporter:     deps.Reporter,
		logger:       logger.With(zap.String("telemetry_session", sessionID)),
		now:          clock,
		interval:     interval,
		sessionID:    sessionID,
		startedAt:    now,
		lastActivity: now,
		done:         make(chan struct{}),
	}, nil
}

// SessionID returns the session identifier shared by all samples.
func (s *Sampler) SessionID() string { return s.sessionID }

// Start launches the reporting loop: one sample immediately, then one per interval.
func (s *Sampler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.report()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.report()
			case <-s.done:
				return
			}
		}
	}()
}

// Close sends a final sample and stops the loop. Safe to call more than once.
func (s *Sampler) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.report()
	})
}

// RecordActivity notes user activity along with the observed scroll depth and
// viewport width. Scroll depth only ever grows within a session.
func (s *Sampler) RecordActivity(scrollDepth, viewportWidth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
	if scrollDepth > s.maxScroll {
		s.maxScroll = scrollDepth
	}
	if viewportWidth > 0 {
		s.viewportWidth = viewportWidth
	}
}

// RecordExitIntent latches an exit-intent event for the next sample.
func (s *Sampler) RecordExitIntent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitIntent = true
}

// RecordVisibilityLoss latches a tab/page visibility loss for the next sample.
func (s *Sampler) RecordVisibilityLoss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibilityLost = true
}

func (s *Sampler) report() {
	sample := s.snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	if err := s.reporter.TrackUserBehavior(ctx, sample); err != nil {
		s.logger.Debug("behavior sample dropped", zap.Error(err))
	}
}

// snapshot builds the next sample and resets the discrete event latches.
func (s *Sampler) snapshot() domain.BehaviorSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sample := domain.BehaviorSample{
		SessionID:          s.sessionID,
		DeviceType:         DeviceClass(s.viewportWidth),
		ScrollDepth:        s.maxScroll,
		SessionDuration:    now.Sub(s.startedAt).Seconds(),
		TimeOnPage:         now.Sub(s.lastActivity).Seconds(),
		ExitIntentDetected: s.exitIntent,
		VisibilityLost:     s.visibilityLost,
		RecordedAt:         now.UTC(),
	}
	s.exitIntent = false
	s.visibilityLost = false
	return sample
}
