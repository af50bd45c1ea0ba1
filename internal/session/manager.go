// Package session tracks live checkout sessions, pairing each one with its
// state machine and telemetry sampler.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/checkout"
	"github.com/bookbharat/checkout-api/internal/statestore"
	"github.com/bookbharat/checkout-api/internal/telemetry"
)

// ManagerDeps wires the collaborators shared by every checkout session.
type ManagerDeps struct {
	Backend           checkout.Backend
	Cart              checkout.CartProvider
	RemoteTax         checkout.TaxCalculator
	FallbackTax       checkout.TaxCalculator
	Store             statestore.Store
	Reporter          telemetry.Reporter
	Logger            *zap.Logger
	Clock             func() time.Time
	TaxDebounce       time.Duration
	TelemetryInterval time.Duration
}

// Session is one live checkout attempt.
type Session struct {
	ID        string
	Machine   *checkout.Machine
	Sampler   *telemetry.Sampler
	CreatedAt time.Time
}

// Manager owns the registry of live sessions.
type Manager struct {
	deps ManagerDeps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager validates dependencies and returns an empty registry.
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.Backend == nil {
		return nil, errors.New("session manager: backend is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("session manager: cart provider is required")
	}
	if deps.RemoteTax == nil || deps.FallbackTax == nil {
		return nil, errors.New("session manager: tax calculators are required")
	}
	if deps.Reporter == nil {
		return nil, errors.New("session manager: telemetry reporter is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}, nil
}

// Create starts a fresh checkout session with a newly minted identifier.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	return m.start(ctx, ulid.Make().String())
}

// Resume returns the live session for the given id, or rebuilds one from
// persisted wizard state when the process no longer holds it in memory.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return nil, checkout.ErrSessionNotFound
	}
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()
	return m.start(ctx, id)
}

// Get returns the live session for the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, checkout.ErrSessionNotFound
	}
	return sess, nil
}

// Destroy tears the session down: the tax coordinator stops, the persisted
// wizard state is deleted, and the sampler sends its final sample.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[strings.TrimSpace(id)]
	if ok {
		delete(m.sessions, sess.ID)
	}
	m.mu.Unlock()
	if !ok {
		return checkout.ErrSessionNotFound
	}
	sess.Machine.Teardown(ctx)
	sess.Sampler.Close()
	return nil
}

// CloseAll quiets every live session on server shutdown. Persisted wizard
// state is kept so sessions resume after a restart; only Destroy deletes it.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.Machine.Stop()
		sess.Sampler.Close()
	}
}

func (m *Manager) start(ctx context.Context, id string) (*Session, error) {
	machine, err := checkout.NewMachine(ctx, checkout.MachineDeps{
		SessionID:   id,
		Backend:     m.deps.Backend,
		Cart:        m.deps.Cart,
		RemoteTax:   m.deps.RemoteTax,
		FallbackTax: m.deps.FallbackTax,
		Store:       m.deps.Store,
		Logger:      m.deps.Logger,
		Clock:       m.deps.Clock,
		TaxDebounce: m.deps.TaxDebounce,
	})
	if err != nil {
		return nil, err
	}
	sampler, err := telemetry.NewSampler(telemetry.SamplerDeps{
		Reporter: m.deps.Reporter,
		Logger:   m.deps.Logger,
		Clock:    m.deps.Clock,
		Interval: m.deps.TelemetryInterval,
	})
	if err != nil {
		machine.Stop()
		return nil, err
	}

	sess := &Session{
		ID:        id,
		Machine:   machine,
		Sampler:   sampler,
		CreatedAt: m.deps.Clock().UTC(),
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		// Another request resumed the same session concurrently; keep the
		// first machine and quiet this one. Stop, not Teardown: the survivor
		// still owns the persisted snapshot under this id.
		m.mu.Unlock()
		machine.Stop()
		return existing, nil
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	sampler.Start()
	return sess, nil
}
