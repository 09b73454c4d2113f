// Package session keeps the live seat map engines, one per buyer checkout.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/observability"
	"github.com/robertarktes/seatcheckout/internal/pricing"
	"github.com/robertarktes/seatcheckout/internal/seatmap"
)

// BookerFactory binds a seat booker to the buyer's credential and event.
type BookerFactory func(token string, eventID int64) seatmap.Booker

type Options struct {
	IdleTTL  time.Duration
	MaxSeats int
	Rates    seatmap.RateSource
	Surface  pricing.Surface
	Bookers  BookerFactory
}

type Session struct {
	ID        uuid.UUID
	UserID    string
	EventID   int64
	CreatedAt time.Time
	Engine    *seatmap.Engine

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	opts     Options
	logger   observability.Logger
	now      func() time.Time
}

func NewManager(opts Options, logger observability.Logger) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Open starts a seat map engine for userID over eventID. The token is handed
// to the booker so the commit is made with the buyer's own credential.
func (m *Manager) Open(userID, token string, eventID int64, layout domain.SeatLayout, userPoints int64) *Session {
	engine := seatmap.NewEngine(layout, seatmap.Options{
		MaxSeats:   m.opts.MaxSeats,
		UserPoints: userPoints,
		Rates:      m.opts.Rates,
		Booker:     m.opts.Bookers(token, eventID),
		Surface:    m.opts.Surface,
	})

	now := m.now()
	s := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: now,
		Engine:    engine,
		lastSeen:  now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	observability.ActiveSessions.Set(float64(n))
	return s
}

// Get returns the session only to the user who opened it.
func (m *Manager) Get(id uuid.UUID, userID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.UserID != userID {
		return nil, errors.Wrapf(domain.ErrNotFound, "session %s", id)
	}
	s.touch(m.now())
	return s, nil
}

func (m *Manager) Close(id uuid.UUID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return errors.Wrapf(domain.ErrNotFound, "session %s", id)
	}
	delete(m.sessions, id)
	observability.ActiveSessions.Set(float64(len(m.sessions)))
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a commit
// in flight are kept until it resolves.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) <= m.opts.IdleTTL || s.Engine.IsSubmitting() {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	observability.ActiveSessions.Set(float64(len(m.sessions)))
	return removed
}

func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				m.logger.WithField("component", "session").Debug("swept idle sessions: ", n)
			}
		}
	}
}

// ApplySeatStatus pushes a seat status change into every open session for
// the event and reports how many sessions knew the seat.
func (m *Manager) ApplySeatStatus(eventID, seatID int64, status domain.SeatStatus) int {
	m.mu.RLock()
	var targets []*Session
	for _, s := range m.sessions {
		if s.EventID == eventID {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	applied := 0
	for _, s := range targets {
		if s.Engine.ApplySeatStatus(seatID, status) {
			applied++
		}
	}
	return applied
}
