// Package session keeps who is signed in and their cart across requests.
// Sessions are written back to the store after every cart change; a bounded
// set of recently used ones stays live in memory.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/storefront/internal/cart"
	"github.com/ahinestrog/storefront/internal/domain"
)

const (
	saveTimeout     = 5 * time.Second
	DefaultCapacity = 10000
)

type Session struct {
	ID   string
	Cart *cart.Cart

	// saveMu orders writes to the store; each write reads the cart anew.
	saveMu sync.Mutex

	mu     sync.Mutex
	userID domain.ID
	stored bool
	closed bool
}

// User returns the signed-in buyer, empty when anonymous.
func (s *Session) User() domain.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Stored reports whether the session has a record in the store. Anonymous
// sessions that never held a cart line stay unstored.
func (s *Session) Stored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored && !s.closed
}

type Manager struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
	live  *lru.Cache[string, *Session]
}

type Option func(*Manager)

// WithCapacity bounds how many sessions stay live in memory. Evicted
// sessions are read back from the store on their next request.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		if n <= 0 {
			return
		}
		if live, err := lru.New[string, *Session](n); err == nil {
			m.live = live
		}
	}
}

func NewManager(store Store, log zerolog.Logger, opts ...Option) *Manager {
	live, _ := lru.New[string, *Session](DefaultCapacity)
	m := &Manager{
		store: store,
		log:   log,
		now:   time.Now,
		live:  live,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load returns the live session for id, restoring it from the store on first
// use. An unknown or empty id starts a new empty session that only becomes
// live once it is stored.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	if s, ok := m.Get(id); ok {
		return s, nil
	}

	rec := Record{ID: id}
	found := false
	if id == "" {
		rec.ID = uuid.NewString()
	} else {
		r, err := m.store.Get(ctx, id)
		switch {
		case err == nil:
			rec, found = r, true
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}

	s := &Session{ID: rec.ID, Cart: cart.New(rec.Lines...), userID: rec.UserID, stored: found}
	s.Cart.OnChange(func([]domain.CartLine) { m.persist(s) })
	if !found {
		return s, nil
	}
	if prev, ok, _ := m.live.PeekOrAdd(s.ID, s); ok {
		return prev, nil
	}
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	return m.live.Get(id)
}

// Len is the number of live sessions.
func (m *Manager) Len() int { return m.live.Len() }

// SetUser signs userID into s. An anonymous cart carries over; switching
// from one user to another starts from an empty cart.
func (m *Manager) SetUser(ctx context.Context, s *Session, userID domain.ID) error {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return nil
	}
	prev := s.userID
	s.userID = userID
	s.mu.Unlock()

	m.log.Info().Str("session", s.ID).Str("from", string(prev)).Str("to", string(userID)).Msg("session user changed")
	if prev != "" && s.Cart.Len() > 0 {
		// the Clear hook writes the new user along with the empty cart
		s.Cart.Clear()
		return nil
	}
	return m.Save(ctx, s)
}

// Save writes s to the store. Cart changes call it on their own.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.save(ctx, s)
}

// Logout empties the cart and forgets the session.
func (m *Manager) Logout(ctx context.Context, s *Session) error {
	s.mu.Lock()
	s.closed = true
	s.userID = ""
	s.mu.Unlock()

	s.Cart.Clear()

	// wait out a write already in flight so it cannot land after the delete
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	m.live.Remove(s.ID)
	return m.store.Delete(ctx, s.ID)
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	lines := s.Cart.Lines()
	s.mu.Lock()
	if s.closed || (!s.stored && s.userID == "" && len(lines) == 0) {
		s.mu.Unlock()
		return nil
	}
	rec := Record{ID: s.ID, UserID: s.userID, Lines: lines, UpdatedAt: m.now()}
	s.mu.Unlock()

	if err := m.store.Put(ctx, rec); err != nil {
		return err
	}
	s.mu.Lock()
	s.stored = true
	s.mu.Unlock()
	m.live.PeekOrAdd(s.ID, s)
	return nil
}

func (m *Manager) persist(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := m.save(ctx, s); err != nil {
		m.log.Error().Err(err).Str("session", s.ID).Msg("save session")
	}
}
