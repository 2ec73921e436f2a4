package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/storefront/internal/domain"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db)
}

var (
	dune  = domain.Book{ID: "b1", Title: "Dune", Price: 50000, Stock: 3}
	atlas = domain.Book{ID: "b2", Title: "Atlas", Price: 30000, Stock: 9}
)

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	rec := Record{ID: "s1", UserID: "u1", Lines: []domain.CartLine{
		{BookID: "b2", Title: "Atlas", UnitPrice: 30000, Quantity: 1},
		{BookID: "b1", Title: "Dune", UnitPrice: 50000, Quantity: 2, Image: "dune.jpg"},
	}}
	require.NoError(t, st.Put(ctx, rec))

	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("u1"), got.UserID)
	assert.Equal(t, rec.Lines, got.Lines, "line order kept")
	assert.False(t, got.UpdatedAt.IsZero())

	rec.Lines = rec.Lines[:1]
	require.NoError(t, st.Put(ctx, rec))
	got, err = st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)

	require.NoError(t, st.Delete(ctx, "s1"))
	_, err = st.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadStartsEmptySession(t *testing.T) {
	m := NewManager(newTestStore(t), zerolog.Nop())

	s, err := m.Load(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.User())
	assert.Zero(t, s.Cart.Len())

	assert.False(t, s.Stored())
	assert.Zero(t, m.Len(), "nothing to keep yet")

	require.NoError(t, s.Cart.Add(dune, 1))
	assert.True(t, s.Stored())
	same, err := m.Load(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Same(t, s, same)
}

func TestBrowsingDoesNotGrowLiveSet(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, zerolog.Nop())

	var last *Session
	for i := 0; i < 10000; i++ {
		s, err := m.Load(ctx, "")
		require.NoError(t, err)
		last = s
	}
	assert.Zero(t, m.Len())
	_, err := st.Get(ctx, last.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// clearing an empty anonymous cart writes nothing either
	last.Cart.Clear()
	assert.Zero(t, m.Len())
}

func TestLiveSetIsBounded(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(t), zerolog.Nop(), WithCapacity(2))

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := m.Load(ctx, "")
		require.NoError(t, err)
		require.NoError(t, s.Cart.Add(dune, i+1))
		ids = append(ids, s.ID)
	}
	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(ids[0])
	assert.False(t, ok, "oldest session evicted")

	back, err := m.Load(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, back.Stored())
	require.Len(t, back.Cart.Lines(), 1)
	assert.Equal(t, 1, back.Cart.Lines()[0].Quantity)
}

// gatedStore holds the first Put until release is closed.
type gatedStore struct {
	Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}

	mu   sync.Mutex
	puts []Record
}

func (g *gatedStore) Put(ctx context.Context, rec Record) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	g.puts = append(g.puts, rec)
	g.mu.Unlock()
	return g.Store.Put(ctx, rec)
}

func TestSlowSaveDoesNotOverwriteNewerCart(t *testing.T) {
	ctx := context.Background()
	st := &gatedStore{Store: newTestStore(t), entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(st, zerolog.Nop())

	s, err := m.Load(ctx, "s1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Cart.Add(dune, 1))
	}()
	<-st.entered

	go func() {
		defer wg.Done()
		assert.NoError(t, s.Cart.Add(atlas, 1))
	}()
	require.Eventually(t, func() bool { return s.Cart.Len() == 2 }, time.Second, time.Millisecond)

	close(st.release)
	wg.Wait()

	st.mu.Lock()
	last := st.puts[len(st.puts)-1]
	st.mu.Unlock()
	assert.Len(t, last.Lines, 2)

	rec, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, rec.Lines, 2, "store holds the newest cart")
}

func TestCartChangesArePersisted(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, zerolog.Nop())

	s, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, m.SetUser(ctx, s, "u1"))
	require.NoError(t, s.Cart.Add(dune, 2))
	require.NoError(t, s.Cart.Add(atlas, 1))

	// a fresh manager over the same store sees the saved cart
	restored, err := NewManager(st, zerolog.Nop()).Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("u1"), restored.User())
	assert.Equal(t, s.Cart.Lines(), restored.Cart.Lines())
	assert.Equal(t, domain.Money(130000), restored.Cart.Total())
}

func TestSetUserChangeClearsCart(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, zerolog.Nop())

	s, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, m.SetUser(ctx, s, "u1"))
	require.NoError(t, s.Cart.Add(dune, 1))

	require.NoError(t, m.SetUser(ctx, s, "u1"))
	assert.Equal(t, 1, s.Cart.Len(), "same user keeps the cart")

	require.NoError(t, m.SetUser(ctx, s, "u2"))
	assert.Zero(t, s.Cart.Len())

	rec, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("u2"), rec.UserID)
	assert.Empty(t, rec.Lines)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, zerolog.Nop())

	s, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, m.SetUser(ctx, s, "u1"))
	require.NoError(t, s.Cart.Add(dune, 1))

	require.NoError(t, m.Logout(ctx, s))
	assert.Zero(t, s.Cart.Len())
	assert.Empty(t, s.User())

	_, ok := m.Get("s1")
	assert.False(t, ok)
	_, err = st.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	// a late change on the old cart does not bring the session back
	require.NoError(t, s.Cart.Add(atlas, 1))
	_, err = st.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetUserKeepsAnonymousCart(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(t), zerolog.Nop())

	s, err := m.Load(ctx, "")
	require.NoError(t, err)
	require.NoError(t, s.Cart.Add(dune, 1))

	require.NoError(t, m.SetUser(ctx, s, "u1"))
	assert.Equal(t, 1, s.Cart.Len())
	assert.Equal(t, domain.ID("u1"), s.User())
}
