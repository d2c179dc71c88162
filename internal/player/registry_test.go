package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	records []Record
	saves   int
}

func (m *memStore) Load(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...), nil
}

func (m *memStore) Save(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]Record(nil), records...)
	m.saves++
	return nil
}

func newTestRegistry(t *testing.T, seed ...Record) (*Registry, *memStore) {
	t.Helper()
	store := &memStore{records: seed}
	r, err := NewRegistry(context.Background(), store)
	require.NoError(t, err)
	return r, store
}

func TestValidFingerprint(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"AA:BB:CC:DD:EE:FF", true},
		{"aa:bb:cc:dd:ee:ff", true},
		{"00-11-22-33-44-55", true},
		{"00:11-22:33:44:55", false},
		{"GG:BB:CC:DD:EE:FF", false},
		{"AA:BB:CC:DD:EE:F", false},
		{"AA.BB.CC.DD.EE.FF", false},
		{"", false},
		{"AABBCCDDEEFF12345", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidFingerprint(tt.in))
		})
	}
}

func TestRegisterOrResolveIsIdempotent(t *testing.T) {
	r, store := newTestRegistry(t)

	id, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:01", "cookie-1")
	require.NoError(t, err)
	assert.Regexp(t, `^PLAYER_\d{6}$`, id)

	again, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:01", "cookie-1")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, r.Count(), "no second record minted")

	// The cookie alone resolves the same identity.
	viaCookie, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:02", "cookie-1")
	require.NoError(t, err)
	assert.Equal(t, id, viaCookie)

	_, err = r.RegisterOrResolve("bogus", "")
	assert.Error(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.records, 1)
	assert.Equal(t, id, store.records[0].PlayerID)
}

func TestLoginLogoutLifecycle(t *testing.T) {
	r, _ := newTestRegistry(t)
	id, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:03", "")
	require.NoError(t, err)

	assert.Error(t, r.Login("PLAYER_999999"))

	require.NoError(t, r.Login(id))
	assert.True(t, r.IsOnline(id))
	assert.Equal(t, []string{id}, r.Online())

	rec, ok := r.Get(id)
	require.True(t, ok)
	assert.True(t, rec.Online)
	assert.Equal(t, 1, rec.GamesPlayed)
	assert.WithinDuration(t, time.Now(), rec.LastLogin, time.Minute)

	r.Logout(id)
	assert.False(t, r.IsOnline(id))
	assert.Empty(t, r.Online())
	rec, _ = r.Get(id)
	assert.False(t, rec.Online)
}

func TestStaleOnlineFlagClearedOnLoad(t *testing.T) {
	r, _ := newTestRegistry(t, Record{
		PlayerID:    "PLAYER_111111",
		Fingerprint: "AA:BB:CC:DD:EE:04",
		Online:      true,
	})

	rec, ok := r.Get("PLAYER_111111")
	require.True(t, ok)
	assert.False(t, rec.Online)
	assert.Empty(t, r.Online())
	assert.True(t, r.IsValid("PLAYER_111111"))
}

func TestUpdateReindexesSecondaryKeys(t *testing.T) {
	r, _ := newTestRegistry(t)
	id, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:05", "old-cookie")
	require.NoError(t, err)

	rec, _ := r.Get(id)
	rec.Cookie = "new-cookie"
	rec.TotalCoins = 42
	require.True(t, r.Update(id, rec))

	viaNew, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:06", "new-cookie")
	require.NoError(t, err)
	assert.Equal(t, id, viaNew)

	got, _ := r.Get(id)
	assert.Equal(t, 42, got.TotalCoins)

	assert.False(t, r.Update("PLAYER_000000", rec))
}

func TestCoinAndWinCounters(t *testing.T) {
	r, _ := newTestRegistry(t)
	id, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:07", "")
	require.NoError(t, err)

	assert.True(t, r.AddCoins(id, 25))
	assert.True(t, r.AddCoins(id, 10))
	assert.False(t, r.AddCoins("ghost", 5))
	r.RecordWin(id)

	rec, _ := r.Get(id)
	assert.Equal(t, 35, rec.TotalCoins)
	assert.Equal(t, 1, rec.GamesWon)
}

func TestPersistWritesSortedSnapshot(t *testing.T) {
	r, store := newTestRegistry(t)
	_, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:08", "")
	require.NoError(t, err)
	_, err = r.RegisterOrResolve("AA:BB:CC:DD:EE:09", "")
	require.NoError(t, err)

	require.NoError(t, r.Persist(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.records, 2)
	assert.Less(t, store.records[0].PlayerID, store.records[1].PlayerID)
}

func TestSurrogateFingerprint(t *testing.T) {
	fp := SurrogateFingerprint(7, "Alice")
	assert.True(t, ValidFingerprint(fp), "surrogate %q must be canonical", fp)

	assert.Equal(t, fp, SurrogateFingerprint(7, "Alice"), "stable for the same inputs")
	assert.NotEqual(t, fp, SurrogateFingerprint(8, "Alice"))
	assert.NotEqual(t, fp, SurrogateFingerprint(7, "Bob"))
}

// gatedStore stalls Save on demand so tests can hold a persist in
// flight while probing the registry.
type gatedStore struct {
	mu       sync.Mutex
	blocking bool
	entered  chan struct{}
	release  chan struct{}
}

func (g *gatedStore) Load(context.Context) ([]Record, error) { return nil, nil }

func (g *gatedStore) Save(context.Context, []Record) error {
	g.mu.Lock()
	blocking := g.blocking
	g.mu.Unlock()
	if blocking {
		g.entered <- struct{}{}
		<-g.release
	}
	return nil
}

func (g *gatedStore) setBlocking(v bool) {
	g.mu.Lock()
	g.blocking = v
	g.mu.Unlock()
}

func TestReadsProceedWhilePersistInFlight(t *testing.T) {
	store := &gatedStore{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r, err := NewRegistry(context.Background(), store)
	require.NoError(t, err)

	id, err := r.RegisterOrResolve("AA:BB:CC:DD:EE:0F", "")
	require.NoError(t, err)
	require.NoError(t, r.Login(id))

	store.setBlocking(true)
	go r.Logout(id)
	<-store.entered

	// The store write is stalled; lookups must not queue behind it.
	done := make(chan bool, 1)
	go func() {
		_, ok := r.Get(id)
		done <- ok
	}()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("read blocked behind persistence I/O")
	}

	close(store.release)
}
