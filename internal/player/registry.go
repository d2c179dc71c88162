// Package player owns durable player identities: registration keyed
// by hardware fingerprint and session cookie, login state and the
// lifetime counters that survive across matches.
package player

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Record is one durable player identity.
type Record struct {
	PlayerID    string
	Fingerprint string
	Cookie      string
	TotalCoins  int
	GamesPlayed int
	GamesWon    int
	LastLogin   time.Time
	Online      bool
}

// Store persists the full record set. The JSON file store is the
// default; a Postgres-backed store can be swapped in by config.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// Registry is the in-memory registry over a Store. playerId is the
// primary key; fingerprint and cookie each index at most one player.
type Registry struct {
	mu            sync.RWMutex
	records       map[string]*Record
	byFingerprint map[string]string
	byCookie      map[string]string
	online        map[string]struct{}

	// persistMu serializes store writes so snapshots reach the store
	// in the order they were taken, without holding mu over disk I/O.
	persistMu sync.Mutex

	store Store
	rng   *rand.Rand
	clock func() time.Time
}

// NewRegistry loads all records from the store. Players marked online
// in a stale save are reset to offline.
func NewRegistry(ctx context.Context, store Store) (*Registry, error) {
	r := &Registry{
		records:       make(map[string]*Record),
		byFingerprint: make(map[string]string),
		byCookie:      make(map[string]string),
		online:        make(map[string]struct{}),
		store:         store,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:         time.Now,
	}

	records, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading player records: %w", err)
	}
	for _, rec := range records {
		rec.Online = false
		cp := rec
		r.records[rec.PlayerID] = &cp
		r.byFingerprint[rec.Fingerprint] = rec.PlayerID
		if rec.Cookie != "" {
			r.byCookie[rec.Cookie] = rec.PlayerID
		}
	}
	return r, nil
}

// RegisterOrResolve returns the player bound to the fingerprint or
// cookie, minting a fresh identity when neither index matches.
func (r *Registry) RegisterOrResolve(fingerprint, cookie string) (string, error) {
	if !ValidFingerprint(fingerprint) {
		return "", fmt.Errorf("invalid hardware fingerprint %q", fingerprint)
	}

	r.mu.Lock()

	if id, ok := r.byFingerprint[fingerprint]; ok {
		r.mu.Unlock()
		return id, nil
	}
	if cookie != "" {
		if id, ok := r.byCookie[cookie]; ok {
			r.mu.Unlock()
			return id, nil
		}
	}

	id := r.mintID()
	rec := &Record{
		PlayerID:    id,
		Fingerprint: fingerprint,
		Cookie:      cookie,
		LastLogin:   r.clock(),
	}
	r.records[id] = rec
	r.byFingerprint[fingerprint] = id
	if cookie != "" {
		r.byCookie[cookie] = id
	}

	r.persistAndUnlock()
	return id, nil
}

// mintID generates an unused PLAYER_<six digits> identifier.
func (r *Registry) mintID() string {
	for {
		id := fmt.Sprintf("PLAYER_%06d", 100000+r.rng.Intn(900000))
		if _, taken := r.records[id]; !taken {
			return id
		}
	}
}

// Login marks the player online, stamps the login time and counts the
// session as a played game.
func (r *Registry) Login(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[playerID]
	if !ok {
		return fmt.Errorf("unknown player %s", playerID)
	}
	rec.Online = true
	rec.LastLogin = r.clock()
	rec.GamesPlayed++
	r.online[playerID] = struct{}{}
	return nil
}

// Logout clears the online bit and persists.
func (r *Registry) Logout(playerID string) {
	r.mu.Lock()
	if rec, ok := r.records[playerID]; ok {
		rec.Online = false
	}
	delete(r.online, playerID)
	r.persistAndUnlock()
}

// Get returns a copy of one record.
func (r *Registry) Get(playerID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[playerID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Update overwrites a record's mutable fields and reindexes the
// secondary keys. The playerId itself cannot change.
func (r *Registry) Update(playerID string, rec Record) bool {
	r.mu.Lock()

	cur, ok := r.records[playerID]
	if !ok {
		r.mu.Unlock()
		return false
	}

	if cur.Fingerprint != rec.Fingerprint && ValidFingerprint(rec.Fingerprint) {
		delete(r.byFingerprint, cur.Fingerprint)
		cur.Fingerprint = rec.Fingerprint
		r.byFingerprint[cur.Fingerprint] = playerID
	}
	if cur.Cookie != rec.Cookie {
		delete(r.byCookie, cur.Cookie)
		cur.Cookie = rec.Cookie
		if cur.Cookie != "" {
			r.byCookie[cur.Cookie] = playerID
		}
	}
	cur.TotalCoins = rec.TotalCoins
	cur.GamesPlayed = rec.GamesPlayed
	cur.GamesWon = rec.GamesWon
	cur.LastLogin = rec.LastLogin

	r.persistAndUnlock()
	return true
}

// AddCoins folds this-match coins into the durable total.
func (r *Registry) AddCoins(playerID string, coins int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[playerID]
	if !ok {
		return false
	}
	rec.TotalCoins += coins
	return true
}

// RecordWin bumps the games-won counter.
func (r *Registry) RecordWin(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[playerID]; ok {
		rec.GamesWon++
	}
}

// IsValid reports whether the playerId names a known record.
func (r *Registry) IsValid(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[playerID]
	return ok
}

// IsOnline reports whether the player currently holds a session.
func (r *Registry) IsOnline(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[playerID]
	return ok
}

// Online returns the sorted list of online playerIds.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.online))
	for id := range r.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of durable records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Persist writes the full record set through the store.
func (r *Registry) Persist(ctx context.Context) error {
	r.mu.RLock()
	records := r.snapshotLocked()
	r.mu.RUnlock()

	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	if err := r.store.Save(ctx, records); err != nil {
		return fmt.Errorf("saving player records: %w", err)
	}
	return nil
}

// persistAndUnlock snapshots under mu, releases it, and saves under
// persistMu only. Taking persistMu before handing mu back keeps
// snapshots reaching the store in the order they were taken while
// reads never wait on the disk write. Persistence failures are
// logged, never propagated to gameplay paths. The caller must hold
// mu for writing; it is unlocked on return.
func (r *Registry) persistAndUnlock() {
	records := r.snapshotLocked()
	r.persistMu.Lock()
	r.mu.Unlock()
	defer r.persistMu.Unlock()

	if err := r.store.Save(context.Background(), records); err != nil {
		slog.Error("persisting player records", "error", err)
	}
}

func (r *Registry) snapshotLocked() []Record {
	records := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].PlayerID < records[j].PlayerID
	})
	return records
}

// ValidFingerprint accepts only the canonical 17-character form:
// six hex octet pairs joined by a consistent ':' or '-' separator.
func ValidFingerprint(s string) bool {
	if len(s) != 17 {
		return false
	}
	sep := s[2]
	if sep != ':' && sep != '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if (i+1)%3 == 0 {
			if s[i] != sep {
				return false
			}
			continue
		}
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'F':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// SurrogateFingerprint derives a stable fingerprint for clients that
// authenticate without one, hashing the connection id and name into
// the canonical colon-separated form.
func SurrogateFingerprint(connID uint64, playerName string) string {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], connID)
	sum := blake2b.Sum256(append(seed[:], playerName...))
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		sum[0], sum[1], sum[2], sum[3], sum[4], sum[5])
}
