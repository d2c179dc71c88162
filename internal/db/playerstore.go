package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mazeworks/mazeserver/internal/player"
)

// PlayerStore persists registry records in the players table. It
// implements player.Store.
type PlayerStore struct {
	db *DB
}

func NewPlayerStore(db *DB) *PlayerStore {
	return &PlayerStore{db: db}
}

// Load reads every player row ordered by ID.
func (s *PlayerStore) Load(ctx context.Context) ([]player.Record, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT player_id, mac_address, cookie, total_coins,
		        games_played, games_won, last_login, is_online
		 FROM players ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("querying players: %w", err)
	}
	defer rows.Close()

	var records []player.Record
	for rows.Next() {
		var (
			rec       player.Record
			lastLogin sql.NullTime
		)
		if err := rows.Scan(
			&rec.PlayerID, &rec.Fingerprint, &rec.Cookie, &rec.TotalCoins,
			&rec.GamesPlayed, &rec.GamesWon, &lastLogin, &rec.Online,
		); err != nil {
			return nil, fmt.Errorf("scanning player row: %w", err)
		}
		if lastLogin.Valid {
			rec.LastLogin = lastLogin.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading player rows: %w", err)
	}
	return records, nil
}

// Save upserts the full registry snapshot in one transaction. Records
// are never deleted, so rows absent from the snapshot stay untouched.
func (s *PlayerStore) Save(ctx context.Context, records []player.Record) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning players transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		var lastLogin *time.Time
		if !rec.LastLogin.IsZero() {
			t := rec.LastLogin
			lastLogin = &t
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO players (player_id, mac_address, cookie, total_coins,
			                      games_played, games_won, last_login, is_online)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (player_id) DO UPDATE SET
			     mac_address  = EXCLUDED.mac_address,
			     cookie       = EXCLUDED.cookie,
			     total_coins  = EXCLUDED.total_coins,
			     games_played = EXCLUDED.games_played,
			     games_won    = EXCLUDED.games_won,
			     last_login   = EXCLUDED.last_login,
			     is_online    = EXCLUDED.is_online`,
			rec.PlayerID, rec.Fingerprint, rec.Cookie, rec.TotalCoins,
			rec.GamesPlayed, rec.GamesWon, lastLogin, rec.Online,
		)
		if err != nil {
			return fmt.Errorf("upserting player %s: %w", rec.PlayerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing players transaction: %w", err)
	}
	return nil
}
