package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Gateway backed by a single SQLite file
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and applies migrations
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers; one connection avoids SQLITE_BUSY between workers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Migrate applies pending schema migrations
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, dialectSQLite.migration(i)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			i+1, time.Now().UnixMilli()); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the number of applied migrations
func (s *SQLite) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// PlayersExistForRegion reports whether any player belongs to region
func (s *SQLite) PlayersExistForRegion(ctx context.Context, region string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, queryPlayersExist, region).Scan(&exists); err != nil {
		return false, fmt.Errorf("players exist for %s: %w", region, err)
	}
	return exists, nil
}

// UpsertPlayer inserts p or refreshes its profile fields
func (s *SQLite) UpsertPlayer(ctx context.Context, p Player) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertPlayer, playerArgs(p)...); err != nil {
		return fmt.Errorf("upsert player %s: %w", p.PUUID, err)
	}
	return nil
}

// GetRating returns the stored rating of playerID
func (s *SQLite) GetRating(ctx context.Context, playerID string) (*Rating, error) {
	var r Rating
	var fetched int64
	err := s.db.QueryRowContext(ctx, queryGetRating, playerID).Scan(
		&r.PlayerID, &r.Region, &r.Platform, &r.Queue, &r.Tier, &r.Division,
		&r.LeaguePoints, &r.Wins, &r.Losses, &fetched,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rating %s: %w", playerID, err)
	}
	r.FetchedAt = fromMillis(fetched)
	return &r, nil
}

// UpsertRatingIfChanged writes r and a history row only when the standing changed
func (s *SQLite) UpsertRatingIfChanged(ctx context.Context, r Rating) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryUpsertRating, ratingArgs(r)...)
	if err != nil {
		return false, fmt.Errorf("upsert rating %s: %w", r.PlayerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, queryInsertRatingHistory, ratingHistoryArgs(r)...); err != nil {
		return false, fmt.Errorf("append rating history %s: %w", r.PlayerID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// MatchExists reports whether matchID is stored
func (s *SQLite) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, queryMatchExists, matchID).Scan(&exists); err != nil {
		return false, fmt.Errorf("match exists %s: %w", matchID, err)
	}
	return exists, nil
}

// MatchStart returns the start time of a stored match
func (s *SQLite) MatchStart(ctx context.Context, matchID string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, queryMatchStart, matchID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("match start %s: %w", matchID, err)
	}
	return fromMillis(ms), true, nil
}

// InsertMatch writes m and its participants in one transaction
func (s *SQLite) InsertMatch(ctx context.Context, m Match) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryInsertMatch, matchArgs(m)...)
	if err != nil {
		return false, fmt.Errorf("insert match %s: %w", m.MatchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for _, p := range m.Participants {
		if _, err := tx.ExecContext(ctx, queryInsertParticipant, participantArgs(m.MatchID, p)...); err != nil {
			return false, fmt.Errorf("insert participant %s of %s: %w", p.PUUID, m.MatchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePlayerLastFetch advances the player's last fetch time
func (s *SQLite) UpdatePlayerLastFetch(ctx context.Context, puuid string, t time.Time) error {
	ms := toMillis(t)
	res, err := s.db.ExecContext(ctx, queryUpdateLastFetch, ms, puuid, ms)
	if err != nil {
		return fmt.Errorf("update last fetch %s: %w", puuid, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, queryPlayerExists, puuid).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// ListPlayers returns the players of region ordered by last fetch, then PUUID
func (s *SQLite) ListPlayers(ctx context.Context, region string) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx, queryListPlayers, region)
	if err != nil {
		return nil, fmt.Errorf("list players %s: %w", region, err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var p Player
		var lastFetch, profileSeen int64
		if err := rows.Scan(&p.PUUID, &p.SummonerID, &p.GameName, &p.TagLine, &p.ProfileIcon,
			&p.SummonerLevel, &p.Region, &p.Platform, &lastFetch, &profileSeen); err != nil {
			return nil, err
		}
		p.LastFetch = fromMillis(lastFetch)
		p.ProfileSeen = fromMillis(profileSeen)
		players = append(players, p)
	}
	return players, rows.Err()
}

// RegionStats counts what has been harvested for region
func (s *SQLite) RegionStats(ctx context.Context, region string) (RegionStats, error) {
	stats := RegionStats{Region: region}
	var latest int64
	err := s.db.QueryRowContext(ctx, queryRegionStats, region, region, region, region, region).Scan(
		&stats.Players, &stats.PlayersFetched, &stats.Ratings, &stats.Matches, &latest,
	)
	if err != nil {
		return stats, fmt.Errorf("region stats %s: %w", region, err)
	}
	stats.LatestMatch = fromMillis(latest)
	return stats, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}
