package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Gateway backed by a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn with at most maxConns connections and applies migrations
func NewPostgres(ctx context.Context, dsn string, maxConns int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return p, nil
}

func (p *Postgres) q(query string) string {
	return dialectPostgres.rebind(query)
}

// Migrate applies pending schema migrations
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createMigrationsTable); err != nil {
		return err
	}

	var current int
	if err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, dialectPostgres.migration(i)); err != nil {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`,
				i+1, time.Now().UnixMilli())
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the number of applied migrations
func (p *Postgres) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// PlayersExistForRegion reports whether any player belongs to region
func (p *Postgres) PlayersExistForRegion(ctx context.Context, region string) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, p.q(queryPlayersExist), region).Scan(&exists); err != nil {
		return false, fmt.Errorf("players exist for %s: %w", region, err)
	}
	return exists, nil
}

// UpsertPlayer inserts pl or refreshes its profile fields
func (p *Postgres) UpsertPlayer(ctx context.Context, pl Player) error {
	if _, err := p.pool.Exec(ctx, p.q(queryUpsertPlayer), playerArgs(pl)...); err != nil {
		return fmt.Errorf("upsert player %s: %w", pl.PUUID, err)
	}
	return nil
}

// GetRating returns the stored rating of playerID
func (p *Postgres) GetRating(ctx context.Context, playerID string) (*Rating, error) {
	var r Rating
	var fetched int64
	err := p.pool.QueryRow(ctx, p.q(queryGetRating), playerID).Scan(
		&r.PlayerID, &r.Region, &r.Platform, &r.Queue, &r.Tier, &r.Division,
		&r.LeaguePoints, &r.Wins, &r.Losses, &fetched,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rating %s: %w", playerID, err)
	}
	r.FetchedAt = fromMillis(fetched)
	return &r, nil
}

// UpsertRatingIfChanged writes r and a history row only when the standing changed
func (p *Postgres) UpsertRatingIfChanged(ctx context.Context, r Rating) (bool, error) {
	written := false
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, p.q(queryUpsertRating), ratingArgs(r)...)
		if err != nil {
			return fmt.Errorf("upsert rating %s: %w", r.PlayerID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, p.q(queryInsertRatingHistory), ratingHistoryArgs(r)...); err != nil {
			return fmt.Errorf("append rating history %s: %w", r.PlayerID, err)
		}
		written = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// MatchExists reports whether matchID is stored
func (p *Postgres) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, p.q(queryMatchExists), matchID).Scan(&exists); err != nil {
		return false, fmt.Errorf("match exists %s: %w", matchID, err)
	}
	return exists, nil
}

// MatchStart returns the start time of a stored match
func (p *Postgres) MatchStart(ctx context.Context, matchID string) (time.Time, bool, error) {
	var ms int64
	err := p.pool.QueryRow(ctx, p.q(queryMatchStart), matchID).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("match start %s: %w", matchID, err)
	}
	return fromMillis(ms), true, nil
}

// InsertMatch writes m and its participants in one transaction. Participant
// rows go out as a single batch.
func (p *Postgres) InsertMatch(ctx context.Context, m Match) (bool, error) {
	inserted := false
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, p.q(queryInsertMatch), matchArgs(m)...)
		if err != nil {
			return fmt.Errorf("insert match %s: %w", m.MatchID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		b := &pgx.Batch{}
		for _, ps := range m.Participants {
			b.Queue(p.q(queryInsertParticipant), participantArgs(m.MatchID, ps)...)
		}
		br := tx.SendBatch(ctx, b)
		for range m.Participants {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert participants of %s: %w", m.MatchID, err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// UpdatePlayerLastFetch advances the player's last fetch time
func (p *Postgres) UpdatePlayerLastFetch(ctx context.Context, puuid string, t time.Time) error {
	ms := toMillis(t)
	tag, err := p.pool.Exec(ctx, p.q(queryUpdateLastFetch), ms, puuid, ms)
	if err != nil {
		return fmt.Errorf("update last fetch %s: %w", puuid, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, p.q(queryPlayerExists), puuid).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// ListPlayers returns the players of region ordered by last fetch, then PUUID
func (p *Postgres) ListPlayers(ctx context.Context, region string) ([]Player, error) {
	rows, err := p.pool.Query(ctx, p.q(queryListPlayers), region)
	if err != nil {
		return nil, fmt.Errorf("list players %s: %w", region, err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var pl Player
		var lastFetch, profileSeen int64
		if err := rows.Scan(&pl.PUUID, &pl.SummonerID, &pl.GameName, &pl.TagLine, &pl.ProfileIcon,
			&pl.SummonerLevel, &pl.Region, &pl.Platform, &lastFetch, &profileSeen); err != nil {
			return nil, err
		}
		pl.LastFetch = fromMillis(lastFetch)
		pl.ProfileSeen = fromMillis(profileSeen)
		players = append(players, pl)
	}
	return players, rows.Err()
}

// RegionStats counts what has been harvested for region
func (p *Postgres) RegionStats(ctx context.Context, region string) (RegionStats, error) {
	stats := RegionStats{Region: region}
	var latest int64
	err := p.pool.QueryRow(ctx, p.q(queryRegionStats), region, region, region, region, region).Scan(
		&stats.Players, &stats.PlayersFetched, &stats.Ratings, &stats.Matches, &latest,
	)
	if err != nil {
		return stats, fmt.Errorf("region stats %s: %w", region, err)
	}
	stats.LatestMatch = fromMillis(latest)
	return stats, nil
}

// Close releases the pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
