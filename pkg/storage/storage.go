package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Player is a known player of one region
type Player struct {
	PUUID         string
	SummonerID    string
	GameName      string
	TagLine       string
	ProfileIcon   int
	SummonerLevel int
	Region        string
	Platform      string
	// LastFetch is the start time of the newest match already harvested, zero for a fresh seed
	LastFetch time.Time
	// ProfileSeen is the start of the match the profile fields were read from.
	// An upsert seen earlier than the stored one leaves the profile untouched.
	ProfileSeen time.Time
}

// Rating is a player's current ladder standing
type Rating struct {
	PlayerID     string
	Region       string
	Platform     string
	Queue        string
	Tier         string
	Division     string
	LeaguePoints int
	Wins         int
	Losses       int
	FetchedAt    time.Time
}

// SameStanding reports whether r and o describe the same ladder placement.
// FetchedAt and the location fields are ignored.
func (r Rating) SameStanding(o Rating) bool {
	return r.Tier == o.Tier &&
		r.Division == o.Division &&
		r.LeaguePoints == o.LeaguePoints &&
		r.Wins == o.Wins &&
		r.Losses == o.Losses
}

// Match is a completed match with one stats row per participant
type Match struct {
	MatchID      string
	Region       string
	Platform     string
	GameVersion  string
	StartTime    time.Time
	Duration     time.Duration
	WinningTeam  int
	Surrender    bool
	Remake       bool
	Participants []ParticipantStats
}

// ParticipantStats is one participant's line in a match
type ParticipantStats struct {
	PUUID        string
	ChampionID   int
	ChampionName string
	TeamID       int
	TeamPosition string
	Win          bool

	Kills             int
	Deaths            int
	Assists           int
	GoldEarned        int
	GoldSpent         int
	DamageToChampions int
	TotalCS           int
	CSPerMin          float64

	Summoner1ID int
	Summoner2ID int
	Items       [7]int

	PrimaryStyle   int
	SecondaryStyle int
	// Runes holds the four primary selections followed by the two secondary ones
	Runes        [6]int
	StatOffense  int
	StatFlex     int
	StatDefense  int
	VisionScore  int
	WardsPlaced  int
	WardsKilled  int
	ControlWards int
}

// RedSide reports whether the participant played on the second team
func (p ParticipantStats) RedSide() bool {
	return p.TeamID == 200
}

// RegionStats summarises what has been harvested for a region
type RegionStats struct {
	Region         string
	Players        int64
	PlayersFetched int64
	Ratings        int64
	Matches        int64
	LatestMatch    time.Time
}

// Gateway is the persistence boundary used by the harvesters. All
// implementations are safe for concurrent use.
type Gateway interface {
	// PlayersExistForRegion reports whether any player belongs to region
	PlayersExistForRegion(ctx context.Context, region string) (bool, error)
	// UpsertPlayer inserts p or refreshes its profile fields when p.ProfileSeen is not
	// older than the stored one. LastFetch, Region and Platform of an existing player
	// are never overwritten.
	UpsertPlayer(ctx context.Context, p Player) error
	// GetRating returns the stored rating of playerID or ErrNotFound
	GetRating(ctx context.Context, playerID string) (*Rating, error)
	// UpsertRatingIfChanged writes r only when its standing differs from the stored one
	UpsertRatingIfChanged(ctx context.Context, r Rating) (bool, error)
	MatchExists(ctx context.Context, matchID string) (bool, error)
	// MatchStart returns the start time of a stored match; found is false when it is not stored
	MatchStart(ctx context.Context, matchID string) (start time.Time, found bool, err error)
	// InsertMatch writes m and its participants atomically. It is a no-op returning
	// false when the match id already exists.
	InsertMatch(ctx context.Context, m Match) (bool, error)
	// UpdatePlayerLastFetch advances the player's last fetch time. It never moves it backwards.
	UpdatePlayerLastFetch(ctx context.Context, puuid string, t time.Time) error
	// ListPlayers returns the players of region ordered by last fetch, then PUUID
	ListPlayers(ctx context.Context, region string) ([]Player, error)
	RegionStats(ctx context.Context, region string) (RegionStats, error)
	Close() error
}

// Migrator is implemented by the SQL gateways
type Migrator interface {
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
}

// Open returns the gateway for dsn. postgres:// and postgresql:// URLs use
// Postgres, "memory" keeps everything in process, anything else is a SQLite path.
func Open(ctx context.Context, dsn string, maxConns int) (Gateway, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("database dsn is empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn, maxConns)
	case dsn == "memory":
		return NewMemory(), nil
	default:
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
