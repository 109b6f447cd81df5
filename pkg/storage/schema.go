package storage

import (
	"strconv"
	"strings"
	"time"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// migrations are applied in order and recorded in schema_migrations.
// {{serial}} expands to the dialect's auto-increment primary key.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS players (
		puuid          TEXT PRIMARY KEY,
		summoner_id    TEXT NOT NULL DEFAULT '',
		game_name      TEXT NOT NULL DEFAULT '',
		tag_line       TEXT NOT NULL DEFAULT '',
		profile_icon   INTEGER NOT NULL DEFAULT 0,
		summoner_level INTEGER NOT NULL DEFAULT 0,
		region         TEXT NOT NULL,
		platform       TEXT NOT NULL DEFAULT '',
		last_fetch     BIGINT NOT NULL DEFAULT 0,
		profile_seen   BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_players_region_fetch ON players(region, last_fetch, puuid)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		player_id     TEXT PRIMARY KEY,
		region        TEXT NOT NULL,
		platform      TEXT NOT NULL,
		queue         TEXT NOT NULL,
		tier          TEXT NOT NULL,
		division      TEXT NOT NULL,
		league_points INTEGER NOT NULL,
		wins          INTEGER NOT NULL,
		losses        INTEGER NOT NULL,
		fetched_at    BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ratings_region ON ratings(region)`,
	`CREATE TABLE IF NOT EXISTS rating_history (
		id            {{serial}},
		player_id     TEXT NOT NULL,
		platform      TEXT NOT NULL,
		queue         TEXT NOT NULL,
		tier          TEXT NOT NULL,
		division      TEXT NOT NULL,
		league_points INTEGER NOT NULL,
		wins          INTEGER NOT NULL,
		losses        INTEGER NOT NULL,
		fetched_at    BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rating_history_player ON rating_history(player_id, fetched_at)`,
	`CREATE TABLE IF NOT EXISTS matches (
		match_id     TEXT PRIMARY KEY,
		region       TEXT NOT NULL,
		platform     TEXT NOT NULL,
		game_version TEXT NOT NULL,
		start_time   BIGINT NOT NULL,
		duration_s   INTEGER NOT NULL,
		winning_team INTEGER NOT NULL,
		surrender    BOOLEAN NOT NULL,
		remake       BOOLEAN NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_region ON matches(region, start_time)`,
	`CREATE TABLE IF NOT EXISTS participant_stats (
		match_id        TEXT NOT NULL REFERENCES matches(match_id),
		puuid           TEXT NOT NULL,
		champion_id     INTEGER NOT NULL,
		champion_name   TEXT NOT NULL,
		team_id         INTEGER NOT NULL,
		team_position   TEXT NOT NULL,
		win             BOOLEAN NOT NULL,
		kills           INTEGER NOT NULL,
		deaths          INTEGER NOT NULL,
		assists         INTEGER NOT NULL,
		gold_earned     INTEGER NOT NULL,
		gold_spent      INTEGER NOT NULL,
		damage_to_champions INTEGER NOT NULL,
		total_cs        INTEGER NOT NULL,
		cs_per_min      DOUBLE PRECISION NOT NULL,
		summoner1_id    INTEGER NOT NULL,
		summoner2_id    INTEGER NOT NULL,
		item0 INTEGER NOT NULL, item1 INTEGER NOT NULL, item2 INTEGER NOT NULL, item3 INTEGER NOT NULL,
		item4 INTEGER NOT NULL, item5 INTEGER NOT NULL, item6 INTEGER NOT NULL,
		primary_style   INTEGER NOT NULL,
		secondary_style INTEGER NOT NULL,
		rune0 INTEGER NOT NULL, rune1 INTEGER NOT NULL, rune2 INTEGER NOT NULL,
		rune3 INTEGER NOT NULL, rune4 INTEGER NOT NULL, rune5 INTEGER NOT NULL,
		stat_offense    INTEGER NOT NULL,
		stat_flex       INTEGER NOT NULL,
		stat_defense    INTEGER NOT NULL,
		vision_score    INTEGER NOT NULL,
		wards_placed    INTEGER NOT NULL,
		wards_killed    INTEGER NOT NULL,
		control_wards   INTEGER NOT NULL,
		PRIMARY KEY (match_id, puuid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participant_stats_puuid ON participant_stats(puuid)`,
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at BIGINT NOT NULL
)`

func (d dialect) migration(i int) string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == dialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(migrations[i], "{{serial}}", serial)
}

// rebind rewrites ? placeholders to $1..$n for Postgres
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	queryPlayersExist = `SELECT EXISTS (SELECT 1 FROM players WHERE region = ?)`

	queryUpsertPlayer = `INSERT INTO players
		(puuid, summoner_id, game_name, tag_line, profile_icon, summoner_level, region, platform, last_fetch, profile_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (puuid) DO UPDATE SET
			summoner_id    = CASE WHEN excluded.summoner_id <> '' THEN excluded.summoner_id ELSE players.summoner_id END,
			game_name      = CASE WHEN excluded.game_name <> '' AND excluded.profile_seen >= players.profile_seen
				THEN excluded.game_name ELSE players.game_name END,
			tag_line       = CASE WHEN excluded.tag_line <> '' AND excluded.profile_seen >= players.profile_seen
				THEN excluded.tag_line ELSE players.tag_line END,
			profile_icon   = CASE WHEN excluded.profile_icon > 0 AND excluded.profile_seen >= players.profile_seen
				THEN excluded.profile_icon ELSE players.profile_icon END,
			summoner_level = CASE WHEN excluded.summoner_level > 0 AND excluded.profile_seen >= players.profile_seen
				THEN excluded.summoner_level ELSE players.summoner_level END,
			profile_seen   = CASE WHEN excluded.profile_seen > players.profile_seen
				THEN excluded.profile_seen ELSE players.profile_seen END`

	queryGetRating = `SELECT player_id, region, platform, queue, tier, division, league_points, wins, losses, fetched_at
		FROM ratings WHERE player_id = ?`

	// The WHERE clause turns an unchanged standing into a zero-row upsert
	queryUpsertRating = `INSERT INTO ratings
		(player_id, region, platform, queue, tier, division, league_points, wins, losses, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id) DO UPDATE SET
			region = excluded.region,
			platform = excluded.platform,
			queue = excluded.queue,
			tier = excluded.tier,
			division = excluded.division,
			league_points = excluded.league_points,
			wins = excluded.wins,
			losses = excluded.losses,
			fetched_at = excluded.fetched_at
		WHERE ratings.tier <> excluded.tier
			OR ratings.division <> excluded.division
			OR ratings.league_points <> excluded.league_points
			OR ratings.wins <> excluded.wins
			OR ratings.losses <> excluded.losses`

	queryInsertRatingHistory = `INSERT INTO rating_history
		(player_id, platform, queue, tier, division, league_points, wins, losses, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryMatchExists = `SELECT EXISTS (SELECT 1 FROM matches WHERE match_id = ?)`

	queryMatchStart = `SELECT start_time FROM matches WHERE match_id = ?`

	queryInsertMatch = `INSERT INTO matches
		(match_id, region, platform, game_version, start_time, duration_s, winning_team, surrender, remake)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO NOTHING`

	queryUpdateLastFetch = `UPDATE players SET last_fetch = ? WHERE puuid = ? AND last_fetch < ?`

	queryPlayerExists = `SELECT EXISTS (SELECT 1 FROM players WHERE puuid = ?)`

	queryListPlayers = `SELECT puuid, summoner_id, game_name, tag_line, profile_icon, summoner_level, region, platform,
		last_fetch, profile_seen
		FROM players WHERE region = ? ORDER BY last_fetch, puuid`

	queryRegionStats = `SELECT
		(SELECT COUNT(*) FROM players WHERE region = ?),
		(SELECT COUNT(*) FROM players WHERE region = ? AND last_fetch > 0),
		(SELECT COUNT(*) FROM ratings WHERE region = ?),
		(SELECT COUNT(*) FROM matches WHERE region = ?),
		(SELECT COALESCE(MAX(start_time), 0) FROM matches WHERE region = ?)`
)

var participantColumns = []string{
	"match_id", "puuid", "champion_id", "champion_name", "team_id", "team_position", "win",
	"kills", "deaths", "assists", "gold_earned", "gold_spent", "damage_to_champions",
	"total_cs", "cs_per_min", "summoner1_id", "summoner2_id",
	"item0", "item1", "item2", "item3", "item4", "item5", "item6",
	"primary_style", "secondary_style",
	"rune0", "rune1", "rune2", "rune3", "rune4", "rune5",
	"stat_offense", "stat_flex", "stat_defense",
	"vision_score", "wards_placed", "wards_killed", "control_wards",
}

var queryInsertParticipant = "INSERT INTO participant_stats (" +
	strings.Join(participantColumns, ", ") + ") VALUES (" +
	strings.TrimSuffix(strings.Repeat("?, ", len(participantColumns)), ", ") + ")"

func participantArgs(matchID string, p ParticipantStats) []interface{} {
	return []interface{}{
		matchID, p.PUUID, p.ChampionID, p.ChampionName, p.TeamID, p.TeamPosition, p.Win,
		p.Kills, p.Deaths, p.Assists, p.GoldEarned, p.GoldSpent, p.DamageToChampions,
		p.TotalCS, p.CSPerMin, p.Summoner1ID, p.Summoner2ID,
		p.Items[0], p.Items[1], p.Items[2], p.Items[3], p.Items[4], p.Items[5], p.Items[6],
		p.PrimaryStyle, p.SecondaryStyle,
		p.Runes[0], p.Runes[1], p.Runes[2], p.Runes[3], p.Runes[4], p.Runes[5],
		p.StatOffense, p.StatFlex, p.StatDefense,
		p.VisionScore, p.WardsPlaced, p.WardsKilled, p.ControlWards,
	}
}

func playerArgs(p Player) []interface{} {
	return []interface{}{
		p.PUUID, p.SummonerID, p.GameName, p.TagLine, p.ProfileIcon, p.SummonerLevel,
		p.Region, p.Platform, toMillis(p.LastFetch), toMillis(p.ProfileSeen),
	}
}

func ratingArgs(r Rating) []interface{} {
	return []interface{}{
		r.PlayerID, r.Region, r.Platform, r.Queue, r.Tier, r.Division,
		r.LeaguePoints, r.Wins, r.Losses, toMillis(r.FetchedAt),
	}
}

func ratingHistoryArgs(r Rating) []interface{} {
	return []interface{}{
		r.PlayerID, r.Platform, r.Queue, r.Tier, r.Division,
		r.LeaguePoints, r.Wins, r.Losses, toMillis(r.FetchedAt),
	}
}

func matchArgs(m Match) []interface{} {
	return []interface{}{
		m.MatchID, m.Region, m.Platform, m.GameVersion, toMillis(m.StartTime),
		int64(m.Duration / time.Second), m.WinningTeam, m.Surrender, m.Remake,
	}
}
