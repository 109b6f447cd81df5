package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Gateway. It backs tests and dry runs.
type Memory struct {
	mu            sync.RWMutex
	players       map[string]Player
	ratings       map[string]Rating
	ratingHistory map[string][]Rating
	matches       map[string]Match
}

// NewMemory creates an empty in-memory gateway
func NewMemory() *Memory {
	return &Memory{
		players:       make(map[string]Player),
		ratings:       make(map[string]Rating),
		ratingHistory: make(map[string][]Rating),
		matches:       make(map[string]Match),
	}
}

// PlayersExistForRegion reports whether any player belongs to region
func (m *Memory) PlayersExistForRegion(ctx context.Context, region string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.players {
		if p.Region == region {
			return true, nil
		}
	}
	return false, nil
}

// UpsertPlayer inserts p or refreshes its profile fields
func (m *Memory) UpsertPlayer(ctx context.Context, p Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.players[p.PUUID]
	if !ok {
		m.players[p.PUUID] = p
		return nil
	}

	if p.SummonerID != "" {
		existing.SummonerID = p.SummonerID
	}
	if p.ProfileSeen.Before(existing.ProfileSeen) {
		m.players[p.PUUID] = existing
		return nil
	}
	existing.ProfileSeen = p.ProfileSeen
	if p.GameName != "" {
		existing.GameName = p.GameName
	}
	if p.TagLine != "" {
		existing.TagLine = p.TagLine
	}
	if p.ProfileIcon > 0 {
		existing.ProfileIcon = p.ProfileIcon
	}
	if p.SummonerLevel > 0 {
		existing.SummonerLevel = p.SummonerLevel
	}
	m.players[p.PUUID] = existing
	return nil
}

// GetRating returns the stored rating of playerID
func (m *Memory) GetRating(ctx context.Context, playerID string) (*Rating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.ratings[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// UpsertRatingIfChanged writes r only when its standing changed
func (m *Memory) UpsertRatingIfChanged(ctx context.Context, r Rating) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.ratings[r.PlayerID]; ok && current.SameStanding(r) {
		return false, nil
	}
	m.ratings[r.PlayerID] = r
	m.ratingHistory[r.PlayerID] = append(m.ratingHistory[r.PlayerID], r)
	return true, nil
}

// MatchExists reports whether matchID is stored
func (m *Memory) MatchExists(ctx context.Context, matchID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.matches[matchID]
	return ok, nil
}

// MatchStart returns the start time of a stored match
func (m *Memory) MatchStart(ctx context.Context, matchID string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	match, ok := m.matches[matchID]
	if !ok {
		return time.Time{}, false, nil
	}
	return match.StartTime, true, nil
}

// InsertMatch stores match unless its id is already present
func (m *Memory) InsertMatch(ctx context.Context, match Match) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.matches[match.MatchID]; ok {
		return false, nil
	}
	match.Participants = append([]ParticipantStats(nil), match.Participants...)
	m.matches[match.MatchID] = match
	return true, nil
}

// UpdatePlayerLastFetch advances the player's last fetch time
func (m *Memory) UpdatePlayerLastFetch(ctx context.Context, puuid string, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[puuid]
	if !ok {
		return ErrNotFound
	}
	if t.After(p.LastFetch) {
		p.LastFetch = t
		m.players[puuid] = p
	}
	return nil
}

// ListPlayers returns the players of region ordered by last fetch, then PUUID
func (m *Memory) ListPlayers(ctx context.Context, region string) ([]Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var players []Player
	for _, p := range m.players {
		if p.Region == region {
			players = append(players, p)
		}
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].LastFetch.Equal(players[j].LastFetch) {
			return players[i].LastFetch.Before(players[j].LastFetch)
		}
		return players[i].PUUID < players[j].PUUID
	})
	return players, nil
}

// RegionStats counts what has been harvested for region
func (m *Memory) RegionStats(ctx context.Context, region string) (RegionStats, error) {
	if err := ctx.Err(); err != nil {
		return RegionStats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := RegionStats{Region: region}
	for _, p := range m.players {
		if p.Region != region {
			continue
		}
		stats.Players++
		if !p.LastFetch.IsZero() {
			stats.PlayersFetched++
		}
	}
	for _, r := range m.ratings {
		if r.Region == region {
			stats.Ratings++
		}
	}
	for _, match := range m.matches {
		if match.Region != region {
			continue
		}
		stats.Matches++
		if match.StartTime.After(stats.LatestMatch) {
			stats.LatestMatch = match.StartTime
		}
	}
	return stats, nil
}

// RatingHistory returns every rating written for playerID, oldest first
func (m *Memory) RatingHistory(playerID string) []Rating {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Rating(nil), m.ratingHistory[playerID]...)
}

// GetMatch returns a stored match
func (m *Memory) GetMatch(matchID string) (Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[matchID]
	return match, ok
}

// Close is a no-op
func (m *Memory) Close() error {
	return nil
}
