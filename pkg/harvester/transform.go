package harvester

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ladderharvest/pkg/riot"
	"ladderharvest/pkg/storage"
)

// ErrMalformed marks a remote record that cannot be persisted
var ErrMalformed = errors.New("malformed record")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// playerID returns the identifier a ladder entry is keyed by
func playerID(e riot.LeagueEntry) string {
	if e.PUUID != "" {
		return e.PUUID
	}
	return e.SummonerID
}

// RatingFromEntry converts a ladder entry into a rating snapshot
func RatingFromEntry(e riot.LeagueEntry, region, shard, queue string, fetchedAt time.Time) (storage.Rating, error) {
	id := playerID(e)
	if id == "" {
		return storage.Rating{}, malformed("ladder entry without player id")
	}
	if e.Tier == "" || e.Rank == "" {
		return storage.Rating{}, malformed("ladder entry %s without tier or division", id)
	}
	if e.LeaguePoints < 0 || e.Wins < 0 || e.Losses < 0 {
		return storage.Rating{}, malformed("ladder entry %s with negative counters", id)
	}

	return storage.Rating{
		PlayerID:     id,
		Region:       region,
		Platform:     shard,
		Queue:        queue,
		Tier:         strings.ToUpper(e.Tier),
		Division:     strings.ToUpper(e.Rank),
		LeaguePoints: e.LeaguePoints,
		Wins:         e.Wins,
		Losses:       e.Losses,
		FetchedAt:    fetchedAt,
	}, nil
}

// TransformMatch converts a match payload into its persisted shape
func TransformMatch(m *riot.Match, region string) (storage.Match, error) {
	if m == nil || m.Metadata.MatchID == "" {
		return storage.Match{}, malformed("match without id")
	}
	id := m.Metadata.MatchID
	info := m.Info

	if len(info.Participants) == 0 {
		return storage.Match{}, malformed("match %s without participants", id)
	}
	if len(info.Teams) == 0 {
		return storage.Match{}, malformed("match %s without teams", id)
	}
	if info.GameDuration <= 0 {
		return storage.Match{}, malformed("match %s with duration %d", id, info.GameDuration)
	}
	if info.GameCreation <= 0 {
		return storage.Match{}, malformed("match %s without start time", id)
	}

	duration := time.Duration(info.GameDuration) * time.Second
	participants := make([]storage.ParticipantStats, 0, len(info.Participants))
	for i, p := range info.Participants {
		if p.PUUID == "" {
			return storage.Match{}, malformed("match %s participant %d without puuid", id, i)
		}
		participants = append(participants, participantStats(p, duration))
	}

	first := info.Participants[0]
	return storage.Match{
		MatchID:      id,
		Region:       region,
		Platform:     info.PlatformID,
		GameVersion:  info.GameVersion,
		StartTime:    time.UnixMilli(info.GameCreation).UTC(),
		Duration:     duration,
		WinningTeam:  winningTeam(info.Teams),
		Surrender:    first.GameEndedInSurrender,
		Remake:       first.GameEndedInEarlySurrender,
		Participants: participants,
	}, nil
}

// winningTeam reads the winner from the first team entry
func winningTeam(teams []riot.Team) int {
	if teams[0].Win {
		return teams[0].TeamID
	}
	if teams[0].TeamID == 100 {
		return 200
	}
	return 100
}

func participantStats(p riot.Participant, duration time.Duration) storage.ParticipantStats {
	totalCS := p.TotalMinionsKilled + p.NeutralMinionsKilled

	ps := storage.ParticipantStats{
		PUUID:             p.PUUID,
		ChampionID:        p.ChampionID,
		ChampionName:      p.ChampionName,
		TeamID:            p.TeamID,
		TeamPosition:      p.TeamPosition,
		Win:               p.Win,
		Kills:             p.Kills,
		Deaths:            p.Deaths,
		Assists:           p.Assists,
		GoldEarned:        p.GoldEarned,
		GoldSpent:         p.GoldSpent,
		DamageToChampions: p.TotalDamageDealtToChampions,
		TotalCS:           totalCS,
		CSPerMin:          float64(totalCS) / duration.Minutes(),
		Summoner1ID:       p.Summoner1ID,
		Summoner2ID:       p.Summoner2ID,
		Items:             [7]int{p.Item0, p.Item1, p.Item2, p.Item3, p.Item4, p.Item5, p.Item6},
		StatOffense:       p.Perks.StatPerks.Offense,
		StatFlex:          p.Perks.StatPerks.Flex,
		StatDefense:       p.Perks.StatPerks.Defense,
		VisionScore:       p.VisionScore,
		WardsPlaced:       p.WardsPlaced,
		WardsKilled:       p.WardsKilled,
	}
	if p.Challenges != nil {
		ps.ControlWards = p.Challenges.ControlWardsPlaced
	}

	// Primary tree has four selections, secondary two
	if len(p.Perks.Styles) > 0 {
		ps.PrimaryStyle = p.Perks.Styles[0].Style
		for i, sel := range p.Perks.Styles[0].Selections {
			if i >= 4 {
				break
			}
			ps.Runes[i] = sel.Perk
		}
	}
	if len(p.Perks.Styles) > 1 {
		ps.SecondaryStyle = p.Perks.Styles[1].Style
		for i, sel := range p.Perks.Styles[1].Selections {
			if i >= 2 {
				break
			}
			ps.Runes[4+i] = sel.Perk
		}
	}
	return ps
}

// playerFromParticipant builds the player row for a discovered participant
func playerFromParticipant(p riot.Participant, region, platform string) storage.Player {
	return storage.Player{
		PUUID:         p.PUUID,
		SummonerID:    p.SummonerID,
		GameName:      p.RiotIDGameName,
		TagLine:       p.RiotIDTagline,
		ProfileIcon:   p.ProfileIcon,
		SummonerLevel: p.SummonerLevel,
		Region:        region,
		Platform:      strings.ToLower(platform),
	}
}
