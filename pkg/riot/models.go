package riot

// LeagueEntry is one ranked player on a ladder page
type LeagueEntry struct {
	LeagueID     string `json:"leagueId"`
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	SummonerID   string `json:"summonerId"`
	PUUID        string `json:"puuid"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Veteran      bool   `json:"veteran"`
	Inactive     bool   `json:"inactive"`
	FreshBlood   bool   `json:"freshBlood"`
	HotStreak    bool   `json:"hotStreak"`
}

// LeagueList is a whole apex league. Its entries carry no tier of their own.
type LeagueList struct {
	LeagueID string        `json:"leagueId"`
	Tier     string        `json:"tier"`
	Name     string        `json:"name"`
	Queue    string        `json:"queue"`
	Entries  []LeagueEntry `json:"entries"`
}

// Summoner is a player profile on one shard
type Summoner struct {
	ID            string `json:"id"`
	AccountID     string `json:"accountId"`
	PUUID         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	RevisionDate  int64  `json:"revisionDate"`
	SummonerLevel int    `json:"summonerLevel"`
}

// Match is the match detail payload
type Match struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

// MatchMetadata contains match metadata
type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

// MatchInfo contains detailed match information
type MatchInfo struct {
	GameCreation     int64         `json:"gameCreation"` // Unix ms
	GameDuration     int64         `json:"gameDuration"` // seconds
	GameEndTimestamp int64         `json:"gameEndTimestamp"`
	GameMode         string        `json:"gameMode"`
	GameVersion      string        `json:"gameVersion"`
	PlatformID       string        `json:"platformId"`
	QueueID          int           `json:"queueId"`
	EndOfGameResult  string        `json:"endOfGameResult"`
	Participants     []Participant `json:"participants"`
	Teams            []Team        `json:"teams"`
}

// Team is one side of a match
type Team struct {
	TeamID int  `json:"teamId"`
	Win    bool `json:"win"`
}

// Participant represents a player in the match
type Participant struct {
	PUUID          string `json:"puuid"`
	SummonerID     string `json:"summonerId"`
	RiotIDGameName string `json:"riotIdGameName"`
	RiotIDTagline  string `json:"riotIdTagline"`
	ProfileIcon    int    `json:"profileIcon"`
	SummonerLevel  int    `json:"summonerLevel"`

	ChampionID   int    `json:"championId"`
	ChampionName string `json:"championName"`
	TeamID       int    `json:"teamId"`
	TeamPosition string `json:"teamPosition"`
	Win          bool   `json:"win"`

	Kills   int `json:"kills"`
	Deaths  int `json:"deaths"`
	Assists int `json:"assists"`

	GoldEarned                  int `json:"goldEarned"`
	GoldSpent                   int `json:"goldSpent"`
	TotalDamageDealtToChampions int `json:"totalDamageDealtToChampions"`

	TotalMinionsKilled   int `json:"totalMinionsKilled"`
	NeutralMinionsKilled int `json:"neutralMinionsKilled"`

	VisionScore int `json:"visionScore"`
	WardsPlaced int `json:"wardsPlaced"`
	WardsKilled int `json:"wardsKilled"`

	Item0 int `json:"item0"`
	Item1 int `json:"item1"`
	Item2 int `json:"item2"`
	Item3 int `json:"item3"`
	Item4 int `json:"item4"`
	Item5 int `json:"item5"`
	Item6 int `json:"item6"` // trinket

	Summoner1ID int `json:"summoner1Id"`
	Summoner2ID int `json:"summoner2Id"`

	GameEndedInSurrender      bool `json:"gameEndedInSurrender"`
	GameEndedInEarlySurrender bool `json:"gameEndedInEarlySurrender"`

	Perks      Perks       `json:"perks"`
	Challenges *Challenges `json:"challenges,omitempty"`
}

// Perks are the runes a participant took
type Perks struct {
	StatPerks StatPerks   `json:"statPerks"`
	Styles    []PerkStyle `json:"styles"`
}

// StatPerks are the three stat shards
type StatPerks struct {
	Defense int `json:"defense"`
	Flex    int `json:"flex"`
	Offense int `json:"offense"`
}

// PerkStyle is one rune tree; the first is primary, the second secondary
type PerkStyle struct {
	Description string          `json:"description"`
	Style       int             `json:"style"`
	Selections  []PerkSelection `json:"selections"`
}

// PerkSelection is one rune in a tree
type PerkSelection struct {
	Perk int `json:"perk"`
}

// Challenges holds the derived stats block; only the fields kept are listed
type Challenges struct {
	ControlWardsPlaced int `json:"controlWardsPlaced"`
}

// AbortedResult marks a match that ended before it started properly
const AbortedResult = "Abort_Unexpected"

// Aborted reports whether the match was aborted and carries no usable stats
func (m *Match) Aborted() bool {
	return m.Info.EndOfGameResult == AbortedResult
}
