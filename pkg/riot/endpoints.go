package riot

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// EndpointKind names one remote API operation
type EndpointKind string

const (
	// KindLeagueEntries lists one page of a tier/division below the apex tiers
	KindLeagueEntries EndpointKind = "league_entries"
	// KindHighTierEntries lists one page of an apex tier; apex tiers have a single division
	KindHighTierEntries EndpointKind = "high_tier_entries"
	// KindApexLeague returns a whole apex league in one response
	KindApexLeague EndpointKind = "apex_league"
	// KindSummonerByID resolves an encrypted summoner id to a summoner profile
	KindSummonerByID EndpointKind = "summoner_by_id"
	// KindMatchIDs lists match ids played by a player, newest first
	KindMatchIDs EndpointKind = "match_ids"
	// KindMatchDetail returns one match with every participant
	KindMatchDetail EndpointKind = "match_detail"
)

const (
	// TokenHeader carries the API key on every request
	TokenHeader = "X-Riot-Token"

	// DefaultBaseURLPattern is formatted with the routing host
	DefaultBaseURLPattern = "https://%s.api.riotgames.com"

	// MaxMatchIDsPerPage is the largest count the match id listing accepts
	MaxMatchIDsPerPage = 100
)

// ErrInvalidParams is returned by BuildRequest when a required parameter is missing
var ErrInvalidParams = errors.New("invalid request parameters")

var apexTiers = map[string]string{
	"CHALLENGER":  "challengerleagues",
	"GRANDMASTER": "grandmasterleagues",
	"MASTER":      "masterleagues",
}

// IsApexTier reports whether tier is one of the apex tiers
func IsApexTier(tier string) bool {
	_, ok := apexTiers[strings.ToUpper(tier)]
	return ok
}

// Params are the inputs of a request. Host is the routing value the request is sent to:
// a shard (na1, euw1) for ladder and summoner endpoints, a macro-region (americas) for match endpoints.
type Params struct {
	Host       string
	Queue      string
	Tier       string
	Division   string
	Page       int
	SummonerID string
	PUUID      string
	MatchID    string
	StartTime  time.Time
	QueueID    int
	Start      int
	Count      int
}

// Request is a fully formed, authenticated request ready to be sent
type Request struct {
	Kind   EndpointKind
	Host   string
	Method string
	URL    string
	Header http.Header
}

// RequestBuilder turns endpoint kinds and parameters into requests. It performs no I/O.
type RequestBuilder struct {
	apiKey         string
	baseURLPattern string
}

// NewRequestBuilder creates a builder for the given key and base URL pattern
func NewRequestBuilder(apiKey, baseURLPattern string) *RequestBuilder {
	if baseURLPattern == "" {
		baseURLPattern = DefaultBaseURLPattern
	}
	return &RequestBuilder{apiKey: apiKey, baseURLPattern: baseURLPattern}
}

// BuildRequest returns the authenticated request for kind with params
func (b *RequestBuilder) BuildRequest(kind EndpointKind, p Params) (*Request, error) {
	if p.Host == "" {
		return nil, fmt.Errorf("%w: %s requires a routing host", ErrInvalidParams, kind)
	}

	queue := p.Queue
	if queue == "" {
		queue = "RANKED_SOLO_5x5"
	}

	var path string
	query := url.Values{}

	switch kind {
	case KindLeagueEntries:
		if p.Tier == "" || p.Division == "" {
			return nil, fmt.Errorf("%w: %s requires tier and division", ErrInvalidParams, kind)
		}
		path = fmt.Sprintf("/lol/league/v4/entries/%s/%s/%s",
			queue, strings.ToUpper(p.Tier), strings.ToUpper(p.Division))
		query.Set("page", strconv.Itoa(pageOrFirst(p.Page)))

	case KindHighTierEntries:
		if !IsApexTier(p.Tier) {
			return nil, fmt.Errorf("%w: %s requires an apex tier, got %q", ErrInvalidParams, kind, p.Tier)
		}
		path = fmt.Sprintf("/lol/league-exp/v4/entries/%s/%s/I", queue, strings.ToUpper(p.Tier))
		query.Set("page", strconv.Itoa(pageOrFirst(p.Page)))

	case KindApexLeague:
		segment, ok := apexTiers[strings.ToUpper(p.Tier)]
		if !ok {
			return nil, fmt.Errorf("%w: %s requires an apex tier, got %q", ErrInvalidParams, kind, p.Tier)
		}
		path = fmt.Sprintf("/lol/league/v4/%s/by-queue/%s", segment, queue)

	case KindSummonerByID:
		if p.SummonerID == "" {
			return nil, fmt.Errorf("%w: %s requires a summoner id", ErrInvalidParams, kind)
		}
		path = "/lol/summoner/v4/summoners/" + url.PathEscape(p.SummonerID)

	case KindMatchIDs:
		if p.PUUID == "" {
			return nil, fmt.Errorf("%w: %s requires a puuid", ErrInvalidParams, kind)
		}
		if p.Count <= 0 || p.Count > MaxMatchIDsPerPage {
			return nil, fmt.Errorf("%w: %s count must be 1..%d", ErrInvalidParams, kind, MaxMatchIDsPerPage)
		}
		path = fmt.Sprintf("/lol/match/v5/matches/by-puuid/%s/ids", url.PathEscape(p.PUUID))
		if !p.StartTime.IsZero() {
			query.Set("startTime", strconv.FormatInt(p.StartTime.Unix(), 10))
		}
		if p.QueueID > 0 {
			query.Set("queue", strconv.Itoa(p.QueueID))
		}
		query.Set("start", strconv.Itoa(p.Start))
		query.Set("count", strconv.Itoa(p.Count))

	case KindMatchDetail:
		if p.MatchID == "" {
			return nil, fmt.Errorf("%w: %s requires a match id", ErrInvalidParams, kind)
		}
		path = "/lol/match/v5/matches/" + url.PathEscape(p.MatchID)

	default:
		return nil, fmt.Errorf("%w: unknown endpoint kind %q", ErrInvalidParams, kind)
	}

	u := fmt.Sprintf(b.baseURLPattern, p.Host) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	header := make(http.Header)
	header.Set(TokenHeader, b.apiKey)
	header.Set("Accept", "application/json")

	return &Request{
		Kind:   kind,
		Host:   p.Host,
		Method: http.MethodGet,
		URL:    u,
		Header: header,
	}, nil
}

func pageOrFirst(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
