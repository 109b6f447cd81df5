// Package riot is the client for the ranked ladder, summoner and match
// endpoints of the Riot Games API.
//
// RequestBuilder.BuildRequest turns an endpoint kind and parameters into an
// authenticated Request without any I/O. Client.Fetch sends a Request: each
// attempt waits on the shared limiter of the request's routing host, then on
// the endpoint's method limiter, then issues the call. Responses are mapped
// to typed errors from pkg/errors, and the retry policy from pkg/retry
// decides what is tried again.
//
// Ladder and summoner endpoints are routed by shard (na1, euw1, kr, ...).
// Match endpoints are routed by macro-region (americas, europe, asia, sea).
package riot
