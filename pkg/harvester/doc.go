// Package harvester contains the two long-running workers of the pipeline.
//
// A LadderWorker owns one shard. Each cycle it checks whether the shard's
// region has any player (seeding the first resolvable ladder entry when it
// has none), crawls the apex tiers and then every tier and division page by
// page, and records a rating only when a player's standing changed. It then
// idles for ladder.idle_interval.
//
// A MatchWorker owns one region. It waits until the region has a player,
// then loops over the region's players, lists their match ids since their
// last fetch, stores every unseen match with its participants and advances
// the player's last fetch to the newest match stored.
//
// Both workers only return on context cancellation or on a fatal error
// (see errors.IsFatal). Every other failure is logged and counted in the
// cycle summary.
package harvester
