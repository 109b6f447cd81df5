// Package storage is the persistence gateway of the harvester.
//
// Gateway is the narrow interface the workers write through. Three
// implementations exist:
//   - Postgres, on a pgx connection pool
//   - SQLite, a single file opened through modernc.org/sqlite
//   - Memory, for tests and dry runs
//
// Open picks one from a DSN. The SQL gateways apply their migrations on
// open and record them in schema_migrations.
//
// Two invariants hold for every implementation: UpsertRatingIfChanged
// writes nothing when the standing is unchanged, and InsertMatch is a no-op
// for a match id already stored. A match and its participant rows are
// written in one transaction.
//
// Usage:
//
//	gw, err := storage.Open(ctx, "ladderharvest.db", 20)
//	if err != nil {
//	    return err
//	}
//	defer gw.Close()
//
//	written, err := gw.UpsertRatingIfChanged(ctx, rating)
package storage
