// Package history persists observed channel level changes to SQLite.
//
// Every level change the bridge observes (from polling or after a command)
// is appended to the level_history table. Entries keep the hub's textual
// values untouched so history rows always match what was published on the
// state topics.
//
// Usage:
//
//	store := history.NewStore(db)
//	err := store.RecordLevel(ctx, "5", "2", "1", "128", "128", "poll")
//
//	entries, err := store.GetHistory(ctx, "5", "2", 50)
//
//	removed, err := store.Prune(ctx, 30*24*time.Hour)
//
// Retention is enforced by Prune, typically called periodically from the
// main process using the configured retention window.
package history
