package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/rako-bridge/internal/infrastructure/database"
)

// Query limits.
const (
	// defaultLimit is used when the caller passes a non-positive limit.
	defaultLimit = 100

	// maxLimit caps the number of rows a single query can return.
	maxLimit = 1000
)

// Entry is one recorded level change for a channel.
//
// Room, channel, scene and level values are the hub's textual
// representations, stored verbatim.
type Entry struct {
	ID          int64     `json:"id"`
	RoomID      string    `json:"room_id"`
	ChannelID   string    `json:"channel_id"`
	Scene       string    `json:"scene"`
	Level       string    `json:"level"`
	TargetLevel string    `json:"target_level"`
	Source      string    `json:"source"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Store persists level history in SQLite.
//
// Thread Safety:
//   - All methods are safe for concurrent use; the underlying connection
//     pool serialises writes.
type Store struct {
	db *database.DB
}

// NewStore creates a history store backed by the given database.
// The level_history table must exist (created by migrations).
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// RecordLevel appends a level change observation.
//
// Parameters:
//   - roomID, channelID: Hub identifiers for the channel (textual)
//   - scene: Scene number reported by the hub
//   - level: Current brightness value
//   - target: Target brightness value (equals level when not fading)
//   - source: What produced the observation, e.g. "poll" or "command"
//
// Returns:
//   - error: ErrInvalidEntry if identifiers are empty, or a wrapped write error
func (s *Store) RecordLevel(ctx context.Context, roomID, channelID, scene, level, target, source string) error {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(channelID) == "" {
		return fmt.Errorf("%w: room and channel are required", ErrInvalidEntry)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO level_history (room_id, channel_id, scene, level, target_level, source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, roomID, channelID, scene, level, target, source, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording level for room %s channel %s: %w", roomID, channelID, err)
	}
	return nil
}

// GetHistory returns recorded entries for a channel, newest first.
//
// Parameters:
//   - roomID, channelID: Hub identifiers for the channel
//   - limit: Maximum rows to return; non-positive uses the default,
//     values above the cap are clamped
//
// Returns:
//   - []Entry: Entries ordered newest first (may be empty)
//   - error: Wrapped ErrQueryFailed on failure
func (s *Store) GetHistory(ctx context.Context, roomID, channelID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, channel_id, scene, level, target_level, source, recorded_at
		FROM level_history
		WHERE room_id = ? AND channel_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, roomID, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iterator cleanup

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.RoomID, &e.ChannelID, &e.Scene, &e.Level, &e.TargetLevel, &e.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %w", ErrQueryFailed, err)
		}
		// Timestamps are written by RecordLevel in RFC3339, parse failures
		// leave the zero time rather than dropping the row.
		e.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt) //nolint:errcheck // Format is controlled
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return entries, nil
}

// Prune deletes entries older than the retention window.
//
// Parameters:
//   - retention: Entries recorded earlier than now-retention are removed.
//     Zero or negative disables pruning (nothing is deleted).
//
// Returns:
//   - int64: Number of rows removed
//   - error: Wrapped write error on failure
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM level_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return removed, nil
}

// Count returns the total number of stored entries.
// Useful for monitoring retention behaviour.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM level_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return count, nil
}
