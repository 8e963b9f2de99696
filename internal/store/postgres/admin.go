package postgres

import (
	"context"
	"fmt"
)

// CensorEvent hides a single event from all read paths without deleting
// its row, distinct from a DELETE event: censorship is an administrative
// act rather than an author-issued tombstone, and it does not reverse
// the event's index contributions.
func (s *Store) CensorEvent(ctx context.Context, eventID int64, reason string) error {
	q := s.querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO censored_events (event_id, reason, censored_at) VALUES ($1, $2, now())
		ON CONFLICT (event_id) DO UPDATE SET reason = EXCLUDED.reason, censored_at = now()
	`, eventID, reason)
	if err != nil {
		return fmt.Errorf("censor event: %w", err)
	}
	return nil
}

// CensorSystem hides every event of one system from all read paths.
func (s *Store) CensorSystem(ctx context.Context, systemKeyType uint64, systemKey []byte, reason string) error {
	q := s.querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO censored_systems (system_key_type, system_key, reason, censored_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (system_key_type, system_key) DO UPDATE SET reason = EXCLUDED.reason, censored_at = now()
	`, int64(systemKeyType), systemKey, reason)
	if err != nil {
		return fmt.Errorf("censor system: %w", err)
	}
	return nil
}

// PurgeSystem permanently deletes every event and all derived index rows
// for one system. Secondary-index rows disappear via
// their ON DELETE CASCADE to events; process_state is also cleared so the
// system's processes could in principle be reused.
func (s *Store) PurgeSystem(ctx context.Context, systemKeyType uint64, systemKey []byte) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.querier(ctx)
		if _, err := q.ExecContext(ctx, `DELETE FROM events WHERE system_key_type = $1 AND system_key = $2`, int64(systemKeyType), systemKey); err != nil {
			return fmt.Errorf("purge events: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM deletions WHERE system_key_type = $1 AND system_key = $2`, int64(systemKeyType), systemKey); err != nil {
			return fmt.Errorf("purge deletions: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			DELETE FROM process_state WHERE process IN (
				SELECT process FROM process_state WHERE system_key_type = $1 AND system_key = $2
			)
		`, int64(systemKeyType), systemKey); err != nil {
			return fmt.Errorf("purge process state: %w", err)
		}
		return nil
	})
}
