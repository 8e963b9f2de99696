package postgres

import (
	"context"
	"fmt"
)

// schemaVersion is the version this build's index maintenance logic
// expects. Bumping it and adding a migration that changes count
// semantics should be paired with a RecomputeCounts pass.
const schemaVersion = 1

// EnsureSchemaVersion seeds the schema_version table on first boot and
// reports whether a recompute is needed because the stored version is
// older than schemaVersion.
func (s *Store) EnsureSchemaVersion(ctx context.Context) (needsRecompute bool, err error) {
	var current int
	err = s.db.QueryRowxContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err != nil {
		if _, insertErr := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, schemaVersion); insertErr != nil {
			return false, fmt.Errorf("seed schema version: %w", insertErr)
		}
		return false, nil
	}
	return current < schemaVersion, nil
}

// RecomputeCounts rebuilds every denormalized count table from the raw
// event_links/event_references_bytes/lww_elements rows, for recovery
// after a bug in the incremental maintenance logic. It runs outside any
// caller transaction; callers should stop ingest while it runs.
func (s *Store) RecomputeCounts(ctx context.Context) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		statements := []string{
			`TRUNCATE count_references_pointer, count_references_bytes, count_lww_element_references_pointer, count_lww_element_references_bytes`,

			`INSERT INTO count_references_pointer (subject_system_key_type, subject_system_key, subject_process, subject_logical_clock, from_type, count)
			 SELECT el.subject_system_key_type, el.subject_system_key, el.subject_process, el.subject_logical_clock, el.link_content_type, COUNT(*)
			 FROM event_links el
			 GROUP BY el.subject_system_key_type, el.subject_system_key, el.subject_process, el.subject_logical_clock, el.link_content_type`,

			`INSERT INTO count_references_bytes (subject_bytes, from_type, count)
			 SELECT erb.subject_bytes, e.content_type, COUNT(*)
			 FROM event_references_bytes erb
			 JOIN events e ON e.id = erb.event_id
			 GROUP BY erb.subject_bytes, e.content_type`,

			`INSERT INTO count_lww_element_references_bytes (subject_bytes, from_type, value, count)
			 SELECT w.subject_bytes, w.content_type, le.value, 1
			 FROM lww_element_latest_reference_bytes w
			 JOIN lww_elements le ON le.event_id = w.event_id`,

			`INSERT INTO count_lww_element_references_pointer (subject_system_key_type, subject_system_key, subject_process, subject_logical_clock, from_type, value, count)
			 SELECT w.subject_system_key_type, w.subject_system_key, w.subject_process, w.subject_logical_clock, w.content_type, le.value, 1
			 FROM lww_element_latest_reference_pointer w
			 JOIN lww_elements le ON le.event_id = w.event_id`,

			`UPDATE schema_version SET version = 1`,
		}
		for _, stmt := range statements {
			if _, err := s.querier(ctx).ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("recompute counts: %w", err)
			}
		}
		return nil
	})
}
