package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

// StoredEvent is one row as persisted in the events table, with the
// raw signed-event bytes the caller decodes with model.DecodeSignedEvent.
type StoredEvent struct {
	ID               int64
	SystemKeyType    uint64
	SystemKey        []byte
	Process          model.Process
	LogicalClock     uint64
	ContentType      uint64
	RawEvent         []byte
	UnixMilliseconds *uint64
}

// Range describes a contiguous run of logical clock values this server
// holds for one process, inclusive on both ends.
type Range struct {
	Process model.Process
	Low     uint64
	High    uint64
}

// InsertEvent persists a signed event. Uniqueness on
// (system_key_type, system_key, process, logical_clock) makes a
// duplicate insert a no-op that returns the existing row's id, so
// callers don't need a separate existence check under the advisory
// lock.
func (s *Store) InsertEvent(ctx context.Context, se model.SignedEvent, ev model.Event) (int64, error) {
	raw := se.Encode()

	var unixMillis sql.NullInt64
	if ev.UnixMilliseconds != nil {
		unixMillis = sql.NullInt64{Int64: int64(*ev.UnixMilliseconds), Valid: true}
	}

	var id int64
	err := s.querier(ctx).QueryRowxContext(ctx, `
		INSERT INTO events (system_key_type, system_key, process, logical_clock, content_type, raw_event, unix_milliseconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (system_key_type, system_key, process, logical_clock) DO UPDATE SET system_key_type = events.system_key_type
		RETURNING id
	`, int64(ev.System.Type), ev.System.Bytes, ev.Process.Bytes(), int64(ev.LogicalClock), int64(ev.ContentType), raw, unixMillis).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if _, err := s.querier(ctx).ExecContext(ctx,
		`INSERT INTO event_processing_status (event_id, status) VALUES ($1, 'unprocessed') ON CONFLICT (event_id) DO NOTHING`,
		id); err != nil {
		return 0, fmt.Errorf("seed processing status: %w", err)
	}

	return id, nil
}

// DeleteEvent moves the coordinate (system, process, logical_clock)
// from events into deletions, mirroring content_type and
// unix_milliseconds of the removed event, per invariant 4. A coordinate
// with no live row still gets its tombstone; one already tombstoned is
// left unchanged.
func (s *Store) DeleteEvent(ctx context.Context, systemKeyType uint64, systemKey []byte, process model.Process, logicalClock, contentType uint64, unixMilliseconds *uint64, rawDeleteEvent []byte) error {
	var millis sql.NullInt64
	if unixMilliseconds != nil {
		millis = sql.NullInt64{Int64: int64(*unixMilliseconds), Valid: true}
	}

	res, err := s.querier(ctx).ExecContext(ctx,
		`DELETE FROM events WHERE system_key_type = $1 AND system_key = $2 AND process = $3 AND logical_clock = $4`,
		int64(systemKeyType), systemKey, process.Bytes(), int64(logicalClock))
	if err != nil {
		return fmt.Errorf("delete event row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Already gone; still ensure the tombstone exists so range
		// computation reflects it (e.g. a retried delete).
	}

	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO deletions (system_key_type, system_key, process, logical_clock, content_type, unix_milliseconds, raw_delete_event)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (system_key_type, system_key, process, logical_clock) DO NOTHING
	`, int64(systemKeyType), systemKey, process.Bytes(), int64(logicalClock), int64(contentType), millis, rawDeleteEvent)
	if err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}
	return nil
}

// DoesEventExist reports whether a live (non-tombstoned) event occupies
// this coordinate.
func (s *Store) DoesEventExist(ctx context.Context, systemKeyType uint64, systemKey []byte, process model.Process, logicalClock uint64) (bool, error) {
	var exists bool
	err := s.querier(ctx).QueryRowxContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE system_key_type = $1 AND system_key = $2 AND process = $3 AND logical_clock = $4)`,
		int64(systemKeyType), systemKey, process.Bytes(), int64(logicalClock)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("does event exist: %w", err)
	}
	return exists, nil
}

// IsEventDeleted reports whether this coordinate has a tombstone.
func (s *Store) IsEventDeleted(ctx context.Context, systemKeyType uint64, systemKey []byte, process model.Process, logicalClock uint64) (bool, error) {
	var exists bool
	err := s.querier(ctx).QueryRowxContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM deletions WHERE system_key_type = $1 AND system_key = $2 AND process = $3 AND logical_clock = $4)`,
		int64(systemKeyType), systemKey, process.Bytes(), int64(logicalClock)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is event deleted: %w", err)
	}
	return exists, nil
}

// LoadEvent returns the stored row at this coordinate, or (nil, nil)
// if absent (deleted or never ingested) — callers distinguish the two
// with IsEventDeleted when they need to.
func (s *Store) LoadEvent(ctx context.Context, systemKeyType uint64, systemKey []byte, process model.Process, logicalClock uint64) (*StoredEvent, error) {
	row := s.querier(ctx).QueryRowxContext(ctx, `
		SELECT id, system_key_type, system_key, process, logical_clock, content_type, raw_event, unix_milliseconds
		FROM events WHERE system_key_type = $1 AND system_key = $2 AND process = $3 AND logical_clock = $4
	`, int64(systemKeyType), systemKey, process.Bytes(), int64(logicalClock))

	ev, err := scanStoredEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	return ev, nil
}

// LoadEventByPointer is a convenience wrapper over LoadEvent for a
// model.Pointer.
func (s *Store) LoadEventByPointer(ctx context.Context, p model.Pointer) (*StoredEvent, error) {
	return s.LoadEvent(ctx, p.System.Type, p.System.Bytes, p.Process, p.LogicalClock)
}

// AdvanceProcessState records the highest logical clock this server has
// seen for (system, process). It enforces invariant 3 (process
// ownership) by refusing to attach a process already bound to a
// different system.
func (s *Store) AdvanceProcessState(ctx context.Context, systemKeyType uint64, systemKey []byte, process model.Process, logicalClock uint64) error {
	var existingType int64
	var existingKey []byte
	err := s.querier(ctx).QueryRowxContext(ctx,
		`SELECT system_key_type, system_key FROM process_state WHERE process = $1`,
		process.Bytes()).Scan(&existingType, &existingKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.querier(ctx).ExecContext(ctx,
			`INSERT INTO process_state (process, system_key_type, system_key, logical_clock) VALUES ($1, $2, $3, $4)`,
			process.Bytes(), int64(systemKeyType), systemKey, int64(logicalClock))
		if err != nil {
			return fmt.Errorf("insert process state: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("load process state: %w", err)
	}

	if existingType != int64(systemKeyType) || !bytesEqual(existingKey, systemKey) {
		return svcerr.New(svcerr.CodeProcessOwnership, "process already bound to a different system")
	}

	_, err = s.querier(ctx).ExecContext(ctx,
		`UPDATE process_state SET logical_clock = GREATEST(logical_clock, $2) WHERE process = $1`,
		process.Bytes(), int64(logicalClock))
	if err != nil {
		return fmt.Errorf("advance process state: %w", err)
	}
	return nil
}

// LoadProcessesForSystem lists every process this server has observed
// writing to systemKey.
func (s *Store) LoadProcessesForSystem(ctx context.Context, systemKeyType uint64, systemKey []byte) ([]model.Process, error) {
	rows, err := s.querier(ctx).QueryxContext(ctx,
		`SELECT process FROM process_state WHERE system_key_type = $1 AND system_key = $2`,
		int64(systemKeyType), systemKey)
	if err != nil {
		return nil, fmt.Errorf("load processes for system: %w", err)
	}
	defer rows.Close()

	var out []model.Process
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		p, err := model.ProcessFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode process: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// KnownRangesForSystem computes the contiguous logical-clock ranges
// this server holds per process for a system, counting both live events
// and tombstones as "known". Grounded directly on
// known_ranges_for_system's run-length-by-subtraction trick: within a
// process, numbering events by logical clock order and grouping on
// (logical_clock - row_number) collapses any consecutive run into a
// single group, because consecutive clocks minus their consecutive row
// numbers are constant.
func (s *Store) KnownRangesForSystem(ctx context.Context, systemKeyType uint64, systemKey []byte) ([]Range, error) {
	rows, err := s.querier(ctx).QueryxContext(ctx, `
		WITH combined AS (
			SELECT process, logical_clock FROM events WHERE system_key_type = $1 AND system_key = $2
			UNION ALL
			SELECT process, logical_clock FROM deletions WHERE system_key_type = $1 AND system_key = $2
		),
		numbered AS (
			SELECT process, logical_clock,
			       ROW_NUMBER() OVER (PARTITION BY process ORDER BY logical_clock) AS rn
			FROM combined
		)
		SELECT process, MIN(logical_clock) AS low, MAX(logical_clock) AS high
		FROM numbered
		GROUP BY process, logical_clock - rn
		ORDER BY process, low
	`, int64(systemKeyType), systemKey)
	if err != nil {
		return nil, fmt.Errorf("known ranges for system: %w", err)
	}
	defer rows.Close()

	var out []Range
	for rows.Next() {
		var rawProcess []byte
		var low, high int64
		if err := rows.Scan(&rawProcess, &low, &high); err != nil {
			return nil, fmt.Errorf("scan range: %w", err)
		}
		p, err := model.ProcessFromBytes(rawProcess)
		if err != nil {
			return nil, fmt.Errorf("decode process: %w", err)
		}
		out = append(out, Range{Process: p, Low: uint64(low), High: uint64(high)})
	}
	return out, rows.Err()
}

// LoadEventsAfterID returns up to limit events with id > afterID,
// ordered by id, for cursor-paginated exploration.
func (s *Store) LoadEventsAfterID(ctx context.Context, afterID int64, limit int) ([]StoredEvent, error) {
	rows, err := s.querier(ctx).QueryxContext(ctx, `
		SELECT id, system_key_type, system_key, process, logical_clock, content_type, raw_event, unix_milliseconds
		FROM events WHERE id > $1 ORDER BY id ASC LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("load events after id: %w", err)
	}
	defer rows.Close()
	return scanStoredEvents(rows)
}

// LoadLatestSystemWideLWWEventByType returns the current LWW winner for
// (system, content_type), i.e. the row whose (unix_milliseconds,
// process) is greatest per invariant 6 — equivalently, the row
// referenced by lww_element_latest_reference_bytes/pointer keyed on
// this (system, content_type) with an empty/self subject, OR (more
// simply, since these are system-wide singleton fields such as
// username) just the newest row of that content type for the system.
func (s *Store) LoadLatestSystemWideLWWEventByType(ctx context.Context, systemKeyType uint64, systemKey []byte, contentType uint64) (*StoredEvent, error) {
	row := s.querier(ctx).QueryRowxContext(ctx, `
		SELECT id, system_key_type, system_key, process, logical_clock, content_type, raw_event, unix_milliseconds
		FROM events
		WHERE system_key_type = $1 AND system_key = $2 AND content_type = $3
		ORDER BY unix_milliseconds DESC NULLS LAST, process DESC
		LIMIT 1
	`, int64(systemKeyType), systemKey, int64(contentType))

	ev, err := scanStoredEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest lww event: %w", err)
	}
	return ev, nil
}

// CountEventsForSystem returns the total number of live events stored
// for a system.
func (s *Store) CountEventsForSystem(ctx context.Context, systemKeyType uint64, systemKey []byte) (int64, error) {
	var count int64
	err := s.querier(ctx).QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM events WHERE system_key_type = $1 AND system_key = $2`,
		int64(systemKeyType), systemKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events for system: %w", err)
	}
	return count, nil
}

// LoadEventsInRange returns every live event of one process whose
// logical clock falls within [low, high], for GET /events' ranges-based
// fetch (a client already knows which ranges it wants via /ranges).
func (s *Store) LoadEventsInRange(ctx context.Context, systemKeyType uint64, systemKey []byte, process model.Process, low, high uint64) ([]StoredEvent, error) {
	rows, err := s.querier(ctx).QueryxContext(ctx, `
		SELECT id, system_key_type, system_key, process, logical_clock, content_type, raw_event, unix_milliseconds
		FROM events
		WHERE system_key_type = $1 AND system_key = $2 AND process = $3 AND logical_clock BETWEEN $4 AND $5
		ORDER BY logical_clock ASC
	`, int64(systemKeyType), systemKey, process.Bytes(), int64(low), int64(high))
	if err != nil {
		return nil, fmt.Errorf("load events in range: %w", err)
	}
	defer rows.Close()
	return scanStoredEvents(rows)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
