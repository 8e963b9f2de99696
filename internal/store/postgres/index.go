package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/futo-org/polycentric-sub000/internal/model"
)

// IndexEvent maintains every secondary index for a newly-inserted live
// event: links/reference-bytes rows and their denormalized counts,
// semantic indices, claim fields, and (if this event carries an LWW
// element) the per-subject LWW winner tables. It must run in the same
// transaction as InsertEvent.
func (s *Store) IndexEvent(ctx context.Context, eventID int64, ev model.Event) error {
	for _, ref := range ev.References {
		if err := s.recordReference(ctx, eventID, ev.ContentType, ref, +1); err != nil {
			return err
		}
	}

	for _, entry := range ev.Indices.Entries {
		if _, err := s.querier(ctx).ExecContext(ctx,
			`INSERT INTO event_indices (index_type, logical_clock, event_id) VALUES ($1, $2, $3)`,
			int64(entry.IndexType), int64(entry.LogicalClock), eventID); err != nil {
			return fmt.Errorf("record index entry: %w", err)
		}
	}

	content, err := ev.DecodeContent()
	if err != nil {
		return fmt.Errorf("decode content for indexing: %w", err)
	}
	if content.Claim != nil {
		fieldsJSON, err := json.Marshal(content.Claim.FieldsJSON())
		if err != nil {
			return fmt.Errorf("marshal claim fields: %w", err)
		}
		if _, err := s.querier(ctx).ExecContext(ctx,
			`INSERT INTO claims (claim_type, event_id, fields) VALUES ($1, $2, $3)`,
			int64(content.Claim.ClaimType), eventID, fieldsJSON); err != nil {
			return fmt.Errorf("record claim: %w", err)
		}
	}

	if ev.LWWElement != nil {
		if _, err := s.querier(ctx).ExecContext(ctx,
			`INSERT INTO lww_elements (event_id, value, unix_milliseconds) VALUES ($1, $2, $3)`,
			eventID, ev.LWWElement.Value, int64(ev.LWWElement.UnixMilliseconds)); err != nil {
			return fmt.Errorf("record lww element: %w", err)
		}

		if len(ev.References) > 0 {
			if err := s.upsertLWWWinner(ctx, eventID, ev, ev.References[0], ev.LWWElement.Value, ev.LWWElement.UnixMilliseconds); err != nil {
				return err
			}
		}
	}

	return nil
}

// UnindexEvent reverses IndexEvent's reference counts ahead of a delete.
// It does not touch any LWW table: LWW counts and the recorded winner
// are never decremented or reassigned on delete, only by a later event
// that wins outright per invariant 6. event_links/event_references_bytes/
// event_indices/claims/lww_elements rows themselves cascade away
// automatically via their event_id foreign key when the events row is
// deleted.
func (s *Store) UnindexEvent(ctx context.Context, eventID int64, ev model.Event) error {
	for _, ref := range ev.References {
		if err := s.recordReference(ctx, eventID, ev.ContentType, ref, -1); err != nil {
			return err
		}
	}
	return nil
}

// recordReference maintains both the raw link/reference-bytes row and
// its denormalized count, in either direction (delta = +1 on insert,
// -1 on delete-fanout).
func (s *Store) recordReference(ctx context.Context, eventID int64, fromType model.ContentType, ref model.Reference, delta int64) error {
	switch ref.Type {
	case model.ReferenceTypePointer:
		if delta > 0 {
			if _, err := s.querier(ctx).ExecContext(ctx, `
				INSERT INTO event_links (subject_system_key_type, subject_system_key, subject_process, subject_logical_clock, link_content_type, event_id)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, int64(ref.Pointer.System.Type), ref.Pointer.System.Bytes, ref.Pointer.Process.Bytes(), int64(ref.Pointer.LogicalClock), int64(fromType), eventID); err != nil {
				return fmt.Errorf("record event link: %w", err)
			}
		}
		return s.bumpCountPointer(ctx, ref.Pointer.System.Type, ref.Pointer.System.Bytes, ref.Pointer.Process, ref.Pointer.LogicalClock, fromType, delta)

	case model.ReferenceTypeSystem, model.ReferenceTypeBytes:
		subject := ref.SubjectBytes()
		if delta > 0 {
			if _, err := s.querier(ctx).ExecContext(ctx,
				`INSERT INTO event_references_bytes (subject_bytes, event_id) VALUES ($1, $2)`,
				subject, eventID); err != nil {
				return fmt.Errorf("record event reference bytes: %w", err)
			}
		}
		return s.bumpCountBytes(ctx, subject, fromType, delta)

	default:
		return nil
	}
}

func (s *Store) bumpCountPointer(ctx context.Context, subjectSystemType model.KeyType, subjectSystemKey []byte, subjectProcess model.Process, subjectClock uint64, fromType model.ContentType, delta int64) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO count_references_pointer (subject_system_key_type, subject_system_key, subject_process, subject_logical_clock, from_type, count)
		VALUES ($1, $2, $3, $4, $5, GREATEST($6, 0))
		ON CONFLICT (subject_system_key_type, subject_system_key, subject_process, subject_logical_clock, from_type)
		DO UPDATE SET count = GREATEST(count_references_pointer.count + $6, 0)
	`, int64(subjectSystemType), subjectSystemKey, subjectProcess.Bytes(), int64(subjectClock), int64(fromType), delta)
	if err != nil {
		return fmt.Errorf("bump pointer reference count: %w", err)
	}
	return nil
}

func (s *Store) bumpCountBytes(ctx context.Context, subject []byte, fromType model.ContentType, delta int64) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO count_references_bytes (subject_bytes, from_type, count)
		VALUES ($1, $2, GREATEST($3, 0))
		ON CONFLICT (subject_bytes, from_type)
		DO UPDATE SET count = GREATEST(count_references_bytes.count + $3, 0)
	`, subject, int64(fromType), delta)
	if err != nil {
		return fmt.Errorf("bump bytes reference count: %w", err)
	}
	return nil
}

// upsertLWWWinner records eventID as the winner for (system, content_type,
// subject) iff it beats the current incumbent per invariant 6, and keeps
// count_lww_element_references_* in step with any resulting value
// transition.
func (s *Store) upsertLWWWinner(ctx context.Context, eventID int64, ev model.Event, subject model.Reference, value []byte, unixMillis uint64) error {
	switch subject.Type {
	case model.ReferenceTypePointer:
		return s.upsertLWWWinnerPointer(ctx, eventID, ev, subject.Pointer, value, unixMillis)
	case model.ReferenceTypeSystem, model.ReferenceTypeBytes:
		return s.upsertLWWWinnerBytes(ctx, eventID, ev, subject.SubjectBytes(), value, unixMillis)
	default:
		return nil
	}
}

func (s *Store) upsertLWWWinnerBytes(ctx context.Context, eventID int64, ev model.Event, subject, value []byte, unixMillis uint64) error {
	var oldValue []byte
	err := s.querier(ctx).QueryRowxContext(ctx, `
		SELECT le.value FROM lww_element_latest_reference_bytes w
		JOIN lww_elements le ON le.event_id = w.event_id
		WHERE w.system_key_type = $1 AND w.system_key = $2 AND w.content_type = $3 AND w.subject_bytes = $4
	`, int64(ev.System.Type), ev.System.Bytes, int64(ev.ContentType), subject).Scan(&oldValue)
	hadWinner := err == nil
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("load lww winner: %w", err)
	}

	res, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO lww_element_latest_reference_bytes (system_key_type, system_key, content_type, subject_bytes, event_id, process, unix_milliseconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (system_key_type, system_key, content_type, subject_bytes) DO UPDATE SET
			event_id = EXCLUDED.event_id, process = EXCLUDED.process, unix_milliseconds = EXCLUDED.unix_milliseconds
		WHERE (lww_element_latest_reference_bytes.unix_milliseconds, lww_element_latest_reference_bytes.process)
		    < (EXCLUDED.unix_milliseconds, EXCLUDED.process)
	`, int64(ev.System.Type), ev.System.Bytes, int64(ev.ContentType), subject, eventID, ev.Process.Bytes(), int64(unixMillis))
	if err != nil {
		return fmt.Errorf("upsert lww winner bytes: %w", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lww winner rows affected: %w", err)
	}
	if changed == 0 {
		return nil
	}

	if hadWinner {
		if err := s.bumpLWWCountBytes(ctx, subject, ev.ContentType, oldValue, -1); err != nil {
			return err
		}
	}
	return s.bumpLWWCountBytes(ctx, subject, ev.ContentType, value, +1)
}

func (s *Store) upsertLWWWinnerPointer(ctx context.Context, eventID int64, ev model.Event, subject model.Pointer, value []byte, unixMillis uint64) error {
	var oldValue []byte
	err := s.querier(ctx).QueryRowxContext(ctx, `
		SELECT le.value FROM lww_element_latest_reference_pointer w
		JOIN lww_elements le ON le.event_id = w.event_id
		WHERE w.system_key_type = $1 AND w.system_key = $2 AND w.content_type = $3
		  AND w.subject_system_key_type = $4 AND w.subject_system_key = $5 AND w.subject_process = $6 AND w.subject_logical_clock = $7
	`, int64(ev.System.Type), ev.System.Bytes, int64(ev.ContentType),
		int64(subject.System.Type), subject.System.Bytes, subject.Process.Bytes(), int64(subject.LogicalClock)).Scan(&oldValue)
	hadWinner := err == nil
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("load lww winner: %w", err)
	}

	res, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO lww_element_latest_reference_pointer
			(system_key_type, system_key, content_type, subject_system_key_type, subject_system_key, subject_process, subject_logical_clock, event_id, process, unix_milliseconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (system_key_type, system_key, content_type, subject_system_key_type, subject_system_key, subject_process, subject_logical_clock) DO UPDATE SET
			event_id = EXCLUDED.event_id, process = EXCLUDED.process, unix_milliseconds = EXCLUDED.unix_milliseconds
		WHERE (lww_element_latest_reference_pointer.unix_milliseconds, lww_element_latest_reference_pointer.process)
		    < (EXCLUDED.unix_milliseconds, EXCLUDED.process)
	`, int64(ev.System.Type), ev.System.Bytes, int64(ev.ContentType),
		int64(subject.System.Type), subject.System.Bytes, subject.Process.Bytes(), int64(subject.LogicalClock),
		eventID, ev.Process.Bytes(), int64(unixMillis))
	if err != nil {
		return fmt.Errorf("upsert lww winner pointer: %w", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lww winner rows affected: %w", err)
	}
	if changed == 0 {
		return nil
	}

	if hadWinner {
		if err := s.bumpLWWCountPointer(ctx, subject, ev.ContentType, oldValue, -1); err != nil {
			return err
		}
	}
	return s.bumpLWWCountPointer(ctx, subject, ev.ContentType, value, +1)
}

func (s *Store) bumpLWWCountPointer(ctx context.Context, subject model.Pointer, fromType model.ContentType, value []byte, delta int64) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO count_lww_element_references_pointer (subject_system_key_type, subject_system_key, subject_process, subject_logical_clock, from_type, value, count)
		VALUES ($1, $2, $3, $4, $5, $6, GREATEST($7, 0))
		ON CONFLICT (subject_system_key_type, subject_system_key, subject_process, subject_logical_clock, from_type, value)
		DO UPDATE SET count = GREATEST(count_lww_element_references_pointer.count + $7, 0)
	`, int64(subject.System.Type), subject.System.Bytes, subject.Process.Bytes(), int64(subject.LogicalClock), int64(fromType), value, delta)
	if err != nil {
		return fmt.Errorf("bump lww count pointer: %w", err)
	}
	return nil
}

func (s *Store) bumpLWWCountBytes(ctx context.Context, subject []byte, fromType model.ContentType, value []byte, delta int64) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO count_lww_element_references_bytes (subject_bytes, from_type, value, count)
		VALUES ($1, $2, $3, GREATEST($4, 0))
		ON CONFLICT (subject_bytes, from_type, value)
		DO UPDATE SET count = GREATEST(count_lww_element_references_bytes.count + $4, 0)
	`, subject, int64(fromType), value, delta)
	if err != nil {
		return fmt.Errorf("bump lww count: %w", err)
	}
	return nil
}

