package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// ModerationCandidate is one row pulled off the moderation queue: the
// raw event bytes to classify.
type ModerationCandidate struct {
	EventID  int64
	RawEvent []byte
}

// SelectModerationCandidates locks and returns up to limit POST events
// eligible for classification: unprocessed rows first, then errored
// rows whose failure_count is under maxFailures and whose exponential
// backoff window (failure_count^2 hours, capped at one hour) has
// elapsed since their last failure. FOR UPDATE ... SKIP LOCKED lets
// multiple coordinators poll concurrently without double-claiming a
// row. Must be called with a transaction in ctx (see Store.WithTx);
// the caller is expected to follow this with MarkModerationProcessing
// in the same transaction.
func (s *Store) SelectModerationCandidates(ctx context.Context, contentType uint64, maxFailures, limit int) ([]ModerationCandidate, error) {
	rows, err := s.querier(ctx).QueryxContext(ctx, `
		SELECT e.id, e.raw_event
		FROM events e
		JOIN event_processing_status s ON s.event_id = e.id
		WHERE e.content_type = $1
		AND (
			s.status = 'unprocessed'
			OR (
				s.status = 'error'
				AND s.failure_count < $2
				AND EXTRACT(EPOCH FROM (now() - COALESCE(s.last_failure_at, 'epoch'))) >=
					LEAST(s.failure_count * s.failure_count * 3600, 3600)
			)
		)
		ORDER BY
			CASE WHEN s.status = 'unprocessed' THEN 0 ELSE 1 END,
			e.id ASC
		LIMIT $3
		FOR UPDATE OF s SKIP LOCKED
	`, int64(contentType), maxFailures, limit)
	if err != nil {
		return nil, fmt.Errorf("select moderation candidates: %w", err)
	}
	defer rows.Close()

	var out []ModerationCandidate
	for rows.Next() {
		var c ModerationCandidate
		if err := rows.Scan(&c.EventID, &c.RawEvent); err != nil {
			return nil, fmt.Errorf("scan moderation candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkModerationProcessing transitions eventIDs to 'processing'. Called
// within the same transaction as SelectModerationCandidates so a crash
// between the two never leaves a row claimed-but-not-marked.
func (s *Store) MarkModerationProcessing(ctx context.Context, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE event_processing_status
		SET status = 'processing', processing_started_at = now()
		WHERE event_id = ANY($1)
	`, pq.Array(eventIDs))
	if err != nil {
		return fmt.Errorf("mark moderation processing: %w", err)
	}
	return nil
}

// MarkModerationFailed moves eventID to 'error' and bumps its
// failure_count, recording now() as the backoff anchor for the next
// retry attempt.
func (s *Store) MarkModerationFailed(ctx context.Context, eventID int64) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE event_processing_status
		SET status = 'error', failure_count = failure_count + 1, last_failure_at = now()
		WHERE event_id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("mark moderation failed: %w", err)
	}
	return nil
}

// FinishModeration records a classifier's final verdict: status moves
// to approved or flagged_and_rejected, and moderation_tags is replaced
// with the JSON encoding of the given tag list.
func (s *Store) FinishModeration(ctx context.Context, eventID int64, status string, tags interface{}) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal moderation tags: %w", err)
	}
	_, err = s.querier(ctx).ExecContext(ctx, `
		UPDATE event_processing_status SET status = $2, moderation_tags = $3, processing_started_at = now() WHERE event_id = $1
	`, eventID, status, tagsJSON)
	if err != nil {
		return fmt.Errorf("finish moderation: %w", err)
	}
	return nil
}
