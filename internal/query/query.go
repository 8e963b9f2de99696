// Package query implements the read surface: range sync,
// reference/claim lookups, the cross-process proof algorithm, identity
// handle resolution, and a couple of supplemented convenience queries.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/bits"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/moderation"
	"github.com/futo-org/polycentric-sub000/internal/store/postgres"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

// Engine answers read queries against one Store, filtering out events a
// moderation decision or a censor action has hidden.
type Engine struct {
	Store     *postgres.Store
	Moderator moderation.Filter
}

// New builds a query Engine. moderator may be nil, in which case no
// moderation filtering is applied (suitable for an internal/trusted
// deployment or for tests).
func New(store *postgres.Store, moderator moderation.Filter) *Engine {
	return &Engine{Store: store, Moderator: moderator}
}

// KnownRangeSync returns the contiguous logical-clock ranges this server
// holds for every process of a system, for a client to diff against its
// own ranges and request only what it's missing.
func (q *Engine) KnownRangeSync(ctx context.Context, system model.PublicKey) ([]postgres.Range, error) {
	return q.Store.KnownRangesForSystem(ctx, uint64(system.Type), system.Bytes)
}

// SystemHead returns, for every process of a system, the highest
// logical clock this server has observed.
func (q *Engine) SystemHead(ctx context.Context, system model.PublicKey) (map[model.Process]uint64, error) {
	processes, err := q.Store.LoadProcessesForSystem(ctx, uint64(system.Type), system.Bytes)
	if err != nil {
		return nil, err
	}
	ranges, err := q.Store.KnownRangesForSystem(ctx, uint64(system.Type), system.Bytes)
	if err != nil {
		return nil, err
	}
	heads := make(map[model.Process]uint64, len(processes))
	for _, p := range processes {
		heads[p] = 0
	}
	for _, r := range ranges {
		if r.High > heads[r.Process] {
			heads[r.Process] = r.High
		}
	}
	return heads, nil
}

// EventPage is one page of events returned from a range/cursor query,
// along with the resolved SignedEvent ready for wire transfer.
type EventPage struct {
	Events     []model.SignedEvent
	NextCursor int64
}

// Explore pages through every live event this server holds, ordered by
// insertion order, for discovery/backfill surfaces. afterID is the
// previous page's NextCursor (0 to start from the beginning).
func (q *Engine) Explore(ctx context.Context, afterID int64, limit int) (EventPage, error) {
	rows, err := q.Store.LoadEventsAfterID(ctx, afterID, limit)
	if err != nil {
		return EventPage{}, err
	}
	return q.toPage(ctx, rows)
}

// QueryReferences returns every event that references subject with
// from_type == fromType, cursor-paginated by event id, together with the
// current denormalized count.
func (q *Engine) QueryReferences(ctx context.Context, subject model.Reference, fromType model.ContentType, afterID int64, limit int) (EventPage, int64, error) {
	var (
		rows  []postgres.StoredEvent
		count int64
		err   error
	)

	switch subject.Type {
	case model.ReferenceTypePointer:
		rows, count, err = q.queryReferencesPointer(ctx, subject.Pointer, fromType, afterID, limit)
	default:
		rows, count, err = q.queryReferencesBytes(ctx, subject.SubjectBytes(), fromType, afterID, limit)
	}
	if err != nil {
		return EventPage{}, 0, err
	}

	page, err := q.toPage(ctx, rows)
	return page, count, err
}

func (q *Engine) queryReferencesBytes(ctx context.Context, subject []byte, fromType model.ContentType, afterID int64, limit int) ([]postgres.StoredEvent, int64, error) {
	db := q.Store.DB()

	var count int64
	if err := db.QueryRowxContext(ctx,
		`SELECT count FROM count_references_bytes WHERE subject_bytes = $1 AND from_type = $2`,
		subject, int64(fromType)).Scan(&count); err != nil && err != sql.ErrNoRows {
		return nil, 0, fmt.Errorf("count references: %w", err)
	}

	rows, err := db.QueryxContext(ctx, `
		SELECT e.id, e.system_key_type, e.system_key, e.process, e.logical_clock, e.content_type, e.raw_event, e.unix_milliseconds
		FROM event_references_bytes erb
		JOIN events e ON e.id = erb.event_id
		WHERE erb.subject_bytes = $1 AND e.content_type = $2 AND e.id > $3
		ORDER BY e.id ASC LIMIT $4
	`, subject, int64(fromType), afterID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query references bytes: %w", err)
	}
	stored, err := scanAll(rows)
	return stored, count, err
}

func (q *Engine) queryReferencesPointer(ctx context.Context, p model.Pointer, fromType model.ContentType, afterID int64, limit int) ([]postgres.StoredEvent, int64, error) {
	db := q.Store.DB()

	var count int64
	if err := db.QueryRowxContext(ctx, `
		SELECT count FROM count_references_pointer
		WHERE subject_system_key_type = $1 AND subject_system_key = $2 AND subject_process = $3 AND subject_logical_clock = $4 AND from_type = $5
	`, int64(p.System.Type), p.System.Bytes, p.Process.Bytes(), int64(p.LogicalClock), int64(fromType)).Scan(&count); err != nil && err != sql.ErrNoRows {
		return nil, 0, fmt.Errorf("count references: %w", err)
	}

	rows, err := db.QueryxContext(ctx, `
		SELECT e.id, e.system_key_type, e.system_key, e.process, e.logical_clock, e.content_type, e.raw_event, e.unix_milliseconds
		FROM event_links el
		JOIN events e ON e.id = el.event_id
		WHERE el.subject_system_key_type = $1 AND el.subject_system_key = $2 AND el.subject_process = $3 AND el.subject_logical_clock = $4
		  AND el.link_content_type = $5 AND e.id > $6
		ORDER BY e.id ASC LIMIT $7
	`, int64(p.System.Type), p.System.Bytes, p.Process.Bytes(), int64(p.LogicalClock), int64(fromType), afterID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query references pointer: %w", err)
	}
	stored, err := scanAll(rows)
	return stored, count, err
}

// QueryLatest returns the current LWW winner for (system, content_type)
// system-wide fields such as username/description, not cursor-paginated
// since there is at most one live answer.
func (q *Engine) QueryLatest(ctx context.Context, system model.PublicKey, contentType model.ContentType) (*model.SignedEvent, error) {
	row, err := q.Store.LoadLatestSystemWideLWWEventByType(ctx, uint64(system.Type), system.Bytes, uint64(contentType))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	if hidden, err := q.isHidden(ctx, row.ID); err != nil || hidden {
		return nil, err
	}
	se, err := model.DecodeSignedEvent(row.RawEvent)
	if err != nil {
		return nil, err
	}
	return &se, nil
}

// IndexResult pairs the window of events matching a time-indexed query
// with bracketing proof events drawn from every other process of the
// system.
type IndexResult struct {
	Events []model.SignedEvent
	Proof  []model.SignedEvent
}

// QueryIndex implements the time-indexed per-content-type read path:
// up to limit events of (system, content_type), drawn from the union
// of live events and tombstones so a caller also learns about deleted
// events in its window, newest first, with unix_milliseconds < after
// when after is given. If the window is non-empty, each process other
// than the author of the window's newest event contributes the event
// closest at or after that timestamp, and each process other than the
// author of the oldest event the one closest at or before its
// timestamp, so a client can tell the window isn't silently missing that
// process's activity without fetching its whole log. Grounded on
// query_index's load_events_by_time/load_event_later_than/
// load_event_earlier_than three-query shape.
func (q *Engine) QueryIndex(ctx context.Context, system model.PublicKey, contentType model.ContentType, after *uint64, limit int) (IndexResult, error) {
	stored, err := q.loadIndexEventsByTime(ctx, system, contentType, after, limit)
	if err != nil {
		return IndexResult{}, err
	}
	if len(stored) == 0 {
		return IndexResult{}, nil
	}

	var result IndexResult
	for _, ev := range stored {
		se, err := model.DecodeSignedEvent(ev.RawEvent)
		if err != nil {
			return IndexResult{}, err
		}
		result.Events = append(result.Events, se)
	}

	latest, earliest := stored[0], stored[len(stored)-1]
	if latest.UnixMilliseconds == nil || earliest.UnixMilliseconds == nil {
		return result, nil
	}

	processes, err := q.Store.LoadProcessesForSystem(ctx, uint64(system.Type), system.Bytes)
	if err != nil {
		return IndexResult{}, err
	}
	for _, p := range processes {
		if p != latest.Process {
			se, err := q.loadIndexBoundaryEvent(ctx, system, p, contentType, *latest.UnixMilliseconds, true)
			if err != nil {
				return IndexResult{}, err
			}
			if se != nil {
				result.Proof = append(result.Proof, *se)
			}
		}
		if p != earliest.Process {
			se, err := q.loadIndexBoundaryEvent(ctx, system, p, contentType, *earliest.UnixMilliseconds, false)
			if err != nil {
				return IndexResult{}, err
			}
			if se != nil {
				result.Proof = append(result.Proof, *se)
			}
		}
	}
	return result, nil
}

func (q *Engine) loadIndexEventsByTime(ctx context.Context, system model.PublicKey, contentType model.ContentType, after *uint64, limit int) ([]postgres.StoredEvent, error) {
	var afterArg interface{}
	if after != nil {
		afterArg = int64(*after)
	}

	rows, err := q.Store.DB().QueryxContext(ctx, `
		SELECT id, system_key_type, system_key, process, logical_clock, content_type, raw_event, unix_milliseconds, 'event' AS source
		FROM events
		WHERE system_key_type = $1 AND system_key = $2 AND content_type = $3
		  AND ($4::bigint IS NULL OR unix_milliseconds < $4)
		UNION ALL
		SELECT id, system_key_type, system_key, process, logical_clock, content_type, raw_delete_event, unix_milliseconds, 'deletion' AS source
		FROM deletions
		WHERE system_key_type = $1 AND system_key = $2 AND content_type = $3 AND raw_delete_event IS NOT NULL
		  AND ($4::bigint IS NULL OR unix_milliseconds < $4)
		ORDER BY unix_milliseconds DESC, process DESC, logical_clock DESC
		LIMIT $5
	`, int64(system.Type), system.Bytes, int64(contentType), afterArg, limit)
	if err != nil {
		return nil, fmt.Errorf("query index window: %w", err)
	}
	defer rows.Close()

	var out []postgres.StoredEvent
	for rows.Next() {
		ev, source, err := scanIndexRow(rows)
		if err != nil {
			return nil, err
		}
		if source == "event" {
			hidden, err := q.isHidden(ctx, ev.ID)
			if err != nil {
				return nil, err
			}
			if hidden {
				continue
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// loadIndexBoundaryEvent returns the one event of process, for the same
// (system, content_type), closest past thresholdMillis in the
// direction named by later: ascending from thresholdMillis when later,
// descending from it otherwise. It draws from the same events+
// deletions union as loadIndexEventsByTime.
func (q *Engine) loadIndexBoundaryEvent(ctx context.Context, system model.PublicKey, process model.Process, contentType model.ContentType, thresholdMillis uint64, later bool) (*model.SignedEvent, error) {
	cmp, order := "<=", "DESC"
	if later {
		cmp, order = ">=", "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, system_key_type, system_key, process, logical_clock, content_type, raw_event, unix_milliseconds, 'event' AS source
		FROM events
		WHERE system_key_type = $1 AND system_key = $2 AND process = $3 AND content_type = $4 AND unix_milliseconds %s $5
		UNION ALL
		SELECT id, system_key_type, system_key, process, logical_clock, content_type, raw_delete_event, unix_milliseconds, 'deletion' AS source
		FROM deletions
		WHERE system_key_type = $1 AND system_key = $2 AND process = $3 AND content_type = $4 AND raw_delete_event IS NOT NULL AND unix_milliseconds %s $5
		ORDER BY unix_milliseconds %s, logical_clock %s
		LIMIT 1
	`, cmp, cmp, order, order)

	rows, err := q.Store.DB().QueryxContext(ctx, query,
		int64(system.Type), system.Bytes, process.Bytes(), int64(contentType), int64(thresholdMillis))
	if err != nil {
		return nil, fmt.Errorf("query index boundary: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}

	ev, source, err := scanIndexRow(rows)
	if err != nil {
		return nil, err
	}
	if source == "event" {
		hidden, err := q.isHidden(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		if hidden {
			return nil, nil
		}
	}
	se, err := model.DecodeSignedEvent(ev.RawEvent)
	if err != nil {
		return nil, err
	}
	return &se, nil
}

func scanIndexRow(rows *sqlx.Rows) (postgres.StoredEvent, string, error) {
	var (
		ev            postgres.StoredEvent
		rawProcess    []byte
		systemKeyType int64
		logicalClock  int64
		contentType   int64
		rawEvent      []byte
		unixMillis    sql.NullInt64
		source        string
	)
	if err := rows.Scan(&ev.ID, &systemKeyType, &ev.SystemKey, &rawProcess, &logicalClock, &contentType, &rawEvent, &unixMillis, &source); err != nil {
		return postgres.StoredEvent{}, "", fmt.Errorf("scan index row: %w", err)
	}
	process, err := model.ProcessFromBytes(rawProcess)
	if err != nil {
		return postgres.StoredEvent{}, "", fmt.Errorf("decode process: %w", err)
	}
	ev.Process = process
	ev.SystemKeyType = uint64(systemKeyType)
	ev.LogicalClock = uint64(logicalClock)
	ev.ContentType = uint64(contentType)
	ev.RawEvent = rawEvent
	if unixMillis.Valid {
		v := uint64(unixMillis.Int64)
		ev.UnixMilliseconds = &v
	}
	return ev, source, nil
}

// claimVouchMatch pairs one CLAIM event with the VOUCH event, authored
// by the query's trust root, that corroborates it.
type claimVouchMatch struct {
	Claim model.SignedEvent
	Vouch model.SignedEvent
}

// queryClaimVouchJoin is the shared shape behind QueryClaim and
// FindClaimAndVouch: find CLAIM events of claimType matching either
// matchAnyField (a single string present as any field value) or
// matchAllFields (a field set the claim's fields must contain),
// joined through event_links to a corroborating VOUCH event authored
// by trustRoot, optionally scoped to claims authored by claimSystem.
// Grounded on query_claims_match_any_field/query_claims_match_all_fields.
func (q *Engine) queryClaimVouchJoin(ctx context.Context, claimType uint64, trustRoot model.PublicKey, claimSystem *model.PublicKey, matchAnyField string, matchAllFields map[string]string, limit int) ([]claimVouchMatch, error) {
	args := []interface{}{int64(model.ContentTypeClaim), int64(claimType)}

	var fieldClause string
	if matchAnyField != "" {
		fieldClause = "jsonb_path_query_array(c.fields, '$.*') ? $3"
		args = append(args, matchAnyField)
	} else {
		fieldsJSON, err := json.Marshal(matchAllFields)
		if err != nil {
			return nil, err
		}
		fieldClause = "c.fields @> $3::jsonb"
		args = append(args, fieldsJSON)
	}

	args = append(args, int64(model.ContentTypeVouch), int64(trustRoot.Type), trustRoot.Bytes)

	systemClause := ""
	if claimSystem != nil {
		args = append(args, int64(claimSystem.Type), claimSystem.Bytes)
		systemClause = fmt.Sprintf(" AND c_ev.system_key_type = $%d AND c_ev.system_key = $%d", len(args)-1, len(args))
	}

	args = append(args, limit)
	limitPos := len(args)

	queryStr := fmt.Sprintf(`
		SELECT
			c_ev.id, c_ev.raw_event,
			v_ev.id, v_ev.raw_event
		FROM events c_ev
		JOIN claims c ON c.event_id = c_ev.id
		JOIN event_links el ON
			(el.subject_system_key_type, el.subject_system_key, el.subject_process, el.subject_logical_clock)
			= (c_ev.system_key_type, c_ev.system_key, c_ev.process, c_ev.logical_clock)
		JOIN events v_ev ON v_ev.id = el.event_id
		WHERE c_ev.content_type = $1 AND c.claim_type = $2 AND %s
		  AND v_ev.content_type = $4 AND v_ev.system_key_type = $5 AND v_ev.system_key = $6%s
		ORDER BY v_ev.unix_milliseconds DESC
		LIMIT $%d
	`, fieldClause, systemClause, limitPos)

	rows, err := q.Store.DB().QueryxContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query claim vouch join: %w", err)
	}
	defer rows.Close()

	var out []claimVouchMatch
	for rows.Next() {
		var (
			claimID, vouchID     int64
			claimRaw, vouchRaw   []byte
		)
		if err := rows.Scan(&claimID, &claimRaw, &vouchID, &vouchRaw); err != nil {
			return nil, fmt.Errorf("scan claim vouch row: %w", err)
		}

		if hidden, err := q.isHidden(ctx, claimID); err != nil {
			return nil, err
		} else if hidden {
			continue
		}
		if hidden, err := q.isHidden(ctx, vouchID); err != nil {
			return nil, err
		} else if hidden {
			continue
		}

		claim, err := model.DecodeSignedEvent(claimRaw)
		if err != nil {
			return nil, err
		}
		vouch, err := model.DecodeSignedEvent(vouchRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, claimVouchMatch{Claim: claim, Vouch: vouch})
	}
	return out, rows.Err()
}

// QueryClaim resolves claims corroborated by trustRoot, either by
// matchAnyField (a single value present in any field of the claim) or,
// when matchAnyField is empty, by matchAllFields (the claim's fields
// must contain every given pair). system optionally restricts matches
// to claims authored by one system.
func (q *Engine) QueryClaim(ctx context.Context, trustRoot model.PublicKey, claimType uint64, system *model.PublicKey, matchAnyField string, matchAllFields map[string]string, limit int) ([]model.SignedEvent, error) {
	matches, err := q.queryClaimVouchJoin(ctx, claimType, trustRoot, system, matchAnyField, matchAllFields, limit)
	if err != nil {
		return nil, err
	}
	events := make([]model.SignedEvent, len(matches))
	for i, m := range matches {
		events[i] = m.Claim
	}
	return events, nil
}

// ClaimAndVouch pairs a single claim event with the one vouch event
// corroborating it.
type ClaimAndVouch struct {
	Claim   model.SignedEvent
	Vouches []model.SignedEvent
}

// FindClaimAndVouch returns the (claim, vouch) pair where the claim is
// authored by claimingSystem, matches claimType and fields exactly
// (field-set containment, per invariant 7's canonical field encoding),
// and is corroborated by a VOUCH event authored by vouchingSystem. It
// returns svcerr.CodeNotFound when no such pair exists.
func (q *Engine) FindClaimAndVouch(ctx context.Context, vouchingSystem, claimingSystem model.PublicKey, claimType uint64, fields map[string]string) (*ClaimAndVouch, error) {
	matches, err := q.queryClaimVouchJoin(ctx, claimType, vouchingSystem, &claimingSystem, "", fields, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, svcerr.New(svcerr.CodeNotFound, "claim not found")
	}
	return &ClaimAndVouch{Claim: matches[0].Claim, Vouches: []model.SignedEvent{matches[0].Vouch}}, nil
}

// ResolveHandle returns the system currently bound to a human-readable
// handle.
func (q *Engine) ResolveHandle(ctx context.Context, handle string) (*model.PublicKey, error) {
	var (
		keyType int64
		key     []byte
	)
	err := q.Store.DB().QueryRowxContext(ctx,
		`SELECT system_key_type, system_key FROM identity_handles WHERE handle = $1`, handle).Scan(&keyType, &key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve handle: %w", err)
	}
	return &model.PublicKey{Type: model.KeyType(keyType), Bytes: key}, nil
}

// ClaimHandle binds handle to system in one upsert: first-claimer wins
// on a brand new handle, and only the same system re-claiming its own
// handle can update the row. A handle held by another system is
// rejected with a 409. A system already bound to a different handle
// cannot claim a second one: the unique index on the system key rejects
// the insert and the call returns an error.
func (q *Engine) ClaimHandle(ctx context.Context, handle string, system model.PublicKey) error {
	res, err := q.Store.DB().ExecContext(ctx, `
		INSERT INTO identity_handles (handle, system_key_type, system_key, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (handle) DO UPDATE SET updated_at = now()
		WHERE identity_handles.system_key_type = EXCLUDED.system_key_type AND identity_handles.system_key = EXCLUDED.system_key
	`, handle, int64(system.Type), system.Bytes)
	if err != nil {
		return fmt.Errorf("claim handle: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		e := svcerr.New(svcerr.CodeAlreadyExists, "handle already claimed by another system")
		e.HTTPStatus = http.StatusConflict
		return e
	}
	return nil
}

// TopStringReferences returns the byte-string subjects with the highest
// reference counts for a given from_type (e.g. "most-followed topics"),
// most-referenced first.
type StringCount struct {
	Subject []byte
	Count   int64
}

func (q *Engine) TopStringReferences(ctx context.Context, fromType model.ContentType, limit int) ([]StringCount, error) {
	rows, err := q.Store.DB().QueryxContext(ctx,
		`SELECT subject_bytes, count FROM count_references_bytes WHERE from_type = $1 ORDER BY count DESC LIMIT $2`,
		int64(fromType), limit)
	if err != nil {
		return nil, fmt.Errorf("top string references: %w", err)
	}
	defer rows.Close()

	var out []StringCount
	for rows.Next() {
		var sc StringCount
		if err := rows.Scan(&sc.Subject, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan top string reference: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RandomProfile returns the first USERNAME event at or after a
// pseudo-random event id derived from seed, for unauthenticated
// discovery surfaces. It samples via a randomized id range rather than
// ORDER BY random() so it stays cheap on a large table. It returns one
// event and does not filter censored or moderation-hidden systems.
func (q *Engine) RandomProfile(ctx context.Context, seed uint64) (*model.SignedEvent, error) {
	var maxID int64
	if err := q.Store.DB().QueryRowxContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM events`).Scan(&maxID); err != nil {
		return nil, fmt.Errorf("max event id: %w", err)
	}
	if maxID == 0 {
		return nil, nil
	}
	start := int64(bits.RotateLeft64(seed, 17) % uint64(maxID))

	row := q.Store.DB().QueryRowxContext(ctx, `
		SELECT raw_event FROM events WHERE id >= $1 AND content_type = $2 ORDER BY id ASC LIMIT 1
	`, start, int64(model.ContentTypeUsername))
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("random profile: %w", err)
	}
	se, err := model.DecodeSignedEvent(raw)
	if err != nil {
		return nil, err
	}
	return &se, nil
}

func (q *Engine) isHidden(ctx context.Context, eventID int64) (bool, error) {
	if q.Moderator == nil {
		return false, nil
	}
	return q.Moderator.IsHidden(ctx, eventID)
}

func (q *Engine) toPage(ctx context.Context, rows []postgres.StoredEvent) (EventPage, error) {
	var page EventPage
	for _, r := range rows {
		hidden, err := q.isHidden(ctx, r.ID)
		if err != nil {
			return EventPage{}, err
		}
		if hidden {
			continue
		}
		se, err := model.DecodeSignedEvent(r.RawEvent)
		if err != nil {
			return EventPage{}, err
		}
		page.Events = append(page.Events, se)
		if r.ID > page.NextCursor {
			page.NextCursor = r.ID
		}
	}
	return page, nil
}

func scanAll(rows *sqlx.Rows) ([]postgres.StoredEvent, error) {
	defer rows.Close()
	var out []postgres.StoredEvent
	for rows.Next() {
		var (
			ev            postgres.StoredEvent
			rawProcess    []byte
			systemKeyType int64
			logicalClock  int64
			contentType   int64
			unixMillis    sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &systemKeyType, &ev.SystemKey, &rawProcess, &logicalClock, &contentType, &ev.RawEvent, &unixMillis); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		process, err := model.ProcessFromBytes(rawProcess)
		if err != nil {
			return nil, fmt.Errorf("decode process: %w", err)
		}
		ev.Process = process
		ev.SystemKeyType = uint64(systemKeyType)
		ev.LogicalClock = uint64(logicalClock)
		ev.ContentType = uint64(contentType)
		if unixMillis.Valid {
			v := uint64(unixMillis.Int64)
			ev.UnixMilliseconds = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
