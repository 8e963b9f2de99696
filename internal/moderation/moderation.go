// Package moderation runs the background moderation coordinator:
// a single-writer polling loop that classifies freshly-ingested POST
// events and attaches moderation tags, plus the predicate the query
// engine uses to hide events a decision (or a direct censor action) has
// flagged.
package moderation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/futo-org/polycentric-sub000/internal/logging"
	"github.com/futo-org/polycentric-sub000/internal/metrics"
	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/store/postgres"
)

// Filter is the read-side predicate the query engine consults before
// returning an event.
type Filter interface {
	IsHidden(ctx context.Context, eventID int64) (bool, error)
}

// Tag is one classifier's verdict on a piece of content.
type Tag struct {
	Name  string
	Level int16
}

// PendingEvent is one POST event pulled off the moderation queue, with
// its text content and its assembled image (if its image manifest
// named any BLOB_SECTION events) split out the way the classifiers
// expect to receive them.
type PendingEvent struct {
	EventID int64
	Content []byte
	Image   []byte
}

// TagClassifier scores content for policy-violation categories (hate,
// sexual, violence, ...) without vetoing it outright; a PendingEvent
// may carry text, an image, or both, and a classifier decides which of
// the two fields it can act on.
type TagClassifier interface {
	Classify(ctx context.Context, ev PendingEvent) ([]Tag, error)
}

// CSAMClassifier inspects a PendingEvent's assembled image and reports
// whether it should be rejected outright. It runs independently of, and
// concurrently with, any configured TagClassifier.
type CSAMClassifier interface {
	ClassifyImage(ctx context.Context, ev PendingEvent) (isCSAM bool, err error)
}

// Coordinator polls event_processing_status for unprocessed (and
// previously-errored, backed-off) POST events and runs the configured
// classifiers over each, on a single background goroutine driven by a
// ticker rather than a message queue consumer, since moderation need
// not be real time.
type Coordinator struct {
	Store       *postgres.Store
	CSAM        CSAMClassifier
	Tag         TagClassifier
	BatchSize   int
	Interval    time.Duration
	MaxFailures int
	Log         *logging.Logger
}

// New builds a Coordinator. Either classifier may be nil, in which case
// that classification is skipped. A nil or zero-valued field falls
// back to a conservative default.
func New(store *postgres.Store, csam CSAMClassifier, tag TagClassifier, batchSize int, interval time.Duration, log *logging.Logger) *Coordinator {
	if batchSize <= 0 {
		batchSize = 20
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log == nil {
		log = logging.NewDefault()
	}
	return &Coordinator{
		Store:       store,
		CSAM:        csam,
		Tag:         tag,
		BatchSize:   batchSize,
		Interval:    interval,
		MaxFailures: 3,
		Log:         log,
	}
}

// Run polls until ctx is cancelled. Intended to be started as a
// goroutine from main.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.processBatch(ctx); err != nil {
				c.Log.WithField("error", err).Warn("moderation batch failed")
			}
		}
	}
}

// processBatch claims up to BatchSize candidates — unprocessed POST
// events, plus errored ones whose exponential backoff window has
// elapsed and whose failure_count hasn't hit MaxFailures — transitions
// them to processing in the same transaction that selects them (so a
// second coordinator polling concurrently can't double-claim a row),
// then classifies each.
func (c *Coordinator) processBatch(ctx context.Context) error {
	var candidates []postgres.ModerationCandidate
	err := c.Store.WithTx(ctx, func(ctx context.Context) error {
		found, err := c.Store.SelectModerationCandidates(ctx, uint64(model.ContentTypePost), c.MaxFailures, c.BatchSize)
		if err != nil {
			return err
		}
		candidates = found

		ids := make([]int64, len(found))
		for i, cand := range found {
			ids[i] = cand.EventID
		}
		return c.Store.MarkModerationProcessing(ctx, ids)
	})
	if err != nil {
		return err
	}

	for _, row := range candidates {
		if err := c.classifyOne(ctx, row); err != nil {
			c.Log.WithField("event_id", row.EventID).WithField("error", err).Warn("classify failed")
		}
	}
	return nil
}

// classifyOne decodes ev, assembles its image (if its content names
// one), runs the CSAM and tag classifiers concurrently, and records the
// outcome: classifier error moves the row to 'error' and bumps
// failure_count; a CSAM hit moves it to 'flagged_and_rejected'
// regardless of tag results; otherwise 'approved' with whatever tags
// the tag classifier assigned.
func (c *Coordinator) classifyOne(ctx context.Context, row postgres.ModerationCandidate) error {
	se, err := model.DecodeSignedEvent(row.RawEvent)
	if err != nil {
		return c.fail(ctx, row.EventID)
	}
	ev, err := model.DecodeEvent(se.Event)
	if err != nil {
		return c.fail(ctx, row.EventID)
	}
	post, err := model.DecodePost(ev.Content)
	if err != nil {
		return c.fail(ctx, row.EventID)
	}

	pending := PendingEvent{EventID: row.EventID}
	if post.Content != nil {
		pending.Content = []byte(*post.Content)
	}
	if post.Image != nil {
		image, err := c.assembleImage(ctx, ev.System, *post.Image)
		if err != nil {
			return c.fail(ctx, row.EventID)
		}
		pending.Image = image
	}

	type tagOutcome struct {
		tags []Tag
		err  error
	}
	type csamOutcome struct {
		isCSAM bool
		err    error
	}

	tagCh := make(chan tagOutcome, 1)
	go func() {
		if c.Tag == nil {
			tagCh <- tagOutcome{}
			return
		}
		tags, err := c.Tag.Classify(ctx, pending)
		tagCh <- tagOutcome{tags: tags, err: err}
	}()

	csamCh := make(chan csamOutcome, 1)
	go func() {
		if c.CSAM == nil {
			csamCh <- csamOutcome{}
			return
		}
		isCSAM, err := c.CSAM.ClassifyImage(ctx, pending)
		csamCh <- csamOutcome{isCSAM: isCSAM, err: err}
	}()

	tagResult, csamResult := <-tagCh, <-csamCh
	if tagResult.err != nil || csamResult.err != nil {
		return c.fail(ctx, row.EventID)
	}

	if csamResult.isCSAM {
		metrics.ModerationDecisions.WithLabelValues(string(model.ModerationStatusFlaggedAndRejected)).Inc()
		return c.finish(ctx, row.EventID, model.ModerationStatusFlaggedAndRejected, tagResult.tags)
	}

	metrics.ModerationDecisions.WithLabelValues(string(model.ModerationStatusApproved)).Inc()
	return c.finish(ctx, row.EventID, model.ModerationStatusApproved, tagResult.tags)
}

// assembleImage concatenates the raw content of the BLOB_SECTION events
// named by manifest's ranges, in section order and ascending logical
// clock within each section, the way a POST's uploader split a single
// image across a run of events.
func (c *Coordinator) assembleImage(ctx context.Context, system model.PublicKey, manifest model.ImageManifest) ([]byte, error) {
	var image []byte
	for _, section := range manifest.Sections {
		stored, err := c.Store.LoadEventsInRange(ctx, uint64(system.Type), system.Bytes, manifest.Process, section.Low, section.High)
		if err != nil {
			return nil, fmt.Errorf("load blob section range: %w", err)
		}
		for _, s := range stored {
			se, err := model.DecodeSignedEvent(s.RawEvent)
			if err != nil {
				return nil, fmt.Errorf("decode blob section event: %w", err)
			}
			inner, err := model.DecodeEvent(se.Event)
			if err != nil {
				return nil, fmt.Errorf("decode blob section content: %w", err)
			}
			if inner.ContentType != model.ContentTypeBlobSection {
				continue
			}
			image = append(image, inner.Content...)
		}
	}
	return image, nil
}

// fail moves eventID to 'error' and bumps its failure_count, recording
// now() as the backoff anchor for the next retry attempt.
func (c *Coordinator) fail(ctx context.Context, eventID int64) error {
	metrics.ModerationDecisions.WithLabelValues(string(model.ModerationStatusError)).Inc()
	return c.Store.MarkModerationFailed(ctx, eventID)
}

func (c *Coordinator) finish(ctx context.Context, eventID int64, status model.ModerationStatus, tags []Tag) error {
	if tags == nil {
		tags = []Tag{}
	}
	return c.Store.FinishModeration(ctx, eventID, string(status), tags)
}

// StoreFilter implements Filter by checking event_processing_status and
// the explicit censor tables.
type StoreFilter struct {
	Store *postgres.Store
}

func (f *StoreFilter) IsHidden(ctx context.Context, eventID int64) (bool, error) {
	var status string
	err := f.Store.DB().QueryRowxContext(ctx, `SELECT status FROM event_processing_status WHERE event_id = $1`, eventID).Scan(&status)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("load processing status: %w", err)
	}
	if status == string(model.ModerationStatusFlaggedAndRejected) {
		return true, nil
	}

	var censored bool
	err = f.Store.DB().QueryRowxContext(ctx, `SELECT EXISTS(SELECT 1 FROM censored_events WHERE event_id = $1)`, eventID).Scan(&censored)
	if err != nil {
		return false, fmt.Errorf("check censored_events: %w", err)
	}
	if censored {
		return true, nil
	}

	err = f.Store.DB().QueryRowxContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM censored_systems cs
			JOIN events e ON e.system_key_type = cs.system_key_type AND e.system_key = cs.system_key
			WHERE e.id = $1
		)
	`, eventID).Scan(&censored)
	if err != nil {
		return false, fmt.Errorf("check censored_systems: %w", err)
	}
	return censored, nil
}
