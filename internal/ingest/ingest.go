// Package ingest implements the one-event ingest pipeline:
// verify, advance process state (enforcing process ownership), dedup,
// branch on delete-vs-insert, and enqueue the event for the external
// sinks once its transaction commits.
package ingest

import (
	"context"
	"fmt"

	"github.com/futo-org/polycentric-sub000/internal/logging"
	"github.com/futo-org/polycentric-sub000/internal/metrics"
	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/store/postgres"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

// Sink receives successfully ingested live events after their
// transaction has committed, for forwarding to external systems.
type Sink interface {
	Enqueue(se model.SignedEvent, ev model.Event)
}

// Engine runs the ingest pipeline against one Store.
type Engine struct {
	Store *postgres.Store
	Sink  Sink
	Log   *logging.Logger
}

// New builds an Engine. sink may be nil in tests that don't care about
// post-commit forwarding.
func New(store *postgres.Store, sink Sink, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Engine{Store: store, Sink: sink, Log: log}
}

// Result reports what IngestOne actually did, for metrics and for the
// HTTP handler's response.
type Result struct {
	Accepted bool
	Deleted  bool
}

// IngestOne verifies, stores, and indexes one signed event. It is safe
// to call concurrently; per-(system, process) serialization is provided
// by an advisory lock held for the duration of the write transaction.
func (e *Engine) IngestOne(ctx context.Context, se model.SignedEvent) (Result, error) {
	ev, err := se.Verify()
	if err != nil {
		metrics.EventsRejected.WithLabelValues("bad_signature").Inc()
		return Result{}, err
	}

	var result Result
	err = e.Store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.Store.AdvisoryLockProcess(ctx, uint64(ev.System.Type), ev.System.Bytes, ev.Process.Bytes()); err != nil {
			return err
		}

		if err := e.Store.AdvanceProcessState(ctx, uint64(ev.System.Type), ev.System.Bytes, ev.Process, ev.LogicalClock); err != nil {
			return err
		}

		exists, err := e.Store.DoesEventExist(ctx, uint64(ev.System.Type), ev.System.Bytes, ev.Process, ev.LogicalClock)
		if err != nil {
			return err
		}
		if exists {
			// Idempotent re-delivery of an already-known coordinate.
			return nil
		}
		deleted, err := e.Store.IsEventDeleted(ctx, uint64(ev.System.Type), ev.System.Bytes, ev.Process, ev.LogicalClock)
		if err != nil {
			return err
		}
		if deleted {
			// A tombstone occupies this coordinate; do not resurrect it.
			return nil
		}

		content, err := ev.DecodeContent()
		if err != nil {
			return err
		}

		if content.Delete != nil {
			return e.applyDelete(ctx, se, ev, content.Delete, &result)
		}

		id, err := e.Store.InsertEvent(ctx, se, ev)
		if err != nil {
			return err
		}
		if err := e.Store.IndexEvent(ctx, id, ev); err != nil {
			return err
		}
		result.Accepted = true
		return nil
	})
	if err != nil {
		metrics.EventsRejected.WithLabelValues(svcerr.CodeOf(err)).Inc()
		return Result{}, err
	}

	if result.Accepted {
		metrics.EventsIngested.WithLabelValues(contentTypeLabel(ev.ContentType)).Inc()
		if e.Sink != nil {
			e.Sink.Enqueue(se, ev)
		}
	}
	return result, nil
}

// applyDelete removes the target coordinate named by a DELETE event's
// content, mirroring it into the deletions tombstone table and
// reversing its former index contributions.
func (e *Engine) applyDelete(ctx context.Context, deleteSigned model.SignedEvent, deleteEvent model.Event, del *model.Delete, result *Result) error {
	target, err := e.Store.LoadEvent(ctx, uint64(deleteEvent.System.Type), deleteEvent.System.Bytes, del.Process, del.LogicalClock)
	if err != nil {
		return err
	}
	if target != nil {
		targetSigned, err := model.DecodeSignedEvent(target.RawEvent)
		if err != nil {
			return err
		}
		targetEvent, err := model.DecodeEvent(targetSigned.Event)
		if err != nil {
			return err
		}
		if err := e.Store.UnindexEvent(ctx, target.ID, targetEvent); err != nil {
			return err
		}
	}

	// The target's tombstone carries the DELETE's signed bytes so that
	// QueryIndex's events+deletions union can surface it.
	deleteRaw := deleteSigned.Encode()
	targetMillis := del.UnixMilliseconds
	if err := e.Store.DeleteEvent(ctx,
		uint64(deleteEvent.System.Type), deleteEvent.System.Bytes, del.Process, del.LogicalClock,
		uint64(del.ContentType), &targetMillis, deleteRaw); err != nil {
		return err
	}

	// The DELETE event itself is never stored as a live row, but it is
	// still a valid logical-clock position for its author's process —
	// insert a tombstone for the DELETE's own coordinate too so range
	// computation considers it known.
	if err := e.Store.DeleteEvent(ctx,
		uint64(deleteEvent.System.Type), deleteEvent.System.Bytes, deleteEvent.Process, deleteEvent.LogicalClock,
		uint64(deleteEvent.ContentType), deleteEvent.UnixMilliseconds, deleteRaw); err != nil {
		return err
	}

	result.Deleted = true
	return nil
}

func contentTypeLabel(ct model.ContentType) string {
	return fmt.Sprintf("%d", uint64(ct))
}
