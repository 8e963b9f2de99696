// Package sink forwards freshly-ingested events to external systems:
// a full-text search index and peer servers. Forwarding is
// best-effort and never blocks ingest — Enqueue drops the oldest
// buffered item rather than applying backpressure to the writer.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/futo-org/polycentric-sub000/internal/logging"
	"github.com/futo-org/polycentric-sub000/internal/metrics"
	"github.com/futo-org/polycentric-sub000/internal/model"
)

// Target is one external system events are forwarded to.
type Target interface {
	Name() string
	Forward(ctx context.Context, se model.SignedEvent, ev model.Event) error
}

// PermanentError marks a forward failure the worker should not retry
// (e.g. a 4xx from the target), distinct from a transient network or
// 5xx failure that earns a backoff-and-retry.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

type job struct {
	se model.SignedEvent
	ev model.Event
}

// Pool runs a bounded-concurrency forwarder over one or more Targets.
type Pool struct {
	targets     []Target
	sem         *semaphore.Weighted
	limiter     *rate.Limiter
	queue       chan job
	log         *logging.Logger
	maxAttempts int
}

// NewPool builds a Pool with maxConcurrency in-flight forwards at once,
// all targets sharing one ratePerSecond requests/sec limit, buffering up
// to queueSize pending events (dropping the oldest on overflow).
func NewPool(targets []Target, maxConcurrency int, ratePerSecond float64, queueSize int, log *logging.Logger) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = 20
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 50
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = logging.NewDefault()
	}
	return &Pool{
		targets:     targets,
		sem:         semaphore.NewWeighted(int64(maxConcurrency)),
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)),
		queue:       make(chan job, queueSize),
		log:         log,
		maxAttempts: 5,
	}
}

// Enqueue schedules se/ev for forwarding to every target. It never
// blocks: if the queue is full, the oldest pending job is dropped to
// make room, and that drop is logged.
func (p *Pool) Enqueue(se model.SignedEvent, ev model.Event) {
	select {
	case p.queue <- job{se: se, ev: ev}:
	default:
		select {
		case <-p.queue:
			p.log.Warn("sink queue full, dropped oldest pending event")
		default:
		}
		select {
		case p.queue <- job{se: se, ev: ev}:
		default:
		}
	}
}

// Run drains the queue until ctx is cancelled, forwarding each job to
// every target with bounded concurrency.
func (p *Pool) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			for _, t := range p.targets {
				if err := p.sem.Acquire(ctx, 1); err != nil {
					return
				}
				go func(t Target, j job) {
					defer p.sem.Release(1)
					p.forwardWithRetry(ctx, t, j)
				}(t, j)
			}
		}
	}
}

func (p *Pool) forwardWithRetry(ctx context.Context, t Target, j job) {
	backoff := 500 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		err := t.Forward(ctx, j.se, j.ev)
		if err == nil {
			metrics.SinkForwards.WithLabelValues(t.Name(), "ok").Inc()
			return
		}

		var perm *PermanentError
		if isPermanent(err, &perm) {
			metrics.SinkForwards.WithLabelValues(t.Name(), "permanent_failure").Inc()
			p.log.WithField("target", t.Name()).WithField("error", err).Warn("sink forward permanently failed")
			return
		}

		metrics.SinkForwards.WithLabelValues(t.Name(), "transient_failure").Inc()
		if attempt == p.maxAttempts {
			p.log.WithField("target", t.Name()).WithField("error", err).Warn("sink forward exhausted retries")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func isPermanent(err error, target **PermanentError) bool {
	for err != nil {
		if pe, ok := err.(*PermanentError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// SearchIndexTarget forwards an event's indexable text content to a
// full-text search service over a simple JSON HTTP POST.
type SearchIndexTarget struct {
	URL    string
	Client *http.Client
}

func NewSearchIndexTarget(url string) *SearchIndexTarget {
	return &SearchIndexTarget{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *SearchIndexTarget) Name() string { return "search_index" }

func (s *SearchIndexTarget) Forward(ctx context.Context, se model.SignedEvent, ev model.Event) error {
	if s.URL == "" {
		return nil
	}
	payload, err := json.Marshal(struct {
		System      string `json:"system"`
		ContentType uint64 `json:"content_type"`
		Content     []byte `json:"content"`
	}{
		System:      model.URLSafeIdentifier(ev.System.Encode()),
		ContentType: uint64(ev.ContentType),
		Content:     ev.Content,
	})
	if err != nil {
		return fmt.Errorf("marshal search index payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build search index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("search index 5xx: %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return &PermanentError{Err: fmt.Errorf("search index rejected event: %d", resp.StatusCode)}
	}
	return nil
}

// PeerServerTarget forwards the raw signed event bytes to another
// polycentric-compatible server's ingest endpoint, for best-effort
// cross-server replication fan-out.
type PeerServerTarget struct {
	URL    string
	Client *http.Client
}

func NewPeerServerTarget(url string) *PeerServerTarget {
	return &PeerServerTarget{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (p *PeerServerTarget) Name() string { return "peer_server" }

func (p *PeerServerTarget) Forward(ctx context.Context, se model.SignedEvent, _ model.Event) error {
	if p.URL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(se.Encode()))
	if err != nil {
		return fmt.Errorf("build peer forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("peer server 5xx: %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return &PermanentError{Err: fmt.Errorf("peer server rejected event: %d", resp.StatusCode)}
	}
	return nil
}
