package httpapi

import (
	"io"
	"net/http"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/protocol"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

// handlePostEvents ingests a batch of signed events (POST /events).
// Each event is verified and stored independently; any verification
// failure short-circuits with 400, but events already accepted earlier
// in the batch remain committed (each is its own transaction).
func (h *handler) handlePostEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, h.log, svcerr.Wrap(svcerr.CodeMalformed, "failed to read body", err))
		return
	}

	batch, err := protocol.DecodeEvents(body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	for _, se := range batch.Events {
		if _, err := h.ingest.IngestOne(r.Context(), se); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// handleGetRanges answers GET /ranges?system=….
func (h *handler) handleGetRanges(w http.ResponseWriter, r *http.Request) {
	system, err := parsePublicKeyParam(r, "system")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	ranges, err := h.query.KnownRangeSync(r.Context(), system)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	byProcess := map[model.Process][]protocol.Range{}
	var order []model.Process
	for _, rg := range ranges {
		if _, seen := byProcess[rg.Process]; !seen {
			order = append(order, rg.Process)
		}
		byProcess[rg.Process] = append(byProcess[rg.Process], protocol.Range{Low: rg.Low, High: rg.High})
	}

	resp := protocol.RangesForSystem{}
	for _, p := range order {
		resp.RangesForProcesses = append(resp.RangesForProcesses, protocol.RangesForProcess{Process: p, Ranges: byProcess[p]})
	}
	writeBytes(w, resp.Encode())
}

// handleGetEventsRange answers GET /events?system=…&process=…&low=…&high=….
func (h *handler) handleGetEventsRange(w http.ResponseWriter, r *http.Request) {
	system, err := parsePublicKeyParam(r, "system")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	rawProcess, err := decodeURLSafeParam(r, "process")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	process, err := model.ProcessFromBytes(rawProcess)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	low := uint64(parseIntParam(r, "low", 0))
	high := uint64(parseIntParam(r, "high", 0))

	rows, err := h.store.LoadEventsInRange(r.Context(), uint64(system.Type), system.Bytes, process, low, high)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var resp protocol.Events
	for _, row := range rows {
		se, err := model.DecodeSignedEvent(row.RawEvent)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		resp.Events = append(resp.Events, se)
	}
	writeBytes(w, resp.Encode())
}

// handleGetQueryLatest answers GET /query_latest?system=…&event_types=1&event_types=3.
func (h *handler) handleGetQueryLatest(w http.ResponseWriter, r *http.Request) {
	system, err := parsePublicKeyParam(r, "system")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	types := r.URL.Query()["event_types"]
	var resp protocol.Events
	for _, t := range types {
		ct := parseContentTypeOrSkip(t)
		se, err := h.query.QueryLatest(r.Context(), system, ct)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		if se != nil {
			resp.Events = append(resp.Events, *se)
		}
	}
	writeBytes(w, resp.Encode())
}

// handleGetHead answers GET /head?system=…: for each process this server
// has observed for the system, the live event at its highest known
// logical clock; a process whose highest known clock is a tombstone is
// left out.
func (h *handler) handleGetHead(w http.ResponseWriter, r *http.Request) {
	system, err := parsePublicKeyParam(r, "system")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	heads, err := h.query.SystemHead(r.Context(), system)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var resp protocol.Events
	for process, clock := range heads {
		row, err := h.store.LoadEvent(r.Context(), uint64(system.Type), system.Bytes, process, clock)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		if row == nil {
			continue
		}
		se, err := model.DecodeSignedEvent(row.RawEvent)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		resp.Events = append(resp.Events, se)
	}
	writeBytes(w, resp.Encode())
}

// handleGetExplore answers GET /explore?cursor=…&limit=….
func (h *handler) handleGetExplore(w http.ResponseWriter, r *http.Request) {
	cursor := parseIntParam(r, "cursor", 0)
	limit := parseIntParam(r, "limit", 50)

	page, err := h.query.Explore(r.Context(), cursor, int(limit))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeBytes(w, (protocol.Events{Events: page.Events}).Encode())
}

func parseContentTypeOrSkip(s string) model.ContentType {
	n := int64(0)
	for _, c := range s {
		if c < '0' || c > '9' {
			return model.ContentType(0)
		}
		n = n*10 + int64(c-'0')
	}
	return model.ContentType(n)
}
