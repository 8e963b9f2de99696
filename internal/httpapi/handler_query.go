package httpapi

import (
	"net/http"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/protocol"
)

// handleGetQueryIndex answers GET
// /query_index?system=…&content_type=…&after=…&limit=….
func (h *handler) handleGetQueryIndex(w http.ResponseWriter, r *http.Request) {
	system, err := parsePublicKeyParam(r, "system")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	contentType := model.ContentType(parseIntParam(r, "content_type", 0))
	limit := int(parseIntParam(r, "limit", 50))

	var after *uint64
	if r.URL.Query().Get("after") != "" {
		v := uint64(parseIntParam(r, "after", 0))
		after = &v
	}

	result, err := h.query.QueryIndex(r.Context(), system, contentType, after, limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := protocol.QueryIndexResponse{Events: result.Events, Proof: result.Proof}
	writeBytes(w, resp.Encode())
}

// handleGetQueryReferences answers GET /query_references?query=<base64
// wire-encoded protocol.QueryReferencesRequest>.
func (h *handler) handleGetQueryReferences(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeURLSafeParam(r, "query")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	req, err := protocol.DecodeQueryReferencesRequest(raw)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	page, count, err := h.query.QueryReferences(r.Context(), req.Subject, req.FromType, req.Cursor, int(limit))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := protocol.QueryReferencesResponse{Events: page.Events, Cursor: page.NextCursor, Count: count}
	writeBytes(w, resp.Encode())
}

// handleGetSearch answers GET /search?search=…&cursor=…&limit=…&search_type=….
// This server's own store is not a text index and the handler does not
// query the external sink targets, so it always returns an empty result.
func (h *handler) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	writeBytes(w, (protocol.Events{}).Encode())
}

// handleGetTopStringReferences answers GET
// /top_string_references?from_type=…&limit=…: the highest-referenced
// byte-string subjects, each represented by one event that references
// it, ranked by reference count (most-referenced first).
func (h *handler) handleGetTopStringReferences(w http.ResponseWriter, r *http.Request) {
	fromType := model.ContentType(parseIntParam(r, "from_type", int64(model.ContentTypeFollow)))
	limit := int(parseIntParam(r, "limit", 20))

	counts, err := h.query.TopStringReferences(r.Context(), fromType, limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var resp protocol.Events
	for _, sc := range counts {
		page, _, err := h.query.QueryReferences(r.Context(), model.ReferenceToBytes(sc.Subject), fromType, 0, 1)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		resp.Events = append(resp.Events, page.Events...)
	}
	writeBytes(w, resp.Encode())
}

// handleGetResolveClaim answers GET
// /resolve_claim?trust_root=…&claim_type=…&system=…&match_any_field=…&field.<key>=…&limit=….
// trust_root names the VOUCH author corroborating the claim; system
// optionally restricts matches to one claiming system. Either
// match_any_field or one-or-more field.<key> params select the match
// mode, per the match-any-field/match-all-fields split.
func (h *handler) handleGetResolveClaim(w http.ResponseWriter, r *http.Request) {
	trustRoot, err := parsePublicKeyParam(r, "trust_root")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var system *model.PublicKey
	if r.URL.Query().Get("system") != "" {
		sys, err := parsePublicKeyParam(r, "system")
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		system = &sys
	}
	claimType := uint64(parseIntParam(r, "claim_type", 0))
	limit := int(parseIntParam(r, "limit", 50))
	matchAnyField := r.URL.Query().Get("match_any_field")

	matchAllFields := map[string]string{}
	for k, v := range r.URL.Query() {
		const prefix = "field."
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && len(v) > 0 {
			matchAllFields[k[len(prefix):]] = v[0]
		}
	}

	events, err := h.query.QueryClaim(r.Context(), trustRoot, claimType, system, matchAnyField, matchAllFields, limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := protocol.QueryClaimToSystemResponse{Events: events}
	writeBytes(w, resp.Encode())
}

// handleGetFindClaimAndVouch answers GET
// /find_claim_and_vouch?vouching_system=…&claiming_system=…&claim_type=…&field.<key>=….
func (h *handler) handleGetFindClaimAndVouch(w http.ResponseWriter, r *http.Request) {
	vouchingSystem, err := parsePublicKeyParam(r, "vouching_system")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	claimingSystem, err := parsePublicKeyParam(r, "claiming_system")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	claimType := uint64(parseIntParam(r, "claim_type", 0))

	fields := map[string]string{}
	for k, v := range r.URL.Query() {
		const prefix = "field."
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && len(v) > 0 {
			fields[k[len(prefix):]] = v[0]
		}
	}

	result, err := h.query.FindClaimAndVouch(r.Context(), vouchingSystem, claimingSystem, claimType, fields)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := protocol.FindClaimAndVouchResponse{Claim: result.Claim, Vouches: result.Vouches}
	writeBytes(w, resp.Encode())
}
