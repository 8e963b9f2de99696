package httpapi

import (
	"io"
	"net/http"

	"github.com/futo-org/polycentric-sub000/internal/protocol"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

// handleGetResolveHandle answers GET /resolve_handle?handle=….
func (h *handler) handleGetResolveHandle(w http.ResponseWriter, r *http.Request) {
	handleName := r.URL.Query().Get("handle")
	if handleName == "" {
		writeError(w, h.log, svcerr.New(svcerr.CodeMalformed, "missing handle parameter"))
		return
	}

	key, err := h.query.ResolveHandle(r.Context(), handleName)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if key == nil {
		writeError(w, h.log, svcerr.New(svcerr.CodeNotFound, "handle not claimed"))
		return
	}
	writeBytes(w, key.Encode())
}

// handlePostClaimHandle answers POST /claim_handle.
func (h *handler) handlePostClaimHandle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, h.log, svcerr.Wrap(svcerr.CodeMalformed, "failed to read body", err))
		return
	}
	req, err := protocol.DecodeClaimHandleRequest(body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.query.ClaimHandle(r.Context(), req.Handle, req.System); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
