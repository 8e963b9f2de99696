package httpapi

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/protocol"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

// handleGetChallenge answers GET /challenge, issuing a fresh
// challenge-sign-redeem nonce for an administrative caller.
func (h *handler) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeError(w, h.log, svcerr.New(svcerr.CodeUnauthorized, "administrative endpoints are not configured"))
		return
	}
	id, nonce := h.auth.IssueChallenge()
	resp := protocol.HarborChallengeResponse{ChallengeID: id, Nonce: nonce}
	writeBytes(w, resp.Encode())
}

// handlePostPurge answers POST /purge: the caller proves ownership of a
// system by signing the issued challenge with that system's identity
// key, and every event of that system is permanently deleted.
func (h *handler) handlePostPurge(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeError(w, h.log, svcerr.New(svcerr.CodeUnauthorized, "administrative endpoints are not configured"))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, h.log, svcerr.Wrap(svcerr.CodeMalformed, "failed to read body", err))
		return
	}
	req, err := protocol.DecodeHarborValidateRequest(body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.auth.RedeemSelf(req.ChallengeID, req.System, req.Signature); err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.store.PurgeSystem(r.Context(), uint64(req.System.Type), req.System.Bytes); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handlePostCensor answers POST /censor?censorship_type=event|system,
// authenticated by a challenge-sign-redeem bundle carried in the
// Authorization header (`Bearer <base64 HarborValidateRequest>`), acted
// on by an admin key. The request body is the URL-safe base64 encoding
// of the target: a model.Pointer for censorship_type=event, or a
// model.PublicKey for censorship_type=system.
func (h *handler) handlePostCensor(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeError(w, h.log, svcerr.New(svcerr.CodeUnauthorized, "administrative endpoints are not configured"))
		return
	}

	bundle, err := bearerBundle(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.auth.Redeem(bundle.ChallengeID, bundle.System, bundle.Signature); err != nil {
		writeError(w, h.log, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, h.log, svcerr.Wrap(svcerr.CodeMalformed, "failed to read body", err))
		return
	}
	target, err := base64.URLEncoding.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		writeError(w, h.log, svcerr.Wrap(svcerr.CodeMalformed, "invalid censor target", err))
		return
	}

	switch r.URL.Query().Get("censorship_type") {
	case "system":
		system, err := model.DecodePublicKey(target)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		if err := h.store.CensorSystem(r.Context(), uint64(system.Type), system.Bytes, "administrative censor"); err != nil {
			writeError(w, h.log, err)
			return
		}
	case "event":
		pointer, err := model.DecodePointer(target)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		row, err := h.store.LoadEventByPointer(r.Context(), pointer)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		if row == nil {
			writeError(w, h.log, svcerr.New(svcerr.CodeNotFound, "event not found"))
			return
		}
		if err := h.store.CensorEvent(r.Context(), row.ID, "administrative censor"); err != nil {
			writeError(w, h.log, err)
			return
		}
	default:
		writeError(w, h.log, svcerr.New(svcerr.CodeMalformed, "unknown censorship_type"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func bearerBundle(r *http.Request) (protocol.HarborValidateRequest, error) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return protocol.HarborValidateRequest{}, svcerr.New(svcerr.CodeUnauthorized, "missing bearer authorization")
	}
	raw, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(auth, prefix))
	if err != nil {
		return protocol.HarborValidateRequest{}, svcerr.Wrap(svcerr.CodeMalformed, "invalid authorization bundle", err)
	}
	return protocol.DecodeHarborValidateRequest(raw)
}
