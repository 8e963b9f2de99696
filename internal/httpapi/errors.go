package httpapi

import (
	"net/http"

	"github.com/futo-org/polycentric-sub000/internal/logging"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

// writeError maps err to an HTTP status via svcerr and writes only its
// safe client-facing message; the full error (cause included) is logged.
func writeError(w http.ResponseWriter, log *logging.Logger, err error) {
	log.WithField("error", err).Warn("request failed")
	w.WriteHeader(svcerr.HTTPStatusFor(err))
	w.Write([]byte(svcerr.SafeMessage(err)))
}

func writeBytes(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
