package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleGetVersion answers GET /version with the build identifier the
// server was started with.
func (h *handler) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Sha string `json:"sha"`
	}{Sha: h.version})
}
