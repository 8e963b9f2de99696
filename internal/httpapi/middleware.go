package httpapi

import (
	"net/http"

	"github.com/futo-org/polycentric-sub000/internal/metrics"
)

func instrument(path string, fn http.HandlerFunc) http.HandlerFunc {
	return metrics.InstrumentHTTP(path, fn)
}
