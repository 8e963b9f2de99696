package httpapi

import "net/http"

// route describes a single endpoint with an optional method guard,
// a shared pattern across this server's HTTP handler groups.
type route struct {
	pattern string
	method  string
	handler http.HandlerFunc
}

// mountRoutes attaches routes to mux, wrapping each with Prometheus
// instrumentation. The method, when set, is folded into the registered
// pattern ("GET /events" vs "POST /events") using the method-aware
// net/http.ServeMux matching — this lets two routes share a path but
// differ by verb, as the HTTP surface's /events does.
func mountRoutes(mux *http.ServeMux, routes ...route) {
	for _, rt := range routes {
		if rt.pattern == "" || rt.handler == nil {
			continue
		}
		pattern := rt.pattern
		if rt.method != "" {
			pattern = rt.method + " " + rt.pattern
		}
		mux.HandleFunc(pattern, instrument(rt.pattern, rt.handler))
	}
}
