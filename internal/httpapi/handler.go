// Package httpapi exposes the HTTP surface over the ingest and
// query engines: a stdlib net/http.ServeMux, a route/mountRoutes
// helper pair, and one handler_*.go file per endpoint group.
package httpapi

import (
	"net/http"

	"github.com/futo-org/polycentric-sub000/internal/auth"
	"github.com/futo-org/polycentric-sub000/internal/ingest"
	"github.com/futo-org/polycentric-sub000/internal/logging"
	"github.com/futo-org/polycentric-sub000/internal/metrics"
	"github.com/futo-org/polycentric-sub000/internal/query"
	"github.com/futo-org/polycentric-sub000/internal/store/postgres"
)

// handler bundles every dependency the HTTP endpoints need.
type handler struct {
	ingest  *ingest.Engine
	query   *query.Engine
	store   *postgres.Store
	auth    *auth.Manager
	log     *logging.Logger
	version string
}

// Server wraps the constructed mux ready to hand to http.Server.
type Server struct {
	mux *http.ServeMux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// New builds the full HTTP surface. authMgr may be nil, in which case
// administrative endpoints (/purge, /censor) always report 401 —
// suitable for a deployment that hasn't configured admin keys yet.
func New(ingestEngine *ingest.Engine, queryEngine *query.Engine, store *postgres.Store, authMgr *auth.Manager, log *logging.Logger, version string) *Server {
	if log == nil {
		log = logging.NewDefault()
	}
	h := &handler{ingest: ingestEngine, query: queryEngine, store: store, auth: authMgr, log: log, version: version}

	mux := http.NewServeMux()
	mountRoutes(mux,
		route{pattern: "/events", method: http.MethodPost, handler: h.handlePostEvents},
		route{pattern: "/ranges", method: http.MethodGet, handler: h.handleGetRanges},
		route{pattern: "/events", method: http.MethodGet, handler: h.handleGetEventsRange},
		route{pattern: "/query_latest", method: http.MethodGet, handler: h.handleGetQueryLatest},
		route{pattern: "/query_index", method: http.MethodGet, handler: h.handleGetQueryIndex},
		route{pattern: "/query_references", method: http.MethodGet, handler: h.handleGetQueryReferences},
		route{pattern: "/search", method: http.MethodGet, handler: h.handleGetSearch},
		route{pattern: "/top_string_references", method: http.MethodGet, handler: h.handleGetTopStringReferences},
		route{pattern: "/head", method: http.MethodGet, handler: h.handleGetHead},
		route{pattern: "/explore", method: http.MethodGet, handler: h.handleGetExplore},
		route{pattern: "/resolve_claim", method: http.MethodGet, handler: h.handleGetResolveClaim},
		route{pattern: "/find_claim_and_vouch", method: http.MethodGet, handler: h.handleGetFindClaimAndVouch},
		route{pattern: "/challenge", method: http.MethodGet, handler: h.handleGetChallenge},
		route{pattern: "/purge", method: http.MethodPost, handler: h.handlePostPurge},
		route{pattern: "/claim_handle", method: http.MethodPost, handler: h.handlePostClaimHandle},
		route{pattern: "/resolve_handle", method: http.MethodGet, handler: h.handleGetResolveHandle},
		route{pattern: "/censor", method: http.MethodPost, handler: h.handlePostCensor},
		route{pattern: "/version", method: http.MethodGet, handler: h.handleGetVersion},
	)
	mux.Handle("/metrics", metrics.Handler())

	return &Server{mux: mux}
}
