// Package api implements the HTTP transport: the chi router, request
// handlers, and CORS middleware spec.md §6 describes. Out of the core per
// spec.md §1, but fully implemented since a real Go repo carries its
// transport layer regardless. Grounded on the teacher's
// golden/go/web/web.go Handlers-struct-holds-dependencies split and
// golden/cmd/gold_frontend/impl/impl.go's chi router wiring.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/clock"
	"github.com/trustguide/directory/internal/directory"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/repository"
	"github.com/trustguide/directory/internal/sklog"
	"github.com/trustguide/directory/internal/votes"
)

// rpcCallCounter is the metric every route increments, grounded on the
// teacher's RPCCallCounterMetric ("gold_rpc_call_counter") naming.
var rpcCallCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trustguide_rpc_call_counter",
	Help: "Count of calls to each trustguide HTTP route.",
}, []string{"route"})

// Refresher is the subset of internal/ingestion.Coordinator the refresh
// endpoint needs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Handlers holds every dependency the route handlers close over.
type Handlers struct {
	Directory *directory.Service
	Votes     *votes.Service
	Refresher Refresher
	Clock     clock.Clock

	// anonymousSearchQuota is a coarse QPS cap on the public search
	// endpoints, distinct from the per-voter sliding-window limiter in
	// internal/votes -- grounded on golden/go/web/web.go's
	// anonymousExpensiveQuota use of golang.org/x/time/rate.Limiter.
	anonymousSearchQuota *rate.Limiter
}

const (
	anonSearchQPS   = rate.Limit(20)
	anonSearchBurst = 40
)

func NewHandlers(dir *directory.Service, v *votes.Service, refresher Refresher, c clock.Clock) *Handlers {
	if c == nil {
		c = clock.Real
	}
	return &Handlers{
		Directory:            dir,
		Votes:                v,
		Refresher:            refresher,
		Clock:                c,
		anonymousSearchQuota: rate.NewLimiter(anonSearchQPS, anonSearchBurst),
	}
}

// NewRouter builds the full chi.Router, wiring CORS per corsOrigin
// ("*" means allow-any per spec.md §6) and request-ID, panic-recovery and
// metrics middleware ahead of every route.
func NewRouter(h *Handlers, corsOrigin string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   corsOriginList(corsOrigin),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Forwarded-For", "X-Real-IP"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	r.Get("/health", h.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/facilities", h.SearchHandler)
		api.Get("/facilities/top-picks", h.TopPicksHandler)
		api.Get("/facilities/autocomplete", h.AutocompleteHandler)
		api.Get("/facilities/{id}", h.GetFacilityHandler)
		api.Post("/facilities/{id}/vote", h.VoteHandler)
		api.Get("/system/ingestion", h.SystemIngestionHandler)
		api.Post("/system/refresh", h.TriggerRefreshHandler)
	})

	return r
}

func corsOriginList(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	return []string{origin}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcCallCounter.WithLabelValues(routeLabel(r)).Inc()
		next.ServeHTTP(w, r)
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.Clock.Now().Format(time.RFC3339),
	})
}

func (h *Handlers) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.anonymousSearchQuota.Wait(r.Context()); err != nil {
		writeError(w, apperr.New(apperr.RateLimited, "too many requests"))
		return
	}

	q, err := parseSearchQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.Directory.Search(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":         res.Rows,
		"count":        len(res.Rows),
		"total_count":  res.TotalCount,
		"page":         res.Page,
		"page_size":    res.PageSize,
		"slice_counts": res.SliceCounts,
	})
}

func (h *Handlers) TopPicksHandler(w http.ResponseWriter, r *http.Request) {
	limit := intQueryParam(r, "limit", 10)
	picks, err := h.Directory.TopPicks(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  picks,
		"count": len(picks),
	})
}

func (h *Handlers) AutocompleteHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := intQueryParam(r, "limit", 10)
	suggestions, err := h.Directory.Autocomplete(r.Context(), q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []model.AutocompleteSuggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": suggestions})
}

func (h *Handlers) GetFacilityHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.Directory.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type voteRequest struct {
	Vote string `json:"vote"`
}

func (h *Handlers) VoteHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body voteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Wrap(apperr.ValidationFailure, err, "decoding vote body"))
		return
	}
	vote, ok := model.ParseVoteValue(body.Vote)
	if !ok {
		writeError(w, apperr.New(apperr.ValidationFailure, `vote must be "like" or "dislike"`))
		return
	}

	voterKey := VoterKey(r)
	summary, err := h.Votes.RecordVote(r.Context(), id, voterKey, vote)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) SystemIngestionHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.Directory.SystemIngestionStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// TriggerRefreshHandler accepts-and-queues a refresh per spec.md §5's
// backpressure note: it returns 202 immediately and runs the cycle in the
// background on a context detached from the request, since the request's
// context is cancelled the moment the handler returns.
func (h *Handlers) TriggerRefreshHandler(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.Refresher.Refresh(context.Background()); err != nil {
			sklog.Errorf("api: queued refresh failed: %s", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// VoterKey derives the opaque voter identity per spec.md §4.9: the first
// non-empty address from X-Forwarded-For's leftmost segment, else
// X-Real-IP, else "unknown".
func VoterKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return "unknown"
}

func parseSearchQuery(r *http.Request) (repository.SearchQuery, error) {
	v := r.URL.Query()
	q := repository.SearchQuery{
		Text:         v.Get("q"),
		Jurisdiction: v.Get("jurisdiction"),
		Sort:         v.Get("sort"),
		ScoreSlice:   v.Get("score_slice"),
		RecentOnly:   v.Get("recent_only") == "true",
		Page:         intQueryParam(r, "page", 1),
		PageSize:     pageSizeParam(r),
	}

	if lat := v.Get("latitude"); lat != "" {
		f, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return repository.SearchQuery{}, apperr.New(apperr.ValidationFailure, "latitude must be a number")
		}
		q.Latitude = &f
	}
	if lon := v.Get("longitude"); lon != "" {
		f, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return repository.SearchQuery{}, apperr.New(apperr.ValidationFailure, "longitude must be a number")
		}
		q.Longitude = &f
	}
	if radius := v.Get("radius_miles"); radius != "" {
		f, err := strconv.ParseFloat(radius, 64)
		if err != nil {
			return repository.SearchQuery{}, apperr.New(apperr.ValidationFailure, "radius_miles must be a number")
		}
		q.RadiusMiles = &f
	}

	switch q.Sort {
	case "", "recent_desc", "name_asc":
	default:
		return repository.SearchQuery{}, apperr.New(apperr.ValidationFailure, "sort must be recent_desc or name_asc")
	}
	switch q.ScoreSlice {
	case "", "elite", "solid", "watch":
	default:
		return repository.SearchQuery{}, apperr.New(apperr.ValidationFailure, "score_slice must be elite, solid, or watch")
	}

	return q, nil
}

// pageSizeParam reads page_size, falling back to the "limit" alias per
// spec.md §4.6.
func pageSizeParam(r *http.Request) int {
	v := r.URL.Query()
	if v.Get("page_size") != "" {
		return intQueryParam(r, "page_size", 50)
	}
	if v.Get("limit") != "" {
		return intQueryParam(r, "limit", 50)
	}
	return 50
}

func intQueryParam(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		sklog.Errorf("api: failed to encode response: %s", err)
	}
}

// writeError maps an error's apperr.Kind to its HTTP status per spec.md
// §7.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.ValidationFailure:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.RateLimited:
		status = http.StatusTooManyRequests
	case apperr.ConfigFailure, apperr.ConnectorFailure, apperr.RepositoryFailure:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
