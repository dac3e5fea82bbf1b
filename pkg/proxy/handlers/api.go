package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/analysis/export"
	"nocturne-hq/parity/pkg/analysis/query"
	"nocturne-hq/parity/pkg/forward"
	"nocturne-hq/parity/pkg/maintenance"
	"nocturne-hq/parity/pkg/proxy"
	"nocturne-hq/parity/pkg/proxy/types"
)

// DefaultMaxReplayBytes bounds a replay request body when Config leaves it unset.
const DefaultMaxReplayBytes = 10 << 20

// Replayer re-runs a request against both targets. *proxy.Handler implements it.
type Replayer interface {
	Replay(ctx context.Context, req *forward.ClonedRequest) (*analysis.Envelope, []analysis.Target)
}

// Maintainer runs maintenance cycles and serves the latest rollup.
// *maintenance.Worker implements it.
type Maintainer interface {
	RunOnce(ctx context.Context) (*maintenance.Report, error)
	Snapshot() *analysis.Snapshot
}

// Config configures the query API.
type Config struct {
	// Prefix mounts every route, e.g. "/_parity".
	Prefix string

	// MaxBodyBytes bounds replay request bodies.
	MaxBodyBytes int64
}

// API serves stored analyses, the compatibility rollup, replays and manual
// maintenance under a path prefix.
type API struct {
	storage    analysis.Storage
	replayer   Replayer
	maintainer Maintainer
	status     http.Handler
	cfg        Config
	logger     *slog.Logger
}

// NewAPI creates the query API. replayer, maintainer and status may be nil;
// the routes that need them then answer 503.
func NewAPI(storage analysis.Storage, replayer Replayer, maintainer Maintainer, status http.Handler, cfg Config) *API {
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxReplayBytes
	}
	return &API{
		storage:    storage,
		replayer:   replayer,
		maintainer: maintainer,
		status:     status,
		cfg:        cfg,
		logger:     slog.Default().With("component", "api"),
	}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	p := a.cfg.Prefix
	mux.HandleFunc("GET "+p+"/analyses", a.handleList)
	mux.HandleFunc("GET "+p+"/analyses/export", a.handleExport)
	mux.HandleFunc("GET "+p+"/analyses/{id}", a.handleGet)
	mux.HandleFunc("GET "+p+"/metrics/compatibility", a.handleCompatibility)
	mux.HandleFunc("GET "+p+"/status", a.handleStatus)
	mux.HandleFunc("POST "+p+"/replay", a.handleReplay)
	mux.HandleFunc("POST "+p+"/maintenance/run", a.handleMaintenance)
	mux.HandleFunc(p+"/", func(w http.ResponseWriter, r *http.Request) {
		proxy.WriteErrorResponse(w, types.NewNotFoundError(
			fmt.Sprintf("no API route for %s %s", r.Method, r.URL.Path), types.CodeInvalidValue))
	})
}

// Handler returns the API on its own mux.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	return mux
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	envelopes, err := a.storage.Query(r.Context(), q)
	if err != nil {
		a.fail(w, r, "query analyses", err)
		return
	}
	total, err := a.storage.Count(r.Context(), q)
	if err != nil {
		a.fail(w, r, "count analyses", err)
		return
	}
	if envelopes == nil {
		envelopes = []*analysis.Envelope{}
	}

	proxy.WriteJSON(w, http.StatusOK, &types.AnalysesResponse{
		Analyses: envelopes,
		Total:    total,
		Skip:     q.Skip,
		Count:    q.Count,
	})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	e, err := a.storage.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, "get analysis", err)
		return
	}
	proxy.WriteJSON(w, http.StatusOK, e)
}

// handleExport streams every analysis matching the filters. Pagination
// parameters are honoured only when given explicitly.
func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	format := values.Get("format")
	exporter, err := export.New(format, false)
	if err != nil {
		proxy.WriteErrorResponse(w, types.NewInvalidRequestError(err.Error(), types.CodeInvalidValue))
		return
	}
	q, err := ParseFilters(values)
	if err != nil {
		proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	envelopes, errCh, err := a.storage.QueryStream(ctx, q)
	if err != nil {
		a.fail(w, r, "export analyses", err)
		return
	}

	contentType, ext := "application/json", "json"
	if format == "csv" {
		contentType, ext = "text/csv", "csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="analyses.%s"`, ext))
	w.WriteHeader(http.StatusOK)

	if err := exporter.ExportStream(ctx, envelopes, w); err != nil {
		a.logger.WarnContext(ctx, "export aborted", "error", err)
		cancel()
	}
	for range envelopes {
	}
	if err := <-errCh; err != nil {
		a.logger.ErrorContext(ctx, "export query failed", "error", err)
	}
}

func (a *API) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	if a.maintainer == nil {
		proxy.WriteErrorResponse(w, types.NewServiceUnavailableError("maintenance is not configured", types.CodeMaintenanceDisabled))
		return
	}
	snap := a.maintainer.Snapshot()
	if snap == nil {
		proxy.WriteErrorResponse(w, types.NewServiceUnavailableError(
			"no compatibility snapshot yet; run maintenance first", types.CodeSnapshotUnavailable))
		return
	}
	proxy.WriteJSON(w, http.StatusOK, snap)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if a.status == nil {
		proxy.WriteErrorResponse(w, types.NewServiceUnavailableError("status reporting is not configured", types.CodeInternalError))
		return
	}
	a.status.ServeHTTP(w, r)
}

func (a *API) handleReplay(w http.ResponseWriter, r *http.Request) {
	if a.replayer == nil {
		proxy.WriteErrorResponse(w, types.NewServiceUnavailableError("replay is not configured", types.CodeInternalError))
		return
	}

	var body types.ReplayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)).Decode(&body); err != nil {
		proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	if body.AnalysisID != "" {
		stored, err := a.storage.Get(r.Context(), body.AnalysisID)
		if err != nil {
			a.fail(w, r, "load analysis for replay", err)
			return
		}
		body.Method, body.Path, body.Query = stored.Method, stored.Path, stored.Query
	}

	header := make(http.Header, len(body.Headers))
	for name, values := range body.Headers {
		for _, v := range values {
			header.Add(name, v)
		}
	}

	req, err := proxy.NewReplayRequest(body.Method, body.Path, body.Query, header, []byte(body.Body), proxy.ReplaySource{
		Host:   r.Host,
		Scheme: scheme(r),
	})
	if err != nil {
		proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	e, cached := a.replayer.Replay(r.Context(), req)
	proxy.WriteJSON(w, http.StatusOK, &types.ReplayResponse{Analysis: e, Cached: cached})
}

func (a *API) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	if a.maintainer == nil {
		proxy.WriteErrorResponse(w, types.NewServiceUnavailableError("maintenance is not configured", types.CodeMaintenanceDisabled))
		return
	}
	report, err := a.maintainer.RunOnce(r.Context())
	if err != nil {
		a.fail(w, r, "run maintenance", err)
		return
	}
	proxy.WriteJSON(w, http.StatusOK, &types.MaintenanceResponse{
		StartedAt:  report.StartedAt,
		DurationMS: report.Duration.Milliseconds(),
		Pruned:     report.Pruned,
		Snapshot:   report.Snapshot,
	})
}

// fail maps err to a response. Server errors are logged; client errors are not.
func (a *API) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := proxy.HandleError(err)
	if resp.Error.HTTPStatusCode() >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "api request failed", "op", op, "error", err)
	}
	proxy.WriteErrorResponse(w, resp)
}

// ParseQuery builds a validated, defaulted analysis query from URL values:
// path, method, match, endpoint, from, to, order, skip and count. Times are
// RFC 3339 or Unix milliseconds.
func ParseQuery(values url.Values) (*analysis.Query, error) {
	q, err := ParseFilters(values)
	if err != nil {
		return nil, err
	}
	query.ApplyDefaults(q)
	return q, nil
}

// ParseFilters is ParseQuery without defaults: a query with no count is
// unpaginated.
func ParseFilters(values url.Values) (*analysis.Query, error) {
	q := &analysis.Query{
		Path:      values.Get("path"),
		Method:    strings.ToUpper(values.Get("method")),
		Match:     analysis.OverallMatch(values.Get("match")),
		Endpoint:  values.Get("endpoint"),
		SortOrder: values.Get("order"),
	}

	var err error
	if q.Skip, err = intParam(values, "skip"); err != nil {
		return nil, analysis.NewQueryError(q, err)
	}
	if q.Count, err = intParam(values, "count"); err != nil {
		return nil, analysis.NewQueryError(q, err)
	}
	if q.From, err = timeParam(values, "from"); err != nil {
		return nil, analysis.NewQueryError(q, err)
	}
	if q.To, err = timeParam(values, "to"); err != nil {
		return nil, analysis.NewQueryError(q, err)
	}

	if err := query.Validate(q); err != nil {
		return nil, err
	}
	if m, ok := analysis.ParseMatch(string(q.Match)); ok {
		q.Match = m
	}
	return q, nil
}

func intParam(values url.Values, name string) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func timeParam(values url.Values, name string) (*time.Time, error) {
	raw := values.Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339 or Unix milliseconds, got %q", name, raw)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
