package emulator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// ModelNotFound is returned for unknown tables and for bases the token cannot read.
const ModelNotFound = "INVALID_PERMISSIONS_OR_MODEL_NOT_FOUND"

const (
	defaultPageSize = 100
	maxPageSize     = 100
)

// Config configures a Server.
type Config struct {
	// Tokens maps a base ID to the bearer tokens allowed to read it.
	// A base with no entry accepts any token.
	Tokens   map[string][]string
	PageSize int
	Logger   *slog.Logger
}

// Server serves the table store API over a Store.
type Server struct {
	store    *Store
	faults   *Faults
	tokens   map[string]map[string]bool
	pageSize int
	logger   *slog.Logger

	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// NewServer creates a new Server.
func NewServer(st *Store, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	tokens := make(map[string]map[string]bool, len(cfg.Tokens))
	for base, list := range cfg.Tokens {
		set := make(map[string]bool, len(list))
		for _, t := range list {
			set[t] = true
		}
		tokens[base] = set
	}

	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emulator_requests_total",
		Help: "Requests served by the table store emulator.",
	}, []string{"method", "status"})
	registry.MustRegister(requests)

	return &Server{
		store:    st,
		faults:   &Faults{},
		tokens:   tokens,
		pageSize: pageSize,
		logger:   logger,
		registry: registry,
		requests: requests,
	}
}

// Faults returns the fault injection queue.
func (s *Server) Faults() *Faults { return s.faults }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.observe)

	r.Route("/v0", func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Get("/meta/bases/{baseID}/tables", s.listTables)

		r.Route("/{baseID}/{tableName}", func(r chi.Router) {
			r.Get("/", s.listRecords)
			r.Post("/", s.createRecord)
			r.Get("/{recordID}", s.getRecord)
			r.Patch("/{recordID}", s.updateRecord)
			r.Delete("/{recordID}", s.deleteRecord)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// observe counts and logs every request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.requests.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authorized reports whether the request token may access baseID.
func (s *Server) authorized(r *http.Request, baseID string) bool {
	allowed, ok := s.tokens[baseID]
	if !ok {
		return true
	}
	return allowed[tokenFrom(r.Context())]
}

// guard runs the checks shared by table routes. It writes the response and
// returns false when the request must stop.
func (s *Server) guard(w http.ResponseWriter, r *http.Request) (baseID, tableName string, ok bool) {
	baseID = chi.URLParam(r, "baseID")
	tableName = chi.URLParam(r, "tableName")

	if !s.authorized(r, baseID) {
		writeJSONError(w, http.StatusForbidden, ModelNotFound, "Invalid permissions, or the requested model was not found")
		return "", "", false
	}
	if f, hit := s.faults.take(tableName); hit {
		s.logger.Debug("injected fault", "table", tableName, "status", f.Status)
		writeJSONError(w, f.Status, f.Type, "Injected fault")
		return "", "", false
	}
	return baseID, tableName, true
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	baseID := chi.URLParam(r, "baseID")
	if !s.authorized(r, baseID) {
		writeJSONError(w, http.StatusForbidden, ModelNotFound, "Invalid permissions, or the requested model was not found")
		return
	}

	names, err := s.store.Tables(baseID)
	if err != nil {
		s.storeError(w, err)
		return
	}

	tables := make([]map[string]string, 0, len(names))
	for _, name := range names {
		tables = append(tables, map[string]string{"id": "tbl" + name, "name": name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	baseID, tableName, ok := s.guard(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	match, err := parseFormula(q.Get("filterByFormula"))
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "INVALID_FILTER_BY_FORMULA", "The formula for filtering records is invalid")
		return
	}

	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeJSONError(w, http.StatusUnprocessableEntity, "LIST_RECORDS_ITERATOR_NOT_AVAILABLE", "Invalid offset")
		return
	}
	pageSize, err := intParam(q.Get("pageSize"), s.pageSize)
	if err != nil || pageSize <= 0 || pageSize > maxPageSize {
		writeJSONError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_UNKNOWN", "Invalid pageSize")
		return
	}
	maxRecords, err := intParam(q.Get("maxRecords"), 0)
	if err != nil || maxRecords < 0 {
		writeJSONError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_UNKNOWN", "Invalid maxRecords")
		return
	}

	records, err := s.store.List(baseID, tableName)
	if err != nil {
		s.storeError(w, err)
		return
	}

	records = records.Filter(match)
	if maxRecords > 0 && len(records) > maxRecords {
		records = records[:maxRecords]
	}
	if fields := q["fields[]"]; len(fields) > 0 {
		records = project(records, fields)
	}

	resp := map[string]any{}
	end := offset + pageSize
	if offset >= len(records) {
		resp["records"] = table.RecordSet{}
	} else {
		if end >= len(records) {
			end = len(records)
		} else {
			resp["offset"] = strconv.Itoa(end)
		}
		resp["records"] = records[offset:end]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	baseID, tableName, ok := s.guard(w, r)
	if !ok {
		return
	}

	rec, err := s.store.Get(baseID, tableName, chi.URLParam(r, "recordID"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type recordRequest struct {
	Fields map[string]table.Cell `json:"fields"`
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	baseID, tableName, ok := s.guard(w, r)
	if !ok {
		return
	}

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", "Failed to parse request body")
		return
	}

	rec, err := s.store.Create(baseID, tableName, table.Record{Fields: withoutAbsent(req.Fields)})
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.logger.Info("record created", "base", baseID, "table", tableName, "id", rec.ID)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	baseID, tableName, ok := s.guard(w, r)
	if !ok {
		return
	}

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", "Failed to parse request body")
		return
	}

	rec, err := s.store.Update(baseID, tableName, chi.URLParam(r, "recordID"), req.Fields)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	baseID, tableName, ok := s.guard(w, r)
	if !ok {
		return
	}

	recordID := chi.URLParam(r, "recordID")
	if err := s.store.Delete(baseID, tableName, recordID); err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": recordID, "deleted": true})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTableNotFound):
		writeJSONError(w, http.StatusNotFound, ModelNotFound, "Could not find table in this base")
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "Could not find what you are looking for")
	default:
		s.logger.Error("store failure", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "SERVER_ERROR", "Internal error")
	}
}

func project(records table.RecordSet, fields []string) table.RecordSet {
	out := make(table.RecordSet, len(records))
	for i, rec := range records {
		kept := make(map[string]table.Cell, len(fields))
		for _, f := range fields {
			if c, ok := rec.Fields[f]; ok {
				kept[f] = c
			}
		}
		rec.Fields = kept
		out[i] = rec
	}
	return out
}

func withoutAbsent(fields map[string]table.Cell) map[string]table.Cell {
	out := make(map[string]table.Cell, len(fields))
	for name, c := range fields {
		if !c.IsAbsent() {
			out[name] = c
		}
	}
	return out
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
