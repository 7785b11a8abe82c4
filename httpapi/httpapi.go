// Package httpapi exposes the extraction pipeline over HTTP.
//
//	GET  /health
//	GET  /v1/formats
//	POST /v1/inspect          {"path": "...", "format": "pdf"}
//	POST /v1/documents        {"path": "..."}
//	GET  /v1/documents?limit=N
//	GET  /v1/documents/{id}
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/docharvest/docpipe"
	"github.com/hazyhaar/docharvest/idgen"
	"github.com/hazyhaar/docharvest/kit"
	"github.com/hazyhaar/docharvest/pipeline"
	"github.com/hazyhaar/docharvest/sqlstore"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

var newRequestID = idgen.Prefixed("req_", idgen.Default)

// NewRouter builds the HTTP handler for p.
func NewRouter(p *pipeline.Pipeline, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{p: p, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(accessLog(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/v1/formats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"formats": docpipe.SupportedFormats()})
	})
	r.Post("/v1/inspect", h.inspect)
	r.Route("/v1/documents", func(r chi.Router) {
		r.Post("/", h.process)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	return r
}

// requestID reuses the caller's X-Request-ID or generates one, and stores it
// in the request context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", kit.GetRequestID(r.Context()),
			)
		})
	}
}

type handlers struct {
	p      *pipeline.Pipeline
	logger *slog.Logger
}

type pathReq struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

func decodePath(r *http.Request) (*pathReq, error) {
	var req pathReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, errors.New("path is required")
	}
	return &req, nil
}

func (h *handlers) inspect(w http.ResponseWriter, r *http.Request) {
	req, err := decodePath(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	var format docpipe.Format
	if req.Format != "" {
		if format, err = docpipe.ParseFormat(req.Format); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	out, err := h.p.Loader().Inspect(r.Context(), req.Path, format)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, out)
}

func (h *handlers) process(w http.ResponseWriter, r *http.Request) {
	req, err := decodePath(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	res := h.p.Process(r.Context(), req.Path)
	switch {
	case res.LoadErr != nil:
		writeError(w, statusFor(res.LoadErr), res.LoadErr)
	case !res.OK():
		writeJSON(w, 500, res)
	default:
		writeJSON(w, 201, res)
	}
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	db := h.p.DB()
	if db == nil {
		writeError(w, 503, errors.New("database sink is disabled"))
		return
	}
	rows, err := db.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if rows == nil {
		rows = []sqlstore.DocumentRow{}
	}
	writeJSON(w, 200, map[string]any{"documents": rows})
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	db := h.p.DB()
	if db == nil {
		writeError(w, 503, errors.New("database sink is disabled"))
		return
	}
	doc, err := db.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, doc)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, docpipe.ErrFileNotFound), errors.Is(err, sqlstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docpipe.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, docpipe.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, docpipe.ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sqlstore.ErrNotConnected), errors.Is(err, sqlstore.ErrSchemaNotReady):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
