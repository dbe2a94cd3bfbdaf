// Package api exposes oracle sessions over HTTP so that drivers and harnesses
// running in another process, or on target hardware, can be compared against
// the model.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storemodel/internal/engine"
	"storemodel/internal/format"
	"storemodel/internal/journal"
	"storemodel/internal/metrics"
	"storemodel/internal/model"
)

const maxBodyBytes = 1 << 20

type Options struct {
	// Format is used for sessions created without an explicit format.
	Format format.Format
	// JournalDir receives one journal file per session when not empty.
	JournalDir string
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server serves the oracle API. Close it to flush session journals.
type Server struct {
	opts     Options
	log      *zap.Logger
	metrics  *metrics.Metrics
	sessions *sessions
	router   chi.Router
}

// NewServer wires the handlers into a router and exposes health and metrics
// endpoints.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	s := &Server{
		opts:     opts,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		sessions: newSessions(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.deleteSession)
			r.Get("/format", s.getFormat)
			r.Get("/capacity", s.getCapacity)
			r.Get("/content", s.listContent)
			r.Get("/content/{key}", s.getEntry)
			r.Post("/apply", s.apply)
		})
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close drops every session and closes their journals.
func (s *Server) Close() error {
	var errs []error
	for _, sess := range s.sessions.drain() {
		errs = append(errs, sess.close())
	}
	s.metrics.Sessions.Set(0)
	return errors.Join(errs...)
}

type capacityResponse struct {
	Used      int `json:"used"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

type sessionResponse struct {
	ID     openapi_types.UUID `json:"id"`
	Format format.Config      `json:"format"`
}

type entryResponse struct {
	Key   int    `json:"key"`
	Value []byte `json:"value"`
}

type applyResponse struct {
	Outcome  string           `json:"outcome"`
	Detail   string           `json:"detail,omitempty"`
	Capacity capacityResponse `json:"capacity"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func toCapacity(r model.Ratio) capacityResponse {
	return capacityResponse{Used: r.Used, Total: r.Total, Remaining: r.Remaining()}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	f := s.opts.Format
	if len(bytes.TrimSpace(body)) > 0 {
		// Fields present in the body replace the default, zero included.
		cfg := f.Config()
		if err := decodeStrict(body, &cfg); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if f, err = format.New(cfg); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	sess := &session{id: uuid.New(), format: f, model: engine.New(f)}
	if s.opts.JournalDir != "" {
		j, err := journal.Open(context.Background(), journal.Config{Path: journalPath(s.opts.JournalDir, sess.id)}, s.log)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		sess.journal = j
	}
	s.sessions.add(sess)
	s.metrics.Sessions.Set(float64(s.sessions.len()))
	s.log.Info("session created", zap.Stringer("session", sess.id), zap.Stringer("format", f))

	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.id, Format: f.Config()})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.remove(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.metrics.Sessions.Set(float64(s.sessions.len()))
	if err := sess.close(); err != nil {
		s.log.Warn("closing session journal", zap.Stringer("session", id), zap.Error(err))
	}
	s.log.Info("session deleted", zap.Stringer("session", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getFormat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.format.Config())
}

func (s *Server) getCapacity(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.mu.Lock()
	capacity := sess.model.Capacity()
	sess.mu.Unlock()
	writeJSON(w, http.StatusOK, toCapacity(capacity))
}

func (s *Server) listContent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.mu.Lock()
	out := make([]entryResponse, 0, sess.model.Len())
	for _, k := range sess.model.Keys() {
		v, _ := sess.model.Get(k)
		out = append(out, entryResponse{Key: k, Value: v})
	}
	sess.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var key int
	if err := runtime.BindStyledParameterWithLocation("simple", false, "key", runtime.ParamLocationPath, chi.URLParam(r, "key"), &key); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid format for parameter key: %w", err))
		return
	}
	sess.mu.Lock()
	v, found := sess.model.Get(key)
	sess.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("key %d not found", key))
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Key: key, Value: v})
}

// apply answers with the oracle's outcome. A refused operation is a normal
// answer, not an HTTP error.
func (s *Server) apply(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	var wire model.WireOperation
	if err := decodeStrict(body, &wire); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	op, err := wire.Operation()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess.mu.Lock()
	applyErr := sess.model.Apply(op)
	capacity := sess.model.Capacity()
	outcome, err := model.OutcomeOf(applyErr)
	if err == nil && sess.journal != nil {
		// Appending under the session lock keeps the journal in apply order.
		if jerr := sess.journal.Append(op, outcome); jerr != nil {
			s.metrics.JournalFails.Inc()
			s.log.Warn("journal append failed", zap.Stringer("session", sess.id), zap.Error(jerr))
		}
	}
	sess.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.metrics.Observe(op, outcome, capacity)
	s.log.Debug("applied operation",
		zap.Stringer("session", sess.id),
		zap.Stringer("op", op.Kind()),
		zap.Stringer("outcome", outcome))

	resp := applyResponse{Outcome: outcome.String(), Capacity: toCapacity(capacity)}
	if applyErr != nil {
		resp.Detail = applyErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id, ok := sessionID(w, r)
	if !ok {
		return nil, false
	}
	sess, err := s.sessions.get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return sess, true
}

func sessionID(w http.ResponseWriter, r *http.Request) (openapi_types.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid format for parameter id: %w", err))
		return id, false
	}
	return id, true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func decodeStrict(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Message: err.Error()})
}
