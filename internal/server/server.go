package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"paper_ledger/internal/domain"
	"paper_ledger/internal/engine"
	"paper_ledger/internal/infra"
	"paper_ledger/internal/service"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type ctxKey struct{}

// Server is the JSON HTTP adapter over the ledger service.
type Server struct {
	svc     *service.LedgerService
	hub     *Hub
	metrics *infra.Metrics
	mux     *http.ServeMux
}

// NewServer wires the routes. hub may be nil, in which case /ws is not served.
func NewServer(svc *service.LedgerService, hub *Hub, metrics *infra.Metrics) *Server {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	s := &Server{svc: svc, hub: hub, metrics: metrics, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /assets", s.handleAssets)
	s.mux.HandleFunc("POST /assets/add", s.handleAddAsset)
	s.mux.HandleFunc("POST /assets/remove", s.handleRemoveAsset)

	s.mux.HandleFunc("GET /positions/open", s.handleOpenPositions)
	s.mux.HandleFunc("POST /positions/open", s.handleOpenPosition)
	s.mux.HandleFunc("GET /positions/closed", s.handleClosedPositions)
	s.mux.HandleFunc("POST /positions/close", s.handleClosePosition)

	s.mux.HandleFunc("GET /portfolio", s.handlePortfolio)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.hub != nil {
		s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
}

// ServeHTTP tags every request with an id and logs it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", reqID)

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, reqID)))

	slog.Debug("HTTP request",
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Duration("elapsed", time.Since(start)))
}

// RequestID returns the id ServeHTTP attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

/* ======= Assets ======= */

// GET /assets
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Assets())
}

// POST /assets/add  {"symbol":"usd","quantity":"1000"}
func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var dto service.AssetRequest
	if !decodeBody(w, r, &dto) {
		return
	}
	out, err := s.svc.AddAsset(r.Context(), dto)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /assets/remove  {"symbol":"usd","quantity":"1000"}
func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	var dto service.AssetRequest
	if !decodeBody(w, r, &dto) {
		return
	}
	out, err := s.svc.RemoveAsset(r.Context(), dto)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

/* ======= Positions ======= */

// GET /positions/open
func (s *Server) handleOpenPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.OpenPositions())
}

// POST /positions/open  {"pair":"btc/usd","quantity":"0.05","buyingPrice":"10000"}
func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var dto service.OpenPositionRequest
	if !decodeBody(w, r, &dto) {
		return
	}
	out, err := s.svc.OpenPosition(r.Context(), dto)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /positions/closed
func (s *Server) handleClosedPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ClosedPositions())
}

// POST /positions/close  {"id":"trade_1","pair":"btc/usd","quantity":"0.01","sellingPrice":"14000"}
func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var dto service.ClosePositionRequest
	if !decodeBody(w, r, &dto) {
		return
	}
	out, err := s.svc.ClosePosition(r.Context(), dto)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

/* ======= Read models ======= */

// GET /portfolio
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Portfolio())
}

// GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

/* ======= Helpers ======= */

// fail maps ledger and request errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.metrics.RecordError()
		slog.Error("Request failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownPositionID):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPairMismatch), errors.Is(err, domain.ErrInsufficientPositionQuantity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets /ws upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
