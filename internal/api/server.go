// Package api serves the sequencer over HTTP.
//
// Endpoints:
//
//	POST /v1/tx              submit a transaction (JSON, see tx.MarshalJSON)
//	GET  /v1/root            current accumulator root and ledger counts
//	GET  /v1/outputs/{index} one registered output
//	GET  /healthz            component health
//	GET  /metrics            Prometheus metrics
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mockmonero/internal/group"
	"mockmonero/internal/health"
	"mockmonero/internal/ledger"
	"mockmonero/internal/logging"
	"mockmonero/internal/metrics"
	"mockmonero/internal/sequencer"
	"mockmonero/internal/transcript"
	"mockmonero/internal/tx"
)

// MaxBodyBytes caps a submitted transaction.
const MaxBodyBytes = 4 << 20

const requestIDHeader = "X-Request-ID"

// RootResponse is the body of GET /v1/root.
type RootResponse struct {
	Root    string `json:"root"`
	Outputs uint64 `json:"outputs"`
	Spent   uint64 `json:"spent"`
}

// OutputResponse is the body of GET /v1/outputs/{index}.
type OutputResponse struct {
	Index uint64        `json:"index"`
	P     hexutil.Bytes `json:"p"`
	C     hexutil.Bytes `json:"c"`
	Leaf  hexutil.Bytes `json:"leaf"`
}

// ErrorResponse is returned with every 4xx and 5xx status.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Server wires the sequencer to an http.Handler.
type Server struct {
	g       group.Group
	seq     *sequencer.Sequencer
	health  *health.Checker
	metrics *metrics.Collector
	limiter *ClientLimiter
	log     *logging.Logger
}

// NewServer creates a server. A nil limiter disables rate limiting.
func NewServer(g group.Group, seq *sequencer.Sequencer, hc *health.Checker, m *metrics.Collector, limiter *ClientLimiter, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	if hc == nil {
		hc = health.NewChecker("")
	}
	return &Server{g: g, seq: seq, health: hc, metrics: m, limiter: limiter, log: log}
}

// Handler returns the routed handler with request ids and rate limiting.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tx", s.handleTx)
	mux.HandleFunc("GET /v1/root", s.handleRoot)
	mux.HandleFunc("GET /v1/outputs/{index}", s.handleOutput)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.requestID(s.rateLimit(mux))
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

type ctxKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probes are never limited.
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		client := clientAddr(r)
		if !s.limiter.Allow(client) {
			s.log.Warn("rate limited", zap.String("client", client), zap.String("path", r.URL.Path))
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), RequestID: requestIDFrom(r.Context())})
}

// statusFor maps a submission outcome to an HTTP status.
func statusFor(rc sequencer.Receipt, err error) int {
	switch {
	case errors.Is(err, tx.ErrMalformed), errors.Is(err, tx.ErrDuplicateKeyImage):
		return http.StatusBadRequest
	case err != nil:
		return http.StatusInternalServerError
	case rc.Accepted:
		return http.StatusAccepted
	case rc.DoubleSpend:
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	t, err := tx.UnmarshalJSON(s.g, body)
	if err != nil {
		s.metrics.RecordSubmission(metrics.ResultMalformed)
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	rc, err := s.seq.Submit(r.Context(), t)
	status := statusFor(rc, err)
	if err != nil {
		if status == http.StatusInternalServerError {
			s.log.Error("submit failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		}
		s.writeError(w, r, status, err)
		return
	}
	writeJSON(w, status, rc)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	st, err := s.seq.Stats()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, RootResponse{Root: sequencer.RootHex(st.Root), Outputs: st.Outputs, Spent: st.Spent})
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("index must be a non-negative integer"))
		return
	}
	rec, err := s.seq.Output(index)
	if errors.Is(err, ledger.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, OutputResponse{
		Index: rec.Index,
		P:     transcript.Point(rec.P),
		C:     transcript.Point(rec.C),
		Leaf:  transcript.Scalar(rec.Leaf),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Check(r.Context())
	status := http.StatusOK
	if rep.Status == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}
