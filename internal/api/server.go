package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockDataServer/internal/adapters/logger"
	"stockDataServer/internal/app"
	"stockDataServer/internal/domain"
	"stockDataServer/internal/ports"
)

const requestIDHeader = "X-Request-ID"

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// PriceService is the application behavior exposed over HTTP.
type PriceService interface {
	ListTickers(ctx context.Context) ([]string, error)
	GetPrices(ctx context.Context, ticker string) (*app.PriceSeries, error)
	Simulate(ctx context.Context, req app.SimulationRequest) (*app.SimulationResult, error)
	SimulationDefaults() domain.SimulationParameters
}

type Server struct {
	svc        PriceService
	logger     ports.Logger
	httpServer *http.Server
	apiKey     string
}

func NewServer(svc PriceService, log ports.Logger, port int, apiKey, corsOrigin string) *Server {
	s := &Server{
		svc:    svc,
		logger: log,
		apiKey: apiKey,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/tickers", s.handleTickers)
	mux.HandleFunc("GET /api/prices", s.handlePrices)
	mux.HandleFunc("GET /api/simulate", s.handleSimulate)

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.requestIDMiddleware(corsMiddleware(s.authMiddleware(mux), corsOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // Cache misses wait on the upstream provider
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until Shutdown is called, then returns http.ErrServerClosed.
func (s *Server) Start() error {
	ctx := context.Background()
	s.logger.Info(ctx, "REST API server started", map[string]interface{}{"addr": s.httpServer.Addr})
	if s.apiKey != "" {
		s.logger.Info(ctx, "Authentication: enabled (Bearer token)")
	} else {
		s.logger.Info(ctx, "Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.Info(ctx, "HTTP request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Microsecond).String(),
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func parseDate(value string) (time.Time, bool) {
	if !dateRegexp.MatchString(value) {
		return time.Time{}, false
	}
	t, err := time.Parse(domain.DateLayout, value)
	return t, err == nil
}

// --- response helpers ---

// writeJSON encodes v before committing status, so a value that cannot be encoded
// yields a 500 instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidParameter), errors.Is(err, ports.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrUnsupportedTicker):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNumericInstability):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ports.ErrProviderUnavailable),
		errors.Is(err, ports.ErrRateLimited),
		errors.Is(err, ports.ErrAuthenticationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes the mapped status. Internal failures hide their details.
func (s *Server) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(ctx, err, msg)
		writeError(w, status, msg)
		return
	}
	s.logger.Warn(ctx, msg, map[string]interface{}{"status": status, "error": err.Error()})
	writeError(w, status, err.Error())
}
