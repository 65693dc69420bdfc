package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/config"
	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/metrics"
	"github.com/roshanis/shopagent/internal/policy/ratelimit"
	"github.com/roshanis/shopagent/internal/service"
)

const (
	serviceName    = "Shopping Agent Lab"
	serviceVersion = "1.0.0"
	requestTimeout = 60 * time.Second
	maxBodyBytes   = 1 << 20
)

// Evaluations is the set of operations the HTTP API exposes.
type Evaluations interface {
	Agents() []evaluation.Agent
	Submit(ctx context.Context, product evaluation.Product) (evaluation.SubmitResponse, error)
	Status(ctx context.Context, id string) (evaluation.StatusSnapshot, error)
	Result(ctx context.Context, id string) (evaluation.ResultSnapshot, error)
	Cancel(ctx context.Context, id string) (evaluation.SubmitResponse, error)
}

var _ Evaluations = (*service.Service)(nil)

// Server wires HTTP handlers to the evaluation service.
type Server struct {
	router  chi.Router
	evals   Evaluations
	cfg     config.Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(evals Evaluations, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		evals: evals,
		cfg:   cfg,
		limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Server.SubmitRPS,
			DefaultBurst: cfg.Server.SubmitBurst,
		}),
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if cfg.Metrics.Enabled {
		r.Use(metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/", s.info)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/agents", s.listAgents)
		r.With(s.submitLimit).Post("/evaluate", s.submit)
		r.Route("/evaluate/{id}", func(r chi.Router) {
			r.Get("/status", s.status)
			r.Get("/result", s.result)
			r.Delete("/", s.cancel)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type infoResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Agents    int               `json:"agents"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, infoResponse{
		Name:    serviceName,
		Version: serviceVersion,
		Status:  "running",
		Agents:  len(s.evals.Agents()),
		Endpoints: map[string]string{
			"agents":   "GET /api/agents",
			"evaluate": "POST /api/evaluate",
			"status":   "GET /api/evaluate/{id}/status",
			"result":   "GET /api/evaluate/{id}/result",
			"cancel":   "DELETE /api/evaluate/{id}",
		},
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

type agentsResponse struct {
	Agents []evaluation.Agent `json:"agents"`
	Count  int                `json:"count"`
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	list := s.evals.Agents()
	if list == nil {
		list = []evaluation.Agent{}
	}
	writeJSON(w, r, http.StatusOK, agentsResponse{Agents: list, Count: len(list)})
}

type submitRequest struct {
	Product *evaluation.Product `json:"product"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if req.Product == nil {
		writeError(w, r, http.StatusUnprocessableEntity, "product is required")
		return
	}
	resp, err := s.evals.Submit(r.Context(), *req.Product)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	snap, err := s.evals.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	res, err := s.evals.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	resp, err := s.evals.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// fail maps a service error onto a status code and a {"detail": ...} body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var subErr *evaluation.SubmissionError
	var notReady *service.NotReadyError
	switch {
	case errors.As(err, &subErr):
		writeError(w, r, http.StatusUnprocessableEntity, subErr.Message())
	case errors.Is(err, evaluation.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Evaluation not found")
	case errors.As(err, &notReady):
		writeError(w, r, http.StatusConflict, notReady.Error())
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, r, http.StatusServiceUnavailable, "Evaluation queue is full. Please try again later.")
	default:
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
			}
			switch {
			case status >= 500:
				s.logger.Error("request completed", fields...)
			case status >= 400:
				s.logger.Warn("request completed", fields...)
			case r.URL.Path == "/healthz" || r.URL.Path == "/readyz":
				s.logger.Debug("request completed", fields...)
			default:
				s.logger.Info("request completed", fields...)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.String("panic", fmt.Sprint(rec)),
					zap.Stack("stack"),
				)
				writeError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// submitLimit throttles submissions per API key, or per remote host when
// requests are anonymous.
func (s *Server) submitLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "Too many evaluation requests. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "host:" + host
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"detail":"request timed out"}`)
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, r, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"detail": msg})
}
