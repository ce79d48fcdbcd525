package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TechXTT/pgraph/internal/auth"
	"github.com/TechXTT/pgraph/internal/graph"
	"github.com/TechXTT/pgraph/internal/introspect"
	"github.com/TechXTT/pgraph/internal/logging"
	"github.com/TechXTT/pgraph/internal/plugin"
	"github.com/TechXTT/pgraph/internal/plugin/createlog"
	"github.com/TechXTT/pgraph/internal/requestid"
	"github.com/TechXTT/pgraph/pkg/config"
)

// Server serves the generated GraphQL API.
type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	schema  graphql.Schema
	metrics *prometheus.Registry
	handler http.Handler
}

// New introspects the configured schema over db, registers the plugins and
// builds the HTTP handler.
func New(ctx context.Context, cfg *config.Config, db *sql.DB, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewDBStatsCollector(db, "pgraph"),
	)

	auditLog, err := logging.NewAudit(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	audit := createlog.New(auditLog)
	metrics.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "pgraph",
		Name:      "audit_log_failures_total",
		Help:      "Create attempts whose audit line could not be written.",
	}, func() float64 { return float64(audit.Failures()) }))

	registry := plugin.NewRegistry(plugin.WithLogger(log), plugin.WithMetrics(metrics))
	if err := registry.Use(audit); err != nil {
		return nil, err
	}

	cat, err := introspect.Load(ctx, db, cfg.Schema)
	if err != nil {
		return nil, err
	}
	schema, err := graph.Build(cat, graph.Config{
		DB:          db,
		Registry:    registry,
		Logger:      log,
		UserIDClaim: cfg.UserIDClaim,
	})
	if err != nil {
		return nil, err
	}
	return NewWithSchema(cfg, schema, metrics, log), nil
}

// NewWithSchema builds a server around an already generated schema.
func NewWithSchema(cfg *config.Config, schema graphql.Schema, metrics *prometheus.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, log: log, schema: schema, metrics: metrics}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	api := handler.New(&handler.Config{
		Schema:   &s.schema,
		Pretty:   true,
		GraphiQL: false,
	})
	graphiql := handler.New(&handler.Config{
		Schema:   &s.schema,
		Pretty:   true,
		GraphiQL: true,
	})

	mux := http.NewServeMux()
	mux.Handle(s.cfg.GraphQLRoute, api)
	if s.cfg.GraphiQL && s.cfg.GraphiQLRoute != s.cfg.GraphQLRoute {
		mux.Handle(s.cfg.GraphiQLRoute, onlyPath(s.cfg.GraphiQLRoute, graphiql))
	}
	if s.metrics != nil {
		mux.Handle(s.cfg.MetricsRoute, promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	verifier := auth.NewVerifier(s.cfg.JWTSecret, s.cfg.JWTAudience, s.log)
	return requestid.Middleware(s.accessLog(verifier.Middleware(mux)))
}

// onlyPath stops a "/" pattern from swallowing unknown paths.
func onlyPath(path string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", requestid.From(r.Context())))
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(l)
	}()
	s.log.Info("graphql server listening",
		zap.String("addr", l.Addr().String()),
		zap.String("graphql", s.cfg.GraphQLRoute),
		zap.Bool("graphiql", s.cfg.GraphiQL))

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Addr())
	}
	return s.Serve(ctx, l)
}
