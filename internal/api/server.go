package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stockroom/stockroom-core/internal/audit"
	"github.com/stockroom/stockroom-core/internal/auth"
	"github.com/stockroom/stockroom-core/internal/infrastructure/config"
	"github.com/stockroom/stockroom-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// revocationPurgeInterval is how often dead revocation-list entries are
// swept. Expired tokens fail signature validation on their own, so the
// sweep only reclaims storage.
const revocationPurgeInterval = time.Hour

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.ServerConfig
	Logger      *logging.Logger
	Auth        *auth.Service
	Revocations auth.RevocationList
	Audit       audit.Repository // optional: audit endpoints return 500 without it
	Version     string
}

// Server is the HTTP API server for Stockroom Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg         config.ServerConfig
	logger      *logging.Logger
	auth        *auth.Service
	revocations auth.RevocationList
	audit       audit.Repository
	version     string
	server      *http.Server
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		auth:        deps.Auth,
		revocations: deps.Revocations,
		audit:       deps.Audit,
		version:     deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, launches the revocation-list sweeper, and starts
// the HTTP listener in a background goroutine. The server is stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.revocations != nil {
		go s.purgeRevocationsLoop(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// purgeRevocationsLoop sweeps expired revocation-list entries periodically
// until the context is cancelled.
func (s *Server) purgeRevocationsLoop(ctx context.Context) {
	ticker := time.NewTicker(revocationPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.revocations.PurgeExpired(ctx)
			if err != nil {
				s.logger.Error("purging expired revocations failed", "error", err)
				continue
			}
			if purged > 0 {
				s.logger.Info("purged expired revocations", "count", purged)
			}
		}
	}
}
