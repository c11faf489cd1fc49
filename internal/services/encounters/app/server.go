package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/opsroom/internal/platform/timeouts"
	"github.com/louisbranch/opsroom/internal/services/encounters/api/http/operations"
	"github.com/louisbranch/opsroom/internal/services/encounters/domain"
	"github.com/louisbranch/opsroom/internal/services/encounters/live"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage/postgres"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reported by the server.
const HealthService = "opsroom.encounters"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultLiveBuffer = 32

// Config holds server wiring settings.
type Config struct {
	HTTPAddr       string
	HealthAddr     string
	DBDriver       string
	DBPath         string
	DatabaseURL    string
	JWTSecret      string
	JWTAudience    string
	AllowedOrigins []string
	LiveBuffer     int
}

// Server hosts the encounter HTTP API and its gRPC health endpoint.
type Server struct {
	httpListener   net.Listener
	healthListener net.Listener
	httpServer     *http.Server
	grpcServer     *grpc.Server
	health         *health.Server
	store          storage.Store
	hub            *live.Hub
	logger         *slog.Logger
}

// New opens storage and binds both listeners.
func New(ctx context.Context, cfg Config) (server *Server, err error) {
	logger := slog.Default()
	verifier, err := operations.NewTokenVerifier(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()

	liveBuffer := cfg.LiveBuffer
	if liveBuffer <= 0 {
		liveBuffer = defaultLiveBuffer
	}
	hub := live.NewHub(liveBuffer, logger)
	service := domain.NewService(store, domain.WithPublisher(hub), domain.WithLogger(logger))
	handler, err := operations.NewHandler(operations.Config{
		Service:        service,
		Live:           hub,
		Verifier:       verifier,
		Logger:         logger,
		OriginPatterns: cfg.AllowedOrigins,
	})
	if err != nil {
		return nil, err
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	healthListener, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		_ = httpListener.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HealthAddr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		httpListener:   httpListener,
		healthListener: healthListener,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		hub:        hub,
		logger:     logger,
	}, nil
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// HealthAddr returns the bound gRPC health address.
func (s *Server) HealthAddr() string {
	if s == nil || s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Run creates and serves an encounter server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve blocks until ctx ends or a listener fails, then shuts both down.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	s.logger.InfoContext(ctx, "encounters listening",
		slog.String("http_addr", s.HTTPAddr()),
		slog.String("health_addr", s.HealthAddr()),
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := s.grpcServer.Serve(s.healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC health: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		s.hub.Shutdown(shutdownCtx)
		err := s.httpServer.Shutdown(shutdownCtx)
		s.grpcServer.GracefulStop()
		if err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}
		return nil
	})
	return group.Wait()
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close encounter store", slog.Any("err", err))
	}
}

// OpenStore opens the storage backend selected by cfg.DBDriver.
func OpenStore(ctx context.Context, cfg Config) (storage.Store, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver)); driver {
	case "", DriverSQLite:
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			path = filepath.Join("data", "encounters.db")
		}
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case DriverPostgres:
		url := strings.TrimSpace(cfg.DatabaseURL)
		if url == "" {
			return nil, fmt.Errorf("database url is required for the postgres driver")
		}
		store, err := postgres.Open(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.DBDriver)
	}
}

// ensureDir creates parent paths for sqlite files so startup can create DB files.
func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}
