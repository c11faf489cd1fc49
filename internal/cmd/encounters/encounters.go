// Package encounters parses encounter command flags and starts the service.
package encounters

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	entrypoint "github.com/louisbranch/opsroom/internal/platform/cmd"
	"github.com/louisbranch/opsroom/internal/platform/config"
	platformgrpc "github.com/louisbranch/opsroom/internal/platform/grpc"
	server "github.com/louisbranch/opsroom/internal/services/encounters/app"
)

const healthCheckTimeout = 3 * time.Second

// Config holds encounter command configuration.
type Config struct {
	Port           int      `env:"OPSROOM_ENCOUNTERS_PORT" envDefault:"8090"`
	Addr           string   `env:"OPSROOM_ENCOUNTERS_ADDR"`
	HealthPort     int      `env:"OPSROOM_ENCOUNTERS_HEALTH_PORT" envDefault:"8091"`
	DBDriver       string   `env:"OPSROOM_ENCOUNTERS_DB_DRIVER" envDefault:"sqlite"`
	DBPath         string   `env:"OPSROOM_ENCOUNTERS_DB_PATH" envDefault:"data/encounters.db"`
	DatabaseURL    string   `env:"OPSROOM_ENCOUNTERS_DATABASE_URL"`
	JWTSecret      string   `env:"OPSROOM_AUTH_JWT_SECRET"`
	JWTAudience    string   `env:"OPSROOM_AUTH_JWT_AUDIENCE" envDefault:"authenticated"`
	AllowedOrigins []string `env:"OPSROOM_ENCOUNTERS_ALLOWED_ORIGINS" envSeparator:","`

	// HealthCheck probes a running server instead of starting one.
	HealthCheck bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The encounter HTTP port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The encounter HTTP listen address (overrides -port)")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The gRPC health port")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Storage driver (sqlite or postgres)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Probe the local gRPC health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ServerConfig maps command settings onto server wiring.
func (c Config) ServerConfig() server.Config {
	httpAddr := c.Addr
	if httpAddr == "" {
		httpAddr = ":" + strconv.Itoa(c.Port)
	}
	return server.Config{
		HTTPAddr:       httpAddr,
		HealthAddr:     ":" + strconv.Itoa(c.HealthPort),
		DBDriver:       c.DBDriver,
		DBPath:         c.DBPath,
		DatabaseURL:    c.DatabaseURL,
		JWTSecret:      c.JWTSecret,
		JWTAudience:    c.JWTAudience,
		AllowedOrigins: c.AllowedOrigins,
	}
}

// Run starts the encounter service, or probes it when HealthCheck is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.HealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.HealthPort))
		if err := platformgrpc.Probe(probeCtx, addr, server.HealthService, nil); err != nil {
			return fmt.Errorf("health check %s: %w", addr, err)
		}
		log.Printf("encounters healthy at %s", addr)
		return nil
	}
	if err := config.RequireNonEmpty("OPSROOM_AUTH_JWT_SECRET", cfg.JWTSecret); err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEncounters, func(ctx context.Context) error {
		return server.Run(ctx, cfg.ServerConfig())
	})
}
