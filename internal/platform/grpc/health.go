// Package grpc holds gRPC client helpers used by command probes.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// ProbeStage describes where a health probe failed.
type ProbeStage string

const (
	// ProbeStageConnect indicates the client could not be created.
	ProbeStageConnect ProbeStage = "connect"
	// ProbeStageHealth indicates the endpoint never reported SERVING.
	ProbeStageHealth ProbeStage = "health"
)

// ProbeError wraps probe failures with the stage that failed.
type ProbeError struct {
	Stage ProbeStage
	Err   error
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	if e == nil {
		return "gRPC probe error"
	}
	return fmt.Sprintf("gRPC %s error: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientOptions returns the dial options used for local probes. The stats
// handler propagates trace context when a TracerProvider is registered.
func ClientOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Probe connects to addr and waits until service reports SERVING or ctx ends.
// An empty service checks overall server health.
func Probe(ctx context.Context, addr, service string, logf func(string, ...any)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := gogrpc.NewClient(addr, ClientOptions()...)
	if err != nil {
		return &ProbeError{Stage: ProbeStageConnect, Err: err}
	}
	defer conn.Close()
	if err := WaitForHealth(ctx, conn, service, logf); err != nil {
		return &ProbeError{Stage: ProbeStageHealth, Err: err}
	}
	return nil
}

// WaitForHealth blocks until the gRPC health check reports SERVING or the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("waiting for gRPC health: %v", err)
			} else {
				logf("waiting for gRPC health: status %s", response.GetStatus())
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff = min(backoff*2, time.Second)
		}
	}
}
