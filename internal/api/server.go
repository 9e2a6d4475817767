// Package api hosts the prediction HTTP API and the gRPC health service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "milkcast.Prediction"

// Server runs the HTTP listener and, when a gRPC address is set, a gRPC
// listener carrying the standard health service.
type Server struct {
	httpAddr string
	grpcAddr string
	log      *slog.Logger

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server

	httpLn net.Listener
	grpcLn net.Listener
}

// NewServer creates a Server for handler. An empty grpcAddr disables gRPC.
func NewServer(httpAddr, grpcAddr string, handler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		httpAddr: httpAddr,
		grpcAddr: grpcAddr,
		log:      log,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	if grpcAddr != "" {
		s.health = health.NewServer()
		s.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.health)
	}
	return s
}

// Listen binds the listeners without serving. ListenAndServe calls it when
// needed.
func (s *Server) Listen() error {
	if s.httpLn == nil {
		ln, err := net.Listen("tcp", s.httpAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
		}
		s.httpLn = ln
	}
	if s.grpcServer != nil && s.grpcLn == nil {
		ln, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			s.httpLn.Close()
			s.httpLn = nil
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
		s.grpcLn = ln
	}
	return nil
}

// HTTPAddr returns the bound HTTP address, or the configured one before
// Listen.
func (s *Server) HTTPAddr() string {
	if s.httpLn != nil {
		return s.httpLn.Addr().String()
	}
	return s.httpAddr
}

// GRPCAddr returns the bound gRPC address, or the configured one before
// Listen.
func (s *Server) GRPCAddr() string {
	if s.grpcLn != nil {
		return s.grpcLn.Addr().String()
	}
	return s.grpcAddr
}

// ListenAndServe serves until ctx is cancelled or a listener fails, then
// shuts both servers down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", s.HTTPAddr())
		if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	if s.grpcServer != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		g.Go(func() error {
			s.log.Info("gRPC server listening", "addr", s.GRPCAddr())
			if err := s.grpcServer.Serve(s.grpcLn); err != nil {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.log.Error("shutdown error", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// Shutdown marks the service as not serving and stops both servers,
// waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpcServer != nil {
		s.health.Shutdown()
		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	}
	return s.httpServer.Shutdown(ctx)
}
