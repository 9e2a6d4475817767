// Serves price predictions over HTTP and the gRPC health service.
//
// Usage:
//
//	go run ./cmd/milk-server
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"milkcast/internal/api"
	"milkcast/internal/app"
	"milkcast/internal/httpapi"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Load(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	handler := httpapi.NewServer(a.Registry, a.Partitions, a.Ledger, a.Metrics, a.Log).Handler()

	cfg := a.Config.Server
	httpAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	grpcAddr := ""
	if cfg.GRPCPort > 0 {
		grpcAddr = fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort)
	}

	srv := api.NewServer(httpAddr, grpcAddr, handler, a.Log)
	if err := srv.ListenAndServe(ctx); err != nil {
		a.Fatalf("server: %v", err)
	}
	a.Log.Info("server stopped")
}
