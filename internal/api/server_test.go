package api

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServerServesHTTPAndHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	s := NewServer("127.0.0.1:0", "127.0.0.1:0", mux, nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	resp, err := http.Get("http://" + s.HTTPAddr() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	conn, err := grpc.NewClient(s.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()
	var status healthpb.HealthCheckResponse_ServingStatus
	// Serving status is set by the serve goroutine; poll until it is.
	for status != healthpb.HealthCheckResponse_SERVING {
		res, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			if checkCtx.Err() != nil {
				t.Fatalf("health check: %v", err)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if status = res.GetStatus(); status != healthpb.HealthCheckResponse_SERVING {
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerWithoutGRPC(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", http.NotFoundHandler(), nil)
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	if s.GRPCAddr() != "" {
		t.Errorf("GRPCAddr = %q, want empty", s.GRPCAddr())
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	s.httpLn.Close()
}
