package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"milkcast/internal/app"
	"milkcast/internal/config"
	"milkcast/internal/gather/sniim"
)

func TestCheckExitCodes(t *testing.T) {
	published := time.Date(2025, 7, 30, 0, 0, 0, 0, time.UTC)
	missing := published.AddDate(0, 0, -1)
	broken := published.AddDate(0, 0, -2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch filepath.Base(r.URL.Path) {
		case sniim.FileName(published):
			w.WriteHeader(http.StatusOK)
		case sniim.FileName(broken):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	a, err := app.New(context.Background(), &config.Config{
		Storage:  config.Storage{Source: "local", DataDir: filepath.Join(dir, "data"), SQLitePath: filepath.Join(dir, "ledger.db")},
		Upstream: config.Upstream{BaseURL: srv.URL, Timeout: time.Second},
		Logging:  config.Logging{Level: "error", Format: "text"},
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	defer a.Close()

	tests := []struct {
		date time.Time
		want int
	}{
		{published, exitIngest},
		{missing, exitSkip},
		{broken, exitError},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := check(context.Background(), a, tt.date, &out); got != tt.want {
			t.Errorf("check(%s) = %d, want %d (output %q)", tt.date.Format("2006-01-02"), got, tt.want, out.String())
		}
	}
}
