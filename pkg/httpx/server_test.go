package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"ingestd/pkg/config"
)

func pingHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	return mux
}

func runEngine(t *testing.T, engine string) {
	t.Helper()
	s := New("127.0.0.1:0", engine, pingHandler(), config.TLSConfig{})
	errCh := s.Start()
	select {
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/ping", s.Addr()))
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "pong" {
		t.Fatalf("body = %q", body)
	}
}

func TestServeNetHTTP(t *testing.T)  { runEngine(t, "nethttp") }
func TestServeFastHTTP(t *testing.T) { runEngine(t, "fasthttp") }

func TestUnknownEngineFallsBack(t *testing.T) {
	s := New("127.0.0.1:0", "carrier-pigeon", pingHandler(), config.TLSConfig{})
	if got := s.engineName(); got != "nethttp" {
		t.Fatalf("engineName = %q, want nethttp", got)
	}
}
