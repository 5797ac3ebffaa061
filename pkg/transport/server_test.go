package transport

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestServer_Shutdown_NoOpBeforeRun(t *testing.T) {
	s := NewServer(DefaultServerConfig("127.0.0.1:0"), http.NotFoundHandler(), nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown before Run: %v", err)
	}
}

func TestServer_Run_ReturnsNilAfterGracefulShutdown(t *testing.T) {
	cfg := DefaultServerConfig("127.0.0.1:0")
	cfg.ShutdownTimeout = time.Second
	s := NewServer(cfg, http.NotFoundHandler(), nil)

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run() }()

	// Give the listener goroutine a moment to start before shutting it down.
	time.Sleep(50 * time.Millisecond)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Shutdown")
	}
}
