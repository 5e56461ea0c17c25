package httpserver

import (
	"context"
	"net/http"
	"testing"
)

func TestNewDisablesWriteTimeout(t *testing.T) {
	srv := New(8081, http.NotFoundHandler())

	if srv.Addr() != ":8081" {
		t.Fatalf("unexpected addr %q", srv.Addr())
	}
	if srv.inner.WriteTimeout != 0 {
		t.Fatalf("streaming responses need no write timeout, got %s", srv.inner.WriteTimeout)
	}
	if srv.inner.ReadHeaderTimeout == 0 {
		t.Fatal("expected a read header timeout")
	}
}

func TestShutdownRunsHooks(t *testing.T) {
	srv := New(0, http.NotFoundHandler())

	called := make(chan struct{})
	srv.OnShutdown(func() { close(called) })

	if err := Stop(srv); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-called

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
