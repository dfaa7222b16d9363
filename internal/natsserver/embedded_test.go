package natsserver

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-studio/internal/bus"
	"github.com/loqalabs/loqa-studio/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStartDisabled(t *testing.T) {
	srv, err := Start(config.BusConfig{Enabled: false, Embedded: true}, newLogger())
	if err != nil || srv != nil {
		t.Fatalf("expected nil server when bus disabled, got %v %v", srv, err)
	}
	srv.Shutdown() // nil-safe
}

func TestEmbeddedRoundTrip(t *testing.T) {
	log := newLogger()
	srv, err := Start(config.BusConfig{Enabled: true, Embedded: true, Port: -1, StoreDir: t.TempDir()}, log)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), "test", config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	got := make(chan string, 1)
	sub, err := client.Subscribe("studio.test", func(data []byte) { got <- string(data) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Drain()
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := client.Publish("studio.test", []byte("ping")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-got:
		if msg != "ping" {
			t.Fatalf("unexpected message %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	if !client.Healthy() {
		t.Fatalf("expected healthy client")
	}
}
