package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargehub/backend/services/coordinator-service/internal/config"
)

func TestMemoryAppStartsAndStops(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	cfg.Auth.JWTSecret = "secret"
	cfg.HTTP.Port = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	application, err := New(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer application.Close()

	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("app did not stop")
	}
}
