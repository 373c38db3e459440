package server_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"settlement-service/internal/server"

	"github.com/stretchr/testify/assert"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx, "127.0.0.1:0", http.NewServeMux(), slog.Default())
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
