//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_SharedAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	writer := NewTracker(redisClient, logger)
	reader := NewTracker(redisClient, logger)
	ctx := context.Background()

	h := http.Header{}
	h.Set(HeaderRemainingRequests, "1")
	h.Set(HeaderResetRequests, "30s")
	if err := writer.UpdateFromHeaders(ctx, h); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	allowed, err := reader.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("second tracker should see the exhausted budget and block")
	}
}

func TestTracker_Integration_WindowReset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)
	ctx := context.Background()

	h := http.Header{}
	h.Set(HeaderRemainingRequests, "0")
	h.Set(HeaderResetRequests, "1s")
	if err := tracker.UpdateFromHeaders(ctx, h); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	if allowed, _ := tracker.ShouldAllowRequest(ctx); allowed {
		t.Fatal("request should be blocked before the window resets")
	}

	time.Sleep(1500 * time.Millisecond)

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("request should be allowed once the window has reset")
	}
}

func TestTracker_Integration_ConcurrentUpdates(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := http.Header{}
			h.Set(HeaderRemainingRequests, "100")
			h.Set(HeaderResetRequests, "10s")
			if err := tracker.UpdateFromHeaders(ctx, h); err != nil {
				t.Errorf("UpdateFromHeaders() error = %v", err)
			}
		}()
	}
	wg.Wait()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.RequestsRemaining != 100 || !state.IsHealthy {
		t.Errorf("state = %+v, want 100 remaining and healthy", state)
	}
}
