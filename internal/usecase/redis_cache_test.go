package usecase

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDialRedisCacheFailsWhenUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := DialRedisCache(ctx, addr); err == nil {
		t.Fatal("expected error dialing a closed port")
	}
}
