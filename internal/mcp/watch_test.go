package mcp_test

import (
	"context"
	"testing"
	"time"

	mcpserver "bidcheck/internal/mcp"
)

func TestWatchParent_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan struct{})

	mcpserver.WatchParent(ctx, func() { close(fired) }, 10*time.Millisecond)
	cancel()

	select {
	case <-fired:
		t.Fatal("cancel fired although the parent is alive")
	case <-time.After(100 * time.Millisecond):
	}
}
