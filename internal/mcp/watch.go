package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// WatchParent cancels the server when its parent process goes away, so an
// orphaned stdio server does not linger. It never reads stdin; the stdio
// transport owns it.
func WatchParent(ctx context.Context, cancel context.CancelFunc, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ppid := os.Getppid()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if os.Getppid() != ppid {
					slog.Warn("parent process exited, shutting down", "component", "mcp", "ppid", ppid)
					cancel()
					return
				}
			}
		}
	}()
}
