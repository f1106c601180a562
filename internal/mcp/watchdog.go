package mcp

import (
	"context"
	"os"
	"time"

	"iacgate/internal/logging"
)

// WatchParent cancels the server when the parent process dies, so a
// disconnected MCP host does not leave a zombie gate process behind.
//
// It must NOT read from stdin: the SDK's StdioTransport owns stdin, and
// stealing bytes from it corrupts the JSON-RPC stream. Parent death is
// detected by polling the parent PID instead.
func WatchParent(ctx context.Context, cancel context.CancelFunc) {
	ppid := os.Getppid()
	log := logging.New("mcp-watchdog")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
				if os.Getppid() != ppid {
					log.Warn("parent process died, shutting down", "was_pid", ppid)
					cancel()
					return
				}
			}
		}
	}()
}
