// Package ws implements the WebSocket status stream for uamguard.
//
// Hub manages a set of connected clients and broadcasts the current
// protection status to all of them on a configurable interval.
//
// New(board, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker — blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// status immediately on connect, then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "status",
//	  "data":  { /* same schema as GET /api/v1/status */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream by the daemon.
package ws
