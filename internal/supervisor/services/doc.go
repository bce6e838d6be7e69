// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package services provides suture.Service wrappers for Sentinel's background
components.

Each wrapper adapts a component's native lifecycle (ListenAndServe/Shutdown,
periodic sweep, or a bare Close) into suture's context-aware Serve pattern.

# Available Services

HTTPServerService wraps *http.Server, converting its blocking
ListenAndServe into Serve and calling Shutdown with a bounded timeout on
context cancellation. Used for Sentinel's evaluate/stream HTTP API.

BadgerGCService runs BadgerDB's value-log garbage collection on a fixed
interval until canceled. Both hotstate and coldstate write through Badger
directly and have no GC loop of their own, so this sweeper is what keeps
their value logs bounded in a long-running process.

CloserService supervises a component whose only lifecycle hook is Close,
such as the NATS provisional-ban publisher: it has no run loop, only a
connection to release on shutdown. Serve blocks until canceled, then closes.

# Lifecycle Patterns

	ListenAndServe pattern (HTTPServerService):
	    go server.ListenAndServe()
	    <-ctx.Done()
	    server.Shutdown(shutdownCtx)

	Periodic sweep pattern (BadgerGCService):
	    for {
	        select {
	        case <-ctx.Done(): return ctx.Err()
	        case <-ticker.C: sweep()
	        }
	    }

	Closer pattern (CloserService):
	    <-ctx.Done()
	    return closer.Close()

# Error Handling

Return values determine supervisor behavior: nil means the service stopped
cleanly and will not restart; a non-nil error means the supervisor will
restart it according to the tree's backoff policy; ctx.Err() on a requested
shutdown is the expected terminal value.

# Service Identification

All services implement fmt.Stringer, which suture uses to identify them in
log messages (e.g. "http-server", "hot-gc", "nats-publisher").

# See Also

  - internal/supervisor: SupervisorTree that manages these services
  - github.com/thejerf/suture/v4: underlying supervision library
*/
package services
