// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package supervisor provides process supervision for Sentinel using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of Sentinel's long-running background services. It provides
Erlang/OTP-style supervision with automatic restart, failure isolation, and
graceful shutdown.

# Overview

The supervisor tree organizes services into three layers for failure
isolation:

	RootSupervisor ("sentinel")
	├── DataSupervisor ("data-layer")
	│   └── BadgerGCService (hot-state and cold-state value-log GC)
	├── PublishSupervisor ("publish-layer")
	│   └── CloserService (NATS provisional-ban publisher)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (the evaluate/stream HTTP surface)

This hierarchy ensures that:
  - A crash publishing a provisional ban doesn't affect the API's ability
    to keep evaluating sessions.
  - A stalled GC sweep doesn't take down the HTTP server.
  - Each layer restarts independently, following suture's exponential
    backoff policy.

# Usage Example

	func main() {
	    logger := slog.Default()
	    tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	    if err != nil {
	        log.Fatal(err)
	    }

	    tree.AddDataService(services.NewBadgerGCService(hotDB, 10*time.Minute, "hot-gc"))
	    tree.AddDataService(services.NewBadgerGCService(coldDB, 30*time.Minute, "cold-gc"))
	    tree.AddPublishService(services.NewCloserService(publisher, "nats-publisher"))
	    tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))

	    if err := tree.Serve(ctx); err != nil {
	        log.Printf("supervisor stopped: %v", err)
	    }
	}

# Failure Handling

The supervisor uses a failure counter with exponential decay, per suture's
defaults: each failure increments a counter that decays over FailureDecay
seconds; once the counter crosses FailureThreshold, restarts are delayed by
FailureBackoff.

# Service Interface

All services must implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return nil for a clean stop (no restart), an error to trigger a restart, or
ctx.Err() on a requested shutdown.

# See Also

  - internal/supervisor/services: service wrappers
  - github.com/thejerf/suture/v4: underlying supervision library
*/
package supervisor
