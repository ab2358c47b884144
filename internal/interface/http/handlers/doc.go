// Package handlers contains HTTP handler interfaces, implementations, and middleware.
//
// This package provides:
//   - The Discord interactions endpoint (signature verification and dispatch)
//   - Health check interfaces and implementations
//
// # Interactions
//
// The InteractionHandler verifies the Ed25519 signature Discord attaches to
// every interaction request, answers PING probes, and routes /rank
// subcommands to the application command handlers:
//
//	handler, err := handlers.NewInteractionHandler(handlers.InteractionConfig{
//	    PublicKey:  cfg.Discord.PublicKey,
//	    SetRank:    setRankHandler,
//	    RemoveRank: removeRankHandler,
//	})
//
// All command replies are ephemeral so rank management does not clutter the
// channel the command was invoked in.
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("state_store", handlers.NewStateStoreCheck(states))
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("health check failed: %s", status.Message)
//	}
package handlers
