// Package gateway orchestrates the chatia-gateway server components.
//
// # Overview
//
// The gateway package owns every long-lived component: the SQLite ledger,
// the generation client, the conversation service with its broadcaster, the
// widget HTTP surface and the HTTP server itself.
//
// # HTTP Routes
//
//	GET /health              liveness
//	GET /health/ready        ledger reachable
//	GET /api/stats/usage     usage totals (admin token)
//	GET /api/stats/sessions  session ledger (admin token)
//
// plus the widget routes registered by package widget.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil { ... }
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Run listens on server.http_addr, or on a tailscale node when tailscale is
// enabled (port 80, or 443 through Funnel). When ctx ends the HTTP server
// drains, every mounted session is unmounted and the store is closed, all
// within a five second budget.
//
// # Key Files
//
//   - gateway.go: construction, listeners and shutdown
//   - api.go: admin stats endpoints
package gateway
