// Package api provides the HTTP REST API server for Stockroom Core.
//
// It exposes the authentication endpoints (register, login, refresh,
// logout, password change) and the audit trail to user interfaces
// (web admin, warehouse terminals).
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
