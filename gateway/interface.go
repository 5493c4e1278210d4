package gateway

import "net/http"

// Adapter registers one entity's REST handlers onto a shared HTTP mux
// under prefix. cmd/gateway builds one Adapter per entity in the route
// table and mounts them all at startup.
type Adapter interface {
	RegisterRoutes(prefix string, mux *http.ServeMux)
}
