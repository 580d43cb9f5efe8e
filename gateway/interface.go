package gateway

import (
	"net/http"

	"github.com/emedia-lab/hermes/component"
)

// Gateway defines the interface for protocol bridge components that enable
// external clients to interact with NATS-based services via request/reply.
//
// Gateway components are bidirectional - they accept external requests,
// translate them to NATS requests, and return the NATS response to the client.
//
// This differs from Output components which are unidirectional (NATS → External).
type Gateway interface {
	// Discoverable interface provides component metadata, ports, schema, health
	component.Discoverable

	// RegisterHTTPHandlers registers the gateway's HTTP routes on a shared
	// HTTP server's mux.
	//
	// The prefix parameter is the URL path prefix for this gateway instance,
	// typically derived from the component instance name (e.g., "/api-gateway/").
	//
	// The mux parameter is the shared http.ServeMux where handlers are registered.
	//
	// Example registration:
	//   func (g *HTTPGateway) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	//       mux.HandleFunc(prefix + "search/semantic", g.handleSemanticSearch)
	//       mux.HandleFunc(prefix + "entity/:id", g.handleEntity)
	//   }
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}

// HTTPHandler is the interface for services/components that can register
// HTTP handlers on a shared HTTP server's mux.
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}
