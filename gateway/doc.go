// Package gateway provides bidirectional protocol bridging for HERMES.
//
// Gateway components enable external clients (HTTP, WebSocket) to query
// and interact with the NATS-based control and log subject tree using
// request/reply and push patterns.
//
// # Gateway vs Output
//
// - Gateway: Bidirectional request/reply (External ↔ NATS ↔ External)
// - Output: Unidirectional push (NATS → External)
//
// # Protocol Support
//
// Gateway implementations by protocol:
//
//   - HTTP/WebSocket: JSON status snapshot plus live FSM/log push (gateway/status/)
//
// # Handler Registration
//
// Gateways register HTTP handlers via the RegisterHTTPHandlers interface:
//
//	type Gateway interface {
//	    component.Discoverable
//	    RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
//	}
//
// # Route Mapping
//
// RouteMapping maps an external HTTP route onto a NATS request/reply subject:
//
//	{
//	  "routes": [
//	    {
//	      "path": "/command/drain",
//	      "method": "POST",
//	      "nats_subject": "hermes.control.drain",
//	      "timeout": "5s"
//	    }
//	  ]
//	}
//
// # Security
//
// Gateways support TLS (via the calling service's HTTP server), CORS
// headers, and request timeout limits.
package gateway
