// Package gateway holds the entity route table shared between the HTTP
// adapters and cmd/gateway's startup wiring: which entities are served,
// what routing-key prefix each one publishes under, which of their
// fields the Entity Resolver must inflate, and the shared CORS / request
// size settings.
//
// # Architecture
//
//	┌─────────────────┐
//	│  HTTP Client     │  GET /equipment/abc
//	└────────┬─────────┘
//	         ↓
//	┌─────────────────────────────────────────┐
//	│  gateway/http.Gateway (one per entity)   │
//	│  looks up RouteMapping, builds a Request │
//	└────────┬──────────────────────────────────┘
//	         ↓ dispatcher.SendRequest / broker.Transport
//	┌─────────────────────────────────────────┐
//	│  upstream microservice on equipment.*    │
//	└─────────────────────────────────────────┘
//
// # Example Configuration
//
//	routes:
//	  - entity: equipment
//	    path_prefix: /equipment
//	    routing_key: equipment.details
//	    resolve:
//	      - field: locationID
//	        target_routing_key: venue.details.get
//	  - entity: venue
//	    path_prefix: /venue
//	    routing_key: venue.details
//
// # Security
//
// The HTTP surface supports CORS headers and a request body size cap;
// TLS termination is handled by cmd/gateway via pkg/tlsutil.
package gateway
