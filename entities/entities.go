package entities

import (
	"encoding/json"

	"github.com/c360/reqgateway/dispatcher"
	"github.com/c360/reqgateway/gateway"
	gwhttp "github.com/c360/reqgateway/gateway/http"
	"github.com/c360/reqgateway/resolver"
)

// Routes returns the fixed route table for the equipment, venue and region
// entities. equipment's locationID field resolves against venue, and
// venue's own regionID field resolves against region in turn, so a GET on
// /equipment exercises two levels of entity resolution: the outer wrap
// inflates venue, and the resolver's own nested lookup (fed by
// FieldLookup, below) inflates venue's region inside it. region also
// carries a ResultSchema, so a region reply that drops its id or name
// field surfaces to the client as a failed request rather than a
// malformed 200.
func Routes() []gateway.RouteMapping {
	return []gateway.RouteMapping{
		{
			Entity:     "equipment",
			PathPrefix: "/equipment",
			RoutingKey: "equipment.details",
			TimeoutStr: "5s",
			Resolve: []gateway.ResolveField{
				{Field: "locationID", TargetRoutingKey: "venue.details.get"},
			},
			Description: "Rentable equipment items, with their venue location inlined.",
		},
		{
			Entity:     "venue",
			PathPrefix: "/venue",
			RoutingKey: "venue.details",
			TimeoutStr: "5s",
			Resolve: []gateway.ResolveField{
				{Field: "regionID", TargetRoutingKey: "region.details.get"},
			},
			Description: "Venues equipment can be located at, with their region inlined.",
		},
		{
			Entity:      "region",
			PathPrefix:  "/region",
			RoutingKey:  "region.details",
			TimeoutStr:  "5s",
			Description: "Geographic regions venues belong to.",
			ResultSchema: json.RawMessage(`{
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "name"],
					"properties": {
						"id": {"type": "string"},
						"name": {"type": "string"}
					}
				}
			}`),
		},
	}
}

// FieldLookup builds a resolver.FieldLookup from a route table: given the
// full "get" routing key an inflated entity was fetched on, it returns the
// fields that entity's own replies carry and need a further sub-fetch.
// This is what lets the resolver's nested resolution (bounded by
// resolver.WithMaxDepth) reach beyond a single level, and what makes
// StatusResolverDepthExceeded reachable when a route table nests deeper
// than the configured depth allows.
func FieldLookup(routes []gateway.RouteMapping) resolver.FieldLookup {
	byRoutingKey := make(map[string][]resolver.FieldSpec, len(routes))
	for _, route := range routes {
		if len(route.Resolve) == 0 {
			continue
		}
		specs := make([]resolver.FieldSpec, len(route.Resolve))
		for i, rf := range route.Resolve {
			specs[i] = resolver.FieldSpec{Field: rf.Field, RoutingKey: rf.TargetRoutingKey}
		}
		byRoutingKey[route.RoutingKey+".get"] = specs
	}
	return func(routingKey string) []resolver.FieldSpec {
		return byRoutingKey[routingKey]
	}
}

// BuildAdapters constructs one gwhttp.Gateway per route in Routes, wired
// against the given dispatcher and resolver. cmd/gateway registers the
// returned adapters on its HTTP mux at startup. onRequest, if non-nil, is
// forwarded onto every adapter so a single metrics counter can be fed
// across all entities.
func BuildAdapters(cfg gateway.Config, disp *dispatcher.Dispatcher, res *resolver.Resolver, onRequest func(entity, outcome string)) ([]gateway.Adapter, error) {
	var opts []gwhttp.Option
	if onRequest != nil {
		opts = append(opts, gwhttp.WithOnRequest(onRequest))
	}
	adapters := make([]gateway.Adapter, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		adapter, err := gwhttp.NewGateway(cfg, route, disp, res, opts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}
