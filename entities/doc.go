// Package entities is a minimal, fixed validation table for three
// illustrative entities, equipment, venue and region, implementing the
// uniform REST CRUD shape over the gateway core. equipment declares a
// locationID field resolved against venue's routing key, and venue a
// regionID field resolved against region's, exercising the Entity
// Resolver end to end.
//
// These adapters are not part of the dispatch/demux/resolver core; they
// exist so cmd/gateway has something real to route, and so the core is
// exercised by more than tests.
package entities
