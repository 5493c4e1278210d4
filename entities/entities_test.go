package entities_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/reqgateway/demux"
	"github.com/c360/reqgateway/entities"
	"github.com/c360/reqgateway/gateway"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/resolver"
)

func replyWithResult(t *testing.T, result string) *protocol.Reply {
	t.Helper()
	return &protocol.Reply{
		MsgID:  1,
		Status: protocol.StatusOK,
		Raw:    map[string]json.RawMessage{"result": json.RawMessage(result)},
	}
}

func TestRoutes_AllValid(t *testing.T) {
	for _, route := range entities.Routes() {
		require.NoError(t, route.Validate(), "route %s should validate", route.Entity)
	}
}

func TestRoutes_EquipmentResolvesLocation(t *testing.T) {
	var equipment *gateway.RouteMapping
	for _, route := range entities.Routes() {
		if route.Entity == "equipment" {
			equipment = &route
		}
	}
	require.NotNil(t, equipment)
	require.Len(t, equipment.Resolve, 1)
	assert.Equal(t, "locationID", equipment.Resolve[0].Field)
	assert.Equal(t, "venue.details.get", equipment.Resolve[0].TargetRoutingKey)
}

func TestBuildAdapters_RequiresDispatcher(t *testing.T) {
	cfg := gateway.Config{Routes: entities.Routes()}
	_, err := entities.BuildAdapters(cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestRoutes_VenueResolvesRegion(t *testing.T) {
	var venue *gateway.RouteMapping
	for _, route := range entities.Routes() {
		if route.Entity == "venue" {
			venue = &route
		}
	}
	require.NotNil(t, venue)
	require.Len(t, venue.Resolve, 1)
	assert.Equal(t, "regionID", venue.Resolve[0].Field)
	assert.Equal(t, "region.details.get", venue.Resolve[0].TargetRoutingKey)
}

func TestRoutes_RegionResultSchemaCompiles(t *testing.T) {
	var region *gateway.RouteMapping
	for _, route := range entities.Routes() {
		if route.Entity == "region" {
			region = &route
		}
	}
	require.NotNil(t, region)
	require.NotEmpty(t, region.ResultSchema)

	sv, err := demux.NewSchemaValidator(region.ResultSchema)
	require.NoError(t, err)

	valid, err := sv.Validate(replyWithResult(t, `[{"id":"region-1","name":"Northeast"}]`))
	require.NoError(t, err)
	assert.True(t, valid)

	invalid, err := sv.Validate(replyWithResult(t, `[{"id":"region-1"}]`))
	require.NoError(t, err)
	assert.False(t, invalid)
}

func TestFieldLookup_ReturnsNestedFieldsPerRoutingKey(t *testing.T) {
	lookup := entities.FieldLookup(entities.Routes())

	specs := lookup("equipment.details.get")
	require.Len(t, specs, 1)
	assert.Equal(t, resolver.FieldSpec{Field: "locationID", RoutingKey: "venue.details.get"}, specs[0])

	assert.Empty(t, lookup("region.details.get"))
	assert.Empty(t, lookup("unknown.routing.key"))
}
