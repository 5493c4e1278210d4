package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/reqgateway/errors"
)

// ResolveField declares one field on an entity that the Entity Resolver
// must inflate into a nested object, and the routing key its sub-fetch is
// published to.
type ResolveField struct {
	// Field is the key on the entity holding a referenced id (e.g. "locationID").
	Field string `yaml:"field" json:"field"`

	// TargetRoutingKey is the full routing key a sub-fetch for this field's
	// id is published to, verb included (e.g. "venue.details.get"); no
	// suffix is appended to it.
	TargetRoutingKey string `yaml:"target_routing_key" json:"target_routing_key"`
}

// RouteMapping declares how one entity's uniform REST CRUD surface maps
// onto the broker's routing-key space. PathPrefix and RoutingKey both
// name the entity but may diverge (an HTTP path is public-facing; a
// routing key mirrors the upstream service's own vocabulary).
type RouteMapping struct {
	// Entity names the resource, used for logging and metrics labels.
	Entity string `yaml:"entity" json:"entity" schema:"type:string,description:entity name,category:basic"`

	// PathPrefix is the HTTP path this entity is served under (e.g. "/equipment").
	PathPrefix string `yaml:"path_prefix" json:"path_prefix" schema:"type:string,description:HTTP path prefix,category:basic"`

	// RoutingKey is the broker routing-key prefix (e.g. "equipment.details").
	// A verb suffix (.get, .create, .update, .delete) is appended per request.
	RoutingKey string `yaml:"routing_key" json:"routing_key" schema:"type:string,description:broker routing key prefix,category:basic"`

	// Resolve lists identifier fields this entity's replies carry that the
	// Entity Resolver should inflate before the HTTP response is written.
	Resolve []ResolveField `yaml:"resolve,omitempty" json:"resolve,omitempty" schema:"type:array,description:fields to resolve,category:advanced"`

	// ResultSchema, if set, is a JSON Schema a READ reply's result must
	// satisfy before it reaches the client. It is compiled once into a
	// demux.SchemaValidator and attached to the dispatcher's validator
	// slot; write intentions (create/update/delete) are not validated
	// against it, since their replies don't share a read's result shape.
	ResultSchema json.RawMessage `yaml:"result_schema,omitempty" json:"result_schema,omitempty" schema:"type:object,description:JSON schema for read results,category:advanced"`

	// TimeoutStr for one request/reply round trip (default: "5s").
	TimeoutStr string `yaml:"timeout,omitempty" json:"timeout,omitempty" schema:"type:string,description:request timeout,default:5s,category:advanced"`

	// Description for OpenAPI documentation.
	Description string `yaml:"description,omitempty" json:"description,omitempty" schema:"type:string,description:route description,category:advanced"`

	timeout time.Duration
}

// Validate ensures the route mapping is well formed and resolves its timeout.
func (r *RouteMapping) Validate() error {
	if r.Entity == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			"entity cannot be empty")
	}

	if r.PathPrefix == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			"path_prefix cannot be empty")
	}

	if r.RoutingKey == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			"routing_key cannot be empty")
	}

	if r.TimeoutStr == "" {
		r.timeout = 5 * time.Second
	} else {
		parsed, err := time.ParseDuration(r.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "RouteMapping", "Validate",
				fmt.Sprintf("invalid timeout format: %s", r.TimeoutStr))
		}
		r.timeout = parsed
	}

	if r.timeout < 100*time.Millisecond || r.timeout > 30*time.Second {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			"timeout must be between 100ms and 30s")
	}

	for i, rf := range r.Resolve {
		if rf.Field == "" || rf.TargetRoutingKey == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
				fmt.Sprintf("resolve entry at index %d requires field and target_routing_key", i))
		}
	}

	return nil
}

// Timeout returns the parsed per-request timeout.
func (r *RouteMapping) Timeout() time.Duration {
	return r.timeout
}

// Config holds the entity route table and shared HTTP surface settings.
type Config struct {
	// Routes is the fixed validation table: one entry per served entity.
	Routes []RouteMapping `yaml:"routes" json:"routes" schema:"type:array,description:entity route mappings,category:basic"`

	// EnableCORS enables CORS headers (requires explicit CORSOrigins).
	EnableCORS bool `yaml:"enable_cors" json:"enable_cors" schema:"type:bool,description:enable CORS,category:advanced"`

	// CORSOrigins lists allowed CORS origins when EnableCORS is true.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty" schema:"type:array,description:allowed origins,category:advanced"`

	// MaxRequestSize limits request body size in bytes (default: 1MB).
	MaxRequestSize int64 `yaml:"max_request_size,omitempty" json:"max_request_size,omitempty" schema:"type:int,description:max request size,category:advanced"`
}

// Validate ensures the gateway configuration is valid, applying defaults
// where the caller left a field zero-valued.
func (c *Config) Validate() error {
	if len(c.Routes) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"at least one route mapping is required")
	}

	for i := range c.Routes {
		if err := c.Routes[i].Validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid route at index %d", i))
		}
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}

	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024
	}

	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins configuration (use [\"*\"] for development only)")
	}

	return nil
}

// DefaultConfig returns an empty gateway configuration; callers must
// supply at least one route before Validate will accept it.
func DefaultConfig() Config {
	return Config{
		Routes:         []RouteMapping{},
		EnableCORS:     false,
		CORSOrigins:    []string{},
		MaxRequestSize: 1024 * 1024,
	}
}
