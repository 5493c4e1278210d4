package demux

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/reqgateway/errors"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/reqtable"
)

// SchemaValidator is the concrete production reqtable.Validator: it checks
// a reply's result payload against a compiled JSON schema before the
// completion callback is allowed to fire. Grounded on cmd/schema-exporter's
// validateSchema, swapped from a one-shot CLI check onto a reusable,
// precompiled validator invoked once per reply.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles schemaJSON (a JSON schema document) once, up
// front, so every call to Validate only pays the cost of evaluating a
// single reply against it.
func NewSchemaValidator(schemaJSON []byte) (*SchemaValidator, error) {
	loader := gojsonschema.NewBytesLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, errors.WrapInvalid(err, "SchemaValidator", "NewSchemaValidator", "compile schema")
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate implements reqtable.Validator. It validates the reply's result
// field against the compiled schema; a reply with no result field is
// treated as an empty object so schemas that only constrain optional
// fields still pass.
func (v *SchemaValidator) Validate(reply *protocol.Reply) (bool, error) {
	payload, ok := reply.Result()
	if !ok {
		payload = []byte("{}")
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return false, errors.WrapInvalid(err, "SchemaValidator", "Validate", "evaluate schema")
	}
	if !result.Valid() {
		return false, nil
	}
	return true, nil
}

// AsValidator adapts v to the reqtable.Validator function type.
func (v *SchemaValidator) AsValidator() reqtable.Validator {
	return func(reply *protocol.Reply) (bool, error) {
		return v.Validate(reply)
	}
}
