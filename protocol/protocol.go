// Package protocol defines the wire types exchanged with the broker: the
// outgoing request envelope and the incoming reply envelope described in
// spec section 3 of the gateway's data model.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Intention is the verb carried on every outgoing request.
type Intention string

const (
	Read   Intention = "READ"
	Create Intention = "CREATE"
	Update Intention = "UPDATE"
	Delete Intention = "DELETE"
)

// Valid reports whether i is one of the four declared intentions.
func (i Intention) Valid() bool {
	switch i {
	case Read, Create, Update, Delete:
		return true
	default:
		return false
	}
}

// Synthetic status values used internally by the gateway. Real broker
// replies carry non-negative status codes (0 for success, otherwise an
// upstream error code), so negative values are reserved for statuses the
// core itself manufactures rather than receives over the wire.
const (
	StatusOK                   = 0
	StatusLocalTimeout         = -1
	StatusResolverFailure      = -2
	StatusResolverDepthExceeded = -3
)

// Request is the keyed structure published to the broker. Fields holds
// entity-specific data and is flattened into the same JSON object as the
// four fixed fields on the wire.
type Request struct {
	MsgID     uint64
	Intention Intention
	Status    int
	UserID    string
	Fields    map[string]any
}

// RequestOption mutates a Request under construction.
type RequestOption func(*Request)

// WithField sets a single entity-specific field.
func WithField(key string, value any) RequestOption {
	return func(r *Request) { r.Fields[key] = value }
}

// WithFields merges a set of entity-specific fields.
func WithFields(fields map[string]any) RequestOption {
	return func(r *Request) {
		for k, v := range fields {
			r.Fields[k] = v
		}
	}
}

// NewRequest builds a Request with the four fixed fields and applies opts.
func NewRequest(id uint64, intention Intention, userID string, opts ...RequestOption) *Request {
	r := &Request{
		MsgID:     id,
		Intention: intention,
		Status:    StatusOK,
		UserID:    userID,
		Fields:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MarshalJSON flattens Fields alongside the four fixed fields into one
// object, matching the self-describing keyed encoding spec section 6 calls
// for rather than wrapping entity data under a nested "data" key.
func (r *Request) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["msg_id"] = r.MsgID
	out["msg_intention"] = r.Intention
	out["status"] = r.Status
	out["userID"] = r.UserID
	return json.Marshal(out)
}

// Reply is a decoded inbound frame. Raw carries every field other than
// msg_id and status, keyed the way the upstream microservice sent them, so
// callers can pull out "result" or an error diagnostic without committing
// to one payload shape up front.
type Reply struct {
	MsgID  uint64
	Status int
	Raw    map[string]json.RawMessage
}

// ErrMalformedReply is returned by DecodeReply when the frame is not a JSON
// object, or lacks a numeric msg_id or status — spec section 3's "reply
// without a numeric msg_id or status is malformed and dropped" invariant.
var ErrMalformedReply = fmt.Errorf("protocol: reply missing numeric msg_id or status")

// DecodeReply parses one inbound frame into a Reply, or returns
// ErrMalformedReply (or a json syntax error) if the frame cannot be
// classified as a well-formed reply.
func DecodeReply(data []byte) (*Reply, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}

	msgIDRaw, ok := generic["msg_id"]
	if !ok {
		return nil, ErrMalformedReply
	}
	var msgID uint64
	if err := json.Unmarshal(msgIDRaw, &msgID); err != nil {
		return nil, ErrMalformedReply
	}

	statusRaw, ok := generic["status"]
	if !ok {
		return nil, ErrMalformedReply
	}
	var status int
	if err := json.Unmarshal(statusRaw, &status); err != nil {
		return nil, ErrMalformedReply
	}

	delete(generic, "msg_id")
	delete(generic, "status")

	return &Reply{MsgID: msgID, Status: status, Raw: generic}, nil
}

// Field returns a named raw field from the reply's payload.
func (r *Reply) Field(name string) (json.RawMessage, bool) {
	v, ok := r.Raw[name]
	return v, ok
}

// Result returns the reply's "result" field, the conventional key for both
// list and single-entity payloads (spec section 8 scenario 1 and 2).
func (r *Reply) Result() (json.RawMessage, bool) {
	return r.Field("result")
}
