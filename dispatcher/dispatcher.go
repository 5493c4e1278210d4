// Package dispatcher implements send_request: assigning an id, recording a
// pending entry, and publishing to a routing key. Grounded on
// gateway/http.go's sendNATSRequest (the model for turning a routing key
// plus bytes into a broker call) and mb0-daql's hub.Req fire-and-track
// shape.
package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/c360/reqgateway/broker"
	"github.com/c360/reqgateway/errors"
	"github.com/c360/reqgateway/idalloc"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/reqtable"
)

// Dispatcher ties the identifier allocator, the request table, and the
// broker transport together behind the single send_request primitive.
type Dispatcher struct {
	allocator *idalloc.Allocator
	table     *reqtable.Table
	transport *broker.Transport
}

// New builds a Dispatcher over the given allocator, table, and transport.
func New(allocator *idalloc.Allocator, table *reqtable.Table, transport *broker.Transport) *Dispatcher {
	return &Dispatcher{allocator: allocator, table: table, transport: transport}
}

// SendRequest allocates an id, inserts the pending record, and publishes
// the request. Insertion happens before publish to eliminate the race
// where a reply could arrive before the record exists. If publish fails
// the record is left in place for the terminator to eventually reclaim;
// callers only see an error here for allocator, table or encoding
// failures that mean nothing was ever sent.
func (d *Dispatcher) SendRequest(
	ctx context.Context,
	key string,
	intention protocol.Intention,
	userID string,
	responder any,
	completion reqtable.CompletionFunc,
	validator reqtable.Validator,
	opts ...protocol.RequestOption,
) (id uint64, accepted bool, err error) {
	id, err = d.allocator.Allocate()
	if err != nil {
		return 0, false, errors.WrapFatal(err, "Dispatcher", "SendRequest", "allocate id")
	}

	req := protocol.NewRequest(id, intention, userID, opts...)

	rec := &reqtable.Record{
		ID:         id,
		Responder:  responder,
		Completion: completion,
		Timestamp:  time.Now(),
		Validator:  validator,
	}
	if err = d.table.Insert(rec); err != nil {
		d.allocator.Release(id)
		return id, false, errors.WrapFatal(err, "Dispatcher", "SendRequest", "insert pending record")
	}

	body, err := json.Marshal(req)
	if err != nil {
		d.table.Take(id)
		d.allocator.Release(id)
		return id, false, errors.WrapInvalid(err, "Dispatcher", "SendRequest", "encode request")
	}

	accepted = d.transport.Publish(ctx, key, body)
	return id, accepted, nil
}
