// Package demux implements the Reply Demultiplexer: decoding each inbound
// frame, routing it to the resolver or the request table, applying the
// optional validator, and firing the completion callback. Grounded on
// mb0-daql's reply-routing loop, generalized with the spec's validator
// step.
package demux

import (
	"context"

	"github.com/c360/reqgateway/idalloc"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/reqtable"
)

// Resolver is the narrow slice of the entity resolver the demultiplexer
// needs: claiming interception of a reply id and consuming it.
type Resolver interface {
	Intercept(id uint64) bool
	Consume(reply *protocol.Reply)
}

// Logger matches natsclient.Logger's shape without importing it, so demux
// stays decoupled from the broker transport package.
type Logger interface {
	Debugf(format string, args ...any)
	Printf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Demux routes decoded replies per the six-step algorithm in the spec's
// Reply Demultiplexer section.
type Demux struct {
	allocator *idalloc.Allocator
	table     *reqtable.Table
	resolver  Resolver
	logger    Logger
}

// New builds a Demux. resolver may be nil if no entity resolution is
// configured, in which case every reply goes straight to the request
// table.
func New(allocator *idalloc.Allocator, table *reqtable.Table, resolver Resolver, logger Logger) *Demux {
	return &Demux{allocator: allocator, table: table, resolver: resolver, logger: logger}
}

// HandleFrame is the broker.Handler this package exposes: decode, route,
// validate, complete.
func (d *Demux) HandleFrame(_ context.Context, data []byte) {
	reply, err := protocol.DecodeReply(data)
	if err != nil {
		d.logger.Printf("demux: dropping malformed reply: %v", err)
		return
	}

	if d.resolver != nil && d.resolver.Intercept(reply.MsgID) {
		d.resolver.Consume(reply)
		d.allocator.Release(reply.MsgID)
		return
	}

	rec, ok := d.table.Take(reply.MsgID)
	if !ok {
		d.logger.Printf("demux: dropping unmatched reply for id %d (possibly timed out)", reply.MsgID)
		return
	}

	if rec.Validator != nil {
		valid, verr := rec.Validator(reply)
		if verr != nil {
			d.logger.Errorf("demux: validator error for id %d: %v", reply.MsgID, verr)
			d.allocator.Release(reply.MsgID)
			return
		}
		if !valid {
			// Preserved as specified: the request manifests as a timeout
			// to the client rather than getting a substitute response.
			// SHOULD be reconsidered in favor of an immediate 502.
			d.logger.Printf("demux: validator rejected reply for id %d", reply.MsgID)
			d.allocator.Release(reply.MsgID)
			return
		}
	}

	// The id must not be released until the completion callback has run:
	// releasing first would let a concurrent Allocate reuse it and register
	// a new record/continuation before this call finishes, so a late
	// finisher for the old id would land on the new one.
	rec.Completion(rec.Responder, rec.Timestamp, reply, reply.Status)
	d.allocator.Release(reply.MsgID)
}
