// Package resolver implements the Entity Resolver: it inflates identifier
// fields in a reply into nested entity objects by issuing further broker
// round-trips before the wrapped completion callback fires. Its dispatch
// path is intentionally separate from the request table, per the spec's
// "distinct from the Request Table" requirement — it registers directly
// into its own intercept registry instead.
package resolver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/reqgateway/broker"
	"github.com/c360/reqgateway/errors"
	"github.com/c360/reqgateway/idalloc"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/reqtable"
)

// FieldSpec declares one identifier field the resolver must inflate:
// Field is the key on each result entity holding a referenced id, and
// RoutingKey is where a READ for that id is published.
type FieldSpec struct {
	Field      string
	RoutingKey string
}

// FieldLookup returns the nested fields to resolve for entities returned
// on routingKey, enabling bounded multi-level resolution (e.g. inflating
// an equipment's venue, and that venue's own referenced fields, if any).
// A nil FieldLookup disables nested resolution entirely.
type FieldLookup func(routingKey string) []FieldSpec

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth bounds resolution depth to guard against cyclic entity
// references (spec design notes: recommended depth 2).
func WithMaxDepth(n int) Option { return func(r *Resolver) { r.maxDepth = n } }

// WithFieldLookup enables nested resolution of sub-fetched entities.
func WithFieldLookup(fn FieldLookup) Option { return func(r *Resolver) { r.fieldsFor = fn } }

// WithSubFetchTimeout bounds how long the resolver waits for sub-fetch
// replies before treating them as failures. One budget covers every
// sub-fetch issued for a wrapped reply, nested levels included. There is no sweep
// over the intercept registry (it is distinct from the request table), so
// this is the only backstop against a sub-fetch hanging forever.
func WithSubFetchTimeout(d time.Duration) Option { return func(r *Resolver) { r.subFetchTimeout = d } }

// WithOnSubFetch registers a callback fired once per completed sub-fetch
// with "ok", "failed" or "timeout", letting cmd/gateway feed a metric
// without resolver importing the metric package.
func WithOnSubFetch(fn func(outcome string)) Option {
	return func(r *Resolver) { r.onSubFetch = fn }
}

// continuation tracks one in-flight sub-fetch registered in the intercept
// registry.
type continuation struct {
	field  FieldSpec
	refID  string
	result *protocol.Reply
	err    error
	done   chan struct{}
}

// Resolver enriches replies whose payload references entities owned by
// other microservices.
type Resolver struct {
	allocator *idalloc.Allocator
	transport *broker.Transport

	mu          sync.Mutex
	intercepted map[uint64]*continuation

	maxDepth        int
	fieldsFor       FieldLookup
	subFetchTimeout time.Duration
	onSubFetch      func(outcome string)
}

// New builds a Resolver over the shared allocator and broker transport.
func New(allocator *idalloc.Allocator, transport *broker.Transport, opts ...Option) *Resolver {
	r := &Resolver{
		allocator:       allocator,
		transport:       transport,
		intercepted:     make(map[uint64]*continuation),
		maxDepth:        2,
		subFetchTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Intercept reports whether id belongs to a sub-fetch this resolver is
// awaiting.
func (r *Resolver) Intercept(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.intercepted[id]
	return ok
}

// Consume satisfies an intercepted sub-fetch with its reply.
func (r *Resolver) Consume(reply *protocol.Reply) {
	r.mu.Lock()
	cont, ok := r.intercepted[reply.MsgID]
	if ok {
		delete(r.intercepted, reply.MsgID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	cont.result = reply
	if reply.Status != protocol.StatusOK {
		cont.err = fmt.Errorf("resolver: sub-fetch on %s for %s=%s failed with status %d",
			cont.field.RoutingKey, cont.field.Field, cont.refID, reply.Status)
	}
	close(cont.done)
}

// Wrap returns a completion callback that inflates the declared fields in
// the outer reply before invoking wrapped exactly once. userID is
// forwarded onto every sub-fetch request.
func (r *Resolver) Wrap(fields []FieldSpec, userID string, wrapped reqtable.CompletionFunc) reqtable.CompletionFunc {
	return func(responder any, timestamp time.Time, reply *protocol.Reply, status int) {
		if status != protocol.StatusOK || len(fields) == 0 {
			wrapped(responder, timestamp, reply, status)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.subFetchTimeout)
		defer cancel()

		enriched, err := r.resolveOne(ctx, reply, fields, userID, 0)
		if err != nil {
			failStatus := protocol.StatusResolverFailure
			if stderrors.Is(err, errDepthExceeded) {
				failStatus = protocol.StatusResolverDepthExceeded
			}
			wrapped(responder, timestamp, &protocol.Reply{MsgID: reply.MsgID, Status: failStatus}, failStatus)
			return
		}

		wrapped(responder, timestamp, enriched, protocol.StatusOK)
	}
}

var errDepthExceeded = fmt.Errorf("resolver: maximum resolution depth exceeded")

// resolveOne performs one resolution cycle for reply, following the
// protocol from the spec's Entity Resolver section: group references by
// routing key, fetch each unique id concurrently, and substitute the
// inflated entities back into the payload.
func (r *Resolver) resolveOne(
	ctx context.Context, reply *protocol.Reply, fields []FieldSpec, userID string, depth int,
) (*protocol.Reply, error) {
	entities, err := extractEntities(reply)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return reply, nil
	}

	refs := collectRefs(entities, fields)
	if len(refs) == 0 {
		return reply, nil
	}

	results := make(map[ref]*continuation, len(refs))
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	for _, r2 := range refs {
		r2 := r2
		group.Go(func() error {
			cont, ferr := r.fetch(gctx, r2.field, r2.id, userID)
			mu.Lock()
			results[r2] = cont
			mu.Unlock()
			return ferr
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.WrapFatal(err, "Resolver", "resolveOne", "sub-fetch failed")
	}

	if depth+1 >= r.maxDepth && r.fieldsFor != nil {
		for _, r3 := range refs {
			if len(r.fieldsFor(r3.field.RoutingKey)) > 0 {
				return nil, errDepthExceeded
			}
		}
	} else if r.fieldsFor != nil {
		for key, cont := range results {
			nested := r.fieldsFor(key.field.RoutingKey)
			if len(nested) == 0 || cont.result == nil {
				continue
			}
			nestedReply, nerr := r.resolveOne(ctx, cont.result, nested, userID, depth+1)
			if nerr != nil {
				return nil, nerr
			}
			cont.result = nestedReply
		}
	}

	for _, ent := range entities {
		for _, spec := range fields {
			raw, ok := ent[spec.Field]
			if !ok {
				continue
			}
			var idVal string
			if json.Unmarshal(raw, &idVal) != nil {
				continue
			}
			cont, ok := results[ref{field: spec, id: idVal}]
			if !ok || cont.result == nil {
				continue
			}
			inflated, ierr := extractEntities(cont.result)
			if ierr != nil || len(inflated) == 0 {
				continue
			}
			encoded, merr := json.Marshal(inflated[0])
			if merr != nil {
				continue
			}
			ent[spec.Field] = encoded
		}
	}

	encodedList, err := json.Marshal(entities)
	if err != nil {
		return nil, errors.WrapFatal(err, "Resolver", "resolveOne", "encode enriched result")
	}

	newRaw := make(map[string]json.RawMessage, len(reply.Raw)+1)
	for k, v := range reply.Raw {
		newRaw[k] = v
	}
	newRaw["result"] = encodedList

	return &protocol.Reply{MsgID: reply.MsgID, Status: reply.Status, Raw: newRaw}, nil
}

type ref struct {
	field FieldSpec
	id    string
}

// collectRefs walks every entity for every declared field and returns the
// unique (field, id) pairs that need a sub-fetch.
func collectRefs(entities []map[string]json.RawMessage, fields []FieldSpec) []ref {
	seen := make(map[ref]bool)
	var out []ref
	for _, ent := range entities {
		for _, spec := range fields {
			raw, ok := ent[spec.Field]
			if !ok {
				continue
			}
			var idVal string
			if json.Unmarshal(raw, &idVal) != nil {
				continue
			}
			key := ref{field: spec, id: idVal}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// extractEntities decodes a reply's "result" field as a list of objects.
// Both list and get-by-id replies use this shape (spec section 8, scenario
// 2 returns a single-element list for a get-by-id lookup).
func extractEntities(reply *protocol.Reply) ([]map[string]json.RawMessage, error) {
	raw, ok := reply.Result()
	if !ok {
		return nil, nil
	}
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.WrapInvalid(err, "Resolver", "extractEntities", "decode result list")
	}
	return list, nil
}

// fetch issues one READ request for a single id, registers it in the
// intercept registry, and blocks until Consume satisfies it or ctx expires.
func (r *Resolver) fetch(ctx context.Context, field FieldSpec, id, userID string) (*continuation, error) {
	newID, err := r.allocator.Allocate()
	if err != nil {
		return nil, errors.WrapFatal(err, "Resolver", "fetch", "allocate sub-fetch id")
	}

	cont := &continuation{field: field, refID: id, done: make(chan struct{})}

	r.mu.Lock()
	r.intercepted[newID] = cont
	r.mu.Unlock()

	req := protocol.NewRequest(newID, protocol.Read, userID, protocol.WithField("id", id))
	body, err := json.Marshal(req)
	if err != nil {
		r.mu.Lock()
		delete(r.intercepted, newID)
		r.mu.Unlock()
		r.allocator.Release(newID)
		return nil, errors.WrapInvalid(err, "Resolver", "fetch", "encode sub-fetch request")
	}

	r.transport.Publish(ctx, field.RoutingKey, body)

	select {
	case <-cont.done:
		r.reportSubFetch(cont.err)
		return cont, cont.err
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.intercepted, newID)
		r.mu.Unlock()
		r.allocator.Release(newID)
		err := errors.WrapTransient(ctx.Err(), "Resolver", "fetch", "sub-fetch timed out")
		r.reportSubFetch(err)
		return cont, err
	}
}

func (r *Resolver) reportSubFetch(err error) {
	if r.onSubFetch == nil {
		return
	}
	outcome := "ok"
	if stderrors.Is(err, context.DeadlineExceeded) {
		outcome = "timeout"
	} else if err != nil {
		outcome = "failed"
	}
	r.onSubFetch(outcome)
}
