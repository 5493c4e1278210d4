// Package http adapts the gateway's entity route table onto net/http: for
// each configured entity it exposes the uniform REST CRUD surface (GET
// collection, POST create, GET/:id, PATCH/:id, DELETE/:id), turning each
// inbound request into a dispatcher.SendRequest call and blocking until
// the reply demultiplexer's completion callback fires or the request's
// own timeout elapses. Grounded on the teacher's gateway/http.go request
// lifecycle (request-id stamping, CORS, size-limited body reads, sanitized
// error responses), adapted from a synchronous nc.Request call onto the
// async dispatcher/completion model.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/reqgateway/demux"
	"github.com/c360/reqgateway/dispatcher"
	"github.com/c360/reqgateway/errors"
	"github.com/c360/reqgateway/gateway"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/reqtable"
	"github.com/c360/reqgateway/resolver"
)

// getOrGenerateRequestID extracts a request id from the inbound headers
// or mints a new one for distributed tracing across the HTTP boundary.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	return uuid.NewString()
}

// verbSuffix maps an intention onto the routing-key suffix scenario 1 of
// the entity data model uses ("equipment.details.get" for a READ).
func verbSuffix(intention protocol.Intention) string {
	switch intention {
	case protocol.Create:
		return "create"
	case protocol.Update:
		return "update"
	case protocol.Delete:
		return "delete"
	default:
		return "get"
	}
}

// Gateway serves one entity's REST surface over HTTP.
type Gateway struct {
	config   gateway.Config
	route    gateway.RouteMapping
	dispatch *dispatcher.Dispatcher
	resolve  *resolver.Resolver

	startTime time.Time

	mu           sync.RWMutex
	lastActivity time.Time

	requestsTotal   atomic.Uint64
	requestsSuccess atomic.Uint64
	requestsFailed  atomic.Uint64
	bytesReceived   atomic.Uint64
	bytesSent       atomic.Uint64

	onRequest func(entity, outcome string)
	validator reqtable.Validator
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithOnRequest registers a callback fired once per completed request with
// the entity name and "ok"/"error", letting cmd/gateway feed a metric
// without this package importing the metric package.
func WithOnRequest(fn func(entity, outcome string)) Option {
	return func(g *Gateway) { g.onRequest = fn }
}

// NewGateway builds an HTTP adapter for one entity's route mapping. res
// may be nil if the route declares no fields to resolve.
func NewGateway(config gateway.Config, route gateway.RouteMapping, disp *dispatcher.Dispatcher, res *resolver.Resolver, opts ...Option) (*Gateway, error) {
	if disp == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway", "dispatcher is required")
	}
	if len(route.Resolve) > 0 && res == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"route declares resolve fields but no resolver was provided")
	}
	g := &Gateway{
		config:    config,
		route:     route,
		dispatch:  disp,
		resolve:   res,
		startTime: time.Now(),
	}
	if len(route.ResultSchema) > 0 {
		sv, err := demux.NewSchemaValidator(route.ResultSchema)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "compile route result schema")
		}
		g.validator = sv.AsValidator()
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) reportRequest(outcome string) {
	if g.onRequest != nil {
		g.onRequest(g.route.Entity, outcome)
	}
}

// RegisterRoutes mounts the collection and item handlers under prefix,
// satisfying gateway.Adapter.
func (g *Gateway) RegisterRoutes(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	base := prefix + strings.Trim(g.route.PathPrefix, "/")

	mux.HandleFunc(base, g.collectionHandler)
	mux.HandleFunc(base+"/", g.itemHandler)
}

// collectionHandler serves GET (query) and POST (create) on the entity's
// bare path.
func (g *Gateway) collectionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.serve(w, r, protocol.Read, "")
	case http.MethodPost:
		g.serve(w, r, protocol.Create, "")
	case http.MethodOptions:
		g.handleOptions(w, r)
	default:
		g.writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	}
}

// itemHandler serves GET/PATCH/DELETE on a single entity instance,
// identified by the trailing path segment.
func (g *Gateway) itemHandler(w http.ResponseWriter, r *http.Request) {
	base := strings.Trim(g.route.PathPrefix, "/")
	id := strings.TrimPrefix(r.URL.Path, "/"+base+"/")
	id = strings.Trim(id, "/")
	if id == "" {
		g.writeError(w, http.StatusBadRequest, "missing id in path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.serve(w, r, protocol.Read, id)
	case http.MethodPatch:
		g.serve(w, r, protocol.Update, id)
	case http.MethodDelete:
		g.serve(w, r, protocol.Delete, id)
	case http.MethodOptions:
		g.handleOptions(w, r)
	default:
		g.writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	}
}

func (g *Gateway) handleOptions(w http.ResponseWriter, r *http.Request) {
	if g.config.EnableCORS {
		g.applyCORS(w, r)
	}
	w.WriteHeader(http.StatusNoContent)
}

// serve carries out one entity request end to end: read and bound the
// body, publish via the dispatcher, wait for the completion callback (or
// the request's own timeout), and translate the reply into the HTTP
// response envelope.
func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, intention protocol.Intention, id string) {
	requestID := getOrGenerateRequestID(r)
	w.Header().Set("X-Request-ID", requestID)

	g.requestsTotal.Add(1)
	g.mu.Lock()
	g.lastActivity = time.Now()
	g.mu.Unlock()

	if g.config.EnableCORS {
		g.applyCORS(w, r)
	}

	fields, err := g.readFields(r, id)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "failed to read request body")
		g.requestsFailed.Add(1)
		g.reportRequest("error")
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = "anonymous"
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.route.Timeout())
	defer cancel()

	replyCh := make(chan *protocol.Reply, 1)
	completion := reqtable.CompletionFunc(func(_ any, _ time.Time, reply *protocol.Reply, _ int) {
		replyCh <- reply
	})
	if len(g.route.Resolve) > 0 && g.resolve != nil {
		specs := make([]resolver.FieldSpec, len(g.route.Resolve))
		for i, rf := range g.route.Resolve {
			specs[i] = resolver.FieldSpec{Field: rf.Field, RoutingKey: rf.TargetRoutingKey}
		}
		completion = g.resolve.Wrap(specs, userID, completion)
	}

	routingKey := g.route.RoutingKey + "." + verbSuffix(intention)
	opts := make([]protocol.RequestOption, 0, len(fields))
	for k, v := range fields {
		opts = append(opts, protocol.WithField(k, v))
	}

	var validator reqtable.Validator
	if intention == protocol.Read {
		validator = g.validator
	}

	// A publish the transport did not accept is not an error here: the
	// pending record stays in place and the request ends in the timeout
	// branch below, like any other unanswered request.
	_, _, err = g.dispatch.SendRequest(ctx, routingKey, intention, userID, nil, completion, validator, opts...)
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, "internal server error")
		g.requestsFailed.Add(1)
		g.reportRequest("error")
		return
	}

	select {
	case reply := <-replyCh:
		g.writeReply(w, reply)
	case <-ctx.Done():
		g.writeStatusEnvelope(w, http.StatusGatewayTimeout, "SERVICE_TIMEOUT", "request timeout")
		g.requestsFailed.Add(1)
		g.reportRequest("error")
	}
}

// readFields decodes the request body (if any) into the entity-specific
// field map, enforcing the configured size limit, and stamps the path id.
func (g *Gateway) readFields(r *http.Request, id string) (map[string]any, error) {
	fields := make(map[string]any)
	if id != "" {
		fields["id"] = id
	}

	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodDelete {
		return fields, nil
	}
	defer r.Body.Close()

	limited := io.LimitReader(r.Body, g.config.MaxRequestSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "readFields", "read request body")
	}
	if int64(len(body)) > g.config.MaxRequestSize {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "readFields", "request body too large")
	}
	g.bytesReceived.Add(uint64(len(body)))
	if len(body) == 0 {
		return fields, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "readFields", "decode request body")
	}
	for k, v := range decoded {
		fields[k] = v
	}
	return fields, nil
}

// writeReply translates a broker reply into the HTTP response envelope
// per the status-to-HTTP mapping: 0 -> 200, a 4xx-class broker status
// passes through as the matching HTTP status, the gateway's own
// synthetic statuses map to 504/500, and anything else is a 500.
func (g *Gateway) writeReply(w http.ResponseWriter, reply *protocol.Reply) {
	switch {
	case reply.Status == protocol.StatusOK:
		result, _ := reply.Result()
		g.writeSuccess(w, result)
		return
	case reply.Status == protocol.StatusLocalTimeout:
		g.writeStatusEnvelope(w, http.StatusGatewayTimeout, "SERVICE_TIMEOUT", "request timed out waiting for a reply")
	case reply.Status == protocol.StatusResolverFailure:
		g.writeStatusEnvelope(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to resolve a referenced entity")
	case reply.Status == protocol.StatusResolverDepthExceeded:
		g.writeStatusEnvelope(w, http.StatusInternalServerError, "INTERNAL_ERROR", "entity reference resolution exceeded the maximum depth")
	case reply.Status == http.StatusNotFound:
		g.writeStatusEnvelope(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case reply.Status >= 400 && reply.Status < 500:
		g.writeStatusEnvelope(w, reply.Status, fmt.Sprintf("BAD_REQUEST_%d", reply.Status), "request rejected by upstream service")
	default:
		g.writeStatusEnvelope(w, http.StatusInternalServerError, "INTERNAL_ERROR", "upstream service returned an error")
	}
	g.requestsFailed.Add(1)
	g.reportRequest("error")
}

func (g *Gateway) writeSuccess(w http.ResponseWriter, result json.RawMessage) {
	if result == nil {
		result = json.RawMessage("null")
	}
	envelope := map[string]any{"status": "OK", "result": result}
	data, err := json.Marshal(envelope)
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, "internal server error")
		g.requestsFailed.Add(1)
		g.reportRequest("error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, _ := w.Write(data)
	g.bytesSent.Add(uint64(n))
	g.requestsSuccess.Add(1)
	g.reportRequest("ok")
}

func (g *Gateway) writeStatusEnvelope(w http.ResponseWriter, httpStatus int, code, message string) {
	envelope := map[string]any{
		"status": "FAIL",
		"error":  map[string]string{"message": message, "code": code},
	}
	data, _ := json.Marshal(envelope)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	n, _ := w.Write(data)
	g.bytesSent.Add(uint64(n))
}

// writeError is writeStatusEnvelope's shorthand for handler-local
// failures that never reached the broker (bad method, oversized body).
func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	g.writeStatusEnvelope(w, statusCode, "BAD_REQUEST", message)
}

// applyCORS applies CORS headers to the response when the request's
// origin is on the configured allow-list.
func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range g.config.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}

	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}
