// Package broker is the Broker Transport: it owns the gateway's single
// NATS connection and translates the spec's abstract topic/direct exchange
// pair onto NATS subjects. Grounded on natsclient.Client, trimmed of its
// JetStream/KV surface since this system's Non-goals exclude durable and
// at-least-once delivery.
package broker

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/c360/reqgateway/errors"
	"github.com/c360/reqgateway/natsclient"
	"github.com/c360/reqgateway/pkg/retry"
)

const (
	requestSubjectPrefix = "request."
	inboxSubjectPrefix   = "gateway."
)

// Handler processes one inbound reply frame's raw bytes.
type Handler func(ctx context.Context, data []byte)

// Option configures a Transport.
type Option func(*Transport)

// WithPublishLimiter caps outbound publish rate, guarding the broker
// connection against a burst of dispatcher sends. Publish never blocks on
// the limiter: a denied token is treated exactly like a rejected publish.
func WithPublishLimiter(limiter *rate.Limiter) Option {
	return func(t *Transport) { t.limiter = limiter }
}

// Transport wraps a natsclient.Client with the gateway's subject
// conventions and exclusive-inbox-per-instance topology.
type Transport struct {
	client     *natsclient.Client
	instanceID string
	limiter    *rate.Limiter
}

// New wraps an already-configured natsclient.Client. instanceID must be
// unique per gateway process; it becomes the suffix of this instance's
// exclusive inbox subject.
func New(client *natsclient.Client, instanceID string, opts ...Option) *Transport {
	t := &Transport{client: client, instanceID: instanceID}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// InboxSubject returns this instance's exclusive reply subject.
func (t *Transport) InboxSubject() string {
	return fmt.Sprintf("%s%s.inbox", inboxSubjectPrefix, t.instanceID)
}

// Start connects to the broker and subscribes to this instance's inbox.
// There is no separate exchange-assertion step: NATS has no exchange
// primitive, so the topic/direct split from the spec's broker topology is
// realized entirely through subject naming. The initial connect is retried
// with backoff since natsclient's own reconnect logic only takes over once
// a connection has been established at least once.
func (t *Transport) Start(ctx context.Context, handler Handler) error {
	connectErr := retry.Do(ctx, retry.Persistent(), func() error {
		return t.client.Connect(ctx)
	})
	if connectErr != nil {
		return errors.WrapFatal(connectErr, "Transport", "Start", "connect to broker")
	}

	err := t.client.Subscribe(ctx, t.InboxSubject(), func(msgCtx context.Context, data []byte) {
		if data == nil {
			return
		}
		handler(msgCtx, data)
	})
	if err != nil {
		return errors.WrapFatal(err, "Transport", "Start", "subscribe to inbox")
	}
	return nil
}

// Publish publishes data to request.<key>. It never blocks; a false
// return means the dispatcher's caller should rely on the terminator to
// reclaim the pending record rather than treat this as a synchronous
// error.
func (t *Transport) Publish(ctx context.Context, key string, data []byte) bool {
	if t.limiter != nil && !t.limiter.Allow() {
		return false
	}
	if !t.client.IsHealthy() {
		return false
	}
	if err := t.client.Publish(ctx, requestSubjectPrefix+key, data); err != nil {
		return false
	}
	return true
}

// Close drains and closes the underlying connection.
func (t *Transport) Close(ctx context.Context) error {
	return t.client.Close(ctx)
}
