// Package natsclient provides a robust NATS client with circuit breaker protection,
// automatic reconnection, and context-propagated pub/sub for the gateway's broker
// transport.
//
// The natsclient package wraps the standard NATS Go client with additional reliability
// features including circuit breaker pattern for failure protection, exponential backoff
// for reconnection, and proper context propagation throughout all operations.
//
// # Core Features
//
// Circuit Breaker Pattern: Prevents cascading failures by failing fast after a threshold
// of consecutive failures (default: 5). The circuit opens to prevent further attempts,
// then gradually tests the connection with exponential backoff.
//
// Connection Lifecycle Management: Handles connection states automatically through the
// lifecycle: Disconnected → Connecting → Connected → Reconnecting → Connected.
//
// At-most-once pub/sub only: this client deliberately does not wrap JetStream or KV.
// The gateway's broker transport needs neither durability nor guaranteed delivery, and
// core NATS pub/sub is the simplest mapping onto the exchange/inbox topology it models.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222")
//	if err != nil {
//	    return err
//	}
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "subject.name", []byte("message data"))
//
//	err = client.Subscribe(ctx, "subject.*", func(msgCtx context.Context, data []byte) {
//	    fmt.Printf("Received: %s\n", string(data))
//	})
//
// # Circuit Breaker Pattern
//
//	err := client.Connect(ctx)
//	if errors.Is(err, natsclient.ErrCircuitOpen) {
//	    time.Sleep(client.Backoff())
//	}
//
// # Connection Status and Health
//
//	status := client.Status()
//	statusInfo := client.GetStatus()
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	err := client.WaitForConnection(ctx)
//
// # Testing
//
// The package provides test utilities backed by testcontainers (no mocks):
//
//	func TestMyService(t *testing.T) {
//	    testClient := natsclient.NewTestClient(t)
//	    client := testClient.Client
//	    err := client.Publish(ctx, "test.subject", []byte("test data"))
//	    assert.NoError(t, err)
//	}
//
// # Thread Safety
//
// The Client type is thread-safe: connection state uses atomics and mutexes, and
// Close() can only be called once (subsequent calls are no-ops).
package natsclient
