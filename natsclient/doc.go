// Package natsclient provides a NATS client with circuit breaker protection,
// automatic reconnection, and context-propagated pub/sub for transport.NATSRelay,
// the secondary data-plane driver a Broker can select with transport.driver=nats.
//
// The natsclient package wraps the standard NATS Go client with additional
// reliability features including a circuit breaker pattern for failure
// protection, exponential backoff for reconnection, and context propagation
// throughout all operations.
//
// # Core Features
//
// Circuit Breaker Pattern: Prevents cascading failures by failing fast after
// a threshold of consecutive failures (default: 5). The circuit opens to
// prevent further attempts; once the current backoff has elapsed it returns
// to Disconnected so the next Connect call may try again. The backoff
// doubles, up to the configured maximum, each time the threshold is reached.
// The client does not reconnect on its own after the circuit opens.
//
// Connection Lifecycle Management: Handles connection states automatically
// through the lifecycle: Disconnected -> Connecting -> Connected ->
// Reconnecting -> Connected. The client manages all transitions with
// configurable callbacks for state changes.
//
// # Basic Usage
//
// Creating and connecting to NATS:
//
//	client, err := natsclient.NewClient("nats://localhost:4222")
//	if err != nil {
//	    return err
//	}
//
//	ctx := context.Background()
//	err = client.Connect(ctx)
//	if err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	// Publish a message
//	err = client.Publish(ctx, "subject.name", []byte("message data"))
//
//	// Subscribe to messages
//	err = client.Subscribe(ctx, "subject.*", func(msgCtx context.Context, data []byte) {
//	    // Handle message with context (30s timeout per message)
//	})
//
// # Advanced Configuration
//
// Creating client with options:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithMaxReconnects(-1),  // Infinite reconnects
//	    natsclient.WithReconnectWait(2*time.Second),
//	    natsclient.WithCircuitBreakerThreshold(10),
//	    natsclient.WithDisconnectCallback(func(err error) {
//	        log.Printf("Disconnected: %v", err)
//	    }),
//	    natsclient.WithReconnectCallback(func() {
//	        log.Println("Reconnected successfully")
//	    }),
//	)
//
// # Circuit Breaker Pattern
//
// The circuit breaker protects against cascading failures:
//
//	err := client.Connect(ctx)
//	if errors.Is(err, natsclient.ErrCircuitOpen) {
//	    // Circuit is open, wait for it to test recovery
//	    time.Sleep(client.Backoff())
//	}
//
// Circuit breaker configuration:
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithCircuitBreakerThreshold(5),  // Open after 5 failures
//	    natsclient.WithMaxBackoff(time.Minute),     // Max backoff duration
//	)
//
// # Connection Status and Health
//
// Monitoring connection health:
//
//	status := client.Status()
//	switch status {
//	case natsclient.StatusConnected:
//	case natsclient.StatusReconnecting:
//	case natsclient.StatusCircuitOpen:
//	case natsclient.StatusDisconnected:
//	}
//
//	statusInfo := client.GetStatus()
//	log.Printf("Status: %v, Failures: %d, RTT: %v",
//	    statusInfo.Status, statusInfo.FailureCount, statusInfo.RTT)
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	err := client.WaitForConnection(ctx)
//
// Health monitoring with callbacks:
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithHealthInterval(10*time.Second),
//	    natsclient.WithHealthChangeCallback(func(healthy bool) {
//	        if healthy {
//	            log.Println("Connection restored")
//	        } else {
//	            log.Println("Connection lost")
//	        }
//	    }),
//	)
//
// # Error Handling
//
// The package defines specific error types for different failure scenarios:
//
//	var (
//	    ErrCircuitOpen        = errors.New("circuit breaker is open")
//	    ErrNotConnected       = errors.New("not connected to NATS")
//	    ErrConnectionTimeout  = errors.New("connection timeout")
//	)
//
// # Connection Options
//
// Available configuration options:
//
//	WithMaxReconnects(n int)              // Maximum reconnection attempts (-1 = infinite)
//	WithReconnectWait(d time.Duration)    // Wait between reconnection attempts
//	WithTimeout(d time.Duration)          // Connection timeout
//	WithDrainTimeout(d time.Duration)     // Timeout for graceful shutdown
//	WithPingInterval(d time.Duration)     // Health check interval
//	WithCircuitBreakerThreshold(n int32)  // Failures before circuit opens
//	WithMaxBackoff(d time.Duration)       // Maximum backoff duration
//	WithLogger(logger Logger)             // Custom logger for debug output
//	WithHealthInterval(d time.Duration)   // Health monitoring interval (0 disables)
//	WithName(name string)                 // Client identification
//
// # Authentication and Security
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithCredentials("username", "password"),
//	)
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithToken("auth-token"),
//	)
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithTLS("client.crt", "client.key", "ca.crt"),
//	)
//
// Note: Credentials are cleared from memory when the client is closed.
//
// # Testing
//
// The package provides test utilities for integration testing:
//
//	func TestMyService(t *testing.T) {
//	    testClient := natsclient.NewTestClient(t)
//	    client := testClient.Client
//	    err := client.Publish(ctx, "test.subject", []byte("test data"))
//	}
//
// Testing patterns:
//   - Uses a real NATS server via testcontainers, not mocks
//   - Tests actual behavior including connection lifecycle
//   - Thread-safe testing with proper synchronization
//
// # Thread Safety
//
// The Client type is thread-safe and can be used concurrently from multiple
// goroutines: all public methods are safe for concurrent use, connection
// state is managed with atomic operations and mutexes, subscriptions can be
// created from any goroutine, and Close() can only take effect once.
//
// # Architecture Integration
//
// natsclient backs two things in this tree: transport.NATSRelay (the data
// plane when transport.driver=nats) and gateway/status's log/status
// subscriptions. Both share one connected Client per Broker.
package natsclient
