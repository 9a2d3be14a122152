package adapter

import (
	"context"

	"github.com/marmos91/tinyweb/pkg/content"
	"github.com/marmos91/tinyweb/pkg/store/credential"
)

// Adapter represents a protocol server that can be managed by TinyWebServer.
//
// All adapters share the same content store and account service.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Store injection: SetStores() provides shared backend access
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetStores() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for in-flight work to complete (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, TinyWebServer treats it as
	// a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// SetStores injects the static content store and the account service
	// behind the login and registration forms (nil disables accounts).
	//
	// Called exactly once before Serve().
	SetStores(contentStore content.Store, accounts *credential.Authenticator)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context timeout for shutdown operations
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter is listening on, or the
	// configured port before Serve() has bound it.
	Port() int
}
