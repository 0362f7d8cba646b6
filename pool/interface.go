package pool

import (
	"context"
	"io"
	"time"
)

// Connection represents one physical session to the database handed out by a pool.
// Implementations must be comparable by identity (pointer types), because pools
// track connections as map keys.
type Connection interface {
	io.Closer

	// ID returns a stable identifier for logs and checkout bookkeeping.
	ID() string

	// Raw returns the underlying connection object.
	// The returned value can be type asserted to the actual connection type.
	Raw() interface{}

	// IsClosed reports whether Close has already been called on the connection.
	// It never touches the backend.
	IsClosed() bool

	// Commit commits pending work on the connection.
	Commit() error
}

// ConnectionFactory creates new connections for a pool.
type ConnectionFactory interface {
	// Create opens a new physical connection.
	Create(ctx context.Context) (Connection, error)
}

// Pool manages a collection of reusable connections.
type Pool interface {
	// ID returns the pool identifier.
	ID() string

	// Acquire checks a connection out of the pool.
	Acquire(ctx context.Context) (Connection, error)

	// Release returns a checked-out connection to the pool.
	// Releasing nil is a no-op.
	Release(conn Connection) error

	// Shutdown closes every connection the pool tracks and stops background work.
	// Checked-out connections are committed before they are closed.
	Shutdown(ctx context.Context) error

	// SetTrace toggles trace records for acquire, release and reaper activity.
	SetTrace(enabled bool)

	// Stats returns statistics about the pool's current state.
	Stats() Stats
}

// Stats represents pool statistics.
type Stats struct {
	// Available is the number of idle connections owned by the pool
	Available int

	// InUse is the number of connections currently checked out
	InUse int

	// Total is Available + InUse
	Total int

	// MaxConnections is the size the pool is trimmed back to
	MaxConnections int

	// Created is the total number of physical connections opened
	Created int64

	// Closed is the total number of physical connections closed by the pool
	Closed int64

	// Acquired is the total number of successful Acquire operations
	Acquired int64

	// Released is the total number of connections returned to the available set
	Released int64

	// Replaced is the number of closed connections the reaper replaced with fresh ones
	Replaced int64

	// Errors is the number of failed connection attempts
	Errors int64

	// ReaperRunning reports whether the background reaper is active
	ReaperRunning bool

	// CreatedAt is when the pool was created
	CreatedAt time.Time
}

// PoolManager manages multiple connection pools keyed by pool id.
type PoolManager interface {
	// Get retrieves a named connection pool.
	Get(id string) (Pool, error)

	// Register registers a new connection pool with the given id.
	Register(id string, pool Pool) error

	// GetOrCreate returns the pool registered under id, creating it with create if absent.
	GetOrCreate(id string, create func() (Pool, error)) (Pool, error)

	// Remove removes a named connection pool without shutting it down.
	Remove(id string) error

	// Shutdown gracefully shuts down all pools.
	Shutdown(ctx context.Context) error

	// Stats returns statistics for all pools.
	Stats() map[string]Stats
}

// State represents the connection state.
type State int

const (
	// StateAvailable indicates the connection is idle and owned by the pool.
	StateAvailable State = iota

	// StateInUse indicates the connection is checked out by a caller.
	StateInUse

	// StateClosed indicates the connection has been closed or is not tracked.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateInUse:
		return "in-use"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event represents a connection lifecycle event.
type Event int

const (
	// EventNew is triggered when a new connection is created.
	EventNew Event = iota

	// EventAcquire is triggered when a connection is checked out.
	EventAcquire

	// EventRelease is triggered when a connection is returned to the available set.
	EventRelease

	// EventClose is triggered when the pool closes a connection.
	EventClose
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventNew:
		return "new"
	case EventAcquire:
		return "acquire"
	case EventRelease:
		return "release"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// EventListener is notified about connection lifecycle events.
// Listeners may be called while a pool lock is held and must not call back into the pool.
type EventListener interface {
	// OnEvent is called when a connection event occurs.
	OnEvent(event Event, conn Connection)
}
