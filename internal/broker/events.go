package broker

import (
	"io"
	"net"
)

// ConnID identifies one accepted connection for its whole lifetime.
// IDs are assigned monotonically by the acceptor and never reused, so a
// late event from an already-removed connection simply misses the lookup.
type ConnID uint64

// Conn is the write half of a client socket as the broker sees it. The
// read half stays with the reader goroutine; TCP treats the two
// directions independently, so sharing the handle is safe.
type Conn interface {
	io.Writer
	Close() error
}

// EventKind discriminates broker events.
type EventKind int

const (
	// EventConnected carries a freshly accepted connection.
	EventConnected EventKind = iota + 1
	// EventRead carries one chunk of bytes read from a connection.
	EventRead
	// EventDisconnected reports a clean EOF from the peer.
	EventDisconnected
	// EventReadError reports a failed read.
	EventReadError
	// EventTick drives the slow-connect sweep.
	EventTick
)

// Event is the single message type flowing into the broker. Producers
// are the acceptor, the per-connection readers, and the ticker; the
// broker goroutine is the only consumer, which serializes all state
// mutation.
type Event struct {
	Kind EventKind
	ID   ConnID
	Conn Conn         // EventConnected only
	Addr *net.TCPAddr // EventConnected only
	Data []byte       // EventRead only
	Err  error        // EventReadError only
}
