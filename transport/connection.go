// Package transport provides a reference TCP implementation of the I/O
// collaborator contract the Dispatch Core depends on: it reads framed
// bytes off two sockets (client-facing and server-facing), feeds
// inbound frames through Handle, and forwards whatever bytes come back
// to the other side. It is a convenience adapter, not a mandated
// transport — any type satisfying the same small interface works.
package transport

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/wireghost/wireghost/pipeline"
	"github.com/wireghost/wireghost/pool"
)

const (
	headerLen          = 4
	defaultReadBufSize = 4096
)

// ErrFrameTooLarge guards against a corrupt or hostile length prefix
// running the reader out of memory.
var ErrFrameTooLarge = errors.New("transport: frame length exceeds maximum")

// MaxFrameLen bounds how large a single frame's declared length may be.
var MaxFrameLen = 1 << 20

// Dispatcher is the slice of the Dispatch Facade the transport needs:
// feeding inbound bytes through the Handler Pipeline.
type Dispatcher interface {
	Handle(data []byte, incoming, fake bool) ([]byte, error)
}

// ErrorFunc receives transport-level failures (read errors, a pipeline
// error other than suppression) for logging. context names which leg
// of the proxy the failure happened on ("client" or "server").
type ErrorFunc func(err error, context string)

// Connection proxies one client↔server session: bytes read from the
// client are run through Handle with incoming=false (client→server)
// and forwarded to the server; bytes read from the server are run
// through Handle with incoming=true (server→client) and forwarded to
// the client. It implements the I/O collaborator contract's
// SendServer/SendClient for modules that synthesize frames via Write.
type Connection struct {
	client net.Conn
	server net.Conn

	clientW *bufio.Writer
	serverW *bufio.Writer

	dispatch Dispatcher
	handleMu sync.Mutex // serializes the two read loops' Handle calls
	onError  ErrorFunc

	done chan struct{}
}

// New wires client and server sockets together through dispatch. Call
// Run to start the two read loops.
func New(client, server net.Conn, dispatch Dispatcher, onError ErrorFunc) *Connection {
	if onError == nil {
		onError = func(error, string) {}
	}
	return &Connection{
		client:   client,
		server:   server,
		clientW:  bufio.NewWriter(client),
		serverW:  bufio.NewWriter(server),
		dispatch: dispatch,
		onError:  onError,
		done:     make(chan struct{}),
	}
}

// Run starts the client→server and server→client read loops on their
// own goroutines, matching the specification's "one goroutine per
// connection, never touching one Dispatch from two goroutines" model —
// both loops feed the same Dispatch through Handle, and handleMu keeps
// the two from calling it concurrently.
func (c *Connection) Run() {
	go c.pump(c.client, false, c.SendServer, "client")
	go c.pump(c.server, true, c.SendClient, "server")
}

// Close tears down both sockets and signals Done to unblock callers
// waiting on the session's lifetime.
func (c *Connection) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	cErr := c.client.Close()
	sErr := c.server.Close()
	if cErr != nil {
		return cErr
	}
	return sErr
}

// Done reports when the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) pump(conn net.Conn, incoming bool, forward func([]byte) error, context string) {
	reader := bufio.NewReaderSize(conn, defaultReadBufSize)
	for {
		bufp, err := readFrame(reader)
		if err != nil {
			if err != io.EOF {
				c.onError(errors.Wrap(err, "transport: read frame"), context)
			}
			c.Close()
			return
		}
		frame := *bufp

		c.handleMu.Lock()
		out, err := c.dispatch.Handle(frame, incoming, false)
		c.handleMu.Unlock()
		if err != nil {
			pool.Default().Free(bufp)
			if errors.Cause(err) != pipeline.ErrSuppressed {
				c.onError(errors.Wrap(err, "transport: handle frame"), context)
			}
			continue
		}
		ferr := forward(out)
		pool.Default().Free(bufp)
		if ferr != nil {
			c.onError(errors.Wrap(ferr, "transport: forward frame"), context)
			c.Close()
			return
		}
	}
}

// SendServer forwards already-transform-encoded bytes to the server socket.
func (c *Connection) SendServer(data []byte) error {
	return writeAll(c.serverW, data)
}

// SendClient forwards already-transform-encoded bytes to the client socket.
func (c *Connection) SendClient(data []byte) error {
	return writeAll(c.clientW, data)
}

func writeAll(w *bufio.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}

// readFrame reads one complete frame into a pooled buffer. Callers own
// the returned buffer and must return it via pool.Default().Free once
// they are done with it.
func readFrame(r *bufio.Reader) (*[]byte, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := int32(binary.LittleEndian.Uint16(header[0:2]))
	if length < headerLen {
		return nil, errors.New("transport: frame length shorter than header")
	}
	if int(length) > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	bufp := pool.Default().Alloc(length)
	copy(*bufp, header)
	if _, err := io.ReadFull(r, (*bufp)[headerLen:]); err != nil {
		pool.Default().Free(bufp)
		return nil, err
	}
	return bufp, nil
}
