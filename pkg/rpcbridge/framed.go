package rpcbridge

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"net"
	"sync"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// writeFrame writes a 4-byte big-endian length prefix followed by the
// gob-encoded value v.
func writeFrame(w *bufio.Writer, v any) error {
	var buf frameBuffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	var lenHdr [4]byte
	binary.BigEndian.PutUint32(lenHdr[:], uint32(buf.Len()))
	if _, err := w.Write(lenHdr[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return w.Flush()
}

func readFrame(r *bufio.Reader, v any) error {
	var lenHdr [4]byte
	if _, err := readFull(r, lenHdr[:]); err != nil {
		return fmt.Errorf("reading frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenHdr[:])
	body := make([]byte, n)
	if _, err := readFull(r, body); err != nil {
		return fmt.Errorf("reading frame body: %w", err)
	}
	if err := gob.NewDecoder(newFrameBufferFrom(body)).Decode(v); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	return nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// FramedClient is the client side of the length-delimited binary
// transport: one net.Conn multiplexed one request/response at a time
// under a mutex.
type FramedClient struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// DialFramed connects to a connector's Unix-domain socket using the
// Framed transport.
func DialFramed(ctx context.Context, socketPath string) (*FramedClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", socketPath, err)
	}
	return &FramedClient{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}, nil
}

func (c *FramedClient) call(ctx context.Context, op protocol.Op, args, out any) error {
	req, err := encodeRequest(op, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, op.Deadline())
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)

	c.mu.Lock()
	go func() {
		defer c.mu.Unlock()
		if err := writeFrame(c.w, req); err != nil {
			done <- result{err: err}
			return
		}
		var resp Response
		if err := readFrame(c.r, &resp); err != nil {
			done <- result{err: err}
			return
		}
		done <- result{resp: &resp}
	}()

	select {
	case <-ctx.Done():
		// Deadline exceeded: abandon the response, but do not close the
		// connection -- the connector may continue running and a later
		// call can still reuse the handle.
		return fmt.Errorf("rpc %s: %w", op, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("rpc %s: %w", op, r.err)
		}
		return decodeInto(r.resp, out)
	}
}

func (c *FramedClient) Close() error { return c.conn.Close() }

// FramedServer wraps a concrete connector implementation behind a single
// mutex, so at most one op executes at a time per process.
type FramedServer struct {
	mu   sync.Mutex
	conn protocol.Connector
}

// NewFramedServer constructs a server for conn.
func NewFramedServer(conn protocol.Connector) *FramedServer {
	return &FramedServer{conn: conn}
}

// Serve accepts connections on listener and services each with the
// length-delimited framing protocol until the listener or context closes.
func (s *FramedServer) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *FramedServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		var req Request
		if err := readFrame(r, &req); err != nil {
			return
		}

		s.mu.Lock()
		callCtx, cancel := context.WithTimeout(ctx, req.Op.Deadline())
		resp := Dispatch(callCtx, s.conn, &req)
		cancel()
		s.mu.Unlock()

		if err := writeFrame(w, resp); err != nil {
			return
		}
	}
}

// frameBuffer is a minimal growable byte buffer satisfying io.Writer,
// avoiding a bytes.Buffer import purely for symmetry with
// newFrameBufferFrom below.
type frameBuffer struct{ b []byte }

func (f *frameBuffer) Write(p []byte) (int, error) {
	f.b = append(f.b, p...)
	return len(p), nil
}
func (f *frameBuffer) Bytes() []byte { return f.b }
func (f *frameBuffer) Len() int      { return len(f.b) }

func newFrameBufferFrom(b []byte) *readBuffer { return &readBuffer{b: b} }

type readBuffer struct {
	b   []byte
	pos int
}

func (r *readBuffer) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, fmt.Errorf("EOF")
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
