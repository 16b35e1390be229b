package control

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// lineTerminator ends every command written to the ControlPort.
const lineTerminator = "\r\n"

// deadliner is implemented by net.Conn (and net.Pipe) so context deadlines
// can be mapped onto socket deadlines.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Conn is a framed, line-oriented connection to the ControlPort.
// It turns the byte stream into protocol lines and writes one command per
// line. Conn is not safe for concurrent use; Client serializes access.
type Conn struct {
	// rwc is the underlying stream, closed by Close.
	rwc io.ReadWriteCloser
	// r buffers reads only as far as needed to find line boundaries.
	r *bufio.Reader
	// w buffers a single command until it is flushed.
	w *bufio.Writer
}

// Dial connects to the ControlPort at addr.
// The returned Conn owns the socket until Close is called.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &IOError{Op: "dial", Err: err}
	}
	return NewConn(nc), nil
}

// NewConn wraps an already established stream.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc: rwc,
		r:   bufio.NewReader(rwc),
		w:   bufio.NewWriter(rwc),
	}
}

// Send writes cmd followed by CRLF and flushes it to the daemon.
func (c *Conn) Send(cmd string) error {
	if _, err := c.w.WriteString(cmd + lineTerminator); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	if err := c.w.Flush(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// ReadLine blocks until one complete line has been received and returns it
// without its line terminator. A stream that ends before the terminator is
// an I/O error, even if a partial line was read.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", &IOError{Op: "read", Err: err}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rwc.Close()
}

// setDeadline maps the context deadline onto the stream when supported.
// A context without a deadline clears any previous one.
func (c *Conn) setDeadline(ctx context.Context) error {
	d, ok := c.rwc.(deadliner)
	if !ok {
		return nil
	}
	deadline, _ := ctx.Deadline()
	if err := d.SetDeadline(deadline); err != nil {
		return &IOError{Op: "deadline", Err: err}
	}
	return nil
}
