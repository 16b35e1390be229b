package control

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDaemon answers control commands over one end of a net.Pipe.
type fakeDaemon struct {
	// handler returns the raw reply for a command. An empty reply makes the
	// daemon hang up, like Tor does after a failed AUTHENTICATE.
	handler func(cmd string) string

	mu       sync.Mutex
	commands []string
}

// Commands returns the commands received so far.
func (d *fakeDaemon) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Count returns how many received commands equal cmd.
func (d *fakeDaemon) Count(cmd string) int {
	n := 0
	for _, c := range d.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

// serve reads commands until the connection closes.
func (d *fakeDaemon) serve(conn net.Conn, done chan<- struct{}) {
	defer close(done)
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		d.mu.Lock()
		d.commands = append(d.commands, cmd)
		d.mu.Unlock()

		resp := d.handler(cmd)
		if resp == "" {
			_ = conn.Close()
			return
		}
		if _, err := io.WriteString(conn, resp); err != nil {
			return
		}
	}
}

// discardLogger returns a logger that drops everything.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startFakeDaemon connects a Client to a fake daemon. Delays are shortened
// so waits finish quickly.
func startFakeDaemon(t *testing.T, handler func(cmd string) string, opts ...Option) (*Client, *fakeDaemon) {
	t.Helper()

	clientSide, daemonSide := net.Pipe()
	daemon := &fakeDaemon{handler: handler}
	done := make(chan struct{})
	go daemon.serve(daemonSide, done)

	base := []Option{
		WithLogger(discardLogger()),
		WithSettleDelay(0),
		WithPollInterval(time.Millisecond),
	}
	client := NewClient(NewConn(clientSide), append(base, opts...)...)

	t.Cleanup(func() {
		_ = client.Close()
		_ = daemonSide.Close()
		<-done
	})
	return client, daemon
}

// startAuthenticatedDaemon is startFakeDaemon with the session already
// marked authenticated.
func startAuthenticatedDaemon(t *testing.T, handler func(cmd string) string, opts ...Option) (*Client, *fakeDaemon) {
	t.Helper()

	client, daemon := startFakeDaemon(t, handler, opts...)
	client.authenticated = true
	return client, daemon
}

// reply joins lines into a CRLF terminated reply.
func reply(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}
