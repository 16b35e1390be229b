package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 handshake performed by CheckConnection.
// It is a local round trip, so it is much shorter than request timeouts.
const checkProxyTimeout = 2 * time.Second

// Client routes connections through a Tor SOCKS5 proxy.
type Client struct {
	// proxyAddress is the SOCKS5 proxy address in "host:port" format.
	proxyAddress string

	// dialer is the SOCKS5 dialer shared by every HTTP client built here.
	dialer proxy.Dialer

	// timeout is the request timeout of HTTP clients built here.
	timeout time.Duration
}

// NewClient creates a Client for the proxy at proxyAddress.
//
// The address is validated but not contacted; call CheckConnection to find
// out whether Tor is actually listening there.
func NewClient(proxyAddress string, timeout time.Duration) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	// Tor's SOCKS port does not require authentication.
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		timeout:      timeout,
	}, nil
}

// isValidProxyAddress checks for "host:port" with a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// SOCKS5 wire values used by the proxy probe.
const (
	socksVersion      = 0x05
	socksNoAuth       = 0x00
	socksConnect      = 0x01
	socksDomainName   = 0x03
	socksReplyHeadLen = 4

	// probeOnion is a well-formed onion address that does not exist. Only the
	// proxy's answer to CONNECT matters, never the outcome.
	probeOnion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
	probePort  = 80
)

// CheckConnection verifies that a SOCKS5 proxy answers at the configured
// address. It negotiates "no authentication" and sends one CONNECT for
// probeOnion. Any well-formed SOCKS5 reply counts, failure codes included:
// Tor answers host unreachable for an onion that does not exist.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	if status := socksExchange(conn, []byte{socksVersion, 1, socksNoAuth}, 2, func(b []byte) bool {
		return b[1] == socksNoAuth
	}); status != ProxyStatusOK {
		return status
	}
	return socksExchange(conn, connectRequest(probeOnion, probePort), socksReplyHeadLen, nil)
}

// connectRequest encodes a SOCKS5 CONNECT to host:port by domain name.
func connectRequest(host string, port uint16) []byte {
	req := make([]byte, 0, 7+len(host))
	req = append(req, socksVersion, socksConnect, 0x00, socksDomainName, byte(len(host)))
	req = append(req, host...)
	return append(req, byte(port>>8), byte(port))
}

// socksExchange writes req and reads n reply bytes. The reply must carry the
// SOCKS5 version and, when accept is set, satisfy it.
func socksExchange(conn net.Conn, req []byte, n int, accept func([]byte) bool) ProxyStatus {
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}
	reply := make([]byte, n)
	if _, err := io.ReadFull(conn, reply); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if reply[0] != socksVersion || (accept != nil && !accept(reply)) {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewHTTPClient returns an HTTP client whose connections all go through the
// Tor proxy. Each call returns a client with a fresh transport, so no
// connection opened on an earlier circuit is reused.
func (c *Client) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: c.DialContext,
		// A small pool: every connection pins a Tor circuit.
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     30 * time.Second,
		// Compressed sizes leak content length information.
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
}

// DialContext opens a connection through Tor. The SOCKS5 dialer returned by
// x/net/proxy supports contexts directly; the goroutine fallback only
// covers dialers that do not.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if result := <-resultCh; result.conn != nil {
				_ = result.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// Timeout returns the request timeout of HTTP clients built by c.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}
