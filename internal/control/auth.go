package control

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AuthMethod is an authentication scheme announced in PROTOCOLINFO.
type AuthMethod int

const (
	// AuthNull requires no credential.
	AuthNull AuthMethod = iota + 1
	// AuthCookie proves filesystem access by sending the cookie itself.
	AuthCookie
	// AuthSafeCookie is the mutual HMAC challenge-response over the cookie.
	AuthSafeCookie
)

// String returns the protocol name of the method.
func (m AuthMethod) String() string {
	switch m {
	case AuthNull:
		return "NULL"
	case AuthCookie:
		return "COOKIE"
	case AuthSafeCookie:
		return "SAFECOOKIE"
	default:
		return "UNKNOWN"
	}
}

// ParseAuthMethod maps a protocol method name to an AuthMethod.
// HASHEDPASSWORD and unknown names are not supported and return false.
func ParseAuthMethod(name string) (AuthMethod, bool) {
	switch strings.ToUpper(name) {
	case "NULL":
		return AuthNull, true
	case "COOKIE":
		return AuthCookie, true
	case "SAFECOOKIE":
		return AuthSafeCookie, true
	default:
		return 0, false
	}
}

// ProtocolInfo is the parsed PROTOCOLINFO reply.
type ProtocolInfo struct {
	// Methods are the announced methods this client supports.
	Methods []AuthMethod
	// MethodNames are all announced method names, including unsupported ones.
	MethodNames []string
	// CookieFile is the announced cookie path, empty when none.
	CookieFile string
	// TorVersion is the daemon version, empty when not announced.
	TorVersion string
}

// Supports reports whether m was announced.
func (p *ProtocolInfo) Supports(m AuthMethod) bool {
	for _, method := range p.Methods {
		if method == m {
			return true
		}
	}
	return false
}

// ProtocolInfo issues PROTOCOLINFO. It is allowed before authentication.
func (c *Client) ProtocolInfo(ctx context.Context) (*ProtocolInfo, error) {
	reply, err := c.exec(ctx, "PROTOCOLINFO 1")
	if err != nil {
		return nil, err
	}
	return parseProtocolInfo(reply.Lines), nil
}

// parseProtocolInfo reads the AUTH and VERSION lines of a PROTOCOLINFO reply.
func parseProtocolInfo(lines []string) *ProtocolInfo {
	info := &ProtocolInfo{}
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "AUTH "):
			values := parseKeyValues(strings.TrimPrefix(line, "AUTH "))
			for _, name := range strings.Split(values["METHODS"], ",") {
				name = strings.Trim(name, "\" \t")
				if name == "" {
					continue
				}
				info.MethodNames = append(info.MethodNames, name)
				if method, ok := ParseAuthMethod(name); ok {
					info.Methods = append(info.Methods, method)
				}
			}
			if path := values["COOKIEFILE"]; path != "" {
				info.CookieFile = filepath.Clean(path)
			}
		case strings.HasPrefix(line, "VERSION "):
			info.TorVersion = parseKeyValues(strings.TrimPrefix(line, "VERSION "))["Tor"]
		}
	}
	return info
}

// authPlan returns the methods to try, in order: COOKIE and SAFECOOKIE when
// a cookie file is known, then NULL when it is announced or nothing is.
func authPlan(info *ProtocolInfo, cookieFile string) []AuthMethod {
	var plan []AuthMethod
	if cookieFile != "" {
		if info.Supports(AuthCookie) {
			plan = append(plan, AuthCookie)
		}
		if info.Supports(AuthSafeCookie) {
			plan = append(plan, AuthSafeCookie)
		}
	}
	if info.Supports(AuthNull) || len(info.MethodNames) == 0 {
		plan = append(plan, AuthNull)
	}
	return plan
}

// Authenticate runs PROTOCOLINFO and tries the applicable methods in order,
// stopping at the first one the daemon accepts.
//
// A rejected method falls through to the next one. Transport failures, a
// malformed AUTHCHALLENGE and a SAFECOOKIE server hash mismatch end the
// attempt immediately. A transport failure that follows a rejection is
// reported as ErrAllMethodsFailed and still matches ErrIO.
func (c *Client) Authenticate(ctx context.Context) error {
	info, err := c.ProtocolInfo(ctx)
	if err != nil {
		return err
	}

	cookieFile := info.CookieFile
	if c.cookieFile != "" {
		cookieFile = c.cookieFile
	}
	c.logger.Info("tor control port capabilities",
		"methods", info.MethodNames,
		"cookie_file", cookieFile,
		"tor_version", info.TorVersion,
	)

	plan := authPlan(info, cookieFile)
	var failures []error
	for _, method := range plan {
		c.logger.Debug("attempting authentication", "method", method.String())

		err := c.authenticateWith(ctx, method, cookieFile)
		if err == nil {
			c.mu.Lock()
			c.authenticated = true
			c.mu.Unlock()
			c.logger.Info("authenticated with tor control port", "method", method.String())
			return nil
		}
		if !isRejection(err) {
			// Tor hangs up after a rejected AUTHENTICATE, so the next method
			// sees a closed connection. Report that as an authentication
			// failure carrying the earlier rejections.
			if len(failures) > 0 && errors.Is(err, ErrIO) {
				failures = append(failures, fmt.Errorf("%s: %w", method, err))
				return fmt.Errorf("%w: %w", ErrAllMethodsFailed, errors.Join(failures...))
			}
			return err
		}
		c.logger.Warn("authentication method failed", "method", method.String(), "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", method, err))
	}

	if len(failures) == 0 {
		return fmt.Errorf("%w: no usable method among %v", ErrAllMethodsFailed, info.MethodNames)
	}
	return fmt.Errorf("%w: %w", ErrAllMethodsFailed, errors.Join(failures...))
}

// authenticateWith runs a single method.
func (c *Client) authenticateWith(ctx context.Context, method AuthMethod, cookieFile string) error {
	switch method {
	case AuthCookie:
		cookie, err := readCookie(cookieFile)
		if err != nil {
			return err
		}
		return c.expectOK(ctx, "AUTHENTICATE "+EncodeHex(cookie))
	case AuthSafeCookie:
		cookie, err := readCookie(cookieFile)
		if err != nil {
			return err
		}
		return c.authenticateSafeCookie(ctx, cookie)
	case AuthNull:
		return c.expectOK(ctx, "AUTHENTICATE")
	default:
		return fmt.Errorf("unsupported authentication method %d", method)
	}
}

// authenticateSafeCookie performs AUTHCHALLENGE and, only after the daemon's
// SERVERHASH has been verified, sends the client hash.
func (c *Client) authenticateSafeCookie(ctx context.Context, cookie []byte) error {
	clientNonce, err := newClientNonce()
	if err != nil {
		return err
	}

	reply, err := c.exec(ctx, "AUTHCHALLENGE SAFECOOKIE "+EncodeHex(clientNonce))
	if err != nil {
		return err
	}
	serverHash, serverNonce, err := parseAuthChallenge(reply)
	if err != nil {
		return err
	}

	expected := ComputeServerHash(cookie, clientNonce, serverNonce)
	if !hmac.Equal(expected, serverHash) {
		return ErrServerHashMismatch
	}
	c.logger.Debug("daemon server hash verified")

	clientHash := ComputeClientHash(cookie, clientNonce, serverNonce)
	return c.expectOK(ctx, "AUTHENTICATE "+EncodeHex(clientHash))
}

// isRejection reports whether err only rules out the current method.
func isRejection(err error) bool {
	return errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrUnexpectedReply) ||
		errors.Is(err, ErrCookieUnavailable)
}

// readCookie reads the raw cookie bytes.
func readCookie(path string) ([]byte, error) {
	// #nosec G304 -- the path is announced by the daemon or configured by the user.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCookieUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCookieUnavailable, path)
	}
	return data, nil
}

// parseKeyValues parses space separated KEY=VALUE tokens where VALUE may be
// a quoted string with backslash escapes. Tokens without "=" are ignored.
func parseKeyValues(s string) map[string]string {
	values := make(map[string]string)
	i := 0
	for i < len(s) {
		if s[i] == ' ' {
			i++
			continue
		}
		start := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' {
			i++
		}
		if i >= len(s) || s[i] == ' ' {
			continue
		}
		key := s[start:i]
		i++ // skip '='

		if i < len(s) && s[i] == '"' {
			value, n := readQuoted(s[i:])
			values[key] = value
			i += n
			continue
		}
		start = i
		for i < len(s) && s[i] != ' ' {
			i++
		}
		values[key] = s[start:i]
	}
	return values
}

// readQuoted unescapes the quoted string at the start of s and returns it
// with the number of bytes consumed, closing quote included.
func readQuoted(s string) (string, int) {
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				sb.WriteByte(s[i])
			}
		case '"':
			return sb.String(), i + 1
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String(), len(s)
}
