package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// MaskValue replaces every redacted attribute value.
const MaskValue = "***REDACTED***"

// secretKeys are attribute keys whose values are always redacted. The
// control session handles the authentication cookie and the SAFECOOKIE
// proofs derived from it; the egress side may carry proxy credentials.
var secretKeys = map[string]struct{}{
	"cookie":              {},
	"cookie_hex":          {},
	"client_hash":         {},
	"server_hash":         {},
	"hashed_password":     {},
	"authorization":       {},
	"proxy-authorization": {},
}

// secretFragments redact any key that contains them. The bare word "key"
// is left out: "cache_key" or "primary_key" are not secrets.
var secretFragments = []string{
	"auth", "credential", "nonce", "passwd", "password", "private", "secret", "token",
}

// publicKeys skip value matching. Relay fingerprints are 40 hex digits and
// would otherwise look like key material.
var publicKeys = map[string]struct{}{
	"circuit":      {},
	"circuit_id":   {},
	"fingerprint":  {},
	"fingerprints": {},
	"path":         {},
}

// secretValues match values that are redacted whatever their key.
var secretValues = []*regexp.Regexp{
	// AUTHENTICATE with a cookie, password or client hash argument.
	regexp.MustCompile(`(?i)^AUTHENTICATE\s+\S+`),
	// AUTHCHALLENGE with its client nonce.
	regexp.MustCompile(`(?i)^AUTHCHALLENGE\s+SAFECOOKIE\s+\S+`),
	// 32-byte cookie or HMAC-SHA256 digest in hex.
	regexp.MustCompile(`^[0-9A-Fa-f]{64}$`),
	// HashedControlPassword.
	regexp.MustCompile(`^16:[0-9A-Fa-f]{58}$`),
	regexp.MustCompile(`(?i)^bearer\s+\S+`),
	regexp.MustCompile(`(?i)-----BEGIN[A-Z ]*PRIVATE KEY-----`),
}

// SecureHandler is an slog.Handler that redacts secrets before handing
// records to the wrapped handler.
type SecureHandler struct {
	next slog.Handler
}

// NewSecureHandler wraps next. A nil next wraps slog.Default().Handler().
func NewSecureHandler(next slog.Handler) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler. Attributes are redacted once, here.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SecureHandler{next: h.next.WithAttrs(redactAll(attrs))}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name)}
}

func redactAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, redact(a))
	}
	return out
}

// redact returns a with its value masked when the key or value marks it as
// a secret. Groups are walked recursively.
func redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redactAll(a.Value.Group())...)}
	}

	key := strings.ToLower(a.Key)
	if isSecretKey(key) {
		return slog.String(a.Key, MaskValue)
	}
	if _, public := publicKeys[key]; public || a.Value.Kind() != slog.KindString {
		return a
	}
	if isSecretValue(a.Value.String()) {
		return slog.String(a.Key, MaskValue)
	}
	return a
}

// isSecretKey reports whether a lowercased key names a secret.
func isSecretKey(key string) bool {
	if _, ok := secretKeys[key]; ok {
		return true
	}
	return slices.ContainsFunc(secretFragments, func(fragment string) bool {
		return strings.Contains(key, fragment)
	})
}

func isSecretValue(value string) bool {
	return slices.ContainsFunc(secretValues, func(re *regexp.Regexp) bool {
		return re.MatchString(value)
	})
}

// Level maps verbosity to a minimum level. Info stays visible by default so
// rotation progress is reported without -v.
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// New builds a redacting logger writing to w, as JSON when jsonOutput is set
// and as logfmt text otherwise.
func New(w io.Writer, verbose, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: Level(verbose)}

	var inner slog.Handler = slog.NewTextHandler(w, opts)
	if jsonOutput {
		inner = slog.NewJSONHandler(w, opts)
	}
	return slog.New(NewSecureHandler(inner))
}

// NewSecureLogger is New with text output.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return New(w, verbose, false)
}

// NewSecureJSONLogger is New with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return New(w, verbose, true)
}
