package control

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HMAC keys defined by the control protocol for SAFECOOKIE. The two
// directions use different keys so neither hash can be replayed as the other.
const (
	serverToControllerKey = "Tor safe cookie authentication server-to-controller hash"
	controllerToServerKey = "Tor safe cookie authentication controller-to-server hash"
)

// ClientNonceSize is the length of the client nonce sent in AUTHCHALLENGE.
const ClientNonceSize = 32

// ComputeServerHash returns the SERVERHASH the daemon must present:
// HMAC-SHA256(server-to-controller key, cookie | clientNonce | serverNonce).
func ComputeServerHash(cookie, clientNonce, serverNonce []byte) []byte {
	return safeCookieHMAC(serverToControllerKey, cookie, clientNonce, serverNonce)
}

// ComputeClientHash returns the value the client sends with AUTHENTICATE:
// HMAC-SHA256(controller-to-server key, cookie | clientNonce | serverNonce).
func ComputeClientHash(cookie, clientNonce, serverNonce []byte) []byte {
	return safeCookieHMAC(controllerToServerKey, cookie, clientNonce, serverNonce)
}

// safeCookieHMAC computes HMAC-SHA256 over the concatenated inputs.
func safeCookieHMAC(key string, cookie, clientNonce, serverNonce []byte) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(cookie)
	mac.Write(clientNonce)
	mac.Write(serverNonce)
	return mac.Sum(nil)
}

// EncodeHex encodes b as uppercase hex, the form used on the wire.
func EncodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// DecodeHex decodes hex in either case.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// newClientNonce returns ClientNonceSize bytes from crypto/rand.
func newClientNonce() ([]byte, error) {
	nonce := make([]byte, ClientNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate client nonce: %w", err)
	}
	return nonce, nil
}

// parseAuthChallenge extracts SERVERHASH and SERVERNONCE from the
// "AUTHCHALLENGE SERVERHASH=... SERVERNONCE=..." line of reply.
func parseAuthChallenge(reply *Reply) (serverHash, serverNonce []byte, err error) {
	const prefix = "AUTHCHALLENGE "

	line, ok := reply.Line(prefix)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no AUTHCHALLENGE line", ErrMalformedChallenge)
	}
	values := parseKeyValues(strings.TrimPrefix(line, prefix))

	serverHash, err = decodeChallengeField(values, "SERVERHASH")
	if err != nil {
		return nil, nil, err
	}
	serverNonce, err = decodeChallengeField(values, "SERVERNONCE")
	if err != nil {
		return nil, nil, err
	}
	return serverHash, serverNonce, nil
}

// decodeChallengeField decodes one hex field of an AUTHCHALLENGE line.
func decodeChallengeField(values map[string]string, key string) ([]byte, error) {
	raw, ok := values[key]
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: %s missing", ErrMalformedChallenge, key)
	}
	decoded, err := DecodeHex(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hex", ErrMalformedChallenge, key)
	}
	return decoded, nil
}
