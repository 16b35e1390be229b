package control

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"testing"
)

func referenceHMAC(key string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

func TestComputeHashes(t *testing.T) {
	t.Parallel()

	cookie := bytes.Repeat([]byte{0x01}, 32)
	clientNonce := bytes.Repeat([]byte{0x02}, 32)
	serverNonce := bytes.Repeat([]byte{0x03}, 32)

	t.Run("server hash matches reference HMAC", func(t *testing.T) {
		t.Parallel()

		want := referenceHMAC(serverToControllerKey, cookie, clientNonce, serverNonce)
		if got := ComputeServerHash(cookie, clientNonce, serverNonce); !bytes.Equal(got, want) {
			t.Errorf("ComputeServerHash() = %X, want %X", got, want)
		}
	})

	t.Run("client hash matches reference HMAC", func(t *testing.T) {
		t.Parallel()

		want := referenceHMAC(controllerToServerKey, cookie, clientNonce, serverNonce)
		if got := ComputeClientHash(cookie, clientNonce, serverNonce); !bytes.Equal(got, want) {
			t.Errorf("ComputeClientHash() = %X, want %X", got, want)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		a := ComputeServerHash(cookie, clientNonce, serverNonce)
		b := ComputeServerHash(cookie, clientNonce, serverNonce)
		if !bytes.Equal(a, b) {
			t.Error("expected identical hashes for identical inputs")
		}
		if len(a) != sha256.Size {
			t.Errorf("hash length = %d, want %d", len(a), sha256.Size)
		}
	})

	t.Run("directions differ", func(t *testing.T) {
		t.Parallel()

		server := ComputeServerHash(cookie, clientNonce, serverNonce)
		client := ComputeClientHash(cookie, clientNonce, serverNonce)
		if bytes.Equal(server, client) {
			t.Error("server and client hashes must differ")
		}
	})

	t.Run("nonce order matters", func(t *testing.T) {
		t.Parallel()

		a := ComputeServerHash(cookie, clientNonce, serverNonce)
		b := ComputeServerHash(cookie, serverNonce, clientNonce)
		if bytes.Equal(a, b) {
			t.Error("swapping nonces must change the hash")
		}
	})
}

func TestHexRoundTrip(t *testing.T) {
	t.Parallel()

	data := []byte{0x00, 0xab, 0xcd, 0xef, 0x10}
	encoded := EncodeHex(data)
	if encoded != "00ABCDEF10" {
		t.Errorf("EncodeHex() = %q, want %q", encoded, "00ABCDEF10")
	}

	for _, in := range []string{"00ABCDEF10", "00abcdef10"} {
		decoded, err := DecodeHex(in)
		if err != nil {
			t.Fatalf("DecodeHex(%q) failed: %v", in, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("DecodeHex(%q) = %X, want %X", in, decoded, data)
		}
	}

	if _, err := DecodeHex("XYZ"); err == nil {
		t.Error("expected error for non-hex input")
	}
}

func TestNewClientNonce(t *testing.T) {
	t.Parallel()

	a, err := newClientNonce()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := newClientNonce()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != ClientNonceSize {
		t.Errorf("nonce length = %d, want %d", len(a), ClientNonceSize)
	}
	if bytes.Equal(a, b) {
		t.Error("expected distinct nonces")
	}
}

func TestParseAuthChallenge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		lines     []string
		wantHash  []byte
		wantNonce []byte
		wantErr   bool
	}{
		{
			name:      "valid",
			lines:     []string{"AUTHCHALLENGE SERVERHASH=AABB SERVERNONCE=ccdd"},
			wantHash:  []byte{0xaa, 0xbb},
			wantNonce: []byte{0xcc, 0xdd},
		},
		{
			name:      "fields in any order",
			lines:     []string{"AUTHCHALLENGE SERVERNONCE=CCDD SERVERHASH=AABB"},
			wantHash:  []byte{0xaa, 0xbb},
			wantNonce: []byte{0xcc, 0xdd},
		},
		{
			name:    "no challenge line",
			lines:   []string{"OK"},
			wantErr: true,
		},
		{
			name:    "missing nonce",
			lines:   []string{"AUTHCHALLENGE SERVERHASH=AABB"},
			wantErr: true,
		},
		{
			name:    "empty hash",
			lines:   []string{"AUTHCHALLENGE SERVERHASH= SERVERNONCE=CCDD"},
			wantErr: true,
		},
		{
			name:    "non hex hash",
			lines:   []string{"AUTHCHALLENGE SERVERHASH=ZZZZ SERVERNONCE=CCDD"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hash, nonce, err := parseAuthChallenge(&Reply{Code: 250, Lines: tt.lines})
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedChallenge) {
					t.Fatalf("expected ErrMalformedChallenge, got %v", err)
				}
				if !errors.Is(err, ErrAuth) {
					t.Errorf("expected ErrAuth, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(hash, tt.wantHash) || !bytes.Equal(nonce, tt.wantNonce) {
				t.Errorf("got (%X, %X), want (%X, %X)", hash, nonce, tt.wantHash, tt.wantNonce)
			}
		})
	}
}
