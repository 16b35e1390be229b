package egress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/torrotator/internal/model"
)

// fakeServices serves the three egress endpoints from one httptest server.
type fakeServices struct {
	ip       string
	isTor    bool
	geo      string
	ipStatus int
	torFails atomic.Int32
	torCalls atomic.Int32
	geoPaths chan string
}

func (s *fakeServices) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ip", func(w http.ResponseWriter, _ *http.Request) {
		if s.ipStatus != 0 {
			w.WriteHeader(s.ipStatus)
			return
		}
		_, _ = io.WriteString(w, `{"ip":"`+s.ip+`"}`)
	})
	mux.HandleFunc("/tor", func(w http.ResponseWriter, _ *http.Request) {
		s.torCalls.Add(1)
		if s.torFails.Load() > 0 {
			s.torFails.Add(-1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if s.isTor {
			_, _ = io.WriteString(w, `{"IsTor":true,"IP":"`+s.ip+`"}`)
			return
		}
		_, _ = io.WriteString(w, `{"IsTor":false,"IP":"`+s.ip+`"}`)
	})
	mux.HandleFunc("/geo/", func(w http.ResponseWriter, r *http.Request) {
		if s.geoPaths != nil {
			s.geoPaths <- r.URL.Path
		}
		_, _ = io.WriteString(w, s.geo)
	})
	return mux
}

// newTestFetcher starts the fake services and returns a Fetcher pointed at them.
func newTestFetcher(t *testing.T, s *fakeServices) *Fetcher {
	t.Helper()

	server := httptest.NewServer(s.handler())
	t.Cleanup(server.Close)

	return NewFetcher(server.Client(),
		WithIPEchoURL(server.URL+"/ip"),
		WithTorCheckURL(server.URL+"/tor"),
		WithGeoIPURL(server.URL+"/geo/%s/json/"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

const berlinGeo = `{"city":"Berlin","region":"Land Berlin","country_name":"Germany","country_code":"DE"}`

// TestNewFetcherDefaults tests the default endpoints.
func TestNewFetcherDefaults(t *testing.T) {
	t.Parallel()

	f := NewFetcher(http.DefaultClient, WithIPEchoURL(""))
	if f.ipEchoURL != DefaultIPEchoURL || f.torCheckURL != DefaultTorCheckURL || f.geoIPURL != DefaultGeoIPURL {
		t.Errorf("unexpected defaults: %q %q %q", f.ipEchoURL, f.torCheckURL, f.geoIPURL)
	}
	if f.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
}

// TestFetchAddress tests the IP echo lookup.
func TestFetchAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		svc     *fakeServices
		want    string
		wantErr error
	}{
		{"ipv4", &fakeServices{ip: "198.51.100.7"}, "198.51.100.7", nil},
		{"ipv6", &fakeServices{ip: "2001:db8::1"}, "2001:db8::1", nil},
		{"not an address", &fakeServices{ip: "<html>"}, "", ErrInvalidAddress},
		{"server error", &fakeServices{ipStatus: http.StatusServiceUnavailable}, "", ErrUnexpectedStatus},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newTestFetcher(t, tc.svc)
			got, err := f.FetchAddress(context.Background())
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchAddress failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// TestFetchAddressMalformed tests a body that is not JSON.
func TestFetchAddressMalformed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "198.51.100.7")
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(server.Client(), WithIPEchoURL(server.URL))
	if _, err := f.FetchAddress(context.Background()); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

// TestCheckTor tests the three Tor verdicts.
func TestCheckTor(t *testing.T) {
	t.Parallel()

	t.Run("confirmed", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, &fakeServices{ip: "198.51.100.7", isTor: true})
		status, err := f.CheckTor(context.Background())
		if err != nil || status != model.TorStatusConfirmed {
			t.Errorf("got %v, %v", status, err)
		}
	})

	t.Run("not tor", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, &fakeServices{ip: "198.51.100.7"})
		status, err := f.CheckTor(context.Background())
		if err != nil || status != model.TorStatusNotTor {
			t.Errorf("got %v, %v", status, err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		svc := &fakeServices{ip: "198.51.100.7"}
		svc.torFails.Store(1)
		f := newTestFetcher(t, svc)
		status, err := f.CheckTor(context.Background())
		if err == nil || status != model.TorStatusUnknown {
			t.Errorf("got %v, %v", status, err)
		}
	})
}

// TestGeolocate tests the geolocation lookup.
func TestGeolocate(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		svc := &fakeServices{geo: berlinGeo, geoPaths: make(chan string, 1)}
		f := newTestFetcher(t, svc)

		loc, err := f.Geolocate(context.Background(), "198.51.100.7")
		if err != nil {
			t.Fatalf("Geolocate failed: %v", err)
		}
		want := model.Location{City: "Berlin", Region: "Land Berlin", Country: "Germany", CountryCode: "DE"}
		if loc != want {
			t.Errorf("got %+v, want %+v", loc, want)
		}
		if path := <-svc.geoPaths; path != "/geo/198.51.100.7/json/" {
			t.Errorf("unexpected request path %q", path)
		}
	})

	t.Run("service refuses", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, &fakeServices{geo: `{"error":true,"reason":"RateLimited"}`})
		_, err := f.Geolocate(context.Background(), "198.51.100.7")
		if !errors.Is(err, ErrMalformedResponse) || !strings.Contains(err.Error(), "RateLimited") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("invalid address is not sent", func(t *testing.T) {
		t.Parallel()
		svc := &fakeServices{geo: berlinGeo, geoPaths: make(chan string, 1)}
		f := newTestFetcher(t, svc)
		_, err := f.Geolocate(context.Background(), "../../admin")
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress, got %v", err)
		}
		select {
		case path := <-svc.geoPaths:
			t.Errorf("request should not have been sent, got %q", path)
		default:
		}
	})
}

// TestLookup tests the combined lookup and its degradation.
func TestLookup(t *testing.T) {
	t.Parallel()

	t.Run("everything known", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, &fakeServices{ip: "198.51.100.7", isTor: true, geo: berlinGeo})

		info := f.Lookup(context.Background())
		if info.Address != "198.51.100.7" || info.Tor != model.TorStatusConfirmed {
			t.Errorf("unexpected info %+v", info)
		}
		if info.Location.String() != "Berlin, Germany" {
			t.Errorf("unexpected location %q", info.Location.String())
		}
		if len(info.Errors) != 0 {
			t.Errorf("unexpected errors %v", info.Errors)
		}
	})

	t.Run("address unavailable", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, &fakeServices{ipStatus: http.StatusInternalServerError, isTor: true, geo: berlinGeo})

		info := f.Lookup(context.Background())
		if info.Known() {
			t.Errorf("address should be unknown, got %q", info.Address)
		}
		if info.Tor != model.TorStatusConfirmed {
			t.Errorf("tor check should still run, got %v", info.Tor)
		}
		if !info.Location.IsZero() {
			t.Errorf("location should be unknown, got %+v", info.Location)
		}
		if len(info.Errors) != 1 || !strings.HasPrefix(info.Errors[0], "address:") {
			t.Errorf("unexpected errors %v", info.Errors)
		}
	})

	t.Run("location unavailable", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, &fakeServices{ip: "198.51.100.7", isTor: true, geo: "not json"})

		info := f.Lookup(context.Background())
		if info.Address != "198.51.100.7" || info.Tor != model.TorStatusConfirmed {
			t.Errorf("unexpected info %+v", info)
		}
		if info.Location.String() != "Unknown, Unknown" {
			t.Errorf("unexpected location %q", info.Location.String())
		}
		if len(info.Errors) != 1 || !strings.HasPrefix(info.Errors[0], "location:") {
			t.Errorf("unexpected errors %v", info.Errors)
		}
	})
}

// TestVerify tests the retrying Tor verification.
func TestVerify(t *testing.T) {
	t.Parallel()

	t.Run("first attempt succeeds", func(t *testing.T) {
		t.Parallel()
		svc := &fakeServices{ip: "198.51.100.7", isTor: true}
		f := newTestFetcher(t, svc)
		if err := f.Verify(context.Background(), 3, time.Millisecond); err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if svc.torCalls.Load() != 1 {
			t.Errorf("expected 1 check, got %d", svc.torCalls.Load())
		}
	})

	t.Run("succeeds after retries", func(t *testing.T) {
		t.Parallel()
		svc := &fakeServices{ip: "198.51.100.7", isTor: true}
		svc.torFails.Store(2)
		f := newTestFetcher(t, svc)
		if err := f.Verify(context.Background(), 3, time.Millisecond); err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if svc.torCalls.Load() != 3 {
			t.Errorf("expected 3 checks, got %d", svc.torCalls.Load())
		}
	})

	t.Run("not tor after all attempts", func(t *testing.T) {
		t.Parallel()
		svc := &fakeServices{ip: "198.51.100.7"}
		f := newTestFetcher(t, svc)
		err := f.Verify(context.Background(), 3, time.Millisecond)
		if !errors.Is(err, ErrNotTor) {
			t.Fatalf("expected ErrNotTor, got %v", err)
		}
		if svc.torCalls.Load() != 3 {
			t.Errorf("expected 3 checks, got %d", svc.torCalls.Load())
		}
	})

	t.Run("cancelled during retry delay", func(t *testing.T) {
		t.Parallel()
		svc := &fakeServices{ip: "198.51.100.7"}
		f := newTestFetcher(t, svc)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := f.Verify(ctx, 3, time.Hour)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}
