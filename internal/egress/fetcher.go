package egress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/torrotator/internal/model"
)

// Default service endpoints.
const (
	DefaultIPEchoURL   = "https://api.ipify.org?format=json"
	DefaultTorCheckURL = "https://check.torproject.org/api/ip"
	DefaultGeoIPURL    = "https://ipapi.co/%s/json/"
)

// maxBodySize caps how much of a service answer is read.
const maxBodySize = 64 * 1024

// userAgent is sent with every request. Services such as ipapi reject
// requests without one.
const userAgent = "torrotator"

// Doer sends HTTP requests. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher queries the egress services through one HTTP client.
type Fetcher struct {
	client      Doer
	ipEchoURL   string
	torCheckURL string
	geoIPURL    string
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithIPEchoURL sets the service that returns {"ip": "..."}.
func WithIPEchoURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.ipEchoURL = u
		}
	}
}

// WithTorCheckURL sets the service that returns {"IsTor": bool}.
func WithTorCheckURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.torCheckURL = u
		}
	}
}

// WithGeoIPURL sets the geolocation service. The single %s in u is replaced
// by the address being located.
func WithGeoIPURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.geoIPURL = u
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Fetcher that sends every request through client.
func NewFetcher(client Doer, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      client,
		ipEchoURL:   DefaultIPEchoURL,
		torCheckURL: DefaultTorCheckURL,
		geoIPURL:    DefaultGeoIPURL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ipEchoResponse is the answer of the IP echo service.
type ipEchoResponse struct {
	IP string `json:"ip"`
}

// torCheckResponse is the answer of the Tor check service.
type torCheckResponse struct {
	IsTor bool   `json:"IsTor"`
	IP    string `json:"IP"`
}

// geoIPResponse is the answer of the geolocation service.
type geoIPResponse struct {
	City        string `json:"city"`
	Region      string `json:"region"`
	CountryName string `json:"country_name"`
	CountryCode string `json:"country_code"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// FetchAddress returns the public IP address seen by the IP echo service.
func (f *Fetcher) FetchAddress(ctx context.Context) (string, error) {
	var resp ipEchoResponse
	if err := f.getJSON(ctx, f.ipEchoURL, &resp); err != nil {
		return "", err
	}
	ip := strings.TrimSpace(resp.IP)
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, resp.IP)
	}
	return ip, nil
}

// CheckTor asks the Tor check service whether our requests arrive from a
// Tor exit. A failed request yields TorStatusUnknown and the error.
func (f *Fetcher) CheckTor(ctx context.Context) (model.TorStatus, error) {
	var resp torCheckResponse
	if err := f.getJSON(ctx, f.torCheckURL, &resp); err != nil {
		return model.TorStatusUnknown, err
	}
	if resp.IsTor {
		return model.TorStatusConfirmed, nil
	}
	return model.TorStatusNotTor, nil
}

// Geolocate returns the location of ip.
func (f *Fetcher) Geolocate(ctx context.Context, ip string) (model.Location, error) {
	if net.ParseIP(ip) == nil {
		return model.Location{}, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	target := f.geoIPURL
	if strings.Contains(target, "%s") {
		target = fmt.Sprintf(target, url.PathEscape(ip))
	}

	var resp geoIPResponse
	if err := f.getJSON(ctx, target, &resp); err != nil {
		return model.Location{}, err
	}
	if resp.Error {
		return model.Location{}, fmt.Errorf("%w: geolocation refused: %s", ErrMalformedResponse, resp.Reason)
	}
	return model.Location{
		City:        resp.City,
		Region:      resp.Region,
		Country:     resp.CountryName,
		CountryCode: resp.CountryCode,
	}, nil
}

// Lookup fetches the address and then checks it and locates it
// concurrently. It never fails; every failed step is logged and listed in
// EgressInfo.Errors, and its part of the result stays unknown.
func (f *Fetcher) Lookup(ctx context.Context) model.EgressInfo {
	var info model.EgressInfo

	addr, err := f.FetchAddress(ctx)
	if err != nil {
		f.logger.Warn("failed to get IP address", "error", err)
		info.Errors = append(info.Errors, "address: "+err.Error())
	}
	info.Address = addr

	var (
		status      model.TorStatus
		location    model.Location
		statusErr   error
		locationErr error
	)

	// Each goroutine keeps its own error so one failure never cancels the
	// other lookup.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		status, statusErr = f.CheckTor(gctx)
		return nil
	})
	if addr != "" {
		g.Go(func() error {
			location, locationErr = f.Geolocate(gctx, addr)
			return nil
		})
	}
	_ = g.Wait()

	info.Tor = status
	info.Location = location
	if statusErr != nil {
		f.logger.Warn("failed to check Tor status", "error", statusErr)
		info.Errors = append(info.Errors, "tor check: "+statusErr.Error())
	}
	if locationErr != nil {
		f.logger.Warn("failed to fetch location info", "error", locationErr)
		info.Errors = append(info.Errors, "location: "+locationErr.Error())
	}
	return info
}

// Verify succeeds when the IP echo service answers and the check service
// confirms the request came through Tor. It makes up to attempts tries,
// waiting delay between them.
func (f *Fetcher) Verify(ctx context.Context, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = f.verifyOnce(ctx)
		if lastErr == nil {
			f.logger.Info("verified Tor connection", "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("Tor verification attempt failed", "attempt", attempt, "attempts", attempts, "error", lastErr)
		if attempt == attempts {
			break
		}
		f.logger.Info("waiting before retry", "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("failed to establish Tor connection after %d attempts: %w", attempts, lastErr)
}

// verifyOnce performs one verification attempt.
func (f *Fetcher) verifyOnce(ctx context.Context) error {
	if _, err := f.FetchAddress(ctx); err != nil {
		return fmt.Errorf("failed to connect to IP service: %w", err)
	}
	status, err := f.CheckTor(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Tor check service: %w", err)
	}
	switch status {
	case model.TorStatusConfirmed:
		return nil
	case model.TorStatusNotTor:
		return ErrNotTor
	default:
		return ErrTorStatusUnknown
	}
}

// getJSON fetches target and decodes its JSON body into v.
func (f *Fetcher) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return fmt.Errorf("%w: %s from %s", ErrUnexpectedStatus, resp.Status, req.URL.Host)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", req.URL.Host, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w from %s: %w", ErrMalformedResponse, req.URL.Host, err)
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
