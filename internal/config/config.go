package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/torrotator/internal/egress"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "torrotator"

	// DefaultInterval is the pause between the end of one rotation and the
	// start of the next. Tor itself rate-limits NEWNYM to one per 10 seconds.
	DefaultInterval = 60 * time.Second

	// DefaultHost is where both Tor ports are expected.
	DefaultHost = "127.0.0.1"

	// DefaultSocksPort and DefaultControlPort match a dedicated Tor instance
	// rather than the system daemon's 9050/9051, so rotation never disturbs
	// other users of the system Tor.
	DefaultSocksPort   = 9052
	DefaultControlPort = 9063

	// DefaultSettleDelay is waited after NEWNYM before circuits are polled.
	DefaultSettleDelay = 10 * time.Second

	// DefaultPollInterval and DefaultPollBudget bound the wait for a usable
	// circuit to 30 seconds.
	DefaultPollInterval = 1 * time.Second
	DefaultPollBudget   = 30

	// DefaultHTTPTimeout applies to every egress check request. Requests
	// through Tor are slow, especially on a fresh circuit.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultVerifyAttempts and DefaultVerifyRetryDelay control how the
	// Tor-routed HTTP client is verified after it is (re)built.
	DefaultVerifyAttempts   = 3
	DefaultVerifyRetryDelay = 10 * time.Second

	// DefaultHistoryLimit is how many rotations the history command prints.
	DefaultHistoryLimit = 20

	// DefaultDaemonStartupTimeout bounds the bootstrap of an embedded daemon.
	DefaultDaemonStartupTimeout = 3 * time.Minute

	// Egress check endpoints. GeoIPURL contains one %s for the address.
	DefaultIPEchoURL   = egress.DefaultIPEchoURL
	DefaultTorCheckURL = egress.DefaultTorCheckURL
	DefaultGeoIPURL    = egress.DefaultGeoIPURL
)

// Config holds all settings of one torrotator invocation. It is built once
// from defaults, the config file and flags, then passed down explicitly.
type Config struct {
	// ControlHost and ControlPort locate the Tor ControlPort.
	ControlHost string
	ControlPort int

	// SocksHost and SocksPort locate the Tor SOCKS port used for egress
	// checks.
	SocksHost string
	SocksPort int

	// CookieFile overrides the cookie path announced by the daemon. Needed
	// when Tor runs in a container whose paths differ from the host's.
	CookieFile string

	// Interval is the pause between rotations.
	Interval time.Duration

	// SettleDelay is waited after NEWNYM. Zero disables it.
	SettleDelay time.Duration

	// PollInterval and PollBudget drive the wait for a usable circuit.
	PollInterval time.Duration
	PollBudget   int

	// HTTPTimeout is the timeout of each egress check request.
	HTTPTimeout time.Duration

	// VerifyAttempts and VerifyRetryDelay drive verification of the
	// Tor-routed HTTP client.
	VerifyAttempts   int
	VerifyRetryDelay time.Duration

	// IPEchoURL, TorCheckURL and GeoIPURL are the egress check endpoints.
	IPEchoURL   string
	TorCheckURL string
	GeoIPURL    string

	// SkipDirectCheck disables the lookup of the address seen without Tor.
	SkipDirectCheck bool

	// Embedded launches a private Tor daemon instead of using ControlPort
	// and SocksPort. Its data lives under the XDG data directory.
	Embedded bool

	// DaemonStartupTimeout bounds the bootstrap of the embedded daemon.
	DaemonStartupTimeout time.Duration

	// Verbose enables debug logging. JSONLog switches logs to JSON.
	Verbose bool
	JSONLog bool

	// ConfigFilePath is an explicit configuration file path. When empty,
	// FindConfigFile searches the default locations.
	ConfigFilePath string

	// DBDir is the directory of the history database.
	DBDir string

	// SaveHistory records every rotation in the history database.
	SaveHistory bool

	// JSONReport and MarkdownReport select the report format of status and
	// history. They are mutually exclusive; neither means plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the report destination. Empty means stdout.
	ReportFile string

	// HistoryLimit is how many rotations history prints.
	HistoryLimit int
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		ControlHost:          DefaultHost,
		ControlPort:          DefaultControlPort,
		SocksHost:            DefaultHost,
		SocksPort:            DefaultSocksPort,
		Interval:             DefaultInterval,
		SettleDelay:          DefaultSettleDelay,
		PollInterval:         DefaultPollInterval,
		PollBudget:           DefaultPollBudget,
		HTTPTimeout:          DefaultHTTPTimeout,
		VerifyAttempts:       DefaultVerifyAttempts,
		VerifyRetryDelay:     DefaultVerifyRetryDelay,
		IPEchoURL:            DefaultIPEchoURL,
		TorCheckURL:          DefaultTorCheckURL,
		GeoIPURL:             DefaultGeoIPURL,
		DaemonStartupTimeout: DefaultDaemonStartupTimeout,
		DBDir:                XDGDataDir(),
		SaveHistory:          true,
		HistoryLimit:         DefaultHistoryLimit,
	}
}

// ControlAddress returns the ControlPort address in "host:port" form.
func (c *Config) ControlAddress() string {
	return net.JoinHostPort(c.ControlHost, strconv.Itoa(c.ControlPort))
}

// SocksAddress returns the SOCKS port address in "host:port" form.
func (c *Config) SocksAddress() string {
	return net.JoinHostPort(c.SocksHost, strconv.Itoa(c.SocksPort))
}

// XDGDataDir returns the XDG data directory for torrotator.
// On Linux: ~/.local/share/torrotator
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for torrotator.
// On Linux: ~/.config/torrotator
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EmbeddedDataDir returns the data directory of the embedded Tor daemon.
func (c *Config) EmbeddedDataDir() string {
	return filepath.Join(c.DBDir, "tor")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.ControlHost == "" || c.SocksHost == "" {
		return ErrInvalidHost
	}
	if !isValidPort(c.ControlPort) || !isValidPort(c.SocksPort) {
		return ErrInvalidPort
	}
	if c.ControlPort == c.SocksPort && c.ControlHost == c.SocksHost {
		return ErrSamePorts
	}
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.SettleDelay < 0 {
		return ErrInvalidSettleDelay
	}
	if c.PollInterval < 0 || c.PollBudget <= 0 {
		return ErrInvalidPolling
	}
	if c.HTTPTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.VerifyAttempts <= 0 || c.VerifyRetryDelay < 0 {
		return ErrInvalidVerify
	}
	if c.IPEchoURL == "" || c.TorCheckURL == "" || c.GeoIPURL == "" {
		return ErrMissingEndpoint
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.HistoryLimit <= 0 {
		return ErrInvalidHistoryLimit
	}
	return nil
}

// isValidPort reports whether p is a TCP port number.
func isValidPort(p int) bool {
	return p >= 1 && p <= 65535
}
