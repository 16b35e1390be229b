// Package config holds the settings of torrotator: where the Tor daemon's
// SOCKS and control ports are, how often to rotate, how long to wait for new
// circuits, and where egress checks and history go.
//
// Values come in layers, later ones winning: built-in defaults (NewConfig),
// an optional YAML file (.torrotator), TORROTATOR_* environment variables
// (also read from a .env file) and command-line flags.
package config
