// Package log builds the program's slog loggers.
//
// Every logger wraps its handler in a SecureHandler, which masks attribute
// values that may carry secrets before they reach the output:
//   - keys naming credentials, such as cookie, password, nonce or client_hash
//   - values that look like tokens or keys, and raw AUTHENTICATE or
//     AUTHCHALLENGE command lines
//
// The ControlPort cookie grants full control over the Tor daemon, so masking
// applies in verbose mode too. Relay fingerprints are public and logged
// as is.
//
// # Usage
//
//	logger := log.New(os.Stderr, verbose, jsonOutput)
//	slog.SetDefault(logger)
//	logger.Info("identity rotated", "egress_ip", ip)
package log
