// Package control implements a client for the Tor control protocol.
//
// The client owns one connection to the daemon's ControlPort and drives it
// strictly as request/response: every command is written and its complete
// reply is read before the next command is issued. On top of the framing
// layer it provides:
//   - Authentication with NULL, COOKIE or SAFECOOKIE, chosen from the
//     methods the daemon announces in PROTOCOLINFO
//   - Circuit inspection (GETINFO circuit-status) and relay lookup
//     (GETINFO ns/id/<fingerprint>)
//   - Identity rotation (SIGNAL CLEARDNSCACHE followed by SIGNAL NEWNYM)
//
// SAFECOOKIE verifies the daemon's SERVERHASH before the client sends its own
// proof, so a process impersonating the ControlPort never receives a value
// derived from the cookie.
//
// # Usage
//
//	client, err := control.DialClient(ctx, "127.0.0.1:9051", control.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Authenticate(ctx); err != nil {
//	    return err
//	}
//	if err := client.RotateIdentity(ctx); err != nil {
//	    return err
//	}
//	return client.WaitUntilUsable(ctx)
package control
