package rotator

import "errors"

// ErrNotStarted is returned by Snapshot before a control session and an
// egress checker have been set up.
var ErrNotStarted = errors.New("rotator not started")
