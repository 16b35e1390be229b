package control

import (
	"context"
	"strings"
)

// Circuit statuses and purposes that matter to the client.
const (
	// StatusBuilt marks a circuit that can carry streams.
	StatusBuilt = "BUILT"
	// PurposeGeneral marks circuits used for ordinary client traffic.
	PurposeGeneral = "GENERAL"
	// PurposeUnknown is used when the daemon did not report a purpose.
	PurposeUnknown = "UNKNOWN"
	// UnknownCountry is reported when a relay cannot be resolved.
	UnknownCountry = "??"
)

// fallbackNicknameLen is how much of a fingerprint stands in for an
// unresolved nickname.
const fallbackNicknameLen = 6

// Circuit is one entry of GETINFO circuit-status.
type Circuit struct {
	// ID is the daemon-assigned circuit identifier.
	ID string `json:"id"`
	// Status is LAUNCHED, BUILT, EXTENDED, FAILED or CLOSED.
	Status string `json:"status"`
	// Path lists relay fingerprints from guard to exit.
	Path []string `json:"path"`
	// Purpose is the PURPOSE tag, PurposeUnknown when absent.
	Purpose string `json:"purpose"`
	// BuildFlags holds BUILD_FLAGS when present.
	BuildFlags []string `json:"build_flags,omitempty"`
	// TimeCreated holds TIME_CREATED when present.
	TimeCreated string `json:"time_created,omitempty"`
}

// Usable reports whether the circuit is built and carries general traffic.
func (c Circuit) Usable() bool {
	return c.Status == StatusBuilt && strings.Contains(c.Purpose, PurposeGeneral)
}

// UsableCircuits returns the circuits for which Usable is true.
func UsableCircuits(circuits []Circuit) []Circuit {
	var usable []Circuit
	for _, c := range circuits {
		if c.Usable() {
			usable = append(usable, c)
		}
	}
	return usable
}

// NodeInfo describes one relay of a circuit path.
type NodeInfo struct {
	// Fingerprint is the relay identity as it appears in the path.
	Fingerprint string `json:"fingerprint"`
	// Nickname is the relay nickname, or a fingerprint prefix when unresolved.
	Nickname string `json:"nickname"`
	// Country is the value taken from the router status entry, or
	// UnknownCountry when unresolved.
	Country string `json:"country"`
}

// ListCircuits returns a fresh snapshot of the daemon's circuits.
// Lines that cannot be parsed are skipped.
func (c *Client) ListCircuits(ctx context.Context) ([]Circuit, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, err
	}
	reply, err := c.exec(ctx, "GETINFO circuit-status")
	if err != nil {
		return nil, err
	}

	var circuits []Circuit
	for _, line := range reply.Lines {
		// A single circuit may arrive inline as "circuit-status=<circuit>".
		line = strings.TrimPrefix(line, "circuit-status=")
		if circuit, ok := parseCircuitLine(line); ok {
			circuits = append(circuits, circuit)
		}
	}
	return circuits, nil
}

// parseCircuitLine parses "ID STATUS PATH KEY=VALUE...". Lines with fewer
// than three fields are rejected. A third field holding KEY=VALUE means the
// circuit has no path yet.
func parseCircuitLine(line string) (Circuit, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Circuit{}, false
	}

	circuit := Circuit{
		ID:      fields[0],
		Status:  fields[1],
		Purpose: PurposeUnknown,
	}

	attrs := fields[2:]
	if !isKeyValue(fields[2]) {
		circuit.Path = parsePath(fields[2])
		attrs = fields[3:]
	}

	for _, attr := range attrs {
		key, value, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		switch key {
		case "PURPOSE":
			circuit.Purpose = value
		case "BUILD_FLAGS":
			circuit.BuildFlags = strings.Split(value, ",")
		case "TIME_CREATED":
			circuit.TimeCreated = value
		}
	}
	return circuit, true
}

// isKeyValue reports whether a field is a KEY=VALUE attribute rather than a
// path. Path entries may contain "=" (as "$FP=nick"), but always start with "$".
func isKeyValue(field string) bool {
	return !strings.HasPrefix(field, "$") && strings.Contains(field, "=")
}

// parsePath splits a comma separated path of "$FP", "$FP~nick" or "$FP=nick"
// entries into fingerprints. Entries whose fingerprint is empty or not hex
// are skipped.
func parsePath(field string) []string {
	var path []string
	for _, entry := range strings.Split(field, ",") {
		fp := strings.TrimPrefix(entry, "$")
		if i := strings.IndexAny(fp, "~="); i >= 0 {
			fp = fp[:i]
		}
		if !isFingerprint(fp) {
			continue
		}
		path = append(path, fp)
	}
	return path
}

// isFingerprint reports whether s is a non-empty hex string.
func isFingerprint(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		isHex := (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}

// ResolveNode looks up a relay with GETINFO ns/id/<id>. It never fails: any
// error or unparseable reply yields the first characters of id and
// UnknownCountry.
func (c *Client) ResolveNode(ctx context.Context, id string) NodeInfo {
	fallback := fallbackNode(id)
	if !isFingerprint(id) {
		return fallback
	}
	if err := c.ensureAuthenticated(); err != nil {
		return fallback
	}

	reply, err := c.exec(ctx, "GETINFO ns/id/"+id)
	if err != nil {
		c.logger.Debug("relay lookup failed", "fingerprint", id, "error", err)
		return fallback
	}
	for _, line := range reply.Lines {
		if !strings.HasPrefix(line, "r ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 3 {
			return NodeInfo{Fingerprint: id, Nickname: fields[1], Country: fields[3]}
		}
	}
	return fallback
}

// ResolvePath resolves every relay of a circuit path in order.
func (c *Client) ResolvePath(ctx context.Context, path []string) []NodeInfo {
	nodes := make([]NodeInfo, 0, len(path))
	for _, fp := range path {
		nodes = append(nodes, c.ResolveNode(ctx, fp))
	}
	return nodes
}

// fallbackNode is the placeholder for a relay that could not be resolved.
func fallbackNode(id string) NodeInfo {
	nickname := id
	if len(nickname) > fallbackNicknameLen {
		nickname = nickname[:fallbackNicknameLen]
	}
	return NodeInfo{Fingerprint: id, Nickname: nickname, Country: UnknownCountry}
}

// WaitUntilUsable polls ListCircuits until a usable circuit exists.
// It makes at most the configured poll budget of queries, separated by the
// poll interval, and returns a *TimeoutError when the budget is exhausted.
// Errors from ListCircuits and context cancellation end the wait early.
func (c *Client) WaitUntilUsable(ctx context.Context) error {
	for poll := 1; poll <= c.pollBudget; poll++ {
		circuits, err := c.ListCircuits(ctx)
		if err != nil {
			return err
		}
		if len(UsableCircuits(circuits)) > 0 {
			c.logger.Debug("usable circuit available", "polls", poll)
			return nil
		}
		if poll == c.pollBudget {
			break
		}
		if err := sleep(ctx, c.pollInterval); err != nil {
			return err
		}
	}
	return &TimeoutError{Polls: c.pollBudget, Interval: c.pollInterval}
}
