package control

import (
	"strings"
)

// Reply status separators.
const (
	sepEnd  = ' '
	sepMid  = '-'
	sepData = '+'
)

// dataTerminator ends a "NNN+" data block.
const dataTerminator = "."

// asyncEventCode is used by the daemon for asynchronous events, which are
// not part of any command's reply.
const asyncEventCode = 650

// Reply is the complete, multi-line answer to one command.
type Reply struct {
	// Code is the status code of the terminal line.
	Code int
	// Lines holds the content of every status line (without the "NNN?"
	// prefix) and every data-block line, in arrival order.
	Lines []string
}

// OK reports whether the reply contains the literal line "OK".
func (r *Reply) OK() bool {
	for _, line := range r.Lines {
		if line == "OK" {
			return true
		}
	}
	return false
}

// Line returns the first content line starting with prefix.
func (r *Reply) Line(prefix string) (string, bool) {
	for _, line := range r.Lines {
		if strings.HasPrefix(line, prefix) {
			return line, true
		}
	}
	return "", false
}

// ReadReply reads lines until the terminal "NNN " line of one reply.
//
// "NNN-" lines are continuations and "NNN+" lines open a data block whose
// lines are collected verbatim until a lone ".". Data lines may themselves
// start with three digits and a space: circuit-status entries begin with the
// circuit ID, so "123 BUILT ..." or "250 BUILT ..." is data. Inside a block
// a status-shaped line ends it only when isDataBoundary accepts it. A
// terminal line whose code is not in the 2xx family fails with
// *ProtocolError.
func (c *Conn) ReadReply() (*Reply, error) {
	reply := &Reply{}
	inData := false

	for {
		line, err := c.ReadLine()
		if err != nil {
			return nil, err
		}

		code, sep, text, isStatus := parseStatusLine(line)

		if inData {
			if line == dataTerminator {
				inData = false
				continue
			}
			if !isStatus || !isDataBoundary(code, sep, text) {
				if line != "" {
					reply.Lines = append(reply.Lines, unescapeDataLine(line))
				}
				continue
			}
			inData = false
		}

		if !isStatus || code == asyncEventCode {
			continue
		}

		switch sep {
		case sepEnd:
			if !isSuccessCode(code) {
				return nil, &ProtocolError{Code: code, Message: text}
			}
			reply.Code = code
			reply.Lines = append(reply.Lines, text)
			return reply, nil
		case sepMid:
			reply.Lines = append(reply.Lines, text)
		case sepData:
			reply.Lines = append(reply.Lines, text)
			inData = true
		}
	}
}

// parseStatusLine splits "NNN<sep><text>". isStatus is false when the line
// does not follow that grammar.
func parseStatusLine(line string) (code int, sep byte, text string, isStatus bool) {
	if len(line) < 4 {
		return 0, 0, "", false
	}
	for i := 0; i < 3; i++ {
		ch := line[i]
		if ch < '0' || ch > '9' {
			return 0, 0, "", false
		}
		code = code*10 + int(ch-'0')
	}
	sep = line[3]
	if sep != sepEnd && sep != sepMid && sep != sepData {
		return 0, 0, "", false
	}
	return code, sep, line[4:], true
}

// isDataBoundary reports whether a status-shaped line seen inside a data
// block ends it. Only "250-", "250+" and "250 OK" qualify: a circuit entry is
// always "<id> <status> ...", so its text is never the bare "OK", and its
// separator is always a space. Error codes never interrupt a block, because
// the daemon picks the status before it starts streaming data.
func isDataBoundary(code int, sep byte, text string) bool {
	if code != 250 {
		return false
	}
	return sep != sepEnd || text == "OK"
}

// isSuccessCode reports whether code belongs to the 2xx family.
func isSuccessCode(code int) bool {
	return code >= 200 && code < 300
}

// unescapeDataLine removes the extra "." the daemon prepends to data lines
// that themselves start with ".".
func unescapeDataLine(line string) string {
	if strings.HasPrefix(line, "..") {
		return line[1:]
	}
	return line
}
