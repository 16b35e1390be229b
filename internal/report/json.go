package report

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/nao1215/torrotator/internal/model"
)

// JSONWriter writes one JSON document per call, for scripts and log
// pipelines.
type JSONWriter struct {
	baseWriter

	// prefix and indent are passed to json.Encoder.SetIndent. Both empty
	// means compact output.
	prefix, indent string

	// version is written into every document when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent indents nested values with indent, each line starting with
// prefix.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.prefix, w.indent = prefix, indent
	}
}

// WithPrettyPrint indents with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the torrotator version in every document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// snapshotDocument wraps a snapshot with output metadata.
type snapshotDocument struct {
	Version  string          `json:"version,omitempty"`
	Snapshot *model.Snapshot `json:"snapshot"`
	Leaking  bool            `json:"leaking"`
}

// historyDocument wraps history with output metadata.
type historyDocument struct {
	Version string `json:"version,omitempty"`
	*model.History
}

// WriteSnapshot outputs the snapshot in JSON format.
func (w *JSONWriter) WriteSnapshot(snapshot *model.Snapshot) (int, error) {
	return w.writeJSON(snapshotDocument{
		Version:  w.version,
		Snapshot: snapshot,
		Leaking:  snapshot.Leaking(),
	})
}

// WriteHistory outputs the history in JSON format. An empty history is
// written with "rotations": [] rather than null.
func (w *JSONWriter) WriteHistory(history *model.History) (int, error) {
	h := *history
	if h.Rotations == nil {
		h.Rotations = []*model.RotationRecord{}
	}
	return w.writeJSON(historyDocument{Version: w.version, History: &h})
}

// writeJSON encodes v followed by a newline. URLs in the egress endpoints
// keep their "&" unescaped.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(w.prefix, w.indent)
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}
