package report

import (
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/torrotator/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// WriteSnapshot outputs the current circuits and egress state.
	// Returns the number of bytes written and any error encountered.
	WriteSnapshot(snapshot *model.Snapshot) (int, error)

	// WriteHistory outputs stored rotations.
	WriteHistory(history *model.History) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteSnapshot outputs the snapshot to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) WriteSnapshot(snapshot *model.Snapshot) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSnapshot(snapshot)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteHistory outputs the history to all configured Writers.
func (m *MultiWriter) WriteHistory(history *model.History) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteHistory(history)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// timeLayout is used for every timestamp in text and Markdown output.
const timeLayout = "2006-01-02 15:04:05 MST"

// titleCaser turns "NOT_TOR" style identifiers into "Not Tor".
var titleCaser = cases.Title(language.English)

// displayStatus returns a human-readable Tor verdict.
func displayStatus(status model.TorStatus) string {
	return titleCaser.String(strings.ReplaceAll(status.String(), "_", " "))
}

// displayLocation formats a location, title-casing names the geolocation
// service returned in lower case.
func displayLocation(loc model.Location) string {
	if loc.IsZero() {
		return "Location unavailable"
	}
	if loc.City != "" && loc.City == strings.ToLower(loc.City) {
		loc.City = titleCaser.String(loc.City)
	}
	if loc.Country != "" && loc.Country == strings.ToLower(loc.Country) {
		loc.Country = titleCaser.String(loc.Country)
	}
	return loc.String()
}

// displayRoute labels an egress as the Tor or direct route.
func displayRoute(status model.TorStatus) string {
	if status == model.TorStatusConfirmed {
		return "Tor"
	}
	return "Direct"
}

// exitCountries counts the exit countries of successful rotations, keyed by
// country name.
func exitCountries(rotations []*model.RotationRecord) map[string]uint64 {
	counts := make(map[string]uint64)
	for _, r := range rotations {
		if !r.Succeeded() {
			continue
		}
		loc := r.After.Location
		name := loc.Country
		if name == "" {
			name = loc.CountryCode
		}
		if name == "" {
			name = model.UnknownLocation
		}
		counts[name]++
	}
	return counts
}
