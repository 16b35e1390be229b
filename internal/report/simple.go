package report

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/nao1215/torrotator/internal/model"
)

// ruleWidth is the width of the "=" and "-" rules.
const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds relay fingerprints and lookup errors.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteSnapshot outputs the snapshot in human-readable format.
func (w *SimpleWriter) WriteSnapshot(snapshot *model.Snapshot) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "TOR STATUS")
	sb.WriteString(fmt.Sprintf("Taken At:  %s\n\n", snapshot.TakenAt.Format(timeLayout)))

	writeSection(&sb, "ACTIVE CIRCUITS")
	if !snapshot.HasCircuits() {
		sb.WriteString("  No active Tor circuits found!\n")
	}
	for _, c := range snapshot.Circuits {
		sb.WriteString(fmt.Sprintf("  └─ Circuit #%s\n", c.ID))
		sb.WriteString(fmt.Sprintf("     %s\n", c.PathString()))
		if w.verbose {
			for _, r := range c.Relays {
				sb.WriteString(fmt.Sprintf("       %s %s\n", r.Fingerprint, r.Nickname))
			}
		}
	}
	sb.WriteString("\n")

	writeSection(&sb, "EGRESS")
	w.writeEgress(&sb, "Current IP", snapshot.Egress)
	if snapshot.Direct != nil {
		w.writeEgress(&sb, "Original IP", *snapshot.Direct)
	}
	if snapshot.Leaking() {
		sb.WriteString("\n  [!!!] Traffic is not leaving through Tor\n")
	}
	sb.WriteString("\n")

	writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// writeEgress writes one "Label: ip (location) [route]" line.
func (w *SimpleWriter) writeEgress(sb *strings.Builder, label string, info model.EgressInfo) {
	sb.WriteString(fmt.Sprintf("  %-12s %s (%s) [%s]\n",
		label+":", info.DisplayAddress(), displayLocation(info.Location), displayRoute(info.Tor)))
	sb.WriteString(fmt.Sprintf("  %-12s %s\n", "Tor Check:", displayStatus(info.Tor)))
	if w.verbose {
		for _, e := range info.Errors {
			sb.WriteString(fmt.Sprintf("  %-12s %s\n", "Error:", e))
		}
	}
}

// WriteHistory outputs rotations in human-readable format.
func (w *SimpleWriter) WriteHistory(history *model.History) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "ROTATION HISTORY")
	stats := history.Stats
	sb.WriteString(fmt.Sprintf("Rotations:      %d\n", stats.Total))
	sb.WriteString(fmt.Sprintf("Failed:         %d\n", stats.Failed))
	sb.WriteString(fmt.Sprintf("Distinct Exits: %d\n", stats.DistinctExits))
	if !stats.LastStartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Last Rotation:  %s\n", stats.LastStartedAt.Local().Format(timeLayout)))
	}
	sb.WriteString("\n")

	writeSection(&sb, "ROTATIONS")
	if len(history.Rotations) == 0 {
		sb.WriteString("  No rotations recorded\n")
	}
	for _, r := range history.Rotations {
		status := "ok"
		if !r.Succeeded() {
			status = "FAILED"
		}
		sb.WriteString(fmt.Sprintf("  #%-5d %s  %s -> %s  %s [%s]\n",
			r.ID,
			r.StartedAt.Local().Format(timeLayout),
			r.Before.Egress.DisplayAddress(),
			r.After.DisplayAddress(),
			displayLocation(r.After.Location),
			status,
		))
		if !r.Succeeded() {
			sb.WriteString(fmt.Sprintf("         Error: %s\n", r.Error))
		}
		if w.verbose {
			for _, c := range r.Before.Circuits {
				sb.WriteString(fmt.Sprintf("         Circuit #%s %s\n", c.ID, c.PathString()))
			}
		}
	}
	sb.WriteString("\n")

	if counts := exitCountries(history.Rotations); len(counts) > 0 {
		writeSection(&sb, "EXIT COUNTRIES")
		countries := make([]string, 0, len(counts))
		for country := range counts {
			countries = append(countries, country)
		}
		slices.Sort(countries)
		for _, country := range countries {
			sb.WriteString(fmt.Sprintf("  %-20s %d\n", country, counts[country]))
		}
		sb.WriteString("\n")
	}

	writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// writeBanner writes a centered title between "=" rules.
func writeBanner(sb *strings.Builder, title string) {
	pad := max((ruleWidth-len(title))/2, 0)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")
}

// writeSection writes a section title between "-" rules.
func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

// writeFooter writes the report footer.
func writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by torrotator\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}
