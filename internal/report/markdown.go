package report

import (
	"io"
	"slices"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/torrotator/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteSnapshot outputs the snapshot in Markdown format.
func (w *MarkdownWriter) WriteSnapshot(snapshot *model.Snapshot) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Tor Status")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Taken At", snapshot.TakenAt.Format(timeLayout)},
			{"Active Circuits", strconv.Itoa(len(snapshot.Circuits))},
			{"Current IP", "`" + snapshot.Egress.DisplayAddress() + "`"},
			{"Location", displayLocation(snapshot.Egress.Location)},
			{"Tor Check", statusBadge(snapshot.Egress.Tor)},
		},
	})
	md.PlainText("")
	w.writeEgressAlert(md, snapshot)

	md.H2("Active Circuits")
	md.PlainText("")
	if !snapshot.HasCircuits() {
		md.PlainText("No active Tor circuits found!")
		md.PlainText("")
	} else {
		rows := make([][]string, len(snapshot.Circuits))
		for i, c := range snapshot.Circuits {
			rows[i] = []string{c.ID, c.Purpose, c.PathString()}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Circuit", "Purpose", "Path"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if snapshot.Direct != nil {
		md.H2("Original IP")
		md.PlainText("")
		md.BulletList(
			"Address: `"+snapshot.Direct.DisplayAddress()+"`",
			"Location: "+displayLocation(snapshot.Direct.Location),
		)
		md.PlainText("")
	}

	if errs := snapshot.Egress.Errors; len(errs) > 0 {
		md.H2("Lookup Errors")
		md.PlainText("")
		md.BulletList(errs...)
		md.PlainText("")
	}

	writeMarkdownFooter(md)
	return len(md.String()), md.Build()
}

// writeEgressAlert writes an alert summarizing whether traffic uses Tor.
func (w *MarkdownWriter) writeEgressAlert(md *markdown.Markdown, snapshot *model.Snapshot) {
	switch {
	case snapshot.Leaking():
		md.Cautionf("Traffic is not leaving through Tor. Current IP: %s", snapshot.Egress.DisplayAddress())
	case snapshot.Egress.Tor == model.TorStatusUnknown:
		md.Warningf("The Tor check service could not be reached.")
	case !snapshot.HasCircuits():
		md.Note("No usable circuit is built yet.")
	default:
		md.Tip("Traffic is routed through Tor.")
	}
	md.PlainText("")
}

// WriteHistory outputs rotations in Markdown format.
func (w *MarkdownWriter) WriteHistory(history *model.History) (int, error) {
	md := markdown.NewMarkdown(w.output)
	stats := history.Stats

	md.H1("Rotation History")
	md.PlainText("")

	last := "-"
	if !stats.LastStartedAt.IsZero() {
		last = stats.LastStartedAt.Local().Format(timeLayout)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Rotations", strconv.Itoa(stats.Total)},
			{"Failed", strconv.Itoa(stats.Failed)},
			{"Distinct Exits", strconv.Itoa(stats.DistinctExits)},
			{"Last Rotation", last},
		},
	})
	md.PlainText("")

	if stats.Failed > 0 {
		md.Warningf("%d of %d rotation(s) failed.", stats.Failed, stats.Total)
		md.PlainText("")
	}

	md.H2("Rotations")
	md.PlainText("")
	if len(history.Rotations) == 0 {
		md.PlainText("No rotations recorded.")
		md.PlainText("")
	} else {
		w.writeRotationsTable(md, history.Rotations)
	}

	w.writeCountryChart(md, history.Rotations)
	writeMarkdownFooter(md)
	return len(md.String()), md.Build()
}

// writeRotationsTable writes one row per rotation and the failure details.
func (w *MarkdownWriter) writeRotationsTable(md *markdown.Markdown, rotations []*model.RotationRecord) {
	rows := make([][]string, len(rotations))
	for i, r := range rotations {
		result := "✅"
		if !r.Succeeded() {
			result = "❌"
		}
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format(timeLayout),
			"`" + r.Before.Egress.DisplayAddress() + "`",
			"`" + r.After.DisplayAddress() + "`",
			displayLocation(r.After.Location),
			statusBadge(r.After.Tor),
			result,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Started", "Before", "After", "Location", "Tor Check", "Result"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range rotations {
		if !r.Succeeded() {
			md.Details("Rotation "+strconv.FormatInt(r.ID, 10)+" error", r.Error)
		}
	}
	md.PlainText("")
}

// writeCountryChart writes a mermaid pie chart of exit countries.
func (w *MarkdownWriter) writeCountryChart(md *markdown.Markdown, rotations []*model.RotationRecord) {
	counts := exitCountries(rotations)
	if len(counts) == 0 {
		return
	}

	countries := make([]string, 0, len(counts))
	for country := range counts {
		countries = append(countries, country)
	}
	slices.Sort(countries)

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Exit Countries"),
		piechart.WithShowData(true),
	)
	for _, country := range countries {
		chart.LabelAndIntValue(country, counts[country])
	}

	md.H2("Exit Countries")
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// statusBadge decorates a Tor verdict for Markdown tables.
func statusBadge(status model.TorStatus) string {
	switch status {
	case model.TorStatusConfirmed:
		return "✅ " + displayStatus(status)
	case model.TorStatusNotTor:
		return "⚠️ " + displayStatus(status)
	default:
		return "❔ " + displayStatus(status)
	}
}

// writeMarkdownFooter writes the report footer.
func writeMarkdownFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by torrotator*")
}
