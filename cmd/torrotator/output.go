package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/torrotator/internal/config"
	"github.com/nao1215/torrotator/internal/report"
)

// newReportWriter selects the report writer for cfg.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// withReportOutput calls write with the report destination of cfg: the
// report file when set, stdout otherwise.
func withReportOutput(cfg *config.Config, stdout io.Writer, write func(report.Writer) error) error {
	if cfg.ReportFile == "" {
		return write(newReportWriter(cfg, stdout))
	}

	// Create directories if they don't exist
	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports carry the real IP address, so only the owner may read them.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(newReportWriter(cfg, f)); err != nil {
		_ = f.Close() //nolint:errcheck // The write error is more useful
		return err
	}
	return f.Close()
}
