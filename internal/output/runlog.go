package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// FailureRecord is one per-security failure for operator diagnosis. It is
// keyed by the real pair, resolved through the key vault; the request key
// itself never appears here.
type FailureRecord struct {
	Portcode string
	Ticker   string
	Kind     string
	Reason   string
}

// RunSummary is everything the run log reports.
type RunSummary struct {
	Started    time.Time
	Finished   time.Time
	InputFiles []string
	OutputFile string
	Failures   []FailureRecord
}

// WriteRunLog writes the run log under dir/log and returns its path.
func WriteRunLog(dir string, s RunSummary) (string, error) {
	logDir := filepath.Join(dir, "log")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", eris.Wrap(err, "output: create log dir")
	}

	path := filepath.Join(logDir, fmt.Sprintf("run_log_%s.txt", s.Finished.Format("2006-01-02_150405")))

	var b strings.Builder
	rule := strings.Repeat("=", 60)
	b.WriteString(rule + "\n")
	b.WriteString("Commentary Generator - Run Log\n")
	b.WriteString(rule + "\n\n")

	b.WriteString(fmt.Sprintf("Run Timestamp: %s\n", s.Started.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Duration: %.1f seconds\n\n", s.Finished.Sub(s.Started).Seconds()))

	b.WriteString("Input Files Processed:\n")
	for _, f := range s.InputFiles {
		b.WriteString("  - " + filepath.Base(f) + "\n")
	}
	b.WriteString("\n")

	b.WriteString("Output Workbook: " + filepath.Base(s.OutputFile) + "\n\n")

	if len(s.Failures) > 0 {
		b.WriteString("Errors:\n")
		for _, f := range s.Failures {
			b.WriteString(fmt.Sprintf("  [%s|%s] %s: %s\n", f.Portcode, f.Ticker, f.Kind, f.Reason))
		}
	} else {
		b.WriteString("No errors encountered.\n")
	}

	b.WriteString("\n" + rule + "\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", eris.Wrap(err, "output: write run log")
	}
	return path, nil
}
