package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/compozy/docqa/engine/knowledge/ingest"
)

type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" and "json"; empty means text.
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", OutputFormatText:
		return OutputFormatText, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q: must be one of [text json]", value)
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	detailsStyle = lipgloss.NewStyle().Faint(true)
)

// ShouldUseColor reports whether w is an interactive terminal that accepts ANSI styling.
func ShouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("CI") != "" {
		return false
	}
	if term := os.Getenv("TERM"); term == "" || term == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type fileSummary struct {
	Path    string `json:"path"`
	Outcome string `json:"outcome"`
	Chunks  int    `json:"chunks"`
	Error   string `json:"error,omitempty"`
}

type ingestSummary struct {
	Indexed int           `json:"indexed"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Chunks  int           `json:"chunks"`
	Files   []fileSummary `json:"files"`
}

func summarize(res *ingest.Result) ingestSummary {
	out := ingestSummary{Files: make([]fileSummary, 0, len(res.Files))}
	out.Indexed, out.Skipped, out.Failed, out.Chunks = res.Indexed, res.Skipped, res.Failed, res.Chunks
	for _, f := range res.Files {
		item := fileSummary{Path: f.Path, Outcome: string(f.Outcome), Chunks: f.Chunks}
		if f.Err != nil {
			item.Error = f.Err.Error()
		}
		out.Files = append(out.Files, item)
	}
	return out
}

// WriteIngestResult prints a corpus run summary in the requested format.
func WriteIngestResult(w io.Writer, res *ingest.Result, format OutputFormat, color bool) error {
	if res == nil {
		res = &ingest.Result{}
	}
	summary := summarize(res)
	if format == OutputFormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	render := func(style lipgloss.Style, s string) string {
		if !color {
			return s
		}
		return style.Render(s)
	}
	var b strings.Builder
	b.WriteString(render(titleStyle, "Ingestion summary") + "\n")
	for _, f := range summary.Files {
		var status string
		switch ingest.Outcome(f.Outcome) {
		case ingest.OutcomeIndexed:
			status = render(okStyle, "indexed")
		case ingest.OutcomeSkipped:
			status = render(warnStyle, "skipped")
		default:
			status = render(failStyle, "failed ")
		}
		line := fmt.Sprintf("  %s  %s (%d chunks)", status, f.Path, f.Chunks)
		if f.Error != "" {
			line += " " + render(detailsStyle, f.Error)
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "%d indexed, %d skipped, %d failed, %d chunks\n",
		summary.Indexed, summary.Skipped, summary.Failed, summary.Chunks)
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteError prints err to w, styled when color is set.
func WriteError(w io.Writer, err error, color bool) {
	if err == nil {
		return
	}
	message := err.Error()
	details := ""
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		message = cliErr.Message
		details = cliErr.Details
	}
	if color {
		message = failStyle.Render("Error: " + message)
		if details != "" {
			details = detailsStyle.Render(details)
		}
	} else {
		message = "Error: " + message
	}
	fmt.Fprintln(w, message)
	if details != "" {
		fmt.Fprintln(w, "  "+details)
	}
}
