package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gocka/domain/report"
	"gocka/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Summary file names under the results directory
const (
	SummaryTextFile = "metrics.txt"
	SummaryHTMLFile = "metrics.html"
)

// RenderSummary renders the plain-text batch summary, one paragraph per log
func RenderSummary(result *report.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Running post-processing for %s...\n", result.Folder)
	for _, rep := range result.Reports {
		b.WriteString("\n")
		fmt.Fprintf(&b, "\tThe model name is %s\n", rep.ModelName)
		fmt.Fprintf(&b, "\tThe language is %s\n", rep.Language)
		fmt.Fprintf(&b, "\tThere are %d stem/fact pairs in the log\n", rep.FactCount)
		fmt.Fprintf(&b, "\tThe model got %.3f%% of facts correct\n", rep.AccuracyPercent())
		fmt.Fprintf(&b, "\tThe %s uncertainty estimate is ± %.3f%%\n", confidenceLabel(rep), rep.HalfWidthPercent())
	}
	if len(result.Failures) > 0 {
		b.WriteString("\n")
		for _, f := range result.Failures {
			fmt.Fprintf(&b, "\tFailed to process %s: %v\n", f.LogID, f.Err)
		}
	}
	return b.String()
}

// RenderMarkdown renders the same content as a markdown table
func RenderMarkdown(result *report.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Post-processing for %s\n\n", result.Folder)
	if len(result.Reports) > 0 {
		b.WriteString("| Model | Language | Pairs | Accuracy | Uncertainty |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, rep := range result.Reports {
			fmt.Fprintf(&b, "| %s | %s | %d | %.3f%% | ± %.3f%% (%s) |\n",
				escapeCell(rep.ModelName), rep.Language, rep.FactCount,
				rep.AccuracyPercent(), rep.HalfWidthPercent(), confidenceLabel(rep))
		}
	}
	if len(result.Failures) > 0 {
		b.WriteString("\n## Failed logs\n\n")
		for _, f := range result.Failures {
			fmt.Fprintf(&b, "- `%s`: %v\n", f.LogID, f.Err)
		}
	}
	return b.String()
}

// RenderHTML converts the markdown summary into a standalone HTML page
func RenderHTML(result *report.BatchResult) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: "Fact probing metrics",
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML([]byte(RenderMarkdown(result)), p, renderer)
}

func confidenceLabel(rep report.LogReport) string {
	return fmt.Sprintf("%g%%", math.Round(1e6*100*rep.Interval.Confidence)/1e6)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// FileSummaryWriter writes metrics.txt and, optionally, metrics.html
type FileSummaryWriter struct {
	html bool
}

var _ ports.SummaryWriter = (*FileSummaryWriter)(nil)

// NewFileSummaryWriter creates a summary writer
func NewFileSummaryWriter(withHTML bool) *FileSummaryWriter {
	return &FileSummaryWriter{html: withHTML}
}

// WriteSummary writes the summary files into dir and returns their paths
func (w *FileSummaryWriter) WriteSummary(ctx context.Context, dir string, result *report.BatchResult) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	textPath := filepath.Join(dir, SummaryTextFile)
	if err := os.WriteFile(textPath, []byte(RenderSummary(result)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", textPath, err)
	}
	paths := []string{textPath}

	if w.html {
		htmlPath := filepath.Join(dir, SummaryHTMLFile)
		if err := os.WriteFile(htmlPath, RenderHTML(result), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", htmlPath, err)
		}
		paths = append(paths, htmlPath)
	}
	return paths, nil
}
