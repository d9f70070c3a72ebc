package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DocumentProfiler extracts text statistics from PDFs.
type DocumentProfiler struct{}

// Formats implements Profiler.
func (p *DocumentProfiler) Formats() []string { return []string{"PDF"} }

// Profile implements Profiler.
func (p *DocumentProfiler) Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error {
	file, reader, err := pdf.Open(ff.LocalPath)
	if err != nil {
		profile.AddFlag(SeverityError, "PDF_PARSE_FAILED", fmt.Sprintf("could not open PDF: %v", err))
		profile.OverallQuality = QualityPoor
		return nil
	}
	defer func() { _ = file.Close() }()

	pages := reader.NumPage()
	profile.Statistics["page_count"] = pages

	var text strings.Builder
	extracted := 0
	for i := 1; i <= pages && i <= 5; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(content)
		extracted++
	}

	profile.Statistics["pages_sampled"] = extracted
	profile.Preview = TruncateString(strings.TrimSpace(text.String()), 1000)

	if extracted == 0 {
		profile.AddFlag(SeverityWarning, "NO_EXTRACTABLE_TEXT",
			"no text could be extracted; the PDF may be scanned images")
	}

	return nil
}

// GenericProfiler handles formats with no dedicated profiler: basic
// facts and a bounded text preview for non-binary files.
type GenericProfiler struct{}

// Formats implements Profiler.
func (p *GenericProfiler) Formats() []string { return nil }

// Profile implements Profiler.
func (p *GenericProfiler) Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error {
	profile.Statistics["size_bytes"] = ff.SizeBytes
	profile.OverallQuality = QualityUnknown

	if format.IsBinary {
		return nil
	}

	head, err := readHead(ff, 4096)
	if err != nil {
		return nil
	}
	lines := 0
	for _, b := range head {
		if b == '\n' {
			lines++
		}
	}
	profile.Statistics["preview_line_count"] = lines
	profile.Preview = TruncateString(string(head), 800)
	return nil
}
