package ingest

import (
	"context"
	"fmt"
	"time"
)

// Flag severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Overall quality grades.
const (
	QualityGood       = "good"
	QualityAcceptable = "acceptable"
	QualityPoor       = "poor"
	QualityUnknown    = "unknown"
)

// QualityFlag is one finding about a file.
type QualityFlag struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// ColumnInfo describes one column of a tabular file.
type ColumnInfo struct {
	Name        string `json:"name"`
	Dtype       string `json:"dtype"` // integer, numeric, string, mixed
	NullCount   int    `json:"null_count"`
	UniqueCount int    `json:"unique_count"`
}

// Suggestion is one recommended analysis for a profiled file.
type Suggestion struct {
	Name          string   `json:"name"`
	Tools         []string `json:"tools,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Priority      int      `json:"priority"`
	ExampleQuery  string   `json:"example_query,omitempty"`
}

// FileProfile is the full metadata record for one ingested file.
type FileProfile struct {
	File               *FetchedFile   `json:"file"`
	Format             FileFormat     `json:"format"`
	Statistics         map[string]any `json:"statistics,omitempty"`
	Preview            string         `json:"preview,omitempty"`
	Columns            []ColumnInfo   `json:"column_info,omitempty"`
	QualityFlags       []QualityFlag  `json:"quality_flags,omitempty"`
	OverallQuality     string         `json:"overall_quality"`
	Suggestions        []Suggestion   `json:"suggested_analyses,omitempty"`
	PresentCompanions  []string       `json:"present_companions,omitempty"`
	MissingCompanions  []string       `json:"missing_companions,omitempty"`
	ProfiledAt         time.Time      `json:"profiled_at"`
}

// AddFlag appends a quality flag.
func (p *FileProfile) AddFlag(severity, code, message string) {
	p.QualityFlags = append(p.QualityFlags, QualityFlag{Severity: severity, Code: code, Message: message})
}

// setQualityFromFlags derives overall quality from the flag severities.
func (p *FileProfile) setQualityFromFlags() {
	if p.OverallQuality != "" && p.OverallQuality != QualityUnknown {
		return
	}
	errs, warns := 0, 0
	for _, f := range p.QualityFlags {
		switch f.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warns++
		}
	}
	switch {
	case errs > 0:
		p.OverallQuality = QualityPoor
	case warns > 0:
		p.OverallQuality = QualityAcceptable
	default:
		p.OverallQuality = QualityGood
	}
}

// Profiler computes format-specific statistics for one format family.
type Profiler interface {
	// Formats lists the format names this profiler handles.
	Formats() []string

	// Profile fills statistics, preview and quality flags. Parse
	// failures become severity=error flags, not returned errors;
	// a returned error means the file could not be read at all.
	Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error
}

// profilers is the closed set of compile-time known profilers.
func profilers() []Profiler {
	return []Profiler{
		&FastqProfiler{},
		&VCFProfiler{},
		&BAMProfiler{},
		&TabularProfiler{},
		&FastaProfiler{},
		&BEDProfiler{},
		&DocumentProfiler{},
		&GenericProfiler{},
	}
}

// Profile runs the pipeline stages after fetch: detect format, profile,
// attach suggestions, and derive overall quality.
func Profile(ctx context.Context, ff *FetchedFile) (*FileProfile, error) {
	format := DetectFormat(ff)

	profile := &FileProfile{
		File:       ff,
		Format:     format,
		Statistics: make(map[string]any),
		ProfiledAt: time.Now(),
	}

	p := profilerFor(format.Name)
	if err := p.Profile(ctx, ff, format, profile); err != nil {
		return nil, fmt.Errorf("profiling %s failed: %w", ff.OriginalName, err)
	}

	findCompanions(profile)
	attachSuggestions(profile)
	profile.setQualityFromFlags()
	return profile, nil
}

func profilerFor(formatName string) Profiler {
	for _, p := range profilers() {
		for _, name := range p.Formats() {
			if name == formatName {
				return p
			}
		}
	}
	return &GenericProfiler{}
}
