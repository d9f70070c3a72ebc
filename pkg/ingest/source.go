// Package ingest materializes heterogeneous inputs into the workspace
// and profiles them: fetch, format detection, per-format statistics,
// quality flags, analysis suggestions, and dataset validation.
package ingest

import (
	"os"
	"strings"
)

// SourceKind tags a SourceDescriptor variant.
type SourceKind string

const (
	SourceLocalPath  SourceKind = "local_path"
	SourceHTTPURL    SourceKind = "http_url"
	SourceS3URI      SourceKind = "s3_uri"
	SourceGCSURI     SourceKind = "gcs_uri"
	SourceInline     SourceKind = "inline_bytes"
	SourceUploadTemp SourceKind = "upload_temp_path"
)

// SourceDescriptor identifies where an input comes from.
type SourceDescriptor struct {
	Kind SourceKind `json:"kind"`

	// Location is the path or URL for path/URL variants.
	Location string `json:"location,omitempty"`

	// Data carries the payload for inline variants.
	Data []byte `json:"-"`

	// Name is a filename hint for inline and upload variants.
	Name string `json:"name,omitempty"`
}

// DetectSource classifies an input string: URL schemes, bucket URIs,
// existing paths, or raw sequence-looking text (treated as inline).
func DetectSource(input string) SourceDescriptor {
	trimmed := strings.TrimSpace(input)

	switch {
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		return SourceDescriptor{Kind: SourceHTTPURL, Location: trimmed}
	case strings.HasPrefix(trimmed, "s3://"):
		return SourceDescriptor{Kind: SourceS3URI, Location: trimmed}
	case strings.HasPrefix(trimmed, "gs://"):
		return SourceDescriptor{Kind: SourceGCSURI, Location: trimmed}
	case strings.HasPrefix(trimmed, "ftp://"):
		return SourceDescriptor{Kind: SourceHTTPURL, Location: trimmed}
	}

	if _, err := os.Stat(trimmed); err == nil {
		if strings.Contains(trimmed, os.TempDir()) {
			return SourceDescriptor{Kind: SourceUploadTemp, Location: trimmed}
		}
		return SourceDescriptor{Kind: SourceLocalPath, Location: trimmed}
	}

	if looksLikeSequence(trimmed) {
		return SourceDescriptor{Kind: SourceInline, Data: []byte(trimmed), Name: "inline.fasta"}
	}

	// Fall back to a local path; fetch will surface the missing file.
	return SourceDescriptor{Kind: SourceLocalPath, Location: trimmed}
}

// looksLikeSequence reports whether text is raw FASTA or bare sequence.
func looksLikeSequence(s string) bool {
	if strings.HasPrefix(s, ">") && strings.Contains(s, "\n") {
		return true
	}
	if len(s) < 20 {
		return false
	}
	acgt := 0
	for _, r := range strings.ToUpper(s) {
		switch r {
		case 'A', 'C', 'G', 'T', 'U', 'N', '\n', ' ':
			acgt++
		}
	}
	return float64(acgt)/float64(len(s)) > 0.95
}
