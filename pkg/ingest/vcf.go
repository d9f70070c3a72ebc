package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// VCFProfiler parses header metadata and classifies variants.
type VCFProfiler struct{}

// Formats implements Profiler.
func (p *VCFProfiler) Formats() []string { return []string{"VCF", "BCF"} }

// Profile implements Profiler.
func (p *VCFProfiler) Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error {
	if format.Name == "BCF" {
		profile.AddFlag(SeverityInfo, "BINARY_VCF", "BCF files are profiled via their text header only")
	}

	r, err := OpenReader(ff)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 4<<20)

	var (
		headerFields []string
		infoFields   []string
		samples      []string
		variantCount int
		passCount    int
		filterHist   = map[string]int{}
		classes      = map[string]int{}
		previewBuf   strings.Builder
		previewLines int
	)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()

		if previewLines < 12 {
			previewBuf.WriteString(line)
			previewBuf.WriteString("\n")
			previewLines++
		}

		switch {
		case strings.HasPrefix(line, "##"):
			if strings.HasPrefix(line, "##INFO=<ID=") {
				id := strings.TrimPrefix(line, "##INFO=<ID=")
				if idx := strings.IndexAny(id, ",>"); idx > 0 {
					infoFields = append(infoFields, id[:idx])
				}
			} else if strings.HasPrefix(line, "##") && strings.Contains(line, "=") {
				key := strings.SplitN(strings.TrimPrefix(line, "##"), "=", 2)[0]
				headerFields = append(headerFields, key)
			}

		case strings.HasPrefix(line, "#CHROM"):
			fields := strings.Split(line, "\t")
			if len(fields) > 9 {
				samples = fields[9:]
			}

		default:
			fields := strings.Split(line, "\t")
			if len(fields) < 8 {
				profile.AddFlag(SeverityError, "MALFORMED_VCF",
					fmt.Sprintf("record %d has %d fields, expected >= 8", variantCount+1, len(fields)))
				continue
			}
			variantCount++

			filter := fields[6]
			filterHist[filter]++
			if filter == "PASS" || filter == "." {
				passCount++
			}

			ref := fields[3]
			for _, alt := range strings.Split(fields[4], ",") {
				classes[classifyVariant(ref, alt)]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	stats := profile.Statistics
	stats["variant_count"] = variantCount
	stats["sample_names"] = samples
	stats["sample_count"] = len(samples)
	stats["info_fields"] = infoFields
	stats["header_fields"] = dedupStrings(headerFields)
	stats["filter_histogram"] = filterHist
	stats["variant_classes"] = classes

	profile.Preview = TruncateString(previewBuf.String(), 1000)

	if variantCount == 0 {
		profile.AddFlag(SeverityError, "EMPTY_VCF", "file contains no variant records")
		profile.OverallQuality = QualityPoor
		return nil
	}

	passRate := float64(passCount) / float64(variantCount)
	stats["pass_rate"] = passRate
	if passRate < 0.5 {
		profile.AddFlag(SeverityWarning, "LOW_PASS_RATE",
			fmt.Sprintf("only %.0f%% of variants PASS filters", passRate*100))
	}
	if len(samples) == 0 {
		profile.AddFlag(SeverityWarning, "SITES_ONLY", "VCF has no sample columns (sites-only)")
	}

	// bgzipped VCFs need a tabix or csi index for region queries.
	if ff.Compression == CompressionGzip {
		found := false
		for _, ext := range []string{".tbi", ".csi"} {
			if _, err := os.Stat(ff.LocalPath + ext); err == nil {
				profile.PresentCompanions = append(profile.PresentCompanions, ff.OriginalName+ext)
				found = true
			}
		}
		if !found {
			profile.MissingCompanions = append(profile.MissingCompanions, ff.OriginalName+".tbi")
			profile.AddFlag(SeverityWarning, "MISSING_INDEX", "bgzipped VCF has no tabix/csi index")
		}
	}

	return nil
}

// classifyVariant labels a ref/alt pair as SNV, MNV, Ins, Del or Complex.
func classifyVariant(ref, alt string) string {
	switch {
	case alt == "." || alt == "*" || strings.HasPrefix(alt, "<"):
		return "Complex"
	case len(ref) == 1 && len(alt) == 1:
		return "SNV"
	case len(ref) == len(alt):
		return "MNV"
	case len(ref) < len(alt) && strings.HasPrefix(alt, ref):
		return "Ins"
	case len(ref) > len(alt) && strings.HasPrefix(ref, alt):
		return "Del"
	}
	return "Complex"
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
