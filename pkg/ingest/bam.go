package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// BAMProfiler shells out to samtools for flagstat and idxstats. When
// samtools is unavailable the profile degrades to basic facts with a
// warning flag rather than failing ingestion.
type BAMProfiler struct{}

// Formats implements Profiler.
func (p *BAMProfiler) Formats() []string { return []string{"BAM", "CRAM", "SAM"} }

// Profile implements Profiler.
func (p *BAMProfiler) Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error {
	samtools, err := exec.LookPath("samtools")
	if err != nil {
		profile.AddFlag(SeverityWarning, "NO_SAMTOOLS", "samtools not found; alignment statistics unavailable")
		profile.OverallQuality = QualityUnknown
		p.checkIndex(ff, profile)
		return nil
	}

	flagstat, err := runCommand(ctx, samtools, "flagstat", ff.LocalPath)
	if err != nil {
		profile.AddFlag(SeverityError, "FLAGSTAT_FAILED", fmt.Sprintf("samtools flagstat failed: %v", err))
		return nil
	}
	parseFlagstat(flagstat, profile)

	if idxstats, err := runCommand(ctx, samtools, "idxstats", ff.LocalPath); err == nil {
		parseIdxstats(idxstats, profile)
	}

	profile.Preview = TruncateString(flagstat, 1000)
	p.checkIndex(ff, profile)
	return nil
}

func (p *BAMProfiler) checkIndex(ff *FetchedFile, profile *FileProfile) {
	var exts []string
	switch {
	case strings.HasSuffix(ff.LocalPath, ".bam"):
		exts = []string{".bai", ".csi"}
	case strings.HasSuffix(ff.LocalPath, ".cram"):
		exts = []string{".crai"}
	default:
		return
	}

	for _, ext := range exts {
		if _, err := os.Stat(ff.LocalPath + ext); err == nil {
			profile.PresentCompanions = append(profile.PresentCompanions, ff.OriginalName+ext)
			return
		}
	}
	profile.MissingCompanions = append(profile.MissingCompanions, ff.OriginalName+exts[0])
	profile.AddFlag(SeverityWarning, "MISSING_INDEX", "alignment file has no index; run samtools index")
}

// parseFlagstat extracts totals, mapping rate and duplication rate.
func parseFlagstat(out string, profile *FileProfile) {
	stats := profile.Statistics

	var total, mapped, duplicates int
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(line, "in total"):
			total = n
		case strings.Contains(line, "duplicates") && !strings.Contains(line, "primary"):
			duplicates = n
		case strings.Contains(line, "mapped (") && !strings.Contains(line, "primary") && !strings.Contains(line, "mate"):
			mapped = n
		}
	}

	stats["total_reads"] = total
	stats["mapped_reads"] = mapped
	stats["duplicate_reads"] = duplicates

	if total > 0 {
		mappingRate := float64(mapped) / float64(total)
		stats["mapping_rate"] = mappingRate
		stats["duplication_rate"] = float64(duplicates) / float64(total)

		if mappingRate < 0.7 {
			profile.AddFlag(SeverityWarning, "LOW_MAPPING_RATE",
				fmt.Sprintf("mapping rate %.1f%% is below 70%%", mappingRate*100))
		}
		if float64(duplicates)/float64(total) > 0.3 {
			profile.AddFlag(SeverityWarning, "HIGH_DUPLICATION",
				fmt.Sprintf("duplication rate %.1f%%", 100*float64(duplicates)/float64(total)))
		}
	} else {
		profile.AddFlag(SeverityError, "EMPTY_BAM", "alignment file contains no reads")
	}
}

// parseIdxstats records per-chromosome mapped read counts.
func parseIdxstats(out string, profile *FileProfile) {
	counts := map[string]int{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 3 || fields[0] == "*" {
			continue
		}
		if n, err := strconv.Atoi(fields[2]); err == nil && n > 0 {
			counts[fields[0]] = n
		}
	}
	if len(counts) > 0 {
		profile.Statistics["per_chromosome_reads"] = counts
		profile.Statistics["chromosome_count"] = len(counts)
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
