package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fastqSampleReads bounds how many reads are sampled for statistics.
const fastqSampleReads = 10000

// Paired-end filename patterns, checked in order: _1/_2, _R1/_R2, .R1./.R2.
var matePatterns = []struct{ left, right string }{
	{"_R1", "_R2"},
	{".R1.", ".R2."},
	{"_1.", "_2."},
}

// FastqProfiler samples reads and computes length, GC and quality stats.
type FastqProfiler struct{}

// Formats implements Profiler.
func (p *FastqProfiler) Formats() []string { return []string{"FASTQ"} }

// Profile implements Profiler.
func (p *FastqProfiler) Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error {
	r, err := OpenReader(ff)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	var (
		reads       int
		totalLen    int
		minLen      = -1
		maxLen      int
		gcBases     int
		atBases     int
		qualSum     float64
		qualReads   int
		lowQual     int
		previewBuf  strings.Builder
		truncated   bool
		lineInBlock int
	)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()

		if reads < 2 {
			previewBuf.WriteString(line)
			previewBuf.WriteString("\n")
		}

		switch lineInBlock {
		case 0:
			if !strings.HasPrefix(line, "@") {
				profile.AddFlag(SeverityError, "MALFORMED_FASTQ",
					fmt.Sprintf("read %d: header does not start with @", reads+1))
				profile.OverallQuality = QualityPoor
				return nil
			}
		case 1:
			length := len(line)
			totalLen += length
			if minLen < 0 || length < minLen {
				minLen = length
			}
			if length > maxLen {
				maxLen = length
			}
			for _, b := range []byte(strings.ToUpper(line)) {
				switch b {
				case 'G', 'C':
					gcBases++
				case 'A', 'T':
					atBases++
				}
			}
		case 3:
			mean := meanPhred(line)
			qualSum += mean
			qualReads++
			if mean < 20 {
				lowQual++
			}
		}

		lineInBlock++
		if lineInBlock == 4 {
			lineInBlock = 0
			reads++
			if reads >= fastqSampleReads {
				truncated = true
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if reads == 0 {
		profile.AddFlag(SeverityError, "EMPTY_FASTQ", "file contains no reads")
		profile.OverallQuality = QualityPoor
		return nil
	}

	stats := profile.Statistics
	stats["read_count"] = reads
	stats["read_count_exact"] = !truncated
	stats["mean_read_length"] = float64(totalLen) / float64(reads)
	stats["min_read_length"] = minLen
	stats["max_read_length"] = maxLen
	if gcBases+atBases > 0 {
		stats["gc_percent"] = 100 * float64(gcBases) / float64(gcBases+atBases)
	}
	if qualReads > 0 {
		stats["mean_phred"] = qualSum / float64(qualReads)
	}

	profile.Preview = TruncateString(previewBuf.String(), 500)

	gc, _ := stats["gc_percent"].(float64)
	if gc > 0 && (gc < 25 || gc > 75) {
		profile.AddFlag(SeverityWarning, "UNUSUAL_GC", fmt.Sprintf("GC content %.1f%% is outside the typical range", gc))
	}
	if qualReads > 0 && float64(lowQual)/float64(qualReads) > 0.2 {
		profile.AddFlag(SeverityWarning, "LOW_QUALITY_READS",
			fmt.Sprintf("%.0f%% of sampled reads have mean Phred < 20", 100*float64(lowQual)/float64(qualReads)))
	}
	if minLen != maxLen {
		profile.AddFlag(SeverityInfo, "VARIABLE_READ_LENGTH",
			fmt.Sprintf("read lengths vary from %d to %d", minLen, maxLen))
	}

	detectMate(ff, profile)
	return nil
}

// detectMate looks for the paired-end mate of a FASTQ file on disk.
func detectMate(ff *FetchedFile, profile *FileProfile) {
	name := ff.OriginalName
	dir := filepath.Dir(ff.LocalPath)

	for _, pat := range matePatterns {
		var mate string
		switch {
		case strings.Contains(name, pat.left):
			mate = strings.Replace(name, pat.left, pat.right, 1)
		case strings.Contains(name, pat.right):
			mate = strings.Replace(name, pat.right, pat.left, 1)
		default:
			continue
		}

		matePath := filepath.Join(dir, mate)
		if _, err := os.Stat(matePath); err == nil {
			profile.PresentCompanions = append(profile.PresentCompanions, mate)
			profile.Statistics["paired_end"] = true
		} else {
			profile.MissingCompanions = append(profile.MissingCompanions, mate)
			profile.AddFlag(SeverityWarning, "MISSING_MATE",
				fmt.Sprintf("missing paired-end mate %s", mate))
		}
		return
	}
}

// meanPhred computes the mean Phred score of a quality line (Phred+33).
func meanPhred(qual string) float64 {
	if len(qual) == 0 {
		return 0
	}
	sum := 0
	for _, b := range []byte(qual) {
		sum += int(b) - 33
	}
	return float64(sum) / float64(len(qual))
}

// TruncateString bounds s to n bytes with an ellipsis.
func TruncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
