package ingest

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// fastaSampleSeqs bounds how many records are fully measured.
const fastaSampleSeqs = 5000

// FastaProfiler counts sequences and measures length and composition.
type FastaProfiler struct{}

// Formats implements Profiler.
func (p *FastaProfiler) Formats() []string { return []string{"FASTA"} }

// Profile implements Profiler.
func (p *FastaProfiler) Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error {
	r, err := OpenReader(ff)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)

	var (
		seqCount   int
		totalLen   int
		minLen     = -1
		maxLen     int
		currentLen int
		gc, at     int
		protein    bool
		names      []string
		preview    strings.Builder
	)

	flush := func() {
		if currentLen == 0 && seqCount == 0 {
			return
		}
		totalLen += currentLen
		if minLen < 0 || currentLen < minLen {
			minLen = currentLen
		}
		if currentLen > maxLen {
			maxLen = currentLen
		}
		currentLen = 0
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()

		if seqCount < 3 {
			preview.WriteString(line)
			preview.WriteString("\n")
		}

		if strings.HasPrefix(line, ">") {
			if seqCount > 0 {
				flush()
			}
			seqCount++
			if len(names) < 20 {
				name := strings.Fields(strings.TrimPrefix(line, ">"))
				if len(name) > 0 {
					names = append(names, name[0])
				}
			}
			if seqCount > fastaSampleSeqs {
				break
			}
			continue
		}

		currentLen += len(line)
		for _, b := range []byte(strings.ToUpper(line)) {
			switch b {
			case 'G', 'C':
				gc++
			case 'A', 'T', 'U':
				at++
			case 'E', 'F', 'I', 'L', 'P', 'Q':
				// Residues that never appear in nucleotide code.
				protein = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	flush()

	if seqCount == 0 {
		profile.AddFlag(SeverityError, "EMPTY_FASTA", "file contains no sequences")
		profile.OverallQuality = QualityPoor
		return nil
	}

	stats := profile.Statistics
	stats["sequence_count"] = seqCount
	stats["total_length"] = totalLen
	stats["min_length"] = minLen
	stats["max_length"] = maxLen
	if seqCount > 0 {
		stats["mean_length"] = float64(totalLen) / float64(seqCount)
	}
	stats["sequence_names"] = names

	if protein {
		stats["alphabet"] = "protein"
	} else {
		stats["alphabet"] = "nucleotide"
		if gc+at > 0 {
			stats["gc_percent"] = 100 * float64(gc) / float64(gc+at)
		}
	}

	profile.Preview = TruncateString(preview.String(), 500)

	if minLen == 0 {
		profile.AddFlag(SeverityWarning, "EMPTY_SEQUENCE", "at least one record has an empty sequence")
	}
	if dupes := duplicateCount(names); dupes > 0 {
		profile.AddFlag(SeverityWarning, "DUPLICATE_NAMES", fmt.Sprintf("%d duplicate sequence names in sample", dupes))
	}

	return nil
}

func duplicateCount(names []string) int {
	seen := map[string]bool{}
	dupes := 0
	for _, n := range names {
		if seen[n] {
			dupes++
		}
		seen[n] = true
	}
	return dupes
}
