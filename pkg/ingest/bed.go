package ingest

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// BEDProfiler counts intervals and measures spans per chromosome.
type BEDProfiler struct{}

// Formats implements Profiler.
func (p *BEDProfiler) Formats() []string { return []string{"BED", "GFF", "GTF"} }

// Profile implements Profiler.
func (p *BEDProfiler) Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error {
	r, err := OpenReader(ff)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	isBED := format.Name == "BED"
	startCol, endCol := 1, 2
	if !isBED {
		startCol, endCol = 3, 4
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 4<<20)

	var (
		intervals  int
		totalSpan  int64
		chroms     = map[string]int{}
		features   = map[string]int{}
		malformed  int
		preview    strings.Builder
		previewCnt int
	)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}

		if previewCnt < 8 {
			preview.WriteString(line)
			preview.WriteString("\n")
			previewCnt++
		}

		fields := strings.Split(line, "\t")
		if len(fields) <= endCol {
			malformed++
			continue
		}

		start, err1 := strconv.ParseInt(fields[startCol], 10, 64)
		end, err2 := strconv.ParseInt(fields[endCol], 10, 64)
		if err1 != nil || err2 != nil || end < start {
			malformed++
			continue
		}

		intervals++
		totalSpan += end - start
		chroms[fields[0]]++
		if !isBED && len(fields) > 2 {
			features[fields[2]]++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if intervals == 0 {
		profile.AddFlag(SeverityError, "EMPTY_INTERVALS", "file contains no valid intervals")
		profile.OverallQuality = QualityPoor
		return nil
	}

	stats := profile.Statistics
	stats["interval_count"] = intervals
	stats["total_span"] = totalSpan
	stats["mean_span"] = float64(totalSpan) / float64(intervals)
	stats["chromosome_count"] = len(chroms)
	if len(features) > 0 {
		stats["feature_types"] = features
	}

	profile.Preview = TruncateString(preview.String(), 800)

	if malformed > 0 {
		profile.AddFlag(SeverityWarning, "MALFORMED_INTERVALS",
			fmt.Sprintf("%d lines could not be parsed as intervals", malformed))
	}

	return nil
}
