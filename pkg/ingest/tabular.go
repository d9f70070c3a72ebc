package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// dtypeSampleSize bounds how many non-empty values feed dtype inference.
const dtypeSampleSize = 100

// numericRatio is the ratio rule: above it a column is numeric.
const numericRatio = 0.8

// maxProfiledRows bounds how much of a tabular file is scanned.
const maxProfiledRows = 5000

// Tabular content classes by column-name heuristics.
const (
	TableDEGResults  = "deg_results"
	TableCountMatrix = "count_matrix"
	TableMetadata    = "metadata"
	TableGeneric     = "generic"
)

// TabularProfiler infers delimiters, column dtypes, and the likely role
// of the table (DEG results, count matrix, sample metadata).
type TabularProfiler struct{}

// Formats implements Profiler.
func (p *TabularProfiler) Formats() []string { return []string{"CSV", "TSV", "Excel", "CountMatrix"} }

// Profile implements Profiler.
func (p *TabularProfiler) Profile(ctx context.Context, ff *FetchedFile, format FileFormat, profile *FileProfile) error {
	var rows [][]string
	var err error

	if format.Name == "Excel" {
		rows, err = readExcelRows(ff.LocalPath, maxProfiledRows)
	} else {
		rows, err = readDelimitedRows(ff, maxProfiledRows)
	}
	if err != nil {
		profile.AddFlag(SeverityError, "PARSE_FAILED", fmt.Sprintf("could not parse table: %v", err))
		profile.OverallQuality = QualityPoor
		return nil
	}

	if len(rows) == 0 {
		profile.AddFlag(SeverityError, "EMPTY_TABLE", "file contains no rows")
		profile.OverallQuality = QualityPoor
		return nil
	}

	header := rows[0]
	data := rows[1:]

	profile.Statistics["row_count"] = len(data)
	profile.Statistics["column_count"] = len(header)
	profile.Columns = inferColumns(header, data)
	profile.Preview = previewRows(rows, 6)

	ragged := 0
	for _, row := range data {
		if len(row) != len(header) {
			ragged++
		}
	}
	if ragged > 0 {
		profile.AddFlag(SeverityWarning, "RAGGED_ROWS",
			fmt.Sprintf("%d rows have a different field count than the header", ragged))
	}

	class := classifyTable(header, profile.Columns)
	profile.Statistics["table_class"] = class

	if class == TableCountMatrix || class == TableDEGResults {
		numeric := 0
		for _, col := range profile.Columns[1:] {
			if col.Dtype == "integer" || col.Dtype == "numeric" {
				numeric++
			}
		}
		profile.Statistics["numeric_column_count"] = numeric
	}

	return nil
}

// readDelimitedRows infers the delimiter from the first line's tab vs
// comma counts, then parses with encoding/csv.
func readDelimitedRows(ff *FetchedFile, maxRows int) ([][]string, error) {
	r, err := OpenReader(ff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	buffered := bufio.NewReader(r)
	firstLine, err := buffered.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}

	delimiter := ','
	if strings.Count(firstLine, "\t") > strings.Count(firstLine, ",") {
		delimiter = '\t'
	}

	reader := csv.NewReader(io.MultiReader(strings.NewReader(firstLine), buffered))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// readExcelRows reads the first sheet of an Excel workbook.
func readExcelRows(path string, maxRows int) ([][]string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return rows, nil
}

// inferColumns derives per-column dtype, null count and unique sample
// from the first dtypeSampleSize non-empty values.
func inferColumns(header []string, data [][]string) []ColumnInfo {
	columns := make([]ColumnInfo, len(header))

	for i, name := range header {
		col := ColumnInfo{Name: strings.TrimSpace(name)}

		var sample []string
		unique := map[string]bool{}
		for _, row := range data {
			if i >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[i])
			if value == "" || value == "NA" || value == "NaN" || value == "null" {
				col.NullCount++
				continue
			}
			unique[value] = true
			if len(sample) < dtypeSampleSize {
				sample = append(sample, value)
			}
		}
		col.UniqueCount = len(unique)
		col.Dtype = inferDtype(sample)
		columns[i] = col
	}
	return columns
}

// inferDtype applies the ratio rule: >80% parseable as numeric makes the
// column numeric; all-integral numerics make it integer.
func inferDtype(sample []string) string {
	if len(sample) == 0 {
		return "string"
	}

	numeric, integral := 0, 0
	for _, v := range sample {
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numeric++
			if !strings.ContainsAny(v, ".eE") {
				integral++
			}
		}
	}

	ratio := float64(numeric) / float64(len(sample))
	switch {
	case ratio > numericRatio && integral == numeric:
		return "integer"
	case ratio > numericRatio:
		return "numeric"
	case numeric == 0:
		return "string"
	}
	return "mixed"
}

// Column-name cues for DEG results tables.
var degColumnCues = []string{"log2fc", "log2foldchange", "padj", "pvalue", "p.value", "fdr", "baseMean", "basemean", "logfc", "adj.p.val"}

// classifyTable guesses the table's role from its header and dtypes.
func classifyTable(header []string, columns []ColumnInfo) string {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	degHits := 0
	for _, name := range lower {
		for _, cue := range degColumnCues {
			if strings.Contains(name, strings.ToLower(cue)) {
				degHits++
				break
			}
		}
	}
	if degHits >= 2 {
		return TableDEGResults
	}

	// Count matrix: first column id-like, nearly all others numeric.
	if len(columns) >= 3 {
		numeric := 0
		for _, col := range columns[1:] {
			if col.Dtype == "integer" || col.Dtype == "numeric" {
				numeric++
			}
		}
		if columns[0].Dtype == "string" && float64(numeric) >= 0.9*float64(len(columns)-1) {
			return TableCountMatrix
		}
	}

	// Metadata: mostly string columns with sample/condition-style names.
	metaCues := 0
	for _, name := range lower {
		switch {
		case strings.Contains(name, "sample"), strings.Contains(name, "condition"),
			strings.Contains(name, "group"), strings.Contains(name, "batch"),
			strings.Contains(name, "treatment"), strings.Contains(name, "replicate"):
			metaCues++
		}
	}
	if metaCues >= 1 && len(columns) <= 10 {
		return TableMetadata
	}

	return TableGeneric
}

func previewRows(rows [][]string, n int) string {
	if len(rows) > n {
		rows = rows[:n]
	}
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteString("\n")
	}
	return TruncateString(b.String(), 1000)
}
