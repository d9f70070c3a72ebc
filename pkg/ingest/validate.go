package ingest

import (
	"fmt"
	"sort"
	"strings"
)

// Analysis types the validation gate knows about.
const (
	AnalysisRNASeq         = "rnaseq"
	AnalysisVariantCalling = "variant_calling"
	AnalysisDifferential   = "differential_expression"
	AnalysisEnrichment     = "pathway_enrichment"
	AnalysisAlignment      = "alignment"
)

// Check is one pass/fail assertion against the workspace datasets.
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// DatasetValidation is the verdict on whether an analysis can start.
type DatasetValidation struct {
	AnalysisType   string   `json:"analysis_type"`
	Ready          bool     `json:"ready"`
	Checks         []Check  `json:"checks"`
	Warnings       []string `json:"warnings,omitempty"`
	MissingInputs  []string `json:"missing_inputs,omitempty"`
	SuggestedFixes []string `json:"suggested_fixes,omitempty"`
}

func (v *DatasetValidation) pass(name, message string) {
	v.Checks = append(v.Checks, Check{Name: name, Passed: true, Message: message})
}

func (v *DatasetValidation) fail(name, message, missing string) {
	v.Checks = append(v.Checks, Check{Name: name, Passed: false, Message: message})
	if missing != "" {
		v.MissingInputs = append(v.MissingInputs, missing)
	}
}

// ValidateForAnalysis checks whether the profiled files in the registry
// satisfy the input requirements of an analysis type. Unknown analysis
// types are an error, not a failed validation.
func ValidateForAnalysis(analysisType string, profiles []*FileProfile) (*DatasetValidation, error) {
	v := &DatasetValidation{AnalysisType: analysisType}

	switch analysisType {
	case AnalysisRNASeq, AnalysisDifferential:
		validateDifferentialExpression(v, profiles)
	case AnalysisVariantCalling:
		validateVariantCalling(v, profiles)
	case AnalysisEnrichment:
		validateEnrichment(v, profiles)
	case AnalysisAlignment:
		validateAlignment(v, profiles)
	default:
		return nil, fmt.Errorf("unknown analysis type %q (known: %s)",
			analysisType, strings.Join(knownAnalysisTypes(), ", "))
	}

	v.Ready = true
	for _, c := range v.Checks {
		if !c.Passed {
			v.Ready = false
			break
		}
	}
	collectQualityWarnings(v, profiles)
	return v, nil
}

func knownAnalysisTypes() []string {
	types := []string{AnalysisRNASeq, AnalysisVariantCalling, AnalysisDifferential, AnalysisEnrichment, AnalysisAlignment}
	sort.Strings(types)
	return types
}

// validateDifferentialExpression needs a count matrix with a gene id
// column and at least two numeric sample columns, plus sample metadata.
func validateDifferentialExpression(v *DatasetValidation, profiles []*FileProfile) {
	counts := firstWithTableClass(profiles, TableCountMatrix)
	if counts == nil {
		v.fail("count_matrix", "no count matrix found among ingested files", "count matrix (genes x samples)")
		v.SuggestedFixes = append(v.SuggestedFixes,
			"ingest a genes-by-samples count table, for example the output of featureCounts or salmon")
	} else {
		v.pass("count_matrix", fmt.Sprintf("%s looks like a count matrix", counts.File.OriginalName))

		numeric := statInt(counts.Statistics, "numeric_column_count")
		if numeric >= 2 {
			v.pass("sample_columns", fmt.Sprintf("%d numeric sample columns", numeric))
		} else {
			v.fail("sample_columns",
				fmt.Sprintf("only %d numeric sample columns; at least 2 needed to compare groups", numeric), "")
			v.SuggestedFixes = append(v.SuggestedFixes, "a differential comparison needs counts for at least two samples")
		}

		if len(counts.Columns) > 0 && counts.Columns[0].Dtype == "string" {
			v.pass("gene_id_column", fmt.Sprintf("first column %q holds gene identifiers", counts.Columns[0].Name))
		} else {
			v.fail("gene_id_column", "first column is not identifier-like", "")
		}
	}

	meta := firstWithTableClass(profiles, TableMetadata)
	if meta == nil {
		v.fail("sample_metadata", "no sample metadata table found", "sample metadata (sample, condition)")
		v.SuggestedFixes = append(v.SuggestedFixes,
			"ingest a sample sheet mapping each count column to its condition")
	} else {
		v.pass("sample_metadata", fmt.Sprintf("%s provides sample annotations", meta.File.OriginalName))
	}

	if counts != nil && meta != nil {
		v.SuggestedFixes = append(v.SuggestedFixes,
			"run differential expression with DESeq2, edgeR, or limma, then pathway enrichment on the hits")
	}
}

// validateVariantCalling needs aligned reads (BAM/CRAM, ideally indexed)
// or a VCF ready for downstream interpretation.
func validateVariantCalling(v *DatasetValidation, profiles []*FileProfile) {
	aligned := firstWithFormat(profiles, "BAM", "CRAM", "SAM")
	if aligned == nil {
		v.fail("aligned_reads", "no BAM/CRAM alignment found", "aligned reads (BAM or CRAM)")
		if fq := firstWithFormat(profiles, "FASTQ"); fq != nil {
			v.SuggestedFixes = append(v.SuggestedFixes,
				fmt.Sprintf("align %s to a reference genome first (bwa mem, then samtools sort)", fq.File.OriginalName))
		}
		return
	}

	v.pass("aligned_reads", fmt.Sprintf("%s is an alignment file", aligned.File.OriginalName))

	if len(aligned.MissingCompanions) > 0 {
		v.fail("alignment_index",
			fmt.Sprintf("index missing for %s", aligned.File.OriginalName), "")
		v.SuggestedFixes = append(v.SuggestedFixes, "index the alignment with samtools index")
	} else {
		v.pass("alignment_index", "alignment index present")
	}

	if rate, ok := aligned.Statistics["mapping_rate"].(float64); ok && rate < 0.7 {
		v.Warnings = append(v.Warnings,
			fmt.Sprintf("mapping rate %.0f%% is low; variant calls may be unreliable", rate*100))
	}
}

// validateEnrichment needs DEG results with effect size and significance
// columns.
func validateEnrichment(v *DatasetValidation, profiles []*FileProfile) {
	deg := firstWithTableClass(profiles, TableDEGResults)
	if deg == nil {
		v.fail("deg_results", "no differential expression results table found",
			"DEG results (gene, log2FC, adjusted p-value)")
		if firstWithTableClass(profiles, TableCountMatrix) != nil {
			v.SuggestedFixes = append(v.SuggestedFixes,
				"run differential expression on the ingested count matrix first")
		}
		return
	}
	v.pass("deg_results", fmt.Sprintf("%s contains differential expression results", deg.File.OriginalName))
}

// validateAlignment needs raw reads, with a warning when mates are
// incomplete.
func validateAlignment(v *DatasetValidation, profiles []*FileProfile) {
	reads := allWithFormat(profiles, "FASTQ")
	if len(reads) == 0 {
		v.fail("raw_reads", "no FASTQ files found", "sequencing reads (FASTQ)")
		return
	}
	v.pass("raw_reads", fmt.Sprintf("%d FASTQ file(s) available", len(reads)))

	for _, r := range reads {
		for _, missing := range r.MissingCompanions {
			v.Warnings = append(v.Warnings,
				fmt.Sprintf("%s looks paired-end but %s was not ingested", r.File.OriginalName, missing))
		}
	}
}

// collectQualityWarnings surfaces poor-quality inputs regardless of
// which checks they satisfied.
func collectQualityWarnings(v *DatasetValidation, profiles []*FileProfile) {
	for _, p := range profiles {
		if p.OverallQuality == QualityPoor {
			v.Warnings = append(v.Warnings,
				fmt.Sprintf("%s was flagged poor quality; review its quality flags before analysis", p.File.OriginalName))
		}
	}
}

// statInt reads an integer statistic, tolerating the float64 that
// numbers become after a JSON round-trip through the registry.
func statInt(stats map[string]any, key string) int {
	switch v := stats[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func firstWithTableClass(profiles []*FileProfile, class string) *FileProfile {
	for _, p := range profiles {
		if p.Statistics["table_class"] == class {
			return p
		}
	}
	return nil
}

func firstWithFormat(profiles []*FileProfile, names ...string) *FileProfile {
	for _, p := range profiles {
		for _, name := range names {
			if p.Format.Name == name {
				return p
			}
		}
	}
	return nil
}

func allWithFormat(profiles []*FileProfile, name string) []*FileProfile {
	var out []*FileProfile
	for _, p := range profiles {
		if p.Format.Name == name {
			out = append(out, p)
		}
	}
	return out
}
