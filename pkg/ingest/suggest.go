package ingest

import (
	"os"
	"slices"
)

// findCompanions checks the format's expected companion files on disk,
// skipping any the profiler already recorded.
func findCompanions(profile *FileProfile) {
	for _, ext := range profile.Format.CompanionExtensions {
		name := profile.File.OriginalName + ext
		if slices.Contains(profile.PresentCompanions, name) || slices.Contains(profile.MissingCompanions, name) {
			continue
		}
		if _, err := os.Stat(profile.File.LocalPath + ext); err == nil {
			profile.PresentCompanions = append(profile.PresentCompanions, name)
		}
	}
}

// attachSuggestions adds per-format analysis suggestions, augmented by
// what the profiler found in the content.
func attachSuggestions(profile *FileProfile) {
	switch profile.Format.Name {
	case "FASTQ":
		profile.Suggestions = append(profile.Suggestions,
			Suggestion{
				Name:         "Read quality control",
				Tools:        []string{"fastqc", "fastp"},
				Priority:     1,
				ExampleQuery: "Run quality control on my FASTQ files and summarize the results",
			},
			Suggestion{
				Name:          "Alignment to a reference",
				Tools:         []string{"bwa", "STAR", "hisat2"},
				Prerequisites: []string{"reference genome FASTA"},
				Priority:      2,
				ExampleQuery:  "Align these reads to the human reference genome",
			})
		if paired, _ := profile.Statistics["paired_end"].(bool); paired {
			profile.Suggestions = append(profile.Suggestions, Suggestion{
				Name:         "Paired-end RNA-seq quantification",
				Tools:        []string{"salmon", "kallisto"},
				Priority:     2,
				ExampleQuery: "Quantify transcript expression from these paired-end reads",
			})
		}

	case "VCF", "BCF":
		profile.Suggestions = append(profile.Suggestions,
			Suggestion{
				Name:         "Variant annotation",
				Tools:        []string{"VEP", "SnpEff", "ANNOVAR"},
				Priority:     1,
				ExampleQuery: "Annotate the variants in my VCF with predicted effects",
			},
			Suggestion{
				Name:         "Variant filtering and statistics",
				Tools:        []string{"bcftools"},
				Priority:     2,
				ExampleQuery: "Filter my VCF to PASS variants and summarize the variant classes",
			})

	case "BAM", "CRAM", "SAM":
		profile.Suggestions = append(profile.Suggestions,
			Suggestion{
				Name:         "Alignment QC",
				Tools:        []string{"samtools", "qualimap"},
				Priority:     1,
				ExampleQuery: "Assess the alignment quality of my BAM file",
			},
			Suggestion{
				Name:          "Variant calling",
				Tools:         []string{"gatk", "bcftools", "deepvariant"},
				Prerequisites: []string{"reference genome FASTA", "BAM index"},
				Priority:      2,
				ExampleQuery:  "Call variants from this alignment",
			})

	case "CSV", "TSV", "Excel", "CountMatrix":
		switch profile.Statistics["table_class"] {
		case TableCountMatrix:
			profile.Suggestions = append(profile.Suggestions, Suggestion{
				Name:          "Differential expression analysis",
				Tools:         []string{"DESeq2", "edgeR", "limma"},
				Prerequisites: []string{"sample metadata table"},
				Priority:      1,
				ExampleQuery:  "Run differential expression on my count matrix comparing conditions",
			})
		case TableDEGResults:
			profile.Suggestions = append(profile.Suggestions, Suggestion{
				Name:         "Pathway enrichment",
				Tools:        []string{"clusterProfiler", "gprofiler", "GSEA"},
				Priority:     1,
				ExampleQuery: "Run pathway enrichment on my differential expression results",
			})
		case TableMetadata:
			profile.Suggestions = append(profile.Suggestions, Suggestion{
				Name:         "Experimental design check",
				Priority:     2,
				ExampleQuery: "Check my sample metadata for confounded conditions or batches",
			})
		default:
			profile.Suggestions = append(profile.Suggestions, Suggestion{
				Name:         "Exploratory data analysis",
				Tools:        []string{"pandas", "ggplot2"},
				Priority:     3,
				ExampleQuery: "Explore and summarize this table",
			})
		}

	case "FASTA":
		if profile.Statistics["alphabet"] == "protein" {
			profile.Suggestions = append(profile.Suggestions, Suggestion{
				Name:         "Protein domain and homology search",
				Tools:        []string{"blastp", "hmmer", "interproscan"},
				Priority:     1,
				ExampleQuery: "Find conserved domains in these protein sequences",
			})
		} else {
			profile.Suggestions = append(profile.Suggestions, Suggestion{
				Name:         "Sequence similarity search",
				Tools:        []string{"blastn", "minimap2"},
				Priority:     1,
				ExampleQuery: "BLAST these sequences against the NCBI nt database",
			})
		}

	case "BED", "GFF", "GTF":
		profile.Suggestions = append(profile.Suggestions, Suggestion{
			Name:         "Interval operations",
			Tools:        []string{"bedtools"},
			Priority:     1,
			ExampleQuery: "Intersect these regions with known gene annotations",
		})
	}
}
