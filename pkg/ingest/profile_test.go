package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// profileFile writes content under a temp dir and runs the full profile
// pipeline on it.
func profileFile(t *testing.T, name, content string) *FileProfile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ff := &FetchedFile{LocalPath: path, OriginalName: name}
	profile, err := Profile(context.Background(), ff)
	require.NoError(t, err)
	return profile
}

func hasFlag(profile *FileProfile, code string) bool {
	for _, f := range profile.QualityFlags {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestFastqProfile(t *testing.T) {
	content := "@r1\nACGTACGT\n+\nIIIIIIII\n@r2\nGGCCGGCC\n+\nIIIIIIII\n"
	profile := profileFile(t, "reads_R1.fastq", content)

	assert.Equal(t, "FASTQ", profile.Format.Name)
	assert.Equal(t, 2, profile.Statistics["read_count"])
	assert.InDelta(t, 8.0, profile.Statistics["mean_read_length"], 0.01)
	assert.InDelta(t, 40.0, profile.Statistics["mean_phred"].(float64), 0.01)

	// _R1 with no _R2 next to it: mate flagged missing.
	assert.Contains(t, profile.MissingCompanions, "reads_R2.fastq")
	assert.True(t, hasFlag(profile, "MISSING_MATE"))
	assert.Equal(t, QualityAcceptable, profile.OverallQuality)
}

func TestFastqMateDetected(t *testing.T) {
	dir := t.TempDir()
	content := "@r1\nACGT\n+\nIIII\n"
	r1 := filepath.Join(dir, "sample_R1.fastq")
	r2 := filepath.Join(dir, "sample_R2.fastq")
	require.NoError(t, os.WriteFile(r1, []byte(content), 0o644))
	require.NoError(t, os.WriteFile(r2, []byte(content), 0o644))

	profile, err := Profile(context.Background(), &FetchedFile{LocalPath: r1, OriginalName: "sample_R1.fastq"})
	require.NoError(t, err)

	assert.Contains(t, profile.PresentCompanions, "sample_R2.fastq")
	assert.Equal(t, true, profile.Statistics["paired_end"])
	assert.False(t, hasFlag(profile, "MISSING_MATE"))
}

func TestFastqMalformed(t *testing.T) {
	profile := profileFile(t, "broken.fastq", "not a header\nACGT\n+\nIIII\n")
	assert.True(t, hasFlag(profile, "MALFORMED_FASTQ"))
	assert.Equal(t, QualityPoor, profile.OverallQuality)
}

func TestVCFProfile(t *testing.T) {
	content := strings.Join([]string{
		"##fileformat=VCFv4.2",
		"##INFO=<ID=DP,Number=1,Type=Integer,Description=\"Depth\">",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tNA12878",
		"chr1\t100\trs1\tA\tG\t50\tPASS\tDP=30\tGT\t0/1",
		"chr1\t200\t.\tAT\tA\t40\tPASS\tDP=25\tGT\t1/1",
		"chr1\t300\t.\tC\tCTT\t30\tLowQual\tDP=5\tGT\t0/1",
	}, "\n") + "\n"

	profile := profileFile(t, "calls.vcf", content)

	assert.Equal(t, "VCF", profile.Format.Name)
	assert.Equal(t, 3, profile.Statistics["variant_count"])
	assert.Equal(t, []string{"NA12878"}, profile.Statistics["sample_names"])
	assert.Contains(t, profile.Statistics["info_fields"], "DP")

	classes := profile.Statistics["variant_classes"].(map[string]int)
	assert.Equal(t, 1, classes["SNV"])
	assert.Equal(t, 1, classes["Del"])
	assert.Equal(t, 1, classes["Ins"])

	assert.InDelta(t, 2.0/3.0, profile.Statistics["pass_rate"].(float64), 0.01)
}

func TestVCFEmpty(t *testing.T) {
	content := "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"
	profile := profileFile(t, "empty.vcf", content)

	assert.True(t, hasFlag(profile, "EMPTY_VCF"))
	assert.Equal(t, QualityPoor, profile.OverallQuality)
}

func TestClassifyVariant(t *testing.T) {
	tests := []struct {
		ref, alt, want string
	}{
		{"A", "G", "SNV"},
		{"AT", "GC", "MNV"},
		{"A", "ATT", "Ins"},
		{"ATT", "A", "Del"},
		{"A", "<DEL>", "Complex"},
		{"ACGT", "TTTT", "MNV"},
		{"AC", "GTT", "Complex"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyVariant(tt.ref, tt.alt), "ref=%s alt=%s", tt.ref, tt.alt)
	}
}

func TestTabularCountMatrix(t *testing.T) {
	content := "gene_id\tctrl_1\tctrl_2\ttreat_1\ttreat_2\n" +
		"TP53\t100\t110\t300\t290\n" +
		"BRCA1\t50\t55\t20\t25\n" +
		"EGFR\t10\t12\t11\t9\n"
	profile := profileFile(t, "counts.tsv", content)

	assert.Equal(t, TableCountMatrix, profile.Statistics["table_class"])
	assert.Equal(t, 4, profile.Statistics["numeric_column_count"])

	require.Len(t, profile.Columns, 5)
	assert.Equal(t, "string", profile.Columns[0].Dtype)
	assert.Equal(t, "integer", profile.Columns[1].Dtype)

	// Count matrices get a differential expression suggestion.
	var tools []string
	for _, s := range profile.Suggestions {
		tools = append(tools, s.Tools...)
	}
	assert.Contains(t, tools, "DESeq2")
}

func TestTabularDEGResults(t *testing.T) {
	content := "gene,log2FoldChange,pvalue,padj\n" +
		"TP53,2.5,0.0001,0.001\n" +
		"BRCA1,-1.2,0.01,0.04\n"
	profile := profileFile(t, "deg.csv", content)

	assert.Equal(t, TableDEGResults, profile.Statistics["table_class"])
	assert.Equal(t, "numeric", profile.Columns[1].Dtype)
}

func TestTabularMetadata(t *testing.T) {
	content := "sample,condition,batch\nctrl_1,control,1\nctrl_2,control,2\ntreat_1,treated,1\n"
	profile := profileFile(t, "samples.csv", content)
	assert.Equal(t, TableMetadata, profile.Statistics["table_class"])
}

func TestInferDtype(t *testing.T) {
	tests := []struct {
		name   string
		sample []string
		want   string
	}{
		{"integers", []string{"1", "2", "30"}, "integer"},
		{"floats", []string{"1.5", "2.0", "3e-4"}, "numeric"},
		{"strings", []string{"a", "b", "c"}, "string"},
		{"mostly numeric passes ratio", []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "x"}, "integer"},
		{"half and half", []string{"1", "a", "2", "b"}, "mixed"},
		{"empty", nil, "string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferDtype(tt.sample))
		})
	}
}

func TestFastaProfile(t *testing.T) {
	content := ">seq1 first\nACGTACGTGG\n>seq2\nACGT\n"
	profile := profileFile(t, "genome.fasta", content)

	assert.Equal(t, 2, profile.Statistics["sequence_count"])
	assert.Equal(t, "nucleotide", profile.Statistics["alphabet"])
	assert.Equal(t, 10, profile.Statistics["max_length"])
	assert.Equal(t, []string{"seq1", "seq2"}, profile.Statistics["sequence_names"])
}

func TestFastaProtein(t *testing.T) {
	content := ">prot1\nMEEPQSDPSV\n"
	profile := profileFile(t, "proteins.faa", content)
	assert.Equal(t, "protein", profile.Statistics["alphabet"])

	var names []string
	for _, s := range profile.Suggestions {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "Protein domain and homology search")
}

func TestBEDProfile(t *testing.T) {
	content := "track name=test\nchr1\t100\t200\tpeak1\nchr1\t300\t450\tpeak2\nchr2\t0\t50\tpeak3\n"
	profile := profileFile(t, "peaks.bed", content)

	assert.Equal(t, 3, profile.Statistics["interval_count"])
	assert.EqualValues(t, 300, profile.Statistics["total_span"])
	assert.Equal(t, 2, profile.Statistics["chromosome_count"])
}
