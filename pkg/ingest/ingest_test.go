package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSource(t *testing.T) {
	local := filepath.Join(t.TempDir(), "reads.fastq")
	require.NoError(t, os.WriteFile(local, []byte("@r1\nACGT\n+\nIIII\n"), 0o644))

	tests := []struct {
		name  string
		input string
		kind  SourceKind
	}{
		{"https url", "https://example.org/data.vcf.gz", SourceHTTPURL},
		{"ftp url", "ftp://ftp.ensembl.org/ref.fa", SourceHTTPURL},
		{"s3 uri", "s3://bucket/key.bam", SourceS3URI},
		{"gcs uri", "gs://bucket/key.bam", SourceGCSURI},
		{"existing path", local, SourceLocalPath},
		{"raw fasta", ">seq1\nACGTACGTACGTACGTACGT", SourceInline},
		{"bare sequence", "ACGTACGTACGTACGTACGTACGTACGT", SourceInline},
		{"missing path falls through", "/no/such/file.txt", SourceLocalPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, DetectSource(tt.input).Kind)
		})
	}
}

func TestFetchLocalCopiesAndHashes(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "sample.vcf")
	require.NoError(t, os.WriteFile(src, []byte("##fileformat=VCFv4.2\n"), 0o644))

	f := NewFetcher(t.TempDir())
	ff, err := f.Fetch(context.Background(), SourceDescriptor{Kind: SourceLocalPath, Location: src})
	require.NoError(t, err)

	assert.Equal(t, "sample.vcf", ff.OriginalName)
	assert.NotEmpty(t, ff.ContentHash)
	assert.Equal(t, CompressionNone, ff.Compression)
	assert.FileExists(t, ff.LocalPath)

	// Original stays where it was.
	assert.FileExists(t, src)
}

func TestFetchCollisionSuffix(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "reads.fastq.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("@r1\nACGT\n+\nIIII\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o644))

	f := NewFetcher(t.TempDir())
	desc := SourceDescriptor{Kind: SourceLocalPath, Location: src}

	first, err := f.Fetch(context.Background(), desc)
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), desc)
	require.NoError(t, err)

	assert.Equal(t, "reads.fastq.gz", filepath.Base(first.LocalPath))
	// Compression suffix survives the rename.
	assert.Equal(t, "reads_1.fastq.gz", filepath.Base(second.LocalPath))
	assert.Equal(t, CompressionGzip, second.Compression)
}

func TestFetchInsideIngestDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "counts.tsv")
	require.NoError(t, os.WriteFile(existing, []byte("gene\ts1\nTP53\t10\n"), 0o644))

	f := NewFetcher(dir)
	ff, err := f.Fetch(context.Background(), SourceDescriptor{Kind: SourceLocalPath, Location: existing})
	require.NoError(t, err)

	assert.Equal(t, existing, ff.LocalPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetchInline(t *testing.T) {
	f := NewFetcher(t.TempDir())
	ff, err := f.Fetch(context.Background(), SourceDescriptor{
		Kind: SourceInline,
		Data: []byte(">seq1\nACGT\n"),
		Name: "pasted.fasta",
	})
	require.NoError(t, err)
	assert.Equal(t, "pasted.fasta", ff.OriginalName)
	assert.EqualValues(t, 11, ff.SizeBytes)
}

func TestFetchBucketURIRejected(t *testing.T) {
	f := NewFetcher(t.TempDir())
	_, err := f.Fetch(context.Background(), SourceDescriptor{Kind: SourceS3URI, Location: "s3://bucket/key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud fetch")
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    string
		wantFormat string
		wantMinCfd float64
	}{
		{
			name:       "extension and content agree",
			filename:   "variants.vcf",
			content:    "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n",
			wantFormat: "VCF",
			wantMinCfd: 0.95,
		},
		{
			name:       "content overrides wrong extension",
			filename:   "data.txt",
			content:    ">seq1\nACGTACGT\n>seq2\nTTTT\n",
			wantFormat: "FASTA",
			wantMinCfd: 0.6,
		},
		{
			name:       "fastq structure",
			filename:   "reads.fq",
			content:    "@r1\nACGT\n+\nIIII\n@r2\nGGCC\n+\nIIII\n",
			wantFormat: "FASTQ",
			wantMinCfd: 0.95,
		},
		{
			name:       "bed from content",
			filename:   "regions.dat",
			content:    "chr1\t100\t200\nchr1\t300\t400\nchr2\t10\t20\n",
			wantFormat: "BED",
			wantMinCfd: 0.75,
		},
		{
			name:       "tsv fallback",
			filename:   "table.data",
			content:    "gene\tsample1\tsample2\nTP53\t10\t20\nBRCA1\t5\t8\n",
			wantFormat: "TSV",
			wantMinCfd: 0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			ff := &FetchedFile{LocalPath: path, OriginalName: tt.filename}
			format := DetectFormat(ff)

			assert.Equal(t, tt.wantFormat, format.Name)
			assert.GreaterOrEqual(t, format.Confidence, tt.wantMinCfd)
		})
	}
}

func TestOpenReaderGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reads.fastq.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("@r1\nACGT\n+\nIIII\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	ff := &FetchedFile{LocalPath: path, OriginalName: "reads.fastq.gz", Compression: CompressionGzip}
	head, err := readHead(ff, 1024)
	require.NoError(t, err)
	assert.Equal(t, "@r1\nACGT\n+\nIIII\n", string(head))
}
