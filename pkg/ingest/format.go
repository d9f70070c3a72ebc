package ingest

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"
)

// FormatCategory groups related file formats.
type FormatCategory string

const (
	CategorySequence   FormatCategory = "sequence"
	CategoryAlignment  FormatCategory = "alignment"
	CategoryVariant    FormatCategory = "variant"
	CategoryExpression FormatCategory = "expression"
	CategoryAnnotation FormatCategory = "annotation"
	CategoryRanges     FormatCategory = "ranges"
	CategoryStructure  FormatCategory = "structure"
	CategoryPhylogeny  FormatCategory = "phylogeny"
	CategoryTabular    FormatCategory = "tabular"
	CategoryImage      FormatCategory = "image"
	CategoryDocument   FormatCategory = "document"
	CategoryArchive    FormatCategory = "archive"
	CategoryOther      FormatCategory = "other"
)

// FileFormat describes a detected format.
type FileFormat struct {
	Name                string         `json:"name"`
	Category            FormatCategory `json:"category"`
	CanonicalExtension  string         `json:"canonical_extension"`
	IsBinary            bool           `json:"is_binary"`
	CompanionExtensions []string       `json:"expected_companion_extensions,omitempty"`
	Confidence          float64        `json:"detection_confidence"`
}

// extension → format table; content sniffing can override at lower
// confidence when the two disagree.
var extensionFormats = map[string]FileFormat{
	".fastq":   {Name: "FASTQ", Category: CategorySequence, CanonicalExtension: ".fastq"},
	".fq":      {Name: "FASTQ", Category: CategorySequence, CanonicalExtension: ".fastq"},
	".fasta":   {Name: "FASTA", Category: CategorySequence, CanonicalExtension: ".fasta", CompanionExtensions: []string{".fai"}},
	".fa":      {Name: "FASTA", Category: CategorySequence, CanonicalExtension: ".fasta", CompanionExtensions: []string{".fai"}},
	".fna":     {Name: "FASTA", Category: CategorySequence, CanonicalExtension: ".fasta"},
	".faa":     {Name: "FASTA", Category: CategorySequence, CanonicalExtension: ".fasta"},
	".vcf":     {Name: "VCF", Category: CategoryVariant, CanonicalExtension: ".vcf", CompanionExtensions: []string{".tbi", ".csi"}},
	".bcf":     {Name: "BCF", Category: CategoryVariant, CanonicalExtension: ".bcf", IsBinary: true, CompanionExtensions: []string{".csi"}},
	".bam":     {Name: "BAM", Category: CategoryAlignment, CanonicalExtension: ".bam", IsBinary: true, CompanionExtensions: []string{".bai"}},
	".sam":     {Name: "SAM", Category: CategoryAlignment, CanonicalExtension: ".sam"},
	".cram":    {Name: "CRAM", Category: CategoryAlignment, CanonicalExtension: ".cram", IsBinary: true, CompanionExtensions: []string{".crai"}},
	".bed":     {Name: "BED", Category: CategoryRanges, CanonicalExtension: ".bed"},
	".gff":     {Name: "GFF", Category: CategoryAnnotation, CanonicalExtension: ".gff3"},
	".gff3":    {Name: "GFF", Category: CategoryAnnotation, CanonicalExtension: ".gff3"},
	".gtf":     {Name: "GTF", Category: CategoryAnnotation, CanonicalExtension: ".gtf"},
	".csv":     {Name: "CSV", Category: CategoryTabular, CanonicalExtension: ".csv"},
	".tsv":     {Name: "TSV", Category: CategoryTabular, CanonicalExtension: ".tsv"},
	".txt":     {Name: "Text", Category: CategoryOther, CanonicalExtension: ".txt"},
	".xlsx":    {Name: "Excel", Category: CategoryTabular, CanonicalExtension: ".xlsx", IsBinary: true},
	".xls":     {Name: "Excel", Category: CategoryTabular, CanonicalExtension: ".xlsx", IsBinary: true},
	".pdb":     {Name: "PDB", Category: CategoryStructure, CanonicalExtension: ".pdb"},
	".cif":     {Name: "mmCIF", Category: CategoryStructure, CanonicalExtension: ".cif"},
	".nwk":     {Name: "Newick", Category: CategoryPhylogeny, CanonicalExtension: ".nwk"},
	".tree":    {Name: "Newick", Category: CategoryPhylogeny, CanonicalExtension: ".nwk"},
	".pdf":     {Name: "PDF", Category: CategoryDocument, CanonicalExtension: ".pdf", IsBinary: true},
	".png":     {Name: "PNG", Category: CategoryImage, CanonicalExtension: ".png", IsBinary: true},
	".jpg":     {Name: "JPEG", Category: CategoryImage, CanonicalExtension: ".jpg", IsBinary: true},
	".tar":     {Name: "Archive", Category: CategoryArchive, CanonicalExtension: ".tar", IsBinary: true},
	".zip":     {Name: "Archive", Category: CategoryArchive, CanonicalExtension: ".zip", IsBinary: true},
	".counts":  {Name: "CountMatrix", Category: CategoryExpression, CanonicalExtension: ".tsv"},
	".mtx":     {Name: "MatrixMarket", Category: CategoryExpression, CanonicalExtension: ".mtx"},
	".h5":      {Name: "HDF5", Category: CategoryExpression, CanonicalExtension: ".h5", IsBinary: true},
	".h5ad":    {Name: "AnnData", Category: CategoryExpression, CanonicalExtension: ".h5ad", IsBinary: true},
	".genbank": {Name: "GenBank", Category: CategoryAnnotation, CanonicalExtension: ".gb"},
	".gb":      {Name: "GenBank", Category: CategoryAnnotation, CanonicalExtension: ".gb"},
}

// DetectFormat resolves the format of a fetched file from its extension
// and a content sniff of the (decompressed) head. When the two disagree
// the content wins, at lower confidence.
func DetectFormat(ff *FetchedFile) FileFormat {
	byExt, extOK := formatFromExtension(ff.OriginalName)

	head, err := readHead(ff, 64*1024)
	if err != nil || len(head) == 0 {
		if extOK {
			byExt.Confidence = 0.7
			return byExt
		}
		return FileFormat{Name: "Unknown", Category: CategoryOther, Confidence: 0.1}
	}

	byContent, contentOK := formatFromContent(head)

	switch {
	case extOK && contentOK && byExt.Name == byContent.Name:
		byExt.Confidence = 0.95
		return byExt
	case contentOK && extOK:
		// Conflict: content wins at lower confidence.
		byContent.Confidence = 0.6
		return byContent
	case contentOK:
		byContent.Confidence = 0.75
		return byContent
	case extOK:
		byExt.Confidence = 0.7
		return byExt
	}

	return FileFormat{Name: "Unknown", Category: CategoryOther, Confidence: 0.1}
}

func formatFromExtension(name string) (FileFormat, bool) {
	lower := strings.ToLower(name)
	for _, suffix := range []string{".gz", ".bz2", ".zst", ".xz"} {
		lower = strings.TrimSuffix(lower, suffix)
	}
	f, ok := extensionFormats[filepath.Ext(lower)]
	return f, ok
}

// formatFromContent sniffs magic bytes and text structure.
func formatFromContent(head []byte) (FileFormat, bool) {
	// BAM magic (after gzip/BGZF decompression): "BAM\1".
	if len(head) >= 4 && string(head[:4]) == "BAM\x01" {
		return extensionFormats[".bam"], true
	}
	if len(head) >= 4 && string(head[:4]) == "%PDF" {
		return extensionFormats[".pdf"], true
	}

	text := string(head)
	lines := nonEmptyLines(text, 50)
	if len(lines) == 0 {
		return FileFormat{}, false
	}

	first := lines[0]
	switch {
	case strings.HasPrefix(first, "##fileformat=VCF"):
		return extensionFormats[".vcf"], true
	case strings.HasPrefix(first, "@HD") || strings.HasPrefix(first, "@SQ"):
		return extensionFormats[".sam"], true
	case strings.HasPrefix(first, "##gff-version"):
		return extensionFormats[".gff3"], true
	case strings.HasPrefix(first, ">"):
		return extensionFormats[".fasta"], true
	case strings.HasPrefix(first, "@") && len(lines) >= 4 && strings.HasPrefix(lines[2], "+"):
		return extensionFormats[".fastq"], true
	case looksLikeBED(lines):
		return extensionFormats[".bed"], true
	case looksLikeTabular(lines):
		if strings.Count(first, "\t") > strings.Count(first, ",") {
			return extensionFormats[".tsv"], true
		}
		return extensionFormats[".csv"], true
	}

	return FileFormat{}, false
}

func looksLikeBED(lines []string) bool {
	checked := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 || !isInteger(fields[1]) || !isInteger(fields[2]) {
			return false
		}
		checked++
		if checked >= 5 {
			break
		}
	}
	return checked > 0
}

func looksLikeTabular(lines []string) bool {
	if len(lines) < 2 {
		return false
	}
	sep := ","
	if strings.Count(lines[0], "\t") > strings.Count(lines[0], ",") {
		sep = "\t"
	}
	want := strings.Count(lines[0], sep)
	if want == 0 {
		return false
	}
	matches := 0
	for _, line := range lines[1:] {
		if strings.Count(line, sep) == want {
			matches++
		}
	}
	return matches >= (len(lines)-1)/2
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func nonEmptyLines(text string, max int) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= max {
			break
		}
	}
	return lines
}

// readHead reads up to n decompressed bytes from the file.
func readHead(ff *FetchedFile, n int) ([]byte, error) {
	r, err := OpenReader(ff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	buf := make([]byte, n)
	read, err := io.ReadFull(bufio.NewReader(r), buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}
