package memory

import (
	"regexp"
	"strings"
)

// Pattern rules for biological identifiers in tool output. These are
// deliberately conservative: a false entity pollutes the graph for the
// rest of the session.
var (
	// HGNC-style gene symbols: TP53, BRCA1, CDKN2A. Requires at least
	// one digit to cut down on all-caps English words.
	geneSymbolRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}[0-9][A-Z0-9]{0,3}\b`)

	// UniProt accessions: P04637, Q9Y6K9, A0A024R161.
	uniprotRe = regexp.MustCompile(`\b(?:[OPQ][0-9][A-Z0-9]{3}[0-9]|[A-NR-Z][0-9](?:[A-Z][A-Z0-9]{2}[0-9]){1,2})\b`)

	// dbSNP identifiers: rs7412.
	rsidRe = regexp.MustCompile(`\brs[0-9]{3,}\b`)
)

// geneSymbolStoplist holds frequent false positives the gene regex
// cannot avoid (sequencing platforms, file formats, units).
var geneSymbolStoplist = map[string]bool{
	"COVID19": true,
	"SARS2":   true,
	"RNA1":    true,
	"DNA1":    true,
	"CHR1":    true,
	"GRCH38":  true,
	"GRCH37":  true,
	"HG38":    true,
	"HG19":    true,
	"PHRED33": true,
	"UTF8":    true,
	"MD5":     true,
	"SHA256":  true,
	"R1":      true,
	"R2":      true,
	"L001":    true,
	"S4":      true,
}

// ExtractedEntity is one pattern hit.
type ExtractedEntity struct {
	Name        string
	Type        string
	Identifiers map[string]string
}

// ExtractEntities runs the pattern rules over text. Results are
// deduplicated, in first-occurrence order.
func ExtractEntities(text string) []ExtractedEntity {
	var out []ExtractedEntity
	seen := map[string]bool{}

	add := func(e ExtractedEntity) {
		key := e.Type + ":" + e.Name
		if !seen[key] {
			seen[key] = true
			out = append(out, e)
		}
	}

	for _, m := range uniprotRe.FindAllString(text, -1) {
		add(ExtractedEntity{
			Name:        m,
			Type:        EntityProtein,
			Identifiers: map[string]string{"uniprot": m},
		})
	}

	for _, m := range rsidRe.FindAllString(text, -1) {
		add(ExtractedEntity{
			Name:        m,
			Type:        EntityVariant,
			Identifiers: map[string]string{"dbsnp": strings.ToLower(m)},
		})
	}

	for _, m := range geneSymbolRe.FindAllString(text, -1) {
		if geneSymbolStoplist[m] || seen[EntityProtein+":"+m] {
			continue
		}
		add(ExtractedEntity{
			Name:        m,
			Type:        EntityGene,
			Identifiers: map[string]string{"symbol": m},
		})
	}

	return out
}
