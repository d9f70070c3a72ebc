package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/bioapis"
	"github.com/bioagentlabs/bioagent/pkg/memory"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

const apiTimeout = time.Minute

func registerDatabaseTools(reg *tools.Registry, deps *Deps) error {
	specs := []struct {
		spec    tools.Spec
		handler tools.HandlerFunc
	}{
		{
			spec: tools.Spec{
				Name:        "query_uniprot",
				Description: "Search UniProt for proteins, or fetch one entry by accession.",
				Params: map[string]tools.Param{
					"query":     {Type: "string", Description: "Free-text query (gene symbol, protein name)"},
					"accession": {Type: "string", Description: "UniProt accession for a direct lookup, e.g. P04637"},
					"limit":     {Type: "integer", Description: "Maximum search results", Default: 5},
				},
				Timeout: apiTimeout,
			},
			handler: deps.queryUniProt,
		},
		{
			spec: tools.Spec{
				Name:        "query_ncbi_gene",
				Description: "Look up a gene in NCBI Gene by symbol and organism.",
				Params: map[string]tools.Param{
					"symbol":   {Type: "string", Description: "Gene symbol, e.g. TP53", Required: true},
					"organism": {Type: "string", Description: "Organism scientific name", Default: "Homo sapiens"},
				},
				Timeout: apiTimeout,
			},
			handler: deps.queryNCBIGene,
		},
		{
			spec: tools.Spec{
				Name:        "query_interpro",
				Description: "List the InterPro domain annotations on a protein by UniProt accession.",
				Params: map[string]tools.Param{
					"accession": {Type: "string", Description: "UniProt accession", Required: true},
				},
				Timeout: apiTimeout,
			},
			handler: deps.queryInterPro,
		},
	}

	for _, s := range specs {
		if err := reg.Register(s.spec, s.handler); err != nil {
			return err
		}
	}
	return nil
}

type uniprotArgs struct {
	Query     string `mapstructure:"query"`
	Accession string `mapstructure:"accession"`
	Limit     int    `mapstructure:"limit"`
}

func (d *Deps) queryUniProt(ctx context.Context, args map[string]any) (string, error) {
	var p uniprotArgs
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}

	if p.Accession != "" {
		record, err := d.UniProt.Fetch(ctx, p.Accession)
		if err != nil {
			return "", err
		}
		d.recordProtein(record.GeneNames, record.Accession)

		var b strings.Builder
		writeProtein(&b, record)
		return b.String(), nil
	}

	if p.Query == "" {
		return "", fmt.Errorf("either query or accession is required")
	}

	records, err := d.UniProt.Search(ctx, p.Query, p.Limit)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return fmt.Sprintf("No UniProt entries match %q.", p.Query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d UniProt entries:\n\n", len(records))
	for i := range records {
		writeProtein(&b, &records[i])
		b.WriteString("\n")
	}
	return b.String(), nil
}

// recordProtein mirrors a fetched protein into the knowledge graph so
// later turns can connect findings to it.
func (d *Deps) recordProtein(geneNames []string, accession string) {
	if d.Memory == nil || d.Memory.Graph() == nil || len(geneNames) == 0 {
		return
	}
	_, _ = d.Memory.UpsertEntity(geneNames[0], memory.EntityProtein, map[string]string{"uniprot": accession})
}

type ncbiGeneArgs struct {
	Symbol   string `mapstructure:"symbol"`
	Organism string `mapstructure:"organism"`
}

func (d *Deps) queryNCBIGene(ctx context.Context, args map[string]any) (string, error) {
	var p ncbiGeneArgs
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}

	record, err := d.NCBI.Lookup(ctx, p.Symbol, p.Organism)
	if err != nil {
		return "", err
	}

	if d.Memory != nil && d.Memory.Graph() != nil {
		_, _ = d.Memory.UpsertEntity(record.Symbol, memory.EntityGene, map[string]string{"ncbi_gene": record.GeneID})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s — %s\n", record.Symbol, record.Description)
	fmt.Fprintf(&b, "NCBI Gene ID: %s\n", record.GeneID)
	if record.Organism != "" {
		fmt.Fprintf(&b, "Organism: %s\n", record.Organism)
	}
	if record.Chromosome != "" {
		fmt.Fprintf(&b, "Location: chr%s %s\n", record.Chromosome, record.MapLocation)
	}
	if len(record.Aliases) > 0 {
		fmt.Fprintf(&b, "Aliases: %s\n", strings.Join(record.Aliases, ", "))
	}
	if record.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", record.Summary)
	}
	return b.String(), nil
}

func (d *Deps) queryInterPro(ctx context.Context, args map[string]any) (string, error) {
	accession := argString(args, "accession")
	domains, err := d.InterPro.Domains(ctx, accession)
	if err != nil {
		return "", err
	}
	if len(domains) == 0 {
		return fmt.Sprintf("No InterPro annotations found for %s.", accession), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d InterPro entries on %s:\n", len(domains), accession)
	for _, domain := range domains {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", domain.Accession, domain.Name, domain.Type)
	}
	return b.String(), nil
}

func writeProtein(b *strings.Builder, r *bioapis.ProteinRecord) {
	fmt.Fprintf(b, "%s — %s\n", r.Accession, r.Name)
	if len(r.GeneNames) > 0 {
		fmt.Fprintf(b, "Genes: %s\n", strings.Join(r.GeneNames, ", "))
	}
	if r.Organism != "" {
		fmt.Fprintf(b, "Organism: %s\n", r.Organism)
	}
	if r.Length > 0 {
		fmt.Fprintf(b, "Length: %d aa\n", r.Length)
	}
	if r.Reviewed {
		b.WriteString("Status: reviewed (Swiss-Prot)\n")
	}
	if r.Function != "" {
		fmt.Fprintf(b, "Function: %s\n", r.Function)
	}
}
