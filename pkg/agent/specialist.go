package agent

// Specialist ids. The general specialist is the fallback when routing
// is inconclusive or multi-agent mode is off.
const (
	SpecialistGeneral    = "general"
	SpecialistPipeline   = "pipeline"
	SpecialistStats      = "stats"
	SpecialistLiterature = "literature"
	SpecialistResearch   = "research"
	SpecialistQC         = "qc"
)

// Specialist describes one domain agent: its prompt, its tool
// allowlist, and the keywords the router matches before asking an LLM.
type Specialist struct {
	ID          string
	Name        string
	Description string
	Prompt      string
	Tools       []string
	Keywords    []string
}

// Specialists returns the built-in roster, general last. Order matters
// to the keyword router: earlier specialists win ties.
func Specialists() []Specialist {
	return []Specialist{
		{
			ID:          SpecialistPipeline,
			Name:        "Pipeline Engineer",
			Description: "Designs and runs bioinformatics workflows over ingested files: QC, alignment, quantification, variant calling.",
			Prompt: `You are a bioinformatics pipeline engineer. You work with the files the user
has ingested into the workspace: sequencing reads, alignments, variant calls,
annotation. Inspect file profiles before proposing work, state which tools a
step needs, and validate inputs before claiming an analysis can run. Prefer
standard tooling (fastqc, bwa, STAR, samtools, gatk, bcftools) and name exact
commands where useful.`,
			Tools: []string{
				"ingest_file", "list_datasets", "profile_dataset", "validate_analysis",
				"execute_code", "save_artifact", "read_artifact",
			},
			Keywords: []string{
				"fastq", "bam", "vcf", "align", "alignment", "pipeline", "workflow",
				"ingest", "quality control", "trimming", "variant calling", "samtools",
			},
		},
		{
			ID:          SpecialistStats,
			Name:        "Statistical Analyst",
			Description: "Runs statistical and expression analyses: differential expression, enrichment, clustering, power.",
			Prompt: `You are a biostatistician. You analyze count matrices, DEG tables and sample
metadata. Always check experimental design (replicates, confounding, batch)
before modeling, state the test and multiple-testing correction you use, and
report effect sizes with adjusted p-values. Use DESeq2/edgeR/limma conventions
for RNA-seq and say explicitly when an analysis is underpowered.`,
			Tools: []string{
				"list_datasets", "profile_dataset", "validate_analysis",
				"execute_code", "save_artifact", "read_artifact", "query_knowledge_graph",
			},
			Keywords: []string{
				"differential expression", "deseq", "edger", "limma", "p-value", "pvalue",
				"statistics", "statistical", "enrichment", "cluster", "pca", "normalize",
				"count matrix", "deg",
			},
		},
		{
			ID:          SpecialistLiterature,
			Name:        "Literature Curator",
			Description: "Searches and synthesizes published literature across PubMed, Semantic Scholar, Europe PMC, CrossRef and bioRxiv.",
			Prompt: `You are a literature curator. Search multiple sources, deduplicate, and
synthesize findings with numbered citations. Distinguish peer-reviewed work
from preprints, note citation counts and publication years, and never invent
references. When the user asks for papers, return ranked results with DOIs.`,
			Tools: []string{
				"search_literature", "get_paper", "citation_network",
				"recommend_papers", "find_open_access", "format_citations",
			},
			Keywords: []string{
				"paper", "papers", "literature", "publication", "pubmed", "preprint",
				"citation", "cite", "doi", "review", "published",
			},
		},
		{
			ID:          SpecialistResearch,
			Name:        "Database Researcher",
			Description: "Queries biological databases: UniProt, NCBI, Ensembl, InterPro, and the session knowledge graph.",
			Prompt: `You are a biological database researcher. Answer questions about genes,
proteins, variants and pathways by querying authoritative databases rather
than from memory. Report canonical identifiers (HGNC symbol, UniProt
accession, rsID) alongside names, and record what you learn in the knowledge
graph so later turns can build on it.`,
			Tools: []string{
				"query_uniprot", "query_ncbi_gene", "query_interpro",
				"query_knowledge_graph", "add_knowledge", "search_literature",
			},
			Keywords: []string{
				"gene", "protein", "uniprot", "ncbi", "ensembl", "interpro", "domain",
				"pathway", "function", "variant", "rsid", "annotation",
			},
		},
		{
			ID:          SpecialistQC,
			Name:        "Quality Reviewer",
			Description: "Reviews specialist output for factual and methodological problems.",
			Prompt: `You review a draft answer from another analyst. Check: claimed identifiers
and statistics against the conversation's tool outputs, methodological
soundness, and overstated certainty. Do not rewrite the draft. Reply with a
short list of concrete problems, or "OK" when there are none.`,
			Tools:    []string{},
			Keywords: nil,
		},
		{
			ID:          SpecialistGeneral,
			Name:        "Research Assistant",
			Description: "General bioinformatics assistant with access to every tool.",
			Prompt: `You are a bioinformatics research assistant. You can search literature,
query biological databases, ingest and profile data files, run code, and
store results as artifacts. Ground claims in tool output, cite sources, and
keep answers concise and technical.`,
			Tools:    nil, // nil allowlist = every registered tool
			Keywords: nil,
		},
	}
}

// SpecialistByID looks up a roster entry.
func SpecialistByID(id string) (Specialist, bool) {
	for _, s := range Specialists() {
		if s.ID == id {
			return s, true
		}
	}
	return Specialist{}, false
}
