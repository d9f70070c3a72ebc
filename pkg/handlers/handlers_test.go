package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioagentlabs/bioagent/pkg/agent"
	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/ingest"
	"github.com/bioagentlabs/bioagent/pkg/memory"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

func testDeps(t *testing.T) (*Deps, *tools.Registry) {
	t.Helper()

	workspace := t.TempDir()
	cfg := &config.Config{
		Workspace:       workspace,
		EnableMemory:    true,
		EnableArtifacts: true,
		EnableKG:        true,
		SummaryRounds:   5,
		ContextBudget:   4000,
	}
	require.NoError(t, os.MkdirAll(cfg.IngestedDir(), 0o755))

	datasets, err := ingest.NewRegistry(cfg.RegistryPath())
	require.NoError(t, err)

	deps := NewDeps(cfg, memory.New(cfg, nil, nil), datasets)
	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg, deps))
	return deps, reg
}

func TestEverySpecialistToolIsRegistered(t *testing.T) {
	_, reg := testDeps(t)

	for _, def := range agent.Specialists() {
		for _, name := range def.Tools {
			assert.True(t, reg.Has(name), "specialist %s references unregistered tool %s", def.ID, name)
		}
	}
}

func TestIngestListProfileRoundTrip(t *testing.T) {
	deps, reg := testDeps(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "variants.vcf")
	vcf := "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" +
		"chr1\t100\trs1\tA\tG\t50\tPASS\t.\n"
	require.NoError(t, os.WriteFile(path, []byte(vcf), 0o644))

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "ingest_file",
		Args: map[string]any{"source": path, "label": "variants"},
	}, nil)
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "VCF")

	res = reg.Dispatch(context.Background(), tools.Invocation{ID: "2", Name: "list_datasets", Args: map[string]any{}}, nil)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "variants")

	res = reg.Dispatch(context.Background(), tools.Invocation{
		ID: "3", Name: "profile_dataset", Args: map[string]any{"label": "variants"},
	}, nil)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "Format: VCF")

	assert.Equal(t, 1, deps.Datasets.Len())
}

func TestProfileUnknownDatasetFails(t *testing.T) {
	_, reg := testDeps(t)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "profile_dataset", Args: map[string]any{"label": "nope"},
	}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "list_datasets")
}

func TestArtifactSaveAndRead(t *testing.T) {
	_, reg := testDeps(t)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "save_artifact",
		Args: map[string]any{
			"name":    "analysis.py",
			"content": "import pandas as pd\n",
			"type":    "code",
		},
	}, nil)
	require.False(t, res.IsError, res.Content)

	res = reg.Dispatch(context.Background(), tools.Invocation{
		ID: "2", Name: "read_artifact", Args: map[string]any{"query": "analysis"},
	}, nil)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "analysis.py")
}

func TestAddAndQueryKnowledge(t *testing.T) {
	_, reg := testDeps(t)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "add_knowledge",
		Args: map[string]any{
			"name":         "TP53",
			"type":         "gene",
			"identifiers":  map[string]any{"ncbi_gene": "7157"},
			"related_name": "p53 signaling",
			"related_type": "pathway",
			"relation":     "participates_in",
		},
	}, nil)
	require.False(t, res.IsError, res.Content)

	res = reg.Dispatch(context.Background(), tools.Invocation{
		ID: "2", Name: "query_knowledge_graph", Args: map[string]any{"name": "tp53"},
	}, nil)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "TP53")
	assert.Contains(t, res.Content, "participates_in")
}

func TestQueryInterProParsesMetadata(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [
			{"metadata": {"accession": "IPR011615", "name": "p53, DNA-binding domain", "type": "domain"}},
			{"metadata": {"accession": "IPR002117", "name": "p53 tumour suppressor family", "type": "family"}}
		]}`)
	}))
	defer stub.Close()

	deps, reg := testDeps(t)
	deps.InterPro.SetBase(stub.URL)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "query_interpro", Args: map[string]any{"accession": "P04637"},
	}, nil)
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "IPR011615")
	assert.Contains(t, res.Content, "DNA-binding domain")
}

func TestQueryInterProLegacyShape(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entry_subset": [
			{"accession": "IPR011615", "name": "p53, DNA-binding domain", "type": "domain"}
		]}`)
	}))
	defer stub.Close()

	deps, reg := testDeps(t)
	deps.InterPro.SetBase(stub.URL)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "query_interpro", Args: map[string]any{"accession": "P04637"},
	}, nil)
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "IPR011615")
}

func TestQueryUniProtByAccession(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"primaryAccession": "P04637",
			"entryType": "UniProtKB reviewed (Swiss-Prot)",
			"proteinDescription": {"recommendedName": {"fullName": {"value": "Cellular tumor antigen p53"}}},
			"genes": [{"geneName": {"value": "TP53"}}],
			"organism": {"scientificName": "Homo sapiens"},
			"sequence": {"length": 393},
			"comments": [{"commentType": "FUNCTION", "texts": [{"value": "Acts as a tumor suppressor."}]}]
		}`)
	}))
	defer stub.Close()

	deps, reg := testDeps(t)
	deps.UniProt.SetBase(stub.URL)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "query_uniprot", Args: map[string]any{"accession": "P04637"},
	}, nil)
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "Cellular tumor antigen p53")
	assert.Contains(t, res.Content, "TP53")
	assert.Contains(t, res.Content, "393 aa")

	// The fetched protein lands in the knowledge graph.
	hits := deps.Memory.Graph().Query("tp53", "", false)
	require.Len(t, hits, 1)
	assert.Equal(t, "P04637", hits[0].Entity.Identifiers["uniprot"])
}

func TestQueryNCBIGene(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/esearch.fcgi":
			fmt.Fprint(w, `{"esearchresult": {"idlist": ["7157"]}}`)
		default:
			fmt.Fprint(w, `{"result": {"7157": {
				"name": "TP53",
				"description": "tumor protein p53",
				"chromosome": "17",
				"maplocation": "17p13.1",
				"otheraliases": "P53, LFS1",
				"organism": {"scientificname": "Homo sapiens"},
				"summary": "This gene encodes a tumor suppressor protein."
			}}}`)
		}
	}))
	defer stub.Close()

	deps, reg := testDeps(t)
	deps.NCBI.SetBase(stub.URL)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "query_ncbi_gene", Args: map[string]any{"symbol": "TP53"},
	}, nil)
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "tumor protein p53")
	assert.Contains(t, res.Content, "17p13.1")
	assert.Contains(t, res.Content, "LFS1")
}

func TestValidateAnalysisRejectsUnknownType(t *testing.T) {
	_, reg := testDeps(t)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "validate_analysis", Args: map[string]any{"analysis_type": "metagenomics"},
	}, nil)
	assert.True(t, res.IsError)
	assert.Equal(t, tools.CodeInvalidArgument, res.Code)
}

func TestFormatCitationsEmptySession(t *testing.T) {
	_, reg := testDeps(t)

	res := reg.Dispatch(context.Background(), tools.Invocation{
		ID: "1", Name: "format_citations", Args: map[string]any{},
	}, nil)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "No papers have been cited")
}
