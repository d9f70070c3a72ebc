// Package handlers binds the registered tool names to their
// implementations: literature search, file ingestion, memory access,
// reference database lookups, and code execution.
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/bioagentlabs/bioagent/pkg/bioapis"
	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/ingest"
	"github.com/bioagentlabs/bioagent/pkg/literature"
	"github.com/bioagentlabs/bioagent/pkg/memory"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

// Deps carries the session-scoped services the handlers operate on.
type Deps struct {
	Cfg       *config.Config
	Memory    *memory.Memory
	Datasets  *ingest.Registry
	Fetcher   *ingest.Fetcher
	Lit       *literature.Orchestrator
	Citations *literature.CitationManager
	UniProt   *bioapis.UniProtClient
	NCBI      *bioapis.NCBIGeneClient
	InterPro  *bioapis.InterProClient
}

// NewDeps wires the default service set for a session.
func NewDeps(cfg *config.Config, mem *memory.Memory, datasets *ingest.Registry) *Deps {
	return &Deps{
		Cfg:       cfg,
		Memory:    mem,
		Datasets:  datasets,
		Fetcher:   ingest.NewFetcher(cfg.IngestedDir()),
		Lit:       defaultOrchestrator(cfg),
		Citations: literature.NewCitationManager(literature.NatureStyle{}),
		UniProt:   bioapis.NewUniProtClient(),
		NCBI:      bioapis.NewNCBIGeneClient(cfg.NCBIAPIKey, cfg.NCBIEmail),
		InterPro:  bioapis.NewInterProClient(),
	}
}

func defaultOrchestrator(cfg *config.Config) *literature.Orchestrator {
	sources := []literature.Source{
		literature.NewPubMed(cfg.NCBIAPIKey, cfg.NCBIEmail),
		literature.NewSemanticScholar(cfg.S2APIKey),
		literature.NewEuropePMC(),
		literature.NewCrossRef(cfg.NCBIEmail),
		literature.NewBioRxiv(),
	}
	return literature.NewOrchestrator(sources, literature.NewUnpaywall(cfg.NCBIEmail))
}

// RegisterAll registers every tool the specialists reference.
func RegisterAll(reg *tools.Registry, deps *Deps) error {
	groups := []func(*tools.Registry, *Deps) error{
		registerLiteratureTools,
		registerIngestTools,
		registerMemoryTools,
		registerDatabaseTools,
		registerCodeTools,
	}
	for _, register := range groups {
		if err := register(reg, deps); err != nil {
			return err
		}
	}
	return nil
}

// decodeArgs maps validated arguments onto a typed parameter struct.
// ValidateArgs has already coerced values to the declared schema types,
// so decode failures here are programming errors in the spec.
func decodeArgs(args map[string]any, out any) error {
	if err := mapstructure.Decode(args, out); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return nil
}

// Typed argument accessors for handlers with one or two loose
// parameters. ValidateArgs has already coerced values to the declared
// schema types, so failed assertions mean absent optionals.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argInt(args map[string]any, key string) int {
	n, _ := args[key].(int)
	return n
}

func argStringSlice(args map[string]any, key string) []string {
	raw, _ := args[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func renderJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render result: %w", err)
	}
	return string(data), nil
}
