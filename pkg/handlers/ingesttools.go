package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/ingest"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

func registerIngestTools(reg *tools.Registry, deps *Deps) error {
	specs := []struct {
		spec    tools.Spec
		handler tools.HandlerFunc
	}{
		{
			spec: tools.Spec{
				Name:        "ingest_file",
				Description: "Ingest a data file into the workspace: fetch it (local path, URL, or raw sequence text), detect its format, profile it, and register it under a label.",
				Params: map[string]tools.Param{
					"source": {Type: "string", Description: "Local path, http(s)/ftp URL, or raw sequence text", Required: true},
					"label":  {Type: "string", Description: "Name to register the dataset under (defaults to the file name)"},
				},
				Timeout: 10 * time.Minute,
			},
			handler: deps.ingestFile,
		},
		{
			spec: tools.Spec{
				Name:        "list_datasets",
				Description: "List the datasets registered in this workspace.",
				Params:      map[string]tools.Param{},
			},
			handler: deps.listDatasets,
		},
		{
			spec: tools.Spec{
				Name:        "profile_dataset",
				Description: "Show the full profile of a registered dataset: format, statistics, columns, quality flags and suggested analyses.",
				Params: map[string]tools.Param{
					"label": {Type: "string", Description: "Dataset label or original file name", Required: true},
				},
			},
			handler: deps.profileDataset,
		},
		{
			spec: tools.Spec{
				Name:        "validate_analysis",
				Description: "Check whether the registered datasets are sufficient for an analysis type, reporting missing inputs and suggested fixes.",
				Params: map[string]tools.Param{
					"analysis_type": {
						Type:        "string",
						Description: "The intended analysis",
						Required:    true,
						Enum: []string{
							ingest.AnalysisRNASeq,
							ingest.AnalysisVariantCalling,
							ingest.AnalysisDifferential,
							ingest.AnalysisEnrichment,
							ingest.AnalysisAlignment,
						},
					},
				},
			},
			handler: deps.validateAnalysis,
		},
	}

	for _, s := range specs {
		if err := reg.Register(s.spec, s.handler); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deps) ingestFile(ctx context.Context, args map[string]any) (string, error) {
	source := argString(args, "source")

	fetched, err := d.Fetcher.Fetch(ctx, ingest.DetectSource(source))
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}

	profile, err := ingest.Profile(ctx, fetched)
	if err != nil {
		return "", fmt.Errorf("profiling failed: %w", err)
	}

	entry, err := d.Datasets.Add(argString(args, "label"), profile)
	if err != nil {
		return "", fmt.Errorf("registration failed: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ingested %q as dataset %q.\n\n", fetched.OriginalName, entry.Label)
	writeProfileSummary(&b, profile)
	return b.String(), nil
}

func (d *Deps) listDatasets(ctx context.Context, args map[string]any) (string, error) {
	entries := d.Datasets.List()
	if len(entries) == 0 {
		return "No datasets registered. Use ingest_file to add one.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d registered datasets:\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s (%s, %s quality)\n",
			e.Label, e.Profile.File.OriginalName, e.Profile.Format.Name, e.Profile.OverallQuality)
	}
	return b.String(), nil
}

func (d *Deps) profileDataset(ctx context.Context, args map[string]any) (string, error) {
	label := argString(args, "label")
	entry, ok := d.Datasets.Get(label)
	if !ok {
		return "", fmt.Errorf("no dataset registered as %q; use list_datasets to see what is available", label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dataset %q\n\n", entry.Label)
	writeProfileSummary(&b, entry.Profile)

	if len(entry.Profile.Columns) > 0 {
		b.WriteString("\nColumns:\n")
		for _, col := range entry.Profile.Columns {
			fmt.Fprintf(&b, "- %s (%s, %d unique, %d null)\n", col.Name, col.Dtype, col.UniqueCount, col.NullCount)
		}
	}
	if entry.Profile.Preview != "" {
		fmt.Fprintf(&b, "\nPreview:\n%s\n", entry.Profile.Preview)
	}
	return b.String(), nil
}

func (d *Deps) validateAnalysis(ctx context.Context, args map[string]any) (string, error) {
	validation, err := ingest.ValidateForAnalysis(argString(args, "analysis_type"), d.Datasets.Profiles())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if validation.Ready {
		fmt.Fprintf(&b, "Datasets are ready for %s.\n", validation.AnalysisType)
	} else {
		fmt.Fprintf(&b, "Datasets are NOT ready for %s.\n", validation.AnalysisType)
	}

	for _, check := range validation.Checks {
		mark := "PASS"
		if !check.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", mark, check.Name, check.Message)
	}
	if len(validation.MissingInputs) > 0 {
		fmt.Fprintf(&b, "\nMissing inputs: %s\n", strings.Join(validation.MissingInputs, "; "))
	}
	if len(validation.Warnings) > 0 {
		fmt.Fprintf(&b, "\nWarnings:\n")
		for _, w := range validation.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	if len(validation.SuggestedFixes) > 0 {
		fmt.Fprintf(&b, "\nSuggested next steps:\n")
		for _, fix := range validation.SuggestedFixes {
			fmt.Fprintf(&b, "- %s\n", fix)
		}
	}
	return b.String(), nil
}

func writeProfileSummary(b *strings.Builder, p *ingest.FileProfile) {
	fmt.Fprintf(b, "Format: %s (%s, confidence %.2f)\n", p.Format.Name, p.Format.Category, p.Format.Confidence)
	fmt.Fprintf(b, "Size: %d bytes", p.File.SizeBytes)
	if p.File.Compression != "" && p.File.Compression != "none" {
		fmt.Fprintf(b, " (%s compressed)", p.File.Compression)
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "Quality: %s\n", p.OverallQuality)

	if len(p.Statistics) > 0 {
		if stats, err := renderJSON(p.Statistics); err == nil {
			fmt.Fprintf(b, "Statistics: %s\n", stats)
		}
	}
	for _, flag := range p.QualityFlags {
		fmt.Fprintf(b, "[%s] %s: %s\n", flag.Severity, flag.Code, flag.Message)
	}
	if len(p.MissingCompanions) > 0 {
		fmt.Fprintf(b, "Missing companion files: %s\n", strings.Join(p.MissingCompanions, ", "))
	}
	if len(p.Suggestions) > 0 {
		b.WriteString("Suggested analyses:\n")
		for _, s := range p.Suggestions {
			fmt.Fprintf(b, "- %s", s.Name)
			if len(s.Tools) > 0 {
				fmt.Fprintf(b, " (tools: %s)", strings.Join(s.Tools, ", "))
			}
			b.WriteString("\n")
		}
	}
}
