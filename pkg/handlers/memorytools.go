package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/bioagentlabs/bioagent/pkg/memory"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

func registerMemoryTools(reg *tools.Registry, deps *Deps) error {
	specs := []struct {
		spec    tools.Spec
		handler tools.HandlerFunc
	}{
		{
			spec: tools.Spec{
				Name:        "save_artifact",
				Description: "Persist a named artifact (code, data, figure, report, workflow, note) for later retrieval.",
				Params: map[string]tools.Param{
					"name":        {Type: "string", Description: "Artifact file name", Required: true},
					"content":     {Type: "string", Description: "Artifact content", Required: true},
					"type":        {Type: "string", Description: "Artifact kind", Default: memory.ArtifactNote, Enum: []string{memory.ArtifactCode, memory.ArtifactData, memory.ArtifactFigure, memory.ArtifactReport, memory.ArtifactWorkflow, memory.ArtifactNote, memory.ArtifactOther}},
					"description": {Type: "string", Description: "What the artifact is for"},
					"tags":        {Type: "array", Description: "Free-form tags"},
				},
			},
			handler: deps.saveArtifact,
		},
		{
			spec: tools.Spec{
				Name:        "read_artifact",
				Description: "Read a saved artifact by id, or list matching artifacts when given a query instead.",
				Params: map[string]tools.Param{
					"id":    {Type: "string", Description: "Artifact id"},
					"query": {Type: "string", Description: "Substring to match against artifact names and descriptions"},
					"type":  {Type: "string", Description: "Restrict listing to one artifact kind"},
				},
			},
			handler: deps.readArtifact,
		},
		{
			spec: tools.Spec{
				Name:        "query_knowledge_graph",
				Description: "Look up entities recorded in the session knowledge graph, optionally with their relationships.",
				Params: map[string]tools.Param{
					"name":                  {Type: "string", Description: "Entity name substring"},
					"type":                  {Type: "string", Description: "Entity type filter (gene, protein, variant, pathway, ...)"},
					"include_relationships": {Type: "boolean", Description: "Include connected entities", Default: true},
				},
			},
			handler: deps.queryKnowledgeGraph,
		},
		{
			spec: tools.Spec{
				Name:        "add_knowledge",
				Description: "Record an entity in the knowledge graph, optionally linked to another entity.",
				Params: map[string]tools.Param{
					"name":         {Type: "string", Description: "Entity name", Required: true},
					"type":         {Type: "string", Description: "Entity type", Required: true},
					"identifiers":  {Type: "object", Description: "Stable identifiers, e.g. {\"uniprot\": \"P04637\"}"},
					"related_name": {Type: "string", Description: "Name of an entity to link to"},
					"related_type": {Type: "string", Description: "Type of the related entity"},
					"relation":     {Type: "string", Description: "Relationship label, e.g. encodes, interacts_with"},
				},
			},
			handler: deps.addKnowledge,
		},
	}

	for _, s := range specs {
		if err := reg.Register(s.spec, s.handler); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deps) saveArtifact(ctx context.Context, args map[string]any) (string, error) {
	if d.Memory == nil {
		return "", fmt.Errorf("memory is disabled for this session")
	}

	artifact, err := d.Memory.SaveArtifact(
		argString(args, "name"),
		[]byte(argString(args, "content")),
		argString(args, "type"),
		argString(args, "description"),
		argStringSlice(args, "tags"),
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved artifact %q (id %s, type %s).", artifact.Name, artifact.ID, artifact.Type), nil
}

func (d *Deps) readArtifact(ctx context.Context, args map[string]any) (string, error) {
	if d.Memory == nil {
		return "", fmt.Errorf("memory is disabled for this session")
	}

	if id := argString(args, "id"); id != "" {
		artifact, content, err := d.Memory.ReadArtifact(id)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Artifact %q (%s)\n\n%s", artifact.Name, artifact.Type, content), nil
	}

	artifacts := d.Memory.ListArtifacts(argString(args, "type"), argString(args, "query"))
	if len(artifacts) == 0 {
		return "No matching artifacts.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d matching artifacts:\n", len(artifacts))
	for _, a := range artifacts {
		fmt.Fprintf(&b, "- %s: %s (%s)", a.ID, a.Name, a.Type)
		if a.Description != "" {
			fmt.Fprintf(&b, " — %s", a.Description)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (d *Deps) queryKnowledgeGraph(ctx context.Context, args map[string]any) (string, error) {
	if d.Memory == nil || d.Memory.Graph() == nil {
		return "", fmt.Errorf("the knowledge graph is disabled for this session")
	}

	includeRel := true
	if v, ok := args["include_relationships"].(bool); ok {
		includeRel = v
	}

	results := d.Memory.Graph().Query(argString(args, "name"), argString(args, "type"), includeRel)
	if len(results) == 0 {
		return "No matching entities in the knowledge graph.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d matching entities:\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "- %s (%s)", r.Entity.Name, r.Entity.Type)
		if len(r.Entity.Identifiers) > 0 {
			ids := make([]string, 0, len(r.Entity.Identifiers))
			for kind, value := range r.Entity.Identifiers {
				ids = append(ids, kind+":"+value)
			}
			fmt.Fprintf(&b, " [%s]", strings.Join(ids, ", "))
		}
		b.WriteString("\n")
		for _, n := range r.Neighbors {
			arrow := "->"
			if !n.Outgoing {
				arrow = "<-"
			}
			fmt.Fprintf(&b, "    %s %s %s (%s)\n", arrow, n.Relation, n.Entity.Name, n.Entity.Type)
		}
	}
	return b.String(), nil
}

func (d *Deps) addKnowledge(ctx context.Context, args map[string]any) (string, error) {
	if d.Memory == nil || d.Memory.Graph() == nil {
		return "", fmt.Errorf("the knowledge graph is disabled for this session")
	}

	identifiers := make(map[string]string)
	if raw, ok := args["identifiers"].(map[string]any); ok {
		for kind, value := range raw {
			if s, ok := value.(string); ok {
				identifiers[kind] = s
			}
		}
	}

	entity, err := d.Memory.UpsertEntity(argString(args, "name"), argString(args, "type"), identifiers)
	if err != nil {
		return "", err
	}

	relatedName := argString(args, "related_name")
	relation := argString(args, "relation")
	if relatedName == "" || relation == "" {
		return fmt.Sprintf("Recorded %s (%s).", entity.Name, entity.Type), nil
	}

	relatedType := argString(args, "related_type")
	if relatedType == "" {
		relatedType = memory.EntityOther
	}
	related, err := d.Memory.UpsertEntity(relatedName, relatedType, nil)
	if err != nil {
		return "", err
	}
	if err := d.Memory.Graph().Link(entity.ID, related.ID, relation, "add_knowledge"); err != nil {
		return "", err
	}
	return fmt.Sprintf("Recorded %s (%s) %s %s (%s).", entity.Name, entity.Type, relation, related.Name, related.Type), nil
}
