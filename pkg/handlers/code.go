package handlers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/stream"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

// plotExtensions are the figure files the runner reports after a script
// finishes.
var plotExtensions = map[string]bool{".png": true, ".svg": true, ".pdf": true, ".jpg": true}

const codeOutputCap = 50_000

func registerCodeTools(reg *tools.Registry, deps *Deps) error {
	spec := tools.Spec{
		Name:        "execute_code",
		Description: "Run a Python script in the workspace. The working directory contains the ingested datasets under data/ingested. Figures saved to disk are reported back.",
		Params: map[string]tools.Param{
			"code":    {Type: "string", Description: "Python source to execute", Required: true},
			"timeout": {Type: "integer", Description: "Execution timeout in seconds", Default: 300},
		},
		Timeout:         5 * time.Minute,
		AllowTimeoutArg: true,
	}
	return reg.Register(spec, tools.HandlerFunc(deps.executeCode))
}

func (d *Deps) executeCode(ctx context.Context, args map[string]any) (string, error) {
	code := argString(args, "code")

	scriptDir := filepath.Join(d.Cfg.Workspace, "scratch")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare scratch dir: %w", err)
	}

	script, err := os.CreateTemp(scriptDir, "run-*.py")
	if err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	scriptPath := script.Name()
	defer func() { _ = os.Remove(scriptPath) }()

	if _, err := script.WriteString(code); err != nil {
		_ = script.Close()
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	if err := script.Close(); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}

	before, err := snapshotPlots(d.Cfg.Workspace)
	if err != nil {
		return "", err
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "python3", scriptPath)
	cmd.Dir = d.Cfg.Workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	outText := truncateOutput(stdout.String())
	errText := truncateOutput(stderr.String())
	plots := newPlots(d.Cfg.Workspace, before)

	if pub := stream.PublisherFromContext(ctx); pub != nil {
		pub.Publish(stream.CodeOutput(outText, errText, plots, elapsed))
	}

	var b strings.Builder
	if outText != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", outText)
	}
	if errText != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", errText)
	}
	if len(plots) > 0 {
		fmt.Fprintf(&b, "figures written: %s\n", strings.Join(plots, ", "))
	}

	if runErr != nil {
		// Non-zero exit is a result, not a dispatch failure: the agent
		// reads the traceback and revises the code.
		fmt.Fprintf(&b, "exit error: %v\n", runErr)
		return b.String(), nil
	}
	if b.Len() == 0 {
		return "(no output)", nil
	}
	return b.String(), nil
}

// snapshotPlots records the figure files currently present so the run
// can report only the new ones.
func snapshotPlots(dir string) (map[string]bool, error) {
	seen := make(map[string]bool)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && plotExtensions[strings.ToLower(filepath.Ext(path))] {
			seen[path] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	return seen, nil
}

func newPlots(dir string, before map[string]bool) []string {
	var plots []string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && plotExtensions[strings.ToLower(filepath.Ext(path))] && !before[path] {
			plots = append(plots, path)
		}
		return nil
	})
	return plots
}

func truncateOutput(s string) string {
	return tools.TruncatePreview(strings.TrimRight(s, "\n"), codeOutputCap)
}
