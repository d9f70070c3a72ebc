// Command bioagent is the CLI for the bioinformatics research agent.
//
// Usage:
//
//	bioagent chat                          interactive session
//	bioagent chat --query "..."            one-shot question
//	bioagent serve --addr :8080            SSE gateway
//	bioagent ingest data/counts.csv        register a dataset
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/coordinator"
	"github.com/bioagentlabs/bioagent/pkg/embedder"
	"github.com/bioagentlabs/bioagent/pkg/handlers"
	"github.com/bioagentlabs/bioagent/pkg/ingest"
	"github.com/bioagentlabs/bioagent/pkg/llms"
	"github.com/bioagentlabs/bioagent/pkg/logger"
	"github.com/bioagentlabs/bioagent/pkg/memory"
	"github.com/bioagentlabs/bioagent/pkg/server"
	"github.com/bioagentlabs/bioagent/pkg/stream"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Chat    ChatCmd    `cmd:"" default:"1" help:"Talk to the agent (REPL, or one-shot with --query)."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP/SSE gateway."`
	Ingest  IngestCmd  `cmd:"" help:"Ingest and profile a data file."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Workspace string `help:"Workspace directory (overrides BIOAGENT_WORKSPACE)." type:"path"`
	Model     string `help:"Model name (overrides BIOAGENT_MODEL)."`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"warn"`
	Quiet     bool   `short:"q" help:"Suppress progress output; print only the final answer."`
}

// session bundles the wired services for one process.
type session struct {
	cfg      *config.Config
	coord    *coordinator.Coordinator
	mem      *memory.Memory
	datasets *ingest.Registry
	deps     *handlers.Deps
}

// buildSession wires config, provider, memory, tools and the
// coordinator.
func buildSession(cli *CLI) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cli.Workspace != "" {
		cfg.Workspace = cli.Workspace
		cfg.ResultsDir = filepath.Join(cfg.Workspace, "results")
	}
	if cli.Model != "" {
		cfg.Model = cli.Model
		cfg.SpecialistModel = cli.Model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.IngestedDir(), cfg.ArtifactsDir(), cfg.MemoryDir(), cfg.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare %s: %w", dir, err)
		}
	}

	provider, err := llms.NewAnthropicProvider(cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}

	mem := memory.New(cfg, provider, embedder.NewOllamaEmbedder())

	datasets, err := ingest.NewRegistry(cfg.RegistryPath())
	if err != nil {
		return nil, err
	}

	deps := handlers.NewDeps(cfg, mem, datasets)
	registry := tools.NewRegistry(tools.WithDefaultTimeout(cfg.ToolTimeout))
	if err := handlers.RegisterAll(registry, deps); err != nil {
		return nil, err
	}

	return &session{
		cfg:      cfg,
		coord:    coordinator.New(cfg, provider, registry, mem),
		mem:      mem,
		datasets: datasets,
		deps:     deps,
	}, nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("bioagent %s\n", version)
	return nil
}

// ChatCmd runs an interactive session or a one-shot query.
type ChatCmd struct {
	Query       string `help:"One-shot question; exit after answering."`
	Complex     bool   `help:"Use the larger model for this session."`
	SaveSession string `name:"save-session" help:"Write the session transcript to this file on exit." type:"path"`
	LoadSession string `name:"load-session" help:"Resume a previously saved session." type:"path"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	sess, err := buildSession(cli)
	if err != nil {
		return err
	}

	if c.Complex {
		sess.cfg.Model = sess.cfg.ComplexModel
		sess.cfg.SpecialistModel = sess.cfg.ComplexModel
	}

	if c.LoadSession != "" {
		if err := sess.mem.LoadSession(c.LoadSession); err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.Query != "" {
		err = sess.ask(ctx, c.Query, cli.Quiet)
	} else {
		err = sess.repl(ctx, cli.Quiet)
	}

	if c.SaveSession != "" {
		if saveErr := sess.mem.SaveSession(c.SaveSession); saveErr != nil {
			fmt.Fprintf(os.Stderr, "failed to save session: %v\n", saveErr)
		}
	}
	return err
}

// ask runs one query through the coordinator, streaming progress to the
// terminal unless quiet.
func (s *session) ask(ctx context.Context, query string, quiet bool) error {
	broker := stream.NewBroker()
	turnCtx, pub := broker.Open(ctx, "cli")
	events := broker.Subscribe("cli")

	printDone := make(chan struct{})
	go func() {
		defer close(printDone)
		for ev := range events {
			if ev.Terminal() {
				return
			}
			if quiet {
				continue
			}
			switch ev.Type {
			case stream.EventThinking:
				fmt.Fprintf(os.Stderr, "... %v\n", ev.Payload["content"])
			case stream.EventToolStart:
				fmt.Fprintf(os.Stderr, "-> %v\n", ev.Payload["tool"])
			case stream.EventCodeOutput:
				if out, _ := ev.Payload["stdout"].(string); out != "" {
					fmt.Fprintln(os.Stderr, out)
				}
			}
		}
	}()

	answer, err := s.coord.Handle(turnCtx, query, pub)
	if err != nil {
		pub.Close(stream.ErrorEvent("turn failed", err.Error()))
		<-printDone
		return err
	}
	total := answer.Usage.InputTokens + answer.Usage.OutputTokens
	pub.Close(stream.Done(total, answer.Elapsed, pub.ToolsUsed()))
	<-printDone

	fmt.Println(answer.Text)

	if s.cfg.AutoSave {
		if path, saveErr := saveResult(s.cfg.ResultsDir, query, answer.Text); saveErr == nil && !quiet {
			fmt.Fprintf(os.Stderr, "saved to %s\n", path)
		}
	}
	return nil
}

func (s *session) repl(ctx context.Context, quiet bool) error {
	// Piped stdin gets no banner or prompt, just answers.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("bioagent - type a question, or 'exit' to quit.")
	}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := s.ask(ctx, line, quiet); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// ServeCmd starts the HTTP gateway.
type ServeCmd struct {
	Addr string `help:"Listen address." default:":8080"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	sess, err := buildSession(cli)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(sess.cfg, sess.coord, stream.NewBroker())
	fmt.Printf("bioagent gateway listening on %s\n", c.Addr)
	return srv.ListenAndServe(ctx, c.Addr)
}

// IngestCmd registers a file without starting a conversation.
type IngestCmd struct {
	Source string `arg:"" help:"Local path, URL, or raw sequence text."`
	Label  string `help:"Dataset label (defaults to the file name)."`
}

func (c *IngestCmd) Run(cli *CLI) error {
	sess, err := buildSession(cli)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetched, err := sess.deps.Fetcher.Fetch(ctx, ingest.DetectSource(c.Source))
	if err != nil {
		return err
	}
	profile, err := ingest.Profile(ctx, fetched)
	if err != nil {
		return err
	}
	entry, err := sess.datasets.Add(c.Label, profile)
	if err != nil {
		return err
	}

	fmt.Printf("Registered %q: %s, quality %s\n", entry.Label, profile.Format.Name, profile.OverallQuality)
	for _, flag := range profile.QualityFlags {
		fmt.Printf("  [%s] %s\n", flag.Severity, flag.Message)
	}
	for _, sg := range profile.Suggestions {
		fmt.Printf("  suggested: %s\n", sg.Name)
	}
	return nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// saveResult writes an answer to results/<timestamp>_<slug>.md.
func saveResult(dir, query, text string) (string, error) {
	slug := slugRe.ReplaceAllString(strings.ToLower(query), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	name := fmt.Sprintf("%s_%s.md", time.Now().Format("20060102-150405"), slug)
	path := filepath.Join(dir, name)

	content := fmt.Sprintf("# %s\n\n%s\n", query, text)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("bioagent"),
		kong.Description("Multi-agent bioinformatics research assistant"),
		kong.UsageOnError(),
	)

	logger.Init(logger.Options{Level: cli.LogLevel})

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
