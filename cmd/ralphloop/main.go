// Command ralphloop runs an AI coding agent in a loop until it reports
// completion or an iteration cap is hit.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"ralphloop/internal/agent"
	"ralphloop/internal/config"
	"ralphloop/internal/loop"
	"ralphloop/internal/loop/tui"
	"ralphloop/internal/prompt"
	"ralphloop/internal/sessions"
	"ralphloop/internal/templates"
)

// cliConfig holds the parsed CLI configuration for a ralphloop run.
type cliConfig struct {
	workdir string
	mode    string
	prompt  string
	project string

	agentName  string
	configPath string
	smartModel string
	fastModel  string
	maxIter    int
	posture    string

	interactive bool
	liveView    bool
	verbose     bool
	inspect     bool
}

func parseFlags() cliConfig {
	var cfg cliConfig

	flag.StringVar(&cfg.workdir, "workdir", ".", "directory to run the loop in")
	flag.StringVar(&cfg.mode, "mode", "build", "workflow mode: plan or build")
	flag.StringVar(&cfg.prompt, "prompt", "", "custom prompt used verbatim instead of the mode template")
	flag.StringVar(&cfg.project, "project", "", "project name substituted into templates as projects/<name>")
	flag.StringVar(&cfg.agentName, "agent", "", "agent to drive: opencode or claude-code")
	flag.StringVar(&cfg.configPath, "config", "", "explicit config file path (must exist)")
	flag.StringVar(&cfg.smartModel, "smart-model", "", "model for heavy reasoning")
	flag.StringVar(&cfg.fastModel, "fast-model", "", "model for cheap calls")
	flag.IntVar(&cfg.maxIter, "max-iterations", 0, "safety cap on loop iterations")
	flag.StringVar(&cfg.posture, "permission-posture", "", "agent permission posture: allow-all or ask")
	flag.BoolVar(&cfg.interactive, "interactive", false, "run the agent attached to the terminal, once, outside the loop")
	flag.BoolVar(&cfg.liveView, "tui", false, "show a live progress view instead of plain output")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print agent output excerpts after each iteration")
	flag.BoolVar(&cfg.inspect, "inspect", false, "print recorded sessions with exported transcripts as JSON and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ralphloop [flags]\n")
		fmt.Fprintf(os.Stderr, "       ralphloop init [dir]\n\n")
		fmt.Fprintf(os.Stderr, "ralphloop repeatedly invokes a coding agent with the same prompt until\n")
		fmt.Fprintf(os.Stderr, "the agent outputs the completion marker or the iteration cap is hit.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	return cfg
}

// cliOverrides maps explicitly set flags onto a config layer. flag.Visit
// only walks flags the user actually passed, so defaults never masquerade
// as overrides.
func cliOverrides(cfg cliConfig) config.Partial {
	var p config.Partial
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "smart-model":
			p.SmartModel = &cfg.smartModel
		case "fast-model":
			p.FastModel = &cfg.fastModel
		case "agent":
			p.Agent = &cfg.agentName
		case "max-iterations":
			p.MaxIterations = &cfg.maxIter
		case "permission-posture":
			p.PermissionPosture = &cfg.posture
		}
	})
	return p
}

// runInit scaffolds the prompt templates into dir, skipping files that
// already exist.
func runInit(dir string) error {
	if dir == "" {
		dir = "."
	}
	for name, content := range templates.Files() {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("ralphloop: %s already exists, skipping\n", path)
			continue
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Printf("ralphloop: wrote %s\n", path)
	}
	return nil
}

func run(ctx context.Context, cli cliConfig) (int, error) {
	info, err := os.Stat(cli.workdir)
	if err != nil {
		return 1, fmt.Errorf("workdir %q: %w", cli.workdir, err)
	}
	if !info.IsDir() {
		return 1, fmt.Errorf("workdir %q is not a directory", cli.workdir)
	}

	mode, err := prompt.ParseMode(cli.mode)
	if err != nil {
		return 1, err
	}

	cfg, err := config.Resolve(config.ResolveOptions{
		Workdir:      cli.workdir,
		ExplicitPath: cli.configPath,
		Overrides:    cliOverrides(cli),
	})
	if err != nil {
		return 1, err
	}

	store, err := sessions.Open(cli.workdir)
	if err != nil {
		return 1, err
	}

	// Agent selection: CLI flag, then environment, then config file.
	envAgent := os.Getenv(agent.EnvAgent)
	explicit := cli.agentName
	if explicit == "" && envAgent == "" {
		explicit = cfg.Agent
	}
	agentType, err := agent.ResolveType(explicit, envAgent)
	if err != nil {
		return 1, err
	}

	adapterOpts := agent.Options{
		Dir:     cli.workdir,
		Posture: cfg.PermissionPosture,
	}
	adapter, err := agent.New(ctx, agentType, adapterOpts)
	if err != nil {
		return 1, err
	}

	if cli.inspect {
		return runInspect(ctx, store, adapter, adapterOpts)
	}

	models := adapter.DefaultModels()
	if cfg.SmartModel != "" {
		models.Smart = cfg.SmartModel
	}
	if cfg.FastModel != "" {
		models.Fast = cfg.FastModel
	}

	// Resolved eagerly so a missing template or placeholder problem fails
	// before any agent runs; the loop re-resolves at each iteration.
	promptData := prompt.Data{
		SmartModel: models.Smart,
		FastModel:  models.Fast,
		Project:    cli.project,
	}
	promptText, err := prompt.Resolve(cli.workdir, mode, cli.prompt, promptData)
	if err != nil {
		return 1, err
	}

	if cli.interactive {
		res, err := adapter.RunInteractive(ctx, promptText, models.Smart, agent.RunOptions{})
		if err != nil {
			return 1, err
		}
		return res.ExitCode, nil
	}

	tracing, err := loop.NewTracingObserver(ctx)
	if err != nil {
		return 1, err
	}
	if tracing != nil {
		defer func() { _ = tracing.Shutdown(context.Background()) }()
	}

	loopCfg := loop.Config{
		Agent:     adapter,
		AgentName: agentType.String(),
		Mode:      mode,
		Prompt:    promptText,
		ResolvePrompt: func() (string, error) {
			return prompt.Resolve(cli.workdir, mode, cli.prompt, promptData)
		},
		Model:         models.Smart,
		MaxIterations: cfg.MaxIterations,
		Verbose:       cli.verbose,
		Store:         store,
		Output:        os.Stdout,
	}

	// A nil *TracingObserver must not leak into the interface as a non-nil
	// value.
	var extraObserver loop.ProgressObserver
	if tracing != nil {
		extraObserver = tracing
	}

	var summary *loop.RunSummary
	if cli.liveView {
		summary, err = tui.Run(ctx, loopCfg, extraObserver)
	} else {
		loopCfg.Observer = extraObserver
		summary, err = loop.Run(ctx, loopCfg)
	}
	if err != nil {
		return 1, err
	}
	return summary.State.ExitCode(), nil
}

// runInspect prints every recorded session with its exported transcript.
// Entries recorded by a different agent than the current one are resolved
// through their own adapter.
func runInspect(ctx context.Context, store *sessions.Store, current agent.Adapter, opts agent.Options) (int, error) {
	entries := sessions.Inspect(store, func(name string) (sessions.Exporter, error) {
		if name == current.Metadata().Name {
			return current, nil
		}
		t, err := agent.ParseType(name)
		if err != nil {
			return nil, err
		}
		a, err := agent.New(ctx, t, opts)
		if err != nil {
			return nil, err
		}
		return a, nil
	})

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return 1, fmt.Errorf("encoding inspect output: %w", err)
	}
	fmt.Println(string(out))
	return 0, nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		dir := ""
		if len(os.Args) > 2 {
			dir = os.Args[2]
		}
		if err := runInit(dir); err != nil {
			fmt.Fprintf(os.Stderr, "ralphloop: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cli := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ralphloop: %v\n", err)
	}
	os.Exit(code)
}
