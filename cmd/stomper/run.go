package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nlabs/stomper/internal/assistant"
	"github.com/nlabs/stomper/internal/config"
	"github.com/nlabs/stomper/internal/events"
	"github.com/nlabs/stomper/internal/learning"
	"github.com/nlabs/stomper/internal/patch"
	"github.com/nlabs/stomper/internal/sandbox"
	"github.com/nlabs/stomper/internal/toolrunner"
	"github.com/nlabs/stomper/internal/types"
	"github.com/nlabs/stomper/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve static-analysis findings for the repository",
	Long: `run collects findings from the configured tools against the
repository's working tree, then drives one isolated sub-workflow per
affected file — invoking the configured coding assistant, re-verifying
findings, running tests, and committing the result — until every file
is resolved, exhausts its attempts, or the run is canceled.

Exit status is zero only if the session completed with every file
resolved; a non-zero status covers both a fatal startup error and a
session that completed with one or more files still failing.`,
	RunE: runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.StringSlice("tools", nil, "analysis tools to run (default: from config, falls back to golangci-lint)")
	flags.String("strategy", "", "prompt strategy: minimal, normal, detailed, verbose, or adaptive")
	flags.Int("max-errors-per-iteration", 0, "cap on findings considered per file per attempt (0: use config default)")
	flags.Int("max-attempts-per-file", 0, "retry ceiling per file (0: use config default)")
	flags.Bool("run-tests", true, "run tests after a file verifies clean before committing")
	flags.String("test-mode", "", "full, quick, final, or none")
	flags.Bool("use-isolation", true, "run each file's attempt in its own git worktree sandbox")
	flags.Int("max-parallel-files", 0, "bounded concurrency across files (0: use config default)")
	flags.Bool("continue-on-error", true, "keep processing remaining files after one fails")
	flags.StringSlice("file-filters", nil, "only process files whose path contains one of these substrings")
	flags.StringSlice("co-authors", nil, "Co-Authored-By trailers stored in the session config (commits made by the file sub-workflow do not include them)")
	flags.String("assistant-backend", "", "subprocess or anthropic")
	flags.String("assistant-command", "claude", "CLI binary invoked by the subprocess backend")
	flags.Duration("assistant-timeout", 0, "per-invocation timeout (0: use config default)")
	flags.String("assistant-model", "claude-sonnet-4-5-20250929", "model name used by the anthropic backend")
	flags.String("learning-data-path", "", "path to the learning store's JSON file")
	flags.String("sandbox-root", "", "root directory sandboxes are created under")
	flags.Int("failed-sandbox-retention", 0, "keep this many failed sandboxes on disk for post-mortem")
	flags.Float64("tool-rate-per-second", 0, "cap on tool invocations per second (0: use config default)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if err := bindFlags(v, cmd); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if rootDir, _ := cmd.Flags().GetString("root-dir"); rootDir != "" {
		cfg.RootDir = rootDir
	}
	if cfg.RootDir == "" {
		cfg.RootDir = "."
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}
	if err := cfg.Validate(registry.Available()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	adapters, err := registry.Resolve(cfg.Tools)
	if err != nil {
		return fmt.Errorf("resolving tools: %w", err)
	}

	mgr, err := sandbox.NewManager(sandbox.Config{
		SandboxRoot:   cfg.SandboxRoot,
		ParentRepo:    cfg.RootDir,
		KeepOnFailure: cfg.FailedSandboxRetention > 0,
	})
	if err != nil {
		return fmt.Errorf("initializing sandbox manager: %w", err)
	}
	if err := mgr.CleanupStale(cmd.Context(), cfg.FailedSandboxRetention); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: stale sandbox cleanup: %v\n", err)
	}

	store, err := learning.New(learning.NewConfig(cfg.LearningDataPath), learningLogger(cmd))
	if err != nil {
		return fmt.Errorf("opening learning store: %w", err)
	}

	assistantCommand, _ := cmd.Flags().GetString("assistant-command")
	backend, err := buildAssistantBackend(cfg, assistantCommand)
	if err != nil {
		return fmt.Errorf("configuring assistant backend: %w", err)
	}
	breaker := assistant.NewCircuitBreaker(5, 2, 30*time.Second)
	invoker := assistant.New(backend, store, breaker, cfg.AssistantTimeout)

	reporter := buildReporter(cfg)
	orch := workflow.NewOrchestrator(mgr, adapters, patch.NewBroker(), store, invoker, workflow.GoTestRunner{}, reporter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := orch.Run(ctx, cfg.SessionConfig())
	if err != nil {
		return fmt.Errorf("session failed to start: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d succeeded, %d failed, %d finding(s) fixed\n",
		session.ID, len(session.Successes), len(session.Failures), session.TotalFindingsFixed)

	if session.Status != types.SessionCompleted {
		return fmt.Errorf("session finished with status %s", session.Status)
	}
	return nil
}

// buildRegistry registers every adapter stomper ships with, wrapping
// each in the rate limiter configured for the session when
// tool_rate_per_second is positive.
func buildRegistry(cfg config.Config) (*toolrunner.Registry, error) {
	registry := toolrunner.NewRegistry()

	var limiter *rate.Limiter
	if cfg.ToolRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ToolRatePerSecond), 1)
	}

	for _, adapter := range []toolrunner.Adapter{toolrunner.GolangciLint{}, toolrunner.GoVet{}} {
		if err := registry.Register(toolrunner.RateLimited(adapter, limiter)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildAssistantBackend selects the coding-assistant backend named by
// cfg.AssistantBackend: "subprocess" shells out to command as an
// external CLI, "anthropic" drives the model directly via the SDK.
func buildAssistantBackend(cfg config.Config, command string) (assistant.Backend, error) {
	switch cfg.AssistantBackend {
	case "", "subprocess":
		return assistant.NewSubprocessBackend(command, "--print", "--dangerously-skip-permissions"), nil
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY must be set to use the anthropic assistant backend")
		}
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		return assistant.NewAnthropicBackend(&client, cfg.AssistantModel), nil
	default:
		return nil, fmt.Errorf("unknown assistant backend %q", cfg.AssistantBackend)
	}
}

// buildReporter picks a colored, spinner-animated console reporter for
// an interactive terminal, falling back to one plain line per event
// for CI logs, pipes, and non_interactive/--non-interactive.
func buildReporter(cfg config.Config) events.Reporter {
	interactive := isatty.IsTerminal(os.Stdout.Fd()) && !cfg.NonInteractive
	if interactive {
		return events.NewConsoleReporter(os.Stdout, true)
	}
	return events.NewPlainReporter(os.Stdout)
}

func learningLogger(cmd *cobra.Command) func(format string, args ...any) {
	return func(format string, args ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), "learning store: "+format+"\n", args...)
	}
}

// flagConfigKeys maps each dashed CLI flag name to the underscored
// config key config.Load's viper instance expects, since cobra's flag
// convention and mapstructure's tag convention disagree on separator.
var flagConfigKeys = map[string]string{
	"tools":                     "tools",
	"strategy":                  "strategy",
	"max-errors-per-iteration":  "max_errors_per_iteration",
	"max-attempts-per-file":     "max_attempts_per_file",
	"run-tests":                 "run_tests",
	"test-mode":                 "test_mode",
	"use-isolation":             "use_isolation",
	"max-parallel-files":        "max_parallel_files",
	"continue-on-error":         "continue_on_error",
	"file-filters":              "file_filters",
	"co-authors":                "co_authors",
	"assistant-backend":         "assistant_backend",
	"assistant-timeout":         "assistant_timeout",
	"assistant-model":           "assistant_model",
	"learning-data-path":        "learning_data_path",
	"sandbox-root":              "sandbox_root",
	"failed-sandbox-retention":  "failed_sandbox_retention",
	"tool-rate-per-second":      "tool_rate_per_second",
}

// bindFlags binds only the flags the user actually set on the command
// line, so config.Load's defaults-then-file-then-env overlay isn't
// clobbered by a flag's unset zero value.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		key, ok := flagConfigKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = err
		}
	})
	if n, _ := cmd.Flags().GetBool("non-interactive"); n {
		v.Set("non_interactive", true)
	}
	return bindErr
}
