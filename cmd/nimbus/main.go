package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"nimbus/internal/banner"
	"nimbus/internal/brain"
	"nimbus/internal/catalog"
	"nimbus/internal/chat"
	"nimbus/internal/config"
	"nimbus/internal/domain"
	"nimbus/internal/extract"
	"nimbus/internal/llm"
	"nimbus/internal/reply"
	"nimbus/internal/retry"
	"nimbus/internal/signals"
)

// buildMeta holds version and build metadata (injectable via ldflags).
type buildMeta struct {
	Version string
	GoOS    string
	GoArch  string
}

func newBuildMeta(version, goos, goarch string) buildMeta {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return buildMeta{Version: version, GoOS: goos, GoArch: goarch}
}

func (m buildMeta) String() string {
	return fmt.Sprintf("nimbus %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:   "nimbus",
		Short: "Weather chat assistant",
		Long:  "Nimbus is a chat client that answers weather questions through remote tools.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			return runChat(cmd)
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")

	configCmd := &cobra.Command{Use: "config", Short: "Inspect or create the configuration file"}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("config %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server   %s\n", cfg.Server.URL)
			fmt.Fprintf(cmd.OutOrStdout(), "model    %s\n", cfg.Backend.Model)
			fmt.Fprintf(cmd.OutOrStdout(), "key env  %s\n", cfg.Backend.APIKeyEnv)
			return nil
		},
	}
	configCmd.AddCommand(initCmd, checkCmd)
	root.AddCommand(configCmd)

	return root
}

func configPath() string {
	if p := os.Getenv("NIMBUS_CONFIG"); p != "" {
		return p
	}
	return "nimbus.json"
}

// setupLogger builds the process logger from config. Unknown values fall back
// to text format at info level.
func setupLogger(cfg domain.InfraConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// connectFunc establishes the tool server session. Tests inject a fake.
var connectFunc = func(ctx context.Context, cfg domain.ServerConfig, logger *slog.Logger) (*catalog.Adapter, error) {
	return catalog.Connect(ctx, cfg, logger)
}

// bannerOpts is overridden by tests to capture output and skip delays.
var bannerOpts *banner.StartupOpts

// chatStreams are the interactive session's input and output. Tests replace
// them to script a conversation.
var (
	chatIn  io.Reader = os.Stdin
	chatOut io.Writer = os.Stdout
)

func runChat(cmd *cobra.Command) error {
	banner.Startup(getVersion(), bannerOpts)

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "  (no config file, using defaults)")
		cfg = config.Default()
	}

	logger := setupLogger(cfg.Infra, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), signals.ShutdownSignals()...)
	defer stop()

	adapter, err := connectFunc(ctx, cfg.Server, logger)
	if err != nil {
		return fmt.Errorf("cannot reach tool server at %s: %w", cfg.Server.URL, err)
	}
	defer adapter.Close()

	extractor, err := buildExtractor(cfg.Backend.RulesPath)
	if err != nil {
		return err
	}

	retrier := retry.New(retry.FromDomain(cfg.Retry))
	groq := llm.NewGroqBackend(cfg.Backend, retrier, logger)

	selector := brain.NewSelector(
		[]domain.Backend{groq, extractor},
		brain.WithLogger(logger),
	)
	dispatcher := brain.NewDispatcher(adapter, adapter.Catalog())

	loop := chat.NewLoop(
		selector,
		dispatcher,
		reply.NewFormatter(),
		adapter.Catalog(),
		cfg.Chat,
		chat.WithLogger(logger),
		chat.WithIO(chatIn, chatOut),
	)

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// buildExtractor loads the rule table from disk when configured, otherwise
// uses the built-in rules.
func buildExtractor(rulesPath string) (*extract.Extractor, error) {
	if rulesPath == "" {
		return extract.MustDefault(), nil
	}
	table, err := extract.LoadTable(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading rules %s: %w", rulesPath, err)
	}
	extractor, err := extract.New(table)
	if err != nil {
		return nil, fmt.Errorf("compiling rules %s: %w", rulesPath, err)
	}
	return extractor, nil
}

func getVersion() string {
	if version != "" {
		return version
	}
	b, err := os.ReadFile("VERSION")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(b))
}

// version is set at build time via ldflags, e.g.:
//
//	go build -ldflags "-X main.version=1.0.0" -o nimbus ./cmd/nimbus
var version string

// runApp runs the root command with the given args and returns the exit code.
func runApp(args []string) int {
	bm := newBuildMeta(version, "", "")
	if bm.Version == "" {
		bm.Version = getVersion()
	}
	root := newRootCommand(bm)
	root.SetArgs(args[1:])
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
