// The nimbus-server binary exposes the weather tools over MCP streamable HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"nimbus/internal/signals"
	"nimbus/internal/weather"
)

const shutdownGrace = 5 * time.Second

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
	return fmt.Sprintf("nimbus-server %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:   "nimbus-server",
		Short: "Weather tool server",
		Long:  "nimbus-server exposes weather lookup tools to MCP clients over streamable HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			addr, _ := cmd.Flags().GetString("addr")
			wttrURL, _ := cmd.Flags().GetString("wttr-url")
			logLevel, _ := cmd.Flags().GetString("log-level")
			return runServe(cmd, addr, wttrURL, logLevel)
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")
	root.Flags().String("addr", ":8000", "listen address")
	root.Flags().String("wttr-url", "https://wttr.in", "weather data endpoint")
	root.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return root
}

// newToolServer assembles the MCP server with both weather tools registered.
func newToolServer(wttrURL string, logger *slog.Logger) (*mcp.Server, error) {
	client := weather.NewClient(
		weather.WithBaseURL(wttrURL),
		weather.WithLogger(logger),
	)
	server := mcp.NewServer(&mcp.Implementation{Name: "nimbus-weather", Version: getVersion()}, nil)
	if err := weather.RegisterTools(server, client); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return server, nil
}

// newHandler mounts the MCP endpoint at /mcp.
func newHandler(server *mcp.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil))
	return mux
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServe(cmd *cobra.Command, addr, wttrURL, logLevel string) error {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))

	server, err := newToolServer(wttrURL, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), signals.ShutdownSignals()...)
	defer stop()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: newHandler(server),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving weather tools", "addr", addr, "path", "/mcp")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
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
//	go build -ldflags "-X main.version=1.0.0" -o nimbus-server ./cmd/nimbus-server
var version string

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
