package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/rizzcoach/internal/analysis"
	"github.com/ashureev/rizzcoach/internal/capture"
)

var version = "dev"

type deps struct {
	newClient func(ctx context.Context, opts analysis.Options) (analysis.Client, error)
	getenv    func(string) string
}

func defaultDeps() deps {
	return deps{newClient: analysis.Select, getenv: os.Getenv}
}

type globalFlags struct {
	apiKey   string
	proxyURL string
	model    string
	timeout  time.Duration
	maxBytes int64
}

func newRootCmd(d deps) *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "coachctl",
		Short:         "Dating coach CLI: analyze profile and chat screenshots",
		Long:          "coachctl sends a profile or chat screenshot to the analysis collaborator and prints the structured coaching result as JSON.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.apiKey, "api-key", d.getenv("GEMINI_API_KEY"), "Gemini API key (direct mode)")
	pf.StringVar(&g.proxyURL, "proxy-url", d.getenv("ANALYSIS_PROXY_URL"), "coaching server base URL (proxied mode)")
	pf.StringVar(&g.model, "model", analysis.DefaultModel, "model name for direct mode")
	pf.DurationVar(&g.timeout, "timeout", 60*time.Second, "analysis timeout")
	pf.Int64Var(&g.maxBytes, "max-bytes", capture.DefaultMaxBytes, "maximum image size in bytes")

	rootCmd.AddCommand(
		newVersionCmd(),
		newProfileCmd(d, g),
		newChatCmd(d, g),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

func (g *globalFlags) client(ctx context.Context, d deps, logOut io.Writer) (analysis.Client, error) {
	return d.newClient(ctx, analysis.Options{
		APIKey:   g.apiKey,
		Model:    g.model,
		ProxyURL: g.proxyURL,
		Timeout:  g.timeout,
		Logger:   slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
