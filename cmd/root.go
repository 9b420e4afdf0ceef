// Package cmd defines the CLI commands of the synapse executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/app"
	"github.com/JakeFAU/synapse-search/internal/config"
	"github.com/JakeFAU/synapse-search/internal/crawler"
)

// Runtime is the application surface the commands use. Tests inject a fake.
type Runtime interface {
	Run(ctx context.Context) error
	CrawlURL(ctx context.Context, rawURL string, depth int, outbound bool) (crawler.Result, error)
	FetchPage(ctx context.Context, rawURL string) (crawler.Page, error)
	Search(ctx context.Context, query string, limit int) ([]crawler.Article, error)
	Seed(ctx context.Context) ([]crawler.Source, error)
	Reset(ctx context.Context, articles, sources bool) error
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config) (Runtime, error) {
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type runtimeKey struct{}

// newRootCmd builds the command tree. The runtime built for the invoked
// subcommand is stored in *rt so the caller can close it.
func newRootCmd(rt *Runtime) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "synapse",
		Short: "A continuously crawling news search engine.",
		Long: `synapse crawls configured seed sources on a schedule, indexes the
articles it finds and serves full-text search, a news feed and live crawl
events over HTTP.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			built, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			*rt = built
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, built))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); SYNAPSE_* env vars override it")

	cmd.AddCommand(
		newServeCmd(),
		newCrawlCmd(),
		newFetchCmd(),
		newSearchCmd(),
		newSeedCmd(),
		newResetCmd(),
	)
	return cmd
}

func resolveRuntime(ctx context.Context) (Runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(Runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// execute runs the command line args and closes the runtime afterwards, also
// when the command failed.
func execute(ctx context.Context, args []string, out io.Writer) error {
	var rt Runtime
	root := newRootCmd(&rt)
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	if rt != nil {
		if cerr := rt.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = fmt.Errorf("close application: %w", cerr)
		}
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
