package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-ecm/pkg/ecm"
	"github.com/tendant/simple-ecm/pkg/ecm/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one command line and releases the repository afterwards,
// whether the command succeeded or not.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	defer a.close()

	rootCmd := NewRootCommand(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

// app holds the repository shared by the subcommands of one invocation.
type app struct {
	configFile string
	client     string
	verbose    bool

	stderr io.Writer
	logger *slog.Logger
	svc    ecm.Service
	closer io.Closer
}

// service builds the repository on first use.
func (a *app) service(cmd *cobra.Command) (ecm.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	opts := []config.Option{}
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	opts = append(opts, config.WithEnv())
	if a.verbose {
		opts = append(opts, config.WithLogLevel("debug"))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(a.logger)
	a.logger.Debug("configuration loaded",
		"store", cfg.Store.Type, "blob", cfg.Blob.Type, "languages", cfg.Languages.Supported)

	svc, closer, err := cfg.BuildService(cmd.Context(), ecm.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build service: %w", err)
	}
	a.svc, a.closer = svc, closer
	return svc, nil
}

func (a *app) close() {
	if a.closer == nil {
		return
	}
	if err := a.closer.Close(); err != nil && a.logger != nil {
		a.logger.Warn("failed to close repository", "err", err)
	}
	a.closer, a.svc = nil, nil
}

func NewRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ecmctl",
		Short: "Operate an ECM content repository",
		Long: `ecmctl manages a path-addressed content repository: folders, documents,
HTML pages, notifications and their versions.

The repository is selected with DATABASE_URL and STORAGE_URL (a .env file in
the working directory is honoured) or with a YAML file passed via --config.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&a.client, "client", "default", "client id")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewProvisionCommand(a))
	rootCmd.AddCommand(NewMkdirCommand(a))
	rootCmd.AddCommand(NewPutCommand(a))
	rootCmd.AddCommand(NewGetCommand(a))
	rootCmd.AddCommand(NewListCommand(a))
	rootCmd.AddCommand(NewFindCommand(a))
	rootCmd.AddCommand(NewChildrenCommand(a))
	rootCmd.AddCommand(NewDeleteCommand(a))
	rootCmd.AddCommand(NewVersionsCommand(a))
	rootCmd.AddCommand(NewDeleteVersionCommand(a))
	rootCmd.AddCommand(NewRegisterTypesCommand(a))

	return rootCmd
}
