package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chainwatch/internal/config"
	"chainwatch/internal/di"
	"chainwatch/internal/presentation/formatter"
)

// Version is set at build time.
var Version = "dev"

// CLI holds the command line interface state
type CLI struct {
	configPath string
	baseURL    string
	logLevel   string
	plain      bool

	out    io.Writer
	errOut io.Writer

	container *di.Container
	format    *formatter.Formatter
}

// isTTY checks if the current environment has a TTY available
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	cli := &CLI{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "chainwatch",
		Short: "Supply-chain risk monitor for shipping regions",
		Long: `chainwatch talks to the risk service to list monitored regions, run
risk analyses and ask the assistant about the latest assessment.

Examples:
  chainwatch regions
  chainwatch analyze Rotterdam
  chainwatch chat "What is the main risk factor?"
  chainwatch serve --port 8080`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: cli.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cli.cleanup()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cli.configPath, "config", "c", "", "Path to chainwatch.yaml")
	flags.StringVar(&cli.baseURL, "service-url", "", "Risk service base URL (overrides config)")
	flags.StringVar(&cli.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&cli.plain, "plain", false, "Disable colours and markdown styling")

	rootCmd.AddCommand(
		cli.newRegionsCmd(),
		cli.newStateCmd(),
		cli.newSummaryCmd(),
		cli.newHealthCmd(),
		cli.newAnalyzeCmd(),
		cli.newChatCmd(),
		cli.newServeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func (cli *CLI) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	opts := []config.Option{}
	if cli.configPath != "" {
		opts = append(opts, config.WithConfigPath(cli.configPath))
	}
	if cli.baseURL != "" {
		opts = append(opts, config.WithOverride("service.base_url", cli.baseURL))
	}
	for _, name := range []string{"host", "port"} {
		if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
			opts = append(opts, config.WithOverride("server."+name, flag.Value.String()))
		}
	}

	cfg, _, err := config.Load(opts...)
	if err != nil {
		return err
	}
	if cli.logLevel != "" {
		cfg.Observability.Logging.Level = cli.logLevel
	} else if cmd.Name() != "serve" {
		cfg.Observability.Logging.Level = "warn"
	}

	container, err := di.BuildContainer(cfg, di.WithLogOutput(cli.errOut))
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	cli.container = container

	plain := cli.plain || !isTTY()
	if plain {
		color.NoColor = true
	}
	cli.format = formatter.New(formatter.Options{Plain: plain})
	return nil
}

func (cli *CLI) cleanup() error {
	if cli.container == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return cli.container.Cleanup(ctx)
}

func (cli *CLI) print(s string) {
	fmt.Fprint(cli.out, s)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chainwatch %s\n", Version)
		},
	}
}
