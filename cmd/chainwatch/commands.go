package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chainwatch/internal/chat"
	"chainwatch/internal/dashboard"
	"chainwatch/internal/risk"
)

func (cli *CLI) newRegionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions the risk service monitors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			regions := cli.container.Catalog
			_ = regions.Load(cmd.Context())
			cli.print(cli.format.Regions(regions.Regions(), regions.Default(), regions.Source(), regions.Detail))
			return nil
		},
	}
}

func (cli *CLI) newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the assessment the risk service currently holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := cli.container.Client.CurrentState(cmd.Context())
			if err != nil {
				return err
			}
			cli.print(cli.format.State(state))
			return nil
		},
	}
}

func (cli *CLI) newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show a one-line summary of the latest assessment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := cli.container.Client.Summary(cmd.Context())
			if err != nil {
				return err
			}
			cli.print(cli.format.Summary(summary))
			return nil
		},
	}
}

func (cli *CLI) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the risk service is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := cli.container.Client
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			cli.print(cli.format.Health(health, client.BaseURL()))
			if !health.Healthy() {
				return fmt.Errorf("risk service reported %q", health.Status)
			}
			return nil
		},
	}
}

func (cli *CLI) newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [region]",
		Short: "Run a fresh risk analysis for a region",
		Long: `Run a fresh risk analysis. Without a region argument an interactive
picker is shown on a terminal; otherwise the first catalog region is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			controller := cli.container.NewController()
			if err := cli.container.Warmup(ctx, controller); err != nil {
				return err
			}

			region := cli.container.Catalog.Default()
			switch {
			case len(args) == 1:
				region = risk.Region(strings.TrimSpace(args[0]))
			case isTTY():
				picked, err := pickRegion(cli.container.Catalog.Regions(), region)
				if err != nil {
					return err
				}
				region = picked
			}
			if err := controller.SelectRegion(region); err != nil {
				return err
			}

			fmt.Fprintf(cli.errOut, "Analyzing %s...\n", region)
			err := controller.Analyze(ctx)
			cli.print(cli.format.Analysis(controller.Snapshot()))
			if err != nil {
				return errors.New("analysis failed")
			}
			return nil
		},
	}
}

func (cli *CLI) newChatCmd() *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask the assistant about the latest assessment",
		Long: `Ask one question, or start an interactive session when no question is
given. The assistant answers in the context of the region currently on display.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			controller := cli.container.NewController()
			if err := cli.container.Warmup(ctx, controller); err != nil {
				return err
			}
			if region != "" {
				if err := controller.SelectRegion(risk.Region(region)); err != nil {
					return err
				}
			}
			session := cli.container.NewChatSession(controller)
			session.Open()

			if len(args) == 0 {
				return runChatREPL(ctx, cli, session)
			}

			question := strings.Join(args, " ")
			outcome, err := session.Send(ctx, question)
			if err != nil {
				return err
			}
			transcript := session.Transcript()
			cli.print(cli.format.Reply(transcript[len(transcript)-1].Content))
			if outcome == chat.OutcomeFallback {
				return errors.New("chat request failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&region, "region", "r", "", "Region to discuss when no assessment is held")
	return cmd
}

func (cli *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := cli.container.Warmup(ctx, nil); err != nil {
				return err
			}
			server, err := dashboard.NewServer(cli.container)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		},
	}
	cmd.Flags().String("host", "", "Listen host (overrides server.host)")
	cmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	return cmd
}
