package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research/tools"
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))
	cfg := config.Load()

	var opts options

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long: `deep-research expands a question into a tree of web searches, extracts learnings
from the results, and writes a Markdown report with sources.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			opts.topicSet = cmd.Flags().Changed("topic")
			opts.breadthSet = cmd.Flags().Changed("breadth")
			opts.depthSet = cmd.Flags().Changed("depth")

			models, err := clients.NewModels(ctx, cfg)
			if err != nil {
				return err
			}
			search, err := tools.NewSearchService(cfg)
			if err != nil {
				return err
			}

			app := &cli{
				in:     bufio.NewReader(os.Stdin),
				out:    cmd.OutOrStdout(),
				cfg:    cfg,
				models: models,
				search: search,
				logger: slog.Default(),
			}
			return app.run(ctx, opts)
		},
	}

	rootCmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "The research question")
	rootCmd.Flags().IntVarP(&opts.breadth, "breadth", "b", cfg.DefaultBreadth, "Number of queries on the first level")
	rootCmd.Flags().IntVarP(&opts.depth, "depth", "d", cfg.DefaultDepth, "Number of levels to descend")
	rootCmd.Flags().StringVarP(&opts.output, "output", "o", cfg.OutputPath, "Where to write the report")
	rootCmd.Flags().BoolVar(&opts.skipFeedback, "skip-feedback", false, "Do not ask clarifying questions")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
