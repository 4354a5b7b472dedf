package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reviewrag/internal/domain"
	"reviewrag/internal/tui"
)

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "reviewrag",
		Short: "Answer questions about a business from its customer reviews",
		Long: `reviewrag indexes a dataset of customer reviews and retrieves the reviews
most relevant to a question, scoped to one business and optionally to
positive or negative ratings.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to YAML config file (default ./config.yaml or ~/.config/reviewrag/config.yaml)")
	pf.StringVar(&flags.indexDir, "index-dir", "", "index persistence directory")
	pf.BoolVar(&flags.forceInit, "force-init", false, "delete and rebuild the index before use")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newIndexCmd(flags),
		newSearchCmd(flags),
		newSummarizeCmd(flags),
		newChatCmd(flags),
	)
	return root
}

func newIndexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the review index if it is missing or incomplete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags, false)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			if err := a.manager.EnsureReady(ctx); err != nil {
				return fmt.Errorf("index failed: %w", err)
			}
			n, err := a.manager.Count(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Index ready: %d vectors in %s\n", n, a.cfg.Index.Dir)
			return nil
		},
	}
}

type queryFlags struct {
	business string
	query    string
	k        int
	rating   string
}

func (q *queryFlags) register(cmd *cobra.Command, withQuery bool) {
	cmd.Flags().StringVarP(&q.business, "business", "b", "", "business name to scope the search to")
	if withQuery {
		cmd.Flags().StringVarP(&q.query, "query", "q", "", "free-text query (defaults to the business name)")
	}
	cmd.Flags().IntVar(&q.k, "k", 0, "number of reviews (defaults to retrieval.k)")
	cmd.Flags().StringVar(&q.rating, "rating", "", "rating category: positive, negative or none")
	_ = cmd.MarkFlagRequired("business")
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Print the reviews of a business most relevant to a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			category, err := domain.ParseRatingCategory(q.rating)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags, false)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			if err := a.manager.EnsureReady(ctx); err != nil {
				return fmt.Errorf("index failed: %w", err)
			}
			results, err := a.service.Search(ctx, q.business, q.query, q.k, category)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if len(results) == 0 {
				cmd.Printf("No relevant reviews found for %s.\n", q.business)
				return nil
			}
			cmd.Printf("%d relevant reviews found for %s:\n\n", len(results), q.business)
			for i, r := range results {
				cmd.Printf("  [%d] score=%.3f rating=%s\n", i+1, r.Score, r.Metadata.Rating)
				cmd.Printf("      %s\n\n", r.Text)
			}
			return nil
		},
	}
	q.register(cmd, true)
	return cmd
}

func newSummarizeCmd(flags *globalFlags) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the reviews of a business",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			category, err := domain.ParseRatingCategory(q.rating)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags, false)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			if err := a.manager.EnsureReady(ctx); err != nil {
				return fmt.Errorf("index failed: %w", err)
			}
			summary, err := a.service.Summarize(ctx, q.business, q.k, category)
			if errors.Is(err, domain.ErrNothingToSummarize) {
				cmd.Printf("Nothing to summarize for %s.\n", q.business)
				return nil
			}
			if err != nil {
				return fmt.Errorf("summarize failed: %w", err)
			}
			cmd.Println(strings.TrimSpace(summary))
			return nil
		},
	}
	q.register(cmd, false)
	return cmd
}

func newChatCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about businesses interactively",
		Long: `Opens an interactive session: choose a business, then ask questions answered
from its most relevant reviews. Enter b to pick another business, q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags, true)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.manager.EnsureReady(cmd.Context()); err != nil {
				return fmt.Errorf("index failed: %w", err)
			}
			a.log.Info("starting chat", zap.Int("k", a.cfg.Retrieval.K))
			_, err = tea.NewProgram(tui.New(a.service, timeout), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "time limit for one question")
	return cmd
}
