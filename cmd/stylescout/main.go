// stylescout scans e-commerce pages for products matching a text query or a
// reference image, and can serve the same search over HTTP.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stylescout/stylescout-backend/internal/app"
	"github.com/stylescout/stylescout-backend/internal/config"
	"github.com/stylescout/stylescout-backend/internal/fetch"
	"github.com/stylescout/stylescout-backend/internal/server"
	"github.com/stylescout/stylescout-backend/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "stylescout",
		Short:         "Detect and rank product listings on e-commerce pages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	root.AddCommand(newScanCmd(&cfgPath))
	root.AddCommand(newServeCmd(&cfgPath))
	return root
}

func newScanCmd(cfgPath *string) *cobra.Command {
	var pageURL, queryText, imageURL, strategy string
	var render bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one page and print ranked matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if strategy != "" {
				cfg.ScoringStrategy = strategy
			}
			if render {
				cfg.Fetch.Render = true
			}

			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			doc, parsed, err := loadPage(cmd.Context(), cfg, pageURL)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", pageURL, err)
			}

			sess := app.BuildSession(cfg, log)
			results, err := sess.Search(cmd.Context(), session.Input{
				Query:    queryText,
				ImageURL: imageURL,
			}, doc, parsed, func(stage string) {
				fmt.Fprintln(os.Stderr, stage)
			})
			if err != nil {
				return err
			}

			for i, r := range results {
				title := r.Record.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%2d. %3.0f%% %s\n", i+1, r.Score.Final*100, title)
				fmt.Printf("     confidence %.2f  %s\n", r.Score.Confidence, r.Score.Reasoning)
				if r.Record.ImageURL != "" {
					fmt.Printf("     %s\n", r.Record.ImageURL)
				}
			}
			if len(results) == 0 {
				fmt.Println("no matches above threshold")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pageURL, "url", "", "page to scan")
	cmd.Flags().StringVar(&queryText, "query", "", "free-text search query")
	cmd.Flags().StringVar(&imageURL, "image", "", "reference image URL")
	cmd.Flags().StringVar(&strategy, "strategy", "", "scoring strategy: lexical, semantic, or image")
	cmd.Flags().BoolVar(&render, "render", false, "render the page in a headless browser")
	cmd.MarkFlagRequired("url")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			return server.New(cfg, log).Run()
		},
	}
}

func loadPage(ctx context.Context, cfg *config.Config, pageURL string) (*goquery.Document, *url.URL, error) {
	if cfg.Fetch.Render {
		return fetch.NewRenderer().Document(ctx, pageURL)
	}
	return fetch.Document(pageURL, cfg.FetchTimeout())
}
