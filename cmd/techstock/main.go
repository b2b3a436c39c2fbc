package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matthewjhunter/techstock"
	"github.com/matthewjhunter/techstock/internal/output"
	"github.com/matthewjhunter/techstock/internal/storage"
)

const defaultConfigPath = "./config/config.yaml"

var (
	configPath   string
	cfg          *storage.Config
	outputFormat string
	formatter    *output.Formatter
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "techstock",
		Short: "Bookmark store for technical articles with Qiita stock import",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "output format: json, text, human (default: json)")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(importFeedCmd())
	rootCmd.AddCommand(invokeCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format)

	cfg, err = storage.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func openEngine(ctx context.Context) (*techstock.Engine, error) {
	engine, err := techstock.NewEngine(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return engine, nil
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import stocked articles from Qiita once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.ImportQiita(ctx)
			if err != nil {
				return fmt.Errorf("failed to import from Qiita: %w", err)
			}
			return formatter.OutputImportResult("Qiita", result)
		},
	}
}

func importFeedCmd() *cobra.Command {
	var opml bool

	cmd := &cobra.Command{
		Use:   "import-feed <url|opml-file>",
		Short: "Import articles from an RSS/Atom feed",
		Long: `Import every item of an RSS or Atom feed as an article. Item ids are
derived from the item GUID (or link), so re-importing a feed skips what is
already stored. With --opml the argument is an OPML file and every feed it
lists is imported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			var result *techstock.ImportResult
			if opml {
				result, err = engine.ImportOPML(ctx, args[0])
			} else {
				result, err = engine.ImportFeed(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to import feed: %w", err)
			}
			return formatter.OutputImportResult(args[0], result)
		},
	}
	cmd.Flags().BoolVar(&opml, "opml", false, "treat the argument as an OPML file of feeds")
	return cmd
}

func invokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoke [payload]",
		Short: "Handle one scheduled-trigger payload",
		Long: `Handle a scheduled-trigger event the way the scheduler would deliver it.
The JSON payload is read from the argument, or from stdin when no argument is
given. Example: techstock invoke '{"source":"eventbridge","action":"fetchQiita"}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			if len(args) == 1 {
				raw = []byte(args[0])
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read payload: %w", err)
				}
				raw = data
			}

			var ev techstock.Event
			if err := json.Unmarshal(bytes.TrimSpace(raw), &ev); err != nil {
				return fmt.Errorf("invalid event payload: %w", err)
			}

			ctx := cmd.Context()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			resp, err := engine.HandleEvent(ctx, ev)
			if err != nil {
				return err
			}
			return formatter.OutputTriggerResponse(resp)
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			articles, err := engine.ListArticles(ctx)
			if err != nil {
				return fmt.Errorf("failed to list articles: %w", err)
			}
			return formatter.OutputArticleList(articles)
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one stored article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			article, err := engine.GetArticle(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get article: %w", err)
			}
			return formatter.OutputArticle(article)
		},
	}
}

func searchCmd() *cobra.Command {
	var title, tag string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search articles by title prefix and tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			articles, err := engine.SearchArticles(ctx, title, tag)
			if err != nil {
				return fmt.Errorf("failed to search articles: %w", err)
			}
			return formatter.OutputArticleList(articles)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "case-insensitive title prefix")
	cmd.Flags().StringVar(&tag, "tag", "", "case-insensitive exact tag")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		// The config file may not exist yet, so skip loadConfig.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath
			}

			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := yaml.Marshal(storage.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}
