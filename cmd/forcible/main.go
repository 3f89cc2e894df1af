package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"forcible/internal/analyze"
	"forcible/internal/config"
	"forcible/internal/enrich"
	"forcible/internal/publisher"
	"forcible/internal/scheduler"
	"forcible/internal/service"
	"forcible/internal/source/rss"
	"forcible/internal/storage/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "forcible",
	Short:         "Personal news aggregation pipeline",
	Long:          "Polls RSS feeds, stores articles locally, enriches them with full page content and runs LLM analysis.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(enrichCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles everything a command needs. Construction failures are fatal
// configuration errors.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqlx.DB
	articles *sqlite.ArticleStore
	tracking *sqlite.TrackingStore
}

func openApp() (*app, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = setupLogger(cfg.LogLevel)

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		articles: sqlite.NewArticleStore(db),
		tracking: sqlite.NewTrackingStore(db),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

func (a *app) newIngestService() (*service.IngestService, service.Publisher, error) {
	feedSource := rss.New(rss.Config{
		Timeout:   a.cfg.Fetch.Timeout,
		UserAgent: a.cfg.Fetch.UserAgent,
	}, a.logger)

	var pub service.Publisher
	if a.cfg.AMQP.URL != "" {
		rabbit, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        a.cfg.AMQP.URL,
			Exchange:   a.cfg.AMQP.Exchange,
			RoutingKey: a.cfg.AMQP.RoutingKey,
			QueueName:  a.cfg.AMQP.QueueName,
		}, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect publisher: %w", err)
		}
		pub = rabbit
	}

	svc := service.NewIngestService(feedSource, a.articles, a.tracking, pub, a.logger, a.cfg.Fetch.Delay)
	return svc, pub, nil
}

func (a *app) newEnrichService() *service.EnrichService {
	extractor := enrich.New(enrich.Config{
		Timeout:   a.cfg.Fetch.Timeout,
		UserAgent: a.cfg.Fetch.UserAgent,
	}, a.logger)

	return service.NewEnrichService(a.articles, extractor, a.logger)
}

func (a *app) newAnalyzeService() (*service.AnalyzeService, error) {
	engine, err := analyze.NewEngine(analyze.Config{
		APIKey:  a.cfg.LLM.APIKey,
		Model:   a.cfg.LLM.Model,
		BaseURL: a.cfg.LLM.BaseURL,
		Timeout: a.cfg.LLM.Timeout,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create analysis engine: %w", err)
	}

	return service.NewAnalyzeService(a.articles, engine, a.logger), nil
}

const defaultConfig = `database:
  path: news.db

sources:
  rnz_national: https://www.rnz.co.nz/rss/national.xml
  rnz_world: https://www.rnz.co.nz/rss/world.xml
  rnz_business: https://www.rnz.co.nz/rss/business.xml

llm:
  api_key: ${OPENAI_API_KEY}
  model: gpt-4o-mini

fetch:
  delay: 1s
  timeout: 30s

schedule:
  interval: 15m

log_level: info
`

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter config file and initialize the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
			}

			if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("Created configuration file: %s\n", configPath)
			fmt.Println("Set OPENAI_API_KEY (or edit llm.api_key) to enable analysis.")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			db, err := sqlite.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			defer db.Close()

			fmt.Printf("Initialized database: %s\n", cfg.Database.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func fetchCmd() *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch articles from configured feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc, pub, err := a.newIngestService()
			if err != nil {
				return err
			}
			if pub != nil {
				defer pub.Close()
			}

			results, err := svc.FetchAll(signalContext(), a.cfg.Sources, family)
			if err != nil {
				return err
			}

			total := 0
			for _, n := range results {
				total += n
			}
			fmt.Printf("Total new articles: %d\n", total)
			for source, n := range results {
				fmt.Printf("  %s: %d\n", source, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "source", "all", "source family to fetch (name prefix, or \"all\")")
	return cmd
}

func enrichCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fetch full page content for articles missing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc := a.newEnrichService()

			count, err := svc.EnrichMissing(signalContext(), limit, printProgress)
			if err != nil {
				return err
			}
			fmt.Printf("Enriched %d articles\n", count)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum articles to process (0 = all)")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run LLM analysis over unprocessed articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.newAnalyzeService()
			if err != nil {
				return err
			}

			results, err := svc.AnalyzeUnprocessed(signalContext(), limit, printProgress)
			if err != nil {
				return err
			}

			failed := 0
			for _, analysis := range results {
				if analysis.Error != "" {
					failed++
				}
			}
			fmt.Printf("Analyzed %d articles (%d with errors)\n", len(results), failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum articles to process (0 = all)")
	return cmd
}

func listCmd() *cobra.Command {
	var source string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			articles, err := a.articles.List(cmd.Context(), source, limit)
			if err != nil {
				return err
			}

			if len(articles) == 0 {
				fmt.Println("No articles found.")
				return nil
			}

			fmt.Printf("Found %d articles:\n\n", len(articles))
			for _, article := range articles {
				fmt.Printf("[%s] %s\n", article.Source, article.Headline)
				fmt.Printf("  URL: %s\n", article.URL)
				if article.PublishedDate != nil {
					fmt.Printf("  Published: %s\n", article.PublishedDate.Format("2006-01-02 15:04"))
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "filter by source")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum articles to show")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.articles.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Total articles: %d\n", stats.TotalArticles)

			fmt.Println("\nArticles by source:")
			for source, count := range stats.BySource {
				fmt.Printf("  %s: %d\n", source, count)
			}

			fmt.Println("\nLast scrape times:")
			for _, t := range stats.Tracking {
				fmt.Printf("  %s: %s\n", t.SourceName, t.LastScraped.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ingest, pub, err := a.newIngestService()
			if err != nil {
				return err
			}
			if pub != nil {
				defer pub.Close()
			}

			// Analysis is optional in daemon mode: without an API key the
			// pipeline still fetches and enriches.
			var analyzeSvc *service.AnalyzeService
			if a.cfg.LLM.APIKey != "" {
				analyzeSvc, err = a.newAnalyzeService()
				if err != nil {
					return err
				}
			} else {
				a.logger.Warn("llm api key not configured, analysis disabled")
			}

			pipeline := service.NewPipeline(ingest, a.newEnrichService(), analyzeSvc, a.cfg.Sources, a.logger)
			sched := scheduler.NewScheduler(pipeline, a.cfg.Schedule.Interval, a.logger)

			if err := sched.Start(signalContext()); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

func printProgress(current, total int, headline string) {
	if len(headline) > 60 {
		headline = headline[:60] + "..."
	}
	fmt.Printf("[%d/%d] %s\n", current, total, headline)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so batches
// stop cleanly between units of work.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()
	return ctx
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}
