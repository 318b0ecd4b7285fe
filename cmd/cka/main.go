package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"gocka/adapters/api"
	"gocka/adapters/bootstrap"
	"gocka/adapters/errortable"
	"gocka/adapters/logfile"
	"gocka/adapters/rng"
	"gocka/adapters/sqlstore"
	"gocka/app"
	"gocka/domain/architecture"
	"gocka/domain/outcome"
	"gocka/internal"
	"gocka/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err == nil {
		internal.DefaultLogger.Debug("loaded .env")
	}

	rootCmd := &cobra.Command{
		Use:           "cka",
		Short:         "Contrastive knowledge assessment reports for fact-probing logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		newReportCmd(),
		newBootstrapCmd(),
		newClassifyCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newErrorsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads file and environment settings, then applies changed flags
func loadConfig(apply func(cfg *config.Config)) (*config.Config, *internal.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if apply != nil {
		apply(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	return cfg, logger, nil
}

func newReportCmd() *cobra.Command {
	var (
		writeErrors      bool
		errorFormat      string
		html             bool
		resamples        int
		confidence       float64
		seed             int64
		workers          int
		bootstrapWorkers int
		failFast         bool
		storeDriver      string
		storeDSN         string
	)

	cmd := &cobra.Command{
		Use:   "report [folder]",
		Short: "Compute accuracy and bootstrap uncertainty for every log in a folder",
		Long: `Read every *.json probing log in a folder, report each model's accuracy with a
percentile bootstrap uncertainty, and write results/metrics.txt. The language of
each log comes from its file name prefix (en-, fr-, ...).

Example: cka report ./logs --write-errors --error-format xlsx --resamples 10000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, logger, err := loadConfig(func(cfg *config.Config) {
				if len(args) == 1 {
					cfg.Input.Folder = args[0]
				}
				if flags.Changed("write-errors") {
					cfg.Output.WriteErrors = writeErrors
				}
				if flags.Changed("error-format") {
					cfg.Output.ErrorFormat = errorFormat
				}
				if flags.Changed("html") {
					cfg.Output.HTML = html
				}
				if flags.Changed("resamples") {
					cfg.Bootstrap.Resamples = resamples
				}
				if flags.Changed("confidence") {
					cfg.Bootstrap.Confidence = confidence
				}
				if flags.Changed("seed") {
					cfg.Bootstrap.Seed = seed
				}
				if flags.Changed("workers") {
					cfg.Batch.Workers = workers
				}
				if flags.Changed("bootstrap-workers") {
					cfg.Bootstrap.Workers = bootstrapWorkers
				}
				if flags.Changed("fail-fast") {
					cfg.Batch.FailFast = failFast
				}
				if flags.Changed("store-driver") {
					cfg.Store.Driver = storeDriver
				}
				if flags.Changed("store-dsn") {
					cfg.Store.DSN = storeDSN
				}
			})
			if err != nil {
				return err
			}
			if cfg.Input.Folder == "" {
				return fmt.Errorf("no input folder: pass one as an argument or set CKA_FOLDER")
			}
			return runReport(cmd.Context(), cfg, logger)
		},
	}

	defaults := config.Default()
	cmd.Flags().BoolVar(&writeErrors, "write-errors", false, "Write an error table per log")
	cmd.Flags().StringVar(&errorFormat, "error-format", defaults.Output.ErrorFormat, "Error table format: csv|xlsx")
	cmd.Flags().BoolVar(&html, "html", false, "Also write results/metrics.html")
	cmd.Flags().IntVar(&resamples, "resamples", defaults.Bootstrap.Resamples, "Bootstrap resamples")
	cmd.Flags().Float64Var(&confidence, "confidence", defaults.Bootstrap.Confidence, "Confidence level in (0,1)")
	cmd.Flags().Int64Var(&seed, "seed", defaults.Bootstrap.Seed, "Random seed for deterministic operations")
	cmd.Flags().IntVar(&workers, "workers", defaults.Batch.Workers, "Logs processed concurrently")
	cmd.Flags().IntVar(&bootstrapWorkers, "bootstrap-workers", defaults.Bootstrap.Workers, "Goroutines per bootstrap (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first log that fails")
	cmd.Flags().StringVar(&storeDriver, "store-driver", "", "Report database driver: sqlite|postgres")
	cmd.Flags().StringVar(&storeDSN, "store-dsn", "", "Report database DSN")

	return cmd
}

func runReport(ctx context.Context, cfg *config.Config, logger *internal.Logger) error {
	tables, err := errortable.NewStore(cfg.Output.ErrorFormat, logger)
	if err != nil {
		return err
	}

	opts := app.ReportOptions{
		Params:      cfg.BootstrapParams(),
		Seed:        cfg.Bootstrap.Seed,
		Workers:     cfg.Batch.Workers,
		FailFast:    cfg.Batch.FailFast,
		WriteErrors: cfg.Output.WriteErrors,
	}
	svc := app.NewReportService(
		logfile.NewFolderSource(logger),
		bootstrap.NewEstimator(cfg.Bootstrap.Workers),
		rng.NewSeededAdapter(),
		opts,
		logger,
	)
	svc.SetOutputs(tables, app.NewFileSummaryWriter(cfg.Output.HTML))

	if cfg.Store.Driver != "" {
		db, err := sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		svc.SetRepository(sqlstore.NewReportRepository(db))
	}

	out, err := svc.Run(ctx, cfg.Input.Folder)
	if err != nil {
		return err
	}

	fmt.Print(app.RenderSummary(out.Result))
	for _, path := range append(out.SummaryFiles, out.TableFiles...) {
		logger.Info("wrote %s", path)
	}
	if out.Result.HasFailures() {
		return fmt.Errorf("%d of %d logs failed", len(out.Result.Failures),
			len(out.Result.Failures)+len(out.Result.Reports))
	}
	return nil
}

func newBootstrapCmd() *cobra.Command {
	var (
		resamples  int
		confidence float64
		seed       int64
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "bootstrap [0|1...]",
		Short: "Percentile bootstrap interval for a sequence of 0/1 outcomes",
		Long: `Estimate the bootstrap confidence interval of the proportion of 1s.

Example: cka bootstrap 1 1 1 1 0 0 0 0 0 0 --resamples 10000 --confidence 0.95`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]int, len(args))
			for i, arg := range args {
				v, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("argument %d: %q is not an integer", i+1, arg)
				}
				results[i] = v
			}

			cfg, _, err := loadConfig(func(cfg *config.Config) {
				if cmd.Flags().Changed("resamples") {
					cfg.Bootstrap.Resamples = resamples
				}
				if cmd.Flags().Changed("confidence") {
					cfg.Bootstrap.Confidence = confidence
				}
				if cmd.Flags().Changed("seed") {
					cfg.Bootstrap.Seed = seed
				}
				if cmd.Flags().Changed("workers") {
					cfg.Bootstrap.Workers = workers
				}
			})
			if err != nil {
				return err
			}

			src, err := rng.NewSeededAdapter().SeededStream(cmd.Context(), "bootstrap", cfg.Bootstrap.Seed)
			if err != nil {
				return err
			}
			rep, err := bootstrap.NewEstimator(cfg.Bootstrap.Workers).Estimate(cmd.Context(), results, cfg.BootstrapParams(), src)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}

	defaults := config.Default()
	cmd.Flags().IntVar(&resamples, "resamples", defaults.Bootstrap.Resamples, "Bootstrap resamples")
	cmd.Flags().Float64Var(&confidence, "confidence", defaults.Bootstrap.Confidence, "Confidence level in (0,1)")
	cmd.Flags().Int64Var(&seed, "seed", defaults.Bootstrap.Seed, "Random seed for deterministic operations")
	cmd.Flags().IntVar(&workers, "workers", defaults.Bootstrap.Workers, "Goroutines drawing resamples (0 = GOMAXPROCS)")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [model-name...]",
		Short: "Show the architecture family and probe routine for model names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, name := range args {
				family, err := architecture.Classify(name)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
					failed++
					continue
				}
				probe, _ := architecture.ProbeFor(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tfamily=%s\tprobe=%s\n", name, family, probe)
			}
			if failed > 0 {
				return fmt.Errorf("%d model names unsupported", failed)
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bootstrap estimator and stored reports over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(func(cfg *config.Config) {
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
			})
			if err != nil {
				return err
			}

			server, closeStore, err := buildServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			return server.ListenAndServe(cmd.Context(), ":"+cfg.Server.Port)
		},
	}

	cmd.Flags().StringVar(&port, "port", config.Default().Server.Port, "HTTP port")
	return cmd
}

func buildServer(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*api.Server, func(), error) {
	params := cfg.BootstrapParams()
	apiConfig := api.Config{
		Params:       params,
		Seed:         cfg.Bootstrap.Seed,
		MaxResamples: max(api.DefaultMaxResamples, params.Resamples),
	}
	estimator := bootstrap.NewEstimator(cfg.Bootstrap.Workers)

	if cfg.Store.Driver == "" {
		logger.Info("no report store configured, serving /bootstrap only")
		return api.NewServer(estimator, rng.NewSeededAdapter(), nil, apiConfig, logger), func() {}, nil
	}

	db, err := sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	repo := sqlstore.NewReportRepository(db)
	return api.NewServer(estimator, rng.NewSeededAdapter(), repo, apiConfig, logger), func() { db.Close() }, nil
}

func newMigrateCmd() *cobra.Command {
	var storeDriver, storeDSN string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the report store schema",
		Long: `Apply the report store schema to the configured database.

Example: cka migrate --store-driver postgres --store-dsn "postgres://localhost/cka?sslmode=disable"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(func(cfg *config.Config) {
				if cmd.Flags().Changed("store-driver") {
					cfg.Store.Driver = storeDriver
				}
				if cmd.Flags().Changed("store-dsn") {
					cfg.Store.DSN = storeDSN
				}
			})
			if err != nil {
				return err
			}
			if cfg.Store.Driver == "" {
				return fmt.Errorf("no report store configured: set --store-driver or CKA_STORE_DRIVER")
			}

			db, err := sqlstore.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("%s schema is up to date", cfg.Store.Driver)
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDriver, "store-driver", "", "Report database driver: sqlite|postgres")
	cmd.Flags().StringVar(&storeDSN, "store-dsn", "", "Report database DSN")
	return cmd
}

func newErrorsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "errors [error-table]",
		Short: "Print the most confidently wrong rows of an error table",
		Long: `Print rows of a CSV or XLSX error table written by "cka report --write-errors".

Example: cka errors logs/error-analysis/error-analysis-gpt2-english.csv --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := loadConfig(nil)
			if err != nil {
				return err
			}
			store, err := errortable.NewStore(errortable.FormatCSV, logger)
			if err != nil {
				return err
			}
			rows, err := store.ReadTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIFFERENCE\tSTEM\tTRUE\tFALSE\tRELATION")
			for _, row := range rows {
				fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\t%s\n", row.Difference, row.Stem, row.True,
					outcome.JoinEntities(row.False), row.Relation)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Rows to print (0 = all)")
	return cmd
}
