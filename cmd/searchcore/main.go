package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/searchcore/internal/config"
	"github.com/ehr/searchcore/internal/platform/db"
	"github.com/ehr/searchcore/internal/platform/middleware"
	"github.com/ehr/searchcore/pkg/querystring"
	"github.com/ehr/searchcore/pkg/search"
	"github.com/ehr/searchcore/pkg/sqlplan"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "searchcore",
		Short: "FHIR search compilation service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(paramsCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the search explain server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func explainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Compile a search query and print its plan and SQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType, _ := cmd.Flags().GetString("type")
			compartmentType, _ := cmd.Flags().GetString("compartment-type")
			compartmentID, _ := cmd.Flags().GetString("compartment-id")
			rawQuery, _ := cmd.Flags().GetString("query")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			directory, cleanup, err := loadDirectory(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			parser := search.NewParser(directory)
			compiler, err := search.NewCompiler(directory, parser, cfg.SearchConfig())
			if err != nil {
				return err
			}

			pairs := querystring.Parse(rawQuery)
			params := make([]search.Parameter, 0, len(pairs))
			for _, p := range pairs {
				params = append(params, search.Parameter{Key: p.Key, Value: p.Value})
			}

			opts, err := compiler.Compile(compartmentType, compartmentID, resourceType, params)
			if err != nil {
				return err
			}

			explanation, err := sqlplan.NewExplainer().Explain(opts)
			if err != nil {
				return err
			}

			fmt.Println("Plan:")
			for i, step := range explanation.Plan {
				fmt.Printf("  %2d. %s\n", i+1, step)
			}
			fmt.Println()
			fmt.Println("SQL:")
			fmt.Println(explanation.SQL)
			if len(explanation.Args) > 0 {
				fmt.Println()
				fmt.Println("Args:")
				for i, a := range explanation.Args {
					fmt.Printf("  $%d = %v\n", i+1, a)
				}
			}
			for _, p := range opts.UnsupportedParams {
				fmt.Printf("WARNING: search parameter '%s' was ignored\n", p.Key)
			}
			for _, s := range opts.UnsupportedSort {
				fmt.Printf("WARNING: %s\n", s.Reason)
			}
			return nil
		},
	}
	cmd.Flags().String("type", "", "Resource type to search (empty for a whole-system search)")
	cmd.Flags().String("compartment-type", "", "Compartment type (e.g. Patient)")
	cmd.Flags().String("compartment-id", "", "Compartment instance id")
	cmd.Flags().String("query", "", "Raw query string, e.g. \"code=http://loinc.org|8867-4&_sort=-date\"")
	return cmd
}

func paramsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "List the search parameter definitions in the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType, _ := cmd.Flags().GetString("type")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			directory, cleanup, err := loadDirectory(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			types := directory.ResourceTypes()
			if resourceType != "" {
				if !directory.KnownResourceType(resourceType) {
					return fmt.Errorf("resource type %q is not known", resourceType)
				}
				types = []string{resourceType}
			}

			for _, rt := range types {
				fmt.Println(rt)
				for _, info := range directory.Params(rt) {
					sortable := ""
					if info.Sortable {
						sortable = " sortable"
					}
					targets := ""
					if len(info.TargetTypes) > 0 {
						targets = " -> " + strings.Join(info.TargetTypes, ", ")
					}
					fmt.Printf("  %-24s %s%s%s\n", info.Name, info.Type, sortable, targets)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("type", "", "Limit output to one resource type")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// loadDirectory builds the search parameter directory, from the database
// when DATABASE_URL is configured and from the shipped defaults otherwise.
// The returned cleanup closes the pool when one was opened.
func loadDirectory(ctx context.Context, cfg *config.Config) (*search.Directory, func(), error) {
	if cfg.DatabaseURL == "" {
		return search.DefaultDirectory(), func() {}, nil
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	directory, err := search.LoadDirectoryPG(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return directory, pool.Close, nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx := context.Background()

	// Search parameter directory, database-backed when configured
	directory := search.DefaultDirectory()
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		directory, err = search.LoadDirectoryPG(ctx, pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load search parameter definitions")
		}
		logger.Info().Int("resource_types", len(directory.ResourceTypes())).Msg("search parameter definitions loaded")
	} else {
		logger.Warn().Msg("DATABASE_URL not set; using built-in search parameter definitions")
	}

	parser := search.NewParser(directory)
	compiler, err := search.NewCompiler(directory, parser, cfg.SearchConfig(), search.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build search compiler")
	}
	handler := search.NewHandler(compiler, sqlplan.NewExplainer(), logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	searchGroup := e.Group("/search")
	handler.RegisterRoutes(searchGroup)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
