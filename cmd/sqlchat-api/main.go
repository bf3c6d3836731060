package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sqlchat/sqlchat/internal/api"
	"github.com/sqlchat/sqlchat/internal/api/uistatic"
	"github.com/sqlchat/sqlchat/internal/archive"
	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/chat"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/migrations"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	duckdbengine "github.com/sqlchat/sqlchat/internal/query/duckdb"
	pgengine "github.com/sqlchat/sqlchat/internal/query/postgres"
	"github.com/sqlchat/sqlchat/internal/query/sqldb"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
	s3store "github.com/sqlchat/sqlchat/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, engine, err := openEngine(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	catalog := nl2sql.DefaultCatalog()
	if cfg.AI.SchemaFile != "" {
		catalog, err = nl2sql.LoadCatalogFile(cfg.AI.SchemaFile)
		if err != nil {
			logger.Error("failed to load schema catalog", slog.Any("error", err))
			os.Exit(1)
		}
	} else if cfg.Database.Driver == config.DriverDuckDB {
		catalog.Dialect = "DuckDB"
	}

	policy, err := sqlguard.ParsePolicy(cfg.Safety.Policy)
	if err != nil {
		logger.Error("invalid safety policy", slog.Any("error", err))
		os.Exit(1)
	}
	filter, err := sqlguard.New(policy)
	if err != nil {
		logger.Error("failed to build safety filter", slog.Any("error", err))
		os.Exit(1)
	}
	mode := nl2sql.ModeSelectOnly
	if filter.AllowsMutations() {
		mode = nl2sql.ModeVerbRouted
	}

	var translator nl2sql.Translator
	if cfg.AI.Configured() {
		translator, err = nl2sql.NewTranslator(cfg.AI.Provider, nl2sql.ClientConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize sql translator", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("no model api key configured; chat requests will be refused")
	}

	readiness := []api.ReadinessCheck{api.CheckDatabase(engine), api.CheckModelConfigured(cfg)}
	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver, err = archive.New(objectStore)
		if err != nil {
			logger.Error("failed to initialize result archive", slog.Any("error", err))
			os.Exit(1)
		}
		readiness = append(readiness, api.CheckObjectStore(objectStore))
	}

	chatOptions := chat.Options{
		Builder:    nl2sql.NewPromptBuilder(catalog, mode),
		Translator: translator,
		Filter:     filter,
		Engine:     engine,
		Logger:     logger,
	}
	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: 2 * time.Second,
		Prober:            engine,
		UI:                uistatic.Handler(),
	}
	if archiver != nil {
		chatOptions.Archiver = archiver
		deps.Archive = archiver
	}
	service, err := chat.NewService(chatOptions)
	if err != nil {
		logger.Error("failed to build chat service", slog.Any("error", err))
		os.Exit(1)
	}
	deps.Chat = service

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("api key auth enabled", slog.Int("keys", validator.Len()))
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", cfg.Database.Driver),
			slog.String("policy", string(policy)),
			slog.String("provider", cfg.AI.Provider),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// openEngine opens the configured backend. An in-memory DuckDB database starts
// empty, so the demo schema and seed rows are applied to it on startup.
func openEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, *sqldb.Engine, error) {
	switch cfg.Database.Driver {
	case config.DriverDuckDB:
		db, err := duckdbengine.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		if dsn := strings.TrimSpace(cfg.Database.DSN); dsn == "" || dsn == ":memory:" {
			runner, err := migrations.NewRunner(migrations.DialectDuckDB)
			if err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			applied, err := runner.Up(ctx, db, 0)
			if err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("seed in-memory duckdb: %w", err)
			}
			logger.Info("seeded in-memory duckdb", slog.Int("migrations", applied))
		}
		return db, duckdbengine.NewEngine(db, cfg.Database.QueryTimeout), nil
	default:
		db, err := pgengine.Open(ctx, pgengine.DBConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		return db, pgengine.NewEngine(db, cfg.Database.QueryTimeout), nil
	}
}
