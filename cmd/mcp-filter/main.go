package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/triage-ai/palisade/services/mcp_filter/internal/config"
	"github.com/triage-ai/palisade/services/mcp_filter/internal/policy"
	"github.com/triage-ai/palisade/services/mcp_filter/internal/pump"
	"github.com/triage-ai/palisade/services/mcp_filter/internal/storage"
	"github.com/triage-ai/palisade/services/mcp_filter/internal/upstream"
)

func main() {
	// Config from env
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Logger. Everything goes to stderr: stdout is the protocol stream.
	logger := mustBuildLogger(cfg.LogLevel)

	logger.Info("starting mcp filter",
		zap.Int("allowlist_size", len(cfg.Tools)),
		zap.Int("allowed_org_patterns", len(cfg.AllowedOrgs)),
		zap.Int("allowed_repo_patterns", len(cfg.AllowedRepos)),
	)

	polCfg := policy.Config{
		Tools:        cfg.Tools,
		AllowedOrgs:  cfg.AllowedOrgs,
		AllowedRepos: cfg.AllowedRepos,
	}

	// Optional Postgres rules, loaded once before the policy is sealed.
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		source := policy.NewPostgresRuleSource(policy.PostgresRuleSourceConfig{
			DB:     db,
			Logger: logger,
		})
		polCfg, err = source.Extend(ctx, polCfg)
		if err != nil {
			logger.Fatal("failed to load access rules", zap.Error(err))
		}
		cancel()
		_ = db.Close()
		logger.Info("postgres access rules merged")
	}

	pol, err := policy.New(polCfg)
	if err != nil {
		logger.Fatal("invalid policy configuration", zap.Error(err))
	}
	logger.Info("policy sealed", zap.String("mode", string(pol.Mode())))

	// Audit writer — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}

	// Upstream subprocess. The credential rides along in the environment,
	// untouched.
	proc, err := upstream.Start(cfg.UpstreamArgv, logger)
	if err != nil {
		logger.Fatal("failed to start upstream", zap.Error(err))
	}

	p := pump.New(pump.Config{
		Policy:      pol,
		Writer:      writer,
		Logger:      logger,
		CallerIn:    os.Stdin,
		CallerOut:   os.Stdout,
		UpstreamIn:  proc.Stdin(),
		UpstreamOut: proc.Stdout(),
	})

	if err := p.Run(); err != nil {
		logger.Warn("pump terminated", zap.Error(err))
	}

	code := proc.Wait()
	writer.Close()
	_ = logger.Sync() // best-effort flush
	os.Exit(code)
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
