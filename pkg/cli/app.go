package cli

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/database"
	"github.com/ekaya-inc/ekaya-askdb/pkg/handlers"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	askmcp "github.com/ekaya-inc/ekaya-askdb/pkg/mcp"
	"github.com/ekaya-inc/ekaya-askdb/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	"github.com/ekaya-inc/ekaya-askdb/pkg/middleware"
	"github.com/ekaya-inc/ekaya-askdb/pkg/services"
	sqlguard "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// app holds the wired pipeline shared by serve, ask and schema.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	chat   services.ChatService
}

// loadConfig reads configuration and builds the matching logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(version)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// newLogger returns a development logger for local runs and a JSON
// production logger everywhere else.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newApp connects to the database and wires the pipeline stages.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionURL(),
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		return nil, err
	}

	gatewayCfg, breakerCfg := gatewayConfig(cfg.LLM)
	gateway, err := llm.NewGateway(gatewayCfg, breakerCfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	discoverer := postgres.NewSchemaDiscoverer(db.Pool, cfg.Database.Schema, logger)
	schema := services.NewSchemaCache(discoverer, cfg.Schema.CacheTTL, logger)

	executor := postgres.NewQueryExecutor(db.Pool, postgres.ExecutorOptions{
		StatementTimeout: cfg.Database.StatementTimeout,
		MaxRows:          cfg.Database.MaxRows,
	}, logger)

	chat := services.NewChatService(
		schema,
		services.NewModelInvoker(gateway, logger),
		sqlguard.NewGuard(guardOptions(cfg.Guard)),
		executor,
		audit.NewSecurityAuditor(logger),
		shortlistOptions(cfg.Schema),
		logger,
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		chat:   chat,
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

// routes builds the HTTP surface: API, health, metrics and MCP.
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(a.cfg, a.db, a.logger).RegisterRoutes(mux)
	handlers.NewChatHandler(a.chat, a.cfg.RequestTimeout, a.logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	if a.cfg.MCP.Enabled {
		mcpServer := askmcp.NewServer(handlers.ServiceName, a.cfg.Version, a.logger)
		mcpServer.RegisterTools(&tools.Deps{
			Chat:      a.chat,
			Shortlist: shortlistOptions(a.cfg.Schema),
			DB:        a.db,
			Version:   a.cfg.Version,
			Logger:    a.logger,
		})
		mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())
	}

	var handler http.Handler = mux
	handler = middleware.RequestLogger(a.logger)(handler)
	handler = middleware.ClientIP(a.cfg.TrustedProxies)(handler)
	return handler
}

func guardOptions(g config.GuardConfig) sqlguard.Options {
	return sqlguard.Options{
		DefaultLimit:          g.DefaultLimit,
		MaxLimit:              g.MaxLimit,
		DisallowSelectStar:    g.DisallowSelectStar,
		BlockPIIColumns:       g.BlockPIIColumns,
		ExtraBlockedKeywords:  g.ExtraBlockedKeywords,
		CheckLiteralInjection: g.CheckLiteralInjection,
	}
}

func shortlistOptions(s config.SchemaConfig) services.ShortlistOptions {
	return services.ShortlistOptions{
		MaxTables:     s.MaxTables,
		MatchSingular: s.MatchSingular,
	}
}

func gatewayConfig(c config.LLMConfig) (*llm.Config, llm.CircuitBreakerConfig) {
	gateway := &llm.Config{
		Provider:    c.Provider,
		Endpoint:    c.BaseURL,
		Model:       c.Model,
		APIKey:      c.APIKey,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
		JSONMode:    c.JSONMode,
	}
	breaker := llm.CircuitBreakerConfig{
		Threshold:  c.BreakerThreshold,
		ResetAfter: c.BreakerResetAfter,
	}
	return gateway, breaker
}
