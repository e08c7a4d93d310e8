package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/anchor"
	"github.com/terralens/audit-cli/internal/audit"
	"github.com/terralens/audit-cli/internal/catalog"
	"github.com/terralens/audit-cli/internal/change"
	"github.com/terralens/audit-cli/internal/fusion"
	"github.com/terralens/audit-cli/internal/law"
	"github.com/terralens/audit-cli/internal/notice"
	"github.com/terralens/audit-cli/internal/store"
	anthropicpkg "github.com/terralens/audit-cli/pkg/anthropic"
	"github.com/terralens/audit-cli/pkg/ledger"
	"github.com/terralens/audit-cli/pkg/sentinel"
)

// auditEnv holds the initialized store, catalog and orchestrator shared by
// the audit/serve commands.
type auditEnv struct {
	Store        store.Store
	Catalog      *catalog.Catalog
	Orchestrator *audit.Orchestrator
}

// Close releases resources held by the environment.
func (e *auditEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "terralens.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		var pool *store.PoolConfig
		if cfg.Store.Pool != nil {
			pool = &store.PoolConfig{MaxConns: cfg.Store.Pool.MaxConns, MinConns: cfg.Store.Pool.MinConns}
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if cfg.Catalog.Source == "" {
		return catalog.LoadDefault()
	}
	path, err := catalog.Fetch(ctx, cfg.Catalog.Source, cfg.Catalog.TempDir)
	if err != nil {
		return nil, err
	}
	return catalog.ImportShapefile(path)
}

func initRules() (law.RuleSet, error) {
	if cfg.Rules.Path == "" {
		return law.DefaultRules()
	}
	return law.LoadRules(cfg.Rules.Path)
}

func initLedger() ledger.Client {
	if cfg.Ledger.Mode == "http" && cfg.Ledger.BaseURL != "" {
		return ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.APIKey)
	}
	zap.L().Info("ledger running in simulate mode")
	return ledger.NewSimulator(2 * time.Second)
}

// initEnv sets up the store, catalog, rules and all clients, and builds the
// orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context) (*auditEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cat, err := initCatalog(ctx)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load catalog")
	}
	rules, err := initRules()
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load rules")
	}
	zap.L().Info("reference data loaded",
		zap.Int("zones", cat.Len()),
		zap.Int("jurisdictions", len(rules)),
	)

	sentinelClient := sentinel.NewClient(cfg.Sentinel.ClientID, cfg.Sentinel.ClientSecret,
		sentinel.WithTokenURL(cfg.Sentinel.TokenURL),
		sentinel.WithStatsURL(cfg.Sentinel.StatsURL),
		sentinel.WithRateLimit(cfg.Sentinel.RatePerSecond, cfg.Sentinel.RateBurst),
	)

	var drafter *notice.Drafter
	if cfg.Notice.AnthropicKey != "" {
		drafter = notice.NewDrafter(anthropicpkg.NewClient(cfg.Notice.AnthropicKey), cfg.Notice.Model)
		zap.L().Info("ai notice drafting enabled", zap.String("model", cfg.Notice.Model))
	} else {
		drafter = notice.NewDrafter(nil, cfg.Notice.Model)
	}

	orch := audit.NewOrchestrator(
		fusion.NewEngine(sentinelClient),
		change.NewDetector(sentinelClient),
		law.NewEngine(cat, rules),
		anchor.New(initLedger()),
		audit.WithStore(st),
		audit.WithDrafter(drafter),
		audit.WithLookbackDays(cfg.Audit.LookbackDays),
		audit.WithBudget(time.Duration(cfg.Audit.TimeoutSecs)*time.Second),
		audit.WithMaxConcurrency(cfg.Audit.MaxConcurrency),
	)

	return &auditEnv{
		Store:        st,
		Catalog:      cat,
		Orchestrator: orch,
	}, nil
}
