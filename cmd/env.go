package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relationship-crm/internal/company"
	"github.com/sells-group/relationship-crm/internal/config"
	"github.com/sells-group/relationship-crm/internal/enrich"
	"github.com/sells-group/relationship-crm/internal/jobs"
	"github.com/sells-group/relationship-crm/internal/provider"
	"github.com/sells-group/relationship-crm/internal/reindex"
	"github.com/sells-group/relationship-crm/internal/resilience"
	"github.com/sells-group/relationship-crm/internal/store"
	"github.com/sells-group/relationship-crm/pkg/apollo"
)

// enrichEnv holds everything the serve and enrich commands need.
type enrichEnv struct {
	Store     store.Store
	Redis     *redis.Client // nil when jobs live in memory
	Jobs      jobs.Store
	Companies *company.Service
	Registry  *jobs.Registry
}

// Close waits for background reindex calls and releases connections.
func (e *enrichEnv) Close() {
	if e.Companies != nil {
		e.Companies.Wait()
	}
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates cfg for mode and wires store, provider, company service,
// worker and registry. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*enrichEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	env := &enrichEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Jobs, env.Redis, err = initJobStore(ctx, c.Redis)
	if err != nil {
		env.Close()
		return nil, err
	}

	generic, err := company.GenericDomains(c.Enrich.GenericDomains, c.Enrich.GenericDomainsFile)
	if err != nil {
		env.Close()
		return nil, err
	}

	p := initProvider(c.Apollo, c.Resilience)
	env.Companies = company.NewService(st, p, initHook(c.Reindex, c.Resilience))

	worker := enrich.NewWorker(st, p, env.Companies, generic)
	env.Registry = jobs.NewRegistry(env.Jobs, worker, jobs.WithRetention(c.Enrich.Retention))

	return env, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "crm.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// initJobStore returns a Redis-backed job store when redis.addr is set and a
// process-local one otherwise.
func initJobStore(ctx context.Context, rc config.RedisConfig) (jobs.Store, *redis.Client, error) {
	if rc.Addr == "" {
		zap.L().Debug("redis not configured, job state kept in memory")
		return jobs.NewMemoryStore(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, eris.Wrapf(err, "redis ping %s", rc.Addr)
	}
	zap.L().Info("job state shared through redis", zap.String("addr", rc.Addr))
	return jobs.NewRedisStore(client), client, nil
}

func initProvider(ac config.ApolloConfig, rc config.ResilienceConfig) *provider.Apollo {
	client := apollo.NewClient(ac.Key,
		apollo.WithBaseURL(ac.BaseURL),
		apollo.WithRateLimit(ac.RateLimit),
		apollo.WithHTTPClient(&http.Client{Timeout: time.Duration(ac.TimeoutSecs) * time.Second}),
	)

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "apollo",
		FailureThreshold: rc.FailureThreshold,
		ResetTimeout:     time.Duration(rc.ResetTimeoutSecs) * time.Second,
	})
	return provider.NewApollo(client,
		provider.WithBreaker(breaker),
		provider.WithRevealPersonalEmails(ac.RevealPersonal),
	)
}

func initHook(rc config.ReindexConfig, res config.ResilienceConfig) reindex.Hook {
	if rc.WebhookURL == "" {
		return reindex.Nop{}
	}
	retry := resilience.FromRetryConfig(res.MaxAttempts, res.InitialBackoffMs, res.MaxBackoffMs, res.Multiplier, res.JitterFraction)
	return reindex.NewWebhook(rc.WebhookURL,
		reindex.WithToken(rc.Token),
		reindex.WithHTTPClient(&http.Client{Timeout: time.Duration(rc.TimeoutSecs) * time.Second}),
		reindex.WithRetry(retry),
	)
}
