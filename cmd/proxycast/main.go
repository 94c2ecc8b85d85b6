// Command proxycast runs the local LLM API gateway described in spec.md:
// it terminates the OpenAI/Anthropic/Gemini chat protocols on one HTTP
// listener, routes each request to a credentialed upstream provider behind
// retry/circuit-breaking, and records every request as a queryable flow.
// Grounded on the teacher's (github.com/BaSui01/agentflow) cmd/agentflow/main.go
// wiring order: load config, build the logger, assemble AppState, start the
// server, block for a shutdown signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tytsxai/proxycast/api"
	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/flow"
	"github.com/tytsxai/proxycast/internal/config"
	"github.com/tytsxai/proxycast/internal/server"
	"github.com/tytsxai/proxycast/internal/telemetry"
	"github.com/tytsxai/proxycast/internal/tokenest"
	"github.com/tytsxai/proxycast/pipeline"
	"github.com/tytsxai/proxycast/provider"
	"github.com/tytsxai/proxycast/resilience"
	"github.com/tytsxai/proxycast/tokencache"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "proxycast:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := "proxycast.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	providers, err := telemetry.Init(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		SampleRate:   cfg.Telemetry.SampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer providers.Shutdown(context.Background()) //nolint:errcheck

	metrics := telemetry.NewCollector("proxycast")
	tracer, err := telemetry.NewRequestTracer()
	if err != nil {
		return fmt.Errorf("build request tracer: %w", err)
	}

	state, cleanup, err := buildAppState(cfg, logger)
	if err != nil {
		return fmt.Errorf("build app state: %w", err)
	}
	defer cleanup()
	state.Metrics = metrics
	state.Tracer = tracer

	router := api.NewRouter(state, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Estimate:    tokenest.New().Estimate,
	})

	mgr := server.NewManager(router, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	watcher, err := config.NewWatcher(configPath, logger)
	if err == nil {
		watcher.Start(func(config.Config) {
			logger.Info("configuration file changed; restart to apply routing/provider changes")
		})
		defer watcher.Close() //nolint:errcheck
	}

	if err := mgr.Start(); err != nil {
		return err
	}
	mgr.WaitForShutdown()
	return nil
}

// buildAppState assembles every dependency named in spec.md §3/§4: one
// credential.Pool and one tokencache.Cache per configured provider kind,
// the dispatcher registry, the pipeline steps, the resilience executor,
// and the flow store backed by a FileStore sink.
func buildAppState(cfg config.Config, logger *zap.Logger) (*api.AppState, func(), error) {
	pools := make(map[credential.Kind]*credential.Pool)
	caches := make(map[credential.Kind]*tokencache.Cache)
	var providerKinds []credential.Kind

	for _, pc := range cfg.Providers {
		kind := credential.Kind(pc.Kind)
		pool, ok := pools[kind]
		if !ok {
			pool = credential.NewPool(kind, credential.WithFailureThreshold(3), credential.WithLogger(logger))
			pools[kind] = pool
			providerKinds = append(providerKinds, kind)

			cache := tokencache.New(pool, tokencache.WithLogger(logger))
			if url, clientID, encoding, ok := oauthEndpointFor(kind); ok {
				cache.Register(kind, &tokencache.OAuthRefresher{TokenURL: url, ClientID: clientID, Encoding: encoding})
			}
			caches[kind] = cache
		}

		cred := &credential.Credential{ID: uuid.New(), Kind: kind, ProxyURL: pc.ProxyURL}
		switch {
		case pc.OAuthFilePath != "":
			cred.Payload = credential.OAuthFile{Path: pc.OAuthFilePath, APIBaseURL: pc.BaseURL}
		default:
			cred.Payload = credential.APIKey{Key: pc.APIKey, BaseURL: pc.BaseURL}
		}
		if err := pool.Add(cred); err != nil {
			return nil, nil, fmt.Errorf("register %s credential: %w", kind, err)
		}
		if pc.RateLimitRPS > 0 {
			pool.SetRateLimit(cred.ID, pc.RateLimitRPS, pc.RateLimitBurst)
		}

		if pc.OAuthFilePath != "" {
			entry, err := tokencache.LoadEntryFromFile(pc.OAuthFilePath)
			if err != nil {
				logger.Warn("failed to seed oauth entry, will refresh on first use", zap.String("provider", string(kind)), zap.Error(err))
			} else {
				caches[kind].Seed(cred.ID, entry)
			}
		}
	}

	registry := provider.NewRegistry()
	httpClient := &http.Client{Timeout: 5 * time.Minute}
	for kind := range pools {
		dispatcher, err := newDispatcherFor(kind, httpClient)
		if err != nil {
			return nil, nil, err
		}
		registry.Register(dispatcher)
	}

	routes := make([]pipeline.ModelRoute, 0, len(cfg.Routing.Routes))
	for _, r := range cfg.Routing.Routes {
		routes = append(routes, pipeline.ModelRoute{Pattern: r.Pattern, Provider: credential.Kind(r.Provider), ResolvedModel: r.ResolvedModel})
	}
	overrides := make([]pipeline.ClientOverride, 0, len(cfg.Routing.ClientOverrides))
	for _, o := range cfg.Routing.ClientOverrides {
		overrides = append(overrides, pipeline.ClientOverride{Client: pipeline.ClientType(o.Client), Provider: credential.Kind(o.Provider)})
	}

	fileStore, err := flow.NewFileStore(cfg.Flow.StoreDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open flow store: %w", err)
	}

	flows := flow.NewStore(
		flow.WithCapacity(cfg.Flow.Capacity),
		flow.WithCoalesceInterval(cfg.Flow.CoalesceInterval),
		flow.WithThresholds(flow.Thresholds{LatencyMillis: int64(cfg.Flow.LatencyThreshold / time.Millisecond), TotalTokens: cfg.Flow.TokenThreshold}),
		flow.WithEvictionSink(fileStore),
	)

	var redisClient *redis.Client
	var mirrorCancel context.CancelFunc
	if cfg.Flow.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Flow.RedisAddr})
		mirror := flow.NewRedisMirror(redisClient, cfg.Flow.RedisChannel, logger)
		var mirrorCtx context.Context
		mirrorCtx, mirrorCancel = context.WithCancel(context.Background())
		go mirror.Run(mirrorCtx, flows)
	}

	resilienceExecutor := resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxRetries: cfg.Resilience.MaxRetries,
			Base:       cfg.Resilience.BaseDelay,
			MaxDelay:   cfg.Resilience.MaxDelay,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			SuccessThreshold: cfg.Resilience.SuccessThreshold,
			Timeout:          cfg.Resilience.BreakerTimeout,
		},
		SwitchOnQuota: cfg.Resilience.SwitchOnQuota,
	}, logger)

	state := &api.AppState{
		Logger:      logger,
		Pools:       pools,
		TokenCaches: caches,
		Dispatchers: registry,
		Auth:        pipeline.NewAuthStep(cfg.Auth.APIKey),
		Routing:     pipeline.NewRoutingStep(routes, overrides, credential.Kind(cfg.Routing.DefaultProvider)),
		Injection:   pipeline.NewInjectionStep(nil),
		Plugins:     pipeline.NewPluginStep(logger),
		Resilience:  resilienceExecutor,
		Flows:       flows,
		Providers:   providerKinds,
	}
	state.InstallReplayer()

	if cfg.Flow.InterceptFilter != "" {
		filter, err := flow.Parse(cfg.Flow.InterceptFilter)
		if err != nil {
			return nil, nil, fmt.Errorf("parse flow.intercept_filter: %w", err)
		}
		ic := flow.NewInterceptor()
		ic.SetFilter(filter)
		if cfg.Flow.InterceptTimeout > 0 {
			ic.SetTimeout(cfg.Flow.InterceptTimeout)
		}
		state.Interceptor = ic
	}

	cleanup := func() {
		if mirrorCancel != nil {
			mirrorCancel()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		_ = fileStore.Close()
	}
	return state, cleanup, nil
}

// oauthEndpointFor returns the refresh_token grant endpoint for provider
// kinds that authenticate via OAuth file, per spec.md §4.2. Vertex uses a
// JWT assertion, not a refresh_token grant, and so is absent here;
// buildAppState registers no refresher for Vertex (tokencache.VertexRefresher
// is not wired in), and Vertex credentials are loaded as API key or OAuth
// file payloads. Kinds with no OAuth variant return ok=false.
func oauthEndpointFor(kind credential.Kind) (tokenURL, clientID string, encoding tokencache.RefreshEncoding, ok bool) {
	switch kind {
	case credential.ClaudeOAuth:
		return "https://console.anthropic.com/v1/oauth/token", "9d1c250a-e61b-44d9-88ed-5944d1962f5e", tokencache.EncodingJSON, true
	case credential.Codex:
		return "https://auth.openai.com/oauth/token", "app_EMoamEEZ73f0CkXaXp7hrann", tokencache.EncodingJSON, true
	case credential.Gemini, credential.Antigravity:
		return "https://oauth2.googleapis.com/token", "", tokencache.EncodingForm, true
	case credential.Kiro:
		return "https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken", "", tokencache.EncodingJSON, true
	default:
		return "", "", 0, false
	}
}

// newDispatcherFor builds the HTTPDispatcher for kind via its thin
// constructor in package provider.
func newDispatcherFor(kind credential.Kind, client *http.Client) (provider.Dispatcher, error) {
	switch kind {
	case credential.OpenAI:
		return provider.NewOpenAIDispatcher(client), nil
	case credential.Anthropic:
		return provider.NewAnthropicDispatcher(client), nil
	case credential.Gemini:
		return provider.NewGeminiDispatcher(client), nil
	case credential.GeminiAPIKey:
		return provider.NewGeminiAPIKeyDispatcher(client), nil
	case credential.Antigravity:
		return provider.NewAntigravityDispatcher(client), nil
	case credential.Qwen:
		return provider.NewQwenDispatcher(client), nil
	case credential.IFlow:
		return provider.NewIFlowDispatcher(client), nil
	case credential.Codex:
		return provider.NewCodexDispatcher(client), nil
	case credential.Kiro:
		return provider.NewKiroDispatcher(client), nil
	case credential.Vertex:
		return provider.NewVertexDispatcher(client), nil
	case credential.ClaudeOAuth:
		return provider.NewClaudeOAuthDispatcher(client), nil
	default:
		return nil, fmt.Errorf("no dispatcher constructor registered for provider kind %q", kind)
	}
}
