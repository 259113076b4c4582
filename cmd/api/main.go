package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kalamitra/api/internal/di"
	"github.com/kalamitra/api/internal/handlers"
	"github.com/kalamitra/api/internal/platform/config"
	"github.com/kalamitra/api/internal/platform/idempotency"
	"github.com/kalamitra/api/internal/platform/observability"
	"github.com/kalamitra/api/internal/platform/ratelimit"
	"github.com/kalamitra/api/internal/platform/requestctx"
	"github.com/kalamitra/api/internal/platform/secrets"
	"github.com/kalamitra/api/internal/repositories"
	"github.com/kalamitra/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	container, err := di.NewContainer(ctx, cfg, logger,
		di.WithBuildInfo(buildInfo),
		di.WithHealthCheck(secretManagerCheck(fetcher)),
	)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	router := newRouter(cfg, container, buildInfo, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("kalamitra api listening", zap.String("environment", buildInfo.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(cfg config.Config, c *di.Container, build services.BuildInfo, logger *zap.Logger) http.Handler {
	svc := c.Services
	userLimit := ratelimit.Middleware(c.Limiter, cfg.RateLimits.AuthenticatedPerMinute, time.Now)
	guard := handlers.NewGuard(c.Authenticator, userLimit)

	authHandlers := handlers.NewAuthHandlers(svc.Profiles)
	userHandlers := handlers.NewUserHandlers(guard, svc.Profiles)
	artisanHandlers := handlers.NewArtisanHandlers(guard, svc.Profiles, svc.Listings, svc.Orders)
	listingHandlers := handlers.NewListingHandlers(guard, svc.Listings, handlers.WithUploadLimit(cfg.Server.MaxUploadBytes))
	reviewHandlers := handlers.NewReviewHandlers(guard, svc.Reviews)
	orderHandlers := handlers.NewOrderHandlers(guard, svc.Orders)
	checkoutHandlers := handlers.NewCheckoutHandlers(guard, svc.Checkout, idempotency.Middleware(c.Idempotency))
	webhookHandlers := handlers.NewWebhookHandlers(svc.Checkout)
	publicHandlers := handlers.NewPublicHandlers(c.Taxonomy)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(build),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	httpLogger := logger.Named("http")
	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithCORSOrigins(cfg.CORS.AllowedOrigins...),
		handlers.WithAPIMiddlewares(ratelimit.Middleware(c.Limiter, cfg.RateLimits.DefaultPerMinute, time.Now)),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithUserRoutes(userHandlers.Routes),
		handlers.WithArtisanRoutes(artisanHandlers.Routes),
		handlers.WithListingRoutes(listingHandlers.Routes, reviewHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithPublicRoutes(publicHandlers.Routes),
	)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check:   fetcher.Ping,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(defaultProject),
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists config fields that must resolve before the server starts. Optional integrations
// become required once their variable is set, so a broken secret reference fails at boot.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"PSP.StripeAPIKey", "PSP.StripeWebhookSecret"}
	if strings.TrimSpace(env["API_MAIL_SENDGRID_API_KEY"]) != "" {
		required = append(required, "Mail.SendGridAPIKey")
	}
	if strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Cache.RedisPassword")
	}
	return uniqueStrings(required)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
