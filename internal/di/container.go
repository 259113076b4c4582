package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kalamitra/api/internal/catalog"
	"github.com/kalamitra/api/internal/payments"
	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/platform/config"
	"github.com/kalamitra/api/internal/platform/events"
	pfirestore "github.com/kalamitra/api/internal/platform/firestore"
	"github.com/kalamitra/api/internal/platform/genai"
	"github.com/kalamitra/api/internal/platform/idempotency"
	"github.com/kalamitra/api/internal/platform/mail"
	pmongo "github.com/kalamitra/api/internal/platform/mongodb"
	"github.com/kalamitra/api/internal/platform/observability"
	"github.com/kalamitra/api/internal/platform/ratelimit"
	"github.com/kalamitra/api/internal/platform/storage"
	"github.com/kalamitra/api/internal/platform/taxonomy"
	"github.com/kalamitra/api/internal/platform/textutil"
	"github.com/kalamitra/api/internal/repositories"
	firestorerepo "github.com/kalamitra/api/internal/repositories/firestore"
	mongorepo "github.com/kalamitra/api/internal/repositories/mongo"
	"github.com/kalamitra/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Listings services.ListingService
	Reviews  services.ReviewService
	Orders   services.OrderService
	Checkout services.CheckoutService
	Profiles services.ProfileService
	System   services.SystemService
}

// Container owns the long-lived clients of the process and the services built on top of them.
type Container struct {
	Config        config.Config
	Authenticator *auth.Authenticator
	Taxonomy      *taxonomy.Taxonomy
	Limiter       ratelimit.Limiter
	Idempotency   idempotency.Store
	Services      Services

	logger  *zap.Logger
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

type options struct {
	build  services.BuildInfo
	checks []repositories.DependencyCheck
	clock  func() time.Time
}

// Option customises container construction.
type Option func(*options)

// WithBuildInfo sets the metadata reported by the readiness endpoint.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) { o.build = build }
}

// WithHealthCheck adds a readiness probe next to the datastore checks the container registers itself.
func WithHealthCheck(check repositories.DependencyCheck) Option {
	return func(o *options) {
		if check.Check != nil {
			o.checks = append(o.checks, check)
		}
	}
}

// WithClock overrides the clock handed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer dials every backing service named by cfg and assembles the service layer. Anything opened
// before a failure is closed again before the error is returned.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg, logger: logger}
	if err := c.build(ctx, o); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := c.Close(closeCtx); closeErr != nil {
			logger.Warn("container cleanup after failed start", zap.Error(closeErr))
		}
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, o options) error {
	cfg := c.Config
	logger := c.logger

	mongoProvider := pmongo.NewProvider(cfg.Mongo)
	c.onClose("mongo", mongoProvider.Close)
	listingRepo, err := mongorepo.NewListingRepository(mongoProvider)
	if err != nil {
		return fmt.Errorf("build listing repository: %w", err)
	}
	orderRepo, err := mongorepo.NewOrderRepository(mongoProvider)
	if err != nil {
		return fmt.Errorf("build order repository: %w", err)
	}
	images, err := c.buildImageStore(ctx, mongoProvider)
	if err != nil {
		return err
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	c.onClose("firestore", func(context.Context) error { return firestoreProvider.Close() })
	userRepo, err := firestorerepo.NewUserRepository(firestoreProvider)
	if err != nil {
		return fmt.Errorf("build user repository: %w", err)
	}

	admin, err := auth.NewFirebaseAdmin(ctx, cfg.Firebase)
	if err != nil {
		return fmt.Errorf("build firebase admin: %w", err)
	}
	c.Authenticator = auth.NewAuthenticator(admin,
		auth.WithUserGetter(admin),
		auth.WithRoleResolver(func(ctx context.Context, uid string) (string, error) {
			profile, err := userRepo.FindByID(ctx, uid)
			return profile.Role, err
		}),
	)

	publisher, err := c.buildPublisher(ctx)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		c.onClose("redis", func(context.Context) error { return redisClient.Close() })
		c.Limiter = ratelimit.NewRedisLimiter(redisClient, o.clock)
		c.Idempotency = idempotency.NewRedisStore(redisClient)
	} else {
		logger.Info("redis not configured; rate limits and idempotency keys stay in process")
		c.Limiter = ratelimit.NewMemoryLimiter(o.clock)
		c.Idempotency = idempotency.NewMemoryStore(o.clock)
	}

	stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		Logger:        observability.EventLogger(logger, "payments"),
		Clock:         o.clock,
	})
	if err != nil {
		return fmt.Errorf("build stripe provider: %w", err)
	}

	c.Taxonomy, err = taxonomy.Default()
	if err != nil {
		return fmt.Errorf("load taxonomy: %w", err)
	}
	assembler := catalog.NewAssembler(catalog.AssemblerConfig{
		BaseURL:    cfg.Public.BaseURL,
		Logger:     logger,
		Normalizer: newNormalizer(logger, o.clock),
	})

	genDeps := services.ListingGeneratorDeps{
		Taxonomy: c.Taxonomy,
		Clock:    o.clock,
		Logger:   observability.EventLogger(logger, "generator"),
	}
	switch gemini, err := genai.NewGeminiClient(ctx, cfg.AI); {
	case errors.Is(err, genai.ErrNotConfigured):
		logger.Warn("gemini api key not configured; listings use fallback content")
	case err != nil:
		return fmt.Errorf("build gemini client: %w", err)
	default:
		genDeps.Model = gemini
	}
	generator, err := services.NewListingGenerator(genDeps)
	if err != nil {
		return err
	}

	if c.Services.Profiles, err = services.NewProfileService(services.ProfileServiceDeps{
		Users:         userRepo,
		Identity:      admin,
		Authenticator: c.Authenticator,
		Events:        publisher,
		Clock:         o.clock,
		Logger:        observability.EventLogger(logger, "profiles"),
	}); err != nil {
		return fmt.Errorf("build profile service: %w", err)
	}
	if c.Services.Listings, err = services.NewListingService(services.ListingServiceDeps{
		Listings:  listingRepo,
		Images:    images,
		Profiles:  userRepo,
		Generator: generator,
		Assembler: assembler,
		Events:    publisher,
		Clock:     o.clock,
		Logger:    observability.EventLogger(logger, "listings"),
	}); err != nil {
		return fmt.Errorf("build listing service: %w", err)
	}
	if c.Services.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:    orderRepo,
		Listings:  listingRepo,
		Profiles:  userRepo,
		Assembler: assembler,
		Mailer:    c.buildMailer(),
		Events:    publisher,
		Clock:     o.clock,
		Logger:    observability.EventLogger(logger, "orders"),
	}); err != nil {
		return fmt.Errorf("build order service: %w", err)
	}
	if c.Services.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Listings:   listingRepo,
		Orders:     orderRepo,
		OrderFlow:  c.Services.Orders,
		Payments:   stripe,
		Assembler:  assembler,
		Events:     publisher,
		Currency:   cfg.PSP.Currency,
		SuccessURL: cfg.PSP.SuccessURL,
		CancelURL:  cfg.PSP.CancelURL,
		Clock:      o.clock,
		Logger:     observability.EventLogger(logger, "checkout"),
	}); err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}
	if c.Services.Reviews, err = services.NewReviewService(services.ReviewServiceDeps{
		Listings:  listingRepo,
		Assembler: assembler,
		Events:    publisher,
		Clock:     o.clock,
		Sanitizer: textutil.StripTags,
		Logger:    observability.EventLogger(logger, "reviews"),
	}); err != nil {
		return fmt.Errorf("build review service: %w", err)
	}

	checks := []repositories.DependencyCheck{
		{Name: "mongo", Timeout: 1500 * time.Millisecond, Critical: true, Check: mongoProvider.Ping},
		{Name: "firestore", Timeout: 1500 * time.Millisecond, Critical: true, Check: firestoreProvider.Ping},
	}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check:   func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	checks = append(checks, o.checks...)
	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return err
	}
	if c.Services.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            o.clock,
		Build:            o.build,
	}); err != nil {
		return fmt.Errorf("build system service: %w", err)
	}
	return nil
}

// newNormalizer reports unparseable stored prices, which otherwise surface only as zero-priced listings.
func newNormalizer(logger *zap.Logger, clock func() time.Time) *catalog.Normalizer {
	priceLogger := logger.Named("catalog")
	return catalog.NewNormalizer(
		catalog.WithClock(clock),
		catalog.WithPriceFallbackHook(func(field string, raw any) {
			priceLogger.Warn("listing price fell back to default", zap.String("field", field), zap.Any("raw", raw))
		}),
	)
}

func (c *Container) buildImageStore(ctx context.Context, provider *pmongo.Provider) (repositories.ImageStore, error) {
	if c.Config.Storage.ImageBackend != config.ImageBackendGCS {
		store, err := mongorepo.NewGridFSImageStore(provider)
		if err != nil {
			return nil, fmt.Errorf("build gridfs image store: %w", err)
		}
		return store, nil
	}
	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise storage client: %w", err)
	}
	c.onClose("storage", func(context.Context) error { return client.Close() })
	store, err := storage.NewGCSImageStore(client, c.Config.Storage.ImagesBucket)
	if err != nil {
		return nil, fmt.Errorf("build gcs image store: %w", err)
	}
	return store, nil
}

func (c *Container) buildPublisher(ctx context.Context) (services.EventPublisher, error) {
	cfg := c.Config.Events
	switch cfg.Backend {
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, c.Config.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialise pubsub client: %w", err)
		}
		c.onClose("pubsub", func(context.Context) error { return client.Close() })
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.Topic))
		if err != nil {
			return nil, err
		}
		c.onClose("pubsub topic", func(context.Context) error { return publisher.Close() })
		return publisher, nil
	case config.EventsBackendKafka:
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic, c.logger.Named("events"))
		if err != nil {
			return nil, err
		}
		c.onClose("kafka", func(context.Context) error { return publisher.Close() })
		return publisher, nil
	default:
		return events.Nop{}, nil
	}
}

func (c *Container) buildMailer() services.Mailer {
	mc := c.Config.Mail
	if mc.SendGridAPIKey == "" {
		return mail.LogSender{Logger: c.logger.Named("mail")}
	}
	sender, err := mail.NewSendGridSender(mc.SendGridAPIKey, mc.FromAddress, mc.FromName)
	if err != nil {
		c.logger.Warn("sendgrid sender unavailable; order mail is logged only", zap.Error(err))
		return mail.LogSender{Logger: c.logger.Named("mail")}
	}
	return sender
}

func (c *Container) onClose(name string, fn func(context.Context) error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Close releases clients in reverse order of creation and reports every failure.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
