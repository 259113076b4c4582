package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 60 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultMongoDatabase       = "kalamitra"
	defaultMongoTimeout        = 10 * time.Second
	defaultCurrency            = "inr"
	defaultSuccessURL          = "http://localhost:3000/marketplace?success=true"
	defaultCancelURL           = "http://localhost:3000/marketplace?canceled=true"
	defaultGeminiModel         = "gemini-2.5-flash"
	defaultAITimeout           = 45 * time.Second
	defaultEventsTopic         = "marketplace-events"
	defaultRateLimitPerMinute  = 120
	defaultRateLimitAuthPerMin = 240
	defaultMaxUploadBytes      = 25 << 20
	defaultSecurityEnvironment = "local"
)

// Image storage backends.
const (
	ImageBackendGridFS = "gridfs"
	ImageBackendGCS    = "gcs"
)

// Event publishing backends.
const (
	EventsBackendNone   = "none"
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Public     PublicConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	Mongo      MongoConfig
	Storage    StorageConfig
	PSP        PSPConfig
	AI         AIConfig
	Events     EventsConfig
	Cache      CacheConfig
	Mail       MailConfig
	RateLimits RateLimitConfig
	CORS       CORSConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

// PublicConfig holds the externally visible origin of the API.
type PublicConfig struct {
	// BaseURL prefixes every image URL handed to clients. Empty means images resolve to the placeholder.
	BaseURL string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores profile database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// MongoConfig stores the listing and order document store connection.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// StorageConfig selects where listing image bytes live.
type StorageConfig struct {
	ImageBackend string
	ImagesBucket string
}

// PSPConfig collects payment provider settings.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	Currency            string
	SuccessURL          string
	CancelURL           string
}

// AIConfig configures listing content generation.
type AIConfig struct {
	GeminiAPIKey string
	Model        string
	Timeout      time.Duration
}

// EventsConfig selects the domain event transport.
type EventsConfig struct {
	Backend      string
	Topic        string
	KafkaBrokers []string
}

// CacheConfig points at the shared Redis instance. Empty Addr keeps state in process.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// MailConfig configures transactional email.
type MailConfig struct {
	SendGridAPIKey string
	FromAddress    string
	FromName       string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute       int
	AuthenticatedPerMinute int
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig groups deployment level security settings.
type SecurityConfig struct {
	Environment string
}

// ValidationError lists the config fields that are missing or out of range and the environment keys whose
// values could not be parsed.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid or missing [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field and key names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Load builds the configuration from defaults, the .env file, the process environment and explicit
// overrides, then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := mergedEnv(options)
	if err != nil {
		return Config{}, err
	}
	env := &envSource{values: values}

	cfg := Config{
		Server: ServerConfig{
			Port:           env.str(defaultPort, "API_SERVER_PORT", "PORT"),
			ReadTimeout:    env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			MaxUploadBytes: int64(env.integer("API_SERVER_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		},
		Public: PublicConfig{
			BaseURL: strings.TrimRight(env.str("", "API_PUBLIC_BASE_URL", "NEXT_PUBLIC_API_BASE_URL"), "/"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("", "API_FIREBASE_PROJECT_ID"),
			CredentialsFile: env.str("", "API_FIREBASE_CREDENTIALS_FILE"),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("", "API_FIRESTORE_PROJECT_ID", "API_FIREBASE_PROJECT_ID"),
			EmulatorHost: env.str("", "API_FIRESTORE_EMULATOR_HOST"),
		},
		Mongo: MongoConfig{
			URI:            env.str("", "API_MONGO_URI", "MONGO_URI"),
			Database:       env.str(defaultMongoDatabase, "API_MONGO_DATABASE"),
			ConnectTimeout: env.duration("API_MONGO_CONNECT_TIMEOUT", defaultMongoTimeout),
		},
		Storage: StorageConfig{
			ImageBackend: env.lower(ImageBackendGridFS, "API_STORAGE_IMAGE_BACKEND"),
			ImagesBucket: env.str("", "API_STORAGE_IMAGES_BUCKET"),
		},
		PSP: PSPConfig{
			StripeAPIKey:        env.str("", "API_PSP_STRIPE_API_KEY"),
			StripeWebhookSecret: env.str("", "API_PSP_STRIPE_WEBHOOK_SECRET"),
			Currency:            env.lower(defaultCurrency, "API_PSP_CURRENCY"),
			SuccessURL:          env.str(defaultSuccessURL, "API_PSP_SUCCESS_URL"),
			CancelURL:           env.str(defaultCancelURL, "API_PSP_CANCEL_URL"),
		},
		AI: AIConfig{
			GeminiAPIKey: env.str("", "API_AI_GEMINI_API_KEY", "GEMINI_API_KEY"),
			Model:        env.str(defaultGeminiModel, "API_AI_MODEL"),
			Timeout:      env.duration("API_AI_TIMEOUT", defaultAITimeout),
		},
		Events: EventsConfig{
			Backend:      env.lower(EventsBackendNone, "API_EVENTS_BACKEND"),
			Topic:        env.str(defaultEventsTopic, "API_EVENTS_TOPIC"),
			KafkaBrokers: env.list("API_EVENTS_KAFKA_BROKERS"),
		},
		Cache: CacheConfig{
			RedisAddr:     env.str("", "API_REDIS_ADDR"),
			RedisPassword: env.str("", "API_REDIS_PASSWORD"),
			RedisDB:       env.integer("API_REDIS_DB", 0),
		},
		Mail: MailConfig{
			SendGridAPIKey: env.str("", "API_MAIL_SENDGRID_API_KEY"),
			FromAddress:    env.str("", "API_MAIL_FROM_ADDRESS"),
			FromName:       env.str("Kalamitra", "API_MAIL_FROM_NAME"),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:       env.integer("API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitPerMinute),
			AuthenticatedPerMinute: env.integer("API_RATELIMIT_AUTH_PER_MIN", defaultRateLimitAuthPerMin),
		},
		CORS: CORSConfig{
			AllowedOrigins: env.list("API_CORS_ALLOWED_ORIGINS"),
		},
		Security: SecurityConfig{
			Environment: env.lower(defaultSecurityEnvironment, "API_SECURITY_ENVIRONMENT"),
		},
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	}

	resolved, err := resolveSecrets(ctx, options.secret, map[string]*string{
		"Mongo.URI":               &cfg.Mongo.URI,
		"PSP.StripeAPIKey":        &cfg.PSP.StripeAPIKey,
		"PSP.StripeWebhookSecret": &cfg.PSP.StripeWebhookSecret,
		"AI.GeminiAPIKey":         &cfg.AI.GeminiAPIKey,
		"Cache.RedisPassword":     &cfg.Cache.RedisPassword,
		"Mail.SendGridAPIKey":     &cfg.Mail.SendGridAPIKey,
	})
	if err != nil {
		return Config{}, err
	}

	if problems := append(env.invalid, validate(cfg)...); len(problems) > 0 {
		return Config{}, &ValidationError{fields: problems}
	}
	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func validate(cfg Config) []string {
	var problems []string
	require := func(ok bool, field string) {
		if !ok {
			problems = append(problems, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.Server.MaxUploadBytes > 0, "Server.MaxUploadBytes")
	require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	require(cfg.Mongo.URI != "", "Mongo.URI")
	require(cfg.Mongo.Database != "", "Mongo.Database")
	require(cfg.PSP.Currency != "", "PSP.Currency")
	require(cfg.Cache.RedisDB >= 0, "Cache.RedisDB")
	require(cfg.RateLimits.DefaultPerMinute > 0, "RateLimits.DefaultPerMinute")
	require(cfg.RateLimits.AuthenticatedPerMinute > 0, "RateLimits.AuthenticatedPerMinute")

	switch cfg.Storage.ImageBackend {
	case ImageBackendGridFS:
	case ImageBackendGCS:
		require(cfg.Storage.ImagesBucket != "", "Storage.ImagesBucket")
	default:
		problems = append(problems, "Storage.ImageBackend")
	}

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		require(cfg.Events.Topic != "", "Events.Topic")
	case EventsBackendKafka:
		require(cfg.Events.Topic != "", "Events.Topic")
		require(len(cfg.Events.KafkaBrokers) > 0, "Events.KafkaBrokers")
	default:
		problems = append(problems, "Events.Backend")
	}
	return problems
}
