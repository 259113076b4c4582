package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "kalamitra-dev",
		"API_MONGO_URI":           "mongodb://localhost:27017",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "kalamitra-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Mongo.Database != defaultMongoDatabase {
		t.Errorf("expected default database, got %s", cfg.Mongo.Database)
	}
	if cfg.Storage.ImageBackend != ImageBackendGridFS {
		t.Errorf("expected gridfs image backend, got %s", cfg.Storage.ImageBackend)
	}
	if cfg.PSP.Currency != "inr" {
		t.Errorf("expected inr currency, got %s", cfg.PSP.Currency)
	}
	if cfg.AI.Model != "gemini-2.5-flash" {
		t.Errorf("unexpected model %s", cfg.AI.Model)
	}
	if cfg.Events.Backend != EventsBackendNone {
		t.Errorf("expected events disabled, got %s", cfg.Events.Backend)
	}
	if cfg.Public.BaseURL != "" {
		t.Errorf("expected empty base url, got %s", cfg.Public.BaseURL)
	}
	if !slices.Equal(cfg.CORS.AllowedOrigins, []string{"http://localhost:3000"}) {
		t.Errorf("unexpected cors origins %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_IDLE_TIMEOUT":       "2m",
		"API_PUBLIC_BASE_URL":           "https://api.kalamitra.in/",
		"API_FIREBASE_PROJECT_ID":       "kalamitra-prod",
		"API_FIRESTORE_PROJECT_ID":      "kalamitra-profiles",
		"API_MONGO_URI":                 "sm://mongo/uri",
		"API_MONGO_DATABASE":            "marketplace",
		"API_STORAGE_IMAGE_BACKEND":     "GCS",
		"API_STORAGE_IMAGES_BUCKET":     "listing-images",
		"API_PSP_STRIPE_API_KEY":        "secret://stripe/api",
		"API_PSP_STRIPE_WEBHOOK_SECRET": "secret://stripe/webhook",
		"API_AI_GEMINI_API_KEY":         "secret://gemini/key",
		"API_EVENTS_BACKEND":            "kafka",
		"API_EVENTS_KAFKA_BROKERS":      "kafka-1:9092, kafka-2:9092",
		"API_REDIS_ADDR":                "redis:6379",
		"API_MAIL_SENDGRID_API_KEY":     "secret://sendgrid/key",
		"API_CORS_ALLOWED_ORIGINS":      "https://kalamitra.in, https://www.kalamitra.in",
		"API_SECURITY_ENVIRONMENT":      "PROD",
	}

	secrets := map[string]string{
		"secret://mongo/uri":      "mongodb+srv://cluster",
		"secret://stripe/api":     "sk_live",
		"secret://stripe/webhook": "whsec",
		"secret://gemini/key":     "gemini-key",
		"secret://sendgrid/key":   "sg-key",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Public.BaseURL != "https://api.kalamitra.in" {
		t.Errorf("expected trimmed base url, got %s", cfg.Public.BaseURL)
	}
	if cfg.Mongo.URI != "mongodb+srv://cluster" {
		t.Errorf("expected legacy sm:// mongo uri to resolve, got %s", cfg.Mongo.URI)
	}
	if cfg.Storage.ImageBackend != ImageBackendGCS || cfg.Storage.ImagesBucket != "listing-images" {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.PSP.StripeAPIKey != "sk_live" || cfg.PSP.StripeWebhookSecret != "whsec" {
		t.Errorf("expected resolved stripe secrets, got %+v", cfg.PSP)
	}
	if cfg.AI.GeminiAPIKey != "gemini-key" {
		t.Errorf("expected resolved gemini key, got %s", cfg.AI.GeminiAPIKey)
	}
	if !slices.Equal(cfg.Events.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Errorf("unexpected brokers %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Mail.SendGridAPIKey != "sg-key" {
		t.Errorf("expected resolved sendgrid key, got %s", cfg.Mail.SendGridAPIKey)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("expected 2 cors origins, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
}

func TestLoadLegacyBaseURL(t *testing.T) {
	env := baseEnv()
	env["NEXT_PUBLIC_API_BASE_URL"] = "http://localhost:8000"

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Public.BaseURL != "http://localhost:8000" {
		t.Fatalf("expected legacy base url, got %s", cfg.Public.BaseURL)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=\"kalamitra-dot\"\nexport MONGO_URI=mongodb://dot:27017\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "kalamitra-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Mongo.URI != "mongodb://dot:27017" {
		t.Errorf("expected mongo uri from dotenv, got %s", cfg.Mongo.URI)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	for _, want := range []string{"Firebase.ProjectID", "Mongo.URI"} {
		if !slices.Contains(fields, want) {
			t.Fatalf("expected %s in %v", want, fields)
		}
	}
}

func TestLoadRejectsInvalidBackends(t *testing.T) {
	env := baseEnv()
	env["API_STORAGE_IMAGE_BACKEND"] = "gcs"
	env["API_EVENTS_BACKEND"] = "kafka"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	if !slices.Contains(fields, "Storage.ImagesBucket") || !slices.Contains(fields, "Events.KafkaBrokers") {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_PSP_STRIPE_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeWebhookSecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "PSP.StripeWebhookSecret" {
		t.Fatalf("unexpected names %v", got)
	}
	expectedRedacted := redactSecretName("PSP.StripeWebhookSecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadReportsMalformedValues(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_READ_TIMEOUT"] = "soon"
	env["API_REDIS_DB"] = "zero"
	env["API_AI_TIMEOUT"] = "-5s"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	for _, want := range []string{"API_SERVER_READ_TIMEOUT", "API_REDIS_DB", "API_AI_TIMEOUT"} {
		if !slices.Contains(fields, want) {
			t.Fatalf("expected %s in %v", want, fields)
		}
	}
}

func TestSecretRef(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "secret://stripe/api", want: "secret://stripe/api", ok: true},
		{in: " sm://mongo/uri ", want: "secret://mongo/uri", ok: true},
		{in: "sk_test_123", want: "sk_test_123", ok: false},
	}
	for _, tc := range tests {
		got, ok := secretRef(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("secretRef(%q): expected (%q, %v), got (%q, %v)", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}
