package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects values that win over both the process environment and the .env file.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "PSP.StripeAPIKey") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the environment Load would see, for settings read before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return mergedEnv(newLoaderOptions(opts))
}

// mergedEnv layers the .env file, then the process environment, then the explicit map.
func mergedEnv(o loaderOptions) (map[string]string, error) {
	values, err := readDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if o.useSystemEnv {
		for _, entry := range os.Environ() {
			if key, value, ok := strings.Cut(entry, "="); ok && strings.TrimSpace(key) != "" {
				values[strings.TrimSpace(key)] = value
			}
		}
	}
	for key, value := range o.envMap {
		values[key] = value
	}
	return values, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}

// envSource reads typed values and remembers keys whose values did not parse.
type envSource struct {
	values  map[string]string
	invalid []string
}

// str returns the first non-blank value among keys, in order.
func (e *envSource) str(fallback string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(e.values[key]); value != "" {
			return value
		}
	}
	return fallback
}

func (e *envSource) lower(fallback string, keys ...string) string {
	return strings.ToLower(e.str(fallback, keys...))
}

func (e *envSource) duration(key string, fallback time.Duration) time.Duration {
	raw := e.str("", key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return d
}

func (e *envSource) integer(key string, fallback int) int {
	raw := e.str("", key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return n
}

// list splits a comma separated value, dropping blanks.
func (e *envSource) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.values[key], ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
