package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kalamitra/api/internal/platform/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultAppName        = "kalamitra-api"
)

// ErrProviderClosed is returned by Database after Close.
var ErrProviderClosed = errors.New("mongodb: provider is closed")

// Provider lazily connects a shared MongoDB client for the configured database.
type Provider struct {
	cfg        config.MongoConfig
	clientOpts []*options.ClientOptions

	mu     sync.Mutex
	client *mongo.Client
	closed bool
}

// ProviderOption customises the Provider behaviour.
type ProviderOption func(*Provider)

// WithClientOptions merges additional driver options after the URI is applied.
func WithClientOptions(opts ...*options.ClientOptions) ProviderOption {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// NewProvider constructs a Provider; no connection is made until first use.
func NewProvider(cfg config.MongoConfig, opts ...ProviderOption) *Provider {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	p := &Provider{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Database returns the configured database handle, connecting on first use.
func (p *Provider) Database(ctx context.Context) (*mongo.Database, error) {
	client, err := p.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(p.cfg.Database), nil
}

// Collection is a shorthand for Database(ctx).Collection(name).
func (p *Provider) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := p.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Client returns the shared client.
func (p *Provider) Client(ctx context.Context) (*mongo.Client, error) {
	if p == nil {
		return nil, errors.New("mongodb: provider is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		return p.client, nil
	}

	uri := strings.TrimSpace(p.cfg.URI)
	if uri == "" {
		return nil, errors.New("mongodb: uri is required")
	}
	opts := append([]*options.ClientOptions{
		options.Client().
			ApplyURI(uri).
			SetAppName(defaultAppName).
			SetConnectTimeout(p.cfg.ConnectTimeout).
			SetServerSelectionTimeout(p.cfg.ConnectTimeout),
	}, p.clientOpts...)

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	p.client = client
	return client, nil
}

// Ping checks that the primary is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return WrapError("ping", client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client. The Provider cannot be reused afterwards.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}
