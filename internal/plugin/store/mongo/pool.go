package mongo

import (
	"context"
	"fmt"
	"sync"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// clientPool shares one driver client per connection URI across every
// conversation stored behind it. Clients are disconnected when their last
// store closes.
type clientPool struct {
	mu      sync.Mutex
	clients map[string]*pooledClient
}

type pooledClient struct {
	client *mongo.Client
	refs   int
}

var pool = &clientPool{clients: map[string]*pooledClient{}}

func (p *clientPool) acquire(ctx context.Context, uri string, cfg *config.Config) (*mongo.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pc, ok := p.clients[uri]; ok {
		pc.refs++
		return pc.client, nil
	}

	opts := options.Client().ApplyURI(uri)
	if cfg != nil {
		if cfg.MongoUsername != "" {
			opts.SetAuth(options.Credential{Username: cfg.MongoUsername, Password: cfg.MongoPassword})
		}
		if cfg.MongoTimeout > 0 {
			opts.SetTimeout(cfg.MongoTimeout)
			opts.SetServerSelectionTimeout(cfg.MongoTimeout)
		}
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Info("Connected to MongoDB", "hosts", opts.Hosts)
	p.clients[uri] = &pooledClient{client: client, refs: 1}
	return client, nil
}

func (p *clientPool) release(ctx context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.clients[uri]
	if !ok {
		return nil
	}
	pc.refs--
	if pc.refs > 0 {
		return nil
	}
	delete(p.clients, uri)
	if err := pc.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}

func (p *clientPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
