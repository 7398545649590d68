// Package qdrant runs full-text relevance queries against Qdrant
// collections. It is read-only: collections are populated elsewhere.
package qdrant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

const (
	defaultPort    = 6334
	defaultTimeout = 30 * time.Second
)

// Client is a closable Qdrant connection scoped to one collection prefix.
type Client struct {
	conn    *qdrant.Client
	prefix  string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// Open connects to the Qdrant instance described by cfg. Connections are
// established lazily by the gRPC client, so Open succeeds even when the
// server is down; use Ping to check reachability.
func Open(cfg config.QdrantConfig) (*Client, error) {
	host, port, timeout := cfg.Host, cfg.Port, cfg.Timeout
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = defaultPort
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	conn, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, fmt.Sprintf("connecting to qdrant at %s:%d", host, port), err)
	}
	return &Client{conn: conn, prefix: cfg.CollectionPrefix, timeout: timeout}, nil
}

// Close releases the connection. Further calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Ping asks the server for its health title.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		reply, err := c.conn.HealthCheck(ctx)
		if err != nil {
			return errors.Wrap(errors.CodeUnavailable, "qdrant health check failed", err)
		}
		if reply.GetTitle() == "" {
			return errors.New(errors.CodeUnavailable, "qdrant health check returned no title")
		}
		return nil
	})
}

// do runs fn with the client's timeout unless the client was closed.
func (c *Client) do(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New(errors.CodeUnavailable, "qdrant client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(ctx)
}

// collection maps an index name of a search configuration to its
// collection.
func (c *Client) collection(index string) string {
	return c.prefix + index
}
