// Package gemini adapts Google's Gemini API to the embedding and completion
// contracts. The API key is read from settings on every call so a key
// changed by an admin takes effect without a restart.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mercora/backend/internal/settings"
)

var (
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrCompletionUnavailable = errors.New("completion unavailable")
)

// clientCache keeps one genai client per API key and replaces it when the
// configured key changes. A replaced client is closed once the last call
// holding it has released it.
type clientCache struct {
	settingsSvc *settings.Service
	clientOpts  []option.ClientOption

	mu         sync.Mutex
	current    *lease
	currentKey string
}

type lease struct {
	client  *genai.Client
	users   int
	retired bool
	closed  bool
}

func newClientCache(svc *settings.Service, opts []option.ClientOption) *clientCache {
	return &clientCache{settingsSvc: svc, clientOpts: opts}
}

// get returns the client for the configured key. Callers must call release
// when the request using the client is done.
func (c *clientCache) get(ctx context.Context) (*genai.Client, func(), error) {
	s, err := c.settingsSvc.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey == "" {
		return nil, nil, fmt.Errorf("gemini api key not configured")
	}
	return c.getClient(ctx, s.GeminiAPIKey)
}

func (c *clientCache) getClient(ctx context.Context, key string) (*genai.Client, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.currentKey != key {
		opts := append(append([]option.ClientOption{}, c.clientOpts...), option.WithAPIKey(key))
		client, err := genai.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		c.retire()
		c.current = &lease{client: client}
		c.currentKey = key
	}

	l := c.current
	l.users++
	return l.client, func() { c.release(l) }, nil
}

func (c *clientCache) release(l *lease) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.users--
	if l.retired && l.users == 0 {
		l.close()
	}
}

// retire drops the current lease, closing it now if nothing holds it.
// c.mu must be held.
func (c *clientCache) retire() {
	if c.current == nil {
		return
	}
	c.current.retired = true
	if c.current.users == 0 {
		c.current.close()
	}
	c.current = nil
	c.currentKey = ""
}

func (l *lease) close() {
	if l.closed {
		return
	}
	l.closed = true
	if err := l.client.Close(); err != nil {
		slog.Warn("failed to close genai client", "error", err)
	}
}

func (c *clientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retire()
	return nil
}
