package llm

import (
	"context"
	"fmt"

	"github.com/ppiankov/claimvoice/internal/worker"
)

// rateLimitedClient waits on a shared limiter before every call
type rateLimitedClient struct {
	Client
	limiter  *worker.Limiter
	endpoint string
}

// RateLimited wraps a client so each Process call first waits on limiter,
// keyed by the client's endpoint host. A nil limiter returns client unchanged.
func RateLimited(client Client, limiter *worker.Limiter) Client {
	if client == nil || limiter == nil {
		return client
	}
	return &rateLimitedClient{
		Client:   client,
		limiter:  limiter,
		endpoint: EndpointOf(client),
	}
}

// Process waits for the limiter, then delegates
func (c *rateLimitedClient) Process(ctx context.Context, req Request) (*Result, error) {
	if err := c.limiter.Wait(ctx, c.endpoint); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.Client.Process(ctx, req)
}
