package embed

import (
	"net/http"

	"golang.org/x/time/rate"
)

// config holds shared configuration for embedder implementations.
type config struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
	pooling    Pooling
	normalize  bool
	batchSize  int
	maxRetries int
	limiter    *rate.Limiter
}

// Option configures an embedder.
type Option func(*config)

// WithModel sets the embedding model name.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithDimension sets the desired output vector dimensionality.
func WithDimension(dim int) Option {
	return func(c *config) { c.dim = dim }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithPooling sets the pooling strategy.
func WithPooling(p Pooling) Option {
	return func(c *config) { c.pooling = p }
}

// WithNormalize enables or disables L2 normalization of the output.
func WithNormalize(normalize bool) Option {
	return func(c *config) { c.normalize = normalize }
}

// WithBatchSize caps the number of texts per API call.
func WithBatchSize(n int) Option {
	return func(c *config) { c.batchSize = n }
}

// WithMaxRetries sets the number of SDK retries per API call.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithRateLimit limits API calls to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}
