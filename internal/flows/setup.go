// Package flows implements the basic, hybrid and versioning walkthroughs
// run by the vectable command.
package flows

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/vectable"
	"github.com/hupe1980/vectable/config"
	"github.com/hupe1980/vectable/embed"
	"github.com/redis/go-redis/v9"
)

// Env is what a flow runs against.
type Env struct {
	DB       *vectable.DB
	Embedder embed.Embedder
	Out      io.Writer
	Wait     []vectable.WaitOption

	closers []io.Closer
}

// Close releases the connection, the embedder and any cache client.
func (e *Env) Close() error {
	var errs []error
	if e.DB != nil {
		errs = append(errs, e.DB.Close())
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	return errors.Join(errs...)
}

// Setup builds the embedder described by cfg and connects to cfg.URI.
func Setup(ctx context.Context, cfg *config.Config, out io.Writer, opts ...vectable.Option) (*Env, error) {
	env := &Env{
		Out: out,
		Wait: []vectable.WaitOption{
			vectable.WithPollInterval(cfg.Wait.Interval),
			vectable.WithWaitTimeout(cfg.Wait.Timeout),
			vectable.WithMaxAttempts(cfg.Wait.MaxAttempts),
		},
	}

	emb, err := newEmbedder(cfg, env)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	env.Embedder = emb
	env.closers = append(env.closers, emb)

	opts = append([]vectable.Option{
		vectable.WithAPIKey(cfg.APIKey),
		vectable.WithRegion(cfg.Region),
		vectable.WithEmbedder(emb),
	}, opts...)
	db, err := vectable.Connect(ctx, cfg.URI, opts...)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	env.DB = db
	return env, nil
}

func newEmbedder(cfg *config.Config, env *Env) (embed.Embedder, error) {
	ec := cfg.Embedder
	pooling, err := embed.ParsePooling(ec.Pooling)
	if err != nil {
		return nil, &config.Error{Field: "embedder.pooling", Err: err}
	}

	var opts []embed.Option
	if ec.Model != "" {
		opts = append(opts, embed.WithModel(ec.Model))
	}
	if ec.Dimension > 0 {
		opts = append(opts, embed.WithDimension(ec.Dimension))
	}
	opts = append(opts, embed.WithPooling(pooling))
	if ec.Normalize != nil {
		opts = append(opts, embed.WithNormalize(*ec.Normalize))
	}

	var emb embed.Embedder
	switch ec.Provider {
	case "openai":
		if ec.BaseURL != "" {
			opts = append(opts, embed.WithBaseURL(ec.BaseURL))
		}
		if ec.BatchSize > 0 {
			opts = append(opts, embed.WithBatchSize(ec.BatchSize))
		}
		if ec.RateLimit > 0 {
			opts = append(opts, embed.WithRateLimit(ec.RateLimit, ec.Burst))
		}
		emb = embed.NewOpenAI(ec.APIKey, opts...)
	case "hash", "":
		emb = embed.NewHash(opts...)
	default:
		return nil, &config.Error{Field: "embedder.provider", Err: fmt.Errorf("%w: %q", config.ErrInvalidValue, ec.Provider)}
	}

	switch cfg.Cache.Type {
	case "lru":
		emb = embed.NewCached(emb, embed.NewLRUCache(cfg.Cache.Size))
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		env.closers = append(env.closers, client)
		emb = embed.NewCached(emb, embed.NewRedisCache(client, cfg.Cache.TTL))
	}
	return emb, nil
}
