package config

import (
	"fmt"
	"time"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/answer"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/embedding"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/engine"
)

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// DatabaseOptions places the database files under DataDir.
func (c *AppConfig) DatabaseOptions() engine.Options {
	opts := engine.DataDirOptions(c.DataDir, c.Dimension)
	opts.IndexKind = c.Index.Kind
	return opts
}

// BuildEmbedder assembles the configured embedder.
func (c *AppConfig) BuildEmbedder() (embedding.Embedder, error) {
	switch c.Embedder.Type {
	case "hash", "":
		return embedding.NewHashEmbedder(c.Dimension), nil
	case "openai":
		o := c.Embedder.OpenAI
		if o == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Dimension: c.Dimension,
			BatchSize: o.BatchSize,
			Timeout:   secs(o.TimeoutSecs),
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
}

// RetryPolicy converts the retry block into an answer.RetryPolicy.
func (c *AppConfig) RetryPolicy() answer.RetryPolicy {
	r := c.Answer.Retry
	return answer.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		MinBackoff:  secs(r.MinBackoffSecs),
		MaxBackoff:  secs(r.MaxBackoffSecs),
	}
}

// BuildProvider assembles the configured answer provider. Remote providers are
// wrapped in the retry policy.
func (c *AppConfig) BuildProvider() (answer.Provider, error) {
	switch c.Answer.Type {
	case "static", "":
		return answer.StaticProvider{}, nil
	case "openai":
		o := c.Answer.OpenAI
		if o == nil {
			return nil, fmt.Errorf("openai answer config missing")
		}
		p, err := answer.NewOpenAIProvider(answer.OpenAIConfig{
			BaseURL:     o.BaseURL,
			APIKeyEnv:   o.APIKeyEnv,
			Model:       o.Model,
			MaxTokens:   o.MaxTokens,
			Temperature: o.Temperature,
			Timeout:     secs(o.TimeoutSecs),
		})
		if err != nil {
			return nil, err
		}
		return answer.Retrying{Provider: p, Policy: c.RetryPolicy()}, nil
	default:
		return nil, fmt.Errorf("unknown answer provider: %s", c.Answer.Type)
	}
}
