// Package config provides configuration loading for studybuddy.
package config

import (
	"fmt"

	"github.com/varivashyap/studybuddy/internal/embeddings"
	"github.com/varivashyap/studybuddy/internal/logging"
	"github.com/varivashyap/studybuddy/internal/reranker"
	"github.com/varivashyap/studybuddy/internal/retriever"
	"github.com/varivashyap/studybuddy/internal/telemetry"
)

// Config is the root configuration.
type Config struct {
	Logging   logging.Config    `koanf:"logging"`
	Telemetry telemetry.Config  `koanf:"telemetry"`
	Embedding embeddings.Config `koanf:"embedding"`
	Reranker  RerankerConfig    `koanf:"reranker"`
	Retrieval retriever.Config  `koanf:"retrieval"`
}

// RerankerConfig selects and configures the reranking backend.
type RerankerConfig struct {
	// Provider is the reranker backend: "overlap", "tei" or "none".
	// Default: overlap.
	Provider string `koanf:"provider"`

	// TEI configures the TEI backend (when selected).
	TEI reranker.TEIConfig `koanf:"tei"`
}

// Default returns the configuration with all defaults applied.
func Default() Config {
	cfg := Config{
		Reranker:  RerankerConfig{Provider: "overlap"},
		Retrieval: retriever.DefaultConfig(),
	}
	cfg.Logging.ApplyDefaults()
	cfg.Telemetry.ApplyDefaults()
	cfg.Embedding.ApplyDefaults()
	return cfg
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.Reranker.Provider {
	case "overlap", "none":
	case "tei":
		if err := c.Reranker.TEI.Validate(); err != nil {
			return fmt.Errorf("reranker.tei: %w", err)
		}
	default:
		return fmt.Errorf("reranker: unknown provider %q", c.Reranker.Provider)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	return nil
}
