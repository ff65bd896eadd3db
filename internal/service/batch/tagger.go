package batch

import (
	"fmt"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/llm"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/tagging"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// ProviderTaggers builds a tagging engine per job on top of a provider
// configured from base. A job's API key overrides the base key.
func ProviderTaggers(log logger.Logger, base llm.Config, opts tagging.Options) TaggerFactory {
	return func(cfg models.JobConfig) (Tagger, error) {
		pcfg := base
		if cfg.APIKey != "" {
			pcfg.APIKey = cfg.APIKey
		}
		provider, err := llm.New(pcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider: %w", err)
		}
		o := opts
		o.Model = cfg.ModelName
		return tagging.NewEngine(log, provider, o), nil
	}
}
