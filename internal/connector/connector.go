// Package connector exposes webmd as a single call: a batch of prompts in,
// one normalized completion record per prompt out.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/reinhart/webmd/internal/assistant"
	"github.com/reinhart/webmd/internal/configuration"
	"github.com/reinhart/webmd/internal/logger"
)

// Completion is the record for one prompt. Content and TokenUsage are set on
// success; Error is set on failure.
type Completion struct {
	Content    *string `json:"Content"`
	Error      string  `json:"Error,omitempty"`
	TokenUsage *int    `json:"TokenUsage"`
}

// Response is the result of a run. Error is set only when the run could not
// start at all.
type Response struct {
	Completions []Completion `json:"Completions"`
	ModelType   string       `json:"ModelType"`
	Error       string       `json:"Error,omitempty"`
}

// Connector wires configuration, a provider factory and the webpage converter
// into runs.
type Connector struct {
	cfg       *configuration.Config
	factory   ProviderFactory
	converter assistant.WebpageConverter
}

type Option func(*Connector)

// WithProviderFactory replaces NewProvider.
func WithProviderFactory(f ProviderFactory) Option {
	return func(c *Connector) { c.factory = f }
}

func New(cfg *configuration.Config, converter assistant.WebpageConverter, opts ...Option) *Connector {
	c := &Connector{
		cfg:       cfg,
		factory:   NewProvider,
		converter: converter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewAgent builds an agent for model. properties["prompt"] overrides the
// configured system prompt; every other property is forwarded to the
// completion service. The returned release func closes the provider.
func (c *Connector) NewAgent(ctx context.Context, model string, properties, settings map[string]any) (*assistant.Agent, func(), error) {
	provider, err := c.factory(ctx, c.cfg, settings)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if closer, ok := provider.(io.Closer); ok {
			closer.Close()
		}
	}

	systemPrompt, params := splitProperties(properties, c.cfg.Agent.SystemPrompt)
	agent := assistant.NewAgent(provider, assistant.NewToolRegistry(c.converter), model, systemPrompt, params)
	return agent, release, nil
}

// Run answers prompts in order within one conversation. It never fails as a
// whole once the provider is built: each prompt's failure is reported in its
// own Completion.
func (c *Connector) Run(ctx context.Context, model string, prompts []string, properties, settings map[string]any) Response {
	agent, release, err := c.NewAgent(ctx, model, properties, settings)
	if err != nil {
		logger.Error("run setup failed: %v", err)
		return Response{Error: errorMessage(err), ModelType: model}
	}
	defer release()

	logger.ForRun(agent.ID()).Info("model=%s prompts=%d", model, len(prompts))
	return mapToResponse(agent.Run(ctx, prompts), model)
}

func mapToResponse(outcomes []assistant.Outcome, model string) Response {
	resp := Response{
		Completions: make([]Completion, 0, len(outcomes)),
		ModelType:   model,
	}

	modelSeen := false
	for _, o := range outcomes {
		if o.Err != nil {
			resp.Completions = append(resp.Completions, Completion{Error: errorMessage(o.Err)})
			continue
		}
		content := o.Reply.Content
		tokens := o.Reply.Usage.TotalTokens
		resp.Completions = append(resp.Completions, Completion{Content: &content, TokenUsage: &tokens})

		if !modelSeen && o.Reply.Model != "" {
			resp.ModelType = o.Reply.Model
			modelSeen = true
		}
	}
	return resp
}

func splitProperties(properties map[string]any, defaultPrompt string) (string, map[string]any) {
	systemPrompt := defaultPrompt
	params := make(map[string]any, len(properties))
	for k, v := range properties {
		if k == "prompt" {
			if s := fmt.Sprint(v); v != nil && s != "" {
				systemPrompt = s
			}
			continue
		}
		params[k] = v
	}
	return systemPrompt, params
}

// errorMessage never returns an empty string.
func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	if b, jerr := json.Marshal(err); jerr == nil && string(b) != "{}" {
		return string(b)
	}
	return fmt.Sprintf("%#v", err)
}
