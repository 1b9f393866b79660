package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/xhad/docrag/internal/types"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// ChatEngine generates grounded answers with an LLM.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config = withChatDefaults(config)

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case "ollama":
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("%w: openai api key is required", types.ErrInvalidConfig)
		}
		opts := []lcopenai.Option{lcopenai.WithModel(config.Model), lcopenai.WithToken(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(config.BaseURL))
		}
		model, err = lcopenai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", types.ErrInvalidConfig, config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{config: config, llm: model}, nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) *ChatEngine {
	return &ChatEngine{config: withChatDefaults(config), llm: model}
}

func withChatDefaults(config ChatConfig) ChatConfig {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Model == "" {
		if config.Provider == "ollama" {
			config.Model = "mistral"
		} else {
			config.Model = "gpt-4.1-mini"
		}
	}
	if config.Provider == "ollama" && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2000
	}
	return config
}

func (ce *ChatEngine) messages(system, user string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
}

// Stream generates an answer and hands every streamed fragment to onDelta.
func (ce *ChatEngine) Stream(ctx context.Context, system, user string, onDelta func(string) error) error {
	_, err := ce.llm.GenerateContent(ctx, ce.messages(system, user),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onDelta(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("chat error: %w", err)
	}
	return nil
}
