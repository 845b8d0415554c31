package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// ProviderConfig selects the Genkit plugin backing the Engine.
type ProviderConfig struct {
	// Provider is the LLM provider: "anthropic", "openai", "google".
	// Empty defaults to "anthropic".
	Provider string
	Model    string
	APIKey   string
}

// NewGenkit initializes Genkit with the configured provider and returns
// an Engine whose generate function calls it. A missing API key yields
// an Engine that resolves every call to FailedResult.
func NewGenkit(ctx context.Context, cfg ProviderConfig, opts ...Option) *Engine {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "anthropic"
	}

	modelID := strings.TrimSpace(cfg.Model)
	if modelID == "" {
		modelID = defaultModelForProvider(provider)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = envAPIKeyForProvider(provider)
	}

	var g *genkit.Genkit
	llmOn := false

	switch provider {
	case "anthropic":
		if apiKey != "" {
			anthropicPlugin := &anthropic.Anthropic{
				APIKey:  apiKey,
				BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			}
			g = genkit.Init(ctx, genkit.WithPlugins(anthropicPlugin))
			llmOn = true
			slog.Info("summarizer initialized", "provider", "anthropic", "model", modelID)
		} else {
			slog.Warn("Anthropic API key missing; summaries will be unavailable")
		}

	case "openai":
		if apiKey != "" {
			openaiPlugin := &compat_oai.OpenAICompatible{
				Provider: "openai",
				APIKey:   apiKey,
				BaseURL:  os.Getenv("OPENAI_BASE_URL"),
			}
			g = genkit.Init(ctx, genkit.WithPlugins(openaiPlugin))
			llmOn = true
			slog.Info("summarizer initialized", "provider", "openai", "model", modelID)
		} else {
			slog.Warn("OpenAI API key missing; summaries will be unavailable")
		}

	case "google":
		if apiKey != "" {
			_ = os.Setenv("GEMINI_API_KEY", apiKey)
			g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
			llmOn = true
			slog.Info("summarizer initialized", "provider", "google", "model", modelID)
		} else {
			slog.Warn("Gemini API key missing; summaries will be unavailable")
		}

	default:
		slog.Warn("unknown LLM provider; summaries will be unavailable", "provider", provider)
	}

	modelName := modelNameForProvider(provider, modelID)

	generate := func(ctx context.Context, prompt string) (string, error) {
		if !llmOn {
			return "", fmt.Errorf("llm provider %s not configured", provider)
		}
		resp, err := genkit.Generate(ctx, g,
			ai.WithModelName(modelName),
			ai.WithPrompt(prompt),
		)
		if err != nil {
			return "", fmt.Errorf("genkit generate: %w", err)
		}
		return resp.Text(), nil
	}

	e := New(generate, opts...)
	e.provider = provider
	e.model = modelName
	return e
}

func defaultModelForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-3-haiku-20240307"
	case "openai":
		return "gpt-4o-mini"
	case "google":
		return "gemini-2.5-flash"
	default:
		return ""
	}
}

func envAPIKeyForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "google":
		if k := os.Getenv("GEMINI_API_KEY"); k != "" {
			return k
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

func modelNameForProvider(provider, model string) string {
	switch provider {
	case "anthropic":
		return "anthropic/" + model
	case "openai":
		return "openai/" + model
	case "google":
		return "googleai/" + model
	default:
		return model
	}
}
