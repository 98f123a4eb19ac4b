package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"google.golang.org/genai"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// ProviderFactory is the LLMService backed by Gemini or Claude. Clients are
// created on first use and shared by all workers.
type ProviderFactory struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	logger       arbor.ILogger

	mu           sync.Mutex
	geminiClient *genai.Client
	claudeClient *anthropic.Client

	provider ProviderType
	model    string
}

var _ interfaces.LLMService = (*ProviderFactory)(nil)

// NewProviderFactory creates a new provider factory for the configured default provider
func NewProviderFactory(config *common.Config, logger arbor.ILogger) *ProviderFactory {
	f := &ProviderFactory{
		geminiConfig: &config.Gemini,
		claudeConfig: &config.Claude,
		llmConfig:    &config.LLM,
		logger:       logger,
	}
	// An explicit model prefix such as "claude/" wins over the default provider
	model := f.GetDefaultModel(ProviderType(f.llmConfig.DefaultProvider))
	f.provider = f.DetectProvider(model)
	f.model = f.NormalizeModel(model)
	return f
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-3-5-haiku-latest" -> Claude
// - "claude/claude-3-5-haiku-latest" -> Claude (with prefix)
// - "gemini-2.5-flash" -> Gemini
// - "gemini/gemini-2.5-flash" -> Gemini (with prefix)
// - Empty string -> uses default provider from config
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(f.llmConfig.DefaultProvider)
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return ProviderType(f.llmConfig.DefaultProvider)
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// GetDefaultModel returns the default model for a provider
func (f *ProviderFactory) GetDefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderClaude:
		return f.claudeConfig.Model
	default:
		return f.geminiConfig.Model
	}
}

// Model implements interfaces.LLMService
func (f *ProviderFactory) Model() string {
	return string(f.provider) + "/" + f.model
}

// Chat implements interfaces.LLMService. It makes exactly one provider call.
func (f *ProviderFactory) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	f.logger.Debug().
		Str("provider", string(f.provider)).
		Str("model", f.model).
		Int("message_count", len(messages)).
		Msg("Generating content with provider")

	var (
		text string
		err  error
	)
	switch f.provider {
	case ProviderClaude:
		text, err = f.generateWithClaude(ctx, messages)
	default:
		text, err = f.generateWithGemini(ctx, messages)
	}
	if err != nil {
		return "", classifyProviderError(err)
	}
	return text, nil
}

// getGeminiClient returns a Gemini client, creating one if necessary
func (f *ProviderFactory) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.geminiClient != nil {
		return f.geminiClient, nil
	}
	if f.geminiConfig.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  f.geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// getClaudeClient returns a Claude client, creating one if necessary
func (f *ProviderFactory) getClaudeClient() (*anthropic.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claudeClient != nil {
		return f.claudeClient, nil
	}
	if f.claudeConfig.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := anthropic.NewClient(
		option.WithAPIKey(f.claudeConfig.APIKey),
		// Retries belong to the pipeline's policy
		option.WithMaxRetries(0),
	)
	f.claudeClient = &client
	return f.claudeClient, nil
}

// generateWithClaude generates content using Claude API
func (f *ProviderFactory) generateWithClaude(ctx context.Context, messages []interfaces.Message) (string, error) {
	client, err := f.getClaudeClient()
	if err != nil {
		return "", err
	}

	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(f.model),
		MaxTokens: int64(f.claudeConfig.MaxTokens),
		Messages:  claudeMessages,
	}
	if f.claudeConfig.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(f.claudeConfig.Temperature))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, common.ParseDuration(f.claudeConfig.Timeout, 60*time.Second))
	defer cancel()

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(text.String()), nil
}

// generateWithGemini generates content using Gemini API
func (f *ProviderFactory) generateWithGemini(ctx context.Context, messages []interfaces.Message) (string, error) {
	client, err := f.getGeminiClient(ctx)
	if err != nil {
		return "", err
	}

	contents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(f.geminiConfig.Temperature),
		// Two-sentence answers do not need a thinking budget
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	if f.geminiConfig.MaxTokens > 0 {
		config.MaxOutputTokens = int32(f.geminiConfig.MaxTokens)
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	ctx, cancel := context.WithTimeout(ctx, common.ParseDuration(f.geminiConfig.Timeout, 60*time.Second))
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, f.model, contents, config)
	if err != nil {
		return "", err
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	responseText := strings.TrimSpace(resp.Text())
	if responseText == "" {
		return "", ErrEmptyResponse
	}
	return responseText, nil
}

// Close releases provider clients
func (f *ProviderFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geminiClient = nil
	f.claudeClient = nil
	return nil
}

// convertMessagesToGemini converts messages to Gemini contents, returning the
// first system message separately.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if err := validateMessages(messages); err != nil {
		return nil, "", err
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	return contents, systemText, nil
}

// convertMessagesToClaude converts messages to Claude params, returning the
// first system message separately.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if err := validateMessages(messages); err != nil {
		return nil, "", err
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		if msg.Role == "assistant" {
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return claudeMessages, systemText, nil
}

func validateMessages(messages []interfaces.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages cannot be empty", ErrInvalidRequest)
	}
	for _, msg := range messages {
		if msg.Role == "user" {
			return nil
		}
	}
	return fmt.Errorf("%w: at least one message must have role 'user'", ErrInvalidRequest)
}
