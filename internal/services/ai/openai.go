package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/strideapp/stride/internal/models"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// MaxEntriesInPrompt caps how many progress records go into the prompt
	MaxEntriesInPrompt = 50
	// MaxSummaryLength caps the stored summary text
	MaxSummaryLength = 2000
)

const retrospectiveSystemPrompt = "You are a thoughtful coach who writes short retrospectives " +
	"on personal goals. Write 2-4 sentences in second person, grounded only in the facts given. " +
	"Acknowledge the outcome honestly, point out one pattern in the progress history if there is " +
	"one, and end with a constructive note. Plain text only."

// OpenAIProvider implements the SummaryProvider interface using OpenAI's API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// GenerateRetrospective produces a short reflective summary for a finished goal
func (p *OpenAIProvider) GenerateRetrospective(ctx context.Context, req *RetrospectiveRequest) (string, error) {
	prompt := buildRetrospectivePrompt(req)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(retrospectiveSystemPrompt),
		openai.UserMessage(prompt),
	}

	requestID := ExtractRequestID(ctx)
	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "generate_retrospective"),
			zap.String("model", p.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", SanitizePrompt(prompt, true)),
			zap.String("user_id", ExtractUserID(ctx)),
			zap.String("goal_id", ExtractGoalID(ctx)),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	})
	latency := time.Since(start)

	if err != nil {
		if p.logger != nil && p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", "generate_retrospective"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.Duration("latency_ms", latency),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", apiErr
		}
		return "", fmt.Errorf("failed to generate retrospective: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	if len(content) > MaxSummaryLength {
		content = TruncateString(content, MaxSummaryLength)
	}

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "generate_retrospective"),
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("request_id", requestID),
			zap.Duration("latency_ms", latency),
		)
	}

	return content, nil
}

func buildRetrospectivePrompt(req *RetrospectiveRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %s\n", req.GoalName)
	fmt.Fprintf(&b, "Outcome: %s\n", describeOutcome(req.Outcome))
	fmt.Fprintf(&b, "Target: %s, reached: %s\n", req.TargetValue.String(), req.FinalValue.String())
	fmt.Fprintf(&b, "Started: %s, deadline: %s\n",
		req.CreatedAt.Format("2006-01-02"), req.Deadline.Format("2006-01-02"))

	if req.AbandonmentReason != nil && *req.AbandonmentReason != "" {
		fmt.Fprintf(&b, "Stated reason for abandoning: %s\n", *req.AbandonmentReason)
	}
	if req.ReflectionNotes != nil && *req.ReflectionNotes != "" {
		fmt.Fprintf(&b, "User's own notes: %s\n", *req.ReflectionNotes)
	}

	if len(req.Entries) > 0 {
		b.WriteString("\nProgress history:\n")
		entries := req.Entries
		if len(entries) > MaxEntriesInPrompt {
			entries = entries[len(entries)-MaxEntriesInPrompt:]
		}
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s: %s", e.RecordedAt.Format("2006-01-02"), e.Value.String())
			if e.Notes != nil && *e.Notes != "" {
				fmt.Fprintf(&b, " (%s)", *e.Notes)
			}
			b.WriteString("\n")
		}
	}

	if len(req.PriorGoals) > 0 {
		b.WriteString("\nEarlier attempts at this goal:\n")
		for _, g := range req.PriorGoals {
			fmt.Fprintf(&b, "- %s: %s (%s of %s)\n",
				g.Name, describeOutcome(g.Outcome), g.FinalValue.String(), g.TargetValue.String())
		}
	}

	return b.String()
}

func describeOutcome(status models.GoalStatus) string {
	switch status {
	case models.GoalStatusCompletedSuccess:
		return "completed successfully"
	case models.GoalStatusCompletedFailure:
		return "missed the deadline"
	case models.GoalStatusAbandoned:
		return "abandoned"
	default:
		return string(status)
	}
}
