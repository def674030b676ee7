// Package openai adapts OpenAI-compatible chat completion APIs to the
// executive's Provider interface.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/vthunder/lifeos/internal/executive"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/types"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4.1-mini"

// Config holds connection settings
type Config struct {
	APIKey     string
	BaseURL    string // empty means the OpenAI API
	Model      string
	MaxRetries int
}

// Provider calls the chat completions endpoint
type Provider struct {
	client sdk.Client
	model  string
}

// New creates a provider
func New(cfg Config) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		client: sdk.NewClient(opts...),
		model:  model,
	}
}

// Model returns the configured model name
func (p *Provider) Model() string {
	return p.model
}

// Complete sends the conversation and returns the first choice
func (p *Provider) Complete(ctx context.Context, req *executive.Request) (*executive.Response, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(p.model),
		Messages: toMessages(req),
	}
	for _, def := range req.Tools {
		params.Tools = append(params.Tools, toTool(def))
	}

	logging.Debug("openai", "Requesting completion: model=%s, messages=%d, tools=%d",
		p.model, len(params.Messages), len(params.Tools))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("chat completion failed with status %d: %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &executive.Response{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	logging.Debug("openai", "Completion: finish=%s, tool_calls=%d, tokens=%d",
		resp.Choices[0].FinishReason, len(out.ToolCalls), resp.Usage.TotalTokens)
	return out, nil
}

func toTool(def types.ToolDefinition) sdk.ChatCompletionToolUnionParam {
	return sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
		Name:        def.Name,
		Description: sdk.String(def.Description),
		Parameters:  sdk.FunctionParameters(def.Parameters),
	})
}

func toMessages(req *executive.Request) []sdk.ChatCompletionMessageParamUnion {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		msgs = append(msgs, sdk.SystemMessage(req.Instructions))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case executive.RoleUser:
			msgs = append(msgs, sdk.UserMessage(m.Content))
		case executive.RoleTool:
			msgs = append(msgs, sdk.ToolMessage(m.Content, m.ToolCallID))
		case executive.RoleAssistant:
			msgs = append(msgs, assistantMessage(m))
		}
	}
	return msgs
}

func assistantMessage(m executive.Message) sdk.ChatCompletionMessageParamUnion {
	if len(m.ToolCalls) == 0 {
		return sdk.AssistantMessage(m.Content)
	}

	param := sdk.ChatCompletionAssistantMessageParam{}
	if m.Content != "" {
		param.Content.OfString = sdk.String(m.Content)
	}
	for _, tc := range m.ToolCalls {
		param.ToolCalls = append(param.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			},
		})
	}
	return sdk.ChatCompletionMessageParamUnion{OfAssistant: &param}
}
