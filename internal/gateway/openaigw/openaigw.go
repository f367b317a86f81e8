// Package openaigw adapts the intelligence.Gateway capability to
// github.com/sashabaranov/go-openai, mirroring mbflow's
// executor/builtin/llm.go provider-per-executor pattern generalized to a
// single capability method.
package openaigw

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

// CostTable prices a model per 1K prompt+completion tokens combined. Unknown
// models fall back to DefaultCostPer1K.
type CostTable map[string]float64

// DefaultCostPer1K is charged for models absent from the cost table.
const DefaultCostPer1K = 0.002

// Client implements intelligence.Gateway against the OpenAI chat-completions API.
type Client struct {
	api  *openai.Client
	cost CostTable
}

// New builds a Client from an API key and an optional per-model cost table.
func New(apiKey string, cost CostTable) *Client {
	return &Client{api: openai.NewClient(apiKey), cost: cost}
}

var _ intelligence.Gateway = (*Client)(nil)

func toOpenAIMessages(msgs []intelligence.GatewayMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (c *Client) priceOf(model string, promptTokens, completionTokens int) float64 {
	perK, ok := c.cost[model]
	if !ok {
		perK = DefaultCostPer1K
	}
	return float64(promptTokens+completionTokens) / 1000.0 * perK
}

// SendAI implements intelligence.Gateway. When req.Mode == "structured" and
// req.Schema is non-nil the request uses the JSON-object response format and
// the reply is parsed into Data; req.Schema itself is not sent to the model,
// so the reply is not constrained to it. Otherwise the raw assistant text is
// returned.
func (c *Client) SendAI(ctx context.Context, req intelligence.GatewayRequest) (intelligence.GatewayResponse, error) {
	model := req.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Mode == "structured" && req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return intelligence.GatewayResponse{Success: false, Error: err.Error()}, nil
	}
	if len(resp.Choices) == 0 {
		return intelligence.GatewayResponse{Success: false, Error: "no choices returned"}, nil
	}
	content := resp.Choices[0].Message.Content
	cost := c.priceOf(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	out := intelligence.GatewayResponse{Success: true, Text: content, UsdCost: cost}
	if req.Mode == "structured" {
		var data map[string]any
		if err := json.Unmarshal([]byte(content), &data); err != nil {
			return intelligence.GatewayResponse{Success: false, Error: fmt.Sprintf("structured response was not valid JSON: %v", err)}, nil
		}
		out.Data = data
	}
	return out, nil
}
