package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type BedrockLLMClient struct {
	api bedrockConverseAPI
}

func NewBedrockLLMClient(api bedrockConverseAPI) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}

		switch msg.Role {
		case ChatRoleSystem:
			systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: content})
			continue
		case ChatRoleUser:
			messages = append(messages, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: content},
				},
			})
		case ChatRoleAssistant:
			messages = append(messages, brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: content},
				},
			})
		default:
			return LLMResponse{}, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Zero means unset; the provider default applies.
	if req.Temperature > 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		inference = nil
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
		ToolConfig:      bedrockToolConfig(req.Tools),
	})
	if err != nil {
		return LLMResponse{}, err
	}

	resp, err := bedrockExtractOutput(out)
	if err != nil {
		return LLMResponse{}, err
	}

	if out.StopReason != "" {
		resp.StopReason = string(out.StopReason)
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func bedrockToolConfig(tools []ToolDefinition) *brtypes.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	out := make([]brtypes.Tool, 0, len(tools))
	for _, tool := range tools {
		spec := brtypes.ToolSpecification{
			Name: aws.String(tool.Name),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{
				Value: document.NewLazyDocument(tool.InputSchema),
			},
		}
		if tool.Description != "" {
			spec.Description = aws.String(tool.Description)
		}
		out = append(out, &brtypes.ToolMemberToolSpec{Value: spec})
	}
	return &brtypes.ToolConfiguration{Tools: out}
}

// bedrockExtractOutput walks the response content blocks, collecting free
// text and any tool-use requests. A response consisting solely of tool uses
// is valid.
func bedrockExtractOutput(out *bedrockruntime.ConverseOutput) (LLMResponse, error) {
	if out == nil {
		return LLMResponse{}, errors.New("conversation: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return LLMResponse{}, errors.New("conversation: bedrock response did not include a message output")
	}
	if len(msgOut.Value.Content) == 0 {
		return LLMResponse{}, errors.New("conversation: bedrock response message was empty")
	}

	var (
		builder strings.Builder
		calls   []FunctionCall
	)
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			builder.WriteString(b.Value)
		case *brtypes.ContentBlockMemberToolUse:
			call := FunctionCall{Arguments: map[string]any{}}
			if b.Value.ToolUseId != nil {
				call.ID = *b.Value.ToolUseId
			}
			if b.Value.Name != nil {
				call.Name = *b.Value.Name
			}
			if b.Value.Input != nil {
				// UnmarshalSmithyDocument is broken for lazy documents in the
				// generated SDK code (it feeds the target pointer back into the
				// decoder), so round-trip through JSON instead.
				raw, err := b.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return LLMResponse{}, fmt.Errorf("conversation: decode tool input for %q: %w", call.Name, err)
				}
				var args map[string]any
				if err := json.Unmarshal(raw, &args); err != nil {
					return LLMResponse{}, fmt.Errorf("conversation: decode tool input for %q: %w", call.Name, err)
				}
				call.Arguments = args
			}
			calls = append(calls, call)
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" && len(calls) == 0 {
		return LLMResponse{}, errors.New("conversation: bedrock response contained no usable content blocks")
	}
	return LLMResponse{Text: text, FunctionCalls: calls}, nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
