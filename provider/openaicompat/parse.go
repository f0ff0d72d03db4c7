package openaicompat

import "github.com/nevindra/kertas"

// ParseResponse converts an OpenAI-format ChatResponse to a kertas
// ChatResponse. It extracts content and usage from choices[0].
func ParseResponse(resp ChatResponse) (*kertas.ChatResponse, error) {
	out := &kertas.ChatResponse{}

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
	}

	if resp.Usage != nil {
		out.Usage = kertas.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}
