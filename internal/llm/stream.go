package llm

import (
	"encoding/json"
	"strings"
)

// chunkParser decodes one SSE data payload of a chat completion stream.
type chunkParser func(data []byte) (*StreamChunk, error)

const nvidiaAPIBase = "https://integrate.api.nvidia.com/v1"

// deltaPayload covers both the plain OpenAI delta and the reasoning variant
// served by NVIDIA-hosted DeepSeek models.
type deltaPayload struct {
	Choices []struct {
		Delta struct {
			Role             string  `json:"role"`
			Content          string  `json:"content"`
			ReasoningContent *string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func decodeDelta(data []byte, keepReasoning bool) (*StreamChunk, error) {
	var payload deltaPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	chunk := &StreamChunk{Metadata: map[string]interface{}{}}
	if len(payload.Choices) == 0 {
		return chunk, nil
	}
	choice := payload.Choices[0]
	chunk.Role = choice.Delta.Role
	chunk.Content = choice.Delta.Content
	if keepReasoning && choice.Delta.ReasoningContent != nil {
		chunk.ThinkingContent = *choice.Delta.ReasoningContent
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		chunk.Done = true
		chunk.Metadata["finish_reason"] = *choice.FinishReason
	}
	return chunk, nil
}

func parseStandardChunk(data []byte) (*StreamChunk, error) {
	return decodeDelta(data, false)
}

func parseReasoningChunk(data []byte) (*StreamChunk, error) {
	return decodeDelta(data, true)
}

// parserFor picks the chunk format of the API behind baseURL.
func parserFor(baseURL string) (chunkParser, string) {
	if strings.TrimRight(baseURL, "/") == nvidiaAPIBase {
		return parseReasoningChunk, "nvidia"
	}
	return parseStandardChunk, "openai"
}
