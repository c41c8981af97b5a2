package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const openaiSystemPrompt = "Anda adalah AI assistant profesional untuk format pengumuman organisasi Indonesia."

// formatWithOpenAI runs a single chat completion against OpenAI.
func (s *Service) formatWithOpenAI(ctx context.Context, prompt string) (string, error) {
	if s.openai == nil {
		return "", fmt.Errorf("OPENAI_API_KEY not configured")
	}

	resp, err := s.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.OpenAIModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openaiSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
		TopP:        0.95,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
