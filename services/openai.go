package services

import (
	"context"
	"fmt"
	"log"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"rkllm-chat-client/config"
)

const openAISystemPrompt = "You are a helpful assistant."

// OpenAIService talks to any OpenAI-compatible chat completions endpoint
// (llama.cpp, Ollama, vLLM) as an alternative to the RKLLM server.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(cfg *config.Config, httpClient *http.Client) *OpenAIService {
	aiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	aiCfg.BaseURL = cfg.OpenAIBaseURL
	if httpClient != nil {
		aiCfg.HTTPClient = httpClient
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(aiCfg),
		model:  cfg.OpenAIModel,
	}
}

func (s *OpenAIService) Name() string {
	return config.BackendOpenAI
}

func (s *OpenAIService) messages(input string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: openAISystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: input + " "},
	}
}

func (s *OpenAIService) Prompt(input string) string {
	var prompt string
	for _, msg := range s.messages(input) {
		prompt += msg.Role + ": " + msg.Content + "\n"
	}
	return prompt
}

func (s *OpenAIService) Complete(ctx context.Context, input string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: s.messages(input),
	}
	log.Printf("OpenAIService: sending %d messages to model %s", len(req.Messages), s.model)

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMissingContent)
	}
	log.Printf("OpenAIService: received %d characters", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}
