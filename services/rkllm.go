package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httputil"

	"rkllm-chat-client/config"
	"rkllm-chat-client/models"
)

type RKLLMService struct {
	url     string
	prefix  string
	postfix string
	client  *http.Client
}

func NewRKLLMService(cfg *config.Config, client *http.Client) *RKLLMService {
	if client == nil {
		client = &http.Client{}
	}
	return &RKLLMService{
		url:     cfg.ServerURL(),
		prefix:  cfg.PromptTextPrefix,
		postfix: cfg.PromptTextPostfix,
		client:  client,
	}
}

func (s *RKLLMService) Name() string {
	return config.BackendRKLLM
}

func (s *RKLLMService) Prompt(input string) string {
	return NewChatRequest(s.prefix, input, s.postfix).Prompt()
}

// Complete POSTs the templated input and returns the "content" field of the reply.
// A non-2xx status is not an error on its own: the server reports model failures as
// a 500 whose content is the error text.
func (s *RKLLMService) Complete(ctx context.Context, input string) (string, error) {
	reqBody := NewChatRequest(s.prefix, input, s.postfix)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("JSON encode failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requestDump, err := httputil.DumpRequestOut(req, true); err != nil {
		log.Printf("Error dumping request: %v", err)
	} else {
		log.Printf("--- RKLLM Request Start ---\n%s\n--- RKLLM Request End ---", string(requestDump))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	// DumpResponse reads the body and puts an equivalent reader back, so it can be read again below.
	responseDump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}
	log.Printf("--- RKLLM Response Start (Status: %s) ---\n%s\n--- RKLLM Response End ---", resp.Status, string(responseDump))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	result, err := decodeResponse(body)
	if err != nil {
		return "", err
	}
	content, ok := result.Content()
	if !ok {
		return "", fmt.Errorf("%w (status %s)", ErrMissingContent, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Warning: RKLLM server answered %s: %q", resp.Status, content)
	}
	return content, nil
}

// Ping asks the server for its status. A healthy server answers {"content":"online"}.
func (s *RKLLMService) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}
	result, err := decodeResponse(body)
	if err != nil {
		return "", err
	}
	status, ok := result.Content()
	if !ok {
		return "", fmt.Errorf("%w (status %s)", ErrMissingContent, resp.Status)
	}
	return status, nil
}

func decodeResponse(body []byte) (models.ChatResponse, error) {
	var result models.ChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return result, nil
}
