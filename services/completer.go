package services

import (
	"context"
	"errors"

	"rkllm-chat-client/models"
)

var (
	ErrTransport         = errors.New("request to inference server failed")
	ErrMalformedResponse = errors.New("inference server returned a malformed response")
	ErrMissingContent    = errors.New("inference server response has no content")
)

// Completer turns one line of user input into the assistant's reply.
type Completer interface {
	Complete(ctx context.Context, input string) (string, error)
	// Prompt returns the text the model will actually see for input.
	Prompt(input string) string
	Name() string
}

// NewChatRequest wraps input in the prompt template. The trailing space after the input
// is part of the template the RKLLM server was built against.
func NewChatRequest(prefix, input, postfix string) models.ChatRequest {
	return models.ChatRequest{
		PromptTextPrefix:  prefix,
		InputStr:          input + " ",
		PromptTextPostfix: postfix,
	}
}
