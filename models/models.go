package models

import "time"

// ChatRequest is the body the RKLLM server expects. The server concatenates the three
// fields in order and feeds the result to the model.
type ChatRequest struct {
	PromptTextPrefix  string `json:"PROMPT_TEXT_PREFIX"`
	InputStr          string `json:"input_str"`
	PromptTextPostfix string `json:"PROMPT_TEXT_POSTFIX"`
}

func (r ChatRequest) Prompt() string {
	return r.PromptTextPrefix + r.InputStr + r.PromptTextPostfix
}

// ChatResponse is kept as a generic object; only "content" is ever read.
type ChatResponse map[string]interface{}

func (r ChatResponse) Content() (string, bool) {
	v, ok := r["content"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

type Exchange struct {
	SessionID    string    `json:"session_id"`
	Input        string    `json:"input"`
	Content      string    `json:"content"`
	Backend      string    `json:"backend"`
	PromptTokens int       `json:"prompt_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}
