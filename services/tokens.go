package services

import (
	"fmt"

	tokenizer "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

type TokenCounter interface {
	Count(text string) (int, error)
}

type tiktokenCounter struct {
	enc *tokenizer.Tiktoken
}

// NewTiktokenCounter loads the named BPE encoding from the ranks embedded in the binary,
// so startup never waits on a download. The RKLLM models use their own tokenizers, so
// counts are an estimate.
func NewTiktokenCounter(encodingName string) (TokenCounter, error) {
	tokenizer.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tokenizer.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("could not load %s encoding: %w", encodingName, err)
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) (int, error) {
	emptySpecial := []string{}
	return len(c.enc.Encode(text, emptySpecial, emptySpecial)), nil
}

// TokenBudget checks a rendered prompt against the server's context window,
// leaving room for the tokens the server is allowed to generate.
type TokenBudget struct {
	counter       TokenCounter
	maxContextLen int
	maxNewTokens  int
}

func NewTokenBudget(counter TokenCounter, maxContextLen, maxNewTokens int) *TokenBudget {
	return &TokenBudget{
		counter:       counter,
		maxContextLen: maxContextLen,
		maxNewTokens:  maxNewTokens,
	}
}

func (b *TokenBudget) MaxContextLen() int {
	return b.maxContextLen
}

// Check reports the prompt's token count and whether prompt plus generation fits.
func (b *TokenBudget) Check(prompt string) (int, bool, error) {
	tokens, err := b.counter.Count(prompt)
	if err != nil {
		return 0, false, err
	}
	return tokens, tokens+b.maxNewTokens <= b.maxContextLen, nil
}
