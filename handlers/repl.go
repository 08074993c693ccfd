package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rkllm-chat-client/models"
	"rkllm-chat-client/services"
)

const (
	Banner   = "Type anything then press enter. Type exit or quit to do so."
	Prompt   = "ai> "
	Farewell = "Goodbye!"
)

var exitKeywords = map[string]bool{
	"quit": true,
	"exit": true,
}

// IsExitCommand reports whether line is an exit keyword, ignoring case only.
func IsExitCommand(line string) bool {
	return exitKeywords[strings.ToLower(line)]
}

type ExchangeRecorder interface {
	SaveExchange(ctx context.Context, ex models.Exchange) error
}

type Options struct {
	// Budget, when set, warns before sending prompts that overflow the server context.
	Budget *services.TokenBudget
	// Recorder, when set, receives every successful exchange.
	Recorder  ExchangeRecorder
	SessionID string
	// FailFast makes Run return the first request error instead of printing it.
	FailFast bool
}

type REPL struct {
	in        *bufio.Reader
	out       io.Writer
	completer services.Completer
	opts      Options
	tracer    trace.Tracer
}

func NewREPL(in io.Reader, out io.Writer, completer services.Completer, opts Options) *REPL {
	return &REPL{
		in:        bufio.NewReader(in),
		out:       out,
		completer: completer,
		opts:      opts,
		tracer:    otel.Tracer(services.ServiceName),
	}
}

type lineResult struct {
	line string
	err  error
}

// readLines feeds lines to the loop so that Run can also watch ctx while stdin blocks.
func (r *REPL) readLines(done <-chan struct{}, lines chan<- lineResult) {
	send := func(res lineResult) bool {
		select {
		case lines <- res:
			return true
		case <-done:
			return false
		}
	}
	for {
		line, err := r.in.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if !send(lineResult{line: line}) {
				return
			}
		}
		if err != nil {
			send(lineResult{err: err})
			return
		}
	}
}

// Run prints the banner and serves prompts until an exit keyword or end of input,
// both of which return nil.
func (r *REPL) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	lines := make(chan lineResult)
	go r.readLines(done, lines)

	fmt.Fprintln(r.out, Banner)
	for {
		fmt.Fprint(r.out, Prompt)

		var res lineResult
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return ctx.Err()
		case res = <-lines:
		}

		if res.err != nil {
			fmt.Fprintln(r.out)
			if errors.Is(res.err, io.EOF) {
				fmt.Fprintln(r.out, Farewell)
				return nil
			}
			return fmt.Errorf("reading input: %w", res.err)
		}

		if IsExitCommand(res.line) {
			fmt.Fprintln(r.out, Farewell)
			return nil
		}

		if err := r.handleInput(ctx, res.line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if r.opts.FailFast {
				return err
			}
			log.Printf("Request failed: %v", err)
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *REPL) handleInput(ctx context.Context, input string) error {
	ctx, span := r.tracer.Start(ctx, "chat-turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("backend", r.completer.Name()),
		attribute.Int("user.input_length", len(input)),
	)

	promptTokens := 0
	if r.opts.Budget != nil {
		tokens, fits, err := r.opts.Budget.Check(r.completer.Prompt(input))
		if err != nil {
			log.Printf("Token count failed: %v", err)
		} else {
			promptTokens = tokens
			span.SetAttributes(attribute.Int("prompt.tokens", tokens))
			if !fits {
				fmt.Fprintf(r.out, "warning: prompt is ~%d tokens; the server context is %d tokens and may truncate it\n",
					tokens, r.opts.Budget.MaxContextLen())
			}
		}
	}

	content, err := r.completer.Complete(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("assistant.content_length", len(content)))

	fmt.Fprintln(r.out, content)

	if r.opts.Recorder != nil {
		ex := models.Exchange{
			SessionID:    r.opts.SessionID,
			Input:        input,
			Content:      content,
			Backend:      r.completer.Name(),
			PromptTokens: promptTokens,
			CreatedAt:    time.Now().UTC(),
		}
		if err := r.opts.Recorder.SaveExchange(ctx, ex); err != nil {
			log.Printf("Could not save exchange for session %s: %v", r.opts.SessionID, err)
		}
	}
	return nil
}
