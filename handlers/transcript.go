package handlers

import (
	"context"
	"fmt"
	"io"
	"sort"

	"rkllm-chat-client/config"
	"rkllm-chat-client/models"
)

// TranscriptStore is the read and clear side of the transcript recorder.
type TranscriptStore interface {
	Sessions(ctx context.Context) ([]string, error)
	Exchanges(ctx context.Context, sessionID string) ([]models.Exchange, error)
	Clear(ctx context.Context, sessionID string) error
}

// RunTranscriptCommand serves --list-sessions, --show-transcript and --clear-transcript.
func RunTranscriptCommand(ctx context.Context, out io.Writer, store TranscriptStore, cfg *config.Config) error {
	switch {
	case cfg.ListSessions:
		return ListSessions(ctx, out, store)
	case cfg.ShowTranscript != "":
		return ShowTranscript(ctx, out, store, cfg.ShowTranscript)
	case cfg.ClearTranscript != "":
		return ClearTranscript(ctx, out, store, cfg.ClearTranscript)
	}
	return fmt.Errorf("no transcript command given")
}

func ListSessions(ctx context.Context, out io.Writer, store TranscriptStore) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No transcripts recorded.")
		return nil
	}
	sort.Strings(sessions)
	for _, id := range sessions {
		fmt.Fprintln(out, id)
	}
	return nil
}

func ShowTranscript(ctx context.Context, out io.Writer, store TranscriptStore, sessionID string) error {
	exchanges, err := store.Exchanges(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(exchanges) == 0 {
		return fmt.Errorf("no transcript for session %s", sessionID)
	}
	for _, ex := range exchanges {
		fmt.Fprintf(out, "[%s] %s, ~%d prompt tokens\n", ex.CreatedAt.Format("2006-01-02 15:04:05"), ex.Backend, ex.PromptTokens)
		fmt.Fprintf(out, "%s%s\n%s\n\n", Prompt, ex.Input, ex.Content)
	}
	return nil
}

func ClearTranscript(ctx context.Context, out io.Writer, store TranscriptStore, sessionID string) error {
	if err := store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}
	fmt.Fprintf(out, "Transcript for session %s cleared.\n", sessionID)
	return nil
}
