package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"rkllm-chat-client/models"
)

const transcriptTTL = 24 * time.Hour

// TranscriptStore keeps a per-session log of completed exchanges. Nothing stored here
// is sent back to the model.
type TranscriptStore struct {
	client *redis.Client
}

func NewTranscriptStore(ctx context.Context, addr, password string, db int) (*TranscriptStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	log.Printf("Connected to Redis at %s.", addr)
	return &TranscriptStore{client: rdb}, nil
}

func (s *TranscriptStore) Close() error {
	return s.client.Close()
}

func transcriptKey(sessionID string) string {
	return "transcript:" + sessionID
}

// SaveExchange appends ex to its session's transcript and refreshes the TTL.
func (s *TranscriptStore) SaveExchange(ctx context.Context, ex models.Exchange) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("failed to serialize exchange: %w", err)
	}
	key := transcriptKey(ex.SessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, transcriptTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save exchange for session %s: %w", ex.SessionID, err)
	}
	return nil
}

func (s *TranscriptStore) Exchanges(ctx context.Context, sessionID string) ([]models.Exchange, error) {
	items, err := s.client.LRange(ctx, transcriptKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript for session %s: %w", sessionID, err)
	}

	exchanges := make([]models.Exchange, 0, len(items))
	for _, item := range items {
		var ex models.Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			return nil, fmt.Errorf("failed to deserialize exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, nil
}

func (s *TranscriptStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, transcriptKey(sessionID)).Err()
}

// Sessions lists the ids of all transcripts that have not expired yet.
func (s *TranscriptStore) Sessions(ctx context.Context) ([]string, error) {
	iter := s.client.Scan(ctx, 0, transcriptKey("*"), 0).Iterator()
	var sessions []string
	for iter.Next(ctx) {
		sessions = append(sessions, strings.TrimPrefix(iter.Val(), transcriptKey("")))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan transcript keys: %w", err)
	}
	return sessions, nil
}
