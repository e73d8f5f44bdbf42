// Package convstore keys sessions and transcripts by conversation id,
// giving each conversation the isolated session the single-process
// core assumes.
package convstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/core"
)

// Conversation is one conversation's state: its session and the
// message history replayed into each turn.
type Conversation struct {
	Session *core.Session  `json:"session"`
	History []core.Message `json:"history,omitempty"`
}

// Store manages conversations by id.
type Store interface {
	// Ensure returns the conversation with the given id, creating a
	// fresh one (with a generated id) when id is "" or unknown.
	Ensure(ctx context.Context, id string) (*Conversation, string, error)

	// Save persists the conversation and refreshes its TTL.
	Save(ctx context.Context, id string, conv *Conversation) error
}

// NewStore builds the configured store backend.
func NewStore(cfg config.StorageConfig) (Store, error) {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	switch cfg.SessionStore {
	case "inmemory", "":
		return NewInMemoryStore(ttl), nil
	case "redis":
		return NewRedisStore(cfg.Redis, ttl), nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.SessionStore)
	}
}
