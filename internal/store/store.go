// Package store mirrors the bounded chat history into an external document
// store. The relay treats it as strictly optional: every failure is logged
// and the in-memory buffer keeps serving reads.
package store

import (
	"context"

	"github.com/JesusBorbon/chat-seguro/internal/message"
)

// Store is the durable mirror of the bounded history. Implementations must
// keep each call independent — there is no cross-call transaction and the
// relay never retries.
type Store interface {
	// Append persists one record with a server-assigned timestamp used for
	// ordering and retention.
	Append(ctx context.Context, rec message.Record) error
	// ListRecent returns up to limit records, most recent first. The relay
	// reverses them to oldest-first before replay.
	ListRecent(ctx context.Context, limit int) ([]message.Record, error)
	Count(ctx context.Context) (int64, error)
	// DeleteOldest removes the n records with the smallest insertion
	// timestamps, ties broken arbitrarily.
	DeleteOldest(ctx context.Context, n int64) error
	// UpdateReactions upserts the full reaction map of the record with the
	// given message id.
	UpdateReactions(ctx context.Context, id string, reacciones map[string][]string) error
}
