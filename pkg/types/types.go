// Package types contains shared data types used across the knowledge store.
package types

import "time"

// Account identifies a conversational participant. The (source, source_id)
// pair is unique per platform; repeat senders are upserted, not duplicated.
type Account struct {
	ID        int64
	Name      string
	Source    string // platform tag: "discord", "telegram", ...
	SourceID  string // identifier within the source
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel is a conversation context with a globally unique external id.
type Channel struct {
	ID        int64
	ChannelID string // external channel identifier
	Kind      string // channel type tag, matches the source platform
	Name      string // optional display name
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one utterance in a channel. Messages are append-only: once
// written they are never updated.
type Message struct {
	ID        int64
	ChannelID int64  // owning channel row
	AccountID int64  // authoring account row
	Role      string // "user", "assistant"
	Content   string
	ReplyToID *int64 // optional self-reference to a prior message
	CreatedAt time.Time
}

// Document is a standalone knowledge artifact keyed by a caller-supplied id.
// Re-adding under the same DocID replaces the content and its embeddings.
type Document struct {
	ID      int64  // store-assigned row id
	DocID   string // caller-supplied identifier
	Content string
}

// DocumentMatch is one semantic search hit over documents.
type DocumentMatch struct {
	Distance float64
	DocID    string
	Document *Document
}

// MessageMatch is one semantic search hit over messages.
type MessageMatch struct {
	Distance float64
	ID       int64
	Message  *Message
}

// StoreStats reports row counts and database size.
type StoreStats struct {
	Accounts    int64
	Channels    int64
	Messages    int64
	Documents   int64
	DocVectors  int64
	MsgVectors  int64
	DBSizeBytes int64
}
