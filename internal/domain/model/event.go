// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// EventKind enumerates the normalized chat events the pipeline understands.
type EventKind string

const (
	KindMessageCreate EventKind = "message_create"
	KindMessageEdit   EventKind = "message_edit"
	KindMessageDelete EventKind = "message_delete"
	KindReactionAdd   EventKind = "reaction_add"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindMessageCreate, KindMessageEdit, KindMessageDelete, KindReactionAdd:
		return true
	default:
		return false
	}
}

// Event is the normalized unit of work delivered by the feed.
// For reactions AuthorID is the author of the reacted message and
// ReactorID the member who reacted.
type Event struct {
	ID                  string    `json:"event_id"`
	Kind                EventKind `json:"kind"`
	ServerID            string    `json:"server_id"`
	ChannelID           string    `json:"channel_id"`
	MessageID           string    `json:"message_id,omitempty"`
	AuthorID            string    `json:"author_id"`
	AuthorBot           bool      `json:"author_bot,omitempty"`
	Content             string    `json:"content,omitempty"`
	ReferencedAuthorID  string    `json:"referenced_author_id,omitempty"`
	ReferencedAuthorBot bool      `json:"referenced_author_bot,omitempty"`
	MentionedUserIDs    []string  `json:"mentioned_user_ids,omitempty"`
	MentionedBotIDs     []string  `json:"mentioned_bot_ids,omitempty"`
	ReactionEmoji       string    `json:"reaction_emoji,omitempty"`
	ReactorID           string    `json:"reactor_id,omitempty"`
	ReactorBot          bool      `json:"reactor_bot,omitempty"`
	At                  time.Time `json:"ts"`
}

// ActorID returns the member whose action produced the event.
func (e *Event) ActorID() string {
	if e.Kind == KindReactionAdd {
		return e.ReactorID
	}
	return e.AuthorID
}

// ActorIsBot reports whether the acting account is a bot.
func (e *Event) ActorIsBot() bool {
	if e.Kind == KindReactionAdd {
		return e.ReactorBot
	}
	return e.AuthorBot
}

// IsReply reports whether the message references another message.
func (e *Event) IsReply() bool {
	return e.ReferencedAuthorID != ""
}

// Validate checks the fields every kind requires.
func (e *Event) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	case !e.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	case e.ServerID == "":
		return fmt.Errorf("%w: server_id is required", ErrInvalidEvent)
	case e.ChannelID == "":
		return fmt.Errorf("%w: channel_id is required", ErrInvalidEvent)
	case e.AuthorID == "":
		return fmt.Errorf("%w: author_id is required", ErrInvalidEvent)
	}
	if e.Kind == KindReactionAdd && (e.ReactorID == "" || e.ReactionEmoji == "") {
		return fmt.Errorf("%w: reactor_id and reaction_emoji are required for reactions", ErrInvalidEvent)
	}
	return nil
}
