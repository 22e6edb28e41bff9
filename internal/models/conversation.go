package models

import "time"

// Conversation represents a two-party messaging thread together with its
// denormalized summary fields. ParticipantIDs always has exactly two entries.
type Conversation struct {
	ID                string            `json:"id"`
	ParticipantIDs    []string          `json:"participant_ids"`
	ParticipantNames  map[string]string `json:"participant_names"`
	LastMessage       string            `json:"last_message"`
	LastMessageTime   time.Time         `json:"last_message_time"`
	LastMessageSender string            `json:"last_message_sender"`
	UnreadCount       map[string]int    `json:"unread_count"`
	IsActive          bool              `json:"is_active"`
	CreatedAt         time.Time         `json:"created_at"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Other returns the counterpart of the given participant, empty string if the
// user is not a participant.
func (c Conversation) Other(userID string) string {
	if len(c.ParticipantIDs) != 2 {
		return ""
	}
	if c.ParticipantIDs[0] == userID {
		return c.ParticipantIDs[1]
	}
	if c.ParticipantIDs[1] == userID {
		return c.ParticipantIDs[0]
	}
	return ""
}

// UnreadFor returns the unread counter of the given participant.
func (c Conversation) UnreadFor(userID string) int {
	return c.UnreadCount[userID]
}

// ConversationSummary provides an API-friendly view of a conversation for one
// participant.
type ConversationSummary struct {
	ConversationID    string    `json:"conversation_id"`
	OtherID           string    `json:"other_id"`
	OtherName         string    `json:"other_name,omitempty"`
	LastMessage       string    `json:"last_message"`
	LastMessageTime   time.Time `json:"last_message_time"`
	LastMessageSender string    `json:"last_message_sender"`
	Unread            int       `json:"unread"`
	CreatedAt         time.Time `json:"created_at"`
}

// SummaryFor projects the conversation onto the given viewer.
func (c Conversation) SummaryFor(userID string) ConversationSummary {
	other := c.Other(userID)
	return ConversationSummary{
		ConversationID:    c.ID,
		OtherID:           other,
		OtherName:         c.ParticipantNames[other],
		LastMessage:       c.LastMessage,
		LastMessageTime:   c.LastMessageTime,
		LastMessageSender: c.LastMessageSender,
		Unread:            c.UnreadFor(userID),
		CreatedAt:         c.CreatedAt,
	}
}

// InboxEvent is broadcasted through websockets when a user's conversation
// list changes.
type InboxEvent struct {
	Type          string                `json:"type"`
	Conversations []ConversationSummary `json:"conversations,omitempty"`
	TotalUnread   int                   `json:"total_unread"`
}
