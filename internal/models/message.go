package models

import "time"

// DeliveryStatus is the per-message lifecycle tag. Transitions only ever move
// forward: sent -> delivered -> read.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

const MessageTypeText = "text"

// Message represents one unit of content within a conversation.
// Seq is assigned by the database and breaks timestamp ties.
type Message struct {
	ID             string         `db:"id" json:"id"`
	Seq            int64          `db:"seq" json:"seq"`
	ConversationID string         `db:"conversation_id" json:"conversation_id"`
	SenderID       string         `db:"sender_id" json:"sender_id"`
	ReceiverID     string         `db:"receiver_id" json:"receiver_id"`
	Content        string         `db:"content" json:"content"`
	MessageType    string         `db:"message_type" json:"message_type"`
	DeliveryStatus DeliveryStatus `db:"delivery_status" json:"delivery_status"`
	IsEdited       bool           `db:"is_edited" json:"is_edited"`
	EditedAt       *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
	Timestamp      time.Time      `db:"created_at" json:"timestamp"`
}

// MessageEvent is broadcasted through websockets. Snapshots carry the full
// ordered message set of the conversation.
type MessageEvent struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages,omitempty"`
}
