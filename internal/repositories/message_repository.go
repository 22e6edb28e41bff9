package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/broker"
	"messaging-service/internal/models"
)

// MessageRepository owns the ordered message set of a conversation: append,
// live retrieval and delivery-status transitions.
type MessageRepository interface {
	Append(ctx context.Context, conversationID, senderID, receiverID, content string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	Subscribe(ctx context.Context, conversationID string) (<-chan []models.Message, error)
	MarkDelivered(ctx context.Context, conversationID, readerID string) error
	MarkRead(ctx context.Context, conversationID, readerID string) error
}

const messageColumns = `id, seq, conversation_id, sender_id, receiver_id, content,
    message_type, delivery_status, is_edited, edited_at, created_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db     *sqlx.DB
	broker *broker.Broker
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB, b *broker.Broker) *MessageRepo {
	return &MessageRepo{db: db, broker: b}
}

// participants verifies the conversation exists and returns its pair.
func (r *MessageRepo) participants(ctx context.Context, conversationID string) (string, string, error) {
	var user1, user2 string
	err := r.db.QueryRowxContext(ctx,
		`SELECT user1_id, user2_id FROM conversations WHERE id=$1`, conversationID).Scan(&user1, &user2)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return "", "", apperrors.Unavailable("conversation lookup failed", err)
	}
	return user1, user2, nil
}

// Append stores a message with status sent and a server-assigned timestamp.
// Content must be non-blank after trimming; sender and receiver must be the
// conversation's two participants.
func (r *MessageRepo) Append(ctx context.Context, conversationID, senderID, receiverID, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, apperrors.InvalidArg("message content must not be blank")
	}

	user1, user2, err := r.participants(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !isPair(senderID, receiverID, user1, user2) {
		return models.Message{}, apperrors.InvalidArg("sender and receiver must be the conversation participants")
	}

	query := `INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING ` + messageColumns
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, uuid.NewString(), conversationID, senderID, receiverID, content); err != nil {
		return models.Message{}, apperrors.Unavailable("message append failed", err)
	}

	r.broker.Notify(broker.ConversationTopic(conversationID))
	return msg, nil
}

// ListMessages returns the conversation's messages in chronological order,
// ties in timestamp broken by insertion order.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE conversation_id=$1
        ORDER BY created_at ASC, seq ASC`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, conversationID); err != nil {
		return nil, apperrors.Unavailable("message list failed", err)
	}
	return msgs, nil
}

// Subscribe re-emits the full ordered message set on every insert or status
// change within the conversation. An initial snapshot is emitted on subscribe;
// the channel closes when ctx is canceled.
func (r *MessageRepo) Subscribe(ctx context.Context, conversationID string) (<-chan []models.Message, error) {
	if _, _, err := r.participants(ctx, conversationID); err != nil {
		return nil, err
	}

	out := make(chan []models.Message, 1)
	nudge := r.broker.Subscribe(broker.ConversationTopic(conversationID))

	go func() {
		defer close(out)
		defer r.broker.Unsubscribe(broker.ConversationTopic(conversationID), nudge)
		for {
			if msgs, err := r.ListMessages(ctx, conversationID); err == nil {
				select {
				case <-out:
				default:
				}
				out <- msgs
			}
			select {
			case <-ctx.Done():
				return
			case <-nudge:
			}
		}
	}()
	return out, nil
}

// MarkDelivered advances sent messages addressed to the reader to delivered.
// No-op when none match.
func (r *MessageRepo) MarkDelivered(ctx context.Context, conversationID, readerID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET delivery_status='delivered'
         WHERE conversation_id=$1 AND receiver_id=$2 AND delivery_status='sent'`,
		conversationID, readerID)
	if err != nil {
		return apperrors.Unavailable("mark delivered failed", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.broker.Notify(broker.ConversationTopic(conversationID))
	}
	return nil
}

// MarkRead advances every message addressed to the reader to read and resets
// the reader's unread counter on the conversation row in the same transaction,
// so the counter can never drift from the per-message status.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID string) error {
	user1, user2, err := r.participants(ctx, conversationID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("mark read failed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET delivery_status='read'
         WHERE conversation_id=$1 AND receiver_id=$2 AND delivery_status IN ('sent', 'delivered')`,
		conversationID, readerID); err != nil {
		return apperrors.Unavailable("mark read failed", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET
            user1_unread = CASE WHEN user1_id=$2 THEN 0 ELSE user1_unread END,
            user2_unread = CASE WHEN user2_id=$2 THEN 0 ELSE user2_unread END
         WHERE id=$1`,
		conversationID, readerID); err != nil {
		return apperrors.Unavailable("unread reset failed", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("mark read failed", err)
	}

	r.broker.Notify(
		broker.ConversationTopic(conversationID),
		broker.UserTopic(user1),
		broker.UserTopic(user2),
	)
	return nil
}

func isPair(a, b, user1, user2 string) bool {
	return (a == user1 && b == user2) || (a == user2 && b == user1)
}
