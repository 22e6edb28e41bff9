package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/broker"
	"messaging-service/internal/models"
)

// ConversationRepository owns conversation documents: pair resolution, summary
// updates and per-participant unread counters.
type ConversationRepository interface {
	ResolveOrCreate(ctx context.Context, selfID, otherID, selfName, otherName string) (models.Conversation, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	ListForParticipant(ctx context.Context, userID string) ([]models.Conversation, error)
	SubscribeForParticipant(ctx context.Context, userID string) (<-chan []models.Conversation, error)
	UpdateSummary(ctx context.Context, conversationID, lastMessage, senderID string, ts time.Time) error
	SetUnreadCount(ctx context.Context, conversationID, userID string, count int) error
	TotalUnread(ctx context.Context, userID string) (int, error)
	Deactivate(ctx context.Context, conversationID string) error
	Delete(ctx context.Context, conversationID string) error
}

// conversationRow is the relational shape of a conversation. The sorted pair
// columns keep resolution commutative; maps are rebuilt on scan.
type conversationRow struct {
	ID                string    `db:"id"`
	User1ID           string    `db:"user1_id"`
	User2ID           string    `db:"user2_id"`
	User1Name         string    `db:"user1_name"`
	User2Name         string    `db:"user2_name"`
	LastMessage       string    `db:"last_message"`
	LastMessageTime   time.Time `db:"last_message_time"`
	LastMessageSender string    `db:"last_message_sender"`
	User1Unread       int       `db:"user1_unread"`
	User2Unread       int       `db:"user2_unread"`
	IsActive          bool      `db:"is_active"`
	CreatedAt         time.Time `db:"created_at"`
}

func (r conversationRow) toModel() models.Conversation {
	return models.Conversation{
		ID:                r.ID,
		ParticipantIDs:    []string{r.User1ID, r.User2ID},
		ParticipantNames:  map[string]string{r.User1ID: r.User1Name, r.User2ID: r.User2Name},
		LastMessage:       r.LastMessage,
		LastMessageTime:   r.LastMessageTime,
		LastMessageSender: r.LastMessageSender,
		UnreadCount:       map[string]int{r.User1ID: r.User1Unread, r.User2ID: r.User2Unread},
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
	}
}

const conversationColumns = `id, user1_id, user2_id, user1_name, user2_name,
    last_message, last_message_time, last_message_sender,
    user1_unread, user2_unread, is_active, created_at`

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db     *sqlx.DB
	broker *broker.Broker
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB, b *broker.Broker) *ConversationRepo {
	return &ConversationRepo{db: db, broker: b}
}

// sortPair orders the two participants and keeps their names aligned.
func sortPair(selfID, otherID, selfName, otherName string) (string, string, string, string) {
	if selfID < otherID {
		return selfID, otherID, selfName, otherName
	}
	return otherID, selfID, otherName, selfName
}

// ResolveOrCreate returns the conversation for the unordered participant pair,
// creating it if it does not exist. Resolution is commutative and never
// duplicates: concurrent creators race on the UNIQUE pair constraint and the
// loser re-reads the winner's row.
func (r *ConversationRepo) ResolveOrCreate(ctx context.Context, selfID, otherID, selfName, otherName string) (models.Conversation, error) {
	if selfID == "" || otherID == "" {
		return models.Conversation{}, apperrors.InvalidArg("missing participant")
	}
	if selfID == otherID {
		return models.Conversation{}, apperrors.InvalidArg("cannot message yourself")
	}
	user1, user2, name1, name2 := sortPair(selfID, otherID, selfName, otherName)

	lookup := `SELECT ` + conversationColumns + ` FROM conversations WHERE user1_id=$1 AND user2_id=$2`

	var row conversationRow
	err := r.db.GetContext(ctx, &row, lookup, user1, user2)
	if err == nil {
		return row.toModel(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, apperrors.Unavailable("conversation lookup failed", err)
	}

	insert := `INSERT INTO conversations (id, user1_id, user2_id, user1_name, user2_name)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user1_id, user2_id) DO NOTHING
        RETURNING ` + conversationColumns
	err = r.db.GetContext(ctx, &row, insert, uuid.NewString(), user1, user2, name1, name2)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the creation race; the pair row exists now.
		err = r.db.GetContext(ctx, &row, lookup, user1, user2)
	}
	if err != nil {
		return models.Conversation{}, apperrors.Unavailable("conversation create failed", err)
	}

	r.broker.Notify(broker.UserTopic(user1), broker.UserTopic(user2))
	return row.toModel(), nil
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return models.Conversation{}, apperrors.Unavailable("conversation fetch failed", err)
	}
	return row.toModel(), nil
}

// ListForParticipant returns the user's active conversations, most recently
// touched first.
func (r *ConversationRepo) ListForParticipant(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
        WHERE (user1_id=$1 OR user2_id=$1) AND is_active
        ORDER BY last_message_time DESC`
	var rows []conversationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, apperrors.Unavailable("conversation list failed", err)
	}
	result := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

// SubscribeForParticipant is the live variant of ListForParticipant: the
// returned channel re-emits the full ordered list whenever any conversation of
// the user changes. An initial snapshot is emitted on subscribe. The channel
// closes when ctx is canceled.
func (r *ConversationRepo) SubscribeForParticipant(ctx context.Context, userID string) (<-chan []models.Conversation, error) {
	out := make(chan []models.Conversation, 1)
	nudge := r.broker.Subscribe(broker.UserTopic(userID))

	go func() {
		defer close(out)
		defer r.broker.Unsubscribe(broker.UserTopic(userID), nudge)
		for {
			if list, err := r.ListForParticipant(ctx, userID); err == nil {
				// Latest snapshot wins; a stale pending one is replaced.
				select {
				case <-out:
				default:
				}
				out <- list
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

// UpdateSummary overwrites the denormalized summary fields after a message
// append and increments the receiver's unread counter by one. The sender's own
// counter is never touched.
func (r *ConversationRepo) UpdateSummary(ctx context.Context, conversationID, lastMessage, senderID string, ts time.Time) error {
	query := `UPDATE conversations SET
            last_message=$2,
            last_message_sender=$3,
            last_message_time=$4,
            user1_unread = user1_unread + CASE WHEN user1_id <> $3 THEN 1 ELSE 0 END,
            user2_unread = user2_unread + CASE WHEN user2_id <> $3 THEN 1 ELSE 0 END
        WHERE id=$1
        RETURNING user1_id, user2_id`
	var user1, user2 string
	err := r.db.QueryRowxContext(ctx, query, conversationID, lastMessage, senderID, ts).Scan(&user1, &user2)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return apperrors.Unavailable("summary update failed", err)
	}

	r.broker.Notify(
		broker.ConversationTopic(conversationID),
		broker.UserTopic(user1),
		broker.UserTopic(user2),
	)
	return nil
}

// SetUnreadCount sets a participant's unread counter to an explicit value.
func (r *ConversationRepo) SetUnreadCount(ctx context.Context, conversationID, userID string, count int) error {
	if count < 0 {
		return apperrors.InvalidArg("unread count must not be negative")
	}
	query := `UPDATE conversations SET
            user1_unread = CASE WHEN user1_id=$2 THEN $3 ELSE user1_unread END,
            user2_unread = CASE WHEN user2_id=$2 THEN $3 ELSE user2_unread END
        WHERE id=$1 AND (user1_id=$2 OR user2_id=$2)
        RETURNING user1_id, user2_id`
	var user1, user2 string
	err := r.db.QueryRowxContext(ctx, query, conversationID, userID, count).Scan(&user1, &user2)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return apperrors.Unavailable("unread update failed", err)
	}

	r.broker.Notify(
		broker.ConversationTopic(conversationID),
		broker.UserTopic(user1),
		broker.UserTopic(user2),
	)
	return nil
}

// TotalUnread sums the user's unread counters across active conversations.
func (r *ConversationRepo) TotalUnread(ctx context.Context, userID string) (int, error) {
	query := `SELECT COALESCE(SUM(CASE WHEN user1_id=$1 THEN user1_unread ELSE user2_unread END), 0)
        FROM conversations
        WHERE (user1_id=$1 OR user2_id=$1) AND is_active`
	var total int
	if err := r.db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, apperrors.Unavailable("unread total failed", err)
	}
	return total, nil
}

// Deactivate soft-deletes the conversation: it disappears from listings but
// the row and its messages survive.
func (r *ConversationRepo) Deactivate(ctx context.Context, conversationID string) error {
	var user1, user2 string
	err := r.db.QueryRowxContext(ctx,
		`UPDATE conversations SET is_active=FALSE WHERE id=$1 RETURNING user1_id, user2_id`,
		conversationID).Scan(&user1, &user2)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return apperrors.Unavailable("conversation deactivate failed", err)
	}
	r.broker.Notify(broker.UserTopic(user1), broker.UserTopic(user2))
	return nil
}

// Delete removes the conversation; messages cascade at the database level.
func (r *ConversationRepo) Delete(ctx context.Context, conversationID string) error {
	var user1, user2 string
	err := r.db.QueryRowxContext(ctx,
		`DELETE FROM conversations WHERE id=$1 RETURNING user1_id, user2_id`,
		conversationID).Scan(&user1, &user2)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return apperrors.Unavailable("conversation delete failed", err)
	}
	r.broker.Notify(
		broker.ConversationTopic(conversationID),
		broker.UserTopic(user1),
		broker.UserTopic(user2),
	)
	return nil
}
