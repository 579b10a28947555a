package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pulse/internal/core/domain"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{
		db: db,
	}
}

func (r *MessageRepo) PersistMessage(
	ctx context.Context,
	roomID domain.RoomID,
	senderID domain.PrincipalID,
	p domain.MessagePayload,
) (domain.MessageID, time.Time, error) {
	if roomID == "" {
		return "", time.Time{}, domain.ErrInvalidRoomID
	}
	var replyTo *string
	if p.ReplyTo != nil {
		if _, err := uuid.Parse(string(*p.ReplyTo)); err != nil {
			return "", time.Time{}, fmt.Errorf("%w: reply to %q", domain.ErrInvalidMessageID, *p.ReplyTo)
		}
		s := string(*p.ReplyTo)
		replyTo = &s
	}
	var attachment []byte
	if p.Attachment != nil {
		var err error
		if attachment, err = json.Marshal(p.Attachment); err != nil {
			return "", time.Time{}, err
		}
	}

	id := uuid.New()
	var createdAt time.Time
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		INSERT INTO messages (
			id, chat_id, sender_id, content, kind, reply_to, attachment
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`,
		id.String(),
		roomID,
		senderID,
		p.Content,
		p.Kind,
		replyTo,
		attachment,
	).Scan(&createdAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return domain.MessageID(id.String()), createdAt.UTC(), nil
}

func (r *MessageRepo) RoomOfMessage(ctx context.Context, messageID domain.MessageID) (domain.RoomID, error) {
	// Ids that are not UUIDs cannot name a stored message.
	if _, err := uuid.Parse(string(messageID)); err != nil {
		return "", domain.ErrMessageNotFound
	}
	var roomID domain.RoomID
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `SELECT chat_id FROM messages WHERE id = $1`, messageID).Scan(&roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrMessageNotFound
		}
		return "", err
	}
	return roomID, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, messageID domain.MessageID, id domain.PrincipalID) error {
	if id == "" {
		return domain.ErrInvalidPrincipalID
	}
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, id)
	return err
}

// AddReaction removes the principal's reaction if present and adds it
// otherwise, in one statement, then returns the message's reactions.
func (r *MessageRepo) AddReaction(
	ctx context.Context,
	messageID domain.MessageID,
	id domain.PrincipalID,
	emoji string,
) ([]domain.Reaction, error) {
	if emoji == "" {
		return nil, errors.New("empty emoji")
	}
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		WITH removed AS (
			DELETE FROM message_reactions
			WHERE message_id = $1 AND user_id = $2 AND emoji = $3
			RETURNING 1
		)
		INSERT INTO message_reactions (message_id, user_id, emoji)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM removed)
	`, messageID, id, emoji)
	if err != nil {
		return nil, err
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reactions := []domain.Reaction{}
	for rows.Next() {
		var rc domain.Reaction
		if err := rows.Scan(&rc.PrincipalID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, rc)
	}
	return reactions, rows.Err()
}
