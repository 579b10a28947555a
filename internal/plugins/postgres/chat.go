package postgres

import (
	"context"
	"database/sql"

	"pulse/internal/core/domain"
)

type ChatRepo struct {
	db *sql.DB
}

var _ domain.ChatRepository = (*ChatRepo)(nil)

func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) ChatsForPrincipal(ctx context.Context, id domain.PrincipalID) ([]domain.RoomID, error) {
	if id == "" {
		return nil, domain.ErrInvalidPrincipalID
	}
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT chat_id
		FROM chat_participants
		WHERE user_id = $1
		ORDER BY chat_id
	`, id)
	if err != nil {
		return nil, err
	}
	return scanIDs[domain.RoomID](rows)
}

func (r *ChatRepo) IsParticipant(ctx context.Context, id domain.PrincipalID, roomID domain.RoomID) (bool, error) {
	if roomID == "" {
		return false, domain.ErrInvalidRoomID
	}
	var ok bool
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_participants
			WHERE chat_id = $1 AND user_id = $2
		)
	`, roomID, id).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *ChatRepo) ListParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.PrincipalID, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidRoomID
	}
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT user_id
		FROM chat_participants
		WHERE chat_id = $1
		ORDER BY user_id
	`, roomID)
	if err != nil {
		return nil, err
	}
	return scanIDs[domain.PrincipalID](rows)
}

func (r *ChatRepo) UpdateLastMessage(ctx context.Context, roomID domain.RoomID, messageID domain.MessageID) error {
	if roomID == "" {
		return domain.ErrInvalidRoomID
	}
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE chats
		SET last_message_id = $2, updated_at = now()
		WHERE id = $1
	`, roomID, messageID)
	if err != nil {
		return err
	}
	return expectRow(result, domain.ErrRoomNotFound)
}

func (r *ChatRepo) IncrementUnread(ctx context.Context, roomID domain.RoomID, id domain.PrincipalID) error {
	return r.updateUnread(ctx, `
		UPDATE chat_participants
		SET unread_count = unread_count + 1
		WHERE chat_id = $1 AND user_id = $2
	`, roomID, id)
}

func (r *ChatRepo) ResetUnread(ctx context.Context, roomID domain.RoomID, id domain.PrincipalID) error {
	return r.updateUnread(ctx, `
		UPDATE chat_participants
		SET unread_count = 0
		WHERE chat_id = $1 AND user_id = $2
	`, roomID, id)
}

func (r *ChatRepo) updateUnread(ctx context.Context, query string, roomID domain.RoomID, id domain.PrincipalID) error {
	if roomID == "" {
		return domain.ErrInvalidRoomID
	}
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, roomID, id)
	if err != nil {
		return err
	}
	return expectRow(result, domain.ErrParticipantMissing)
}

func scanIDs[T ~string](rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	var ids []T
	for rows.Next() {
		var id T
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
