package postgres

import (
	"context"
	"database/sql"

	"pulse/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

/*
	CREATE TABLE users (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		avatar     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'offline',
		last_seen  TIMESTAMPTZ
	);

	CREATE TABLE chats (
		id               TEXT PRIMARY KEY,
		last_message_id  UUID,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE chat_participants (
		chat_id       TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		unread_count  INT  NOT NULL DEFAULT 0,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE TABLE messages (
		id          UUID PRIMARY KEY,
		chat_id     TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		sender_id   TEXT NOT NULL REFERENCES users(id),
		content     TEXT NOT NULL DEFAULT '',
		kind        TEXT NOT NULL DEFAULT 'text',
		reply_to    UUID,
		attachment  JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE message_reads (
		message_id  UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		read_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (message_id, user_id)
	);

	CREATE TABLE message_reactions (
		message_id  UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		emoji       TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (message_id, user_id, emoji)
	);
*/

func New(ctx context.Context, cfg *config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// Pool tuning
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	// Health check
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
