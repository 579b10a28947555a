package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pulse/internal/core/domain"
)

type UserRepo struct {
	db *sql.DB
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepository(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetProfile(ctx context.Context, id domain.PrincipalID) (*domain.Profile, error) {
	if id == "" {
		return nil, domain.ErrInvalidPrincipalID
	}
	profile := &domain.Profile{ID: id}
	query := `SELECT username, avatar FROM users WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, id).Scan(&profile.Username, &profile.Avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPrincipalNotFound
		}
		return nil, err
	}
	return profile, nil
}

func (r *UserRepo) UpdateStatus(
	ctx context.Context,
	id domain.PrincipalID,
	status domain.Status,
	lastSeen time.Time,
) error {
	if id == "" {
		return domain.ErrInvalidPrincipalID
	}
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE users
		SET status = $2, last_seen = $3
		WHERE id = $1
	`, id, status, lastSeen.UTC())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}
