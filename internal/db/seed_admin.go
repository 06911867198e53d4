package db

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/learnhub/internal/domain/user"
	"github.com/geocoder89/learnhub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureAdminUser creates the bootstrap admin account if it is configured and
// missing. Registration only ever creates plain users, so this is the way an
// admin comes to exist.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, email, password string) (created bool, err error) {
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	var dummy string

	err = pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&dummy)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	hash, err := security.HashPassword(password)

	if err != nil {
		return false, err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), email, hash, user.RoleAdmin, now, now,
	)
	if err != nil {
		return false, err
	}

	return true, nil
}
