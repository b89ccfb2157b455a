package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Create(ctx context.Context, rec Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_tokens (token, client_id, created_at)
		VALUES ($1, $2, $3)
	`, rec.Token, rec.ClientID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *PgRepository) Find(ctx context.Context, tok string) (*Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `
		SELECT token, client_id, created_at
		FROM appointment_tokens
		WHERE token = $1
	`, tok).Scan(&rec.Token, &rec.ClientID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &rec, nil
}
