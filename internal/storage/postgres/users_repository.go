package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/server/internal/domain/users"
)

var _ users.Repository = (*UsersRepository)(nil)

type UsersRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewUsersRepository(pool *pgxpool.Pool) *UsersRepository {
	return &UsersRepository{pool: pool}
}

func (r *UsersRepository) queryer() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *UsersRepository) WithTx(ctx context.Context, fn func(context.Context, users.Repository) error) error {
	return inTx(ctx, r.pool, r.tx, func(tx pgx.Tx) error {
		return fn(ctx, &UsersRepository{pool: r.pool, tx: tx})
	})
}

const userColumns = `id, email, name, password_hash, role, provider, google_id, preferences,
       connection_code, connection_code_expires_at, created_at, updated_at`

type userRow struct {
	ID            uuid.UUID
	Email         string
	Name          string
	PasswordHash  string
	Role          string
	Provider      string
	GoogleID      *string
	Preferences   map[string]any
	Code          *string
	CodeExpiresAt pgtype.Timestamptz
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

func scanUser(row pgx.Row) (*users.User, error) {
	var r userRow
	if err := row.Scan(
		&r.ID,
		&r.Email,
		&r.Name,
		&r.PasswordHash,
		&r.Role,
		&r.Provider,
		&r.GoogleID,
		&r.Preferences,
		&r.Code,
		&r.CodeExpiresAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user := &users.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Provider:     r.Provider,
		GoogleID:     derefString(r.GoogleID),
		Preferences:  r.Preferences,
	}
	if r.Code != nil && r.CodeExpiresAt.Valid {
		user.Code = &users.ConnectionCode{Code: *r.Code, ExpiresAt: r.CodeExpiresAt.Time}
	}
	if r.CreatedAt.Valid {
		user.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt.Valid {
		user.UpdatedAt = r.UpdatedAt.Time
	}
	return user, nil
}

func (r *UsersRepository) Create(ctx context.Context, params users.CreateParams) (*users.User, error) {
	var googleID *string
	if params.GoogleID != "" {
		googleID = &params.GoogleID
	}
	row := r.queryer().QueryRow(ctx, `
INSERT INTO users (email, name, password_hash, role, provider, google_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+userColumns,
		params.Email,
		params.Name,
		params.PasswordHash,
		users.RoleUser,
		params.Provider,
		googleID,
	)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *UsersRepository) GetByGoogleID(ctx context.Context, googleID string) (*users.User, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID)
	return scanUser(row)
}

func (r *UsersRepository) SetConnectionCode(ctx context.Context, userID uuid.UUID, code users.ConnectionCode) error {
	queryer := r.queryer()

	// Expired codes may be reused, so uniqueness among live codes is
	// enforced here rather than by an index.
	var taken bool
	err := queryer.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM users
   WHERE connection_code = $1
     AND connection_code_expires_at > now()
     AND id <> $2
)`, code.Code, userID).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check code in use: %w", err)
	}
	if taken {
		return users.ErrCodeTaken
	}

	tag, err := queryer.Exec(ctx, `
UPDATE users
   SET connection_code = $2,
       connection_code_expires_at = $3,
       updated_at = now()
 WHERE id = $1`,
		userID, code.Code, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("set connection code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UsersRepository) CodeInUse(ctx context.Context, code string, now time.Time) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM users
   WHERE connection_code = $1
     AND connection_code_expires_at > $2
)`, code, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code in use: %w", err)
	}
	return exists, nil
}

func (r *UsersRepository) ClaimConnectionCode(ctx context.Context, code string, now time.Time) (*users.PeerSummary, error) {
	// Conditional clear-and-return: with two concurrent redeemers only one
	// update matches the row, the other sees no live code.
	row := r.queryer().QueryRow(ctx, `
UPDATE users
   SET connection_code = NULL,
       connection_code_expires_at = NULL,
       updated_at = now()
 WHERE connection_code = $1
   AND connection_code_expires_at > $2
RETURNING id, name, email`, code, now)

	var peer users.PeerSummary
	if err := row.Scan(&peer.ID, &peer.Name, &peer.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrCodeNotFound
		}
		return nil, fmt.Errorf("claim connection code: %w", err)
	}
	return &peer, nil
}

func (r *UsersRepository) HasConnection(ctx context.Context, userID, peerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM connections WHERE user_id = $1 AND peer_id = $2
)`, userID, peerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check connection: %w", err)
	}
	return exists, nil
}

func (r *UsersRepository) AddConnection(ctx context.Context, userID, peerID uuid.UUID) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO connections (user_id, peer_id) VALUES ($1, $2)`, userID, peerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return users.ErrAlreadyConnected
		}
		return fmt.Errorf("add connection: %w", err)
	}
	return nil
}

func (r *UsersRepository) RemoveConnection(ctx context.Context, userID, peerID uuid.UUID) (bool, error) {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM connections WHERE user_id = $1 AND peer_id = $2`, userID, peerID)
	if err != nil {
		return false, fmt.Errorf("remove connection: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UsersRepository) SetHideEvents(ctx context.Context, userID, peerID uuid.UUID, hide bool) (bool, error) {
	tag, err := r.queryer().Exec(ctx, `
UPDATE connections SET hide_events = $3 WHERE user_id = $1 AND peer_id = $2`,
		userID, peerID, hide)
	if err != nil {
		return false, fmt.Errorf("set hide events: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UsersRepository) ListConnections(ctx context.Context, userID uuid.UUID) ([]users.Connection, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT c.peer_id, u.name, c.hide_events, c.created_at
  FROM connections c
  JOIN users u ON u.id = c.peer_id
 WHERE c.user_id = $1
 ORDER BY c.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []users.Connection
	for rows.Next() {
		var conn users.Connection
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&conn.PeerID, &conn.PeerName, &conn.HideEvents, &createdAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		if createdAt.Valid {
			conn.CreatedAt = createdAt.Time
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}
