package users

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Provider     string
	GoogleID     string
	Preferences  map[string]any
	Code         *ConnectionCode
	Connections  []Connection
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ConnectionCode is the short-lived code a user hands to a peer out-of-band
// so the peer can redeem it and form a connection. A user holds at most one
// code at a time; issuing a new one overwrites the previous.
type ConnectionCode struct {
	Code      string    `json:"id"`
	ExpiresAt time.Time `json:"expiry"`
}

// Connection is one direction of a mutual edge. HideEvents is this side's
// own preference and never mirrors the peer's.
type Connection struct {
	PeerID     uuid.UUID `json:"peerId"`
	PeerName   string    `json:"peerName,omitempty"`
	HideEvents bool      `json:"hideEvents"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PeerSummary identifies the user on the other end of a freshly redeemed code.
type PeerSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

type CreateParams struct {
	Email        string
	Name         string
	PasswordHash string
	Provider     string
	GoogleID     string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*User, error)

	// SetConnectionCode overwrites the user's connection code. It must fail
	// with ErrCodeTaken when another user holds the same live code.
	SetConnectionCode(ctx context.Context, userID uuid.UUID, code ConnectionCode) error

	// CodeInUse reports whether any user holds a non-expired code equal to
	// the given one at the reference instant.
	CodeInUse(ctx context.Context, code string, now time.Time) (bool, error)

	// ClaimConnectionCode atomically clears a live code and returns its
	// owner. The check-and-clear must be a single conditional update so two
	// concurrent redeemers cannot both succeed. Returns ErrCodeNotFound when
	// no live code matches.
	ClaimConnectionCode(ctx context.Context, code string, now time.Time) (*PeerSummary, error)

	HasConnection(ctx context.Context, userID, peerID uuid.UUID) (bool, error)
	AddConnection(ctx context.Context, userID, peerID uuid.UUID) error
	RemoveConnection(ctx context.Context, userID, peerID uuid.UUID) (bool, error)
	SetHideEvents(ctx context.Context, userID, peerID uuid.UUID, hide bool) (bool, error)
	ListConnections(ctx context.Context, userID uuid.UUID) ([]Connection, error)

	// WithTx runs fn inside a transaction; every repository call made through
	// the passed Repository joins it. Either all writes commit or none do.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
